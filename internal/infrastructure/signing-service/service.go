// Package signingservice is the client of the trusted off-chain service that
// issues trade authorizations on behalf of authenticated traders.
package signingservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
	"github.com/tdex-network/tdex-authtrade/internal/core/ports"
	"github.com/tdex-network/tdex-authtrade/pkg/circuitbreaker"
	"github.com/thanhpk/randstr"
)

const (
	prepareEndpoint = "/v1/authorizations"
	confirmEndpoint = "/v1/authorizations/%s/confirm"

	requestIDHeader = "X-Request-Id"
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
)

// ErrRejectedRequest is returned when the service refuses a request for
// reasons other than its own availability.
var ErrRejectedRequest = errors.New("request rejected by signing service")

type service struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
}

// NewService returns a client for the signing service reachable at the given
// base url.
func NewService(baseURL string, timeout time.Duration) (ports.SigningService, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid signing service url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &service{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		cb:      circuitbreaker.NewCircuitBreaker("signing service"),
	}, nil
}

func (s *service) PrepareSignature(
	ctx context.Context, credential string, req ports.PrepareRequest,
) (*ports.PreparedSignature, error) {
	body := prepareRequest{
		Trader:    req.Trader.Hex(),
		Direction: req.Direction,
		Bound:     bigString(req.Bound),
		Deadline:  req.Deadline,
	}
	for _, id := range req.AssetIDs {
		body.AssetIDs = append(body.AssetIDs, strconv.FormatUint(id, 10))
	}
	for _, amount := range req.Amounts {
		body.Amounts = append(body.Amounts, bigString(amount))
	}

	resBody, err := s.do(ctx, credential, prepareEndpoint, body)
	if err != nil {
		return nil, err
	}

	res := prepareResponse{}
	if err := json.Unmarshal(resBody, &res); err != nil {
		return nil, malformed(err)
	}
	sig, err := hexutil.Decode(res.Signature)
	if err != nil {
		return nil, malformed(fmt.Errorf("signature: %w", err))
	}
	nonce, err := strconv.ParseUint(res.Nonce, 10, 64)
	if err != nil {
		return nil, malformed(fmt.Errorf("nonce: %w", err))
	}
	if res.ExternalRef == "" {
		return nil, malformed(fmt.Errorf("missing external ref"))
	}

	return &ports.PreparedSignature{
		Signature:   sig,
		Nonce:       nonce,
		ExternalRef: res.ExternalRef,
	}, nil
}

func (s *service) Confirm(
	ctx context.Context, credential, externalRef string, txHash common.Hash,
) error {
	endpoint := fmt.Sprintf(confirmEndpoint, url.PathEscape(externalRef))
	_, err := s.do(ctx, credential, endpoint, confirmRequest{txHash.Hex()})
	return err
}

// do posts the given body to the endpoint and returns the body of a
// successful response. Only transport errors and 5xx responses count as
// failures for the circuit breaker. Every error returned wraps
// domain.ErrSignatureServiceUnavailable, except those for 4xx responses
// other than auth ones.
func (s *service) do(
	ctx context.Context, credential, endpoint string, body interface{},
) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	requestID := randstr.Hex(8)
	res, err := s.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodPost, s.baseURL+endpoint, bytes.NewReader(payload),
		)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+credential)
		req.Header.Set(requestIDHeader, requestID)

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		resBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf(
				"status %d: %s", resp.StatusCode, errorMessage(resBody),
			)
		}
		return &response{resp.StatusCode, resBody}, nil
	})
	if err != nil {
		log.WithError(err).Debugf(
			"signing service request %s to %s failed", requestID, endpoint,
		)
		return nil, fmt.Errorf("%w: %s", domain.ErrSignatureServiceUnavailable, err)
	}

	resp := res.(*response)
	switch {
	case resp.status == http.StatusOK:
		return resp.body, nil
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return nil, fmt.Errorf(
			"%w: credential refused: %s",
			domain.ErrSignatureServiceUnavailable, errorMessage(resp.body),
		)
	default:
		return nil, fmt.Errorf(
			"%w: status %d: %s", ErrRejectedRequest, resp.status, errorMessage(resp.body),
		)
	}
}

type response struct {
	status int
	body   []byte
}

func errorMessage(body []byte) string {
	res := errorResponse{}
	if err := json.Unmarshal(body, &res); err == nil && res.Error != "" {
		return res.Error
	}
	return strings.TrimSpace(string(body))
}

func malformed(err error) error {
	return fmt.Errorf(
		"%w: malformed response: %s", domain.ErrSignatureServiceUnavailable, err,
	)
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
