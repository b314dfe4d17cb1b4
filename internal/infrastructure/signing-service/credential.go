package signingservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/tdex-network/tdex-authtrade/internal/core/ports"
)

var (
	// ErrMissingCredential ...
	ErrMissingCredential = errors.New("no session credential available")
	// ErrExpiredCredential ...
	ErrExpiredCredential = errors.New("session credential is expired")
	// ErrInvalidCredential ...
	ErrInvalidCredential = errors.New("session credential is not a valid jwt")
)

// credentialSource serves the bearer token obtained by the wallet ownership
// proof flow. When a token file is given, it is read on every request so that
// a refreshed session is picked up without restarting.
type credentialSource struct {
	token     string
	tokenFile string
	now       func() time.Time
}

// NewCredentialSource returns a source for either a static token or the
// token stored at tokenFile. The latter takes precedence.
func NewCredentialSource(token, tokenFile string) ports.CredentialSource {
	return &credentialSource{
		token:     strings.TrimSpace(token),
		tokenFile: tokenFile,
		now:       time.Now,
	}
}

func (c *credentialSource) Credential(_ context.Context) (string, error) {
	token := c.token
	if c.tokenFile != "" {
		buf, err := os.ReadFile(c.tokenFile)
		if err != nil {
			if os.IsNotExist(err) {
				return "", ErrMissingCredential
			}
			return "", err
		}
		token = strings.TrimSpace(string(buf))
	}
	if token == "" {
		return "", ErrMissingCredential
	}

	// The signature is verified by the signing service, here it's only
	// checked that the session did not expire yet.
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidCredential, err)
	}
	if !claims.VerifyExpiresAt(c.now().Unix(), false) {
		return "", ErrExpiredCredential
	}
	return token, nil
}
