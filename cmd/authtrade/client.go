package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	httpinterface "github.com/tdex-network/tdex-authtrade/internal/interfaces/http"
)

const requestTimeout = 30 * time.Second

type daemonClient struct {
	baseURL string
	client  *http.Client
}

func getDaemonClient() (*daemonClient, error) {
	state, err := getState()
	if err != nil {
		return nil, err
	}
	address, ok := state["rpcserver"]
	if !ok {
		return nil, errors.New("set rpcserver with `config set rpcserver`")
	}
	return newDaemonClient(address), nil
}

func newDaemonClient(address string) *daemonClient {
	if !strings.HasPrefix(address, "http://") &&
		!strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}
	return &daemonClient{
		baseURL: strings.TrimSuffix(address, "/"),
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// do sends the request and decodes the response body into out, if any.
func (c *daemonClient) do(method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("unable to connect to daemon: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var reply httpinterface.ErrorReply
		if err := json.Unmarshal(respBody, &reply); err != nil || reply.Error == "" {
			return fmt.Errorf("daemon replied with status %d", resp.StatusCode)
		}
		if reply.Kind != "" {
			return fmt.Errorf("%s: %s", reply.Kind, reply.Error)
		}
		return errors.New(reply.Error)
	}

	if out == nil || len(respBody) <= 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func (c *daemonClient) streamURL(executionID string) string {
	url := c.baseURL + "/v1/executions/" + executionID + "/stream"
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	return "ws://" + strings.TrimPrefix(url, "http://")
}
