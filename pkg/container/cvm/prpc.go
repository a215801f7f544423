package cvm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// prpcClient speaks the pod service's RPC framing: a POST to
// <base>/prpc/<Method>?json with a JSON body and a JSON response.
type prpcClient struct {
	baseURL string
	client  *http.Client
}

func newPRPCClient(baseURL string, client *http.Client) *prpcClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &prpcClient{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

func (c *prpcClient) call(ctx context.Context, method string, request, response interface{}) error {
	body := []byte("{}")
	if request != nil {
		var err error
		body, err = json.Marshal(request)
		if err != nil {
			return fmt.Errorf("prpc %s: encode request: %w", method, err)
		}
	}

	url := fmt.Sprintf("%s/prpc/%s?json", c.baseURL, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("prpc %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("prpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("prpc %s: read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("prpc %s: status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if response == nil {
		return nil
	}
	if err := json.Unmarshal(raw, response); err != nil {
		return fmt.Errorf("prpc %s: decode response: %w", method, err)
	}
	return nil
}
