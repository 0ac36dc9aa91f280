// ABOUTME: Signed HTTP client for the gateway API
// ABOUTME: Builds the canonical sign message and attaches the X-Claw headers

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/clawnet/claw-gateway/internal/auth"
	"github.com/clawnet/claw-gateway/internal/signing"
)

type apiClient struct {
	baseURL string
	id      *identity
	http    *http.Client
}

func newClient() (*apiClient, error) {
	id, err := loadIdentity()
	if err != nil {
		return nil, err
	}
	return &apiClient{
		baseURL: strings.TrimRight(serverURL(id), "/"),
		id:      id,
		http:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// do sends a signed request and decodes the JSON response into out (if
// non-nil). Non-2xx responses become errors carrying the server's message.
func (c *apiClient) do(method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("bad server URL: %w", err)
	}

	timestampMs := time.Now().UnixMilli()
	nonce, err := signing.GenerateNonce()
	if err != nil {
		return err
	}
	message := signing.BuildSignMessage(method, u.Path, timestampMs, payload)
	sig, err := signing.Sign(message, c.id.PrivateKey)
	if err != nil {
		return fmt.Errorf("signing request: %w", err)
	}

	req, err := http.NewRequest(method, u.String(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderClawID, c.id.ClawID)
	req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(timestampMs, 10))
	req.Header.Set(auth.HeaderSignature, sig)
	req.Header.Set(auth.HeaderNonce, nonce)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling gateway: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%s)", apiErr.Error, resp.Status)
		}
		return fmt.Errorf("gateway returned %s", resp.Status)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func (c *apiClient) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *apiClient) post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}

func (c *apiClient) put(path string, body, out any) error {
	return c.do(http.MethodPut, path, body, out)
}

func (c *apiClient) delete(path string, out any) error {
	return c.do(http.MethodDelete, path, nil, out)
}
