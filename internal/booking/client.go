// Package booking talks to the external reservation endpoint. The
// endpoint is opaque: one POST per customer, a status code and a
// human-readable message back. Transport-level trouble is classified
// as transient so dispatch can retry it a bounded number of times.
package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	hc     *http.Client
	url    string
	apiKey string
}

func New(url, apiKey string, timeout time.Duration) *Client {
	return &Client{
		hc:     &http.Client{Timeout: timeout},
		url:    url,
		apiKey: apiKey,
	}
}

type Request struct {
	NationalID  string `json:"national_id"`
	PhoneNumber string `json:"phone_number"`
	Area        string `json:"area"`
}

// Result is the classified outcome of one submission. Accepted reports
// the endpoint's own success signal, not the transport status.
type Result struct {
	Accepted bool
	Code     int
	Message  string
}

// ErrTransient marks failures worth retrying: timeouts, connection
// errors, or a 5xx from the endpoint.
var ErrTransient = errors.New("transient booking failure")

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

type response struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) Submit(ctx context.Context, r Request) (Result, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	if res.StatusCode >= 500 {
		return Result{}, fmt.Errorf("%w: endpoint returned %d", ErrTransient, res.StatusCode)
	}

	var parsed response
	if len(b) > 0 {
		if err := json.Unmarshal(b, &parsed); err != nil {
			// A readable reply we cannot parse is a permanent rejection.
			return Result{Accepted: false, Code: res.StatusCode, Message: fmt.Sprintf("malformed response: %.200s", b)}, nil
		}
	}

	code := parsed.Code
	if code == 0 {
		code = res.StatusCode
	}
	msg := parsed.Message
	if msg == "" {
		msg = http.StatusText(res.StatusCode)
	}

	accepted := parsed.Success && res.StatusCode < 300
	return Result{Accepted: accepted, Code: code, Message: msg}, nil
}
