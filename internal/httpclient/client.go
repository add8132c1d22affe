// Package httpclient is a small client for exercising a running instance.
package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
)

// Client wraps http.Client with helpers for page and JSON requests.
// Redirects are returned to the caller instead of being followed.
type Client struct {
	BaseURL string
	Bearer  string
	// Cookies are sent with every request.
	Cookies []*http.Cookie
	HTTP    *http.Client
}

// Response is a fully read response.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Location string
}

// New creates a new Client.
func New(baseURL, bearer string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		Bearer:  bearer,
		HTTP: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Get requests path and reads the whole body.
func (c *Client) Get(ctx context.Context, path string, authenticated bool) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, authenticated)
}

// PostJSON issues a POST request with a JSON body and decodes the response
// into out when it is not nil.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) (*Response, error) {
	buf := new(bytes.Buffer)
	if body != nil {
		if err := sonic.ConfigStd.NewEncoder(buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req, true)
	if err != nil {
		return resp, err
	}
	if out != nil && len(resp.Body) > 0 {
		if err := sonic.Unmarshal(resp.Body, out); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func (c *Client) do(req *http.Request, authenticated bool) (*Response, error) {
	if authenticated {
		if c.Bearer != "" {
			req.Header.Set("Authorization", "Bearer "+c.Bearer)
		}
		for _, ck := range c.Cookies {
			req.AddCookie(ck)
		}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{
		Status:   resp.StatusCode,
		Header:   resp.Header,
		Body:     body,
		Location: resp.Header.Get("Location"),
	}, nil
}
