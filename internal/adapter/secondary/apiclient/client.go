package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tasca/payment-gateway/internal/core"
)

// ErrUnexpectedResponse is returned when the API answers with something other
// than JSON, e.g. an HTML error page from a proxy.
var ErrUnexpectedResponse = errors.New("unexpected response from payment API")

// Client talks to the payment REST API
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// Payment is the subset of a session the observer needs
type Payment struct {
	Reference      string             `json:"reference"`
	Method         core.PaymentMethod `json:"method"`
	Amount         int64              `json:"amount"`
	AmountDisplay  string             `json:"amountDisplay"`
	Status         core.PaymentStatus `json:"status"`
	ExpirationTime *time.Time         `json:"expirationTime,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
	Estado string `json:"estado"`
}

type cancelResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// New creates an API client. token is an optional bearer token.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetPayment fetches the session for reference
func (c *Client) GetPayment(ctx context.Context, reference string) (*Payment, error) {
	var out Payment
	if _, err := c.do(ctx, http.MethodGet, "/api/payments/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckStatus polls the status endpoint. Both "paid" and estado "pago" mean paid.
func (c *Client) CheckStatus(ctx context.Context, reference string) (core.PaymentStatus, error) {
	var out statusResponse
	if _, err := c.do(ctx, http.MethodGet, "/api/payments/status/"+url.PathEscape(reference), nil, &out); err != nil {
		return "", err
	}
	if strings.EqualFold(out.Estado, "pago") {
		return core.PaymentStatusPaid, nil
	}
	return parseStatus(out.Status)
}

// Cancel asks the API to cancel reference and returns the status it settled on.
// A conflict means the session was already terminal; its status is returned without error.
func (c *Client) Cancel(ctx context.Context, reference string) (core.PaymentStatus, error) {
	body, err := json.Marshal(map[string]string{"reference": reference})
	if err != nil {
		return "", err
	}

	var out cancelResponse
	if _, err := c.do(ctx, http.MethodPost, "/api/payments/cancel", body, &out, http.StatusConflict); err != nil {
		return "", err
	}
	return parseStatus(out.Status)
}

func parseStatus(raw string) (core.PaymentStatus, error) {
	switch s := core.PaymentStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case core.PaymentStatusPending, core.PaymentStatusPaid, core.PaymentStatusFailed, core.PaymentStatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrUnexpectedResponse, raw)
}

// do sends a request and decodes a JSON body into out. 2xx responses and the
// extra accepted codes are decoded; anything else is an error.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any, accept ...int) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, core.ErrNotFound
	}
	if !accepted(resp.StatusCode, accept) {
		return resp.StatusCode, fmt.Errorf("%s %s: http %d", method, path, resp.StatusCode)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return resp.StatusCode, fmt.Errorf("%w: content type %q", ErrUnexpectedResponse, resp.Header.Get("Content-Type"))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return resp.StatusCode, nil
}

func accepted(code int, extra []int) bool {
	if code >= 200 && code <= 299 {
		return true
	}
	for _, c := range extra {
		if c == code {
			return true
		}
	}
	return false
}
