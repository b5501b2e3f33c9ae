package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
)

// DefaultTimeout bounds a single gateway round trip.
const DefaultTimeout = 15 * time.Second

// maxResponseBytes caps how much of a gateway response is read; bodies
// are small JSON documents.
const maxResponseBytes = 1 << 20

// HTTPClient implements Client against the gateway's REST API using
// basic auth with the merchant server key.
type HTTPClient struct {
	baseURL   string
	serverKey string
	http      *http.Client
}

// NewHTTPClient builds a gateway client. A zero timeout falls back to
// DefaultTimeout.
func NewHTTPClient(baseURL, serverKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL:   baseURL,
		serverKey: serverKey,
		http:      &http.Client{Timeout: timeout},
	}
}

// chargeBody is the wire shape of a transaction creation request.
type chargeBody struct {
	OrderID     string `json:"order_id"`
	GrossAmount string `json:"gross_amount"`
	CustomerID  string `json:"customer_id,omitempty"`
}

// CreateTransaction asks the gateway for a new transaction and returns
// the redirect artifacts. Any transport or non-2xx failure is reported
// as ErrUnavailable so callers leave no partial local state behind.
func (c *HTTPClient) CreateTransaction(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	body, err := json.Marshal(chargeBody{
		OrderID:     req.OrderRef,
		GrossAmount: req.GrossAmount.String(),
		CustomerID:  req.CustomerID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal charge request")
	}

	raw, err := c.do(ctx, http.MethodPost, "/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Token       string `json:"token"`
		RedirectURL string `json:"redirect_url"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "decode charge response: %v", err)
	}

	return &ChargeResponse{
		Token:       parsed.Token,
		RedirectURL: parsed.RedirectURL,
		Raw:         raw,
	}, nil
}

// GetStatus pulls the current transaction status for an order reference.
// The response uses the same shape as a pushed notification.
func (c *HTTPClient) GetStatus(ctx context.Context, orderRef string) (*Notification, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v1/transactions/"+url.PathEscape(orderRef)+"/status", nil)
	if err != nil {
		return nil, err
	}

	n, err := ParseNotification(raw)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "decode status response: %v", err)
	}
	return n, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "build gateway request")
	}
	req.SetBasicAuth(c.serverKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "read gateway response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(ErrUnavailable, "%s %s: gateway returned %d", method, path, resp.StatusCode)
	}
	return raw, nil
}
