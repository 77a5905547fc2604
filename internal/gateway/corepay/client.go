package corepay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"training-system/internal/status"
)

type ClientConfig struct {
	BaseURL   string `json:"baseUrl" mapstructure:"base_url"`
	PartnerID string `json:"partnerId" mapstructure:"partner_id"`
	ClientID  string `json:"clientId" mapstructure:"client_id"`
	ClientKey string `json:"clientKey" mapstructure:"client_key"`
	HMACKey   string `json:"hmacKey" mapstructure:"hmac_key"`
}

// Client is the low-level HTTP client for the corepay booking/payment API.
// Requests are HMAC-signed and authenticated with a partner access token
// that a background loop keeps fresh.
type Client struct {
	// baseURL is the base url of the corepay backend.
	baseURL string

	// partnerID identifies this service to the corepay backend.
	partnerID string

	clientID  string
	clientKey string

	// hmacKey signs every request body.
	hmacKey string

	// accessToken authenticates requests after connect.
	accessToken string

	// mu guards accessToken.
	mu sync.Mutex

	// toggleTokenRefresher notifies the refresher loop that the backend
	// rejected the current token.
	toggleTokenRefresher chan struct{}

	hc *http.Client
}

func newClient(_ context.Context, c *ClientConfig) *Client {
	return &Client{
		baseURL:   c.BaseURL,
		partnerID: c.PartnerID,
		clientID:  c.ClientID,
		clientKey: c.ClientKey,
		hmacKey:   c.HMACKey,

		// buffered so a 401 never blocks the request path.
		toggleTokenRefresher: make(chan struct{}, 1),

		hc: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// notifyAccessTokenExpired loops for the lifetime of ctx, renewing the
// access token on a schedule or on demand, with exponential backoff.
func (c *Client) notifyAccessTokenExpired(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return

		case <-ticker.C:

		case <-c.toggleTokenRefresher:
			slog.Info("corepay: access token rejected, refreshing")
		}

		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			switch err {
			case nil:
				c.setAccessToken(token)

				break Retry

			default:
				slog.Error("corepay: token refresh", "error", err)
				select {
				case <-ctx.Done():
					return

				case <-time.After(backOff):
					backOff *= 2
				}
			}
		}
	}
}

func (c *Client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// connect authenticates with the corepay backend and returns a bearer token.
func (c *Client) connect(ctx context.Context) (string, error) {
	requestID, err := randomRequestID()
	if err != nil {
		return "", fmt.Errorf("corepay connect: request id: %w", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"partnerId":%q,"clientId":%q,"clientSecret":%q}`,
		requestID, c.partnerID, c.clientID, c.clientKey)

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AccessToken string `json:"accessToken"`
			TokenType   string `json:"tokenType"`
		} `json:"data"`
	}

	if err := c.do(ctx, http.MethodPost, "/api/v1/partner/authenticate", []byte(body), "", &reply); err != nil {
		return "", fmt.Errorf("corepay connect: %w", err)
	}
	if reply.Status != "OK" {
		return "", &status.RemoteError{Code: reply.Status, Message: reply.Message}
	}

	return fmt.Sprintf("%s %s", reply.Data.TokenType, reply.Data.AccessToken), nil
}

// submitPayment posts a payment request under the given idempotency key and
// returns the raw wire payment.
func (c *Client) submitPayment(ctx context.Context, req *wirePaymentRequest, idempotencyKey string) (*wirePayment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("corepay submit: marshal: %w", err)
	}

	var reply struct {
		Status  string       `json:"status"`
		Message string       `json:"message"`
		Data    *wirePayment `json:"data"`
	}

	if err := c.do(ctx, http.MethodPost, "/api/v1/payments", body, idempotencyKey, &reply); err != nil {
		return nil, fmt.Errorf("corepay submit: %w", err)
	}
	if reply.Status != "OK" {
		return nil, &status.RemoteError{Code: reply.Status, Message: reply.Message}
	}
	if reply.Data == nil {
		return nil, errors.New("corepay submit: empty payment in reply")
	}

	return reply.Data, nil
}

// getCredits fetches the user's active credit snapshots.
func (c *Client) getCredits(ctx context.Context, userID string) ([]wireCredit, error) {
	var reply struct {
		Status  string       `json:"status"`
		Message string       `json:"message"`
		Data    []wireCredit `json:"data"`
	}

	path := fmt.Sprintf("/api/v1/users/%s/credits", url.PathEscape(userID))
	if err := c.do(ctx, http.MethodGet, path, nil, "", &reply); err != nil {
		return nil, fmt.Errorf("corepay credits: %w", err)
	}
	if reply.Status != "OK" {
		return nil, &status.RemoteError{Code: reply.Status, Message: reply.Message}
	}

	return reply.Data, nil
}

// do performs one signed request against the corepay backend and decodes
// the reply envelope into out.
func (c *Client) do(ctx context.Context, method, path string, body []byte, idempotencyKey string, out any) error {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("base url: %w", err)
	}

	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader([]byte{})
	} else {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("http.NewRequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256(body, []byte(c.hmacKey)))
	if token := c.getAccessToken(); token != "" {
		req.Header.Set("Authorization", token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("http.Do: %w", err)
	}
	defer resp.Body.Close()

	// Ask the refresher for a new token, then fail this call; the caller
	// retries under the same idempotency key.
	if resp.StatusCode == http.StatusUnauthorized {
		select {
		case c.toggleTokenRefresher <- struct{}{}:
		default:
		}
		return errors.New("unauthorized")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("json.Decode: %w", err)
	}
	return nil
}
