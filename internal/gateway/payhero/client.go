package payhero

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Franc-dev/donate-artist/internal/config"
	gatewaydomain "github.com/Franc-dev/donate-artist/internal/gateway/domain"
)

const maxBodyBytes = 1 << 20

// Client talks to the PayHero v2 REST API.
type Client struct {
	baseURL   string
	authToken string
	channelID int
	provider  string
	client    *http.Client
}

func NewClient(cfg config.PayHeroConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	provider := strings.TrimSpace(cfg.Provider)
	if provider == "" {
		provider = "m-pesa"
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		authToken: authorizationHeader(cfg.AuthToken),
		channelID: cfg.ChannelID,
		provider:  provider,
		client:    &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient swaps the underlying transport.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

type pushRequest struct {
	Amount            float64 `json:"amount"`
	PhoneNumber       string  `json:"phone_number"`
	ChannelID         int     `json:"channel_id"`
	Provider          string  `json:"provider"`
	ExternalReference string  `json:"external_reference"`
	CallbackURL       string  `json:"callback_url,omitempty"`
}

type pushResponse struct {
	Success           bool   `json:"success"`
	Status            string `json:"status"`
	Reference         string `json:"reference"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	Message           string `json:"message"`
	ErrorMessage      string `json:"error_message"`
}

type statusResponse struct {
	Success      *bool           `json:"success"`
	Status       string          `json:"status"`
	Message      string          `json:"message"`
	ErrorMessage string          `json:"error_message"`
	ResultDesc   string          `json:"ResultDesc"`
	Data         *statusEnvelope `json:"data"`
}

type statusEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) InitiatePush(ctx context.Context, req gatewaydomain.PushRequest) (gatewaydomain.PushResult, error) {
	if c.baseURL == "" || c.authToken == "" {
		return gatewaydomain.PushResult{}, gatewaydomain.ErrNotConfigured
	}
	if req.Amount <= 0 || strings.TrimSpace(req.PhoneNumber) == "" || strings.TrimSpace(req.ExternalReference) == "" {
		return gatewaydomain.PushResult{}, gatewaydomain.ErrInvalidRequest
	}

	body := pushRequest{
		Amount:            req.Amount,
		PhoneNumber:       strings.TrimSpace(req.PhoneNumber),
		ChannelID:         c.channelID,
		Provider:          c.provider,
		ExternalReference: strings.TrimSpace(req.ExternalReference),
		CallbackURL:       strings.TrimSpace(req.CallbackURL),
	}

	var resp pushResponse
	if err := c.do(ctx, http.MethodPost, "/payments", body, &resp); err != nil {
		return gatewaydomain.PushResult{}, gatewaydomain.TransportError("payhero.initiate_push", err)
	}

	transactionID := strings.TrimSpace(resp.Reference)
	if transactionID == "" {
		transactionID = strings.TrimSpace(resp.CheckoutRequestID)
	}
	return gatewaydomain.PushResult{
		Success:       resp.Success,
		TransactionID: transactionID,
		Message:       firstNonEmpty(resp.ErrorMessage, resp.Message, resp.Status),
	}, nil
}

func (c *Client) QueryByReference(ctx context.Context, externalReference string) (gatewaydomain.StatusResult, error) {
	externalReference = strings.TrimSpace(externalReference)
	if externalReference == "" {
		return gatewaydomain.StatusResult{}, gatewaydomain.ErrInvalidRequest
	}
	if c.baseURL == "" || c.authToken == "" {
		return gatewaydomain.StatusResult{}, gatewaydomain.ErrNotConfigured
	}

	path := "/transaction-status?reference=" + url.QueryEscape(externalReference)
	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return gatewaydomain.StatusResult{}, gatewaydomain.TransportError("payhero.query_by_reference", err)
	}
	return resp.normalize(), nil
}

// normalize accepts both the flat and the data-wrapped status shapes.
func (r statusResponse) normalize() gatewaydomain.StatusResult {
	out := gatewaydomain.StatusResult{
		Message: firstNonEmpty(r.ErrorMessage, r.Message),
	}
	switch {
	case r.Data != nil && strings.TrimSpace(r.Data.Status) != "":
		out.Data = &gatewaydomain.StatusData{
			Status:  strings.TrimSpace(r.Data.Status),
			Message: strings.TrimSpace(r.Data.Message),
		}
	case strings.TrimSpace(r.Status) != "":
		out.Data = &gatewaydomain.StatusData{
			Status:  strings.TrimSpace(r.Status),
			Message: firstNonEmpty(r.ResultDesc, r.Message),
		}
	}
	if r.Success != nil {
		out.Success = *r.Success
	} else {
		out.Success = out.Data != nil
	}
	return out
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.authToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("payhero_request_failed_status_%d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode payhero response: %w", err)
	}
	return nil
}

// authorizationHeader accepts either a ready "Basic ..." header value or a
// raw "username:password" pair.
func authorizationHeader(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "basic ") {
		return token
	}
	if strings.Contains(token, ":") {
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(token))
	}
	return "Basic " + token
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
