package pesapal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Franc-dev/donate-artist/internal/config"
	gatewaydomain "github.com/Franc-dev/donate-artist/internal/gateway/domain"
)

const (
	maxBodyBytes    = 1 << 20
	tokenSafetySkew = time.Minute
)

var errRemote = errors.New("pesapal_remote_error")

// Client talks to the Pesapal v3 API. Access tokens are cached until shortly
// before they expire.
type Client struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	ipnID          string
	callbackURL    string
	currency       string
	countryCode    string
	client         *http.Client
	now            func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg config.PesapalConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		consumerKey:    strings.TrimSpace(cfg.ConsumerKey),
		consumerSecret: strings.TrimSpace(cfg.ConsumerSecret),
		ipnID:          strings.TrimSpace(cfg.IPNID),
		callbackURL:    strings.TrimSpace(cfg.CallbackURL),
		currency:       strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		countryCode:    strings.ToUpper(strings.TrimSpace(cfg.CountryCode)),
		client:         &http.Client{Timeout: timeout},
		now:            time.Now,
	}
}

type remoteError struct {
	ErrorType string `json:"error_type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type tokenRequest struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

type tokenResponse struct {
	Token      string       `json:"token"`
	ExpiryDate string       `json:"expiryDate"`
	Error      *remoteError `json:"error"`
	Status     string       `json:"status"`
}

type billingAddress struct {
	EmailAddress string `json:"email_address"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	CountryCode  string `json:"country_code"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

type orderRequest struct {
	ID             string         `json:"id"`
	Currency       string         `json:"currency"`
	Amount         float64        `json:"amount"`
	Description    string         `json:"description"`
	CallbackURL    string         `json:"callback_url"`
	NotificationID string         `json:"notification_id,omitempty"`
	BillingAddress billingAddress `json:"billing_address"`
}

type orderResponse struct {
	OrderTrackingID   string       `json:"order_tracking_id"`
	MerchantReference string       `json:"merchant_reference"`
	RedirectURL       string       `json:"redirect_url"`
	Error             *remoteError `json:"error"`
	Status            string       `json:"status"`
}

type transactionStatusResponse struct {
	PaymentStatusDescription string       `json:"payment_status_description"`
	StatusCode               int          `json:"status_code"`
	Description              string       `json:"description"`
	Message                  string       `json:"message"`
	MerchantReference        string       `json:"merchant_reference"`
	ConfirmationCode         string       `json:"confirmation_code"`
	Error                    *remoteError `json:"error"`
	Status                   string       `json:"status"`
}

func (c *Client) InitiateRedirect(ctx context.Context, req gatewaydomain.RedirectRequest) (gatewaydomain.RedirectResult, error) {
	if req.Amount <= 0 || strings.TrimSpace(req.Customer.Email) == "" {
		return gatewaydomain.RedirectResult{}, gatewaydomain.ErrInvalidRequest
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return gatewaydomain.RedirectResult{}, err
	}

	reference := strings.TrimSpace(req.MerchantReference)
	if reference == "" {
		reference = uuid.NewString()
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = c.currency
	}
	country := strings.ToUpper(strings.TrimSpace(req.CountryCode))
	if country == "" {
		country = c.countryCode
	}

	body := orderRequest{
		ID:             reference,
		Currency:       currency,
		Amount:         req.Amount,
		Description:    truncate(strings.TrimSpace(req.Description), 100),
		CallbackURL:    c.callbackURL,
		NotificationID: c.ipnID,
		BillingAddress: billingAddress{
			EmailAddress: strings.TrimSpace(req.Customer.Email),
			PhoneNumber:  strings.TrimSpace(req.Customer.Phone),
			CountryCode:  country,
			FirstName:    strings.TrimSpace(req.Customer.FirstName),
			LastName:     strings.TrimSpace(req.Customer.LastName),
		},
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/api/Transactions/SubmitOrderRequest", token, body, &resp); err != nil {
		return gatewaydomain.RedirectResult{}, gatewaydomain.TransportError("pesapal.initiate_redirect", err)
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return gatewaydomain.RedirectResult{}, gatewaydomain.TransportError("pesapal.initiate_redirect", fmt.Errorf("%w: %s", errRemote, resp.Error.Message))
	}
	if strings.TrimSpace(resp.OrderTrackingID) == "" || strings.TrimSpace(resp.RedirectURL) == "" {
		return gatewaydomain.RedirectResult{}, gatewaydomain.TransportError("pesapal.initiate_redirect", errors.New("missing order tracking id"))
	}

	return gatewaydomain.RedirectResult{
		OrderTrackingID:   resp.OrderTrackingID,
		RedirectURL:       resp.RedirectURL,
		MerchantReference: firstNonEmpty(resp.MerchantReference, reference),
	}, nil
}

func (c *Client) Verify(ctx context.Context, orderTrackingID string) (gatewaydomain.StatusResult, error) {
	orderTrackingID = strings.TrimSpace(orderTrackingID)
	if orderTrackingID == "" {
		return gatewaydomain.StatusResult{}, gatewaydomain.ErrInvalidRequest
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return gatewaydomain.StatusResult{}, err
	}

	path := "/api/Transactions/GetTransactionStatus?orderTrackingId=" + url.QueryEscape(orderTrackingID)
	var resp transactionStatusResponse
	if err := c.do(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		return gatewaydomain.StatusResult{}, gatewaydomain.TransportError("pesapal.verify", err)
	}

	if resp.Error != nil && resp.Error.Message != "" {
		return gatewaydomain.StatusResult{Success: false, Message: resp.Error.Message}, nil
	}

	status, message := mapStatusCode(resp)
	return gatewaydomain.StatusResult{
		Success: true,
		Data: &gatewaydomain.StatusData{
			Status:  status,
			Message: message,
		},
	}, nil
}

// mapStatusCode follows the Pesapal status codes: 0 invalid, 1 completed,
// 2 failed, 3 reversed.
func mapStatusCode(resp transactionStatusResponse) (string, string) {
	message := firstNonEmpty(resp.Description, resp.Message)
	switch resp.StatusCode {
	case 1:
		return "completed", message
	case 2:
		return "failed", message
	case 3:
		return "failed", firstNonEmpty(message, "Payment reversed")
	}
	desc := strings.ToLower(strings.TrimSpace(resp.PaymentStatusDescription))
	if desc == "" || desc == "invalid" {
		return "pending", message
	}
	return desc, message
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.baseURL == "" || c.consumerKey == "" || c.consumerSecret == "" {
		return "", gatewaydomain.ErrNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	var resp tokenResponse
	body := tokenRequest{ConsumerKey: c.consumerKey, ConsumerSecret: c.consumerSecret}
	if err := c.do(ctx, http.MethodPost, "/api/Auth/RequestToken", "", body, &resp); err != nil {
		return "", gatewaydomain.TransportError("pesapal.request_token", err)
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return "", gatewaydomain.TransportError("pesapal.request_token", fmt.Errorf("%w: %s", errRemote, resp.Error.Message))
	}
	if strings.TrimSpace(resp.Token) == "" {
		return "", gatewaydomain.TransportError("pesapal.request_token", errors.New("empty token"))
	}

	expiry := c.now().Add(4 * time.Minute)
	if parsed, err := time.Parse(time.RFC3339Nano, resp.ExpiryDate); err == nil {
		expiry = parsed.Add(-tokenSafetySkew)
	}
	c.token = resp.Token
	c.tokenExpiry = expiry
	return c.token, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body any, out any) error {
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
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
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
		return fmt.Errorf("pesapal_request_failed_status_%d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode pesapal response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
