// Package mpesa wraps the Daraja STK push API: authenticate, initiate a
// push, and query its status. Every transport error, non-2xx response, or
// malformed body surfaces as *models.GatewayError.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"biashara-service/config"
	"biashara-service/internal/models"
)

type Client struct {
	cfg        config.MpesaConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a new gateway client
func NewClient(cfg config.MpesaConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// STKPushResponse is the provider's answer to a push initiation
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// STKQueryResponse is the provider's answer to a status query
type STKQueryResponse struct {
	ResponseCode      string `json:"ResponseCode"`
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        string `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
}

// Authenticate fetches a fresh OAuth access token. Tokens are short-lived
// and credentials may rotate, so there is no caching across calls.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.AuthURL, nil)
	if err != nil {
		return "", &models.GatewayError{Op: "authenticate", Detail: "build request", Err: err}
	}

	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &models.GatewayError{Op: "authenticate", Detail: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &models.GatewayError{Op: "authenticate", Detail: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", &models.GatewayError{Op: "authenticate", Detail: "malformed response", Err: err}
	}
	if auth.AccessToken == "" {
		return "", &models.GatewayError{Op: "authenticate", Detail: "empty access token"}
	}

	return auth.AccessToken, nil
}

// STKPush initiates a push prompt on the customer's phone. The amount is
// truncated to whole shillings; the provider only takes integers.
func (c *Client) STKPush(ctx context.Context, phone string, amount float64, accountReference, description string) (*STKPushResponse, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := c.generatePassword()
	phone = NormalizePhone(phone)

	payload := map[string]interface{}{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            int(amount),
		"PartyA":            phone,
		"PartyB":            c.cfg.ShortCode,
		"PhoneNumber":       phone,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  accountReference,
		"TransactionDesc":   description,
	}

	var pushResp STKPushResponse
	if err := c.post(ctx, "stk_push", c.cfg.STKPushURL, token, payload, &pushResp); err != nil {
		return nil, err
	}
	if pushResp.CheckoutRequestID == "" {
		return nil, &models.GatewayError{Op: "stk_push", Detail: "missing CheckoutRequestID"}
	}

	return &pushResp, nil
}

// QueryStatus polls the outcome of a previously initiated push. It is an
// opportunistic alternative to the callback, not required for correctness.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := c.generatePassword()
	payload := map[string]interface{}{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	var queryResp STKQueryResponse
	if err := c.post(ctx, "query", c.cfg.QueryURL, token, payload, &queryResp); err != nil {
		return nil, err
	}

	return &queryResp, nil
}

func (c *Client) post(ctx context.Context, op, url, token string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &models.GatewayError{Op: op, Detail: "marshal payload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &models.GatewayError{Op: op, Detail: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.GatewayError{Op: op, Detail: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &models.GatewayError{Op: op, Detail: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.GatewayError{Op: op, Detail: "malformed response", Err: err}
	}

	return nil
}

// generatePassword derives the push password: base64 of
// shortcode + passkey + timestamp, with the timestamp echoed back in the
// request body.
func (c *Client) generatePassword() (password, timestamp string) {
	timestamp = c.now().Format("20060102150405")
	raw := c.cfg.ShortCode + c.cfg.Passkey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw)), timestamp
}

// NormalizePhone rewrites a Kenyan phone number to canonical 254... form:
// a leading local zero or a +254 prefix is rewritten, and anything else
// gets the country code prepended.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	switch {
	case strings.HasPrefix(phone, "0"):
		return "254" + phone[1:]
	case strings.HasPrefix(phone, "+254"):
		return phone[1:]
	case strings.HasPrefix(phone, "254"):
		return phone
	default:
		return "254" + phone
	}
}
