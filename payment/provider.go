package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// ErrProviderRejected signals the provider refused the charge request itself
// (as opposed to reporting a failed outcome later via callback).
var ErrProviderRejected = errors.New("payment: provider rejected charge")

// ChargeRequest is an STK-push style prompt sent to the subscriber's handset.
type ChargeRequest struct {
	Phone       string
	Amount      int64
	AccountRef  string
	Description string
}

// Provider initiates a charge and returns the provider's correlation
// reference; the outcome arrives later through the callback.
type Provider interface {
	RequestCharge(ctx context.Context, req ChargeRequest) (string, error)
}

// ClientConfig carries the mobile-money gateway settings.
type ClientConfig struct {
	BaseURL     string
	Shortcode   string
	Passkey     string
	CallbackURL string
}

// Client calls the mobile-money gateway over HTTP.
type Client struct {
	http *resty.Client
	cfg  ClientConfig
}

func NewClient(cfg ClientConfig) *Client {
	return &Client{
		http: resty.New().SetBaseURL(cfg.BaseURL),
		cfg:  cfg,
	}
}

type chargeRequestBody struct {
	Shortcode   string `json:"shortcode"`
	Passkey     string `json:"passkey"`
	Phone       string `json:"phone"`
	Amount      int64  `json:"amount"`
	AccountRef  string `json:"account_reference"`
	Description string `json:"description"`
	CallbackURL string `json:"callback_url"`
}

type chargeResponseBody struct {
	CheckoutRequestID string `json:"checkout_request_id"`
	ResponseCode      string `json:"response_code"`
	ResponseDesc      string `json:"response_description"`
}

func (c *Client) RequestCharge(ctx context.Context, req ChargeRequest) (string, error) {
	var out chargeResponseBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chargeRequestBody{
			Shortcode:   c.cfg.Shortcode,
			Passkey:     c.cfg.Passkey,
			Phone:       req.Phone,
			Amount:      req.Amount,
			AccountRef:  req.AccountRef,
			Description: req.Description,
			CallbackURL: c.cfg.CallbackURL,
		}).
		SetResult(&out).
		Post("/stkpush/v1/processrequest")
	if err != nil {
		return "", fmt.Errorf("payment: charge request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK || out.ResponseCode != "0" {
		return "", fmt.Errorf("%w: status=%d code=%q desc=%q",
			ErrProviderRejected, resp.StatusCode(), out.ResponseCode, out.ResponseDesc)
	}
	if out.CheckoutRequestID == "" {
		return "", fmt.Errorf("%w: empty checkout request id", ErrProviderRejected)
	}
	return out.CheckoutRequestID, nil
}
