package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"craftshop-backend/internal/patterns"

	"github.com/go-resty/resty/v2"
)

// ErrUnavailable wraps every failure to reach the gateway or get a usable
// answer from it.
var ErrUnavailable = errors.New("payment gateway unavailable")

// ErrIntentNotFound is returned when the gateway has no order with the given id.
var ErrIntentNotFound = errors.New("payment intent not found")

// StatusError is a non-2xx reply from the gateway.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("razorpay status %d: %s", e.Code, e.Message)
}

// BreakerSettings are the defaults with client errors not counted as
// failures, so rejected requests cannot open the breaker for everyone.
func BreakerSettings() patterns.BreakerSettings {
	s := patterns.DefaultBreakerSettings()
	s.IsSuccessful = gatewayHealthy
	return s
}

func gatewayHealthy(err error) bool {
	if err == nil {
		return true
	}
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
}

type Config struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
	// Mock mints intents locally instead of calling the gateway.
	Mock bool
}

type Intent struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type Client struct {
	keyID   string
	secret  []byte
	mock    bool
	http    *resty.Client
	breaker *patterns.Breaker

	mu     sync.Mutex
	minted map[string]Intent
}

func NewClient(cfg Config, breaker *patterns.Breaker) (*Client, error) {
	if strings.TrimSpace(cfg.KeySecret) == "" {
		return nil, fmt.Errorf("razorpay key secret required")
	}
	if !cfg.Mock && strings.TrimSpace(cfg.KeyID) == "" {
		return nil, fmt.Errorf("razorpay key id required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = patterns.DefaultTimeout
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.razorpay.com"
	}
	if breaker == nil {
		breaker = patterns.NewBreaker("razorpay", BreakerSettings())
	}
	hc := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetBasicAuth(cfg.KeyID, cfg.KeySecret).
		SetHeader("Content-Type", "application/json")
	return &Client{
		keyID:   cfg.KeyID,
		secret:  []byte(cfg.KeySecret),
		mock:    cfg.Mock,
		http:    hc,
		breaker: breaker,
		minted:  map[string]Intent{},
	}, nil
}

func (c *Client) KeyID() string { return c.keyID }

type createOrderReq struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateIntent mints a gateway order for amountMinor units of currency.
func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (Intent, error) {
	if c.mock {
		intent := Intent{ID: "order_mock_" + randomHex(8), Amount: amountMinor, Currency: currency, Receipt: receipt}
		c.mu.Lock()
		c.minted[intent.ID] = intent
		c.mu.Unlock()
		return intent, nil
	}
	intent, err := c.call(func() (*resty.Response, *Intent, *apiError, error) {
		var intent Intent
		var apiErr apiError
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(createOrderReq{Amount: amountMinor, Currency: currency, Receipt: receipt}).
			SetResult(&intent).
			SetError(&apiErr).
			Post("/v1/orders")
		return resp, &intent, &apiErr, err
	})
	if err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return intent, nil
}

// FetchIntent looks up a gateway order so its amount can be checked
// against what is being placed.
func (c *Client) FetchIntent(ctx context.Context, id string) (Intent, error) {
	if c.mock {
		c.mu.Lock()
		intent, ok := c.minted[id]
		c.mu.Unlock()
		if !ok {
			return Intent{}, ErrIntentNotFound
		}
		return intent, nil
	}
	intent, err := c.call(func() (*resty.Response, *Intent, *apiError, error) {
		var intent Intent
		var apiErr apiError
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&intent).
			SetError(&apiErr).
			Get("/v1/orders/" + url.PathEscape(id))
		return resp, &intent, &apiErr, err
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusNotFound || se.Code == http.StatusBadRequest) {
			return Intent{}, ErrIntentNotFound
		}
		return Intent{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return intent, nil
}

func (c *Client) call(send func() (*resty.Response, *Intent, *apiError, error)) (Intent, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		resp, intent, apiErr, err := send()
		if err != nil {
			return nil, fmt.Errorf("razorpay request: %w", err)
		}
		if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
			msg := apiErr.Error.Description
			if msg == "" {
				msg = strings.TrimSpace(resp.String())
			}
			return nil, &StatusError{Code: resp.StatusCode(), Message: msg}
		}
		if intent.ID == "" {
			return nil, errors.New("razorpay response missing order id")
		}
		return *intent, nil
	})
	if err != nil {
		return Intent{}, err
	}
	return out.(Intent), nil
}

// Sign computes the checkout signature the gateway hands to the client.
func (c *Client) Sign(intentID, paymentID string) string {
	m := hmac.New(sha256.New, c.secret)
	m.Write([]byte(intentID + "|" + paymentID))
	return hex.EncodeToString(m.Sum(nil))
}

// VerifySignature compares in constant time.
func (c *Client) VerifySignature(intentID, paymentID, signature string) bool {
	if intentID == "" || paymentID == "" || signature == "" {
		return false
	}
	want := []byte(c.Sign(intentID, paymentID))
	return hmac.Equal(want, []byte(signature))
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
