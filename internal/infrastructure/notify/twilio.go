package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"craftshop-backend/internal/domain"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	AdminPhone string
	BaseURL    string
	Timeout    time.Duration
}

// TwilioSMS texts the customer on every event and the admin on new orders.
type TwilioSMS struct {
	cfg  TwilioConfig
	http *resty.Client
}

func NewTwilioSMS(cfg TwilioConfig) (*TwilioSMS, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil, errors.New("twilio sid, token and from number required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.twilio.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken)
	return &TwilioSMS{cfg: cfg, http: hc}, nil
}

type twilioMessage struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (t *TwilioSMS) Notify(ctx context.Context, ev Event, o domain.Order) error {
	var errs []error
	if o.Address.Phone != "" {
		if err := t.send(ctx, o.Address.Phone, customerMessage(ev, o)); err != nil {
			errs = append(errs, fmt.Errorf("customer sms: %w", err))
		}
	}
	if ev == OrderCreated && t.cfg.AdminPhone != "" {
		if err := t.send(ctx, t.cfg.AdminPhone, adminMessage(o)); err != nil {
			errs = append(errs, fmt.Errorf("admin sms: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (t *TwilioSMS) send(ctx context.Context, to, body string) error {
	var out, fail twilioMessage
	resp, err := t.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"To": to, "From": t.cfg.From, "Body": body}).
		SetResult(&out).
		SetError(&fail).
		Post("/2010-04-01/Accounts/" + t.cfg.AccountSID + "/Messages.json")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("twilio status %d: %s", resp.StatusCode(), fail.Message)
	}
	log.WithFields(log.Fields{"sid": out.SID, "status": out.Status}).Debug("sms queued")
	return nil
}
