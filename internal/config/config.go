package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env        string
	Port       int
	JWTSecret  string
	LogJSON    bool
	AdminEmail string
	AdminPass  string `json:"-"`

	Store               string
	PostgresDSN         string `json:"-"`
	AWSRegion           string
	DynamoOrdersTable   string
	DynamoProductsTable string

	RazorpayKeyID     string
	RazorpayKeySecret string `json:"-"`
	RazorpayBaseURL   string
	PayMock           bool
	Currency          string
	DeliveryFee       string
	GatewayTimeout    time.Duration

	NotifyTimeout time.Duration
	TwilioSID     string
	TwilioToken   string `json:"-"`
	TwilioFrom    string
	TwilioBaseURL string
	AdminPhone    string
	SQSQueueURL   string
}

func Default() Config {
	return Config{
		Env:                 "dev",
		Port:                9000,
		JWTSecret:           "",
		LogJSON:             true,
		Store:               "memory",
		AWSRegion:           "ap-south-1",
		DynamoOrdersTable:   "orders",
		DynamoProductsTable: "products",
		RazorpayBaseURL:     "https://api.razorpay.com",
		PayMock:             true,
		Currency:            "INR",
		DeliveryFee:         "50",
		GatewayTimeout:      8 * time.Second,
		NotifyTimeout:       5 * time.Second,
		TwilioBaseURL:       "https://api.twilio.com",
	}
}

func EnvDefaults() Config {
	return fromEnv(Default())
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("port out of range")
	}
	if c.JWTSecret == "" && c.Env != "dev" {
		return errors.New("jwt secret required outside dev")
	}
	switch c.Store {
	case "memory":
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("postgres store requires a dsn")
		}
	case "dynamodb":
		if c.DynamoOrdersTable == "" || c.DynamoProductsTable == "" {
			return errors.New("dynamodb store requires table names")
		}
	default:
		return errors.New("unknown store " + strconv.Quote(c.Store))
	}
	if !c.PayMock && (c.RazorpayKeyID == "" || c.RazorpayKeySecret == "") {
		return errors.New("razorpay key id and secret required when pay mock is off")
	}
	if c.PayMock && c.RazorpayKeySecret == "" && c.Env != "dev" {
		return errors.New("razorpay key secret required outside dev")
	}
	return nil
}

func fromEnv(c Config) Config {
	if v := os.Getenv("CRAFTSHOP_ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("CRAFTSHOP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("CRAFTSHOP_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("CRAFTSHOP_LOG_JSON"); v != "" {
		c.LogJSON = parseBool(v, c.LogJSON)
	}
	if v := os.Getenv("CRAFTSHOP_ADMIN_EMAIL"); v != "" {
		c.AdminEmail = v
	}
	if v := os.Getenv("CRAFTSHOP_ADMIN_PASSWORD"); v != "" {
		c.AdminPass = v
	}
	if v := os.Getenv("CRAFTSHOP_STORE"); v != "" {
		c.Store = v
	}
	if v := os.Getenv("CRAFTSHOP_POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.AWSRegion = v
	}
	if v := os.Getenv("CRAFTSHOP_DYNAMO_ORDERS_TABLE"); v != "" {
		c.DynamoOrdersTable = v
	}
	if v := os.Getenv("CRAFTSHOP_DYNAMO_PRODUCTS_TABLE"); v != "" {
		c.DynamoProductsTable = v
	}
	if v := os.Getenv("RAZORPAY_KEY_ID"); v != "" {
		c.RazorpayKeyID = v
	}
	if v := os.Getenv("RAZORPAY_KEY_SECRET"); v != "" {
		c.RazorpayKeySecret = v
	}
	if v := os.Getenv("CRAFTSHOP_RAZORPAY_BASE_URL"); v != "" {
		c.RazorpayBaseURL = v
	}
	if v := os.Getenv("CRAFTSHOP_PAY_MOCK"); v != "" {
		c.PayMock = parseBool(v, c.PayMock)
	}
	if v := os.Getenv("CRAFTSHOP_CURRENCY"); v != "" {
		c.Currency = v
	}
	if v := os.Getenv("CRAFTSHOP_DELIVERY_FEE"); v != "" {
		c.DeliveryFee = v
	}
	if v := os.Getenv("CRAFTSHOP_GATEWAY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.GatewayTimeout = d
		}
	}
	if v := os.Getenv("CRAFTSHOP_NOTIFY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.NotifyTimeout = d
		}
	}
	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" {
		c.TwilioSID = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		c.TwilioToken = v
	}
	if v := os.Getenv("TWILIO_PHONE_NUMBER"); v != "" {
		c.TwilioFrom = v
	}
	if v := os.Getenv("ADMIN_PHONE_NUMBER"); v != "" {
		c.AdminPhone = v
	}
	if v := os.Getenv("CRAFTSHOP_SQS_QUEUE_URL"); v != "" {
		c.SQSQueueURL = v
	}
	return c
}

func parseBool(v string, def bool) bool {
	switch v {
	case "1", "true", "TRUE":
		return true
	case "0", "false", "FALSE":
		return false
	}
	return def
}
