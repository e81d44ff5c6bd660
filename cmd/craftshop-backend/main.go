package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"craftshop-backend/internal/config"
	"craftshop-backend/internal/env"
	"craftshop-backend/internal/infrastructure/notify"
	"craftshop-backend/internal/infrastructure/razorpay"
	"craftshop-backend/internal/infrastructure/repo"
	"craftshop-backend/internal/patterns"
	"craftshop-backend/internal/server"
	"craftshop-backend/internal/usecase"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

func main() {
	loaded := env.Load(".env", ".env.local")
	envDefaults := config.EnvDefaults()

	envName := flag.String("env", envDefaults.Env, "")
	port := flag.Int("port", envDefaults.Port, "")
	jwtSecret := flag.String("jwt-secret", envDefaults.JWTSecret, "")
	logJSON := flag.Bool("log-json", envDefaults.LogJSON, "")
	store := flag.String("store", envDefaults.Store, "memory|postgres|dynamodb")
	dsn := flag.String("postgres-dsn", envDefaults.PostgresDSN, "")
	payMock := flag.Bool("pay-mock", envDefaults.PayMock, "")
	deliveryFee := flag.String("delivery-fee", envDefaults.DeliveryFee, "")

	flag.Parse()

	cfg := envDefaults
	cfg.Env = *envName
	cfg.Port = *port
	cfg.JWTSecret = *jwtSecret
	cfg.LogJSON = *logJSON
	cfg.Store = *store
	cfg.PostgresDSN = *dsn
	cfg.PayMock = *payMock
	cfg.DeliveryFee = *deliveryFee

	if cfg.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetLevel(log.InfoLevel)
	if cfg.Env == "dev" {
		log.SetLevel(log.DebugLevel)
	}

	if err := run(cfg, loaded); err != nil {
		log.WithError(err).Fatal("craftshop-backend stopped")
	}
}

func run(cfg config.Config, envKeys []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	fee, err := decimal.NewFromString(cfg.DeliveryFee)
	if err != nil || fee.IsNegative() {
		return fmt.Errorf("config: invalid delivery fee %q", cfg.DeliveryFee)
	}
	log.WithFields(log.Fields{
		"env":      cfg.Env,
		"port":     cfg.Port,
		"store":    cfg.Store,
		"pay_mock": cfg.PayMock,
		"env_keys": len(envKeys),
	}).Info("starting")

	ctx := context.Background()
	products, orders, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	secret := cfg.RazorpayKeySecret
	if cfg.PayMock && secret == "" {
		log.Warn("razorpay mock mode with a throwaway secret")
		secret = "dev-mock-secret"
	}
	breaker := patterns.NewBreaker("razorpay", razorpay.BreakerSettings())
	gw, err := razorpay.NewClient(razorpay.Config{
		KeyID:     cfg.RazorpayKeyID,
		KeySecret: secret,
		BaseURL:   cfg.RazorpayBaseURL,
		Timeout:   cfg.GatewayTimeout,
		Mock:      cfg.PayMock,
	}, breaker)
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(ctx, cfg)
	if err != nil {
		return err
	}
	dispatcher := usecase.NewDispatcher(notifier, cfg.NotifyTimeout)

	catalog := &usecase.CatalogService{Repo: products}
	srv := server.New(cfg, server.Deps{
		Auth:    &usecase.AuthService{JWTSecret: cfg.JWTSecret, AdminEmail: cfg.AdminEmail, AdminPassword: cfg.AdminPass},
		Catalog: catalog,
		Cart:    &usecase.CartService{Catalog: catalog, DeliveryFee: fee},
		Orders: &usecase.OrderService{
			Orders:      orders,
			Products:    products,
			Gateway:     gw,
			Notify:      dispatcher,
			Currency:    cfg.Currency,
			DeliveryFee: fee,
		},
		Breaker: breaker,
		KeyID:   gw.KeyID(),
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("shutting down")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown")
	}
	dispatcher.Wait()
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (usecase.ProductRepo, usecase.OrderRepo, func(), error) {
	switch cfg.Store {
	case "postgres":
		pg, err := repo.NewPostgresRepo(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres: %w", err)
		}
		return pg, pg, func() { _ = pg.Close() }, nil
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("aws config: %w", err)
		}
		d := repo.NewDynamoRepo(dynamodb.NewFromConfig(awsCfg), cfg.DynamoOrdersTable, cfg.DynamoProductsTable)
		return d, d, func() {}, nil
	}
	return repo.NewMemoryProductRepo(), repo.NewMemoryOrderRepo(), func() {}, nil
}

func buildNotifier(ctx context.Context, cfg config.Config) (notify.Notifier, error) {
	fan := notify.Fanout{notify.Log{}}
	if cfg.TwilioSID != "" {
		sms, err := notify.NewTwilioSMS(notify.TwilioConfig{
			AccountSID: cfg.TwilioSID,
			AuthToken:  cfg.TwilioToken,
			From:       cfg.TwilioFrom,
			AdminPhone: cfg.AdminPhone,
			BaseURL:    cfg.TwilioBaseURL,
			Timeout:    cfg.NotifyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("twilio: %w", err)
		}
		fan = append(fan, sms)
	}
	if cfg.SQSQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		pub, err := notify.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL)
		if err != nil {
			return nil, fmt.Errorf("sqs: %w", err)
		}
		fan = append(fan, pub)
	}
	return fan, nil
}
