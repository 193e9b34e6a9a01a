package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"returns-desk/internal/core/config"
	"returns-desk/internal/core/kv"
	"returns-desk/internal/core/logger"
	"returns-desk/internal/core/proxy"
	"returns-desk/internal/core/server"
	notifyadapter "returns-desk/internal/features/notifications/adapters"
	notifyports "returns-desk/internal/features/notifications/ports"
	notifyservice "returns-desk/internal/features/notifications/service"
	orderadapter "returns-desk/internal/features/orders/adapters"
	orderhandler "returns-desk/internal/features/orders/handler"
	orderservice "returns-desk/internal/features/orders/service"
	paymentadapter "returns-desk/internal/features/payments/adapters"
	paymentports "returns-desk/internal/features/payments/ports"
	paymentservice "returns-desk/internal/features/payments/service"
	returnadapter "returns-desk/internal/features/returns/adapters"
	returndomain "returns-desk/internal/features/returns/domain"
	returnhandler "returns-desk/internal/features/returns/handler"
	returnservice "returns-desk/internal/features/returns/service"
	trackingadapter "returns-desk/internal/features/tracking/adapters"
	trackinghandler "returns-desk/internal/features/tracking/handler"
	"returns-desk/internal/features/tracking/ports"
	trackingservice "returns-desk/internal/features/tracking/service"

	"go.uber.org/zap"
)

// @title Returns Desk API
// @version 1.0
// @description Return, refund and exchange workflow with carrier shipment reconciliation.
// @contact.name API Support
// @license.name MIT
// @host localhost:8080
// @BasePath /
func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Environment, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	l := logger.Get()
	l.Info("Application starting",
		zap.String("environment", cfg.Environment),
		zap.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Redis
	store, err := kv.NewRedisAdapter(cfg.Redis.URL)
	if err != nil {
		l.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		l.Fatal("Redis Health Check Failed", zap.Error(err))
	}
	l.Info("Redis connection verified")

	// Initialize Catalog and run Health Check
	catalog := orderadapter.NewWooCommerceCatalog(cfg.WooCommerce)
	if err := catalog.HealthCheck(ctx); err != nil {
		l.Fatal("WooCommerce Health Check Failed", zap.Error(err))
	}
	l.Info("WooCommerce connection verified")

	// Initialize Notifications
	sinks := []notifyports.Sink{notifyadapter.NewStreamSink(store, cfg.Notifications.EventsStream)}
	if cfg.Notifications.SendGridAPIKey != "" {
		sinks = append(sinks, notifyadapter.NewSendGridSink(cfg.Notifications.SendGridAPIKey, cfg.Notifications.SendGridFromEmail))
	}
	if brokers := cfg.Notifications.Brokers(); len(brokers) > 0 {
		kafkaSink := notifyadapter.NewKafkaSink(brokers, cfg.Notifications.KafkaTopic)
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}
	dispatcher := notifyservice.NewDispatcher(0, sinks...)
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	go dispatcher.Run(dispatchCtx)

	// Initialize Payments
	var gateway paymentports.Gateway = paymentadapter.NewLogGateway()
	if cfg.Payments.StripeSecretKey != "" {
		stripeGateway, err := paymentadapter.NewStripeGateway(cfg.Payments.StripeSecretKey, cfg.Payments.Currency)
		if err != nil {
			l.Fatal("Failed to create Stripe gateway", zap.Error(err))
		}
		gateway = stripeGateway
	}
	settler := paymentservice.NewSettler(paymentadapter.NewRedisLedger(store), gateway)
	l.Info("Settlement gateway ready", zap.String("gateway", gateway.Name()))

	// Initialize Order Service & Handler
	orderRepo := orderadapter.NewRedisOrderRepository(store)
	registry := trackingadapter.NewRedisRegistry(store)
	orderSvc := orderservice.NewOrderService(orderRepo, registry)
	orderHdl := orderhandler.NewOrderHandler(orderSvc)

	// Initialize Return Service & Handler
	returnSvc := returnservice.NewReturnService(
		returnadapter.NewRedisReturnRepository(store),
		orderRepo,
		catalog,
		dispatcher,
		settler,
		returndomain.DefaultPolicy(
			cfg.Returns.Window(),
			cfg.Returns.ShippingFee,
			cfg.Returns.ChangeMindRefundPercent,
		),
		cfg.Payments.Currency,
	)
	returnHdl := returnhandler.NewReturnHandler(returnSvc)

	// Initialize Tracking Providers
	proxySettings := proxy.FromConfig(cfg.Proxy)
	var providers []ports.CarrierProvider
	if cfg.Carrier.Token != "" {
		providers = append(providers, trackingadapter.NewGHNAPIProvider(cfg.Carrier, proxySettings))
	}
	if cfg.Carrier.PortalURL != "" {
		providers = append(providers, trackingadapter.NewGHNPortalProvider(cfg.Carrier.PortalURL, proxySettings))
	}

	// Initialize Tracking Service & Handler
	reconciler := trackingservice.NewReconciler(
		trackingadapter.NewRedisTimelineStore(store),
		orderRepo,
		registry,
		providers,
	)
	trackingHdl := trackinghandler.NewTrackingHandler(reconciler)

	if interval := cfg.Carrier.PollInterval(); interval > 0 && len(providers) > 0 {
		poller := trackingservice.NewPoller(registry, reconciler, interval, cfg.Carrier.PollConcurrency)
		go poller.Run(ctx)
	}

	srv := server.New(cfg)

	// Register Routes
	orderHdl.RegisterRoutes(srv.App)
	returnHdl.RegisterRoutes(srv.App)
	trackingHdl.RegisterRoutes(srv.App)
	srv.RegisterHealth(map[string]server.HealthCheck{
		"redis":       store.Ping,
		"woocommerce": catalog.HealthCheck,
	})

	go func() {
		if err := srv.Run(); err != nil {
			l.Error("Server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	l.Info("Shutting down")

	if err := srv.Shutdown(10 * time.Second); err != nil {
		l.Error("Server shutdown failed", zap.Error(err))
	}
	stopDispatch()
	dispatcher.Wait()
}
