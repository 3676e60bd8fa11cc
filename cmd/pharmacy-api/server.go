package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	_ "github.com/MikeMC777/healthnet-pharmacy/docs"
	"github.com/MikeMC777/healthnet-pharmacy/internal/cart"
	"github.com/MikeMC777/healthnet-pharmacy/internal/config"
	"github.com/MikeMC777/healthnet-pharmacy/internal/delivery"
	"github.com/MikeMC777/healthnet-pharmacy/internal/events"
	"github.com/MikeMC777/healthnet-pharmacy/internal/httpx"
	"github.com/MikeMC777/healthnet-pharmacy/internal/inventory"
	"github.com/MikeMC777/healthnet-pharmacy/internal/memstore"
	"github.com/MikeMC777/healthnet-pharmacy/internal/order"
	"github.com/MikeMC777/healthnet-pharmacy/internal/payment"
)

// repos is the storage backend selected by STORE_DRIVER.
type repos struct {
	inventory inventory.Repository
	carts     cart.Repository
	orders    order.Repository
	payments  payment.Repository
	areas     delivery.Repository
	close     func()
}

func openRepos(ctx context.Context, cfg config.Config) (*repos, error) {
	if cfg.StoreDriver == config.DriverMemory {
		st := memstore.New()
		return &repos{
			inventory: st.Inventory(),
			carts:     st.Carts(),
			orders:    st.Orders(),
			payments:  st.Payments(),
			areas:     st.Areas(),
			close:     func() {},
		}, nil
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	db, err := pgxpool.New(ctxPing, cfg.PostgresDSN)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres pool")
	}
	if err := db.Ping(ctxPing); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return &repos{
		inventory: inventory.NewPGRepo(db),
		carts:     cart.NewPGRepo(db),
		orders:    order.NewPGRepo(db),
		payments:  payment.NewPGRepo(db),
		areas:     delivery.NewPGRepo(db),
		close:     db.Close,
	}, nil
}

// app holds the services the HTTP handlers are built from.
type app struct {
	inventory *inventory.Service
	carts     *cart.Service
	orders    *order.Service
	payments  *payment.Service
	delivery  *delivery.Service

	jwtSecret   string
	apiKeyHash  string
	frontendURL string
	corsOrigins []string
}

func pricing(cfg config.Config) delivery.Pricing {
	return delivery.Pricing{
		DefaultFee:        cfg.DeliveryDefaultFee,
		FreeThreshold:     cfg.DeliveryFreeThreshold,
		DiscountThreshold: cfg.DeliveryDiscountThreshold,
	}
}

func newApp(cfg config.Config, r *repos, gw payment.Gateway, pub events.Publisher, logger log.FieldLogger) *app {
	inv := inventory.NewService(r.inventory, cfg.LowStockThreshold, logger.WithField("component", "inventory"))
	dlv := delivery.NewService(r.areas, pricing(cfg), logger.WithField("component", "delivery"))
	carts := cart.NewService(r.carts, cfg.TaxRate, logger.WithField("component", "cart"))
	orders := order.NewService(r.orders, dlv, carts, pub,
		order.Config{TaxRate: cfg.TaxRate, Pricing: pricing(cfg)}, logger.WithField("component", "order"))
	pays := payment.NewService(r.payments, r.orders, gw, pub, payment.Config{
		Currency:      cfg.Currency,
		CallbackURL:   cfg.PaystackCallbackURL,
		WebhookSecret: cfg.PaystackWebhookSecret,
	}, logger.WithField("component", "payment"))
	return &app{
		inventory:   inv,
		carts:       carts,
		orders:      orders,
		payments:    pays,
		delivery:    dlv,
		jwtSecret:   cfg.JWTSecret,
		apiKeyHash:  cfg.AdminAPIKeyHash,
		frontendURL: cfg.FrontendURL,
		corsOrigins: cfg.CORSOrigins,
	}
}

func newRouter(a *app, logger log.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger(logger), httpx.Metrics(), httpx.CORS(a.corsOrigins))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/delivery/areas", listAreasHandler(a.delivery))
	r.POST("/delivery/calculate-fee", calculateDeliveryFeeHandler(a.delivery))
	r.POST("/payments/webhook/paystack", paystackWebhookHandler(a.payments))
	r.GET("/payments/callback", paymentCallbackHandler(a.payments, a.frontendURL))

	authed := r.Group("/")
	authed.Use(httpx.Authenticate(a.jwtSecret))
	{
		authed.GET("/cart", getCartHandler(a.carts))
		authed.POST("/cart/items", addCartItemHandler(a.carts))
		authed.PUT("/cart/items/:id", updateCartItemHandler(a.carts))
		authed.DELETE("/cart/items/:id", removeCartItemHandler(a.carts))
		authed.DELETE("/cart", clearCartHandler(a.carts))
		authed.GET("/cart/validate", validateCartHandler(a.carts))
		authed.POST("/cart/checkout", checkoutHandler(a.orders))

		authed.GET("/orders", listOrdersHandler(a.orders))
		authed.POST("/orders", createOrderHandler(a.orders))
		authed.GET("/orders/statistics", orderStatisticsHandler(a.orders))
		authed.GET("/orders/:id", getOrderHandler(a.orders))
		authed.POST("/orders/:id/confirm-delivery", confirmDeliveryHandler(a.orders))
		authed.POST("/orders/:id/cancel", cancelOrderHandler(a.orders))

		authed.POST("/payments/initialize", initializePaymentHandler(a.payments))
		authed.POST("/payments/verify", verifyPaymentHandler(a.payments))
		authed.POST("/payments/calculate-fees", calculatePaymentFeesHandler())
		authed.GET("/payments/history", paymentHistoryHandler(a.payments))
		authed.GET("/payments/:id", getPaymentHandler(a.payments))
	}

	admin := r.Group("/admin")
	admin.Use(httpx.RequireAdmin(a.jwtSecret, a.apiKeyHash))
	{
		admin.GET("/inventory", listDrugsHandler(a.inventory))
		admin.GET("/inventory/statistics", inventoryStatisticsHandler(a.inventory))
		admin.GET("/inventory/low-stock-alerts", lowStockAlertsHandler(a.inventory))
		admin.GET("/inventory/report", inventoryReportHandler(a.inventory))
		admin.GET("/inventory/report.xlsx", inventoryReportXLSXHandler(a.inventory))
		admin.POST("/inventory", createDrugHandler(a.inventory))
		admin.POST("/inventory/bulk-update-stock", bulkUpdateStockHandler(a.inventory))
		admin.GET("/inventory/:id", getDrugHandler(a.inventory))
		admin.PUT("/inventory/:id", updateDrugHandler(a.inventory))
		admin.PUT("/inventory/:id/stock", setStockHandler(a.inventory))
		admin.POST("/inventory/:id/restock", restockHandler(a.inventory))
		admin.PUT("/inventory/:id/status", setDrugStatusHandler(a.inventory))

		admin.GET("/orders", adminListOrdersHandler(a.orders))
		admin.GET("/orders/analytics", orderAnalyticsHandler(a.orders))
		admin.GET("/orders/requires-attention", requiresAttentionHandler(a.orders))
		admin.GET("/orders/:id", getOrderHandler(a.orders))
		admin.PUT("/orders/:id/status", updateOrderStatusHandler(a.orders))
		admin.POST("/orders/:id/mark-delivering", markDeliveringHandler(a.orders))

		admin.POST("/payments/:reference/refund", refundPaymentHandler(a.payments))
		admin.GET("/payments/logs/:id", paymentLogsHandler(a.payments))

		admin.GET("/delivery/statistics", deliveryStatisticsHandler(a.delivery))
		admin.GET("/delivery/routes", deliveryRoutesHandler(a.delivery))
		admin.GET("/delivery/areas", listAllAreasHandler(a.delivery))
		admin.GET("/delivery/area/:code", ordersByAreaHandler(a.delivery))
		admin.POST("/delivery/areas", createAreaHandler(a.delivery))
		admin.PUT("/delivery/areas/:code", updateAreaHandler(a.delivery))
		admin.PATCH("/delivery/areas/:code/toggle", toggleAreaHandler(a.delivery))
	}
	return r
}

func publisher(cfg config.Config, logger log.FieldLogger) (events.Publisher, func(), error) {
	if cfg.NATSURL == "" {
		return events.LogPublisher{Log: logger.WithField("component", "events")}, func() {}, nil
	}
	nc, err := events.Connect(cfg.NATSURL, "pharmacy-api")
	if err != nil {
		return nil, nil, err
	}
	return events.NewNATSPublisher(nc, cfg.NATSSubject), func() { drain(nc) }, nil
}

func drain(nc *nats.Conn) {
	if err := nc.Drain(); err != nil {
		log.WithError(err).Warn("nats drain")
	}
}

func serveHealth(addr string) (*grpc.Server, *health.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "listen %s", addr)
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	go func() {
		if err := gs.Serve(lis); err != nil {
			log.WithError(err).Error("grpc health server stopped")
		}
	}()
	log.Infof("grpc health listening on %s", addr)
	return gs, hs, nil
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := log.StandardLogger()

	store, err := openRepos(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	pub, closePub, err := publisher(cfg, logger)
	if err != nil {
		return err
	}
	defer closePub()

	gw := payment.NewPaystack(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.GatewayTimeout)
	a := newApp(cfg, store, gw, pub, logger)

	gs, hs, err := serveHealth(cfg.GRPCHealthAddr)
	if err != nil {
		return err
	}
	defer gs.GracefulStop()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(a, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("pharmacy-api listening on %s (store=%s)", cfg.HTTPAddr, cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	sig, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-sig.Done():
	}

	log.Info("shutting down")
	hs.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func seedAreas(ctx context.Context, file string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	f, err := os.Open(file)
	if err != nil {
		return errors.Wrap(err, "open seed file")
	}
	defer f.Close()

	store, err := openRepos(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	svc := delivery.NewService(store.areas, pricing(cfg), log.WithField("component", "delivery"))
	n, err := svc.Seed(ctx, f)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"file": file, "areas": n}).Info("delivery areas seeded")
	return nil
}
