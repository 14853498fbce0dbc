package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"github.com/WhiteRabbitVintageMarket/storefront/internal/cartstore"
	"github.com/WhiteRabbitVintageMarket/storefront/internal/catalog"
	"github.com/WhiteRabbitVintageMarket/storefront/internal/checkout"
	"github.com/WhiteRabbitVintageMarket/storefront/internal/kv"
	"github.com/WhiteRabbitVintageMarket/storefront/internal/pubsub"
)

const (
	name        = "storefront"
	defaultPort = "8080"

	defaultStorageKey = "shoppingCart"
)

var log *logrus.Logger

func init() {
	log = logrus.New()
	log.Level = logrus.DebugLevel
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout
}

func initTracerProvider(ctx context.Context) *sdktrace.TracerProvider {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "dns:///otel-collector.observability.svc.cluster.local:4317"
	}
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		log.Fatal(err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String("v1.0.0"),
		),
	)
	if err != nil {
		log.Fatal(err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(exporter)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp
}

func mustMapEnv(target *string, envKey string) {
	v := os.Getenv(envKey)
	if v == "" {
		log.Fatalf("environment variable %q not set", envKey)
	}
	*target = v
}

func main() {
	ctx := context.Background()

	if os.Getenv("DISABLE_TRACING") == "" {
		log.Info("tracing enabled")
		tp := initTracerProvider(ctx)
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Printf("error shutting down tracer provider: %v", err)
			}
		}()
	} else {
		log.Info("tracing disabled")
	}

	port := defaultPort
	if value, ok := os.LookupEnv("PORT"); ok {
		port = value
	}

	svc := new(frontendServer)
	mustMapEnv(&svc.catalogBaseURL, "API_BASE_URL")
	svc.checkoutBaseURL = os.Getenv("CHECKOUT_BASE_URL")
	if svc.checkoutBaseURL == "" {
		svc.checkoutBaseURL = svc.catalogBaseURL
	}
	storageKey := os.Getenv("CART_STORAGE_KEY")
	if storageKey == "" {
		storageKey = defaultStorageKey
	}

	bus := pubsub.NewBus()

	var backend kv.Store
	var watcher kv.Watcher
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		log.Infof("using Redis cart storage: %s", redisAddr)
		store := kv.NewRedis(redisAddr, log)
		if err := store.Initialize(ctx); err != nil {
			log.Fatalf("redis cart storage unavailable: %v", err)
		}
		backend, watcher = store, store
		svc.ping = store.Ping
	} else {
		log.Info("using in-memory cart storage")
		store := kv.NewLocal()
		backend, watcher = store, store
	}

	svc.cart = cartstore.New(backend, storageKey, bus, log)
	if err := svc.cart.StartWatch(ctx, watcher); err != nil {
		// The cart still works without external-change signals; carts
		// written by other processes are picked up on restart only.
		log.WithError(err).Warn("cart storage watch unavailable")
	}

	svc.reconciler = catalog.NewReconciler(catalog.NewClient(svc.catalogBaseURL), svc.cart, log)
	svc.orchestrator = checkout.NewOrchestrator(svc.cart, checkout.NewClient(svc.checkoutBaseURL), log)
	svc.orders = checkout.NewClient(svc.checkoutBaseURL)
	svc.bus = bus
	svc.badge = newBadgeCounter(ctx, svc.cart, bus)
	svc.log = log

	r := mux.NewRouter()
	r.Use(otelmux.Middleware(name))
	svc.registerRoutes(r)

	var handler http.Handler = r
	handler = &logHandler{log: log, next: handler}
	handler = recoverHandler(log, handler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: handler,
	}

	go func() {
		log.Infof("storefront listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown: %v", err)
	}
}
