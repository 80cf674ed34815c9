// Command http-example runs the sample order service as a plain HTTP server
// for local development, with health, metrics and OpenAPI endpoints.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"fnkit/config"
	"fnkit/handler/platforms"
	"fnkit/internal/app"
	"fnkit/internal/orders"
	"fnkit/openapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer a.Close()

	docs, err := openapi.Handler(orders.OpenAPIDocument, cfg.Version)
	if err != nil {
		log.Fatalf("Failed to load OpenAPI document: %v", err)
	}

	h := a.Factory().WithErrorResponses().CreateHTTP()

	adapter := platforms.NewHTTPAdapter(h,
		platforms.WithServerConfig(cfg.HTTP),
		platforms.WithMaxRequestSize(cfg.Handler.MaxRequestSize),
		platforms.WithHTTPRedactor(a.Redactor),
		platforms.WithHealthCheckers(a.Checkers...),
		platforms.WithMetrics(a.Metrics),
		platforms.WithRoute(http.MethodGet, "/openapi.json", docs),
	)
	if err := adapter.Serve(ctx); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
