// Command azure-example runs the sample order service as an Azure Functions
// custom handler. The host forwards HTTP and queue trigger invocations to
// the port in FUNCTIONS_CUSTOMHANDLER_PORT.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fnkit/config"
	"fnkit/handler/platforms"
	"fnkit/internal/app"
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

	h := a.Factory().CreateAzure()

	adapter := platforms.NewAzureAdapter(h).WithRedactor(a.Redactor)
	if err := adapter.Serve(ctx, cfg.Azure.Port); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
