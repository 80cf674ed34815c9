// Command lambda-example runs the sample order service on AWS Lambda. One
// function serves API Gateway (REST and HTTP API) requests and consumes the
// order.created queue with partial batch failure reporting.
package main

import (
	"context"
	"log"

	"fnkit/config"
	"fnkit/handler/platforms"
	"fnkit/internal/app"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer a.Close()

	h := a.Factory().CreateLambda()

	platforms.NewLambdaAdapter(h, &cfg.Lambda).
		WithRedactor(a.Redactor).
		Start()
}
