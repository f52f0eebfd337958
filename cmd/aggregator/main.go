package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"

	"whatsapp-connect-chat/handler/aggregator"
	"whatsapp-connect-chat/internal/integrations/invoke"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	eventHandler := mustEnv("WHATSAPP_EVENT_HANDLER")

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	dispatcher, err := invoke.NewDispatcher(awslambda.NewFromConfig(cfg), eventHandler, "", "")
	if err != nil {
		slog.Error("failed to create dispatcher", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := aggregator.NewHandler(dispatcher)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}
