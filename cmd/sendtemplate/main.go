package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awssocialmessaging "github.com/aws/aws-sdk-go-v2/service/socialmessaging"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"whatsapp-connect-chat/handler/sendtemplate"
	"whatsapp-connect-chat/internal/integrations/paramstore"
	"whatsapp-connect-chat/internal/integrations/whatsapp"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	configParam := mustEnv("CONFIG_PARAM_NAME")
	originationID := os.Getenv("ORIGINATION_PHONE_NUMBER_ID")

	// ---- AWS SDK config ----
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	cfg, err := paramstore.LoadConfig(ctx, params, configParam)
	if err != nil {
		slog.Error("failed to load configuration", "parameter", configParam, "err", err)
		os.Exit(1)
	}

	sender, err := whatsapp.NewService(awssocialmessaging.NewFromConfig(awsCfg), cfg.APIVersion())
	if err != nil {
		slog.Error("failed to create whatsapp service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := sendtemplate.NewHandler(sender, params, configParam, originationID)
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
