package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsconnect "github.com/aws/aws-sdk-go-v2/service/connect"
	awsconnectparticipant "github.com/aws/aws-sdk-go-v2/service/connectparticipant"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awssecretsmanager "github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	awssocialmessaging "github.com/aws/aws-sdk-go-v2/service/socialmessaging"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-resty/resty/v2"

	"whatsapp-connect-chat/handler/eventhandler"
	"whatsapp-connect-chat/internal/integrations/connectchat"
	"whatsapp-connect-chat/internal/integrations/invoke"
	"whatsapp-connect-chat/internal/integrations/paramstore"
	"whatsapp-connect-chat/internal/integrations/secrets"
	"whatsapp-connect-chat/internal/integrations/whatsapp"
	"whatsapp-connect-chat/internal/repository"
	"whatsapp-connect-chat/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	tableName := mustEnv("TABLE_NAME")
	configParam := mustEnv("CONFIG_PARAM_NAME")
	mediaBucket := mustEnv("MEDIA_BUCKET")
	tokenSecret := mustEnv("TOKEN_SECRET_ARN")
	topicARN := os.Getenv("TOPIC_ARN")
	converterName := os.Getenv("CONVERT_WAV_HANDLER")
	transcriberName := os.Getenv("TRANSCRIBE_HANDLER")

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

	tokens, err := secrets.New(awssecretsmanager.NewFromConfig(awsCfg))
	if err != nil {
		slog.Error("failed to create secrets client", "err", err)
		os.Exit(1)
	}

	fetcher, err := whatsapp.NewMediaFetcher(resty.New(), awss3.NewFromConfig(awsCfg), tokens, tokenSecret, mediaBucket, cfg.APIVersion())
	if err != nil {
		slog.Error("failed to create media fetcher", "err", err)
		os.Exit(1)
	}
	messenger, err := whatsapp.NewService(awssocialmessaging.NewFromConfig(awsCfg), cfg.APIVersion(), whatsapp.WithMediaFetcher(fetcher))
	if err != nil {
		slog.Error("failed to create whatsapp service", "err", err)
		os.Exit(1)
	}

	store, err := repository.NewSessionStore(awsdynamodb.NewFromConfig(awsCfg), tableName, cfg.ChatDuration())
	if err != nil {
		slog.Error("failed to create session store", "err", err)
		os.Exit(1)
	}

	chat, err := connectchat.NewClient(
		awsconnect.NewFromConfig(awsCfg),
		awsconnectparticipant.NewFromConfig(awsCfg),
		resty.New(),
		cfg.InstanceID,
		cfg.ContactFlowID,
		cfg.ChatDuration(),
		topicARN,
	)
	if err != nil {
		slog.Error("failed to create chat client", "err", err)
		os.Exit(1)
	}

	audio, err := invoke.NewDispatcher(awslambda.NewFromConfig(awsCfg), "", converterName, transcriberName)
	if err != nil {
		slog.Error("failed to create audio dispatcher", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	router, err := usecase.NewRouter(messenger, chat, store, audio, usecase.RouterConfig{
		IgnoreReactions: cfg.ReactionsIgnored(),
		IgnoreStickers:  cfg.StickersIgnored(),
		ChatDuration:    cfg.ChatDuration(),
	})
	if err != nil {
		slog.Error("failed to create turn router", "err", err)
		os.Exit(1)
	}

	h, err := eventhandler.NewHandler(router)
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
