package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"bouncer-agent/handler"
	"bouncer-agent/internal/gateway"
	"bouncer-agent/internal/integrations/gemini"
	"bouncer-agent/internal/integrations/openai"
	"bouncer-agent/internal/integrations/paramstore"
	"bouncer-agent/internal/repository"
	"bouncer-agent/internal/store"
	"bouncer-agent/internal/usecase"
)

const (
	providerOpenAI = "chatgpt"
	providerGemini = "gemini"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	scoreTable := mustEnv("SCORE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	maxExchanges := envInt("MAX_EXCHANGES", 6)
	maxUsernameLen := envInt("MAX_USERNAME_LENGTH", 50)
	maxMessageLen := envInt("MAX_MESSAGE_LENGTH", 500)
	primaryLLM := os.Getenv("PRIMARY_LLM")
	if primaryLLM == "" {
		primaryLLM = providerOpenAI
	}

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}

	openaiClient, err := openai.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}
	geminiClient, err := gemini.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create Gemini client", "err", err)
		os.Exit(1)
	}

	gw, err := gateway.New(gateway.Config{
		Primary: primaryLLM,
		Providers: map[string]gateway.Provider{
			providerOpenAI: openaiClient,
			providerGemini: geminiClient,
		},
	})
	if err != nil {
		slog.Error("failed to create provider gateway", "err", err)
		os.Exit(1)
	}

	scoreClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), scoreTable)
	if err != nil {
		slog.Error("failed to create score client", "err", err)
		os.Exit(1)
	}

	// ---- Orchestration ----
	authService, err := usecase.NewAuthService(gw, store.New(), scoreClient, usecase.Config{
		MaxExchanges:      maxExchanges,
		MaxUsernameLength: maxUsernameLen,
		MaxMessageLength:  maxMessageLen,
	})
	if err != nil {
		slog.Error("failed to create auth service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(authService, handler.Settings{
		MaxExchanges:  maxExchanges,
		AvailableLLMs: gw.Providers(),
		PrimaryLLM:    gw.Primary(),
	})
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

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
