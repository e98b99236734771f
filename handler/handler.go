// Package handler adapts API Gateway proxy events onto the auth use case.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"bouncer-agent/internal/domain"
	"bouncer-agent/internal/usecase"
)

// AuthUseCase is the orchestration surface consumed by the handler.
type AuthUseCase interface {
	Initialize(ctx context.Context, in usecase.InitializeInput) (usecase.InitializeOutput, error)
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	HighScores(ctx context.Context, limit int) ([]domain.HighScore, error)
	UserBest(ctx context.Context, username string) (*domain.HighScore, *int, error)
}

// Settings is the static process configuration exposed on GET /settings.
type Settings struct {
	MaxExchanges  int      `json:"maxExchanges"`
	AvailableLLMs []string `json:"availableLLMs"`
	PrimaryLLM    string   `json:"primaryLLM"`
}

type Handler struct {
	uc       AuthUseCase
	settings Settings
}

type initializeRequest struct {
	Username         string           `json:"username"`
	PreviousAttempts []domain.Attempt `json:"previousAttempts"`
	LLM              string           `json:"llm"`
}

type initializeResponse struct {
	ConversationID string `json:"conversationId"`
	Reply          string `json:"reply"`
	ExchangeCount  int    `json:"exchangeCount"`
	MaxExchanges   int    `json:"maxExchanges"`
}

type chatRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	LLM            string `json:"llm"`
}

type chatResponse struct {
	Reply         string        `json:"reply"`
	ExchangeCount int           `json:"exchangeCount"`
	MaxExchanges  int           `json:"maxExchanges"`
	IsComplete    bool          `json:"isComplete"`
	Granted       bool          `json:"granted"`
	Role          *string       `json:"role"`
	Score         *domain.Score `json:"score"`
	Rank          *int          `json:"rank"`
}

type highScoresResponse struct {
	Scores []domain.HighScore `json:"scores"`
}

type userBestResponse struct {
	BestScore *domain.HighScore `json:"bestScore"`
	Rank      *int              `json:"rank"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func NewHandler(uc AuthUseCase, settings Settings) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc, settings: settings}, nil
}

// Handle routes one API Gateway event. Routing is by method plus path
// suffix so the handler works under any stage or base-path mapping.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(event.Headers)

	switch {
	case event.HTTPMethod == http.MethodPost && strings.HasSuffix(event.Path, "/initialize"):
		return h.handleInitialize(ctx, event, corrID), nil
	case event.HTTPMethod == http.MethodPost && strings.HasSuffix(event.Path, "/chat"):
		return h.handleChat(ctx, event, corrID), nil
	case event.HTTPMethod == http.MethodGet && strings.HasSuffix(event.Path, "/highscores"):
		return h.handleHighScores(ctx, event, corrID), nil
	case event.HTTPMethod == http.MethodGet && strings.HasSuffix(event.Path, "/settings"):
		return respond(http.StatusOK, h.settings, corrID), nil
	default:
		return respond(http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "unknown_route"}, corrID), nil
	}
}

func (h *Handler) handleInitialize(ctx context.Context, event events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	var req initializeRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return respond(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "malformed_body"}, corrID)
	}

	out, err := h.uc.Initialize(ctx, usecase.InitializeInput{
		Username:         req.Username,
		PreviousAttempts: req.PreviousAttempts,
		Provider:         req.LLM,
	})
	if err != nil {
		return respondError(err, corrID)
	}
	return respond(http.StatusOK, initializeResponse{
		ConversationID: out.ConversationID,
		Reply:          out.Reply,
		ExchangeCount:  out.ExchangeCount,
		MaxExchanges:   out.MaxExchanges,
	}, corrID)
}

func (h *Handler) handleChat(ctx context.Context, event events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	var req chatRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return respond(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "malformed_body"}, corrID)
	}

	out, err := h.uc.Chat(ctx, usecase.ChatInput{
		ConversationID: req.ConversationID,
		Message:        req.Message,
		Provider:       req.LLM,
	})
	if err != nil {
		return respondError(err, corrID)
	}
	return respond(http.StatusOK, chatResponse{
		Reply:         out.Reply,
		ExchangeCount: out.ExchangeCount,
		MaxExchanges:  out.MaxExchanges,
		IsComplete:    out.IsComplete,
		Granted:       out.Granted,
		Role:          out.Role,
		Score:         out.Score,
		Rank:          out.Rank,
	}, corrID)
}

func (h *Handler) handleHighScores(ctx context.Context, event events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	if username := strings.TrimSpace(event.QueryStringParameters["username"]); username != "" {
		best, rank, err := h.uc.UserBest(ctx, username)
		if err != nil {
			return respondError(err, corrID)
		}
		return respond(http.StatusOK, userBestResponse{BestScore: best, Rank: rank}, corrID)
	}

	limit := 0
	if raw := event.QueryStringParameters["limit"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	scores, err := h.uc.HighScores(ctx, limit)
	if err != nil {
		return respondError(err, corrID)
	}
	return respond(http.StatusOK, highScoresResponse{Scores: scores}, corrID)
}

func respondError(err error, corrID string) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return respond(http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}, corrID)
	}
	return respond(statusFor(ucErr.Code), errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason}, corrID)
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	case usecase.ErrorConfiguration, usecase.ErrorInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func respond(status int, body any, corrID string) events.APIGatewayProxyResponse {
	payload, err := json.Marshal(body)
	if err != nil {
		payload = []byte(`{"error":"INTERNAL_ERROR"}`)
		status = http.StatusInternalServerError
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"X-Correlation-Id": corrID,
		},
		Body: string(payload),
	}
}

// correlationID reuses the caller's id when present (any header casing),
// otherwise mints one.
func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "x-correlation-id") && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return uuid.NewString()
}
