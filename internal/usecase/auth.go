package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"bouncer-agent/internal/domain"
)

const (
	defaultMaxExchanges  = 6
	defaultMaxUsername   = 50
	defaultMaxMessage    = 500
	defaultHighScoreRows = 10

	// defaultGrantedRole is assigned when the budget forces a grant and the
	// model never produced a role.
	defaultGrantedRole = "Unclassified Access Holder"

	// forcedGrantRemark closes out a budget-forced grant.
	forcedGrantRemark = "\n\n...Fine. You're in. Don't make me regret this."

	// alreadyGrantedReply is the frozen reply for post-grant chat calls.
	alreadyGrantedReply = "Access already granted. Move along."
)

// Generator produces one assistant reply for a message history. providerID
// selects a backend; empty means the configured primary.
type Generator interface {
	Generate(ctx context.Context, messages []domain.ChatMessage, providerID string) (string, error)
}

// ConversationRegistry is the in-flight conversation registry consumed by
// the orchestrator.
type ConversationRegistry interface {
	Create(username string, messages []domain.ChatMessage) *domain.Conversation
	Get(id string) (*domain.Conversation, bool)
}

// ScoreKeeper is the durable leaderboard collaborator. Write failures are
// non-fatal to an exchange that already holds a valid verdict.
type ScoreKeeper interface {
	RecordScore(ctx context.Context, username, role string, score domain.Score) error
	GetUserRank(ctx context.Context, username string) (*int, error)
	GetHighScores(ctx context.Context, limit int) ([]domain.HighScore, error)
	GetUserBestScore(ctx context.Context, username string) (*domain.HighScore, error)
	SaveConversation(ctx context.Context, username, role string, messages []domain.ChatMessage, score domain.Score) error
}

// credentialCoder is the optional interface provider errors implement when
// the failure is a malformed credential rather than a transient fault.
type credentialCoder interface {
	MalformedCredential() bool
}

// Config carries the orchestration policy. Zero fields take defaults.
type Config struct {
	MaxExchanges      int
	MaxUsernameLength int
	MaxMessageLength  int
}

// AuthService drives the bounded Bouncer dialogue to a verdict.
type AuthService struct {
	gateway Generator
	convos  ConversationRegistry
	scores  ScoreKeeper
	cfg     Config
}

type InitializeInput struct {
	Username         string
	PreviousAttempts []domain.Attempt
	Provider         string
}

type InitializeOutput struct {
	ConversationID string
	Reply          string
	ExchangeCount  int
	MaxExchanges   int
}

type ChatInput struct {
	ConversationID string
	Message        string
	Provider       string
}

type ChatOutput struct {
	Reply         string
	ExchangeCount int
	MaxExchanges  int
	IsComplete    bool
	Granted       bool
	Role          *string
	Score         *domain.Score
	Rank          *int
}

func NewAuthService(gateway Generator, convos ConversationRegistry, scores ScoreKeeper, cfg Config) (*AuthService, error) {
	if gateway == nil {
		return nil, errors.New("usecase: gateway must not be nil")
	}
	if convos == nil {
		return nil, errors.New("usecase: conversation registry must not be nil")
	}
	if scores == nil {
		return nil, errors.New("usecase: score keeper must not be nil")
	}
	if cfg.MaxExchanges <= 0 {
		cfg.MaxExchanges = defaultMaxExchanges
	}
	if cfg.MaxUsernameLength <= 0 {
		cfg.MaxUsernameLength = defaultMaxUsername
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = defaultMaxMessage
	}
	return &AuthService{
		gateway: gateway,
		convos:  convos,
		scores:  scores,
		cfg:     cfg,
	}, nil
}

// Initialize starts a new dialogue: builds the turn-0 instruction, obtains
// The Bouncer's opening question and registers the conversation. When the
// provider call fails no conversation is retained.
func (s *AuthService) Initialize(ctx context.Context, in InitializeInput) (InitializeOutput, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return InitializeOutput{}, newError(ErrorInvalidInput, "empty_username", nil)
	}
	if len(username) > s.cfg.MaxUsernameLength {
		return InitializeOutput{}, newError(ErrorInvalidInput, "username_too_long", nil)
	}

	systemPrompt := buildSystemPrompt(username, in.PreviousAttempts, 0, s.cfg.MaxExchanges)
	seed := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: systemPrompt},
		{Role: domain.RoleUser, Content: seedUserMessage},
	}

	reply, err := s.gateway.Generate(ctx, seed, in.Provider)
	if err != nil {
		return InitializeOutput{}, classifyProviderError(err, "initialize_provider_error")
	}

	conv := s.convos.Create(username, append(seed, domain.ChatMessage{
		Role:    domain.RoleAssistant,
		Content: reply,
	}))

	// Turn 0 never grants by policy; the parse only extracts the
	// human-facing message.
	verdict := ParseVerdict(reply)

	return InitializeOutput{
		ConversationID: conv.ID,
		Reply:          verdict.Message,
		ExchangeCount:  conv.ExchangeCount,
		MaxExchanges:   s.cfg.MaxExchanges,
	}, nil
}

// Chat runs one exchange. Once a conversation is granted, further calls are
// pure reads of the frozen state and never reach the provider.
func (s *AuthService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	message := strings.TrimSpace(in.Message)
	if strings.TrimSpace(in.ConversationID) == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_conversation_id", nil)
	}
	if message == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if len(message) > s.cfg.MaxMessageLength {
		return ChatOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	conv, ok := s.convos.Get(in.ConversationID)
	if !ok {
		return ChatOutput{}, newError(ErrorNotFound, "conversation_not_found", nil)
	}

	conv.Lock()
	defer conv.Unlock()

	if conv.Granted {
		return s.frozenOutput(conv), nil
	}

	// Optimistic append; rolled back if the provider call fails so a retry
	// sees the conversation exactly as it was.
	conv.Messages = append(conv.Messages, domain.ChatMessage{Role: domain.RoleUser, Content: message})

	isLastExchange := conv.ExchangeCount >= s.cfg.MaxExchanges-1
	systemPrompt := buildSystemPrompt(conv.Username, nil, conv.ExchangeCount, s.cfg.MaxExchanges)
	if isLastExchange {
		systemPrompt += finalExchangeDirective
	}
	conv.Messages[0] = domain.ChatMessage{Role: domain.RoleSystem, Content: systemPrompt}

	reply, err := s.gateway.Generate(ctx, conv.Messages, in.Provider)
	if err != nil {
		conv.Messages = conv.Messages[:len(conv.Messages)-1]
		return ChatOutput{}, classifyProviderError(err, "chat_provider_error")
	}

	conv.Messages = append(conv.Messages, domain.ChatMessage{Role: domain.RoleAssistant, Content: reply})
	conv.ExchangeCount++

	verdict := ParseVerdict(reply)
	slog.Info("exchange completed",
		"conversationId", conv.ID,
		"exchange", conv.ExchangeCount,
		"maxExchanges", s.cfg.MaxExchanges,
		"granted", verdict.Granted,
		"source", verdict.Source,
	)

	// Safety net: the dialogue must end in a decision at the budget
	// boundary, whatever the model said.
	if conv.ExchangeCount >= s.cfg.MaxExchanges && !verdict.Granted {
		verdict.Granted = true
		if verdict.Role == nil {
			role := defaultGrantedRole
			verdict.Role = &role
		}
		verdict.Message += forcedGrantRemark
	}

	isComplete := conv.ExchangeCount >= s.cfg.MaxExchanges || verdict.Granted

	var score *domain.Score
	var rank *int
	if verdict.Granted && verdict.Role != nil {
		score, rank = s.recordGrant(ctx, conv, verdict)
		conv.Granted = true
		conv.GrantedRole = *verdict.Role
		conv.GrantedScore = score
		conv.GrantedRank = rank
	}

	return ChatOutput{
		Reply:         verdict.Message,
		ExchangeCount: conv.ExchangeCount,
		MaxExchanges:  s.cfg.MaxExchanges,
		IsComplete:    isComplete,
		Granted:       verdict.Granted,
		Role:          verdict.Role,
		Score:         score,
		Rank:          rank,
	}, nil
}

// recordGrant computes the score and records it with the leaderboard.
// Persistence failures degrade to nil score/rank; they never revert a
// verdict the conversation already holds.
func (s *AuthService) recordGrant(ctx context.Context, conv *domain.Conversation, verdict domain.Verdict) (*domain.Score, *int) {
	role := *verdict.Role
	computed := ComputeScore(role, conv.ExchangeCount, s.cfg.MaxExchanges, verdict.VibeScore, verdict.RoleCoolness)

	if err := s.scores.RecordScore(ctx, conv.Username, role, computed); err != nil {
		slog.Warn("score recording failed",
			"conversationId", conv.ID, "username", conv.Username, "err", err)
		return nil, nil
	}

	rank, err := s.scores.GetUserRank(ctx, conv.Username)
	if err != nil {
		slog.Warn("rank lookup failed",
			"conversationId", conv.ID, "username", conv.Username, "err", err)
		rank = nil
	}

	if err := s.scores.SaveConversation(ctx, conv.Username, role, conv.Messages, computed); err != nil {
		slog.Warn("transcript archive failed",
			"conversationId", conv.ID, "username", conv.Username, "err", err)
	}

	return &computed, rank
}

func (s *AuthService) frozenOutput(conv *domain.Conversation) ChatOutput {
	role := conv.GrantedRole
	return ChatOutput{
		Reply:         alreadyGrantedReply,
		ExchangeCount: conv.ExchangeCount,
		MaxExchanges:  s.cfg.MaxExchanges,
		IsComplete:    true,
		Granted:       true,
		Role:          &role,
		Score:         conv.GrantedScore,
		Rank:          conv.GrantedRank,
	}
}

// HighScores returns the top leaderboard rows. Unlike the post-grant write
// path, read failures surface to the caller.
func (s *AuthService) HighScores(ctx context.Context, limit int) ([]domain.HighScore, error) {
	if limit <= 0 {
		limit = defaultHighScoreRows
	}
	scores, err := s.scores.GetHighScores(ctx, limit)
	if err != nil {
		return nil, newError(ErrorInternal, "leaderboard_read_error", err)
	}
	return scores, nil
}

// UserBest returns a user's best score and current rank.
func (s *AuthService) UserBest(ctx context.Context, username string) (*domain.HighScore, *int, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil, newError(ErrorInvalidInput, "empty_username", nil)
	}
	best, err := s.scores.GetUserBestScore(ctx, username)
	if err != nil {
		return nil, nil, newError(ErrorInternal, "best_score_read_error", err)
	}
	rank, err := s.scores.GetUserRank(ctx, username)
	if err != nil {
		return nil, nil, newError(ErrorInternal, "rank_read_error", err)
	}
	return best, rank, nil
}

// classifyProviderError maps gateway failures onto the error taxonomy:
// malformed credentials are configuration faults, everything else is an
// exhausted upstream.
func classifyProviderError(err error, reason string) *Error {
	var cred credentialCoder
	if errors.As(err, &cred) && cred.MalformedCredential() {
		return newError(ErrorConfiguration, reason, err)
	}
	return newError(ErrorUpstream, reason, err)
}
