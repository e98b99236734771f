// Package gateway fronts the interchangeable LLM backends. It resolves the
// requested provider, invokes it, and fails over to the alternate on any
// fault that is not a malformed credential.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bouncer-agent/internal/domain"
)

// Provider is one text-generation backend.
type Provider interface {
	Generate(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// Config names the configured backends. Primary must be a key of Providers.
type Config struct {
	Primary   string
	Providers map[string]Provider
}

// Gateway dispatches generation calls across the configured providers.
// It never mutates caller state; rollback on failure is the orchestrator's
// concern.
type Gateway struct {
	primary   string
	providers map[string]Provider
}

// CredentialError marks a non-recoverable malformed-credential fault.
// No failover is attempted for these.
type CredentialError struct {
	Provider string
	Err      error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("gateway: invalid %s credential: %v", e.Provider, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// MalformedCredential implements the classification hook the orchestrator
// checks for.
func (e *CredentialError) MalformedCredential() bool { return true }

// ExhaustedError aggregates both backend failures for diagnosis.
type ExhaustedError struct {
	Primary     string
	PrimaryErr  error
	Fallback    string
	FallbackErr error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gateway: both providers failed: %s: %v; %s: %v",
		e.Primary, e.PrimaryErr, e.Fallback, e.FallbackErr)
}

func (e *ExhaustedError) Unwrap() error { return e.PrimaryErr }

// credentialCoder matches provider errors that self-report a malformed key.
type credentialCoder interface {
	MalformedCredential() bool
}

func New(cfg Config) (*Gateway, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("gateway: at least one provider must be configured")
	}
	if _, ok := cfg.Providers[cfg.Primary]; !ok {
		return nil, fmt.Errorf("gateway: primary provider %q is not configured", cfg.Primary)
	}
	return &Gateway{
		primary:   cfg.Primary,
		providers: cfg.Providers,
	}, nil
}

// Generate produces one assistant reply. An empty providerID selects the
// configured primary. Failover is sequential: the alternate is attempted
// only after the chosen provider definitively fails, and never for
// credential faults.
func (g *Gateway) Generate(ctx context.Context, messages []domain.ChatMessage, providerID string) (string, error) {
	if providerID == "" {
		providerID = g.primary
	}
	provider, ok := g.providers[providerID]
	if !ok {
		return "", fmt.Errorf("gateway: unknown provider %q", providerID)
	}

	reply, err := provider.Generate(ctx, messages)
	if err == nil {
		return reply, nil
	}
	if isCredentialFault(err) {
		return "", &CredentialError{Provider: providerID, Err: err}
	}

	fallbackID, fallback := g.alternate(providerID)
	if fallback == nil {
		return "", &ExhaustedError{
			Primary:     providerID,
			PrimaryErr:  err,
			Fallback:    "none",
			FallbackErr: errors.New("no alternate provider configured"),
		}
	}

	slog.Warn("provider failed, falling back",
		"provider", providerID, "fallback", fallbackID, "err", err)

	reply, fallbackErr := fallback.Generate(ctx, messages)
	if fallbackErr == nil {
		return reply, nil
	}
	return "", &ExhaustedError{
		Primary:     providerID,
		PrimaryErr:  err,
		Fallback:    fallbackID,
		FallbackErr: fallbackErr,
	}
}

// Providers lists the configured provider ids, primary first.
func (g *Gateway) Providers() []string {
	ids := []string{g.primary}
	for id := range g.providers {
		if id != g.primary {
			ids = append(ids, id)
		}
	}
	return ids
}

// Primary returns the default provider id.
func (g *Gateway) Primary() string { return g.primary }

// alternate picks any other configured provider, or nil if there is none.
func (g *Gateway) alternate(providerID string) (string, Provider) {
	for id, p := range g.providers {
		if id != providerID {
			return id, p
		}
	}
	return "", nil
}

func isCredentialFault(err error) bool {
	var cred credentialCoder
	return errors.As(err, &cred) && cred.MalformedCredential()
}
