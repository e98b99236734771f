package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bouncer-agent/internal/domain"
)

func TestBuildSystemPrompt_IncludesUsernameAndBudget(t *testing.T) {
	p := buildSystemPrompt("alice", nil, 2, 6)
	require.Contains(t, p, `User claims to be "alice".`)
	require.Contains(t, p, "Exchange 2 of 6.")
	require.Contains(t, p, "RESPONSE FORMAT")
	require.Contains(t, p, `"granted": true`)
}

func TestBuildSystemPrompt_FirstTime(t *testing.T) {
	p := buildSystemPrompt("bob", nil, 0, 6)
	require.Contains(t, p, "First time")
	require.NotContains(t, p, "Previous attempts:")
}

func TestBuildSystemPrompt_AttemptHistory(t *testing.T) {
	ts := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	p := buildSystemPrompt("bob", []domain.Attempt{
		{Role: "Senior YAML Indenter", Timestamp: ts},
		{Role: "Ghost of Jira Past", Timestamp: ts.AddDate(0, 0, 1)},
	}, 0, 6)

	require.Contains(t, p, "Previous attempts:")
	require.Contains(t, p, `1. Role: "Senior YAML Indenter" - 2026-03-14`)
	require.Contains(t, p, `2. Role: "Ghost of Jira Past" - 2026-03-15`)
	require.Contains(t, p, "The final role must NOT match any previous role.")
	require.NotContains(t, p, "First time")
}

func TestFinalExchangeDirective_ForcesDecision(t *testing.T) {
	require.Contains(t, finalExchangeDirective, "FINAL exchange")
	require.Contains(t, finalExchangeDirective, "granted:true")
	require.Contains(t, finalExchangeDirective, "No more questions.")
}
