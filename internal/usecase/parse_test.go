package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"bouncer-agent/internal/domain"
)

func TestParseVerdict_StructuredGrant(t *testing.T) {
	raw := `{"message":"Nice try.","granted":true,"role":"Intern of Chaos","vibe_score":80,"role_coolness":70}`

	v := ParseVerdict(raw)
	require.Equal(t, domain.VerdictStructured, v.Source)
	require.Equal(t, "Nice try.", v.Message)
	require.True(t, v.Granted)
	require.NotNil(t, v.Role)
	require.Equal(t, "Intern of Chaos", *v.Role)
	require.NotNil(t, v.VibeScore)
	require.Equal(t, 80.0, *v.VibeScore)
	require.NotNil(t, v.RoleCoolness)
	require.Equal(t, 70.0, *v.RoleCoolness)
}

func TestParseVerdict_StructuredDeny(t *testing.T) {
	v := ParseVerdict(`{"message":"Who are you, exactly?","granted":false,"role":null}`)
	require.Equal(t, domain.VerdictStructured, v.Source)
	require.Equal(t, "Who are you, exactly?", v.Message)
	require.False(t, v.Granted)
	require.Nil(t, v.Role)
	require.Nil(t, v.VibeScore)
	require.Nil(t, v.RoleCoolness)
}

func TestParseVerdict_JSONWrappedInProse(t *testing.T) {
	raw := "Sure, here's my answer:\n```json\n{\"message\":\"State your business.\",\"granted\":false,\"role\":null}\n```"
	v := ParseVerdict(raw)
	require.Equal(t, domain.VerdictStructured, v.Source)
	require.Equal(t, "State your business.", v.Message)
	require.False(t, v.Granted)
}

func TestParseVerdict_MissingMessageFallsBackToRaw(t *testing.T) {
	raw := `{"granted":true,"role":"Night Shift Gatekeeper"}`
	v := ParseVerdict(raw)
	require.Equal(t, raw, v.Message)
	require.True(t, v.Granted)
}

func TestParseVerdict_NonNumericSignalsAreNil(t *testing.T) {
	v := ParseVerdict(`{"message":"In.","granted":true,"role":"Badge Printer","vibe_score":"eighty","role_coolness":null}`)
	require.True(t, v.Granted)
	require.Nil(t, v.VibeScore)
	require.Nil(t, v.RoleCoolness)
}

func TestParseVerdict_GrantedCoercion(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{`{"message":"x","granted":true}`, true},
		{`{"message":"x","granted":"true"}`, true},
		{`{"message":"x","granted":1}`, true},
		{`{"message":"x","granted":0}`, false},
		{`{"message":"x","granted":"nope"}`, false},
		{`{"message":"x"}`, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ParseVerdict(tc.raw).Granted, "raw=%s", tc.raw)
	}
}

func TestParseVerdict_PatternFallback(t *testing.T) {
	raw := "ACCESS GRANTED - Role: 'Senior Vibes Engineer'"

	v := ParseVerdict(raw)
	require.Equal(t, domain.VerdictPatternMatched, v.Source)
	require.Equal(t, raw, v.Message)
	require.True(t, v.Granted)
	require.NotNil(t, v.Role)
	require.Equal(t, "Senior Vibes Engineer", *v.Role)
	require.Nil(t, v.VibeScore)
	require.Nil(t, v.RoleCoolness)
}

func TestParseVerdict_PatternVariants(t *testing.T) {
	cases := []struct {
		raw  string
		role string
	}{
		{`access granted. role: Chaos Auditor`, "Chaos Auditor"},
		{`ACCESS GRANTED: Your Role: "Duplicate Ticket Czar"`, "Duplicate Ticket Czar"},
		{"Fine. ACCESS GRANTED - Role: 'Trial Extension Negotiator'\nWelcome.", "Trial Extension Negotiator"},
	}
	for _, tc := range cases {
		v := ParseVerdict(tc.raw)
		require.True(t, v.Granted, "raw=%q", tc.raw)
		require.NotNil(t, v.Role, "raw=%q", tc.raw)
		require.Equal(t, tc.role, *v.Role, "raw=%q", tc.raw)
	}
}

func TestParseVerdict_DefaultDeny(t *testing.T) {
	v := ParseVerdict("I am not going to answer in the agreed format today.")
	require.Equal(t, domain.VerdictUnrecognized, v.Source)
	require.False(t, v.Granted)
	require.Nil(t, v.Role)
	require.Equal(t, "I am not going to answer in the agreed format today.", v.Message)
}

// ParseVerdict must be total: whatever the model emits, the result is well
// formed and nothing panics.
func TestParseVerdict_Totality(t *testing.T) {
	inputs := []string{
		"",
		" ",
		"{",
		"}",
		"}{",
		"{}",
		`{"granted":`,
		`{"message":{}}`,
		"\x00\x01\xff binary garbage \xfe",
		strings.Repeat("{", 10000),
		`{"message":"ok","granted":false} trailing {"granted":true}`,
		"ACCESS GRANTED",
		"ACCESS GRANTED - Role:",
	}
	for _, in := range inputs {
		require.NotPanics(t, func() {
			v := ParseVerdict(in)
			require.NotEmpty(t, v.Source, "input=%q", in)
		}, "input=%q", in)
	}
}

// The greedy brace span covers first { to last }, so trailing fragments are
// part of the decode attempt; a broken span falls through to the pattern
// tier rather than failing.
func TestParseVerdict_BrokenSpanFallsThrough(t *testing.T) {
	raw := `{"not json... ACCESS GRANTED - Role: 'Span Survivor'}`
	v := ParseVerdict(raw)
	require.Equal(t, domain.VerdictPatternMatched, v.Source)
	require.Equal(t, "Span Survivor", *v.Role)
}
