package usecase

import (
	"encoding/json"
	"regexp"
	"strings"

	"bouncer-agent/internal/domain"
)

// grantPattern recovers the legacy plain-text grant phrase, e.g.
// `ACCESS GRANTED - Role: 'Senior Vibes Engineer'`.
var grantPattern = regexp.MustCompile(`(?i)ACCESS GRANTED\s*[.:-]\s*(?:Your\s+)?Role:\s*["']?([^"'\n]+)["']?`)

// ParseVerdict converts one raw assistant reply into a Verdict. It is total:
// whatever the model emits, the result is well formed and the function never
// returns an error. Degradation is three-tier: structured JSON payload,
// then the grant phrase pattern, then default deny.
func ParseVerdict(raw string) domain.Verdict {
	if verdict, ok := parseStructured(raw); ok {
		return verdict
	}
	return parseFallback(raw)
}

// parseStructured decodes the greedy first-{ .. last-} span of the reply.
// Models wrap their JSON in prose or code fences often enough that decoding
// the whole reply directly would miss most payloads.
func parseStructured(raw string) (domain.Verdict, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return domain.Verdict{}, false
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return domain.Verdict{}, false
	}

	verdict := domain.Verdict{
		Message: raw,
		Granted: coerceBool(payload["granted"]),
		Source:  domain.VerdictStructured,
	}
	if msg, ok := payload["message"].(string); ok && msg != "" {
		verdict.Message = msg
	}
	if role, ok := payload["role"].(string); ok && strings.TrimSpace(role) != "" {
		r := strings.TrimSpace(role)
		verdict.Role = &r
	}
	verdict.VibeScore = numericField(payload, "vibe_score")
	verdict.RoleCoolness = numericField(payload, "role_coolness")
	return verdict, true
}

func parseFallback(raw string) domain.Verdict {
	verdict := domain.Verdict{
		Message: raw,
		Source:  domain.VerdictUnrecognized,
	}
	if m := grantPattern.FindStringSubmatch(raw); m != nil {
		role := strings.TrimSpace(m[1])
		verdict.Granted = true
		verdict.Role = &role
		verdict.Source = domain.VerdictPatternMatched
	}
	return verdict
}

// coerceBool mirrors loose truthiness for the granted flag: models sometimes
// emit "true" or 1 instead of a JSON boolean.
func coerceBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	case float64:
		return t != 0
	default:
		return false
	}
}

// numericField reads key only if it decoded as a JSON number; anything else
// (absent, null, string) yields nil.
func numericField(payload map[string]any, key string) *float64 {
	n, ok := payload[key].(float64)
	if !ok {
		return nil
	}
	return &n
}
