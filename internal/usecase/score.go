package usecase

import (
	"math"
	"regexp"
	"strings"

	"bouncer-agent/internal/domain"
)

// Weighted contribution of each component to the total score.
const (
	roleCoolnessWeight  = 0.25
	vibeScoreWeight     = 0.35
	exchangeScoreWeight = 0.40
)

// defaultVibeScore is used when the model granted access without scoring
// the interaction.
const defaultVibeScore = 50

// roleKeywords bump the heuristic coolness for role-styled titles.
var roleKeywords = []string{
	"manager", "officer", "consultant", "architect", "engineer",
	"chief", "director", "ghost", "rebel", "master", "wizard",
}

// satiricalPattern rewards absurdist or satirical phrasing in a role title.
var satiricalPattern = regexp.MustCompile(`(?i)of |for |the |and |uber|hyper|meta|quantum|chaos|void|shadow`)

// ComputeScore reduces the verdict signals and exchange count to a bounded
// score breakdown. Model-supplied signals are clamped to [0,100]; absent
// signals fall back to a deterministic heuristic over the role text. Pure
// and deterministic, no I/O.
func ComputeScore(role string, exchangeCount, maxExchanges int, vibeSignal, coolnessSignal *float64) domain.Score {
	roleCoolness := clampSignal(coolnessSignal, heuristicRoleCoolness(role))
	vibeScore := clampSignal(vibeSignal, defaultVibeScore)
	exchangeScore := exchangeEfficiency(exchangeCount)

	total := int(math.Round(
		float64(roleCoolness)*roleCoolnessWeight +
			float64(vibeScore)*vibeScoreWeight +
			float64(exchangeScore)*exchangeScoreWeight,
	))

	return domain.Score{
		TotalScore:    total,
		RoleCoolness:  roleCoolness,
		VibeScore:     vibeScore,
		ExchangeScore: exchangeScore,
		ExchangeCount: exchangeCount,
	}
}

// exchangeEfficiency rewards fast grants. The thresholds are a fixed policy,
// not proportional to the configured budget.
func exchangeEfficiency(exchangeCount int) int {
	switch {
	case exchangeCount <= 2:
		return 100
	case exchangeCount <= 3:
		return 85
	case exchangeCount <= 4:
		return 70
	case exchangeCount <= 5:
		return 50
	default:
		return 30
	}
}

// heuristicRoleCoolness scores a role title by word count, role-styled
// keywords and satirical phrasing when the model supplied no signal.
func heuristicRoleCoolness(role string) int {
	role = strings.TrimSpace(role)
	if role == "" {
		return 0
	}

	coolness := 50
	wordBonus := len(strings.Fields(role)) * 10
	if wordBonus > 20 {
		wordBonus = 20
	}
	coolness += wordBonus

	lower := strings.ToLower(role)
	for _, kw := range roleKeywords {
		if strings.Contains(lower, kw) {
			coolness += 15
			break
		}
	}
	if satiricalPattern.MatchString(role) {
		coolness += 10
	}

	if coolness > 100 {
		coolness = 100
	}
	return coolness
}

// clampSignal rounds and clamps a model-supplied signal to [0,100], or
// returns the fallback when the signal is absent.
func clampSignal(signal *float64, fallback int) int {
	if signal == nil {
		return fallback
	}
	v := int(math.Round(*signal))
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
