package domain

// VerdictSource tags which strictness level produced a Verdict.
type VerdictSource string

const (
	// VerdictStructured means the reply carried a decodable JSON payload.
	VerdictStructured VerdictSource = "structured"
	// VerdictPatternMatched means the grant phrase was recovered by regex.
	VerdictPatternMatched VerdictSource = "pattern"
	// VerdictUnrecognized means neither strategy applied; default deny.
	VerdictUnrecognized VerdictSource = "unrecognized"
)

// Verdict is the structured outcome of parsing one assistant reply. All
// fields are always populated: absent signals are nil, never zero values.
type Verdict struct {
	Message      string
	Granted      bool
	Role         *string
	VibeScore    *float64
	RoleCoolness *float64
	Source       VerdictSource
}

// Score is the breakdown recorded for a granted conversation. All components
// are integers in [0,100] except ExchangeCount.
type Score struct {
	TotalScore    int `json:"totalScore"`
	RoleCoolness  int `json:"roleCoolness"`
	VibeScore     int `json:"vibeScore"`
	ExchangeScore int `json:"exchangeScore"`
	ExchangeCount int `json:"exchangeCount"`
}

// HighScore is one leaderboard row.
type HighScore struct {
	Username      string `json:"username"`
	Role          string `json:"role"`
	Score         int    `json:"score"`
	RoleCoolness  int    `json:"roleCoolness"`
	VibeScore     int    `json:"vibeScore"`
	ExchangeScore int    `json:"exchangeScore"`
	ExchangeCount int    `json:"exchangeCount"`
	CreatedAt     string `json:"createdAt"`
}
