package storage

import "time"

// Window is a rolling budget window.
type Window string

const (
	WindowDaily   Window = "daily"
	WindowWeekly  Window = "weekly"
	WindowMonthly Window = "monthly"
)

// Duration returns the rolling interval the window covers.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowWeekly:
		return 7 * 24 * time.Hour
	case WindowMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Windows lists all budget windows in enforcement order.
func Windows() []Window {
	return []Window{WindowDaily, WindowWeekly, WindowMonthly}
}

// Connection is one configured instance of a provider family. Credential
// fields hold vault ciphertext only; plaintext never reaches a row.
type Connection struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Service  string `json:"service"`
	Category string `json:"category"`
	BaseURL  string `json:"base_url"`

	APIKeyEncrypted         string `json:"-"`
	TokenEncrypted          string `json:"-"`
	CredentialPathEncrypted string `json:"-"`

	Enabled   bool `json:"enabled"`
	IsDefault bool `json:"is_default"`

	DailyLimitUSD   float64 `json:"daily_limit_usd"`
	WeeklyLimitUSD  float64 `json:"weekly_limit_usd"`
	MonthlyLimitUSD float64 `json:"monthly_limit_usd"`

	BudgetOverrideUntil *time.Time `json:"budget_override_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LimitFor returns the per-connection USD limit for a window. Zero means
// unlimited.
func (c *Connection) LimitFor(w Window) float64 {
	switch w {
	case WindowWeekly:
		return c.WeeklyLimitUSD
	case WindowMonthly:
		return c.MonthlyLimitUSD
	default:
		return c.DailyLimitUSD
	}
}

// OverrideActive reports whether budget enforcement is currently suppressed
// for this connection.
func (c *Connection) OverrideActive(now time.Time) bool {
	return c.BudgetOverrideUntil != nil && c.BudgetOverrideUntil.After(now)
}

// CostConfig holds per-million-token USD rates for one model. A row without
// a connection id is a legacy/global rate; a row with one is authoritative
// for that connection+model pair.
type CostConfig struct {
	ID            int64     `json:"id"`
	ConnectionID  *int64    `json:"connection_id,omitempty"`
	Model         string    `json:"model"`
	InputPerMTok  float64   `json:"input_cost_per_mtok"`
	OutputPerMTok float64   `json:"output_cost_per_mtok"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BudgetLimits is the global singleton of display-default USD limits.
type BudgetLimits struct {
	DailyUSD   float64 `json:"daily_usd"`
	WeeklyUSD  float64 `json:"weekly_usd"`
	MonthlyUSD float64 `json:"monthly_usd"`
}

// DefaultBudgetLimits are seeded on first read.
var DefaultBudgetLimits = BudgetLimits{DailyUSD: 5, WeeklyUSD: 25, MonthlyUSD: 80}

// Request is one completed LLM call, success or final failure. Append-only.
type Request struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	Model            string    `json:"model"`
	Provider         string    `json:"provider"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	LatencyMS        int64     `json:"latency_ms"`
	Success          bool      `json:"success"`
	Error            string    `json:"error,omitempty"`
	WorkflowName     string    `json:"workflow_name,omitempty"`
}

// APICall is one completed non-LLM upstream call. Append-only.
type APICall struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Service    string    `json:"service"`
	Operation  string    `json:"operation"`
	Endpoint   string    `json:"endpoint"`
	Method     string    `json:"method"`
	StatusCode int       `json:"status_code"`
	LatencyMS  int64     `json:"latency_ms"`
	CostUSD    float64   `json:"cost_usd"`
	Metadata   string    `json:"metadata,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// AlertKind enumerates the alert conditions the monitor evaluates.
type AlertKind string

const (
	AlertConsecutiveErrors AlertKind = "consecutive-errors"
	AlertLatencySpike      AlertKind = "latency-spike"
	AlertBudgetThreshold   AlertKind = "budget-threshold"
)

// Alert is one raised alert condition. At most one alert per dedup key is
// active (neither resolved nor dismissed) at a time.
type Alert struct {
	ID           string     `json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	DismissedAt  *time.Time `json:"dismissed_at,omitempty"`
	ConnectionID int64      `json:"connection_id"`
	Kind         AlertKind  `json:"kind"`
	Severity     string     `json:"severity"`
	Message      string     `json:"message"`
	Metadata     string     `json:"metadata,omitempty"`
}

// Active reports whether the alert is neither resolved nor dismissed.
func (a *Alert) Active() bool {
	return a.ResolvedAt == nil && a.DismissedAt == nil
}

// UsagePoint is one (UTC day, provider) bucket of the usage time series.
type UsagePoint struct {
	Day      string  `json:"day"`
	Provider string  `json:"provider"`
	Requests int64   `json:"requests"`
	Tokens   int64   `json:"tokens"`
	CostUSD  float64 `json:"cost_usd"`
}

// DayStats aggregates 24 hours of traffic for the dashboard tiles or for a
// single provider's health derivation.
type DayStats struct {
	Requests         int64   `json:"requests"`
	Errors           int64   `json:"errors"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
	AvgLatencyMS     float64 `json:"avg_latency_ms"`
}

// ErrorRate returns the fraction of failed requests, zero when idle.
func (s DayStats) ErrorRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Requests)
}
