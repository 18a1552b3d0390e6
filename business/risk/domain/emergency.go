package domain

import "fmt"

// Severity grades an emergency check.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Emergency is the outcome of CheckEmergency.
type Emergency struct {
	ShouldStop bool     `json:"should_stop"`
	Severity   Severity `json:"severity"`
	Reasons    []string `json:"reasons,omitempty"`
}

// CheckEmergency evaluates the portfolio against the hard limits. Loss and
// drawdown breaches are critical. Too many open positions stops execution
// until they settle. High volatility alone only warns.
func CheckEmergency(s PortfolioState, cfg Configuration) Emergency {
	e := Emergency{Severity: SeverityNone}

	if s.DailyLoss.GreaterThanOrEqual(cfg.MaxDailyLoss) {
		e.ShouldStop = true
		e.Severity = SeverityCritical
		e.Reasons = append(e.Reasons, fmt.Sprintf("daily loss %s reached limit %s",
			s.DailyLoss.StringFixed(2), cfg.MaxDailyLoss.StringFixed(2)))
	}

	if dd := s.DrawdownPct(); dd >= cfg.EmergencyDrawdownPct {
		e.ShouldStop = true
		e.Severity = SeverityCritical
		e.Reasons = append(e.Reasons, fmt.Sprintf("drawdown %.2f%% reached limit %.2f%%",
			dd, cfg.EmergencyDrawdownPct))
	}

	if s.ActivePositions > cfg.MaxConcurrentTrades {
		e.ShouldStop = true
		e.escalate(SeverityWarning)
		e.Reasons = append(e.Reasons, fmt.Sprintf("%d active positions above limit %d",
			s.ActivePositions, cfg.MaxConcurrentTrades))
	}

	if s.VolatilityIndex >= cfg.HighVolatilityIndex {
		e.escalate(SeverityWarning)
		e.Reasons = append(e.Reasons, fmt.Sprintf("volatility index %.2f above %.2f",
			s.VolatilityIndex, cfg.HighVolatilityIndex))
	}

	return e
}

func (e *Emergency) escalate(s Severity) {
	if e.Severity != SeverityCritical {
		e.Severity = s
	}
}
