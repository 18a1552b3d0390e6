package domain

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	risk "github.com/fd1az/arbitrage-scanner/business/risk/domain"
)

// Rejection reasons.
const (
	ReasonExpired        = "expired"
	ReasonEmergencyStop  = "emergency stop active"
	ReasonPaused         = "execution paused"
	ReasonRiskRejected   = "rejected by risk assessment"
	ReasonBelowMinProfit = "profit below strategy minimum"
	ReasonBelowMinSize   = "position size below minimum"
)

// Decision is the gate's verdict on one candidate.
type Decision struct {
	CandidateID string          `json:"candidate_id"`
	Admitted    bool            `json:"admitted"`
	Reason      string          `json:"reason,omitempty"`
	Size        decimal.Decimal `json:"size"` // quote currency, zero unless admitted
	RiskScore   float64         `json:"risk_score"`
}

// GateInput is everything Admit looks at.
type GateInput struct {
	Candidate  *detection.Candidate
	Assessment risk.Assessment
	Portfolio  risk.PortfolioState
	Policy     detection.ProfitPolicy
	MinSize    decimal.Decimal
	Now        time.Time
}

// Admit decides whether a candidate may proceed to execution. It has no
// side effects. Checks run in a fixed order and the first failure names
// the reason.
func Admit(in GateInput) Decision {
	c := in.Candidate
	d := Decision{CandidateID: c.ID, RiskScore: in.Assessment.Score}

	switch {
	case c.Expired(in.Now):
		d.Reason = ReasonExpired
	case !in.Portfolio.ExecutionEnabled || in.Portfolio.Emergency.ShouldStop:
		d.Reason = ReasonEmergencyStop
	case in.Portfolio.Halted():
		d.Reason = ReasonPaused
	case in.Assessment.Recommendation == risk.RecommendReject:
		d.Reason = ReasonRiskRejected
	case c.ProfitPct.LessThan(in.Policy.MinFor(c.Strategy)):
		d.Reason = fmt.Sprintf("%s: %s%% < %s%%", ReasonBelowMinProfit,
			c.ProfitPct.StringFixed(4), in.Policy.MinFor(c.Strategy).StringFixed(4))
	case !in.Assessment.PositionSize.IsPositive() || in.Assessment.PositionSize.LessThan(in.MinSize):
		d.Reason = fmt.Sprintf("%s: %s < %s", ReasonBelowMinSize,
			in.Assessment.PositionSize.StringFixed(2), in.MinSize.StringFixed(2))
	default:
		d.Admitted = true
		d.Size = in.Assessment.PositionSize
	}
	return d
}

// Ranked pairs an admitted candidate with its size.
type Ranked struct {
	Candidate *detection.Candidate
	Size      decimal.Decimal
}

// Rank orders admitted candidates by profit percentage times confidence,
// descending, with the id as tie-break, and keeps at most limit.
func Rank(admitted []Ranked, limit int) []Ranked {
	out := slices.Clone(admitted)
	slices.SortStableFunc(out, func(a, b Ranked) int {
		if c := b.Candidate.CompositeScore().Cmp(a.Candidate.CompositeScore()); c != 0 {
			return c
		}
		return cmp.Compare(a.Candidate.ID, b.Candidate.ID)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
