// internal/core/domain/risk/gate.go
package risk

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

type Limits struct {
	MaxDailyLoss         decimal.Decimal
	MaxConsecutiveLosses int
	MaxPerAsset          int
	MaxGlobal            int
}

type TradeContext struct {
	DailyLoss         decimal.Decimal
	ConsecutiveLosses int
	Asset             string
}

type Reason string

const (
	ReasonDailyLoss         Reason = "daily_loss_limit"
	ReasonConsecutiveLosses Reason = "consecutive_losses"
	ReasonAssetExposure     Reason = "asset_exposure_cap"
	ReasonGlobalExposure    Reason = "global_exposure_cap"
)

// Decision is a value: rejections are never errors.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Reasons []Reason `json:"reasons,omitempty"`
}

func (d Decision) String() string {
	if d.Allowed {
		return "allowed"
	}
	parts := make([]string, len(d.Reasons))
	for i, r := range d.Reasons {
		parts[i] = string(r)
	}
	return "blocked: " + strings.Join(parts, ", ")
}

type Gate struct {
	limits      Limits
	correlation *CorrelationManager
}

func NewGate(limits Limits, correlation *CorrelationManager) *Gate {
	if correlation == nil {
		correlation = NewCorrelationManager()
	}
	return &Gate{limits: limits, correlation: correlation}
}

func (g *Gate) Limits() Limits {
	return g.limits
}

func (g *Gate) Correlation() *CorrelationManager {
	return g.correlation
}

// Evaluate checks every rule and returns all triggered reasons.
func (g *Gate) Evaluate(tc TradeContext) Decision {
	g.correlation.mu.Lock()
	defer g.correlation.mu.Unlock()
	return g.evaluateLocked(tc)
}

// Admit evaluates and, when allowed, registers one open slot for the asset
// under the same lock.
func (g *Gate) Admit(tc TradeContext) Decision {
	g.correlation.mu.Lock()
	defer g.correlation.mu.Unlock()

	d := g.evaluateLocked(tc)
	if d.Allowed {
		g.correlation.registerLocked(tc.Asset, 1)
	} else {
		logger.Info("🛡️ Risk gate rejected %s: %s", tc.Asset, d)
	}
	return d
}

func (g *Gate) evaluateLocked(tc TradeContext) Decision {
	var reasons []Reason
	if tc.DailyLoss.GreaterThanOrEqual(g.limits.MaxDailyLoss) {
		reasons = append(reasons, ReasonDailyLoss)
	}
	if tc.ConsecutiveLosses >= g.limits.MaxConsecutiveLosses {
		reasons = append(reasons, ReasonConsecutiveLosses)
	}
	if g.correlation.perAsset[tc.Asset] >= g.limits.MaxPerAsset {
		reasons = append(reasons, ReasonAssetExposure)
	}
	if g.correlation.global >= g.limits.MaxGlobal {
		reasons = append(reasons, ReasonGlobalExposure)
	}
	return Decision{Allowed: len(reasons) == 0, Reasons: reasons}
}
