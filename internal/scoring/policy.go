package scoring

import (
	"sync"
	"time"
)

// PolicyConfig tunes the Selection Policy's thrash prevention.
type PolicyConfig struct {
	CooldownSeconds  int
	HysteresisDelta  float64
}

// DefaultPolicyConfig matches the original system's defaults.
func DefaultPolicyConfig() *PolicyConfig {
	return &PolicyConfig{CooldownSeconds: 120, HysteresisDelta: 12.0}
}

// Policy is the process-local Selection Policy state. If multiple replicas
// run, each keeps its own; the database-side rate limit is the cross-replica
// gate (see internal/governance).
type Policy struct {
	mu  sync.Mutex
	cfg *PolicyConfig

	hasCommitment bool
	lastStrategy  string
	lastSelected  time.Time
	lastScore     float64
}

// NewPolicy constructs a Policy.
func NewPolicy(cfg *PolicyConfig) *Policy {
	if cfg == nil {
		cfg = DefaultPolicyConfig()
	}
	return &Policy{cfg: cfg}
}

// Allow reports whether switching to candidateStrategy at candidateScore is
// permitted at time now.
func (p *Policy) Allow(now time.Time, candidateStrategy string, candidateScore float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.hasCommitment {
		return true
	}

	elapsed := now.Sub(p.lastSelected)
	withinCooldown := elapsed < time.Duration(p.cfg.CooldownSeconds)*time.Second

	if withinCooldown {
		return candidateStrategy == p.lastStrategy
	}

	if candidateStrategy == p.lastStrategy {
		return true
	}

	return candidateScore-p.lastScore >= p.cfg.HysteresisDelta
}

// Commit records the selection, superseding any prior commitment.
func (p *Policy) Commit(now time.Time, strategy string, score float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.hasCommitment = true
	p.lastStrategy = strategy
	p.lastSelected = now
	p.lastScore = score
}

// State snapshots the current SelectionPolicyState for observability.
type State struct {
	LastStrategy string
	LastSelected time.Time
	LastScore    float64
}

// Snapshot returns the current policy state.
func (p *Policy) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{LastStrategy: p.lastStrategy, LastSelected: p.lastSelected, LastScore: p.lastScore}
}
