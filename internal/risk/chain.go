package risk

import (
	"lobsim/internal/schema"
	"lobsim/internal/snapshot"
)

// Policy is one pluggable risk check.
// Evaluate returns Allow, Reject, or Transform with the replacement in Intent.
type Policy interface {
	Name() string
	Evaluate(intent schema.Intent, snap *snapshot.Snapshot) schema.RiskDecision
}

// Chain runs policies in order. It stops at the first Reject and feeds
// transformed intents to the remaining policies.
type Chain struct {
	policies   []Policy
	killSwitch bool
}

// NewChain creates a chain with the kill switch in the given state.
func NewChain(killSwitch bool, policies ...Policy) *Chain {
	return &Chain{policies: policies, killSwitch: killSwitch}
}

// Engage turns the kill switch on. Accepted orders are unaffected.
func (c *Chain) Engage() {
	c.killSwitch = true
}

// Release turns the kill switch off.
func (c *Chain) Release() {
	c.killSwitch = false
}

// Engaged reports whether the kill switch is on.
func (c *Chain) Engaged() bool {
	return c.killSwitch
}

// Names returns the policy names in evaluation order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.policies))
	for i, p := range c.policies {
		names[i] = p.Name()
	}
	return names
}

// Evaluate runs intent through the kill switch and every policy.
func (c *Chain) Evaluate(intent schema.Intent, snap *snapshot.Snapshot) schema.RiskDecision {
	if c.killSwitch {
		return Reject(intent, KillSwitchName, schema.RiskReasonKillSwitch)
	}

	current := intent
	transformed := false
	decision := Allow(intent)
	for _, p := range c.policies {
		d := p.Evaluate(current, snap)
		switch d.Action {
		case schema.RiskActionReject:
			d.Original = intent
			d.Intent = current
			if d.Policy == "" {
				d.Policy = p.Name()
			}
			return d
		case schema.RiskActionTransform:
			current = d.Intent
			transformed = true
			decision.Policy = p.Name()
			decision.Reason = d.Reason
		}
	}
	if transformed {
		decision.Action = schema.RiskActionTransform
		decision.Intent = current
	}
	return decision
}

// KillSwitchName is the policy name reported for kill switch rejections.
const KillSwitchName = "kill_switch"

// Allow passes intent unchanged.
func Allow(intent schema.Intent) schema.RiskDecision {
	return schema.RiskDecision{Action: schema.RiskActionAllow, Reason: schema.RiskReasonNone, Original: intent, Intent: intent}
}

// Reject blocks intent.
func Reject(intent schema.Intent, policy string, reason schema.RiskReason) schema.RiskDecision {
	return schema.RiskDecision{Action: schema.RiskActionReject, Reason: reason, Policy: policy, Original: intent, Intent: intent}
}

// Transform replaces original with next.
func Transform(original, next schema.Intent, policy string, reason schema.RiskReason) schema.RiskDecision {
	return schema.RiskDecision{Action: schema.RiskActionTransform, Reason: reason, Policy: policy, Original: original, Intent: next}
}
