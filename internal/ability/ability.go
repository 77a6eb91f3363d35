// Package ability is a small declarative rule engine for resource
// types that do not need hierarchical aggregation. Rule sets are built
// per principal by registered builders and evaluated with deny-wins
// semantics.
package ability

// Effect is the outcome a rule contributes when it matches.
type Effect string

const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// Wildcards: SubjectAll matches any subject type, ActionManage matches
// any action.
const (
	SubjectAll   = "all"
	ActionManage = "manage"
)

// Condition narrows a rule to subject instances with matching
// attributes. A nil condition matches unconditionally.
type Condition func(subject any) bool

type Rule struct {
	Action  string
	Subject string
	Effect  Effect
	When    Condition
}

// RuleSet holds a principal's rules keyed by subject type.
type RuleSet map[string][]Rule

// Add appends a rule under its subject key.
func (rs RuleSet) Add(rule Rule) {
	rs[rule.Subject] = append(rs[rule.Subject], rule)
}

// Can reports whether the rule set permits the action on the subject.
// It scans rules registered for the subject type and for the "all"
// wildcard, narrowing to those whose action matches (exactly or via
// the "manage" wildcard) and whose condition holds for the instance.
// A matching deny rule always wins over any matching allow rule. No
// matching rule means no permission, never an error.
//
// For a type-level check pass a nil instance: rules carrying a
// condition cannot be evaluated then and are skipped.
func (rs RuleSet) Can(action, subject string, instance any) bool {
	allowed := false
	for _, key := range []string{subject, SubjectAll} {
		for _, rule := range rs[key] {
			if !rule.matches(action, instance) {
				continue
			}
			if rule.Effect == Deny {
				return false
			}
			allowed = true
		}
	}
	return allowed
}

func (r Rule) matches(action string, instance any) bool {
	if r.Action != action && r.Action != ActionManage {
		return false
	}
	if r.When == nil {
		return true
	}
	if instance == nil {
		return false
	}
	return r.When(instance)
}
