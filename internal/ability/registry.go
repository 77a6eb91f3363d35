package ability

import (
	"context"
	"fmt"
	"sync"
)

// Builder produces a principal's rules for one subject type.
type Builder func(ctx context.Context, principalID string) ([]Rule, error)

// Registry maps subject types to rule builders. It is populated once
// at process initialization; the guard's startup check verifies every
// declared policy type has a builder here or is handled by the
// hierarchical path.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]Builder),
	}
}

// Register installs the builder for a subject type, replacing any
// earlier one.
func (r *Registry) Register(subjectType string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[subjectType] = builder
}

func (r *Registry) Has(subjectType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builders[subjectType]
	return ok
}

func (r *Registry) SubjectTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.builders))
	for t := range r.builders {
		types = append(types, t)
	}
	return types
}

// BuildForPrincipal asks every registered builder for its rules and
// merges them into one rule set.
func (r *Registry) BuildForPrincipal(ctx context.Context, principalID string) (RuleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ruleSet := make(RuleSet)
	for subjectType, builder := range r.builders {
		rules, err := builder(ctx, principalID)
		if err != nil {
			return nil, fmt.Errorf("building %s rules: %w", subjectType, err)
		}
		for _, rule := range rules {
			ruleSet.Add(rule)
		}
	}
	return ruleSet, nil
}
