package policy

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidPolicy indicates a policy failed load-time validation.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
	// ErrDuplicatePolicy indicates two policies were registered for the same operation.
	ErrDuplicatePolicy = errors.New("duplicate rate limit policy")
)

// Policy holds the static limiting parameters for one protected operation.
// Policies are validated once at registry construction and never mutated.
type Policy struct {
	Operation           string
	MaxAttempts         int
	WindowDuration      time.Duration
	BaseBlockDuration   time.Duration
	BackoffMultiplier   float64
	MaxBlockDuration    time.Duration
	ViolationResetAfter time.Duration
}

func (p Policy) validate() error {
	switch {
	case p.Operation == "":
		return fmt.Errorf("%w: empty operation", ErrInvalidPolicy)
	case p.MaxAttempts <= 0:
		return fmt.Errorf("%w: %s: max attempts must be positive", ErrInvalidPolicy, p.Operation)
	case p.WindowDuration <= 0:
		return fmt.Errorf("%w: %s: window duration must be positive", ErrInvalidPolicy, p.Operation)
	case p.BaseBlockDuration <= 0:
		return fmt.Errorf("%w: %s: base block duration must be positive", ErrInvalidPolicy, p.Operation)
	case p.BackoffMultiplier < 1:
		return fmt.Errorf("%w: %s: backoff multiplier must be >= 1", ErrInvalidPolicy, p.Operation)
	case p.MaxBlockDuration < p.BaseBlockDuration:
		return fmt.Errorf("%w: %s: max block duration below base", ErrInvalidPolicy, p.Operation)
	case p.ViolationResetAfter <= 0:
		return fmt.Errorf("%w: %s: violation reset horizon must be positive", ErrInvalidPolicy, p.Operation)
	}
	return nil
}

// Registry maps operations to their policies. Populated once, read-only
// afterwards, so lookups need no locking on the hot path.
type Registry struct {
	policies map[string]Policy
}

// NewRegistry validates and indexes the given policies.
func NewRegistry(policies []Policy) (*Registry, error) {
	index := make(map[string]Policy, len(policies))
	for _, p := range policies {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, exists := index[p.Operation]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePolicy, p.Operation)
		}
		index[p.Operation] = p
	}
	return &Registry{policies: index}, nil
}

// Get returns the policy for an operation. The second return is false for
// operations that were never registered; callers treat those as unlimited.
func (r *Registry) Get(operation string) (Policy, bool) {
	p, ok := r.policies[operation]
	return p, ok
}

// Operations returns the registered operation names, for startup diagnostics.
func (r *Registry) Operations() []string {
	ops := make([]string, 0, len(r.policies))
	for op := range r.policies {
		ops = append(ops, op)
	}
	return ops
}
