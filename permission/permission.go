// Package permission resolves whether a requester may perform an action
// on a target entity. Resolution walks an explicit, ordered list of
// rules so the cascade stays auditable: a direct grant is consulted
// first, then the check cascades to the target's structural parent
// through a per-category action remapping table. Absence of a rule is
// never permission: the chain is closed by default.
package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/geoforge/terrane"
)

// Rule decision sentinel errors.
//
// These errors are used as return values from rules to indicate how the
// resolution should proceed. Use errors.Is() to check for these values:
//
//	if errors.Is(err, permission.Allow) { ... }
//	if errors.Is(err, permission.Deny) { ... }
//	if errors.Is(err, permission.Skip) { ... }
var (
	// Allow may be returned by rules to terminate resolution with a
	// granted decision.
	Allow = errors.New("terrane/permission: allow rule")

	// Deny may be returned by rules to terminate resolution with a
	// denied decision.
	Deny = errors.New("terrane/permission: deny rule")

	// Skip may be returned by rules to abstain and pass evaluation to
	// the next rule in the chain.
	Skip = errors.New("terrane/permission: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Requester represents the authenticated principal making a request.
type Requester interface {
	// GetID returns the requester's unique identifier.
	GetID() string
	// GetRoles returns the requester's roles.
	GetRoles() []string
}

// SimpleRequester is a basic implementation of the Requester interface.
type SimpleRequester struct {
	UserID string
	Roles  []string
}

// GetID returns the user ID.
func (r *SimpleRequester) GetID() string { return r.UserID }

// GetRoles returns the user's roles.
func (r *SimpleRequester) GetRoles() []string { return r.Roles }

type requesterCtxKey struct{}

// WithRequester returns a new context with the requester attached.
func WithRequester(ctx context.Context, requester Requester) context.Context {
	return context.WithValue(ctx, requesterCtxKey{}, requester)
}

// RequesterFromContext retrieves the requester from the context.
// Returns nil if no requester is present.
func RequesterFromContext(ctx context.Context) Requester {
	r, _ := ctx.Value(requesterCtxKey{}).(Requester)
	return r
}

// GrantStore is the external authorization store. The resolver only
// consumes grants; it never writes them.
type GrantStore interface {
	// GrantFor looks up a direct grant for the tuple. found is false
	// when no grant is recorded; granted carries the grant's truth
	// value when one is.
	GrantFor(ctx context.Context, requester Requester, action terrane.Action, target terrane.Entity) (granted, found bool, err error)
}

// Rule decides one step of a permission check, returning Allow, Deny,
// Skip, or nil (treated as Skip).
type Rule interface {
	Eval(ctx context.Context, requester Requester, action terrane.Action, target terrane.Entity) error
}

// RuleFunc is an adapter allowing ordinary functions as rules.
type RuleFunc func(ctx context.Context, requester Requester, action terrane.Action, target terrane.Entity) error

// Eval returns f(ctx, requester, action, target).
func (f RuleFunc) Eval(ctx context.Context, requester Requester, action terrane.Action, target terrane.Entity) error {
	return f(ctx, requester, action, target)
}

// Resolver evaluates an ordered rule chain. It holds no state beyond
// the chain itself and is safe for concurrent per-request use.
type Resolver struct {
	rules []Rule
}

// NewResolver returns a resolver over the given rules, evaluated in
// order.
func NewResolver(rules ...Rule) *Resolver {
	return &Resolver{rules: rules}
}

// HasPermission reports whether the requester may perform the action on
// the target. The first Allow grants; any Deny or rule failure denies;
// an exhausted chain denies. Denials are return values, not errors: the
// caller decides whether a denial becomes a user-visible rejection or a
// silent omission.
func (r *Resolver) HasPermission(ctx context.Context, requester Requester, action terrane.Action, target terrane.Entity) bool {
	for _, rule := range r.rules {
		switch decision := rule.Eval(ctx, requester, action, target); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return true
		default:
			// Deny, or an evaluation failure: closed by default.
			return false
		}
	}
	return false
}
