package permission

import (
	"context"
	"errors"
	"slices"

	"github.com/geoforge/terrane"
	"github.com/geoforge/terrane/registry"
)

// ParentLoader fetches a structural parent instance by type and ID.
// storage.Store satisfies it.
type ParentLoader interface {
	Get(ctx context.Context, typeName, id string) (terrane.Entity, error)
}

// DirectGrant returns the rule consulting the authorization store for a
// grant recorded directly against the target. A found grant terminates
// resolution with its truth value; no grant abstains.
func DirectGrant(store GrantStore) Rule {
	return RuleFunc(func(ctx context.Context, requester Requester, action terrane.Action, target terrane.Entity) error {
		granted, found, err := store.GrantFor(ctx, requester, action, target)
		if err != nil {
			return Denyf("terrane/permission: grant lookup failed: %v", err)
		}
		if !found {
			return Skip
		}
		if granted {
			return Allow
		}
		return Denyf("terrane/permission: grant denies %s on %s", action, target.EntityType())
	})
}

// ParentCascade returns the rule cascading a check to the target's
// structural parent. At each level the action is remapped through the
// child category's action table and a direct grant is consulted on the
// parent; without a grant the walk continues upward. The cascade
// follows only the registered HierarchyLink of each type: an entity
// referencing an instance of another collection never inherits that
// collection's permissions.
//
// Missing link, missing action mapping, or missing parent instance all
// abstain; they never grant. Revisiting an instance denies: a cyclic
// hierarchy is a misconfiguration and must reject the operation rather
// than wedge the request.
func ParentCascade(ledger *registry.Ledger, store GrantStore, loader ParentLoader) Rule {
	return RuleFunc(func(ctx context.Context, requester Requester, action terrane.Action, target terrane.Entity) error {
		visited := make(map[string]bool)
		for {
			key := target.EntityType() + "/" + target.ID()
			if visited[key] {
				return Denyf("terrane/permission: hierarchy cycle at %s", key)
			}
			visited[key] = true
			rec, err := ledger.ResolveEntity(target)
			if err != nil {
				return Skipf("terrane/permission: %v", err)
			}
			link := rec.Type.Parent
			if link == nil {
				return Skip
			}
			mapped, ok := ledger.RemapAction(cascadeKey(rec), action)
			if !ok {
				return Skip
			}
			raw, ok := target.Get(link.Field)
			if !ok {
				return Skip
			}
			parentID, ok := raw.(string)
			if !ok || parentID == "" {
				return Skip
			}
			parent, err := loader.Get(ctx, link.Parent, parentID)
			if err != nil {
				if errors.Is(err, terrane.ErrNotFound) {
					return Skip
				}
				return Denyf("terrane/permission: parent lookup failed: %v", err)
			}
			granted, found, err := store.GrantFor(ctx, requester, mapped, parent)
			if err != nil {
				return Denyf("terrane/permission: grant lookup failed: %v", err)
			}
			if found {
				if granted {
					return Allow
				}
				return Denyf("terrane/permission: grant denies %s on %s", mapped, parent.EntityType())
			}
			target, action = parent, mapped
		}
	})
}

// cascadeKey selects the action table for a record: its category, or
// the type name itself for freestanding types.
func cascadeKey(rec *registry.Record) string {
	if rec.Category != "" {
		return rec.Category
	}
	return rec.Type.Name
}

// DenyIfNoRequester returns a rule denying when the requester is nil.
// Typically the first rule in a chain requiring authentication.
func DenyIfNoRequester() Rule {
	return RuleFunc(func(_ context.Context, requester Requester, _ terrane.Action, _ terrane.Entity) error {
		if requester == nil {
			return Denyf("terrane/permission: requester required")
		}
		return Skip
	})
}

// HasRole returns a rule allowing requesters holding the role, such as
// a manager role that may act on any instance. Abstains otherwise.
func HasRole(role string) Rule {
	return RuleFunc(func(_ context.Context, requester Requester, _ terrane.Action, _ terrane.Entity) error {
		if requester == nil {
			return Skip
		}
		if slices.Contains(requester.GetRoles(), role) {
			return Allow
		}
		return Skip
	})
}

// Default returns the conventional resolver: authentication guard,
// direct grant, then the hierarchy cascade.
func Default(ledger *registry.Ledger, store GrantStore, loader ParentLoader) *Resolver {
	return NewResolver(
		DenyIfNoRequester(),
		DirectGrant(store),
		ParentCascade(ledger, store, loader),
	)
}
