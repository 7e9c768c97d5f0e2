// Package scope computes which index partitions a caller may read. The
// resolution is evaluated fresh on every call so that visibility changes
// (org suspension, revoked membership) take effect immediately; nothing
// here is cached.
package scope

import (
	"context"
	"fmt"

	"github.com/DocentAI/docent-mvp/engine/domain"
	"github.com/DocentAI/docent-mvp/engine/index"
)

// Directory is the tenancy lookup the resolver depends on. Implemented by
// engine/directory; tests use stubs.
type Directory interface {
	// MembershipOf returns the user's membership, or nil if none exists.
	MembershipOf(ctx context.Context, userID string) (*domain.Membership, error)
	// Organization returns the organization, or nil if it does not exist.
	Organization(ctx context.Context, orgID string) (*domain.Organization, error)
}

// Set is a resolved scope: either unrestricted (platform super-access) or an
// explicit list of index keys. OrgID is the caller's active organization for
// quota attribution; empty means unmetered usage.
type Set struct {
	Unrestricted bool
	Keys         []string
	OrgID        string
}

// Contains reports whether the set allows reading the given scope key.
func (s Set) Contains(key string) bool {
	if s.Unrestricted {
		return true
	}
	for _, k := range s.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Resolver resolves a user's readable scope set.
type Resolver struct {
	dir Directory
}

// NewResolver creates a Resolver backed by the given directory.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve computes the scope set for a user. Superusers see everything.
// Everyone else sees their own index plus the public index, plus their
// organization's index only while both the membership and the organization
// are active; a suspended tenant is excluded even though the membership
// row still exists (fail closed).
func (r *Resolver) Resolve(ctx context.Context, user domain.User) (Set, error) {
	if user.Superuser {
		return Set{Unrestricted: true}, nil
	}

	set := Set{Keys: []string{index.UserScope(user.ID), index.PublicScope}}

	member, err := r.dir.MembershipOf(ctx, user.ID)
	if err != nil {
		return Set{}, fmt.Errorf("scope: membership of %s: %w", user.ID, err)
	}
	if member == nil || !member.Active {
		return set, nil
	}

	org, err := r.dir.Organization(ctx, member.OrgID)
	if err != nil {
		return Set{}, fmt.Errorf("scope: organization %s: %w", member.OrgID, err)
	}
	if org == nil || !org.Active {
		return set, nil
	}

	set.Keys = append(set.Keys, index.OrgScope(org.ID))
	set.OrgID = org.ID
	return set, nil
}
