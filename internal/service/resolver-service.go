package service

import (
	"context"
	"errors"
	"fmt"

	"permission-service/internal/models"
)

// PermissionStore is the query surface the resolver aggregates over.
// Role lookups return models.ErrNotFound when the principal holds no
// role; any other error is an infrastructure failure and propagates.
type PermissionStore interface {
	WorkspaceRole(ctx context.Context, workspaceID, userID string) (string, error)
	SubspaceRole(ctx context.Context, subspaceID, userID string) (string, error)
	GroupIDs(ctx context.Context, userID string) ([]string, error)
	GrantsFor(ctx context.Context, resourceID string, subjectIDs []string) ([]*models.Grant, error)
	Document(ctx context.Context, id string) (*models.Document, error)
	Subspace(ctx context.Context, id string) (*models.Subspace, error)
}

// PermissionResolver computes the effective level a principal holds
// over a hierarchical resource by aggregating workspace role, subspace
// role, direct grants and group grants. The effective level is always
// the maximum ordinal over every applicable source, never a sum and
// never a first-match.
type PermissionResolver struct {
	store PermissionStore
}

func NewPermissionResolver(store PermissionStore) *PermissionResolver {
	return &PermissionResolver{store: store}
}

// Resolve returns the principal's effective level on the resource.
// A missing resource yields LevelNone, not an error: absence of
// permission is normal control flow. Infrastructure failures
// propagate. Inherited grants, when a producer exists, participate as
// extra candidates without changing the aggregation.
func (r *PermissionResolver) Resolve(ctx context.Context, principalID, resourceID, resourceType string, inherited ...models.InheritedGrant) (models.PermissionLevel, error) {
	level := models.LevelNone

	switch resourceType {
	case models.ResourceDocument:
		document, err := r.store.Document(ctx, resourceID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.LevelNone, nil
			}
			return models.LevelNone, fmt.Errorf("resolving document %s: %w", resourceID, err)
		}

		workspaceLevel, err := r.workspaceLevel(ctx, document.WorkspaceID, principalID)
		if err != nil {
			return models.LevelNone, err
		}
		level = models.MaxLevel(level, workspaceLevel)

		if document.SubspaceID != "" {
			subspaceLevel, err := r.subspaceLevel(ctx, document.SubspaceID, principalID)
			if err != nil {
				return models.LevelNone, err
			}
			level = models.MaxLevel(level, subspaceLevel)
		}

	case models.ResourceSubspace:
		subspace, err := r.store.Subspace(ctx, resourceID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.LevelNone, nil
			}
			return models.LevelNone, fmt.Errorf("resolving subspace %s: %w", resourceID, err)
		}

		workspaceLevel, err := r.workspaceLevel(ctx, subspace.WorkspaceID, principalID)
		if err != nil {
			return models.LevelNone, err
		}
		level = models.MaxLevel(level, workspaceLevel)

		subspaceLevel, err := r.subspaceLevel(ctx, resourceID, principalID)
		if err != nil {
			return models.LevelNone, err
		}
		level = models.MaxLevel(level, subspaceLevel)

	case models.ResourceWorkspace:
		workspaceLevel, err := r.workspaceLevel(ctx, resourceID, principalID)
		if err != nil {
			return models.LevelNone, err
		}
		level = models.MaxLevel(level, workspaceLevel)

	default:
		return models.LevelNone, fmt.Errorf("resource type %q has no hierarchical resolution", resourceType)
	}

	grantLevel, err := r.grantLevel(ctx, resourceID, principalID)
	if err != nil {
		return models.LevelNone, err
	}
	level = models.MaxLevel(level, grantLevel)

	for _, grant := range inherited {
		level = models.MaxLevel(level, grant.Level)
	}

	return level, nil
}

func (r *PermissionResolver) workspaceLevel(ctx context.Context, workspaceID, principalID string) (models.PermissionLevel, error) {
	role, err := r.store.WorkspaceRole(ctx, workspaceID, principalID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.LevelNone, nil
		}
		return models.LevelNone, fmt.Errorf("looking up workspace role: %w", err)
	}
	return models.WorkspaceRoleLevel(role), nil
}

func (r *PermissionResolver) subspaceLevel(ctx context.Context, subspaceID, principalID string) (models.PermissionLevel, error) {
	role, err := r.store.SubspaceRole(ctx, subspaceID, principalID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.LevelNone, nil
		}
		return models.LevelNone, fmt.Errorf("looking up subspace role: %w", err)
	}
	return models.SubspaceRoleLevel(role), nil
}

// grantLevel covers direct grants to the principal and grants to any
// group the principal belongs to.
func (r *PermissionResolver) grantLevel(ctx context.Context, resourceID, principalID string) (models.PermissionLevel, error) {
	groupIDs, err := r.store.GroupIDs(ctx, principalID)
	if err != nil {
		return models.LevelNone, fmt.Errorf("listing groups: %w", err)
	}

	subjectIDs := append([]string{principalID}, groupIDs...)
	grants, err := r.store.GrantsFor(ctx, resourceID, subjectIDs)
	if err != nil {
		return models.LevelNone, fmt.Errorf("querying grants: %w", err)
	}

	level := models.LevelNone
	for _, grant := range grants {
		level = models.MaxLevel(level, grant.Level)
	}
	return level, nil
}
