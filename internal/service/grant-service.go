package service

import (
	"context"
	"errors"
	"fmt"

	"permission-service/internal/events"
	"permission-service/internal/models"
)

var ErrInvalidRole = errors.New("unknown role")
var ErrInvalidLevel = errors.New("invalid permission level")

// GrantStore is the mutation surface for grants and memberships.
type GrantStore interface {
	UpsertGrant(ctx context.Context, grant *models.Grant) (*models.Grant, error)
	DeleteGrant(ctx context.Context, resourceID, subjectType, subjectID string) error
	ResourceIDsWithGrantsFor(ctx context.Context, subjectID string) ([]string, error)
	UpsertWorkspaceMember(ctx context.Context, member *models.WorkspaceMember) (*models.WorkspaceMember, error)
	DeleteWorkspaceMember(ctx context.Context, workspaceID, userID string) error
	UpsertSubspaceMember(ctx context.Context, member *models.SubspaceMember) (*models.SubspaceMember, error)
	DeleteSubspaceMember(ctx context.Context, subspaceID, userID string) error
	AddGroupMember(ctx context.Context, member *models.GroupMember) (*models.GroupMember, error)
	RemoveGroupMember(ctx context.Context, groupID, userID string) error
	DocumentIDsByWorkspace(ctx context.Context, workspaceID string) ([]string, error)
	DocumentIDsBySubspace(ctx context.Context, subspaceID string) ([]string, error)
}

// Submitter accepts raw change events for coalesced delivery.
type Submitter interface {
	Submit(event *events.PermissionChangedEvent)
}

// GrantService is the administrative mutation path. Every mutation
// invalidates the affected cache entries before it returns; only the
// outbound notification goes through the coalescer.
type GrantService struct {
	store     GrantStore
	cache     PermissionCache
	coalescer Submitter
}

func NewGrantService(store GrantStore, cache PermissionCache, coalescer Submitter) *GrantService {
	return &GrantService{
		store:     store,
		cache:     cache,
		coalescer: coalescer,
	}
}

// GrantLevel writes a direct or group grant on a resource.
func (s *GrantService) GrantLevel(ctx context.Context, actorID, resourceID, resourceType, subjectType, subjectID string, level models.PermissionLevel) (*models.Grant, error) {
	if level <= models.LevelNone || level > models.LevelManage {
		return nil, ErrInvalidLevel
	}
	if subjectType != models.SubjectUser && subjectType != models.SubjectGroup {
		return nil, fmt.Errorf("unknown subject type %q", subjectType)
	}

	grant, err := s.store.UpsertGrant(ctx, &models.Grant{
		ResourceID:   resourceID,
		ResourceType: resourceType,
		SubjectType:  subjectType,
		SubjectID:    subjectID,
		Level:        level,
		GrantedBy:    actorID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, resourceID); err != nil {
		return nil, fmt.Errorf("invalidating cache after grant: %w", err)
	}

	event := events.NewPermissionChangedEvent(events.PermissionGranted, actorID, resourceID, resourceType)
	event.SubjectType = subjectType
	event.SubjectID = subjectID
	event.Level = level.String()
	event.Affected = []events.AffectedResource{{ID: resourceID, Level: level.String()}}
	s.coalescer.Submit(event)

	return grant, nil
}

// RevokeLevel removes a grant. Revoking a grant that does not exist
// returns models.ErrNotFound.
func (s *GrantService) RevokeLevel(ctx context.Context, actorID, resourceID, resourceType, subjectType, subjectID string) error {
	if err := s.store.DeleteGrant(ctx, resourceID, subjectType, subjectID); err != nil {
		return err
	}

	if err := s.cache.Invalidate(ctx, resourceID); err != nil {
		return fmt.Errorf("invalidating cache after revoke: %w", err)
	}

	event := events.NewPermissionChangedEvent(events.PermissionRevoked, actorID, resourceID, resourceType)
	event.SubjectType = subjectType
	event.SubjectID = subjectID
	event.Affected = []events.AffectedResource{{ID: resourceID, Level: models.LevelNone.String()}}
	s.coalescer.Submit(event)

	return nil
}

// BulkGrantDocuments applies one level to many documents for one
// subject. The coalescer folds the per-document events into a single
// notification.
func (s *GrantService) BulkGrantDocuments(ctx context.Context, actorID, workspaceID string, documentIDs []string, subjectType, subjectID string, level models.PermissionLevel) error {
	if level <= models.LevelNone || level > models.LevelManage {
		return ErrInvalidLevel
	}

	for _, documentID := range documentIDs {
		_, err := s.store.UpsertGrant(ctx, &models.Grant{
			ResourceID:   documentID,
			ResourceType: models.ResourceDocument,
			SubjectType:  subjectType,
			SubjectID:    subjectID,
			Level:        level,
			GrantedBy:    actorID,
		})
		if err != nil {
			return err
		}
	}

	if err := s.cache.InvalidateMany(ctx, documentIDs); err != nil {
		return fmt.Errorf("invalidating cache after bulk grant: %w", err)
	}

	affected := make([]events.AffectedResource, len(documentIDs))
	for i, documentID := range documentIDs {
		affected[i] = events.AffectedResource{ID: documentID, Level: level.String()}
	}
	event := events.NewPermissionChangedEvent(events.PermissionBulkChanged, actorID, workspaceID, models.ResourceWorkspace)
	event.WorkspaceID = workspaceID
	event.SubjectType = subjectType
	event.SubjectID = subjectID
	event.Level = level.String()
	event.Affected = affected
	s.coalescer.Submit(event)

	return nil
}

// AssignWorkspaceRole sets a user's role in a workspace and flushes
// every cached level under it: a role change retunes the floor for the
// whole hierarchy.
func (s *GrantService) AssignWorkspaceRole(ctx context.Context, actorID, workspaceID, userID, role string) (*models.WorkspaceMember, error) {
	if _, ok := models.WorkspaceRoleLevels[role]; !ok {
		return nil, fmt.Errorf("%w: workspace role %q", ErrInvalidRole, role)
	}

	member, err := s.store.UpsertWorkspaceMember(ctx, &models.WorkspaceMember{
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        role,
		AddedBy:     actorID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.invalidateWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	s.submitRoleEvent(events.RoleAssigned, actorID, workspaceID, models.ResourceWorkspace, userID, models.WorkspaceRoleLevel(role))

	return member, nil
}

func (s *GrantService) RemoveWorkspaceRole(ctx context.Context, actorID, workspaceID, userID string) error {
	if err := s.store.DeleteWorkspaceMember(ctx, workspaceID, userID); err != nil {
		return err
	}
	if err := s.invalidateWorkspace(ctx, workspaceID); err != nil {
		return err
	}
	s.submitRoleEvent(events.RoleRemoved, actorID, workspaceID, models.ResourceWorkspace, userID, models.LevelNone)
	return nil
}

func (s *GrantService) AssignSubspaceRole(ctx context.Context, actorID, subspaceID, userID, role string) (*models.SubspaceMember, error) {
	if _, ok := models.SubspaceRoleLevels[role]; !ok {
		return nil, fmt.Errorf("%w: subspace role %q", ErrInvalidRole, role)
	}

	member, err := s.store.UpsertSubspaceMember(ctx, &models.SubspaceMember{
		SubspaceID: subspaceID,
		UserID:     userID,
		Role:       role,
		AddedBy:    actorID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.invalidateSubspace(ctx, subspaceID); err != nil {
		return nil, err
	}
	s.submitRoleEvent(events.RoleAssigned, actorID, subspaceID, models.ResourceSubspace, userID, models.SubspaceRoleLevel(role))

	return member, nil
}

func (s *GrantService) RemoveSubspaceRole(ctx context.Context, actorID, subspaceID, userID string) error {
	if err := s.store.DeleteSubspaceMember(ctx, subspaceID, userID); err != nil {
		return err
	}
	if err := s.invalidateSubspace(ctx, subspaceID); err != nil {
		return err
	}
	s.submitRoleEvent(events.RoleRemoved, actorID, subspaceID, models.ResourceSubspace, userID, models.LevelNone)
	return nil
}

// AddGroupMember extends every grant the group holds to the new
// member, so each granted resource's cached levels must go.
func (s *GrantService) AddGroupMember(ctx context.Context, actorID, groupID, userID string) (*models.GroupMember, error) {
	member, err := s.store.AddGroupMember(ctx, &models.GroupMember{
		GroupID: groupID,
		UserID:  userID,
		AddedBy: actorID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.invalidateGroupResources(ctx, groupID); err != nil {
		return nil, err
	}
	s.submitRoleEvent(events.RoleAssigned, actorID, groupID, models.ResourceGroup, userID, models.LevelNone)

	return member, nil
}

func (s *GrantService) RemoveGroupMember(ctx context.Context, actorID, groupID, userID string) error {
	if err := s.store.RemoveGroupMember(ctx, groupID, userID); err != nil {
		return err
	}
	if err := s.invalidateGroupResources(ctx, groupID); err != nil {
		return err
	}
	s.submitRoleEvent(events.RoleRemoved, actorID, groupID, models.ResourceGroup, userID, models.LevelNone)
	return nil
}

func (s *GrantService) invalidateWorkspace(ctx context.Context, workspaceID string) error {
	documentIDs, err := s.store.DocumentIDsByWorkspace(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("expanding workspace invalidation: %w", err)
	}
	ids := append([]string{workspaceID}, documentIDs...)
	if err := s.cache.InvalidateMany(ctx, ids); err != nil {
		return fmt.Errorf("invalidating cache after role change: %w", err)
	}
	return nil
}

func (s *GrantService) invalidateSubspace(ctx context.Context, subspaceID string) error {
	documentIDs, err := s.store.DocumentIDsBySubspace(ctx, subspaceID)
	if err != nil {
		return fmt.Errorf("expanding subspace invalidation: %w", err)
	}
	ids := append([]string{subspaceID}, documentIDs...)
	if err := s.cache.InvalidateMany(ctx, ids); err != nil {
		return fmt.Errorf("invalidating cache after role change: %w", err)
	}
	return nil
}

func (s *GrantService) invalidateGroupResources(ctx context.Context, groupID string) error {
	resourceIDs, err := s.store.ResourceIDsWithGrantsFor(ctx, groupID)
	if err != nil {
		return fmt.Errorf("expanding group invalidation: %w", err)
	}
	ids := append([]string{groupID}, resourceIDs...)
	if err := s.cache.InvalidateMany(ctx, ids); err != nil {
		return fmt.Errorf("invalidating cache after membership change: %w", err)
	}
	return nil
}

func (s *GrantService) submitRoleEvent(eventType events.EventType, actorID, resourceID, resourceType, subjectID string, level models.PermissionLevel) {
	event := events.NewPermissionChangedEvent(eventType, actorID, resourceID, resourceType)
	event.SubjectType = models.SubjectUser
	event.SubjectID = subjectID
	if level > models.LevelNone {
		event.Level = level.String()
	}
	event.Affected = []events.AffectedResource{{ID: resourceID, Level: level.String()}}
	s.coalescer.Submit(event)
}
