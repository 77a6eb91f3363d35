package repository

import (
	"context"

	"permission-service/internal/models"
)

// Store bundles the query surface the resolution path consumes. The
// service layer depends on this through small interfaces so tests can
// substitute in-memory fakes.
type Store struct {
	WorkspaceMembers *WorkspaceMemberRepository
	SubspaceMembers  *SubspaceMemberRepository
	GroupMembers     *GroupMemberRepository
	Grants           *GrantRepository
	Resources        *ResourceRepository
}

func NewStore(repos *Repositories) *Store {
	return &Store{
		WorkspaceMembers: repos.WorkspaceMemberRepository,
		SubspaceMembers:  repos.SubspaceMemberRepository,
		GroupMembers:     repos.GroupMemberRepository,
		Grants:           repos.GrantRepository,
		Resources:        repos.ResourceRepository,
	}
}

func (s *Store) WorkspaceRole(ctx context.Context, workspaceID, userID string) (string, error) {
	return s.WorkspaceMembers.FindRole(ctx, workspaceID, userID)
}

func (s *Store) SubspaceRole(ctx context.Context, subspaceID, userID string) (string, error) {
	return s.SubspaceMembers.FindRole(ctx, subspaceID, userID)
}

func (s *Store) GroupIDs(ctx context.Context, userID string) ([]string, error) {
	return s.GroupMembers.FindGroupIDs(ctx, userID)
}

func (s *Store) GrantsFor(ctx context.Context, resourceID string, subjectIDs []string) ([]*models.Grant, error) {
	return s.Grants.FindForSubjects(ctx, resourceID, subjectIDs)
}

func (s *Store) Document(ctx context.Context, id string) (*models.Document, error) {
	return s.Resources.FindDocument(ctx, id)
}

func (s *Store) Subspace(ctx context.Context, id string) (*models.Subspace, error) {
	return s.Resources.FindSubspace(ctx, id)
}

func (s *Store) Workspace(ctx context.Context, id string) (*models.Workspace, error) {
	return s.Resources.FindWorkspace(ctx, id)
}

func (s *Store) WorkspaceRolesByUser(ctx context.Context, userID string) ([]*models.WorkspaceMember, error) {
	return s.WorkspaceMembers.FindByUser(ctx, userID)
}

func (s *Store) SubspaceRolesByUser(ctx context.Context, userID string) ([]*models.SubspaceMember, error) {
	return s.SubspaceMembers.FindByUser(ctx, userID)
}

func (s *Store) UpsertGrant(ctx context.Context, grant *models.Grant) (*models.Grant, error) {
	return s.Grants.Upsert(ctx, grant)
}

func (s *Store) DeleteGrant(ctx context.Context, resourceID, subjectType, subjectID string) error {
	return s.Grants.Delete(ctx, resourceID, subjectType, subjectID)
}

func (s *Store) ResourceIDsWithGrantsFor(ctx context.Context, subjectID string) ([]string, error) {
	return s.Grants.FindResourceIDsBySubject(ctx, subjectID)
}

func (s *Store) UpsertWorkspaceMember(ctx context.Context, member *models.WorkspaceMember) (*models.WorkspaceMember, error) {
	return s.WorkspaceMembers.Upsert(ctx, member)
}

func (s *Store) DeleteWorkspaceMember(ctx context.Context, workspaceID, userID string) error {
	return s.WorkspaceMembers.Delete(ctx, workspaceID, userID)
}

func (s *Store) UpsertSubspaceMember(ctx context.Context, member *models.SubspaceMember) (*models.SubspaceMember, error) {
	return s.SubspaceMembers.Upsert(ctx, member)
}

func (s *Store) DeleteSubspaceMember(ctx context.Context, subspaceID, userID string) error {
	return s.SubspaceMembers.Delete(ctx, subspaceID, userID)
}

func (s *Store) AddGroupMember(ctx context.Context, member *models.GroupMember) (*models.GroupMember, error) {
	return s.GroupMembers.Add(ctx, member)
}

func (s *Store) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	return s.GroupMembers.Remove(ctx, groupID, userID)
}

func (s *Store) DocumentIDsByWorkspace(ctx context.Context, workspaceID string) ([]string, error) {
	return s.Resources.FindDocumentIDsByWorkspace(ctx, workspaceID)
}

func (s *Store) DocumentIDsBySubspace(ctx context.Context, subspaceID string) ([]string, error) {
	return s.Resources.FindDocumentIDsBySubspace(ctx, subspaceID)
}
