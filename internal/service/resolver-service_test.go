package service

import (
	"context"
	"errors"
	"testing"

	"permission-service/internal/models"
)

// fakeStore is an in-memory PermissionStore and MembershipSource.
type fakeStore struct {
	workspaceRoles map[string]string // workspaceID|userID -> role
	subspaceRoles  map[string]string // subspaceID|userID -> role
	groups         map[string][]string
	grants         map[string][]*models.Grant
	documents      map[string]*models.Document
	subspaces      map[string]*models.Subspace
	err            error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		workspaceRoles: make(map[string]string),
		subspaceRoles:  make(map[string]string),
		groups:         make(map[string][]string),
		grants:         make(map[string][]*models.Grant),
		documents:      make(map[string]*models.Document),
		subspaces:      make(map[string]*models.Subspace),
	}
}

func (s *fakeStore) WorkspaceRole(ctx context.Context, workspaceID, userID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	role, ok := s.workspaceRoles[workspaceID+"|"+userID]
	if !ok {
		return "", models.ErrNotFound
	}
	return role, nil
}

func (s *fakeStore) SubspaceRole(ctx context.Context, subspaceID, userID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	role, ok := s.subspaceRoles[subspaceID+"|"+userID]
	if !ok {
		return "", models.ErrNotFound
	}
	return role, nil
}

func (s *fakeStore) GroupIDs(ctx context.Context, userID string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.groups[userID], nil
}

func (s *fakeStore) GrantsFor(ctx context.Context, resourceID string, subjectIDs []string) ([]*models.Grant, error) {
	if s.err != nil {
		return nil, s.err
	}
	var matched []*models.Grant
	for _, grant := range s.grants[resourceID] {
		for _, subjectID := range subjectIDs {
			if grant.SubjectID == subjectID {
				matched = append(matched, grant)
				break
			}
		}
	}
	return matched, nil
}

func (s *fakeStore) Document(ctx context.Context, id string) (*models.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	document, ok := s.documents[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return document, nil
}

func (s *fakeStore) Subspace(ctx context.Context, id string) (*models.Subspace, error) {
	if s.err != nil {
		return nil, s.err
	}
	subspace, ok := s.subspaces[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return subspace, nil
}

func (s *fakeStore) WorkspaceRolesByUser(ctx context.Context, userID string) ([]*models.WorkspaceMember, error) {
	if s.err != nil {
		return nil, s.err
	}
	var members []*models.WorkspaceMember
	for key, role := range s.workspaceRoles {
		workspaceID, memberID := splitKey(key)
		if memberID == userID {
			members = append(members, &models.WorkspaceMember{WorkspaceID: workspaceID, UserID: userID, Role: role})
		}
	}
	return members, nil
}

func (s *fakeStore) SubspaceRolesByUser(ctx context.Context, userID string) ([]*models.SubspaceMember, error) {
	if s.err != nil {
		return nil, s.err
	}
	var members []*models.SubspaceMember
	for key, role := range s.subspaceRoles {
		subspaceID, memberID := splitKey(key)
		if memberID == userID {
			members = append(members, &models.SubspaceMember{SubspaceID: subspaceID, UserID: userID, Role: role})
		}
	}
	return members, nil
}

func splitKey(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

func docFixture(store *fakeStore) {
	store.documents["d1"] = &models.Document{ID: "d1", WorkspaceID: "w1", SubspaceID: "s1"}
	store.subspaces["s1"] = &models.Subspace{ID: "s1", WorkspaceID: "w1"}
}

func TestResolveMaxOfSources(t *testing.T) {
	store := newFakeStore()
	docFixture(store)
	store.workspaceRoles["w1|alice"] = models.WorkspaceRoleMember // read
	store.groups["alice"] = []string{"g1"}
	store.grants["d1"] = []*models.Grant{
		{ResourceID: "d1", SubjectType: models.SubjectUser, SubjectID: "alice", Level: models.LevelEdit},
		{ResourceID: "d1", SubjectType: models.SubjectGroup, SubjectID: "g1", Level: models.LevelShare},
	}

	resolver := NewPermissionResolver(store)
	level, err := resolver.Resolve(context.Background(), "alice", "d1", models.ResourceDocument)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if level != models.LevelShare {
		t.Errorf("effective level = %v, want share (max over read, edit, share)", level)
	}
}

func TestResolveSubspaceRoleApplies(t *testing.T) {
	store := newFakeStore()
	docFixture(store)
	store.workspaceRoles["w1|bob"] = models.WorkspaceRoleMember
	store.subspaceRoles["s1|bob"] = models.SubspaceRoleAdmin

	resolver := NewPermissionResolver(store)
	level, err := resolver.Resolve(context.Background(), "bob", "d1", models.ResourceDocument)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if level != models.LevelManage {
		t.Errorf("effective level = %v, want manage from subspace admin", level)
	}
}

func TestResolveNoMembership(t *testing.T) {
	store := newFakeStore()
	docFixture(store)

	resolver := NewPermissionResolver(store)
	level, err := resolver.Resolve(context.Background(), "stranger", "d1", models.ResourceDocument)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if level != models.LevelNone {
		t.Errorf("effective level = %v, want none", level)
	}
}

// A missing resource resolves to none without error: absence of
// permission is ordinary control flow, not a failure.
func TestResolveMissingResource(t *testing.T) {
	store := newFakeStore()
	resolver := NewPermissionResolver(store)

	for _, resourceType := range []string{models.ResourceDocument, models.ResourceSubspace} {
		level, err := resolver.Resolve(context.Background(), "alice", "ghost", resourceType)
		if err != nil {
			t.Errorf("Resolve(%s): %v", resourceType, err)
		}
		if level != models.LevelNone {
			t.Errorf("Resolve(%s) = %v, want none", resourceType, level)
		}
	}
}

// Infrastructure failures must propagate, never degrade to a silent
// none.
func TestResolveInfrastructureError(t *testing.T) {
	store := newFakeStore()
	docFixture(store)
	store.err = errors.New("connection reset")

	resolver := NewPermissionResolver(store)
	_, err := resolver.Resolve(context.Background(), "alice", "d1", models.ResourceDocument)
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	if !errors.Is(err, store.err) {
		t.Errorf("error %v does not wrap store error", err)
	}
}

func TestResolveUnknownResourceType(t *testing.T) {
	resolver := NewPermissionResolver(newFakeStore())
	_, err := resolver.Resolve(context.Background(), "alice", "x", "comment")
	if err == nil {
		t.Fatal("expected error for non-hierarchical resource type")
	}
}

func TestResolveInheritedCandidates(t *testing.T) {
	store := newFakeStore()
	docFixture(store)
	store.workspaceRoles["w1|alice"] = models.WorkspaceRoleMember

	resolver := NewPermissionResolver(store)
	level, err := resolver.Resolve(context.Background(), "alice", "d1", models.ResourceDocument,
		models.InheritedGrant{SourceGrantID: "parent", Level: models.LevelEdit})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if level != models.LevelEdit {
		t.Errorf("effective level = %v, want edit from inherited candidate", level)
	}
}

// Adding a source can only raise the effective level, never lower it.
func TestResolveMonotonic(t *testing.T) {
	store := newFakeStore()
	docFixture(store)
	store.workspaceRoles["w1|alice"] = models.WorkspaceRoleAdmin // share

	resolver := NewPermissionResolver(store)
	before, err := resolver.Resolve(context.Background(), "alice", "d1", models.ResourceDocument)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	store.grants["d1"] = []*models.Grant{
		{ResourceID: "d1", SubjectType: models.SubjectUser, SubjectID: "alice", Level: models.LevelRead},
	}
	after, err := resolver.Resolve(context.Background(), "alice", "d1", models.ResourceDocument)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if after < before {
		t.Errorf("adding a weaker grant lowered the level: %v -> %v", before, after)
	}
	if after != models.LevelShare {
		t.Errorf("effective level = %v, want share", after)
	}
}
