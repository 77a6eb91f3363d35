package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"permission-service/internal/events"
	"permission-service/internal/models"
)

type fakeMutationStore struct {
	grants            map[string]*models.Grant // resourceID|subjectType|subjectID
	workspaceMembers  map[string]string
	subspaceMembers   map[string]string
	groupMembers      map[string]bool
	docsByWorkspace   map[string][]string
	docsBySubspace    map[string][]string
	resourcesFor      map[string][]string
	err               error
}

func newFakeMutationStore() *fakeMutationStore {
	return &fakeMutationStore{
		grants:           make(map[string]*models.Grant),
		workspaceMembers: make(map[string]string),
		subspaceMembers:  make(map[string]string),
		groupMembers:     make(map[string]bool),
		docsByWorkspace:  make(map[string][]string),
		docsBySubspace:   make(map[string][]string),
		resourcesFor:     make(map[string][]string),
	}
}

func grantKey(resourceID, subjectType, subjectID string) string {
	return resourceID + "|" + subjectType + "|" + subjectID
}

func (s *fakeMutationStore) UpsertGrant(ctx context.Context, grant *models.Grant) (*models.Grant, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.grants[grantKey(grant.ResourceID, grant.SubjectType, grant.SubjectID)] = grant
	return grant, nil
}

func (s *fakeMutationStore) DeleteGrant(ctx context.Context, resourceID, subjectType, subjectID string) error {
	key := grantKey(resourceID, subjectType, subjectID)
	if _, ok := s.grants[key]; !ok {
		return models.ErrNotFound
	}
	delete(s.grants, key)
	return nil
}

func (s *fakeMutationStore) ResourceIDsWithGrantsFor(ctx context.Context, subjectID string) ([]string, error) {
	return s.resourcesFor[subjectID], nil
}

func (s *fakeMutationStore) UpsertWorkspaceMember(ctx context.Context, member *models.WorkspaceMember) (*models.WorkspaceMember, error) {
	s.workspaceMembers[member.WorkspaceID+"|"+member.UserID] = member.Role
	return member, nil
}

func (s *fakeMutationStore) DeleteWorkspaceMember(ctx context.Context, workspaceID, userID string) error {
	key := workspaceID + "|" + userID
	if _, ok := s.workspaceMembers[key]; !ok {
		return models.ErrNotFound
	}
	delete(s.workspaceMembers, key)
	return nil
}

func (s *fakeMutationStore) UpsertSubspaceMember(ctx context.Context, member *models.SubspaceMember) (*models.SubspaceMember, error) {
	s.subspaceMembers[member.SubspaceID+"|"+member.UserID] = member.Role
	return member, nil
}

func (s *fakeMutationStore) DeleteSubspaceMember(ctx context.Context, subspaceID, userID string) error {
	key := subspaceID + "|" + userID
	if _, ok := s.subspaceMembers[key]; !ok {
		return models.ErrNotFound
	}
	delete(s.subspaceMembers, key)
	return nil
}

func (s *fakeMutationStore) AddGroupMember(ctx context.Context, member *models.GroupMember) (*models.GroupMember, error) {
	s.groupMembers[member.GroupID+"|"+member.UserID] = true
	return member, nil
}

func (s *fakeMutationStore) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	key := groupID + "|" + userID
	if !s.groupMembers[key] {
		return models.ErrNotFound
	}
	delete(s.groupMembers, key)
	return nil
}

func (s *fakeMutationStore) DocumentIDsByWorkspace(ctx context.Context, workspaceID string) ([]string, error) {
	return s.docsByWorkspace[workspaceID], nil
}

func (s *fakeMutationStore) DocumentIDsBySubspace(ctx context.Context, subspaceID string) ([]string, error) {
	return s.docsBySubspace[subspaceID], nil
}

type recordingSubmitter struct {
	submitted []*events.PermissionChangedEvent
}

func (r *recordingSubmitter) Submit(event *events.PermissionChangedEvent) {
	r.submitted = append(r.submitted, event)
}

func newGrantFixture() (*fakeMutationStore, *MemoryPermissionCache, *recordingSubmitter, *GrantService) {
	store := newFakeMutationStore()
	cache := NewMemoryPermissionCache(time.Minute)
	submitter := &recordingSubmitter{}
	return store, cache, submitter, NewGrantService(store, cache, submitter)
}

func TestGrantLevelValidation(t *testing.T) {
	_, _, _, grants := newGrantFixture()
	ctx := context.Background()

	_, err := grants.GrantLevel(ctx, "alice", "d1", models.ResourceDocument, models.SubjectUser, "bob", models.LevelNone)
	if !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("granting none: err = %v, want ErrInvalidLevel", err)
	}

	_, err = grants.GrantLevel(ctx, "alice", "d1", models.ResourceDocument, "robot", "bob", models.LevelRead)
	if err == nil {
		t.Error("unknown subject type accepted")
	}
}

func TestGrantLevelInvalidatesAndNotifies(t *testing.T) {
	store, cache, submitter, grants := newGrantFixture()
	ctx := context.Background()

	// Stale entry that the mutation must flush before returning.
	cache.Put(ctx, "bob", "d1", models.LevelNone)

	grant, err := grants.GrantLevel(ctx, "alice", "d1", models.ResourceDocument, models.SubjectUser, "bob", models.LevelEdit)
	if err != nil {
		t.Fatalf("GrantLevel: %v", err)
	}
	if grant.Level != models.LevelEdit {
		t.Errorf("stored level = %v, want edit", grant.Level)
	}
	if _, ok := store.grants[grantKey("d1", models.SubjectUser, "bob")]; !ok {
		t.Error("grant not written to store")
	}
	if _, hit, _ := cache.Get(ctx, "bob", "d1"); hit {
		t.Error("stale cache entry survived the grant")
	}

	if len(submitter.submitted) != 1 {
		t.Fatalf("submitted %d events, want 1", len(submitter.submitted))
	}
	event := submitter.submitted[0]
	if event.Type != events.PermissionGranted {
		t.Errorf("event type = %s, want %s", event.Type, events.PermissionGranted)
	}
	if len(event.Affected) != 1 || event.Affected[0].ID != "d1" {
		t.Errorf("event affected = %+v, want the granted resource", event.Affected)
	}
}

func TestRevokeMissingGrant(t *testing.T) {
	_, _, submitter, grants := newGrantFixture()

	err := grants.RevokeLevel(context.Background(), "alice", "d1", models.ResourceDocument, models.SubjectUser, "bob")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if len(submitter.submitted) != 0 {
		t.Error("event submitted for a failed revoke")
	}
}

func TestAssignWorkspaceRoleUnknownRole(t *testing.T) {
	_, _, _, grants := newGrantFixture()

	_, err := grants.AssignWorkspaceRole(context.Background(), "alice", "w1", "bob", "emperor")
	if !errors.Is(err, ErrInvalidRole) {
		t.Errorf("err = %v, want ErrInvalidRole", err)
	}
}

// A workspace role change retunes the floor for the entire hierarchy,
// so the cached levels of the workspace and every document under it
// must be gone when the call returns.
func TestAssignWorkspaceRoleInvalidatesHierarchy(t *testing.T) {
	store, cache, submitter, grants := newGrantFixture()
	ctx := context.Background()

	store.docsByWorkspace["w1"] = []string{"d1", "d2"}
	cache.Put(ctx, "bob", "w1", models.LevelNone)
	cache.Put(ctx, "bob", "d1", models.LevelNone)
	cache.Put(ctx, "bob", "d2", models.LevelNone)
	cache.Put(ctx, "bob", "other", models.LevelRead)

	_, err := grants.AssignWorkspaceRole(ctx, "alice", "w1", "bob", models.WorkspaceRoleAdmin)
	if err != nil {
		t.Fatalf("AssignWorkspaceRole: %v", err)
	}

	for _, resourceID := range []string{"w1", "d1", "d2"} {
		if _, hit, _ := cache.Get(ctx, "bob", resourceID); hit {
			t.Errorf("stale entry for %s survived the role change", resourceID)
		}
	}
	if _, hit, _ := cache.Get(ctx, "bob", "other"); !hit {
		t.Error("unrelated entry was dropped")
	}

	if len(submitter.submitted) != 1 {
		t.Fatalf("submitted %d events, want 1", len(submitter.submitted))
	}
	if submitter.submitted[0].Type != events.RoleAssigned {
		t.Errorf("event type = %s, want %s", submitter.submitted[0].Type, events.RoleAssigned)
	}
}

func TestAssignSubspaceRoleInvalidatesSubtree(t *testing.T) {
	store, cache, _, grants := newGrantFixture()
	ctx := context.Background()

	store.docsBySubspace["s1"] = []string{"d1"}
	cache.Put(ctx, "bob", "s1", models.LevelNone)
	cache.Put(ctx, "bob", "d1", models.LevelNone)

	_, err := grants.AssignSubspaceRole(ctx, "alice", "s1", "bob", models.SubspaceRoleAdmin)
	if err != nil {
		t.Fatalf("AssignSubspaceRole: %v", err)
	}

	for _, resourceID := range []string{"s1", "d1"} {
		if _, hit, _ := cache.Get(ctx, "bob", resourceID); hit {
			t.Errorf("stale entry for %s survived the role change", resourceID)
		}
	}
}

// Adding a user to a group extends every grant the group holds, so each
// granted resource's cached levels are flushed.
func TestAddGroupMemberInvalidatesGrantedResources(t *testing.T) {
	store, cache, submitter, grants := newGrantFixture()
	ctx := context.Background()

	store.resourcesFor["g1"] = []string{"d1", "d2"}
	cache.Put(ctx, "bob", "d1", models.LevelNone)
	cache.Put(ctx, "carol", "d2", models.LevelNone)

	_, err := grants.AddGroupMember(ctx, "alice", "g1", "bob")
	if err != nil {
		t.Fatalf("AddGroupMember: %v", err)
	}

	if _, hit, _ := cache.Get(ctx, "bob", "d1"); hit {
		t.Error("stale entry for d1 survived the membership change")
	}
	if _, hit, _ := cache.Get(ctx, "carol", "d2"); hit {
		t.Error("stale entry for d2 survived the membership change")
	}
	if len(submitter.submitted) != 1 {
		t.Fatalf("submitted %d events, want 1", len(submitter.submitted))
	}
}

func TestBulkGrantDocuments(t *testing.T) {
	store, cache, submitter, grants := newGrantFixture()
	ctx := context.Background()

	cache.Put(ctx, "bob", "d1", models.LevelNone)
	cache.Put(ctx, "bob", "d2", models.LevelNone)

	err := grants.BulkGrantDocuments(ctx, "alice", "w1", []string{"d1", "d2"}, models.SubjectUser, "bob", models.LevelRead)
	if err != nil {
		t.Fatalf("BulkGrantDocuments: %v", err)
	}

	for _, documentID := range []string{"d1", "d2"} {
		if _, ok := store.grants[grantKey(documentID, models.SubjectUser, "bob")]; !ok {
			t.Errorf("grant for %s not written", documentID)
		}
		if _, hit, _ := cache.Get(ctx, "bob", documentID); hit {
			t.Errorf("stale entry for %s survived the bulk grant", documentID)
		}
	}

	if len(submitter.submitted) != 1 {
		t.Fatalf("submitted %d events, want 1 bulk event", len(submitter.submitted))
	}
	event := submitter.submitted[0]
	if event.Type != events.PermissionBulkChanged {
		t.Errorf("event type = %s, want %s", event.Type, events.PermissionBulkChanged)
	}
	if len(event.Affected) != 2 {
		t.Errorf("event affected has %d entries, want 2", len(event.Affected))
	}
}
