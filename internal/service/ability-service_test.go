package service

import (
	"context"
	"testing"

	"permission-service/internal/models"
)

func newAbilityFixture() (*fakeStore, *AbilityService) {
	store := newFakeStore()
	resolver := NewPermissionResolver(store)
	return store, NewAbilityService(store, resolver)
}

func TestWorkspaceOwnerCanEverything(t *testing.T) {
	store, abilities := newAbilityFixture()
	store.workspaceRoles["w1|alice"] = models.WorkspaceRoleOwner
	workspace := &models.Workspace{ID: "w1", OwnerID: "alice"}

	for _, action := range []string{"read", "update", "delete", "share", "invite", "archive"} {
		allowed, err := abilities.Can(context.Background(), "alice", action, models.ResourceWorkspace, workspace)
		if err != nil {
			t.Fatalf("Can(%s): %v", action, err)
		}
		if !allowed {
			t.Errorf("owner denied %q on own workspace", action)
		}
	}
}

func TestWorkspaceMemberReadOnly(t *testing.T) {
	store, abilities := newAbilityFixture()
	store.workspaceRoles["w1|bob"] = models.WorkspaceRoleMember
	workspace := &models.Workspace{ID: "w1"}

	tests := []struct {
		action string
		want   bool
	}{
		{"read", true},
		{"update", false},
		{"share", false},
		{"delete", false},
	}
	for _, tt := range tests {
		allowed, err := abilities.Can(context.Background(), "bob", tt.action, models.ResourceWorkspace, workspace)
		if err != nil {
			t.Fatalf("Can(%s): %v", tt.action, err)
		}
		if allowed != tt.want {
			t.Errorf("member %q on workspace = %v, want %v", tt.action, allowed, tt.want)
		}
	}
}

func TestWorkspaceRulesScopedToMembership(t *testing.T) {
	store, abilities := newAbilityFixture()
	store.workspaceRoles["w1|alice"] = models.WorkspaceRoleOwner

	other := &models.Workspace{ID: "w2"}
	allowed, err := abilities.Can(context.Background(), "alice", "read", models.ResourceWorkspace, other)
	if err != nil {
		t.Fatalf("Can: %v", err)
	}
	if allowed {
		t.Error("owner of w1 allowed on unrelated w2")
	}
}

// Archived workspaces are read-only below owner, whatever the role's
// other rules grant.
func TestArchivedWorkspaceDeniesUpdate(t *testing.T) {
	store, abilities := newAbilityFixture()
	store.workspaceRoles["w1|admin"] = models.WorkspaceRoleAdmin
	store.workspaceRoles["w1|owner"] = models.WorkspaceRoleOwner
	archived := &models.Workspace{ID: "w1", OwnerID: "owner", IsArchived: true}

	allowed, err := abilities.Can(context.Background(), "admin", "update", models.ResourceWorkspace, archived)
	if err != nil {
		t.Fatalf("Can: %v", err)
	}
	if allowed {
		t.Error("admin allowed to update an archived workspace")
	}

	allowed, err = abilities.Can(context.Background(), "owner", "update", models.ResourceWorkspace, archived)
	if err != nil {
		t.Fatalf("Can: %v", err)
	}
	if !allowed {
		t.Error("owner denied on archived workspace")
	}
}

func TestTypeLevelDocumentCreate(t *testing.T) {
	store, abilities := newAbilityFixture()
	store.workspaceRoles["w1|bob"] = models.WorkspaceRoleMember

	allowed, err := abilities.Can(context.Background(), "bob", "create", models.ResourceDocument, nil)
	if err != nil {
		t.Fatalf("Can: %v", err)
	}
	if !allowed {
		t.Error("workspace member denied type-level document create")
	}

	allowed, err = abilities.Can(context.Background(), "stranger", "create", models.ResourceDocument, nil)
	if err != nil {
		t.Fatalf("Can: %v", err)
	}
	if allowed {
		t.Error("principal with no membership allowed document create")
	}
}

// Document instance checks delegate to the hierarchical resolver, so
// the evaluator and the resolver cannot disagree on documents.
func TestDocumentCheckDelegatesToResolver(t *testing.T) {
	store, abilities := newAbilityFixture()
	docFixture(store)
	store.workspaceRoles["w1|bob"] = models.WorkspaceRoleMember // read
	document := store.documents["d1"]

	allowed, err := abilities.Can(context.Background(), "bob", "read", models.ResourceDocument, document)
	if err != nil {
		t.Fatalf("Can: %v", err)
	}
	if !allowed {
		t.Error("member denied read on document in own workspace")
	}

	allowed, err = abilities.Can(context.Background(), "bob", "delete", models.ResourceDocument, document)
	if err != nil {
		t.Fatalf("Can: %v", err)
	}
	if allowed {
		t.Error("member allowed delete with only read level")
	}

	allowed, err = abilities.Can(context.Background(), "bob", "teleport", models.ResourceDocument, document)
	if err != nil {
		t.Fatalf("Can: %v", err)
	}
	if allowed {
		t.Error("action outside the threshold table was allowed")
	}
}

func TestSubspaceRoles(t *testing.T) {
	store, abilities := newAbilityFixture()
	store.subspaceRoles["s1|alice"] = models.SubspaceRoleAdmin
	store.subspaceRoles["s1|bob"] = models.SubspaceRoleMember
	subspace := &models.Subspace{ID: "s1", WorkspaceID: "w1"}

	allowed, _ := abilities.Can(context.Background(), "alice", "update", models.ResourceSubspace, subspace)
	if !allowed {
		t.Error("subspace admin denied update")
	}
	allowed, _ = abilities.Can(context.Background(), "bob", "update", models.ResourceSubspace, subspace)
	if allowed {
		t.Error("subspace member allowed update")
	}
	allowed, _ = abilities.Can(context.Background(), "bob", "read", models.ResourceSubspace, subspace)
	if !allowed {
		t.Error("subspace member denied read")
	}
}

func TestGroupRules(t *testing.T) {
	store, abilities := newAbilityFixture()
	store.groups["member"] = []string{"g1"}
	group := &models.Group{ID: "g1", OwnerID: "owner"}

	allowed, _ := abilities.Can(context.Background(), "owner", "update", models.ResourceGroup, group)
	if !allowed {
		t.Error("group owner denied update")
	}
	allowed, _ = abilities.Can(context.Background(), "member", "read", models.ResourceGroup, group)
	if !allowed {
		t.Error("group member denied read")
	}
	allowed, _ = abilities.Can(context.Background(), "member", "update", models.ResourceGroup, group)
	if allowed {
		t.Error("group member allowed update")
	}
	allowed, _ = abilities.Can(context.Background(), "stranger", "read", models.ResourceGroup, group)
	if allowed {
		t.Error("non-member allowed read")
	}
}
