package service

import (
	"context"
	"fmt"

	"permission-service/internal/ability"
	"permission-service/internal/models"
)

// MembershipSource is what the rule builders read to describe a
// principal.
type MembershipSource interface {
	WorkspaceRolesByUser(ctx context.Context, userID string) ([]*models.WorkspaceMember, error)
	SubspaceRolesByUser(ctx context.Context, userID string) ([]*models.SubspaceMember, error)
	GroupIDs(ctx context.Context, userID string) ([]string, error)
}

// AbilityService is the declarative authorization path for resource
// types without hierarchical aggregation. Documents are the exception:
// their check delegates to the resolver so there is one aggregation
// algorithm with two entry points, not two algorithms that must agree.
type AbilityService struct {
	registry *ability.Registry
	resolver *PermissionResolver
	members  MembershipSource
}

func NewAbilityService(members MembershipSource, resolver *PermissionResolver) *AbilityService {
	s := &AbilityService{
		registry: ability.NewRegistry(),
		resolver: resolver,
		members:  members,
	}
	s.registry.Register(models.ResourceWorkspace, s.workspaceRules)
	s.registry.Register(models.ResourceSubspace, s.subspaceRules)
	s.registry.Register(models.ResourceGroup, s.groupRules)
	return s
}

// Registry exposes the builder registry for the guard's startup
// completeness check.
func (s *AbilityService) Registry() *ability.Registry {
	return s.registry
}

// BuildRules merges every registered builder's rules for the
// principal.
func (s *AbilityService) BuildRules(ctx context.Context, principalID string) (ability.RuleSet, error) {
	return s.registry.BuildForPrincipal(ctx, principalID)
}

// Can answers "may principal do action on this subject". Pass a nil
// instance for a type-level check. No matching rule means false, not
// an error.
func (s *AbilityService) Can(ctx context.Context, principalID, action, subjectType string, instance any) (bool, error) {
	if subjectType == models.ResourceDocument {
		if document, ok := instance.(*models.Document); ok {
			return s.canDocument(ctx, principalID, action, document)
		}
	}

	ruleSet, err := s.BuildRules(ctx, principalID)
	if err != nil {
		return false, err
	}
	return ruleSet.Can(action, subjectType, instance), nil
}

func (s *AbilityService) canDocument(ctx context.Context, principalID, action string, document *models.Document) (bool, error) {
	required, ok := models.DocumentActionLevel(action)
	if !ok {
		return false, nil
	}
	level, err := s.resolver.Resolve(ctx, principalID, document.ID, models.ResourceDocument)
	if err != nil {
		return false, err
	}
	return level >= required, nil
}

func (s *AbilityService) workspaceRules(ctx context.Context, principalID string) ([]ability.Rule, error) {
	memberships, err := s.members.WorkspaceRolesByUser(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("listing workspace memberships: %w", err)
	}

	var rules []ability.Rule
	for _, membership := range memberships {
		workspaceID := membership.WorkspaceID
		isWorkspace := func(subject any) bool {
			workspace, ok := subject.(*models.Workspace)
			return ok && workspace.ID == workspaceID
		}

		switch membership.Role {
		case models.WorkspaceRoleOwner:
			rules = append(rules, ability.Rule{
				Action:  ability.ActionManage,
				Subject: models.ResourceWorkspace,
				Effect:  ability.Allow,
				When:    isWorkspace,
			})
		case models.WorkspaceRoleAdmin:
			for _, action := range []string{"read", "update", "share", "invite", "removeMember", "viewPermissions"} {
				rules = append(rules, ability.Rule{
					Action:  action,
					Subject: models.ResourceWorkspace,
					Effect:  ability.Allow,
					When:    isWorkspace,
				})
			}
		case models.WorkspaceRoleMember:
			rules = append(rules, ability.Rule{
				Action:  "read",
				Subject: models.ResourceWorkspace,
				Effect:  ability.Allow,
				When:    isWorkspace,
			})
		}

		if membership.Role != models.WorkspaceRoleOwner {
			// Archived workspaces are read-only for everyone below
			// owner, whatever their other rules say.
			rules = append(rules, ability.Rule{
				Action:  "update",
				Subject: models.ResourceWorkspace,
				Effect:  ability.Deny,
				When: func(subject any) bool {
					workspace, ok := subject.(*models.Workspace)
					return ok && workspace.ID == workspaceID && workspace.IsArchived
				},
			})
		}

		// Any workspace membership is enough to create documents;
		// placement inside the workspace is checked hierarchically on
		// the container.
		rules = append(rules, ability.Rule{
			Action:  "create",
			Subject: models.ResourceDocument,
			Effect:  ability.Allow,
		})
	}

	return rules, nil
}

func (s *AbilityService) subspaceRules(ctx context.Context, principalID string) ([]ability.Rule, error) {
	memberships, err := s.members.SubspaceRolesByUser(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("listing subspace memberships: %w", err)
	}

	var rules []ability.Rule
	for _, membership := range memberships {
		subspaceID := membership.SubspaceID
		isSubspace := func(subject any) bool {
			subspace, ok := subject.(*models.Subspace)
			return ok && subspace.ID == subspaceID
		}

		switch membership.Role {
		case models.SubspaceRoleAdmin:
			rules = append(rules, ability.Rule{
				Action:  ability.ActionManage,
				Subject: models.ResourceSubspace,
				Effect:  ability.Allow,
				When:    isSubspace,
			})
		case models.SubspaceRoleMember:
			rules = append(rules, ability.Rule{
				Action:  "read",
				Subject: models.ResourceSubspace,
				Effect:  ability.Allow,
				When:    isSubspace,
			})
		}
	}

	return rules, nil
}

func (s *AbilityService) groupRules(ctx context.Context, principalID string) ([]ability.Rule, error) {
	groupIDs, err := s.members.GroupIDs(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}

	rules := []ability.Rule{
		// Whoever owns a group runs it, membership or not.
		{
			Action:  ability.ActionManage,
			Subject: models.ResourceGroup,
			Effect:  ability.Allow,
			When: func(subject any) bool {
				group, ok := subject.(*models.Group)
				return ok && group.OwnerID == principalID
			},
		},
	}
	for _, groupID := range groupIDs {
		id := groupID
		rules = append(rules, ability.Rule{
			Action:  "read",
			Subject: models.ResourceGroup,
			Effect:  ability.Allow,
			When: func(subject any) bool {
				group, ok := subject.(*models.Group)
				return ok && group.ID == id
			},
		})
	}

	return rules, nil
}
