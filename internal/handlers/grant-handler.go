package handlers

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v3"

	"permission-service/internal/middleware"
	"permission-service/internal/models"
	"permission-service/internal/repository"
	"permission-service/internal/service"
)

type GrantHandler struct {
	grantService   *service.GrantService
	abilityService *service.AbilityService
	guard          *middleware.Guard
	store          *repository.Store
}

func NewGrantHandler(grantService *service.GrantService, abilityService *service.AbilityService, guard *middleware.Guard, store *repository.Store) *GrantHandler {
	return &GrantHandler{
		grantService:   grantService,
		abilityService: abilityService,
		guard:          guard,
		store:          store,
	}
}

func (h *GrantHandler) RegisterRoutes(app *fiber.App) {
	enforce := h.guard.Enforce()
	permissionGroup := app.Group("/protected/permissions")

	permissionGroup.Get("/levels", h.GetLevels)
	permissionGroup.Get("/check", h.Check)
	permissionGroup.Get("/effective/:documentId", h.GetEffectiveLevel)

	// Grant mutations carry the target resource in the body, so the
	// share requirement is checked in the handler rather than declared
	// on the route.
	permissionGroup.Post("/grants", h.Grant)
	permissionGroup.Delete("/grants", h.Revoke)
	permissionGroup.Post("/grants/bulk", h.BulkGrant)

	h.guard.Declare("PUT", "/protected/permissions/workspaces/:workspaceId/members/:userId",
		middleware.Policy{Action: "invite", ResourceType: models.ResourceWorkspace, IDParam: "workspaceId"})
	permissionGroup.Put("/workspaces/:workspaceId/members/:userId", h.AssignWorkspaceRole, enforce)

	h.guard.Declare("DELETE", "/protected/permissions/workspaces/:workspaceId/members/:userId",
		middleware.Policy{Action: "removeMember", ResourceType: models.ResourceWorkspace, IDParam: "workspaceId"})
	permissionGroup.Delete("/workspaces/:workspaceId/members/:userId", h.RemoveWorkspaceRole, enforce)

	h.guard.Declare("PUT", "/protected/permissions/subspaces/:subspaceId/members/:userId",
		middleware.Policy{Action: "invite", ResourceType: models.ResourceSubspace, IDParam: "subspaceId"})
	permissionGroup.Put("/subspaces/:subspaceId/members/:userId", h.AssignSubspaceRole, enforce)

	h.guard.Declare("DELETE", "/protected/permissions/subspaces/:subspaceId/members/:userId",
		middleware.Policy{Action: "removeMember", ResourceType: models.ResourceSubspace, IDParam: "subspaceId"})
	permissionGroup.Delete("/subspaces/:subspaceId/members/:userId", h.RemoveSubspaceRole, enforce)

	h.guard.Declare("PUT", "/protected/permissions/groups/:groupId/members/:userId",
		middleware.Policy{Action: "update", ResourceType: models.ResourceGroup, IDParam: "groupId"})
	permissionGroup.Put("/groups/:groupId/members/:userId", h.AddGroupMember, enforce)

	h.guard.Declare("DELETE", "/protected/permissions/groups/:groupId/members/:userId",
		middleware.Policy{Action: "update", ResourceType: models.ResourceGroup, IDParam: "groupId"})
	permissionGroup.Delete("/groups/:groupId/members/:userId", h.RemoveGroupMember, enforce)
}

type grantRequest struct {
	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type"`
	SubjectType  string `json:"subject_type"`
	SubjectID    string `json:"subject_id"`
	Level        string `json:"level"`
}

type bulkGrantRequest struct {
	WorkspaceID string   `json:"workspace_id"`
	DocumentIDs []string `json:"document_ids"`
	SubjectType string   `json:"subject_type"`
	SubjectID   string   `json:"subject_id"`
	Level       string   `json:"level"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *GrantHandler) GetLevels(c fiber.Ctx) error {
	levels := make([]fiber.Map, 0, int(models.LevelManage)+1)
	for level := models.LevelNone; level <= models.LevelManage; level++ {
		levels = append(levels, fiber.Map{
			"name":    level.String(),
			"ordinal": int(level),
		})
	}
	return c.JSON(fiber.Map{"data": levels})
}

// Check answers "may I do this" for the calling principal without
// performing the operation.
func (h *GrantHandler) Check(c fiber.Ctx) error {
	principalID := middleware.PrincipalID(c)
	if principalID == "" {
		return unauthenticated(c)
	}

	action := fiber.Query[string](c, "action")
	resourceType := fiber.Query[string](c, "resource_type")
	resourceID := fiber.Query[string](c, "resource_id")
	if action == "" || resourceType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "action and resource_type are required",
		})
	}

	var instance any
	if resourceID != "" {
		found, err := h.store.Resources.FindResource(c.Context(), resourceType, resourceID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return c.JSON(fiber.Map{"allowed": false})
			}
			return internalError(c, err)
		}
		instance = found
	}

	allowed, err := h.abilityService.Can(c.Context(), principalID, action, resourceType, instance)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"allowed": allowed})
}

func (h *GrantHandler) GetEffectiveLevel(c fiber.Ctx) error {
	principalID := middleware.PrincipalID(c)
	if principalID == "" {
		return unauthenticated(c)
	}

	documentID := c.Params("documentId")
	level, err := h.guard.EffectiveLevel(c.Context(), principalID, documentID)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{
		"document_id": documentID,
		"level":       level.String(),
		"ordinal":     int(level),
	})
}

func (h *GrantHandler) Grant(c fiber.Ctx) error {
	principalID := middleware.PrincipalID(c)
	if principalID == "" {
		return unauthenticated(c)
	}

	var req grantRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	allowed, err := h.canShare(c.Context(), principalID, req.ResourceType, req.ResourceID)
	if err != nil {
		return internalError(c, err)
	}
	if !allowed {
		return permissionDenied(c)
	}

	grant, err := h.grantService.GrantLevel(c.Context(), principalID, req.ResourceID, req.ResourceType,
		req.SubjectType, req.SubjectID, models.ParsePermissionLevel(req.Level))
	if err != nil {
		return mutationError(c, err)
	}

	log.Printf("User %s granted %s to %s %s on %s", principalID, req.Level, req.SubjectType, req.SubjectID, req.ResourceID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": grant})
}

func (h *GrantHandler) Revoke(c fiber.Ctx) error {
	principalID := middleware.PrincipalID(c)
	if principalID == "" {
		return unauthenticated(c)
	}

	var req grantRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	allowed, err := h.canShare(c.Context(), principalID, req.ResourceType, req.ResourceID)
	if err != nil {
		return internalError(c, err)
	}
	if !allowed {
		return permissionDenied(c)
	}

	err = h.grantService.RevokeLevel(c.Context(), principalID, req.ResourceID, req.ResourceType, req.SubjectType, req.SubjectID)
	if err != nil {
		return mutationError(c, err)
	}

	log.Printf("User %s revoked grant of %s %s on %s", principalID, req.SubjectType, req.SubjectID, req.ResourceID)
	return c.JSON(fiber.Map{"message": "Grant revoked"})
}

func (h *GrantHandler) BulkGrant(c fiber.Ctx) error {
	principalID := middleware.PrincipalID(c)
	if principalID == "" {
		return unauthenticated(c)
	}

	var req bulkGrantRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if len(req.DocumentIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "document_ids is required"})
	}

	// The actor needs share on every target, not just most of them.
	for _, documentID := range req.DocumentIDs {
		allowed, err := h.canShare(c.Context(), principalID, models.ResourceDocument, documentID)
		if err != nil {
			return internalError(c, err)
		}
		if !allowed {
			return permissionDenied(c)
		}
	}

	err := h.grantService.BulkGrantDocuments(c.Context(), principalID, req.WorkspaceID, req.DocumentIDs,
		req.SubjectType, req.SubjectID, models.ParsePermissionLevel(req.Level))
	if err != nil {
		return mutationError(c, err)
	}

	log.Printf("User %s bulk granted %s on %d documents", principalID, req.Level, len(req.DocumentIDs))
	return c.JSON(fiber.Map{"message": "Grants applied", "count": len(req.DocumentIDs)})
}

func (h *GrantHandler) AssignWorkspaceRole(c fiber.Ctx) error {
	principalID := middleware.PrincipalID(c)

	var req roleRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	member, err := h.grantService.AssignWorkspaceRole(c.Context(), principalID, c.Params("workspaceId"), c.Params("userId"), req.Role)
	if err != nil {
		return mutationError(c, err)
	}
	return c.JSON(fiber.Map{"data": member})
}

func (h *GrantHandler) RemoveWorkspaceRole(c fiber.Ctx) error {
	principalID := middleware.PrincipalID(c)

	err := h.grantService.RemoveWorkspaceRole(c.Context(), principalID, c.Params("workspaceId"), c.Params("userId"))
	if err != nil {
		return mutationError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Member removed"})
}

func (h *GrantHandler) AssignSubspaceRole(c fiber.Ctx) error {
	principalID := middleware.PrincipalID(c)

	var req roleRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	member, err := h.grantService.AssignSubspaceRole(c.Context(), principalID, c.Params("subspaceId"), c.Params("userId"), req.Role)
	if err != nil {
		return mutationError(c, err)
	}
	return c.JSON(fiber.Map{"data": member})
}

func (h *GrantHandler) RemoveSubspaceRole(c fiber.Ctx) error {
	principalID := middleware.PrincipalID(c)

	err := h.grantService.RemoveSubspaceRole(c.Context(), principalID, c.Params("subspaceId"), c.Params("userId"))
	if err != nil {
		return mutationError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Member removed"})
}

func (h *GrantHandler) AddGroupMember(c fiber.Ctx) error {
	principalID := middleware.PrincipalID(c)

	member, err := h.grantService.AddGroupMember(c.Context(), principalID, c.Params("groupId"), c.Params("userId"))
	if err != nil {
		return mutationError(c, err)
	}
	return c.JSON(fiber.Map{"data": member})
}

func (h *GrantHandler) RemoveGroupMember(c fiber.Ctx) error {
	principalID := middleware.PrincipalID(c)

	err := h.grantService.RemoveGroupMember(c.Context(), principalID, c.Params("groupId"), c.Params("userId"))
	if err != nil {
		return mutationError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Member removed"})
}

// canShare is the handler-side requirement for grant mutations: share
// on the target resource. Documents go through the hierarchical path,
// everything else through the rule evaluator.
func (h *GrantHandler) canShare(ctx context.Context, principalID, resourceType, resourceID string) (bool, error) {
	if resourceType == models.ResourceDocument {
		level, err := h.guard.EffectiveLevel(ctx, principalID, resourceID)
		if err != nil {
			return false, err
		}
		return level >= models.LevelShare, nil
	}

	instance, err := h.store.Resources.FindResource(ctx, resourceType, resourceID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return h.abilityService.Can(ctx, principalID, "share", resourceType, instance)
}

func unauthenticated(c fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"code":  middleware.CodeUnauthenticated,
		"error": "Authentication required",
	})
}

func permissionDenied(c fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"code":  middleware.CodePermissionDenied,
		"error": "You don't have enough permission",
	})
}

func internalError(c fiber.Ctx, err error) error {
	log.Printf("Request failed: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}

func mutationError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	case errors.Is(err, service.ErrInvalidRole), errors.Is(err, service.ErrInvalidLevel):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		return internalError(c, err)
	}
}
