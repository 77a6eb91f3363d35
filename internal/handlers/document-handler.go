package handlers

import (
	"log"

	"github.com/gofiber/fiber/v3"

	"permission-service/internal/events"
	"permission-service/internal/middleware"
	"permission-service/internal/models"
	"permission-service/internal/repository"
	"permission-service/internal/service"
)

// DocumentHandler owns the guarded document routes. Every route
// declares its policy up front; the guard middleware does the actual
// allow/deny before the handler runs.
type DocumentHandler struct {
	store     *repository.Store
	cache     service.PermissionCache
	coalescer service.Submitter
	guard     *middleware.Guard
}

func NewDocumentHandler(store *repository.Store, cache service.PermissionCache, coalescer service.Submitter, guard *middleware.Guard) *DocumentHandler {
	return &DocumentHandler{
		store:     store,
		cache:     cache,
		coalescer: coalescer,
		guard:     guard,
	}
}

func (h *DocumentHandler) RegisterRoutes(app *fiber.App) {
	enforce := h.guard.Enforce()
	docGroup := app.Group("/protected/docs")

	h.guard.Declare("POST", "/protected/docs/",
		middleware.Policy{Action: "create", ResourceType: models.ResourceDocument})
	docGroup.Post("/", h.Create, enforce)

	h.guard.Declare("GET", "/protected/docs/:documentId",
		middleware.Policy{Action: "read", ResourceType: models.ResourceDocument, IDParam: "documentId"})
	docGroup.Get("/:documentId", h.Get, enforce)

	h.guard.Declare("PUT", "/protected/docs/:documentId",
		middleware.Policy{Action: "update", ResourceType: models.ResourceDocument, IDParam: "documentId"})
	docGroup.Put("/:documentId", h.UpdateTitle, enforce)

	h.guard.Declare("PUT", "/protected/docs/:documentId/move",
		middleware.Policy{Action: "move", ResourceType: models.ResourceDocument, IDParam: "documentId"})
	docGroup.Put("/:documentId/move", h.Move, enforce)

	h.guard.Declare("DELETE", "/protected/docs/:documentId",
		middleware.Policy{Action: "delete", ResourceType: models.ResourceDocument, IDParam: "documentId"})
	docGroup.Delete("/:documentId", h.Delete, enforce)

	h.guard.Declare("GET", "/protected/docs/:documentId/permissions",
		middleware.Policy{Action: "viewPermissions", ResourceType: models.ResourceDocument, IDParam: "documentId"})
	docGroup.Get("/:documentId/permissions", h.ListPermissions, enforce)
}

type createDocumentRequest struct {
	WorkspaceID string `json:"workspace_id"`
	SubspaceID  string `json:"subspace_id"`
	ParentID    string `json:"parent_id"`
	Title       string `json:"title"`
	IsPublic    bool   `json:"is_public"`
}

type updateTitleRequest struct {
	Title string `json:"title"`
}

type moveDocumentRequest struct {
	SubspaceID string `json:"subspace_id"`
}

func (h *DocumentHandler) Create(c fiber.Ctx) error {
	principalID := middleware.PrincipalID(c)

	var req createDocumentRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.WorkspaceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "workspace_id is required"})
	}

	document, err := h.store.Resources.CreateDocument(c.Context(), &models.Document{
		WorkspaceID: req.WorkspaceID,
		SubspaceID:  req.SubspaceID,
		ParentID:    req.ParentID,
		AuthorID:    principalID,
		Title:       req.Title,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		return internalError(c, err)
	}

	log.Printf("User %s created document %s in workspace %s", principalID, document.ID, req.WorkspaceID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": document})
}

func (h *DocumentHandler) Get(c fiber.Ctx) error {
	document, err := h.store.Resources.FindDocument(c.Context(), c.Params("documentId"))
	if err != nil {
		return mutationError(c, err)
	}
	return c.JSON(fiber.Map{"data": document})
}

func (h *DocumentHandler) UpdateTitle(c fiber.Ctx) error {
	var req updateTitleRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.store.Resources.UpdateDocumentTitle(c.Context(), c.Params("documentId"), req.Title); err != nil {
		return mutationError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Document updated"})
}

// Move reparents a document under another subspace. Inherited levels
// change with the parent, so the cached entries for the document are
// dropped before the response goes out.
func (h *DocumentHandler) Move(c fiber.Ctx) error {
	principalID := middleware.PrincipalID(c)
	documentID := c.Params("documentId")

	var req moveDocumentRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.store.Resources.MoveDocument(c.Context(), documentID, req.SubspaceID); err != nil {
		return mutationError(c, err)
	}
	if err := h.cache.Invalidate(c.Context(), documentID); err != nil {
		return internalError(c, err)
	}

	event := events.NewPermissionChangedEvent(events.PermissionBulkChanged, principalID, documentID, models.ResourceDocument)
	event.Affected = []events.AffectedResource{{ID: documentID, Level: ""}}
	h.coalescer.Submit(event)

	return c.JSON(fiber.Map{"message": "Document moved"})
}

func (h *DocumentHandler) Delete(c fiber.Ctx) error {
	principalID := middleware.PrincipalID(c)
	documentID := c.Params("documentId")

	if err := h.store.Resources.DeleteDocument(c.Context(), documentID); err != nil {
		return mutationError(c, err)
	}
	if err := h.cache.Invalidate(c.Context(), documentID); err != nil {
		return internalError(c, err)
	}

	event := events.NewPermissionChangedEvent(events.PermissionRevoked, principalID, documentID, models.ResourceDocument)
	event.Affected = []events.AffectedResource{{ID: documentID, Level: models.LevelNone.String()}}
	h.coalescer.Submit(event)

	log.Printf("User %s deleted document %s", principalID, documentID)
	return c.JSON(fiber.Map{"message": "Document deleted"})
}

func (h *DocumentHandler) ListPermissions(c fiber.Ctx) error {
	grants, err := h.store.Grants.FindByResource(c.Context(), c.Params("documentId"))
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"data": grants})
}
