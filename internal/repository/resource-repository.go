package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"permission-service/internal/models"
)

// ResourceRepository reads the resource hierarchy the resolver walks:
// workspaces, subspaces and documents.
type ResourceRepository struct {
	workspaces *mongo.Collection
	subspaces  *mongo.Collection
	documents  *mongo.Collection
	groups     *mongo.Collection
}

func NewResourceRepository(db *mongo.Database) *ResourceRepository {
	return &ResourceRepository{
		workspaces: db.Collection("Workspace"),
		subspaces:  db.Collection("Subspace"),
		documents:  db.Collection("Document"),
		groups:     db.Collection("Group"),
	}
}

func (r *ResourceRepository) FindWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	var workspace models.Workspace
	err := r.workspaces.FindOne(ctx, bson.M{"_id": id}).Decode(&workspace)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up workspace: %w", err)
	}
	return &workspace, nil
}

func (r *ResourceRepository) FindSubspace(ctx context.Context, id string) (*models.Subspace, error) {
	var subspace models.Subspace
	err := r.subspaces.FindOne(ctx, bson.M{"_id": id}).Decode(&subspace)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up subspace: %w", err)
	}
	return &subspace, nil
}

func (r *ResourceRepository) FindDocument(ctx context.Context, id string) (*models.Document, error) {
	var document models.Document
	err := r.documents.FindOne(ctx, bson.M{"_id": id}).Decode(&document)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up document: %w", err)
	}
	return &document, nil
}

func (r *ResourceRepository) FindGroup(ctx context.Context, id string) (*models.Group, error) {
	var group models.Group
	err := r.groups.FindOne(ctx, bson.M{"_id": id}).Decode(&group)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up group: %w", err)
	}
	return &group, nil
}

// FindResource fetches a resource instance by type tag. Used by the
// guard when a declared policy needs the subject instance for rule
// conditions.
func (r *ResourceRepository) FindResource(ctx context.Context, resourceType, id string) (any, error) {
	switch resourceType {
	case models.ResourceWorkspace:
		return r.FindWorkspace(ctx, id)
	case models.ResourceSubspace:
		return r.FindSubspace(ctx, id)
	case models.ResourceDocument:
		return r.FindDocument(ctx, id)
	case models.ResourceGroup:
		return r.FindGroup(ctx, id)
	default:
		return nil, fmt.Errorf("unknown resource type %q", resourceType)
	}
}

// FindDocumentIDsByWorkspace lists document ids under a workspace,
// used to invalidate cached levels after a workspace-wide mutation.
func (r *ResourceRepository) FindDocumentIDsByWorkspace(ctx context.Context, workspaceID string) ([]string, error) {
	return r.findDocumentIDs(ctx, bson.M{"workspaceId": workspaceID})
}

func (r *ResourceRepository) FindDocumentIDsBySubspace(ctx context.Context, subspaceID string) ([]string, error) {
	return r.findDocumentIDs(ctx, bson.M{"subspaceId": subspaceID})
}

func (r *ResourceRepository) findDocumentIDs(ctx context.Context, filter bson.M) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := r.documents.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		ID string `bson:"_id"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}

	ids := make([]string, len(results))
	for i, result := range results {
		ids[i] = result.ID
	}
	return ids, nil
}

func (r *ResourceRepository) CreateDocument(ctx context.Context, document *models.Document) (*models.Document, error) {
	if document.ID == "" {
		document.ID = bson.NewObjectID().Hex()
	}

	currentTime := int(time.Now().Unix())
	if document.CreatedAt == 0 {
		document.CreatedAt = currentTime
	}
	document.UpdatedAt = currentTime

	if _, err := r.documents.InsertOne(ctx, document); err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}
	return document, nil
}

func (r *ResourceRepository) UpdateDocumentTitle(ctx context.Context, id, title string) error {
	update := bson.M{"$set": bson.M{"title": title, "updatedAt": int(time.Now().Unix())}}
	result, err := r.documents.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ResourceRepository) MoveDocument(ctx context.Context, id, subspaceID string) error {
	update := bson.M{"$set": bson.M{"subspaceId": subspaceID, "updatedAt": int(time.Now().Unix())}}
	result, err := r.documents.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to move document: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ResourceRepository) DeleteDocument(ctx context.Context, id string) error {
	result, err := r.documents.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
