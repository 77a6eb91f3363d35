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

type WorkspaceMemberRepository struct {
	collection *mongo.Collection
}

func NewWorkspaceMemberRepository(db *mongo.Database) *WorkspaceMemberRepository {
	return &WorkspaceMemberRepository{
		collection: db.Collection("WorkspaceMember"),
	}
}

// FindRole returns the user's role in the workspace, or ErrNotFound
// when the user is not a member.
func (r *WorkspaceMemberRepository) FindRole(ctx context.Context, workspaceID, userID string) (string, error) {
	var member models.WorkspaceMember
	filter := bson.M{"workspaceId": workspaceID, "userId": userID}
	err := r.collection.FindOne(ctx, filter).Decode(&member)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to look up workspace role: %w", err)
	}
	return member.Role, nil
}

func (r *WorkspaceMemberRepository) FindByUser(ctx context.Context, userID string) ([]*models.WorkspaceMember, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace memberships: %w", err)
	}
	defer cursor.Close(ctx)

	var members []*models.WorkspaceMember
	if err = cursor.All(ctx, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// Upsert assigns or replaces the user's role in the workspace.
func (r *WorkspaceMemberRepository) Upsert(ctx context.Context, member *models.WorkspaceMember) (*models.WorkspaceMember, error) {
	if member.ID == "" {
		member.ID = bson.NewObjectID().Hex()
	}
	if member.CreatedAt == 0 {
		member.CreatedAt = int(time.Now().Unix())
	}

	filter := bson.M{"workspaceId": member.WorkspaceID, "userId": member.UserID}
	update := bson.M{
		"$set": bson.M{"role": member.Role, "addedBy": member.AddedBy},
		"$setOnInsert": bson.M{
			"_id":         member.ID,
			"workspaceId": member.WorkspaceID,
			"userId":      member.UserID,
			"createdAt":   member.CreatedAt,
		},
	}
	opts := options.UpdateOne().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return nil, fmt.Errorf("failed to upsert workspace member: %w", err)
	}
	return member, nil
}

func (r *WorkspaceMemberRepository) Delete(ctx context.Context, workspaceID, userID string) error {
	filter := bson.M{"workspaceId": workspaceID, "userId": userID}
	if _, err := r.collection.DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("failed to remove workspace member: %w", err)
	}
	return nil
}
