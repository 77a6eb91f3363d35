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

type SubspaceMemberRepository struct {
	collection *mongo.Collection
}

func NewSubspaceMemberRepository(db *mongo.Database) *SubspaceMemberRepository {
	return &SubspaceMemberRepository{
		collection: db.Collection("SubspaceMember"),
	}
}

// FindRole returns the user's role in the subspace, or ErrNotFound
// when the user is not a member.
func (r *SubspaceMemberRepository) FindRole(ctx context.Context, subspaceID, userID string) (string, error) {
	var member models.SubspaceMember
	filter := bson.M{"subspaceId": subspaceID, "userId": userID}
	err := r.collection.FindOne(ctx, filter).Decode(&member)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to look up subspace role: %w", err)
	}
	return member.Role, nil
}

func (r *SubspaceMemberRepository) FindByUser(ctx context.Context, userID string) ([]*models.SubspaceMember, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list subspace memberships: %w", err)
	}
	defer cursor.Close(ctx)

	var members []*models.SubspaceMember
	if err = cursor.All(ctx, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (r *SubspaceMemberRepository) Upsert(ctx context.Context, member *models.SubspaceMember) (*models.SubspaceMember, error) {
	if member.ID == "" {
		member.ID = bson.NewObjectID().Hex()
	}
	if member.CreatedAt == 0 {
		member.CreatedAt = int(time.Now().Unix())
	}

	filter := bson.M{"subspaceId": member.SubspaceID, "userId": member.UserID}
	update := bson.M{
		"$set": bson.M{"role": member.Role, "addedBy": member.AddedBy},
		"$setOnInsert": bson.M{
			"_id":        member.ID,
			"subspaceId": member.SubspaceID,
			"userId":     member.UserID,
			"createdAt":  member.CreatedAt,
		},
	}
	opts := options.UpdateOne().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return nil, fmt.Errorf("failed to upsert subspace member: %w", err)
	}
	return member, nil
}

func (r *SubspaceMemberRepository) Delete(ctx context.Context, subspaceID, userID string) error {
	filter := bson.M{"subspaceId": subspaceID, "userId": userID}
	if _, err := r.collection.DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("failed to remove subspace member: %w", err)
	}
	return nil
}
