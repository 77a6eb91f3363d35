package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"permission-service/internal/models"
)

type GroupMemberRepository struct {
	collection *mongo.Collection
}

func NewGroupMemberRepository(db *mongo.Database) *GroupMemberRepository {
	return &GroupMemberRepository{
		collection: db.Collection("GroupMember"),
	}
}

// FindGroupIDs returns the ids of every group the user belongs to.
func (r *GroupMemberRepository) FindGroupIDs(ctx context.Context, userID string) ([]string, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list group memberships: %w", err)
	}
	defer cursor.Close(ctx)

	var members []*models.GroupMember
	if err = cursor.All(ctx, &members); err != nil {
		return nil, err
	}

	groupIDs := make([]string, len(members))
	for i, m := range members {
		groupIDs[i] = m.GroupID
	}
	return groupIDs, nil
}

func (r *GroupMemberRepository) FindUserIDs(ctx context.Context, groupID string) ([]string, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"groupId": groupID})
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer cursor.Close(ctx)

	var members []*models.GroupMember
	if err = cursor.All(ctx, &members); err != nil {
		return nil, err
	}

	userIDs := make([]string, len(members))
	for i, m := range members {
		userIDs[i] = m.UserID
	}
	return userIDs, nil
}

func (r *GroupMemberRepository) Add(ctx context.Context, member *models.GroupMember) (*models.GroupMember, error) {
	if member.ID == "" {
		member.ID = bson.NewObjectID().Hex()
	}
	if member.CreatedAt == 0 {
		member.CreatedAt = int(time.Now().Unix())
	}

	if _, err := r.collection.InsertOne(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to insert group member: %w", err)
	}
	return member, nil
}

func (r *GroupMemberRepository) Remove(ctx context.Context, groupID, userID string) error {
	filter := bson.M{"groupId": groupID, "userId": userID}
	if _, err := r.collection.DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return nil
}
