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

type GrantRepository struct {
	collection *mongo.Collection
}

func NewGrantRepository(db *mongo.Database) *GrantRepository {
	return &GrantRepository{
		collection: db.Collection("Grant"),
	}
}

// FindForSubjects returns every grant on the resource held by any of
// the given subjects (a user id plus the ids of the groups it belongs
// to). Order is unspecified; the resolver takes the maximum level.
func (r *GrantRepository) FindForSubjects(ctx context.Context, resourceID string, subjectIDs []string) ([]*models.Grant, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}

	filter := bson.M{
		"resourceId": resourceID,
		"subjectId":  bson.M{"$in": subjectIDs},
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer cursor.Close(ctx)

	var grants []*models.Grant
	if err = cursor.All(ctx, &grants); err != nil {
		return nil, err
	}
	return grants, nil
}

func (r *GrantRepository) FindByResource(ctx context.Context, resourceID string) ([]*models.Grant, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"resourceId": resourceID})
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer cursor.Close(ctx)

	var grants []*models.Grant
	if err = cursor.All(ctx, &grants); err != nil {
		return nil, err
	}
	return grants, nil
}

// Upsert writes a grant, replacing any existing grant for the same
// (resource, subject) pair.
func (r *GrantRepository) Upsert(ctx context.Context, grant *models.Grant) (*models.Grant, error) {
	if grant.ID == "" {
		grant.ID = bson.NewObjectID().Hex()
	}

	currentTime := int(time.Now().Unix())
	if grant.CreatedAt == 0 {
		grant.CreatedAt = currentTime
	}
	grant.UpdatedAt = currentTime

	filter := bson.M{
		"resourceId":  grant.ResourceID,
		"subjectType": grant.SubjectType,
		"subjectId":   grant.SubjectID,
	}
	update := bson.M{
		"$set": bson.M{
			"resourceType": grant.ResourceType,
			"level":        grant.Level,
			"grantedBy":    grant.GrantedBy,
			"updatedAt":    grant.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":         grant.ID,
			"resourceId":  grant.ResourceID,
			"subjectType": grant.SubjectType,
			"subjectId":   grant.SubjectID,
			"createdAt":   grant.CreatedAt,
		},
	}
	opts := options.UpdateOne().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return nil, fmt.Errorf("failed to upsert grant: %w", err)
	}
	return grant, nil
}

func (r *GrantRepository) Delete(ctx context.Context, resourceID, subjectType, subjectID string) error {
	filter := bson.M{
		"resourceId":  resourceID,
		"subjectType": subjectType,
		"subjectId":   subjectID,
	}
	result, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// FindResourceIDsBySubject lists resources a subject holds grants on.
// Used to invalidate cached levels when group membership changes.
func (r *GrantRepository) FindResourceIDsBySubject(ctx context.Context, subjectID string) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"resourceId": 1, "_id": 0})
	cursor, err := r.collection.Find(ctx, bson.M{"subjectId": subjectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants by subject: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		ResourceID string `bson:"resourceId"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}

	ids := make([]string, len(results))
	for i, result := range results {
		ids[i] = result.ResourceID
	}
	return ids, nil
}

func (r *GrantRepository) FindByID(ctx context.Context, id string) (*models.Grant, error) {
	var grant models.Grant
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&grant)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up grant: %w", err)
	}
	return &grant, nil
}
