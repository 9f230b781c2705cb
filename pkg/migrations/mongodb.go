package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureArtifactCollection creates the lookup indexes of the artifact
// collection. The collection itself is created on first insert.
func EnsureArtifactCollection(ctx context.Context, db *mongo.Database, collection string) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "flow_id", Value: 1}},
			Options: options.Index().SetName("idx_" + collection + "_flow_id"),
		},
		{
			Keys:    bson.D{{Key: "capture_date", Value: -1}, {Key: "uploaded_at", Value: -1}},
			Options: options.Index().SetName("idx_" + collection + "_capture_date"),
		},
	}

	_, err := db.Collection(collection).Indexes().CreateMany(ctx, indexes)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
