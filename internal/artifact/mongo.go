package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"dtfcapture/internal/flow"
	"dtfcapture/internal/logger"
	"dtfcapture/pkg/retry"
)

const DefaultCollection = "dtf_artifacts"

type document struct {
	Key         string    `bson:"_id"`
	FlowID      string    `bson:"flow_id"`
	CaptureDate string    `bson:"capture_date"`
	ContentType string    `bson:"content_type"`
	Content     []byte    `bson:"content"`
	Size        int       `bson:"size"`
	UploadedAt  time.Time `bson:"uploaded_at"`
}

// MongoUploader stores each CSV artifact as a document keyed by
// {environment}/dtf/{yyyyMMdd}/{flowId}.csv. Re-uploading overwrites.
type MongoUploader struct {
	collection  *mongo.Collection
	environment string
	retry       *retry.Engine
	logger      logger.Logger
}

func NewMongoUploader(db *mongo.Database, collection, environment string, engine *retry.Engine, log logger.Logger) *MongoUploader {
	if collection == "" {
		collection = DefaultCollection
	}
	return &MongoUploader{
		collection:  db.Collection(collection),
		environment: environment,
		retry:       engine,
		logger:      log,
	}
}

func (u *MongoUploader) Upload(ctx context.Context, fc flow.Context, content io.Reader) error {
	body, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}

	key := ObjectKey(u.environment, fc)
	doc := document{
		Key:         key,
		FlowID:      fc.ID.String(),
		CaptureDate: fc.DateString(),
		ContentType: "text/csv",
		Content:     body,
		Size:        len(body),
		UploadedAt:  time.Now().UTC(),
	}

	u.logger.InfowCtx(ctx, "Uploading artifact", "method", "artifact.Upload", "key", key, "size", len(body))

	return u.retry.Do(ctx, retry.KindPersistenceConnect, "artifact.Upload", func(ctx context.Context) error {
		_, err := u.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("failed to store artifact %s: %w", key, err)
		}
		return nil
	})
}

// Fetch returns the stored CSV content of a flow, or nil when absent.
func (u *MongoUploader) Fetch(ctx context.Context, fc flow.Context) ([]byte, error) {
	var doc document
	err := u.collection.FindOne(ctx, bson.M{"_id": ObjectKey(u.environment, fc)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch artifact: %w", err)
	}
	return doc.Content, nil
}

// NopUploader is used when no external artifact storage is configured.
type NopUploader struct {
	Logger logger.Logger
}

func (u NopUploader) Upload(ctx context.Context, fc flow.Context, _ io.Reader) error {
	u.Logger.WarnwCtx(ctx, "Artifact storage not configured, skipping upload",
		"method", "artifact.Upload",
		"key", ObjectKey("", fc),
	)
	return nil
}
