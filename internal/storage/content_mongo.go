package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/tenantinit/internal/core"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// recordDoc is the stored form of a seeded record.
type recordDoc struct {
	WorkspaceID string        `bson:"workspace_id"`
	DataType    core.DataType `bson:"data_type"`
	core.Record `bson:",inline"`
	SeedBatch   string    `bson:"seed_batch,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

// MongoContentOptions configures the search index built for a workspace.
type MongoContentOptions struct {
	// VectorDimensions enables an Atlas vector search index on the embedding
	// field. Zero builds a text index instead.
	VectorDimensions int
	VectorSimilarity string
}

// MongoContent implements core.ContentBackend on the service content database.
type MongoContent struct {
	db   *mongo.Database
	opts MongoContentOptions
	now  func() time.Time
}

var _ core.ContentBackend = (*MongoContent)(nil)

// ConnectMongo opens a client and verifies it against the primary.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// NewMongoContent creates a content backend on db.
func NewMongoContent(db *mongo.Database, opts MongoContentOptions) *MongoContent {
	if opts.VectorSimilarity == "" {
		opts.VectorSimilarity = "cosine"
	}
	return &MongoContent{db: db, opts: opts, now: time.Now}
}

// PersistRecords inserts records in batches tagged with one seed batch id.
// If any batch fails, the documents already inserted under that id are
// removed. With Overwrite, the workspace's older records of the data type are
// removed only after every batch is in.
func (m *MongoContent) PersistRecords(ctx context.Context, workspaceID string, dataType core.DataType, records []core.Record, opts core.PersistOptions) error {
	coll := m.db.Collection(collRecords)
	batch := uuid.NewString()

	now := m.now().UTC()
	for _, b := range batchBounds(len(records), opts.BatchSize) {
		docs := make([]any, 0, b[1]-b[0])
		for _, r := range records[b[0]:b[1]] {
			docs = append(docs, recordDoc{
				WorkspaceID: workspaceID,
				DataType:    dataType,
				Record:      r,
				SeedBatch:   batch,
				CreatedAt:   now,
			})
		}
		if _, err := coll.InsertMany(ctx, docs); err != nil {
			err = fmt.Errorf("insert records %d-%d: %w", b[0], b[1], err)
			if _, cerr := coll.DeleteMany(context.WithoutCancel(ctx), seedBatchFilter(workspaceID, dataType, batch)); cerr != nil {
				return fmt.Errorf("%w (cleanup of batch %s failed: %v)", err, batch, cerr)
			}
			return err
		}
	}

	if opts.Overwrite {
		if _, err := coll.DeleteMany(ctx, staleRecordsFilter(workspaceID, dataType, batch)); err != nil {
			return fmt.Errorf("clear previous %s records: %w", dataType, err)
		}
	}
	return nil
}

// seedBatchFilter matches the documents written by one PersistRecords call.
func seedBatchFilter(workspaceID string, dataType core.DataType, batch string) bson.D {
	return bson.D{
		{Key: "workspace_id", Value: workspaceID},
		{Key: "data_type", Value: dataType},
		{Key: "seed_batch", Value: batch},
	}
}

// staleRecordsFilter matches every document of the data type not written by batch.
func staleRecordsFilter(workspaceID string, dataType core.DataType, batch string) bson.D {
	return bson.D{
		{Key: "workspace_id", Value: workspaceID},
		{Key: "data_type", Value: dataType},
		{Key: "seed_batch", Value: bson.D{{Key: "$ne", Value: batch}}},
	}
}

// BuildVectorIndex builds the search index over the records collection and
// marks the workspace ready.
func (m *MongoContent) BuildVectorIndex(ctx context.Context, workspaceID string) error {
	coll := m.db.Collection(collRecords)

	if m.opts.VectorDimensions > 0 {
		model := mongo.SearchIndexModel{
			Definition: bson.D{{Key: "fields", Value: bson.A{
				bson.D{
					{Key: "type", Value: "vector"},
					{Key: "path", Value: "embedding"},
					{Key: "numDimensions", Value: m.opts.VectorDimensions},
					{Key: "similarity", Value: m.opts.VectorSimilarity},
				},
				bson.D{{Key: "type", Value: "filter"}, {Key: "path", Value: "workspace_id"}},
			}}},
			Options: options.SearchIndexes().SetName("knowledge_vector").SetType("vectorSearch"),
		}
		if _, err := coll.SearchIndexes().CreateOne(ctx, model); err != nil && !alreadyExists(err) {
			return fmt.Errorf("create vector index: %w", err)
		}
	} else {
		model := mongo.IndexModel{
			Keys: bson.D{
				{Key: "workspace_id", Value: 1},
				{Key: "title", Value: "text"},
				{Key: "content", Value: "text"},
			},
			Options: options.Index().SetName("knowledge_text"),
		}
		if _, err := coll.Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("create text index: %w", err)
		}
	}

	_, err := m.db.Collection(collSettings).UpdateOne(ctx,
		bson.D{{Key: "workspace_id", Value: workspaceID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "vector_index", Value: core.VectorIndexReady},
			{Key: "updated_at", Value: m.now().UTC()},
		}}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mark index ready: %w", err)
	}
	return nil
}

// RegisterTriggerRules upserts one rule per scenario record and removes rules
// whose scenario no longer exists.
func (m *MongoContent) RegisterTriggerRules(ctx context.Context, workspaceID string) (int, error) {
	cursor, err := m.db.Collection(collRecords).Find(ctx, bson.D{
		{Key: "workspace_id", Value: workspaceID},
		{Key: "data_type", Value: core.DataScenarios},
	})
	if err != nil {
		return 0, fmt.Errorf("find scenarios: %w", err)
	}
	var docs []recordDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return 0, fmt.Errorf("read scenarios: %w", err)
	}

	records := make([]core.Record, len(docs))
	for i, d := range docs {
		records[i] = d.Record
	}
	rules := deriveTriggerRules(workspaceID, records)

	coll := m.db.Collection(collTriggerRules)
	names := make(bson.A, 0, len(rules))
	if len(rules) > 0 {
		now := m.now().UTC()
		ops := make([]mongo.WriteModel, 0, len(rules))
		for _, rule := range rules {
			names = append(names, rule.Name)
			ops = append(ops, mongo.NewUpdateOneModel().
				SetFilter(bson.D{{Key: "workspace_id", Value: workspaceID}, {Key: "name", Value: rule.Name}}).
				SetUpdate(bson.D{{Key: "$set", Value: bson.D{
					{Key: "trigger", Value: rule.Trigger},
					{Key: "keywords", Value: rule.Keywords},
					{Key: "response", Value: rule.Response},
					{Key: "updated_at", Value: now},
				}}}).
				SetUpsert(true))
		}
		if _, err := coll.BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(false)); err != nil {
			return 0, fmt.Errorf("upsert trigger rules: %w", err)
		}
	}

	if err := pruneByName(ctx, coll, workspaceID, names); err != nil {
		return 0, fmt.Errorf("prune trigger rules: %w", err)
	}
	return len(rules), nil
}

// SyncCategories recomputes the workspace category list from its records.
func (m *MongoContent) SyncCategories(ctx context.Context, workspaceID string) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "workspace_id", Value: workspaceID},
			{Key: "category", Value: bson.D{{Key: "$nin", Value: bson.A{nil, ""}}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$category"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}

	cursor, err := m.db.Collection(collRecords).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("aggregate categories: %w", err)
	}
	var groups []struct {
		Name  string `bson:"_id"`
		Count int    `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return 0, fmt.Errorf("read categories: %w", err)
	}

	coll := m.db.Collection(collCategories)
	names := make(bson.A, 0, len(groups))
	if len(groups) > 0 {
		now := m.now().UTC()
		ops := make([]mongo.WriteModel, 0, len(groups))
		for _, g := range groups {
			names = append(names, g.Name)
			ops = append(ops, mongo.NewUpdateOneModel().
				SetFilter(bson.D{{Key: "workspace_id", Value: workspaceID}, {Key: "name", Value: g.Name}}).
				SetUpdate(bson.D{{Key: "$set", Value: bson.D{
					{Key: "record_count", Value: g.Count},
					{Key: "updated_at", Value: now},
				}}}).
				SetUpsert(true))
		}
		if _, err := coll.BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(false)); err != nil {
			return 0, fmt.Errorf("upsert categories: %w", err)
		}
	}

	if err := pruneByName(ctx, coll, workspaceID, names); err != nil {
		return 0, fmt.Errorf("prune categories: %w", err)
	}
	return len(groups), nil
}

// pruneByName deletes workspace documents whose name is not in keep.
func pruneByName(ctx context.Context, coll *mongo.Collection, workspaceID string, keep bson.A) error {
	_, err := coll.DeleteMany(ctx, bson.D{
		{Key: "workspace_id", Value: workspaceID},
		{Key: "name", Value: bson.D{{Key: "$nin", Value: keep}}},
	})
	return err
}

func alreadyExists(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
