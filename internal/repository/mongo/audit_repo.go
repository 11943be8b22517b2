package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/repository"
)

const auditCollectionName = "audit_log"

// auditDocument is the stored shape of an audit entry. Ids are kept as
// strings so documents stay readable from the mongo shell.
type auditDocument struct {
	ID         string            `bson:"_id"`
	ActorID    string            `bson:"actorId"`
	ActorRole  string            `bson:"actorRole"`
	Action     string            `bson:"action"`
	TargetType string            `bson:"targetType"`
	TargetID   string            `bson:"targetId"`
	ClientID   string            `bson:"clientId,omitempty"`
	Details    map[string]string `bson:"details,omitempty"`
	OccurredAt time.Time         `bson:"occurredAt"`
}

// mongoAuditRepository implements the repository.AuditRepository interface using MongoDB.
type mongoAuditRepository struct {
	collection *mongo.Collection
}

// NewMongoAuditRepository creates a new audit repository on db.
func NewMongoAuditRepository(db *mongo.Database) repository.AuditRepository {
	return &mongoAuditRepository{collection: db.Collection(auditCollectionName)}
}

// Record appends one entry.
func (r *mongoAuditRepository) Record(ctx context.Context, entry *domain.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	doc := auditDocument{
		ID:         entry.ID.String(),
		ActorID:    entry.ActorID.String(),
		ActorRole:  string(entry.ActorRole),
		Action:     string(entry.Action),
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		Details:    entry.Details,
		OccurredAt: entry.OccurredAt.UTC(),
	}
	if entry.ClientID != nil {
		doc.ClientID = entry.ClientID.String()
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns matching entries, newest first.
func (r *mongoAuditRepository) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	filter := bson.M{}
	if f.ActorID != nil {
		filter["actorId"] = f.ActorID.String()
	}
	if f.ClientID != nil {
		filter["clientId"] = f.ClientID.String()
	}
	if f.Action != "" {
		filter["action"] = string(f.Action)
	}
	if f.Since != nil {
		filter["occurredAt"] = bson.M{"$gte": f.Since.UTC()}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "occurredAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(f.EffectiveLimit()))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []auditDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode audit entries: %w", err)
	}

	entries := make([]domain.AuditEntry, 0, len(docs))
	for _, d := range docs {
		e, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (d auditDocument) toDomain() (domain.AuditEntry, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("parse audit id %q: %w", d.ID, err)
	}
	actor, err := uuid.Parse(d.ActorID)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("parse audit actor %q: %w", d.ActorID, err)
	}
	e := domain.AuditEntry{
		ID:         id,
		ActorID:    actor,
		ActorRole:  domain.Role(d.ActorRole),
		Action:     domain.AuditAction(d.Action),
		TargetType: d.TargetType,
		TargetID:   d.TargetID,
		Details:    d.Details,
		OccurredAt: d.OccurredAt.UTC(),
	}
	if d.ClientID != "" {
		client, err := uuid.Parse(d.ClientID)
		if err != nil {
			return domain.AuditEntry{}, fmt.Errorf("parse audit client %q: %w", d.ClientID, err)
		}
		e.ClientID = &client
	}
	return e, nil
}

// EnsureAuditIndexes creates the indexes used by audit queries.
// Call this once during application startup.
func EnsureAuditIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "occurredAt", Value: -1}}},
		{Keys: bson.D{{Key: "clientId", Value: 1}, {Key: "occurredAt", Value: -1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "actorId", Value: 1}, {Key: "occurredAt", Value: -1}}},
		{Keys: bson.D{{Key: "action", Value: 1}}},
	}
	if _, err := db.Collection(auditCollectionName).Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create audit indexes: %w", err)
	}
	return nil
}
