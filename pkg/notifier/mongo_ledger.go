package notifier

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MongoLedger implements Ledger on a MongoDB collection. The dedup key is
// the document _id, a composite of user, threshold and deadline, so
// reservation rides on the collection's inherent _id uniqueness and needs
// no extra index.
type MongoLedger struct {
	coll *mongo.Collection
}

// NewMongoLedger creates a MongoDB-backed dispatch ledger on coll.
func NewMongoLedger(coll *mongo.Collection) *MongoLedger {
	if coll == nil {
		panic("notifier: collection is required")
	}
	return &MongoLedger{coll: coll}
}

type ledgerID struct {
	UserID string `bson:"user_id"`
	Label  string `bson:"threshold"`
	// BSON datetimes carry millisecond precision; the deadline is
	// truncated on write so lookups compare equal.
	Deadline time.Time `bson:"deadline"`
}

type ledgerDoc struct {
	ID        ledgerID  `bson:"_id"`
	Status    Status    `bson:"status"`
	Attempts  int       `bson:"attempts"`
	LastError string    `bson:"last_error"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func mongoID(key Key) ledgerID {
	return ledgerID{
		UserID:   key.UserID.String(),
		Label:    key.Label,
		Deadline: key.Deadline.Truncate(time.Millisecond),
	}
}

func (l *MongoLedger) Reserve(ctx context.Context, key Key, now time.Time) (*Entry, error) {
	doc := ledgerDoc{
		ID:        mongoID(key),
		Status:    StatusPending,
		UpdatedAt: now,
	}

	_, err := l.coll.InsertOne(ctx, doc)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, errors.Join(ErrLedgerUnavailable, err)
	}

	var stored ledgerDoc
	if err := l.coll.FindOne(ctx, bson.M{"_id": doc.ID}).Decode(&stored); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrEntryNotFound
		}
		return nil, errors.Join(ErrLedgerUnavailable, err)
	}

	return &Entry{
		Key:       key,
		Status:    stored.Status,
		Attempts:  stored.Attempts,
		LastError: stored.LastError,
		UpdatedAt: stored.UpdatedAt,
	}, nil
}

func (l *MongoLedger) MarkSent(ctx context.Context, key Key, now time.Time) error {
	return l.mark(ctx, key, bson.M{
		"$set": bson.M{"status": StatusSent, "last_error": "", "updated_at": now},
		"$inc": bson.M{"attempts": 1},
	})
}

func (l *MongoLedger) MarkFailed(ctx context.Context, key Key, now time.Time, sendErr error) error {
	lastError := ""
	if sendErr != nil {
		lastError = sendErr.Error()
	}
	return l.mark(ctx, key, bson.M{
		"$set": bson.M{"status": StatusFailed, "last_error": lastError, "updated_at": now},
		"$inc": bson.M{"attempts": 1},
	})
}

func (l *MongoLedger) mark(ctx context.Context, key Key, update bson.M) error {
	res, err := l.coll.UpdateOne(ctx, bson.M{"_id": mongoID(key)}, update)
	if err != nil {
		return errors.Join(ErrLedgerUnavailable, err)
	}
	if res.MatchedCount == 0 {
		return ErrEntryNotFound
	}
	return nil
}
