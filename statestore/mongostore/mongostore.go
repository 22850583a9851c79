// Package mongostore implements statestore.Store over MongoDB via
// mongo-driver/v2. Entries are documents keyed by {namespace, key}; Search
// uses a $text index over the stored value's JSON text.
package mongostore

import (
	"context"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/loopkit/agentcore/statestore"
)

// entryDocument is the Mongo document shape for one stored entry. Text is a
// denormalized copy of Value's JSON used solely to back the $text index;
// Value itself is stored as raw extended-JSON bytes to stay schema-agnostic
// across callers.
type entryDocument struct {
	ID        string `bson:"_id"`
	Namespace string `bson:"namespace"`
	Key       string `bson:"key"`
	Value     []byte `bson:"value"`
	Text      string `bson:"text"`
}

// Store implements statestore.Store against a single Mongo collection.
type Store struct {
	collection *mongo.Collection
}

// New wraps an already-connected collection. The caller is responsible for
// ensuring a compound index on {namespace,key} (unique) and a $text index
// on "text" exist; EnsureIndexes creates both if missing.
func New(collection *mongo.Collection) *Store {
	return &Store{collection: collection}
}

// EnsureIndexes creates the unique namespace+key index and the $text search
// index used by Search. Safe to call repeatedly.
func EnsureIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "namespace", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "text", Value: "text"}},
		},
	})
	return err
}

func docID(namespace, key string) string {
	return namespace + "\x00" + key
}

func (s *Store) Read(ctx context.Context, namespace, key string) (json.RawMessage, error) {
	var doc entryDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": docID(namespace, key)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, statestore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: read %s/%s: %w", namespace, key, err)
	}
	return json.RawMessage(doc.Value), nil
}

func (s *Store) Write(ctx context.Context, namespace, key string, value json.RawMessage) error {
	doc := entryDocument{
		ID:        docID(namespace, key),
		Namespace: namespace,
		Key:       key,
		Value:     []byte(value),
		Text:      string(value),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		return fmt.Errorf("mongostore: write %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": docID(namespace, key)}); err != nil {
		return fmt.Errorf("mongostore: delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// List returns every key in namespace whose prefix matches, via a regex
// anchored at the start of the key field.
func (s *Store) List(ctx context.Context, namespace, prefix string) ([]string, error) {
	filter := bson.M{
		"namespace": namespace,
		"key":       bson.M{"$regex": "^" + regexQuoteMeta(prefix)},
	}
	cur, err := s.collection.Find(ctx, filter, options.Find().SetProjection(bson.M{"key": 1}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: list %s: %w", namespace, err)
	}
	defer cur.Close(ctx)
	var keys []string
	for cur.Next(ctx) {
		var doc entryDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongostore: list %s: decode: %w", namespace, err)
		}
		keys = append(keys, doc.Key)
	}
	return keys, cur.Err()
}

// Search runs a $text query over namespace's entries and returns hits sorted
// by Mongo's textScore, truncated to limit.
func (s *Store) Search(ctx context.Context, namespace, query string, limit int) ([]statestore.SearchResult, error) {
	filter := bson.M{
		"namespace": namespace,
		"$text":     bson.M{"$search": query},
	}
	opts := options.Find().
		SetProjection(bson.M{"key": 1, "score": bson.M{"$meta": "textScore"}}).
		SetSort(bson.M{"score": bson.M{"$meta": "textScore"}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: search %s: %w", namespace, err)
	}
	defer cur.Close(ctx)
	var results []statestore.SearchResult
	for cur.Next(ctx) {
		var hit struct {
			Key   string  `bson:"key"`
			Score float64 `bson:"score"`
		}
		if err := cur.Decode(&hit); err != nil {
			return nil, fmt.Errorf("mongostore: search %s: decode: %w", namespace, err)
		}
		results = append(results, statestore.SearchResult{Key: hit.Key, Score: hit.Score})
	}
	return results, cur.Err()
}

// regexQuoteMeta escapes regex metacharacters in prefix so List's $regex
// filter treats it as a literal prefix rather than a pattern.
func regexQuoteMeta(s string) string {
	special := `\.+*?()|[]{}^$`
	out := make([]byte, 0, len(s)*2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		for j := 0; j < len(special); j++ {
			if c == special[j] {
				out = append(out, '\\')
				break
			}
		}
		out = append(out, c)
	}
	return string(out)
}
