package stores

import (
	"context"
	"log"
	"net/http"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
)

// caseInsensitive compares strings without regard to case (collation
// strength 2), used for the username-taken check.
var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

// MongoProfileStore is the MongoDB-backed ProfileStore. The client is a
// long-lived shared connection; one store instance serves the process.
type MongoProfileStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoProfileStore wires the store to the profiles collection and
// ensures the discovery and username indexes exist.
func NewMongoProfileStore(client *mongo.Client, dbName string) *MongoProfileStore {
	collection := client.Database(dbName).Collection("profiles")

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "hashed_phone_number", Value: 1}}},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetCollation(caseInsensitive),
		},
	}
	if _, err := collection.Indexes().CreateMany(context.Background(), indexes); err != nil {
		log.Printf("Failed to create profile indexes: %v", err)
	}

	return &MongoProfileStore{client: client, collection: collection}
}

func (s *MongoProfileStore) Get(ctx context.Context, id models.ProfileID) (models.Profile, error) {
	return getProfile(ctx, s.collection, id)
}

func getProfile(ctx context.Context, collection *mongo.Collection, id models.ProfileID) (models.Profile, error) {
	var p models.Profile
	err := collection.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return models.Profile{}, errors.ErrNotFound
	}
	if err != nil {
		return models.Profile{}, errors.Wrap(err, "INTERNAL", "profile lookup failed", http.StatusInternalServerError)
	}
	return p, nil
}

func (s *MongoProfileStore) Create(ctx context.Context, p models.Profile) error {
	_, err := s.collection.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return errors.ErrAlreadyExists
	}
	if err != nil {
		return errors.Wrap(err, "INTERNAL", "profile create failed", http.StatusInternalServerError)
	}
	return nil
}

func (s *MongoProfileStore) Put(ctx context.Context, p models.Profile) error {
	return putProfile(ctx, s.collection, p)
}

func putProfile(ctx context.Context, collection *mongo.Collection, p models.Profile) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := collection.ReplaceOne(ctx, bson.M{"_id": p.ID}, p, opts); err != nil {
		return errors.Wrap(err, "INTERNAL", "profile write failed", http.StatusInternalServerError)
	}
	return nil
}

func (s *MongoProfileStore) FindByHashedPhone(ctx context.Context, hash string) (models.Profile, error) {
	return findByHashedPhone(ctx, s.collection, hash)
}

func findByHashedPhone(ctx context.Context, collection *mongo.Collection, hash string) (models.Profile, error) {
	if hash == "" {
		// Tombstoned records carry an empty hash; never let an empty
		// query match one.
		return models.Profile{}, errors.ErrNotFound
	}
	var p models.Profile
	err := collection.FindOne(ctx, bson.M{"hashed_phone_number": hash}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return models.Profile{}, errors.ErrNotFound
	}
	if err != nil {
		return models.Profile{}, errors.Wrap(err, "INTERNAL", "phone hash lookup failed", http.StatusInternalServerError)
	}
	return p, nil
}

func (s *MongoProfileStore) FindByHashedPhones(ctx context.Context, hashes []string) ([]models.Profile, error) {
	var out []models.Profile
	for _, chunk := range hashChunks(hashes) {
		cursor, err := s.collection.Find(ctx, bson.M{"hashed_phone_number": bson.M{"$in": chunk}})
		if err != nil {
			return nil, errors.Wrap(err, "INTERNAL", "phone hash query failed", http.StatusInternalServerError)
		}
		var batch []models.Profile
		if err := cursor.All(ctx, &batch); err != nil {
			return nil, errors.Wrap(err, "INTERNAL", "phone hash decode failed", http.StatusInternalServerError)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (s *MongoProfileStore) FindMissingPhoneHash(ctx context.Context) ([]models.Profile, error) {
	filter := bson.M{
		"phone_number": bson.M{"$nin": bson.A{"", nil}},
		"$or": bson.A{
			bson.M{"hashed_phone_number": ""},
			bson.M{"hashed_phone_number": bson.M{"$exists": false}},
		},
		"migrated_to_user_id": bson.M{"$exists": false},
	}
	cursor, err := s.collection.Find(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "INTERNAL", "backfill query failed", http.StatusInternalServerError)
	}
	var out []models.Profile
	if err := cursor.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "INTERNAL", "backfill decode failed", http.StatusInternalServerError)
	}
	return out, nil
}

func (s *MongoProfileStore) IsUsernameTaken(ctx context.Context, username string, excluding models.ProfileID) (bool, error) {
	filter := bson.M{"username": username}
	if excluding != "" {
		filter["_id"] = bson.M{"$ne": excluding}
	}
	opts := options.FindOne().SetCollation(caseInsensitive)
	err := s.collection.FindOne(ctx, filter, opts).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "INTERNAL", "username lookup failed", http.StatusInternalServerError)
	}
	return true, nil
}

// mongoProfileTx routes transaction reads and writes through the session
// context so they participate in the multi-document transaction.
type mongoProfileTx struct {
	ctx        mongo.SessionContext
	collection *mongo.Collection
}

func (tx *mongoProfileTx) Get(id models.ProfileID) (models.Profile, error) {
	return getProfile(tx.ctx, tx.collection, id)
}

func (tx *mongoProfileTx) FindByHashedPhone(hash string) (models.Profile, error) {
	return findByHashedPhone(tx.ctx, tx.collection, hash)
}

func (tx *mongoProfileTx) Put(p models.Profile) error {
	return putProfile(tx.ctx, tx.collection, p)
}

// RunTransaction executes fn inside a Mongo session transaction. The
// driver retries transient commit conflicts itself, which is the
// optimistic-concurrency retry the graph mutations rely on; callers must
// not add an outer retry loop around this.
func (s *MongoProfileStore) RunTransaction(ctx context.Context, fn func(tx ProfileTx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "INTERNAL", "failed to start transaction", http.StatusInternalServerError)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		tx := &mongoProfileTx{ctx: sc, collection: s.collection}
		if err := fn(tx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return errors.Wrap(err, "INTERNAL", "transaction failed", http.StatusInternalServerError)
	}
	return nil
}
