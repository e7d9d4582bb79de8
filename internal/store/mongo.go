package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"rolebot/internal/config"
	"rolebot/internal/eventlog"
)

const defaultMongoTimeout = 10 * time.Second

type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	feed   *eventlog.Feed
	log    zerolog.Logger
}

func openMongo(ctx context.Context, cfg config.StorageConfig, feed *eventlog.Feed, log zerolog.Logger) (Store, error) {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = defaultMongoTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		feed.Recordf(eventlog.KindError, "Failed to connect to MongoDB: %s", err)
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(cctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		feed.Recordf(eventlog.KindError, "Failed to connect to MongoDB: %s", err)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	feed.Record(eventlog.KindSuccess, "Connected to MongoDB database")
	log.Info().Str("database", cfg.Database).Msg("mongo store opened")
	return &mongoStore{
		client: client,
		db:     client.Database(cfg.Database),
		feed:   feed,
		log:    log,
	}, nil
}

// fail records a storage error in the feed and returns it wrapped. The
// caller always sees the failure; nothing is swallowed here.
func (m *mongoStore) fail(op string, err error) error {
	err = fmt.Errorf("%s: %w", op, err)
	m.feed.Recordf(eventlog.KindError, "Failed to %s: %s", op, err)
	return err
}

func (m *mongoStore) SaveServer(ctx context.Context, s Server) (Server, error) {
	joined := s.JoinedAt
	if joined.IsZero() {
		joined = time.Now().UTC()
	}
	// Single conditional write: no read-then-insert race between
	// concurrent upserts on the same serverId.
	filter := bson.M{"serverId": s.ServerID}
	update := bson.M{
		"$set":         bson.M{"name": s.Name},
		"$setOnInsert": bson.M{"_id": newID(), "serverId": s.ServerID, "joinedAt": joined},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out Server
	if err := m.db.Collection(CollServers).FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		return Server{}, m.fail("save server", err)
	}
	return out, nil
}

func (m *mongoStore) GetServers(ctx context.Context) ([]Server, error) {
	cur, err := m.db.Collection(CollServers).Find(ctx, bson.M{})
	if err != nil {
		return nil, m.fail("get servers", err)
	}
	var out []Server
	if err := cur.All(ctx, &out); err != nil {
		return nil, m.fail("get servers", err)
	}
	return out, nil
}

func (m *mongoStore) SaveRole(ctx context.Context, r Role) (Role, error) {
	filter := bson.M{"roleId": r.RoleID}
	update := bson.M{
		"$set":         bson.M{"name": r.Name, "memberCount": r.MemberCount, "serverId": r.ServerID},
		"$setOnInsert": bson.M{"_id": newID(), "roleId": r.RoleID},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out Role
	if err := m.db.Collection(CollRoles).FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		return Role{}, m.fail("save role", err)
	}
	return out, nil
}

func (m *mongoStore) GetRoles(ctx context.Context, serverID string) ([]Role, error) {
	filter := bson.M{}
	if serverID != "" {
		filter["serverId"] = serverID
	}
	cur, err := m.db.Collection(CollRoles).Find(ctx, filter)
	if err != nil {
		return nil, m.fail("get roles", err)
	}
	var out []Role
	if err := cur.All(ctx, &out); err != nil {
		return nil, m.fail("get roles", err)
	}
	return out, nil
}

func (m *mongoStore) SaveDmLog(ctx context.Context, l DmLog) (DmLog, error) {
	// Every broadcast is a new historical fact; the write time wins over
	// any caller-supplied timestamp.
	l.ID = newID()
	l.Timestamp = time.Now().UTC()
	if _, err := m.db.Collection(CollDmLogs).InsertOne(ctx, l); err != nil {
		return DmLog{}, m.fail("save DM log", err)
	}
	return l, nil
}

func (m *mongoStore) GetDmLogs(ctx context.Context, roleID string) ([]DmLog, error) {
	filter := bson.M{}
	if roleID != "" {
		filter["roleId"] = roleID
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	cur, err := m.db.Collection(CollDmLogs).Find(ctx, filter, opts)
	if err != nil {
		return nil, m.fail("get DM logs", err)
	}
	var out []DmLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, m.fail("get DM logs", err)
	}
	return out, nil
}

func (m *mongoStore) SetBotConfig(ctx context.Context, key string, value any) (ConfigEntry, error) {
	filter := bson.M{"key": key}
	update := bson.M{
		"$set":         bson.M{"value": value},
		"$setOnInsert": bson.M{"_id": newID(), "key": key},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out ConfigEntry
	if err := m.db.Collection(CollBotConfig).FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		return ConfigEntry{}, m.fail("set bot config", err)
	}
	return out, nil
}

func (m *mongoStore) GetBotConfig(ctx context.Context, key string) (any, bool, error) {
	var entry ConfigEntry
	err := m.db.Collection(CollBotConfig).FindOne(ctx, bson.M{"key": key}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, m.fail("get bot config", err)
	}
	return entry.Value, true, nil
}

func (m *mongoStore) GetAllBotConfig(ctx context.Context) ([]ConfigEntry, error) {
	cur, err := m.db.Collection(CollBotConfig).Find(ctx, bson.M{})
	if err != nil {
		return nil, m.fail("get all bot config", err)
	}
	var out []ConfigEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, m.fail("get all bot config", err)
	}
	return out, nil
}

func (m *mongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *mongoStore) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongo disconnect: %w", err)
	}
	m.feed.Record(eventlog.KindInfo, "Closed MongoDB connection")
	return nil
}
