package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/vishan-khatavkar/echoes-game/pkg/session"
	"github.com/vishan-khatavkar/echoes-game/pkg/storage"
)

const (
	fieldLevel     = "level"
	fieldInventory = "inventory"
	fieldHistory   = "history"
)

// seedScript writes the seed hash only if the key is missing, then returns
// {created, level, inventory, history} from whatever is stored.
var seedScript = redis.NewScript(`
	if redis.call("exists", KEYS[1]) == 0 then
		redis.call("hset", KEYS[1], "level", ARGV[1], "inventory", ARGV[2], "history", ARGV[3])
		return {1, ARGV[1], ARGV[2], ARGV[3]}
	end
	return {0, redis.call("hget", KEYS[1], "level"), redis.call("hget", KEYS[1], "inventory"), redis.call("hget", KEYS[1], "history")}
`)

// RedisStorage keeps each session in a hash at session:<username>.
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisStorage implements Storage interface
var _ storage.Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a Redis-backed session store on an existing client
func NewRedisStorage(client *redis.Client, logger *slog.Logger) *RedisStorage {
	return &RedisStorage{
		client: client,
		logger: logger,
	}
}

func sessionKey(username string) string {
	return "session:" + username
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close is a no-op: the client belongs to services.RedisService.
func (r *RedisStorage) Close() error {
	return nil
}

// Session operations

func (r *RedisStorage) Load(ctx context.Context, username string) (*session.Fields, error) {
	key := sessionKey(username)
	vals, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		r.logger.Error("Failed to load session", "username", username, "error", err)
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if len(vals) == 0 {
		r.logger.Debug("Session not found", "username", username)
		return nil, nil
	}

	return &session.Fields{
		Level:     vals[fieldLevel],
		Inventory: vals[fieldInventory],
		History:   vals[fieldHistory],
	}, nil
}

func (r *RedisStorage) Save(ctx context.Context, username string, f session.Fields) error {
	key := sessionKey(username)
	err := r.client.HSet(ctx, key,
		fieldLevel, f.Level,
		fieldInventory, f.Inventory,
		fieldHistory, f.History,
	).Err()
	if err != nil {
		r.logger.Error("Failed to save session", "username", username, "error", err)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStorage) Seed(ctx context.Context, username string, seed session.Fields) (*session.Fields, bool, error) {
	key := sessionKey(username)
	res, err := seedScript.Run(ctx, r.client, []string{key}, seed.Level, seed.Inventory, seed.History).Slice()
	if err != nil {
		r.logger.Error("Failed to seed session", "username", username, "error", err)
		return nil, false, fmt.Errorf("failed to seed session: %w", err)
	}
	if len(res) != 4 {
		return nil, false, fmt.Errorf("failed to seed session: unexpected script reply of length %d", len(res))
	}

	created, _ := res[0].(int64)
	return &session.Fields{
		Level:     asString(res[1]),
		Inventory: asString(res[2]),
		History:   asString(res[3]),
	}, created == 1, nil
}

// asString reads a Lua reply element; a missing hash field arrives as nil.
func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
