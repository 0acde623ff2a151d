package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vinzz/vinzz-rpg-bot/internal/domain"
)

// maxTxRetries bounds optimistic-concurrency retries before the write is
// reported as a storage failure.
const maxTxRetries = 5

// Store persists user records and the static catalog in Redis, one JSON value
// per entity key. Mutations to a key go through a WATCH transaction, so there
// is at most one in-flight mutation per entity while unrelated entities
// proceed in parallel.
type Store struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func New(redisURL string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for store")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(rdb, logger), nil
}

// NewWithClient wraps an existing Redis client. Used by tests and by managers
// that share one connection pool.
func NewWithClient(rdb *redis.Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{rdb: rdb, logger: logger}
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Client exposes the underlying connection for managers that keep their own
// key namespaces on the same server.
func (s *Store) Client() *redis.Client { return s.rdb }

func userKey(id string) string { return "rpg:user:" + strings.TrimSpace(id) }

const (
	usersIndexKey = "rpg:index:users"
	catalogKey    = "rpg:catalog"
)

// GetUser loads a user record, implicitly creating starter defaults when the
// identity has never been seen. A corrupt stored value falls back to starter
// defaults as well; that loss is logged, not silently swallowed.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.UserRecord, error) {
	raw, err := s.rdb.Get(ctx, userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NewUserRecord(id), nil
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get user", Err: err}
	}
	u, err := decodeUser(id, raw)
	if err != nil {
		s.logger.Warn("corrupt user record, falling back to starter defaults",
			zap.String("user_id", id), zap.Error(err))
		return domain.NewUserRecord(id), nil
	}
	return u, nil
}

// SaveUser overwrites the record and registers the identity in the user index.
func (s *Store) SaveUser(ctx context.Context, u *domain.UserRecord) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return &domain.StorageError{Op: "encode user", Err: err}
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, userKey(u.ID), raw, 0)
	pipe.SAdd(ctx, usersIndexKey, u.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return &domain.StorageError{Op: "save user", Err: err}
	}
	return nil
}

// UpdateUser runs fn against the current record inside a WATCH transaction.
// When fn returns an error nothing is written and the error is returned
// unchanged, so declined operations leave persisted state untouched.
func (s *Store) UpdateUser(ctx context.Context, id string, fn func(*domain.UserRecord) error) (*domain.UserRecord, error) {
	var out *domain.UserRecord
	key := userKey(id)

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := s.loadForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := fn(cur); err != nil {
				return err
			}
			cur.LastActiveAt = time.Now()

			raw, err := json.Marshal(cur)
			if err != nil {
				return &domain.StorageError{Op: "encode user", Err: err}
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, raw, 0)
			pipe.SAdd(ctx, usersIndexKey, id)
			if _, err := pipe.Exec(ctx); err != nil {
				if errors.Is(err, redis.TxFailedErr) {
					return err
				}
				return &domain.StorageError{Op: "update user", Err: err}
			}
			out = cur
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, &domain.StorageError{Op: "update user", Err: redis.TxFailedErr}
}

// UpdateUsers mutates two records atomically with respect to each other,
// used for wager settlement. Keys are watched in a stable order.
func (s *Store) UpdateUsers(ctx context.Context, idA, idB string, fn func(a, b *domain.UserRecord) error) error {
	if idA == idB {
		return fmt.Errorf("update users: identical keys %q", idA)
	}
	keys := []string{userKey(idA), userKey(idB)}
	sort.Strings(keys)

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			a, err := s.loadForUpdate(ctx, tx, idA)
			if err != nil {
				return err
			}
			b, err := s.loadForUpdate(ctx, tx, idB)
			if err != nil {
				return err
			}
			if err := fn(a, b); err != nil {
				return err
			}

			rawA, err := json.Marshal(a)
			if err != nil {
				return &domain.StorageError{Op: "encode user", Err: err}
			}
			rawB, err := json.Marshal(b)
			if err != nil {
				return &domain.StorageError{Op: "encode user", Err: err}
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, userKey(idA), rawA, 0)
			pipe.Set(ctx, userKey(idB), rawB, 0)
			pipe.SAdd(ctx, usersIndexKey, idA, idB)
			if _, err := pipe.Exec(ctx); err != nil {
				if errors.Is(err, redis.TxFailedErr) {
					return err
				}
				return &domain.StorageError{Op: "update users", Err: err}
			}
			return nil
		}, keys...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return &domain.StorageError{Op: "update users", Err: redis.TxFailedErr}
}

// AllUsers returns every known record. Corrupt entries are skipped with a log
// line so one bad value cannot take down the leaderboard.
func (s *Store) AllUsers(ctx context.Context) ([]*domain.UserRecord, error) {
	ids, err := s.rdb.SMembers(ctx, usersIndexKey).Result()
	if err != nil {
		return nil, &domain.StorageError{Op: "list users", Err: err}
	}
	users := make([]*domain.UserRecord, 0, len(ids))
	for _, id := range ids {
		raw, err := s.rdb.Get(ctx, userKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, &domain.StorageError{Op: "list users", Err: err}
		}
		u, err := decodeUser(id, raw)
		if err != nil {
			s.logger.Warn("skipping corrupt user record", zap.String("user_id", id), zap.Error(err))
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// DeleteUser removes a record entirely (admin reset).
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, userKey(id))
	pipe.SRem(ctx, usersIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return &domain.StorageError{Op: "delete user", Err: err}
	}
	return nil
}

func (s *Store) loadForUpdate(ctx context.Context, tx *redis.Tx, id string) (*domain.UserRecord, error) {
	raw, err := tx.Get(ctx, userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NewUserRecord(id), nil
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get user", Err: err}
	}
	u, err := decodeUser(id, raw)
	if err != nil {
		s.logger.Warn("corrupt user record, falling back to starter defaults",
			zap.String("user_id", id), zap.Error(err))
		return domain.NewUserRecord(id), nil
	}
	return u, nil
}

func decodeUser(id string, raw []byte) (*domain.UserRecord, error) {
	var u domain.UserRecord
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		u.ID = id
	}
	if u.Inventory == nil {
		u.Inventory = map[string]int{}
	}
	return &u, nil
}

// ParseRedisURL converts a redis:// URL into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
