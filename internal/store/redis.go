// redis.go
package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"secure.vault/internal/models"
)

var _ Store = (*RedisStore)(nil)

const maxTxRetries = 3

type RedisOptions struct {
	// KeyPrefix namespaces every key written by the store.
	KeyPrefix string
	// ExpiryGrace keeps records in Redis this long past their ttl so that
	// readers still observe the expiry. Zero disables Redis-side expiry.
	ExpiryGrace time.Duration
}

type RedisStore struct {
	client *redis.Client
	prefix string
	grace  time.Duration
}

func NewRedisStore(options *redis.Options, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(options)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", options.Addr, err)
	}

	return &RedisStore{client: client, prefix: opts.KeyPrefix, grace: opts.ExpiryGrace}, nil
}

func (r *RedisStore) Save(ctx context.Context, obj *models.Object) error {
	data, err := encode(obj)
	if err != nil {
		return err
	}

	key := r.objectKey(obj.ID)
	exp := r.expiration(obj)

	txf := func(tx *redis.Tx) error {
		prev, err := r.load(ctx, tx, obj.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if prev != nil {
				if prev.Name != obj.Name {
					pipe.SRem(ctx, r.nameKey(prev.Name), obj.ID)
				}
				if prev.OwnerEmail != obj.OwnerEmail {
					pipe.SRem(ctx, r.ownerKey(prev.OwnerEmail), obj.ID)
				}
				if prev.Token != obj.Token {
					pipe.Del(ctx, r.tokenKey(prev.Token))
				}
			}
			pipe.Set(ctx, key, data, exp)
			pipe.Set(ctx, r.tokenKey(obj.Token), obj.ID, exp)
			pipe.SAdd(ctx, r.nameKey(obj.Name), obj.ID)
			pipe.SAdd(ctx, r.ownerKey(obj.OwnerEmail), obj.ID)
			pipe.SAdd(ctx, r.allKey(), obj.ID)
			return nil
		})
		return err
	}

	return r.watch(ctx, txf, key)
}

func (r *RedisStore) Get(ctx context.Context, id string) (*models.Object, error) {
	return r.load(ctx, r.client, id)
}

func (r *RedisStore) FindByName(ctx context.Context, name string) ([]*models.Object, error) {
	objs, err := r.loadSet(ctx, r.nameKey(name))
	if err != nil {
		return nil, err
	}
	return filter(objs, func(o *models.Object) bool { return o.Name == name }), nil
}

func (r *RedisStore) FindByToken(ctx context.Context, token string) (*models.Object, error) {
	id, err := r.client.Get(ctx, r.tokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	obj, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if obj.Token != token {
		return nil, ErrNotFound
	}
	return obj, nil
}

func (r *RedisStore) ListByOwner(ctx context.Context, ownerEmail string) ([]*models.Object, error) {
	objs, err := r.loadSet(ctx, r.ownerKey(ownerEmail))
	if err != nil {
		return nil, err
	}
	return filter(objs, func(o *models.Object) bool { return o.OwnerEmail == ownerEmail }), nil
}

func (r *RedisStore) ListAll(ctx context.Context) ([]*models.Object, error) {
	return r.loadSet(ctx, r.allKey())
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	key := r.objectKey(id)

	txf := func(tx *redis.Tx) error {
		prev, err := r.load(ctx, tx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, r.allKey(), id)
			if prev != nil {
				pipe.SRem(ctx, r.nameKey(prev.Name), id)
				pipe.SRem(ctx, r.ownerKey(prev.OwnerEmail), id)
				pipe.Del(ctx, r.tokenKey(prev.Token))
			}
			return nil
		})
		return err
	}

	return r.watch(ctx, txf, key)
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// watch runs txf optimistically, retrying when a watched key changed.
func (r *RedisStore) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, keys...)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) load(ctx context.Context, c getter, id string) (*models.Object, error) {
	data, err := c.Get(ctx, r.objectKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decode(data)
}

// loadSet fetches every object whose id is in the set at key. Members whose
// record is gone are pruned from the set.
func (r *RedisStore) loadSet(ctx context.Context, key string) ([]*models.Object, error) {
	ids, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*models.Object{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.objectKey(id)
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	objs := make([]*models.Object, 0, len(vals))
	var stale []any
	for i, val := range vals {
		s, ok := val.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		obj, err := decode([]byte(s))
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}

	if len(stale) > 0 {
		// Best effort; a failed prune is retried on the next read.
		_ = r.client.SRem(ctx, key, stale...).Err()
	}

	sort.Slice(objs, func(i, j int) bool { return objs[i].ID < objs[j].ID })
	return objs, nil
}

func (r *RedisStore) expiration(obj *models.Object) time.Duration {
	if r.grace <= 0 {
		return 0
	}
	remaining := time.Until(obj.ExpiresAt())
	if remaining < 0 {
		remaining = 0
	}
	return remaining + r.grace
}

// Helpers

func (r *RedisStore) objectKey(id string) string {
	return r.prefix + "object:" + id
}

func (r *RedisStore) nameKey(name string) string {
	return r.prefix + "idx:name:" + name
}

func (r *RedisStore) ownerKey(email string) string {
	return r.prefix + "idx:owner:" + email
}

func (r *RedisStore) tokenKey(token string) string {
	return r.prefix + "idx:token:" + token
}

func (r *RedisStore) allKey() string {
	return r.prefix + "idx:all"
}

func filter(objs []*models.Object, keep func(*models.Object) bool) []*models.Object {
	out := objs[:0]
	for _, o := range objs {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

func encode(obj *models.Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(obj); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (*models.Object, error) {
	var obj models.Object
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&obj); err != nil {
		return nil, err
	}
	return &obj, nil
}
