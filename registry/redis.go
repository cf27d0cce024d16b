package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Both keys of an account share a hash tag so the scripts stay single-slot on
// Redis Cluster.
const putRecordScript = `
local prev = redis.call("GET", KEYS[1])
local gen = redis.call("INCR", KEYS[2])
redis.call("SET", KEYS[1], ARGV[1])
if not prev then
  prev = ""
end
return {prev, gen}
`

var putRecordLua = redis.NewScript(putRecordScript)

const deleteRecordScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("DEL", KEYS[2])
return existed
`

var deleteRecordLua = redis.NewScript(deleteRecordScript)

// RedisStore keeps one Lease Record per account in Redis.
//
//	Performance: Put and Delete are one EVALSHA, Get is one GET.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a [RedisStore]. prefix namespaces the keys; an empty
// prefix selects "lr".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "lr"
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *RedisStore) recordKey(accountID string) string {
	return s.prefix + ":{" + accountID + "}"
}

func (s *RedisStore) generationKey(accountID string) string {
	return s.prefix + ":gen:{" + accountID + "}"
}

// Put atomically replaces the account's record and returns the previous lease
// id together with the new generation.
func (s *RedisStore) Put(ctx context.Context, rec Record) (PutResult, error) {
	if err := checkRecord(rec); err != nil {
		return PutResult{}, err
	}

	data, err := Encode(rec)
	if err != nil {
		return PutResult{}, err
	}

	result, err := putRecordLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(rec.AccountID), s.generationKey(rec.AccountID)},
		data,
	).Result()
	if err != nil {
		return PutResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return PutResult{}, fmt.Errorf("%w: invalid put script response", ErrUnavailable)
	}

	gen, ok := parts[1].(int64)
	if !ok || gen <= 0 {
		return PutResult{}, fmt.Errorf("%w: invalid put script generation", ErrUnavailable)
	}
	rec.Generation = uint64(gen)

	out := PutResult{Record: rec}

	prevBlob, _ := parts[0].(string)
	if prevBlob != "" {
		prev, decErr := Decode([]byte(prevBlob))
		if decErr == nil {
			out.PreviousLeaseID = prev.LeaseID
		}
	}

	return out, nil
}

// Get returns the account's record, [ErrNotFound] when absent or
// [ErrCorrupt] when the stored blob cannot be decoded.
func (s *RedisStore) Get(ctx context.Context, accountID string) (Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	rec.AccountID = accountID

	return rec, nil
}

// GetWithGeneration is Get plus the generation counter, read in one MGET.
// It is meant for support tooling, not the validation hot path.
func (s *RedisStore) GetWithGeneration(ctx context.Context, accountID string) (Record, error) {
	vals, err := s.redis.MGet(ctx, s.recordKey(accountID), s.generationKey(accountID)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return Record{}, ErrNotFound
	}

	blob, ok := vals[0].(string)
	if !ok {
		return Record{}, ErrCorrupt
	}
	rec, err := Decode([]byte(blob))
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	rec.AccountID = accountID

	if raw, ok := vals[1].(string); ok {
		var gen uint64
		if _, scanErr := fmt.Sscan(raw, &gen); scanErr == nil {
			rec.Generation = gen
		}
	}

	return rec, nil
}

// Delete removes the account's record. Deleting an absent record is not an
// error; the boolean reports whether one existed.
func (s *RedisStore) Delete(ctx context.Context, accountID string) (bool, error) {
	existed, err := deleteRecordLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(accountID), s.generationKey(accountID)},
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return existed == 1, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
