package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "ls"

const (
	markUsedStatusNotFound    int64 = 0
	markUsedStatusAlreadyUsed int64 = 1
	markUsedStatusTransition  int64 = 2
)

const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "sub", ARGV[1],
  "fam", ARGV[2],
  "used", ARGV[3],
  "rev", ARGV[4],
  "cat", ARGV[5],
  "exp", ARGV[6])
redis.call("PEXPIRE", KEYS[1], ARGV[7])
redis.call("SADD", KEYS[2], ARGV[8])
redis.call("SADD", KEYS[3], ARGV[8])
return 1
`

var createLua = redis.NewScript(createScript)

const markUsedScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "used") == "1" then
  return 1
end
redis.call("HSET", KEYS[1], "used", "1")
return 2
`

var markUsedLua = redis.NewScript(markUsedScript)

const revokeSetScript = `
local members = redis.call("SMEMBERS", KEYS[1])
local n = 0
for _, m in ipairs(members) do
  local key = ARGV[1] .. m
  if redis.call("EXISTS", key) == 1 then
    redis.call("HSET", key, "rev", "1")
    n = n + 1
  else
    redis.call("SREM", KEYS[1], m)
  end
end
return n
`

var revokeSetLua = redis.NewScript(revokeSetScript)

// RedisStore is a Redis-backed [Store]. Each record lives in a hash keyed by
// the hex token digest with a TTL equal to the record expiry; SET indexes per
// family and per subject drive the bulk revocations. MarkUsed and Create run
// as Lua scripts, so their check-and-write is a single atomic step.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a [RedisStore] on the given client. prefix namespaces
// all keys; an empty prefix falls back to "ls".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) recordKey(member string) string {
	return s.prefix + ":t:" + member
}

func (s *RedisStore) familyKey(familyID string) string {
	return s.prefix + ":f:" + familyID
}

func (s *RedisStore) subjectKey(subjectID string) string {
	return s.prefix + ":u:" + subjectID
}

func hashMember(hash [32]byte) string {
	return hex.EncodeToString(hash[:])
}

// Create inserts rec and registers it in the family and subject indexes.
//
//	Performance: 1 Lua EVALSHA.
func (s *RedisStore) Create(ctx context.Context, rec Record) error {
	px := time.Until(rec.ExpiresAt).Milliseconds()
	if px < 1 {
		px = 1
	}

	member := hashMember(rec.TokenHash)
	status, err := createLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(member), s.familyKey(rec.FamilyID), s.subjectKey(rec.SubjectID)},
		rec.SubjectID,
		rec.FamilyID,
		boolField(rec.Used),
		boolField(rec.Revoked),
		rec.CreatedAt.Unix(),
		rec.ExpiresAt.Unix(),
		px,
		member,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if status == 0 {
		return ErrConflict
	}
	return nil
}

// FindByHash returns the record stored under hash, or [ErrNotFound].
//
//	Performance: 1 Redis HGETALL.
func (s *RedisStore) FindByHash(ctx context.Context, hash [32]byte) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(hashMember(hash))).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeRecord(hash, fields)
}

// MarkUsed flips used=false→true as a single Lua compare-and-set and reports
// whether this call performed the transition.
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-set).
func (s *RedisStore) MarkUsed(ctx context.Context, hash [32]byte) (bool, error) {
	status, err := markUsedLua.Run(ctx, s.redis, []string{s.recordKey(hashMember(hash))}).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch status {
	case markUsedStatusNotFound:
		return false, ErrNotFound
	case markUsedStatusAlreadyUsed:
		return false, nil
	case markUsedStatusTransition:
		return true, nil
	default:
		return false, fmt.Errorf("%w: unexpected mark-used status %d", ErrUnavailable, status)
	}
}

// RevokeFamily marks every live record in the family revoked, pruning index
// members whose record key already expired.
func (s *RedisStore) RevokeFamily(ctx context.Context, familyID string) error {
	return s.revokeSet(ctx, s.familyKey(familyID))
}

// RevokeSubject marks every live record owned by the subject revoked.
func (s *RedisStore) RevokeSubject(ctx context.Context, subjectID string) error {
	return s.revokeSet(ctx, s.subjectKey(subjectID))
}

func (s *RedisStore) revokeSet(ctx context.Context, setKey string) error {
	if err := revokeSetLua.Run(ctx, s.redis, []string{setKey}, s.prefix+":t:").Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// PurgeExpired prunes index members whose record key has expired. Record
// bodies are deleted by Redis key TTLs; this sweep keeps the family and
// subject indexes from accumulating dead members. Returns how many stale
// index entries were removed from family sets.
//
// This is an O(n) scan over index keys and must not run in request hot paths.
func (s *RedisStore) PurgeExpired(ctx context.Context, _ time.Time) (int64, error) {
	pruned, err := s.pruneIndexes(ctx, s.prefix+":f:*", true)
	if err != nil {
		return pruned, err
	}
	if _, err := s.pruneIndexes(ctx, s.prefix+":u:*", false); err != nil {
		return pruned, err
	}
	return pruned, nil
}

func (s *RedisStore) pruneIndexes(ctx context.Context, pattern string, count bool) (int64, error) {
	var (
		cursor uint64
		total  int64
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		for _, setKey := range keys {
			members, err := s.redis.SMembers(ctx, setKey).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return total, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}

			stale := make([]interface{}, 0, len(members))
			for _, member := range members {
				exists, err := s.redis.Exists(ctx, s.recordKey(member)).Result()
				if err != nil {
					return total, fmt.Errorf("%w: %v", ErrUnavailable, err)
				}
				if exists == 0 {
					stale = append(stale, member)
				}
			}
			if len(stale) == 0 {
				continue
			}
			if err := s.redis.SRem(ctx, setKey, stale...).Err(); err != nil {
				return total, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			if count {
				total += int64(len(stale))
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return total, nil
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func decodeRecord(hash [32]byte, fields map[string]string) (*Record, error) {
	createdAt, err := strconv.ParseInt(fields["cat"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt record created_at", ErrUnavailable)
	}
	expiresAt, err := strconv.ParseInt(fields["exp"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt record expires_at", ErrUnavailable)
	}

	return &Record{
		TokenHash: hash,
		SubjectID: fields["sub"],
		FamilyID:  fields["fam"],
		Used:      fields["used"] == "1",
		Revoked:   fields["rev"] == "1",
		CreatedAt: time.Unix(createdAt, 0),
		ExpiresAt: time.Unix(expiresAt, 0),
	}, nil
}
