package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// createSessionScript writes the session hash, its TTL and the subject index
// in one step. The index TTL only ever grows so it outlives every member.
const createSessionScript = `
redis.call("HSET", KEYS[1], "id", ARGV[1], "subject_id", ARGV[2], "created_at", ARGV[3], "updated_at", ARGV[3], "expires_at", ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
redis.call("SADD", KEYS[2], ARGV[6])
local current = redis.call("PTTL", KEYS[2])
if current < tonumber(ARGV[5]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[5])
end
return 1
`

var createSessionLua = redis.NewScript(createSessionScript)

// touchSessionScript updates updated_at only when the session still exists;
// HSET keeps the key TTL.
const touchSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "updated_at", ARGV[1])
return 1
`

var touchSessionLua = redis.NewScript(touchSessionScript)

const deleteSessionScript = `
local subject = redis.call("HGET", KEYS[1], "subject_id")
if not subject then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[1] .. subject, ARGV[2])
return 1
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// deleteSubjectScript drops every indexed session and the index itself. A
// session created concurrently is either deleted here or indexed after the
// script runs, never orphaned.
const deleteSubjectScript = `
local hashes = redis.call("SMEMBERS", KEYS[1])
for _, hash in ipairs(hashes) do
  redis.call("DEL", ARGV[1] .. hash)
end
redis.call("DEL", KEYS[1])
return #hashes
`

var deleteSubjectLua = redis.NewScript(deleteSubjectScript)

// RedisStore keeps each session in a hash at "<prefix>:s:<token hash>" and
// the subject index in a set at "<prefix>:u:<subject id>".
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a [RedisStore]. now may be nil, in which case
// time.Now is used.
func NewRedisStore(client redis.UniversalClient, prefix string, now func() time.Time) *RedisStore {
	if prefix == "" {
		prefix = "ta"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		now:    now,
	}
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + ":s:" + tokenHash
}

func (s *RedisStore) userPrefix() string {
	return s.prefix + ":u:"
}

func (s *RedisStore) userKey(subjectID string) string {
	return s.userPrefix() + subjectID
}

// Create persists a new session with a TTL matching expiresAt.
//
//	Performance: 1 Lua script (HSET + PEXPIRE + SADD).
func (s *RedisStore) Create(ctx context.Context, subjectID, refreshToken string, expiresAt time.Time) (*Session, error) {
	now := s.now()
	sess, err := newSession(subjectID, refreshToken, now, expiresAt)
	if err != nil {
		return nil, err
	}

	ttl := expiresAt.Sub(now).Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	err = createSessionLua.Run(ctx, s.redis,
		[]string{s.key(sess.TokenHash), s.userKey(subjectID)},
		sess.ID,
		subjectID,
		now.UnixMilli(),
		expiresAt.UnixMilli(),
		ttl,
		sess.TokenHash,
	).Err()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return sess, nil
}

// Find returns the session for refreshToken.
//
//	Performance: 1 Redis HGETALL.
func (s *RedisStore) Find(ctx context.Context, refreshToken string) (*Session, error) {
	hash := HashToken(refreshToken)
	fields, err := s.redis.HGetAll(ctx, s.key(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	sess, err := decodeFields(hash, fields)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return sess, nil
}

// ListBySubject returns live sessions of subjectID, oldest first. Index
// members whose session has already expired are pruned.
func (s *RedisStore) ListBySubject(ctx context.Context, subjectID string) ([]*Session, error) {
	userKey := s.userKey(subjectID)
	hashes, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(hashes) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(hashes))
	for i, hash := range hashes {
		cmds[i] = pipe.HGetAll(ctx, s.key(hash))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := s.now()
	sessions := make([]*Session, 0, len(hashes))
	stale := make([]interface{}, 0)
	for i, cmd := range cmds {
		fields, cmdErr := cmd.Result()
		if cmdErr != nil && !errors.Is(cmdErr, redis.Nil) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
		}
		if len(fields) == 0 {
			stale = append(stale, hashes[i])
			continue
		}
		sess, decErr := decodeFields(hashes[i], fields)
		if decErr != nil {
			return nil, decErr
		}
		if sess.Expired(now) {
			continue
		}
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// Touch records at as the session's last use.
func (s *RedisStore) Touch(ctx context.Context, refreshToken string, at time.Time) error {
	updated, err := touchSessionLua.Run(ctx, s.redis, []string{s.key(HashToken(refreshToken))}, at.UnixMilli()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if updated == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the session and its index entry atomically.
//
//	Performance: 1 Lua script (HGET + DEL + SREM).
func (s *RedisStore) Delete(ctx context.Context, refreshToken string) error {
	hash := HashToken(refreshToken)
	if err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(hash)}, s.userPrefix(), hash).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteAllForSubject removes every session of subjectID and its index in
// one atomic step.
//
//	Performance: 1 Lua script (SMEMBERS + DEL per session + DEL index).
func (s *RedisStore) DeleteAllForSubject(ctx context.Context, subjectID string) error {
	err := deleteSubjectLua.Run(ctx, s.redis, []string{s.userKey(subjectID)}, s.prefix+":s:").Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Ping checks Redis availability.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func decodeFields(hash string, fields map[string]string) (*Session, error) {
	createdAt, err := parseMillis(fields["created_at"])
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseMillis(fields["updated_at"])
	if err != nil {
		return nil, err
	}
	expiresAt, err := parseMillis(fields["expires_at"])
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        fields["id"],
		TokenHash: hash,
		SubjectID: fields["subject_id"],
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		ExpiresAt: expiresAt,
	}, nil
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("session: corrupt timestamp %q", v)
	}
	return time.UnixMilli(ms), nil
}
