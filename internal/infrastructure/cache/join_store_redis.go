package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/meetprep/backend/internal/domain/meeting"
	"github.com/redis/go-redis/v9"
)

// DefaultJoinKeyPrefix namespaces join keys
const DefaultJoinKeyPrefix = "meetprep:join:"

// recordPart adds the part and sets the fired flag when the set became complete.
// KEYS[1] parts set, KEYS[2] fired flag; ARGV[1] part, ARGV[2] number of parts.
var recordPart = redis.NewScript(`
redis.call('SADD', KEYS[1], ARGV[1])
if redis.call('SCARD', KEYS[1]) >= tonumber(ARGV[2]) then
	if redis.call('SETNX', KEYS[2], '1') == 1 then
		return 1
	end
end
return 0
`)

// RedisJoinStore implements meeting.JoinStore on Redis sets.
// Record runs as a Lua script, so exactly one caller observes the join firing. The per-meeting
// keys share a hash tag to stay in one cluster slot.
type RedisJoinStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisJoinStore creates a join store on a shared Redis client
func NewRedisJoinStore(client redis.UniversalClient, prefix string) *RedisJoinStore {
	if prefix == "" {
		prefix = DefaultJoinKeyPrefix
	}
	return &RedisJoinStore{client: client, prefix: prefix}
}

func (s *RedisJoinStore) partsKey(meetingID string) string {
	return s.prefix + "m:{" + meetingID + "}:parts"
}

func (s *RedisJoinStore) firedKey(meetingID string) string {
	return s.prefix + "m:{" + meetingID + "}:fired"
}

func (s *RedisJoinStore) watchListKey(meetingID string) string {
	return s.prefix + "m:{" + meetingID + "}:watches"
}

func (s *RedisJoinStore) participantKey(email string) string {
	return s.prefix + "p:" + email
}

func (s *RedisJoinStore) domainKey(domain string) string {
	return s.prefix + "d:" + domain
}

// Watch registers the meeting as waiting on the participants and domains
func (s *RedisJoinStore) Watch(ctx context.Context, meetingID string, emails, domains []string) error {
	if len(emails) == 0 && len(domains) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range emails {
			key := s.participantKey(e)
			pipe.SAdd(ctx, key, meetingID)
			pipe.SAdd(ctx, s.watchListKey(meetingID), key)
		}
		for _, d := range domains {
			key := s.domainKey(d)
			pipe.SAdd(ctx, key, meetingID)
			pipe.SAdd(ctx, s.watchListKey(meetingID), key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch meeting %s: %w", meetingID, err)
	}
	return nil
}

// MeetingsForParticipant returns the meetings waiting on email
func (s *RedisJoinStore) MeetingsForParticipant(ctx context.Context, email string) ([]string, error) {
	return s.members(ctx, s.participantKey(email))
}

// MeetingsForDomain returns the meetings waiting on domain
func (s *RedisJoinStore) MeetingsForDomain(ctx context.Context, domain string) ([]string, error) {
	return s.members(ctx, s.domainKey(domain))
}

func (s *RedisJoinStore) members(ctx context.Context, key string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Record marks part present and reports whether this call completed the join
func (s *RedisJoinStore) Record(ctx context.Context, meetingID string, part meeting.JoinPart) (bool, error) {
	if !validPart(part) {
		return false, fmt.Errorf("unknown join part %q", part)
	}
	keys := []string{s.partsKey(meetingID), s.firedKey(meetingID)}
	fired, err := recordPart.Run(ctx, s.client, keys, string(part), len(meeting.JoinParts)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to record %s for meeting %s: %w", part, meetingID, err)
	}
	return fired == 1, nil
}

// Parts returns the parts recorded so far
func (s *RedisJoinStore) Parts(ctx context.Context, meetingID string) ([]meeting.JoinPart, error) {
	raw, err := s.members(ctx, s.partsKey(meetingID))
	if err != nil {
		return nil, err
	}
	parts := make([]meeting.JoinPart, len(raw))
	for i, p := range raw {
		parts[i] = meeting.JoinPart(p)
	}
	return parts, nil
}

// Reset forgets the join state and the watches of the meeting
func (s *RedisJoinStore) Reset(ctx context.Context, meetingID string) error {
	watched, err := s.client.SMembers(ctx, s.watchListKey(meetingID)).Result()
	if err != nil {
		return fmt.Errorf("failed to read watches of meeting %s: %w", meetingID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range watched {
			if strings.HasPrefix(key, s.prefix) {
				pipe.SRem(ctx, key, meetingID)
			}
		}
		pipe.Del(ctx, s.partsKey(meetingID), s.firedKey(meetingID), s.watchListKey(meetingID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset meeting %s: %w", meetingID, err)
	}
	return nil
}

var _ meeting.JoinStore = (*RedisJoinStore)(nil)
