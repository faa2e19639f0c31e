package event

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStreamConfig configures the Redis Streams transport
type RedisStreamConfig struct {
	// Namespace prefixes every key, e.g. "meetprep"
	Namespace string
	// Partitions is the number of streams
	Partitions int
	// Block is how long one XREAD waits for new entries
	Block time.Duration
	// LeaseTTL is how long a partition lease lives without renewal
	LeaseTTL time.Duration
	// BatchSize is the XREAD COUNT
	BatchSize int64
}

// DefaultRedisStreamConfig returns sensible defaults
func DefaultRedisStreamConfig() RedisStreamConfig {
	return RedisStreamConfig{
		Namespace:  "meetprep",
		Partitions: DefaultPartitions,
		Block:      2 * time.Second,
		LeaseTTL:   15 * time.Second,
		BatchSize:  64,
	}
}

// RedisStreamTransport runs the bus on Redis Streams: one stream per partition. Group
// members heartbeat into a sorted set, derive the round-robin assignment from the live
// members and hold each owned partition through a lease key (SET NX PX), so a partition is
// read by one member at a time. Group positions are mirrored in a hash for compaction.
type RedisStreamTransport struct {
	client redis.UniversalClient
	cfg    RedisStreamConfig
	logger *zap.Logger

	mu      sync.Mutex
	cursors map[groupPartition]string
}

// NewRedisStreamTransport creates a Redis Streams transport
func NewRedisStreamTransport(client redis.UniversalClient, cfg RedisStreamConfig, logger *zap.Logger) *RedisStreamTransport {
	def := DefaultRedisStreamConfig()
	if cfg.Namespace == "" {
		cfg.Namespace = def.Namespace
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = def.Partitions
	}
	if cfg.Block <= 0 {
		cfg.Block = def.Block
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = def.LeaseTTL
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	return &RedisStreamTransport{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		cursors: make(map[groupPartition]string),
	}
}

// Partitions returns the partition count
func (t *RedisStreamTransport) Partitions() int {
	return t.cfg.Partitions
}

func (t *RedisStreamTransport) streamKey(partition int) string {
	return fmt.Sprintf("%s:bus:p:%d", t.cfg.Namespace, partition)
}

func (t *RedisStreamTransport) membersKey(group string) string {
	return fmt.Sprintf("%s:bus:g:%s:members", t.cfg.Namespace, group)
}

func (t *RedisStreamTransport) leaseKey(group string, partition int) string {
	return fmt.Sprintf("%s:bus:g:%s:lease:%d", t.cfg.Namespace, group, partition)
}

func (t *RedisStreamTransport) positionsKey(group string) string {
	return fmt.Sprintf("%s:bus:g:%s:pos", t.cfg.Namespace, group)
}

func (t *RedisStreamTransport) groupsKey() string {
	return t.cfg.Namespace + ":bus:groups"
}

// Send appends every message in one MULTI/EXEC transaction
func (t *RedisStreamTransport) Send(ctx context.Context, msgs ...shared.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range msgs {
			if m.Partition < 0 || m.Partition >= t.cfg.Partitions {
				return fmt.Errorf("partition %d out of range [0,%d)", m.Partition, t.cfg.Partitions)
			}
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: t.streamKey(m.Partition),
				Values: map[string]any{
					"topic": string(m.Topic),
					"key":   m.Key,
					"body":  m.Body,
				},
			})
		}
		return nil
	})
	if err != nil {
		return &shared.TransportError{Op: "send", Err: err}
	}
	return nil
}

var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var renewLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Consume delivers the member's partitions until ctx is cancelled
func (t *RedisStreamTransport) Consume(ctx context.Context, req shared.ConsumeRequest, fn shared.DeliveryFunc) error {
	if err := t.client.SAdd(ctx, t.groupsKey(), req.Group).Err(); err != nil {
		return &shared.TransportError{Op: "join", Err: err}
	}
	held := make(map[int]bool)
	defer t.leave(req, held)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		owned, err := t.rebalance(ctx, req, held)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Warn("rebalance failed", zap.String("group", req.Group), zap.Error(err))
			if !sleepCtx(ctx, t.cfg.Block) {
				return ctx.Err()
			}
			continue
		}
		if len(owned) == 0 {
			if !sleepCtx(ctx, t.cfg.Block) {
				return ctx.Err()
			}
			continue
		}
		lost, err := t.readOnce(ctx, req, owned, fn)
		for p := range lost {
			delete(held, p)
			t.forget(req.Group, p)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// heartbeat records the member as alive in the group
func (t *RedisStreamTransport) heartbeat(ctx context.Context, req shared.ConsumeRequest) error {
	return t.client.ZAdd(ctx, t.membersKey(req.Group), redis.Z{Score: float64(time.Now().UnixMilli()), Member: req.Member}).Err()
}

// owns renews the lease of partition and reports whether the member still holds it
func (t *RedisStreamTransport) owns(ctx context.Context, req shared.ConsumeRequest, partition int) bool {
	renewed, err := renewLease.Run(ctx, t.client, []string{t.leaseKey(req.Group, partition)}, req.Member, t.cfg.LeaseTTL.Milliseconds()).Int64()
	if err != nil {
		t.logger.Warn("failed to renew lease", zap.String("group", req.Group), zap.Int("partition", partition), zap.Error(err))
		return false
	}
	return renewed == 1
}

// lostPartitions collects partitions whose lease lapsed while a batch was in flight
type lostPartitions struct {
	mu sync.Mutex
	m  map[int]bool
}

func (l *lostPartitions) mark(p int) {
	l.mu.Lock()
	l.m[p] = true
	l.mu.Unlock()
}

func (l *lostPartitions) has(p int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m[p]
}

func (l *lostPartitions) snapshot() map[int]bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[int]bool, len(l.m))
	for p := range l.m {
		out[p] = true
	}
	return out
}

// keepAlive heartbeats the member and renews the owned leases every third of the lease TTL
// until the returned stop function is called. A lease that cannot be renewed is marked lost.
func (t *RedisStreamTransport) keepAlive(ctx context.Context, req shared.ConsumeRequest, owned []int, lost *lostPartitions) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(t.cfg.LeaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := t.heartbeat(ctx, req); err != nil && ctx.Err() == nil {
				t.logger.Warn("heartbeat failed", zap.String("group", req.Group), zap.Error(err))
			}
			for _, p := range owned {
				if lost.has(p) {
					continue
				}
				if !t.owns(ctx, req, p) && ctx.Err() == nil {
					lost.mark(p)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// rebalance heartbeats the member, computes its assignment and acquires or renews leases.
// It returns the partitions the member may read now.
func (t *RedisStreamTransport) rebalance(ctx context.Context, req shared.ConsumeRequest, held map[int]bool) ([]int, error) {
	now := time.Now()
	membersKey := t.membersKey(req.Group)
	if err := t.heartbeat(ctx, req); err != nil {
		return nil, err
	}
	cutoff := now.Add(-t.cfg.LeaseTTL).UnixMilli()
	if err := t.client.ZRemRangeByScore(ctx, membersKey, "-inf", "("+strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return nil, err
	}
	members, err := t.client.ZRange(ctx, membersKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	idx := sort.SearchStrings(members, req.Member)
	if idx >= len(members) || members[idx] != req.Member {
		return nil, nil
	}

	assigned := make(map[int]bool)
	for p := 0; p < t.cfg.Partitions; p++ {
		if p%len(members) == idx {
			assigned[p] = true
		}
	}

	ttl := t.cfg.LeaseTTL.Milliseconds()
	for p := range held {
		if !assigned[p] {
			if err := releaseLease.Run(ctx, t.client, []string{t.leaseKey(req.Group, p)}, req.Member).Err(); err != nil {
				return nil, err
			}
			delete(held, p)
			t.forget(req.Group, p)
		}
	}

	var owned []int
	for p := 0; p < t.cfg.Partitions; p++ {
		if !assigned[p] {
			continue
		}
		key := t.leaseKey(req.Group, p)
		if held[p] {
			renewed, err := renewLease.Run(ctx, t.client, []string{key}, req.Member, ttl).Int64()
			if err != nil {
				return nil, err
			}
			if renewed == 1 {
				owned = append(owned, p)
				continue
			}
			delete(held, p)
			t.forget(req.Group, p)
		}
		ok, err := t.client.SetNX(ctx, key, req.Member, t.cfg.LeaseTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			held[p] = true
			owned = append(owned, p)
		}
	}
	return owned, nil
}

// readOnce reads one batch of the owned partitions and delivers it. Leases are kept alive
// while the batch runs and ownership is rechecked before every delivery; the partitions
// lost on the way are returned and their remaining entries are left for the next owner.
func (t *RedisStreamTransport) readOnce(ctx context.Context, req shared.ConsumeRequest, owned []int, fn shared.DeliveryFunc) (map[int]bool, error) {
	streams := make([]string, 0, 2*len(owned))
	ids := make([]string, 0, len(owned))
	byKey := make(map[string]int, len(owned))
	for _, p := range owned {
		cursor, err := t.cursor(ctx, req, p)
		if err != nil {
			return nil, err
		}
		key := t.streamKey(p)
		streams = append(streams, key)
		ids = append(ids, cursor)
		byKey[key] = p
	}
	streams = append(streams, ids...)

	lost := &lostPartitions{m: make(map[int]bool)}
	stop := t.keepAlive(ctx, req, owned, lost)
	defer stop()

	res, err := t.client.XRead(ctx, &redis.XReadArgs{
		Streams: streams,
		Count:   t.cfg.BatchSize,
		Block:   t.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return lost.snapshot(), nil
	}
	if err != nil {
		return lost.snapshot(), &shared.TransportError{Op: "read", Err: err}
	}

	for _, stream := range res {
		p := byKey[stream.Stream]
		for _, msg := range stream.Messages {
			if ctx.Err() != nil {
				return lost.snapshot(), nil
			}
			if lost.has(p) || !t.owns(ctx, req, p) {
				lost.mark(p)
				t.logger.Warn("partition lease lost mid-batch",
					zap.String("group", req.Group), zap.String("member", req.Member), zap.Int("partition", p))
				break
			}
			fn(ctx, shared.Delivery{
				Partition: p,
				Offset:    msg.ID,
				Message:   decodeStreamMessage(p, msg),
			})
			t.advance(ctx, req.Group, p, msg.ID)
		}
	}
	return lost.snapshot(), nil
}

func decodeStreamMessage(partition int, msg redis.XMessage) shared.Message {
	m := shared.Message{Partition: partition}
	if v, ok := msg.Values["topic"].(string); ok {
		m.Topic = topic.Topic(v)
	}
	if v, ok := msg.Values["key"].(string); ok {
		m.Key = v
	}
	if v, ok := msg.Values["body"].(string); ok {
		m.Body = []byte(v)
	}
	return m
}

func (t *RedisStreamTransport) cursor(ctx context.Context, req shared.ConsumeRequest, partition int) (string, error) {
	key := groupPartition{req.Group, partition}
	t.mu.Lock()
	c, ok := t.cursors[key]
	t.mu.Unlock()
	if ok {
		return c, nil
	}
	c = "0"
	if req.Cursor != nil {
		raw, err := req.Cursor(ctx, partition)
		if err != nil {
			return "", &shared.TransportError{Op: "load cursor", Err: err}
		}
		if raw != "" {
			c = raw
		}
	}
	t.mu.Lock()
	t.cursors[key] = c
	t.mu.Unlock()
	return c, nil
}

func (t *RedisStreamTransport) advance(ctx context.Context, group string, partition int, id string) {
	t.mu.Lock()
	t.cursors[groupPartition{group, partition}] = id
	t.mu.Unlock()
	if err := t.client.HSet(ctx, t.positionsKey(group), strconv.Itoa(partition), id).Err(); err != nil {
		t.logger.Debug("failed to mirror group position", zap.String("group", group), zap.Error(err))
	}
}

func (t *RedisStreamTransport) leave(req shared.ConsumeRequest, held map[int]bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for p := range held {
		if err := releaseLease.Run(ctx, t.client, []string{t.leaseKey(req.Group, p)}, req.Member).Err(); err != nil {
			t.logger.Warn("failed to release lease", zap.Int("partition", p), zap.Error(err))
		}
	}
	if err := t.client.ZRem(ctx, t.membersKey(req.Group), req.Member).Err(); err != nil {
		t.logger.Warn("failed to leave group", zap.String("group", req.Group), zap.Error(err))
	}
	for p := range held {
		t.forget(req.Group, p)
	}
}

// forget drops the cached cursor so the next owner resumes from the checkpoint store
func (t *RedisStreamTransport) forget(group string, partition int) {
	t.mu.Lock()
	delete(t.cursors, groupPartition{group, partition})
	t.mu.Unlock()
}

// Compact trims every stream up to the oldest position among known groups
func (t *RedisStreamTransport) Compact(ctx context.Context) (int64, error) {
	groups, err := t.client.SMembers(ctx, t.groupsKey()).Result()
	if err != nil {
		return 0, &shared.TransportError{Op: "compact", Err: err}
	}
	if len(groups) == 0 {
		return 0, nil
	}
	positions := make([]map[string]string, 0, len(groups))
	for _, g := range groups {
		pos, err := t.client.HGetAll(ctx, t.positionsKey(g)).Result()
		if err != nil {
			return 0, &shared.TransportError{Op: "compact", Err: err}
		}
		positions = append(positions, pos)
	}

	var trimmed int64
	for p := 0; p < t.cfg.Partitions; p++ {
		floor := ""
		for _, pos := range positions {
			id, ok := pos[strconv.Itoa(p)]
			if !ok {
				floor = ""
				break
			}
			if floor == "" || streamIDLess(id, floor) {
				floor = id
			}
		}
		if floor == "" {
			continue
		}
		n, err := t.client.XTrimMinID(ctx, t.streamKey(p), nextStreamID(floor)).Result()
		if err != nil {
			return trimmed, &shared.TransportError{Op: "compact", Err: err}
		}
		trimmed += n
	}
	return trimmed, nil
}

// streamIDLess compares two stream ids of the form ms-seq
func streamIDLess(a, b string) bool {
	am, as := splitStreamID(a)
	bm, bs := splitStreamID(b)
	if am != bm {
		return am < bm
	}
	return as < bs
}

func splitStreamID(id string) (uint64, uint64) {
	msPart, seqPart, _ := strings.Cut(id, "-")
	ms, _ := strconv.ParseUint(msPart, 10, 64)
	seq, _ := strconv.ParseUint(seqPart, 10, 64)
	return ms, seq
}

// nextStreamID returns the smallest id greater than id, so MINID keeps only unread entries
func nextStreamID(id string) string {
	ms, seq := splitStreamID(id)
	return fmt.Sprintf("%d-%d", ms, seq+1)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var (
	_ shared.Transport = (*RedisStreamTransport)(nil)
	_ shared.Compactor = (*RedisStreamTransport)(nil)
)
