package event

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
)

// DefaultPartitions is the partition count used when none is configured
const DefaultPartitions = 8

type memRecord struct {
	offset int64
	msg    shared.Message
}

type memPartition struct {
	records []memRecord
	next    int64
}

type groupPartition struct {
	group     string
	partition int
}

type memGroup struct {
	members []string
}

// MemoryTransport is an in-process partitioned log. Members of a group share partitions
// round-robin; a per-(group, partition) lock guarantees a partition is consumed by one member
// at a time even while assignments move.
type MemoryTransport struct {
	mu         sync.Mutex
	partitions []*memPartition
	groups     map[string]*memGroup
	cursors    map[groupPartition]int64
	locks      map[groupPartition]*sync.Mutex
	wake       chan struct{}
	batchSize  int
	poll       time.Duration
}

// MemoryTransportOption is a functional option for MemoryTransport
type MemoryTransportOption func(*MemoryTransport)

// WithMemoryBatchSize caps the records delivered per partition visit
func WithMemoryBatchSize(n int) MemoryTransportOption {
	return func(t *MemoryTransport) {
		if n > 0 {
			t.batchSize = n
		}
	}
}

// NewMemoryTransport creates an in-memory transport with n partitions
func NewMemoryTransport(n int, opts ...MemoryTransportOption) *MemoryTransport {
	if n <= 0 {
		n = DefaultPartitions
	}
	t := &MemoryTransport{
		partitions: make([]*memPartition, n),
		groups:     make(map[string]*memGroup),
		cursors:    make(map[groupPartition]int64),
		locks:      make(map[groupPartition]*sync.Mutex),
		wake:       make(chan struct{}),
		batchSize:  64,
		poll:       50 * time.Millisecond,
	}
	for i := range t.partitions {
		t.partitions[i] = &memPartition{}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Partitions returns the partition count
func (t *MemoryTransport) Partitions() int {
	return len(t.partitions)
}

// Send appends the messages atomically: either all are appended or none
func (t *MemoryTransport) Send(ctx context.Context, msgs ...shared.Message) error {
	if err := ctx.Err(); err != nil {
		return &shared.TransportError{Op: "send", Err: err}
	}
	for _, m := range msgs {
		if m.Partition < 0 || m.Partition >= len(t.partitions) {
			return &shared.TransportError{Op: "send", Err: fmt.Errorf("partition %d out of range [0,%d)", m.Partition, len(t.partitions))}
		}
	}

	t.mu.Lock()
	for _, m := range msgs {
		p := t.partitions[m.Partition]
		p.records = append(p.records, memRecord{offset: p.next, msg: m})
		p.next++
	}
	close(t.wake)
	t.wake = make(chan struct{})
	t.mu.Unlock()
	return nil
}

// Consume delivers the member's partitions until ctx is cancelled
func (t *MemoryTransport) Consume(ctx context.Context, req shared.ConsumeRequest, fn shared.DeliveryFunc) error {
	t.join(req.Group, req.Member)
	defer t.leave(req.Group, req.Member)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.mu.Lock()
		wake := t.wake
		t.mu.Unlock()

		progressed := false
		for _, p := range t.assigned(req.Group, req.Member) {
			n, err := t.consumePartition(ctx, req, p, fn)
			if err != nil {
				return err
			}
			progressed = progressed || n > 0
		}
		if progressed {
			continue
		}

		timer := time.NewTimer(t.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (t *MemoryTransport) consumePartition(ctx context.Context, req shared.ConsumeRequest, partition int, fn shared.DeliveryFunc) (int, error) {
	lock := t.partitionLock(req.Group, partition)
	if !lock.TryLock() {
		return 0, nil
	}
	defer lock.Unlock()

	cursor, err := t.cursor(ctx, req, partition)
	if err != nil {
		return 0, err
	}

	batch := t.readAfter(partition, cursor)
	for i, rec := range batch {
		if ctx.Err() != nil {
			return i, nil
		}
		fn(ctx, shared.Delivery{
			Partition: partition,
			Offset:    strconv.FormatInt(rec.offset, 10),
			Message:   rec.msg,
		})
		t.mu.Lock()
		t.cursors[groupPartition{req.Group, partition}] = rec.offset
		t.mu.Unlock()
	}
	return len(batch), nil
}

// cursor returns the last processed offset, loading it from the checkpoint store on first use
func (t *MemoryTransport) cursor(ctx context.Context, req shared.ConsumeRequest, partition int) (int64, error) {
	key := groupPartition{req.Group, partition}
	t.mu.Lock()
	c, ok := t.cursors[key]
	t.mu.Unlock()
	if ok {
		return c, nil
	}

	c = -1
	if req.Cursor != nil {
		raw, err := req.Cursor(ctx, partition)
		if err != nil {
			return 0, &shared.TransportError{Op: "load cursor", Err: err}
		}
		if raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return 0, &shared.TransportError{Op: "load cursor", Err: fmt.Errorf("invalid offset %q: %w", raw, err)}
			}
			c = parsed
		}
	}
	t.mu.Lock()
	t.cursors[key] = c
	t.mu.Unlock()
	return c, nil
}

func (t *MemoryTransport) readAfter(partition int, cursor int64) []memRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.partitions[partition]
	idx := sort.Search(len(p.records), func(i int) bool { return p.records[i].offset > cursor })
	end := idx + t.batchSize
	if end > len(p.records) {
		end = len(p.records)
	}
	out := make([]memRecord, end-idx)
	copy(out, p.records[idx:end])
	return out
}

func (t *MemoryTransport) partitionLock(group string, partition int) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := groupPartition{group, partition}
	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	return l
}

func (t *MemoryTransport) join(group, member string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.groups[group]
	if !ok {
		g = &memGroup{}
		t.groups[group] = g
	}
	g.members = append(g.members, member)
}

func (t *MemoryTransport) leave(group, member string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.groups[group]
	if !ok {
		return
	}
	for i, m := range g.members {
		if m == member {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}
}

// assigned returns the partitions owned by member: partition p belongs to the member at
// index p mod len(members)
func (t *MemoryTransport) assigned(group, member string) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.groups[group]
	if !ok || len(g.members) == 0 {
		return nil
	}
	idx := -1
	for i, m := range g.members {
		if m == member {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	var out []int
	for p := range t.partitions {
		if p%len(g.members) == idx {
			out = append(out, p)
		}
	}
	return out
}

// Compact drops records every known group has processed and returns how many were dropped.
// Partitions a group never read are left untouched.
func (t *MemoryTransport) Compact(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	groups := make(map[string]struct{})
	for key := range t.cursors {
		groups[key.group] = struct{}{}
	}
	if len(groups) == 0 {
		return 0, nil
	}

	var dropped int64
	for i, p := range t.partitions {
		floor := int64(-1)
		first := true
		for g := range groups {
			c, ok := t.cursors[groupPartition{g, i}]
			if !ok {
				floor = -1
				break
			}
			if first || c < floor {
				floor, first = c, false
			}
		}
		if floor < 0 {
			continue
		}
		idx := sort.Search(len(p.records), func(j int) bool { return p.records[j].offset > floor })
		dropped += int64(idx)
		p.records = append([]memRecord(nil), p.records[idx:]...)
	}
	return dropped, nil
}

// Len returns the number of retained records across partitions
func (t *MemoryTransport) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, p := range t.partitions {
		n += len(p.records)
	}
	return n
}

var (
	_ shared.Transport = (*MemoryTransport)(nil)
	_ shared.Compactor = (*MemoryTransport)(nil)
)
