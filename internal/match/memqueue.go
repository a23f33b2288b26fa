package match

import (
	"context"
	"sort"
	"sync"
)

// MemoryQueue is the in-process Queue used when Redis is not configured.
// Single-instance deployments lose nothing; the zset semantics are the
// same.
type MemoryQueue struct {
	mu      sync.Mutex
	buckets map[string]map[string]float64
}

// NewMemoryQueue builds an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{buckets: make(map[string]map[string]float64)}
}

// QueueAdd inserts or rescores a member.
func (q *MemoryQueue) QueueAdd(_ context.Context, bucket, member string, score float64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	b, ok := q.buckets[bucket]
	if !ok {
		b = make(map[string]float64)
		q.buckets[bucket] = b
	}
	b[member] = score
	return nil
}

// QueueRemove deletes a member, reporting whether it was present.
func (q *MemoryQueue) QueueRemove(_ context.Context, bucket, member string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	b, ok := q.buckets[bucket]
	if !ok {
		return false, nil
	}
	if _, present := b[member]; !present {
		return false, nil
	}
	delete(b, member)
	return true, nil
}

// QueueLen counts members in a bucket.
func (q *MemoryQueue) QueueLen(_ context.Context, bucket string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.buckets[bucket])), nil
}

// QueueRange returns members scored within [min, max], lowest first.
func (q *MemoryQueue) QueueRange(_ context.Context, bucket string, min, max float64) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	type scored struct {
		member string
		score  float64
	}
	var out []scored
	for member, score := range q.buckets[bucket] {
		if score >= min && score <= max {
			out = append(out, scored{member, score})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].score < out[j].score })
	members := make([]string, len(out))
	for i, s := range out {
		members[i] = s.member
	}
	return members, nil
}
