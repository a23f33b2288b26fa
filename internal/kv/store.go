package kv

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key patterns. Everything the server writes lives under one of these.
func roomKey(roomID string) string { return "room:" + roomID + ":snapshot" }

func sessionKey(sessionID string) string { return "session:" + sessionID }

func queueKey(bucket string) string { return "queue:" + bucket }

func jobsKey(difficulty string) string { return "botjobs:" + difficulty }

func replyKey(jobID string) string { return "botreply:" + jobID }

func rateKey(sessionID, kind string) string { return "rl:" + sessionID + ":" + kind }

// RoomSnapshotTTL bounds how long a dead server's snapshots linger.
const RoomSnapshotTTL = time.Hour

// SaveRoom stores a room snapshot.
func (c *Client) SaveRoom(ctx context.Context, roomID string, data []byte) error {
	return c.rdb.Set(ctx, roomKey(roomID), data, RoomSnapshotTTL).Err()
}

// LoadRoom retrieves a room snapshot; nil means none stored.
func (c *Client) LoadRoom(ctx context.Context, roomID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, roomKey(roomID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// DeleteRoom removes a room snapshot.
func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	return c.rdb.Del(ctx, roomKey(roomID)).Err()
}

// SaveSession stores a session record with its TTL.
func (c *Client) SaveSession(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, sessionKey(sessionID), data, ttl).Err()
}

// LoadSession retrieves a session record; nil means unknown or expired.
func (c *Client) LoadSession(ctx context.Context, sessionID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// TouchSession extends a live session's TTL.
func (c *Client) TouchSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, sessionKey(sessionID), ttl).Err()
}

// DeleteSession removes a session record.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, sessionKey(sessionID)).Err()
}

// QueueAdd places a member in a matchmaking bucket scored by rating.
func (c *Client) QueueAdd(ctx context.Context, bucket, member string, score float64) error {
	return c.rdb.ZAdd(ctx, queueKey(bucket), redis.Z{Score: score, Member: member}).Err()
}

// QueueRemove pulls a member out of a bucket. It reports whether the
// member was actually queued, which makes the remove double as a claim.
func (c *Client) QueueRemove(ctx context.Context, bucket, member string) (bool, error) {
	n, err := c.rdb.ZRem(ctx, queueKey(bucket), member).Result()
	return n > 0, err
}

// QueueRange returns members whose score falls within [min, max],
// closest-scored first is not guaranteed; callers sort if they care.
func (c *Client) QueueRange(ctx context.Context, bucket string, min, max float64) ([]string, error) {
	return c.rdb.ZRangeByScore(ctx, queueKey(bucket), &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
}

// QueueLen returns the number of members waiting in a bucket.
func (c *Client) QueueLen(ctx context.Context, bucket string) (int64, error) {
	return c.rdb.ZCard(ctx, queueKey(bucket)).Result()
}

// PushJob enqueues a bot job for workers of the given difficulty.
func (c *Client) PushJob(ctx context.Context, difficulty string, payload []byte) error {
	return c.rdb.LPush(ctx, jobsKey(difficulty), payload).Err()
}

// PopJob blocks up to timeout for the next job. nil means timeout.
func (c *Client) PopJob(ctx context.Context, difficulty string, timeout time.Duration) ([]byte, error) {
	res, err := c.rdb.BRPop(ctx, timeout, jobsKey(difficulty)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BRPOP returns [key, value].
	return []byte(res[1]), nil
}

// PushReply posts a worker's answer for one job. Replies expire quickly:
// the server has already auto-played by then.
func (c *Client) PushReply(ctx context.Context, jobID string, payload []byte) error {
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, replyKey(jobID), payload)
	pipe.Expire(ctx, replyKey(jobID), 30*time.Second)
	_, err := pipe.Exec(ctx)
	return err
}

// WaitReply blocks up to timeout for the job's answer. nil means timeout.
func (c *Client) WaitReply(ctx context.Context, jobID string, timeout time.Duration) ([]byte, error) {
	res, err := c.rdb.BRPop(ctx, timeout, replyKey(jobID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(res[1]), nil
}

// RateIncr bumps a counter and returns the new value. Every hit slides
// the expiry forward, so the counter only resets after a full idle
// window.
func (c *Client) RateIncr(ctx context.Context, sessionID, kind string, window time.Duration) (int64, error) {
	key := rateKey(sessionID, kind)
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
