package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"booklisting/internal/models"
	"booklisting/internal/redis"
	"booklisting/internal/wizard"
)

const (
	redisInvalidateChannel = "wizard:invalidate"
	redisSnapshotTTL       = 24 * time.Hour
	redisSubmitGuardTTL    = 5 * time.Minute
)

type snapshotRecord struct {
	Session models.Session  `json:"session"`
	State   wizard.Snapshot `json:"state"`
}

type invalidateMessage struct {
	SessionID string `json:"session_id"`
}

// stateCache mirrors session snapshots into redis and guards submissions
// across instances. A nil cache or client turns every call into a no-op.
type stateCache struct {
	client *redis.Client
}

func newStateCache(client *redis.Client) *stateCache {
	if client == nil {
		return nil
	}
	return &stateCache{client: client}
}

func snapshotKey(id string) string {
	return fmt.Sprintf("wizard:session:%s", id)
}

func submitKey(id string) string {
	return fmt.Sprintf("wizard:submit:%s", id)
}

func (r *stateCache) save(ctx context.Context, rec snapshotRecord) {
	if r == nil || rec.Session.ID == "" {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		log.Printf("session %s snapshot marshal failed: %v", rec.Session.ID, err)
		return
	}
	if err := r.client.Set(ctx, snapshotKey(rec.Session.ID), data, redisSnapshotTTL); err != nil {
		log.Printf("session %s snapshot save failed: %v", rec.Session.ID, err)
	}
}

func (r *stateCache) load(ctx context.Context, id string) (*snapshotRecord, bool) {
	if r == nil || id == "" {
		return nil, false
	}
	raw, err := r.client.Get(ctx, snapshotKey(id))
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			log.Printf("session %s snapshot load failed: %v", id, err)
		}
		return nil, false
	}
	var rec snapshotRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		log.Printf("session %s snapshot decode failed: %v", id, err)
		return nil, false
	}
	if rec.Session.ID != id {
		return nil, false
	}
	return &rec, true
}

func (r *stateCache) invalidate(ctx context.Context, id string) {
	if r == nil || id == "" {
		return
	}
	if err := r.client.Del(ctx, snapshotKey(id)); err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		log.Printf("session %s snapshot invalidate failed: %v", id, err)
	}
}

// acquireSubmit claims the submit slot for a session. Without redis the
// in-memory Submitting phase is the only guard and the claim always holds.
func (r *stateCache) acquireSubmit(ctx context.Context, id string) (bool, error) {
	if r == nil {
		return true, nil
	}
	return r.client.SetNX(ctx, submitKey(id), time.Now().UTC().Format(time.RFC3339), redisSubmitGuardTTL)
}

func (r *stateCache) releaseSubmit(ctx context.Context, id string) {
	if r == nil {
		return
	}
	if err := r.client.Del(ctx, submitKey(id)); err != nil {
		log.Printf("session %s release submit guard failed: %v", id, err)
	}
}

// startListener drops sessions discarded by other instances.
func (r *stateCache) startListener(ctx context.Context, handler func(invalidateMessage)) {
	if r == nil || handler == nil {
		return
	}
	raw := r.client.Raw()
	if raw == nil {
		return
	}
	pubsub := raw.Subscribe(ctx, redisInvalidateChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("session invalidation subscribe failed: %v", err)
		pubsub.Close()
		return
	}
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var inv invalidateMessage
				if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
					log.Printf("session invalidation decode failed: %v", err)
					continue
				}
				handler(inv)
			}
		}
	}()
}

func (r *stateCache) publishInvalidation(ctx context.Context, msg invalidateMessage) {
	if r == nil {
		return
	}
	raw := r.client.Raw()
	if raw == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("session invalidation marshal failed: %v", err)
		return
	}
	if err := raw.Publish(ctx, redisInvalidateChannel, payload).Err(); err != nil {
		log.Printf("session publish invalidation failed: %v", err)
	}
}
