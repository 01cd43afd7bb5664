package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/marcelsud/webhook-gateway/webhook"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of webhook.Repository
 * Uses a Redis Hash per event for metadata and a List for the attempt history
 * The dedup window is the key TTL: once it lapses the (provider, event id) key may be reused
 */

const (
	// KeyPrefix namespaces event hashes: event:{provider}:{event_id}
	KeyPrefix = "event"
	// AttemptsSuffix marks the attempt list key: event:{provider}:{event_id}:attempts
	AttemptsSuffix = ":attempts"
)

// insertScript creates the hash only when the key is absent, so concurrent
// arrivals of the same event are linearized by Redis.
var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
if tonumber(ARGV[1]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return 1
`)

// updateScript writes fields only onto an existing hash, so an event whose
// dedup window lapsed is never recreated without a TTL.
var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// appendScript pushes an attempt and gives the list the TTL left on the hash
var appendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[2], ttl)
end
return 1
`)

type Repository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRepository creates a new Redis repository
func NewRepository(addr, password string, db int, ttl time.Duration) (*Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return NewRepositoryWithClient(client, ttl), nil
}

// NewRepositoryWithClient wraps an existing client, letting the rate limiter
// and the repository share one connection pool
func NewRepositoryWithClient(client *redis.Client, ttl time.Duration) *Repository {
	return &Repository{
		client: client,
		ttl:    ttl,
	}
}

// Insert stores a new event hash if the key is free
func (r *Repository) Insert(ctx context.Context, event webhook.Event) error {
	args := []interface{}{
		r.ttl.Milliseconds(),
		"provider", event.Provider,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"status", event.Status.String(),
		"payload", event.Payload,
		"deduplicable", strconv.FormatBool(event.Deduplicable),
		"received_at", event.ReceivedAt.UnixNano(),
		"updated_at", event.UpdatedAt.UnixNano(),
	}

	created, err := insertScript.Run(ctx, r.client, []string{eventKey(event.Provider, event.EventID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("storing event: %w", err)
	}
	if created == 0 {
		return webhook.ErrDuplicate
	}

	return nil
}

// Get retrieves an event and its attempts
func (r *Repository) Get(ctx context.Context, provider, eventID string) (webhook.Event, error) {
	key := eventKey(provider, eventID)

	pipe := r.client.Pipeline()
	hashCmd := pipe.HGetAll(ctx, key)
	listCmd := pipe.LRange(ctx, key+AttemptsSuffix, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return webhook.Event{}, fmt.Errorf("getting event: %w", err)
	}

	data := hashCmd.Val()
	if len(data) == 0 {
		return webhook.Event{}, fmt.Errorf("%w: %s", webhook.ErrNotFound, webhook.Key(provider, eventID))
	}

	event := webhook.Event{
		Provider:     data["provider"],
		EventID:      data["event_id"],
		EventType:    data["event_type"],
		Status:       webhook.NewStatus(data["status"]),
		Payload:      []byte(data["payload"]),
		Deduplicable: data["deduplicable"] == "true",
		ReceivedAt:   time.Unix(0, parseInt64(data["received_at"])).UTC(),
		UpdatedAt:    time.Unix(0, parseInt64(data["updated_at"])).UTC(),
	}

	for _, raw := range listCmd.Val() {
		var rec attemptRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return webhook.Event{}, fmt.Errorf("unmarshaling attempt: %w", err)
		}
		event.Attempts = append(event.Attempts, rec.toAttempt())
	}

	return event, nil
}

// UpdateStatus updates the status of an event
func (r *Repository) UpdateStatus(ctx context.Context, provider, eventID string, status webhook.Status) error {
	updated, err := updateScript.Run(ctx, r.client, []string{eventKey(provider, eventID)},
		"status", status.String(),
		"updated_at", time.Now().UnixNano(),
	).Int()
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	if updated == 0 {
		return fmt.Errorf("%w: %s", webhook.ErrNotFound, webhook.Key(provider, eventID))
	}

	return nil
}

// AppendAttempt pushes an attempt onto the event's history list
func (r *Repository) AppendAttempt(ctx context.Context, provider, eventID string, attempt webhook.Attempt) error {
	key := eventKey(provider, eventID)

	data, err := json.Marshal(newAttemptRecord(attempt))
	if err != nil {
		return fmt.Errorf("marshaling attempt: %w", err)
	}

	appended, err := appendScript.Run(ctx, r.client, []string{key, key + AttemptsSuffix},
		data, time.Now().UnixNano(),
	).Int()
	if err != nil {
		return fmt.Errorf("appending attempt: %w", err)
	}
	if appended == 0 {
		return fmt.Errorf("%w: %s", webhook.ErrNotFound, webhook.Key(provider, eventID))
	}

	return nil
}

// Close closes the Redis connection
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Close()
}

// GetClient returns the underlying Redis client for advanced operations
func (r *Repository) GetClient() *redis.Client {
	return r.client
}

type attemptRecord struct {
	ID         string `json:"id"`
	Handler    string `json:"handler"`
	Number     int    `json:"number"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at"`
}

func newAttemptRecord(a webhook.Attempt) attemptRecord {
	return attemptRecord{
		ID:         a.ID,
		Handler:    a.Handler,
		Number:     a.Number,
		Outcome:    a.Outcome.String(),
		Error:      a.Error,
		StartedAt:  a.StartedAt.UnixNano(),
		FinishedAt: a.FinishedAt.UnixNano(),
	}
}

func (rec attemptRecord) toAttempt() webhook.Attempt {
	return webhook.Attempt{
		ID:         rec.ID,
		Handler:    rec.Handler,
		Number:     rec.Number,
		Outcome:    webhook.NewOutcome(rec.Outcome),
		Error:      rec.Error,
		StartedAt:  time.Unix(0, rec.StartedAt).UTC(),
		FinishedAt: time.Unix(0, rec.FinishedAt).UTC(),
	}
}

// Helper functions

func eventKey(provider, eventID string) string {
	return fmt.Sprintf("%s:%s", KeyPrefix, webhook.Key(provider, eventID))
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

var _ webhook.Repository = (*Repository)(nil)
