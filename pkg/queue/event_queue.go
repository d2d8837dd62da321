// Package queue carries library change events over a Redis stream consumed by
// a consumer group, with per-event status hashes for inspection.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"readshelf/internal/util"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Event types published by the library.
const (
	SourceCreated       = "source.created"
	SourceReferenced    = "source.referenced"
	NotebookCreated     = "notebook.created"
	TagCreated          = "tag.created"
	ReadActivityCreated = "readActivity.created"
	ReaderPurged        = "reader.purged"
)

type Event struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	ReaderID     string    `json:"readerId"`
	SubjectID    string    `json:"subjectId,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Handler processes one delivered event. A returned error schedules a retry
// until MaxRetries attempts have been made.
type Handler func(context.Context, Event) error

type RedisEventQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	eventTTL     time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	logger       *slog.Logger
	once         sync.Once
}

type RedisQueueConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	EventTTL   time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
	Logger     *slog.Logger
}

func NewRedisEventQueue(cfg RedisQueueConfig) (*RedisEventQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "default"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisEventQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		eventTTL:     orDuration(cfg.EventTTL, 24*time.Hour),
		maxRetries:   orInt(cfg.MaxRetries, 3),
		block:        orDuration(cfg.Block, 5*time.Second),
		claimIdle:    orDuration(cfg.ClaimIdle, 30*time.Second),
		retryDelay:   orDuration(cfg.RetryDelay, 2*time.Second),
		maxLen:       int64(orInt(int(cfg.MaxLen), 10000)),
		readCount:    int64(orInt(int(cfg.ReadCount), 10)),
		claimCount:   int64(orInt(int(cfg.ClaimCount), 10)),
		logger:       logger.With("stream", stream),
	}, nil
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Close releases the Redis client.
func (q *RedisEventQueue) Close() error { return q.client.Close() }

// Enqueue records the event status and appends it to the stream.
func (q *RedisEventQueue) Enqueue(ctx context.Context, evt Event) (Event, error) {
	evt.Type = strings.TrimSpace(evt.Type)
	if evt.Type == "" {
		return Event{}, errors.New("event type required")
	}
	now := time.Now().UTC()
	evt.ID = util.NewID()
	evt.Status = StatusQueued
	evt.Attempts = 0
	evt.ErrorMessage = ""
	evt.CreatedAt = now
	evt.UpdatedAt = now
	if err := q.writeStatus(ctx, evt); err != nil {
		return Event{}, err
	}
	if err := q.client.XAdd(ctx, q.addArgs(evt)).Err(); err != nil {
		return Event{}, err
	}
	return evt, nil
}

func (q *RedisEventQueue) addArgs(evt Event) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":   evt.ID,
			"type":       evt.Type,
			"reader_id":  evt.ReaderID,
			"subject_id": evt.SubjectID,
		},
	}
}

// Get returns the recorded status of an event.
func (q *RedisEventQueue) Get(ctx context.Context, eventID string) (Event, bool, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return Event{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.eventKey(eventID)).Result()
	if err != nil {
		return Event{}, false, err
	}
	if len(data) == 0 {
		return Event{}, false, nil
	}
	return decodeEvent(eventID, data), true, nil
}

// Start launches concurrency consumers that run until ctx is done.
func (q *RedisEventQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
}

func (q *RedisEventQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			q.logger.Warn("create consumer group", "group", q.group, "err", err)
		}
	})
}

func (q *RedisEventQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				q.logger.Warn("read stream", "consumer", consumer, "err", err)
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RedisEventQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func messageEvent(msg redis.XMessage) Event {
	str := func(k string) string {
		v, _ := msg.Values[k].(string)
		return v
	}
	return Event{ID: str("event_id"), Type: str("type"), ReaderID: str("reader_id"), SubjectID: str("subject_id")}
}

func (q *RedisEventQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	carried := messageEvent(msg)
	if carried.ID == "" || carried.Type == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	evt, err := q.markProcessing(ctx, carried)
	if err != nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	err = handler(ctx, evt)
	if err == nil {
		_ = q.transition(ctx, evt.ID, StatusDone, "")
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if evt.Attempts >= q.maxRetries {
		q.logger.Error("event failed", "event", evt.ID, "type", evt.Type, "attempts", evt.Attempts, "err", err)
		_ = q.transition(ctx, evt.ID, StatusFailed, err.Error())
		q.ackAndDel(ctx, msg.ID)
		return
	}
	_ = q.transition(ctx, evt.ID, StatusQueued, err.Error())
	if q.retryDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.retryDelay):
		}
	}
	_ = q.requeueAndAck(ctx, msg.ID, evt)
}

func (q *RedisEventQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *RedisEventQueue) requeueAndAck(ctx context.Context, msgID string, evt Event) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, q.addArgs(evt))
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisEventQueue) markProcessing(ctx context.Context, carried Event) (Event, error) {
	evt, found, err := q.Get(ctx, carried.ID)
	if err != nil {
		return Event{}, err
	}
	if !found {
		evt = carried
	}
	evt.Attempts++
	evt.Status = StatusProcessing
	evt.UpdatedAt = time.Now().UTC()
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = evt.UpdatedAt
	}
	if err := q.writeStatus(ctx, evt); err != nil {
		return Event{}, err
	}
	return evt, nil
}

// transition moves a recorded event to status.
func (q *RedisEventQueue) transition(ctx context.Context, eventID, status, errMsg string) error {
	evt, _, err := q.Get(ctx, eventID)
	if err != nil {
		return err
	}
	evt.ID = eventID
	evt.Status = status
	evt.ErrorMessage = errMsg
	evt.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, evt)
}

func (q *RedisEventQueue) writeStatus(ctx context.Context, evt Event) error {
	key := q.eventKey(evt.ID)
	payload := map[string]any{
		"id":        evt.ID,
		"type":      evt.Type,
		"readerId":  evt.ReaderID,
		"subjectId": evt.SubjectID,
		"status":    evt.Status,
		"error":     evt.ErrorMessage,
		"attempts":  strconv.Itoa(evt.Attempts),
		"createdAt": evt.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": evt.UpdatedAt.Format(time.RFC3339Nano),
	}
	if err := q.client.HSet(ctx, key, payload).Err(); err != nil {
		return err
	}
	_ = q.client.Expire(ctx, key, q.eventTTL).Err()
	return nil
}

func (q *RedisEventQueue) eventKey(eventID string) string {
	return fmt.Sprintf("event:%s:%s", q.stream, eventID)
}

func decodeEvent(eventID string, data map[string]string) Event {
	evt := Event{
		ID:           eventID,
		Type:         data["type"],
		ReaderID:     data["readerId"],
		SubjectID:    data["subjectId"],
		Status:       data["status"],
		ErrorMessage: data["error"],
	}
	if n, err := strconv.Atoi(data["attempts"]); err == nil {
		evt.Attempts = n
	}
	if t, err := time.Parse(time.RFC3339Nano, data["createdAt"]); err == nil {
		evt.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, data["updatedAt"]); err == nil {
		evt.UpdatedAt = t
	}
	return evt
}
