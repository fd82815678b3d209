package llm

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	reanalysisKey = "dream:reanalysis"
	// delayedKey holds retries scored by the unix millisecond they become due.
	delayedKey = "dream:reanalysis:delayed"

	defaultRetryBase = time.Minute
	maxRetryDelay    = 30 * time.Minute
)

// promoteScript moves due retries onto the ready list atomically, so two
// workers never promote the same message.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, item in ipairs(due) do
	redis.call('ZREM', KEYS[1], item)
	redis.call('LPUSH', KEYS[2], item)
end
return #due
`)

// Queue holds dreams whose analysis fell back to the null backend and should
// be analysed again once a real backend answers.
type Queue struct {
	client *redis.Client
}

type QueueMessage struct {
	UserID         int64     `json:"user_id"`
	DreamID        int64     `json:"dream_id"`
	Content        string    `json:"content"`
	MoodLevel      int       `json:"mood_level"`
	RealityContext string    `json:"reality_context,omitempty"`
	Attempt        int       `json:"attempt"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewQueue(redisURL string) (*Queue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Queue{client: redis.NewClient(opt)}, nil
}

func NewQueueFromClient(client *redis.Client) *Queue {
	return &Queue{client: client}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func encodeMessage(message QueueMessage) ([]byte, error) {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	return json.Marshal(message)
}

func (q *Queue) Enqueue(ctx context.Context, message QueueMessage) error {
	payload, err := encodeMessage(message)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, reanalysisKey, payload).Err()
}

// Schedule parks a message until at; PromoteDue makes it visible again.
func (q *Queue) Schedule(ctx context.Context, message QueueMessage, at time.Time) error {
	payload, err := encodeMessage(message)
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, delayedKey, redis.Z{Score: float64(at.UnixMilli()), Member: payload}).Err()
}

// PromoteDue moves up to limit scheduled messages that are due at now onto
// the ready list.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time, limit int) (int, error) {
	return promoteScript.Run(ctx, q.client,
		[]string{delayedKey, reanalysisKey},
		strconv.FormatInt(now.UnixMilli(), 10), limit,
	).Int()
}

func (q *Queue) DequeueBatch(ctx context.Context, batchSize int) ([][]byte, error) {
	var items [][]byte
	for i := 0; i < batchSize; i++ {
		item, err := q.client.RPop(ctx, reanalysisKey).Bytes()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Len counts ready and scheduled messages.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	ready, err := q.client.LLen(ctx, reanalysisKey).Result()
	if err != nil {
		return 0, err
	}
	delayed, err := q.client.ZCard(ctx, delayedKey).Result()
	return ready + delayed, err
}

// JobQueue is the part of Queue the worker drives.
type JobQueue interface {
	DequeueBatch(ctx context.Context, batchSize int) ([][]byte, error)
	Schedule(ctx context.Context, message QueueMessage, at time.Time) error
	PromoteDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// HandleFunc processes one queued dream. Returning retry schedules the
// message again after a backoff with its attempt counter incremented.
type HandleFunc func(ctx context.Context, msg QueueMessage) (retry bool, err error)

type Worker struct {
	Queue       JobQueue
	Handle      HandleFunc
	Logger      *zap.Logger
	BatchSize   int
	MaxAttempts int
	Timeout     time.Duration
	// RetryBase is the delay before the first retry; later retries double it
	// up to 30 minutes.
	RetryBase time.Duration

	now func() time.Time
}

func (w *Worker) Start(ctx context.Context) {
	logger := w.logger()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		handled, err := w.poll(ctx)
		if err != nil {
			logger.Warn("reanalysis dequeue failed", zap.Error(err))
			sleep(ctx, 2*time.Second)
			continue
		}
		if handled == 0 {
			sleep(ctx, 500*time.Millisecond)
		}
	}
}

// poll promotes due retries, then handles one batch of ready messages.
func (w *Worker) poll(ctx context.Context) (int, error) {
	batch := w.BatchSize
	if batch <= 0 {
		batch = 100
	}
	logger := w.logger()

	if _, err := w.Queue.PromoteDue(ctx, w.clock(), batch); err != nil {
		return 0, err
	}
	items, err := w.Queue.DequeueBatch(ctx, batch)
	if err != nil {
		return 0, err
	}
	for _, raw := range items {
		var msg QueueMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warn("dropping malformed reanalysis message", zap.Error(err))
			continue
		}
		w.process(ctx, logger, msg)
	}
	return len(items), nil
}

func (w *Worker) process(ctx context.Context, logger *zap.Logger, msg QueueMessage) {
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	maxAttempts := w.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	retry, err := w.Handle(jobCtx, msg)
	cancel()

	if ctx.Err() != nil && (retry || err != nil) {
		// Shutting down; put the message back without spending an attempt.
		putCtx, putCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer putCancel()
		if err := w.Queue.Schedule(putCtx, msg, w.clock()); err != nil {
			logger.Warn("reanalysis requeue failed", zap.Int64("dream_id", msg.DreamID), zap.Error(err))
		}
		return
	}
	if err != nil {
		logger.Warn("reanalysis failed", zap.Int64("dream_id", msg.DreamID), zap.Error(err))
	}
	if !retry {
		return
	}
	msg.Attempt++
	if msg.Attempt >= maxAttempts {
		logger.Info("giving up on reanalysis", zap.Int64("dream_id", msg.DreamID), zap.Int("attempts", msg.Attempt))
		return
	}
	at := w.clock().Add(w.backoff(msg.Attempt))
	if err := w.Queue.Schedule(ctx, msg, at); err != nil {
		logger.Warn("reanalysis requeue failed", zap.Int64("dream_id", msg.DreamID), zap.Error(err))
	}
}

// backoff returns the delay before retry number attempt (1-based).
func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.RetryBase
	if delay <= 0 {
		delay = defaultRetryBase
	}
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func (w *Worker) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}

func (w *Worker) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
