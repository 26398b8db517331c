// Package redis provides a Redis persistence implementation for pipeline runs.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix  = "dailyreel:"
	maxTxRetries   = 5
	runIndexSuffix = "runs"
	activeSuffix   = "active"
)

// Persistence implements persistence.RunStore on Redis.
//
// Keys under the prefix:
//
//	run:<date>     JSON record
//	runs           sorted set of dates scored as YYYYMMDD
//	events:<date>  list of JSON events
//	active         JSON sentinel
type Persistence struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
}

// NewPersistence connects to the Redis server named by a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	return NewPersistenceWithClient(ctx, logger, redis.NewClient(opts), defaultPrefix)
}

// NewPersistenceWithClient uses an existing client and key prefix.
func NewPersistenceWithClient(ctx context.Context, logger *slog.Logger, client *redis.Client, prefix string) (*Persistence, error) {
	err := client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Persistence{
		client: client,
		logger: logger,
		prefix: prefix,
	}, nil
}

func (p *Persistence) runKey(date string) string    { return p.prefix + "run:" + date }
func (p *Persistence) eventsKey(date string) string { return p.prefix + "events:" + date }
func (p *Persistence) indexKey() string             { return p.prefix + runIndexSuffix }
func (p *Persistence) activeKey() string            { return p.prefix + activeSuffix }

func dateScore(date string) float64 {
	n, _ := strconv.Atoi(strings.ReplaceAll(date, "-", ""))

	return float64(n)
}

func validateRunID(op, runID string) error {
	if _, err := time.Parse(models.DateLayout, runID); err != nil {
		return persistence.NewRunError(op, runID, persistence.ErrInvalidRunID)
	}

	return nil
}

// Close closes the client.
func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	return nil
}

// HealthCheck pings the server.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return persistence.Unavailable("HealthCheck", "", err)
	}

	return nil
}

func decodeRecord(op, date string, payload string) (*models.RunRecord, error) {
	var record models.RunRecord

	err := json.Unmarshal([]byte(payload), &record)
	if err != nil {
		return nil, persistence.Unavailable(op, date, fmt.Errorf("failed to unmarshal run: %w", err))
	}

	return &record, nil
}

// Load retrieves the run record for a date.
func (p *Persistence) Load(ctx context.Context, date string) (*models.RunRecord, error) {
	if err := validateRunID("Load", date); err != nil {
		return nil, err
	}

	payload, err := p.client.Get(ctx, p.runKey(date)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewRunError("Load", date, persistence.ErrRunNotFound)
		}

		return nil, persistence.Unavailable("Load", date, err)
	}

	return decodeRecord("Load", date, payload)
}

// Save writes the record and indexes its date in one transaction.
func (p *Persistence) Save(ctx context.Context, record *models.RunRecord) error {
	if err := validateRunID("Save", record.ID); err != nil {
		return err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return persistence.NewRunError("Save", record.ID, fmt.Errorf("failed to marshal run: %w", err))
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		p.queueSave(ctx, pipe, record.ID, payload)

		return nil
	})
	if err != nil {
		return persistence.Unavailable("Save", record.ID, err)
	}

	return nil
}

func (p *Persistence) queueSave(ctx context.Context, pipe redis.Pipeliner, date string, payload []byte) {
	pipe.Set(ctx, p.runKey(date), payload, 0)
	pipe.ZAdd(ctx, p.indexKey(), redis.Z{Score: dateScore(date), Member: date})
}

// Update retries an optimistic WATCH/MULTI transaction until it commits.
func (p *Persistence) Update(ctx context.Context, date string, fn persistence.UpdateFunc) (*models.RunRecord, error) {
	if err := validateRunID("Update", date); err != nil {
		return nil, err
	}

	key := p.runKey(date)

	var (
		result *models.RunRecord
		fnErr  error
	)

	txf := func(tx *redis.Tx) error {
		var current *models.RunRecord

		payload, err := tx.Get(ctx, key).Result()

		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			current, fnErr = decodeRecord("Update", date, payload)
			if fnErr != nil {
				return fnErr
			}
		}

		next, err := fn(current)
		if err != nil {
			fnErr = err

			return err
		}

		if next == nil {
			result = current

			return nil
		}

		data, err := json.Marshal(next)
		if err != nil {
			fnErr = persistence.NewRunError("Update", date, fmt.Errorf("failed to marshal run: %w", err))

			return fnErr
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			p.queueSave(ctx, pipe, date, data)

			return nil
		})
		if err != nil {
			return err
		}

		result = next

		return nil
	}

	for range maxTxRetries {
		fnErr = nil

		err := p.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		if fnErr != nil {
			return nil, fnErr
		}

		if err != nil {
			return nil, persistence.Unavailable("Update", date, err)
		}

		return result, nil
	}

	return nil, persistence.Unavailable("Update", date, errors.New("too many concurrent updates"))
}

// List returns records within the range, newest date first.
func (p *Persistence) List(ctx context.Context, dates models.DateRange) ([]*models.RunRecord, error) {
	minScore, maxScore := "-inf", "+inf"
	if dates.From != "" {
		minScore = strconv.FormatFloat(dateScore(dates.From), 'f', 0, 64)
	}

	if dates.To != "" {
		maxScore = strconv.FormatFloat(dateScore(dates.To), 'f', 0, 64)
	}

	ids, err := p.client.ZRevRangeByScore(ctx, p.indexKey(), &redis.ZRangeBy{Min: minScore, Max: maxScore}).Result()
	if err != nil {
		return nil, persistence.Unavailable("List", "", err)
	}

	records := make([]*models.RunRecord, 0, len(ids))
	if len(ids) == 0 {
		return records, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = p.runKey(id)
	}

	payloads, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, persistence.Unavailable("List", "", err)
	}

	for i, payload := range payloads {
		s, ok := payload.(string)
		if !ok {
			continue
		}

		record, err := decodeRecord("List", ids[i], s)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

// AppendEvent pushes one transition onto the run's log.
func (p *Persistence) AppendEvent(ctx context.Context, event models.StepEvent) error {
	if err := validateRunID("AppendEvent", event.RunID); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return persistence.NewRunError("AppendEvent", event.RunID, fmt.Errorf("failed to marshal event: %w", err))
	}

	err = p.client.RPush(ctx, p.eventsKey(event.RunID), payload).Err()
	if err != nil {
		return persistence.Unavailable("AppendEvent", event.RunID, err)
	}

	return nil
}

// Events returns logged transitions with a sequence number above afterSeq.
func (p *Persistence) Events(ctx context.Context, runID string, afterSeq int64) ([]models.StepEvent, error) {
	payloads, err := p.client.LRange(ctx, p.eventsKey(runID), 0, -1).Result()
	if err != nil {
		return nil, persistence.Unavailable("Events", runID, err)
	}

	events := make([]models.StepEvent, 0, len(payloads))

	for _, payload := range payloads {
		var event models.StepEvent

		err := json.Unmarshal([]byte(payload), &event)
		if err != nil {
			return nil, persistence.Unavailable("Events", runID, fmt.Errorf("failed to unmarshal event: %w", err))
		}

		if event.Seq > afterSeq {
			events = append(events, event)
		}
	}

	return events, nil
}
