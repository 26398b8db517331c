package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

// AcquireActive sets the sentinel with SETNX.
func (p *Persistence) AcquireActive(ctx context.Context, active models.ActiveRun) error {
	if err := validateRunID("AcquireActive", active.RunID); err != nil {
		return err
	}

	payload, err := json.Marshal(active)
	if err != nil {
		return persistence.NewRunError("AcquireActive", active.RunID, err)
	}

	ok, err := p.client.SetNX(ctx, p.activeKey(), payload, 0).Result()
	if err != nil {
		return persistence.Unavailable("AcquireActive", active.RunID, err)
	}

	if !ok {
		return persistence.NewRunError("AcquireActive", active.RunID, persistence.ErrActiveRunExists)
	}

	return nil
}

// ActiveRun returns the sentinel, or nil when no run is active.
func (p *Persistence) ActiveRun(ctx context.Context) (*models.ActiveRun, error) {
	payload, err := p.client.Get(ctx, p.activeKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, persistence.Unavailable("ActiveRun", "", err)
	}

	return decodeActive(payload)
}

func decodeActive(payload string) (*models.ActiveRun, error) {
	var active models.ActiveRun

	err := json.Unmarshal([]byte(payload), &active)
	if err != nil {
		return nil, persistence.Unavailable("ActiveRun", "", fmt.Errorf("corrupt sentinel: %w", err))
	}

	return &active, nil
}

// RequestStop flags the sentinel when runID holds it.
func (p *Persistence) RequestStop(ctx context.Context, runID string) error {
	return p.mutateActive(ctx, "RequestStop", runID, func(tx *redis.Tx, active *models.ActiveRun) error {
		active.StopRequested = true

		payload, err := json.Marshal(active)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, p.activeKey(), payload, 0)

			return nil
		})

		return err
	})
}

// ReleaseActive deletes the sentinel when runID holds it.
func (p *Persistence) ReleaseActive(ctx context.Context, runID string) error {
	return p.mutateActive(ctx, "ReleaseActive", runID, func(tx *redis.Tx, _ *models.ActiveRun) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, p.activeKey())

			return nil
		})

		return err
	})
}

func (p *Persistence) mutateActive(ctx context.Context, op, runID string, apply func(*redis.Tx, *models.ActiveRun) error) error {
	key := p.activeKey()

	txf := func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return persistence.NewRunError(op, runID, persistence.ErrRunNotActive)
		}

		if err != nil {
			return persistence.Unavailable(op, runID, err)
		}

		active, err := decodeActive(payload)
		if err != nil {
			return err
		}

		if active.RunID != runID {
			return persistence.NewRunError(op, runID, persistence.ErrRunNotActive)
		}

		return apply(tx, active)
	}

	for range maxTxRetries {
		err := p.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		if err != nil {
			var runErr *persistence.RunError
			if errors.As(err, &runErr) {
				return err
			}

			return persistence.Unavailable(op, runID, err)
		}

		return nil
	}

	return persistence.Unavailable(op, runID, errors.New("too many concurrent updates"))
}
