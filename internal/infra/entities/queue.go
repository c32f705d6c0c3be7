package entities

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gfmeira/gestor/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// enqueue appends a failed write to the external_<entity> queue with
// synced=false. The queue is a plain JSON array in the local store,
// same shape the frontend used.
func (c *Client) enqueue(entity string, data map[string]any) error {
	key := queueKey(entity)

	var queue []domain.QueuedRecord
	if _, err := c.kv.GetJSON(key, &queue); err != nil {
		return err
	}

	queue = append(queue, domain.QueuedRecord{
		ID:       uuid.New().String(),
		Data:     data,
		Synced:   false,
		QueuedAt: time.Now().Format(time.RFC3339),
	})

	return c.kv.SetJSON(key, queue)
}

// FlushQueue re-posts every unsynced record for one entity, marking
// records synced as they land. Already-synced records older than a day
// are dropped from the queue to keep it from growing forever.
func (c *Client) FlushQueue(ctx context.Context, entity string) (int, error) {
	if err := c.bulkhead.Acquire(ctx); err != nil {
		return 0, err
	}
	defer c.bulkhead.Release()

	key := queueKey(entity)

	var queue []domain.QueuedRecord
	found, err := c.kv.GetJSON(key, &queue)
	if err != nil || !found || len(queue) == 0 {
		return 0, err
	}

	flushed := 0
	cutoff := time.Now().Add(-24 * time.Hour)
	kept := queue[:0]
	for _, rec := range queue {
		if rec.Synced {
			if t, err := time.Parse(time.RFC3339, rec.QueuedAt); err == nil && t.Before(cutoff) {
				continue
			}
			kept = append(kept, rec)
			continue
		}

		err := c.execute(ctx, func() error {
			_, err := c.doRequest(ctx, http.MethodPost, url.PathEscape(entity), rec.Data)
			return err
		})
		if err != nil {
			c.logger.Debug("entity api: queue flush still failing",
				zap.String("entity", entity),
				zap.Error(err),
			)
			kept = append(kept, rec)
			continue
		}
		rec.Synced = true
		flushed++
		kept = append(kept, rec)
	}

	if err := c.kv.SetJSON(key, kept); err != nil {
		return flushed, err
	}
	return flushed, nil
}

// FlushAllQueues drains every external_<entity> queue found in the
// store, a few entities at a time.
func (c *Client) FlushAllQueues(ctx context.Context) (int, error) {
	keys, err := c.kv.KeysWithPrefix("external_")
	if err != nil {
		return 0, err
	}

	var (
		g, gctx = errgroup.WithContext(ctx)
		results = make([]int, len(keys))
	)
	for i, key := range keys {
		i := i
		entity := strings.TrimPrefix(key, "external_")
		g.Go(func() error {
			n, err := c.FlushQueue(gctx, entity)
			results[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range results {
		total += n
	}
	return total, nil
}

// QueueDepth reports how many unsynced records are parked for an entity.
func (c *Client) QueueDepth(entity string) (int, error) {
	var queue []domain.QueuedRecord
	if _, err := c.kv.GetJSON(queueKey(entity), &queue); err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range queue {
		if !rec.Synced {
			n++
		}
	}
	return n, nil
}
