package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/undercurrent-backend/internal/catalog"
	"github.com/yungbote/undercurrent-backend/internal/data/repos"
	types "github.com/yungbote/undercurrent-backend/internal/domain"
	"github.com/yungbote/undercurrent-backend/internal/platform/dbctx"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

var ErrUnknownCanvasKey = errors.New("unknown career canvas block")

type canvasBatch struct {
	edits types.CareerCanvas
	timer *time.Timer
}

// CanvasCoalescer buffers rapid canvas field edits per user and writes them
// as one merge after the window closes. Readers that depend on the canvas
// call Flush first.
type CanvasCoalescer struct {
	log      *logger.Logger
	cat      *catalog.Catalog
	sessions repos.SessionRepo
	window   time.Duration

	mu      sync.Mutex
	pending map[uuid.UUID]*canvasBatch

	// writeMu serializes the read-merge-write against the session row.
	writeMu sync.Mutex
}

func NewCanvasCoalescer(log *logger.Logger, cat *catalog.Catalog, sessions repos.SessionRepo, window time.Duration) *CanvasCoalescer {
	return &CanvasCoalescer{
		log:      log.With("service", "CanvasCoalescer"),
		cat:      cat,
		sessions: sessions,
		window:   window,
		pending:  map[uuid.UUID]*canvasBatch{},
	}
}

// Edit records new values for canvas blocks. With a zero window the write
// happens before Edit returns.
func (c *CanvasCoalescer) Edit(ctx context.Context, userID uuid.UUID, edits types.CareerCanvas) error {
	for k := range edits {
		if !c.cat.HasCanvasKey(k) {
			return fmt.Errorf("%w: %q", ErrUnknownCanvasKey, k)
		}
	}
	if len(edits) == 0 {
		return nil
	}
	c.mu.Lock()
	b := c.pending[userID]
	if b == nil {
		b = &canvasBatch{edits: types.CareerCanvas{}}
		c.pending[userID] = b
	}
	for k, v := range edits {
		b.edits[k] = v
	}
	if c.window <= 0 {
		c.mu.Unlock()
		return c.Flush(ctx, userID)
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(c.window, func() {
		if err := c.Flush(context.Background(), userID); err != nil {
			c.log.Warn("Debounced canvas write failed", "user_id", userID, "error", err)
		}
	})
	c.mu.Unlock()
	return nil
}

// Pending reports whether edits are buffered for the user.
func (c *CanvasCoalescer) Pending(userID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.pending[userID]
	return b != nil && len(b.edits) > 0
}

// Flush writes buffered edits now. On failure the edits are put back unless
// newer values for the same block arrived meanwhile.
func (c *CanvasCoalescer) Flush(ctx context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	b := c.pending[userID]
	delete(c.pending, userID)
	if b != nil && b.timer != nil {
		b.timer.Stop()
	}
	c.mu.Unlock()
	if b == nil || len(b.edits) == 0 {
		return nil
	}

	if err := c.write(ctx, userID, b.edits); err != nil {
		c.requeue(userID, b.edits)
		return err
	}
	return nil
}

func (c *CanvasCoalescer) write(ctx context.Context, userID uuid.UUID, edits types.CareerCanvas) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	dbc := dbctx.New(ctx)
	sess, err := c.sessions.GetOrCreate(dbc, userID)
	if err != nil {
		return fmt.Errorf("load session for canvas: %w", err)
	}
	merged := types.CareerCanvas{}
	for k, v := range sess.CareerCanvas.Data() {
		merged[k] = v
	}
	for k, v := range edits {
		if strings.TrimSpace(v) == "" {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	if err := c.sessions.Update(dbc, userID, types.SessionPatch{CareerCanvas: &merged}); err != nil {
		return fmt.Errorf("save canvas: %w", err)
	}
	return nil
}

func (c *CanvasCoalescer) requeue(userID uuid.UUID, edits types.CareerCanvas) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.pending[userID]
	if b == nil {
		b = &canvasBatch{edits: types.CareerCanvas{}}
		c.pending[userID] = b
	}
	for k, v := range edits {
		if _, newer := b.edits[k]; !newer {
			b.edits[k] = v
		}
	}
}

// Discard drops buffered edits without writing them.
func (c *CanvasCoalescer) Discard(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b := c.pending[userID]; b != nil && b.timer != nil {
		b.timer.Stop()
	}
	delete(c.pending, userID)
}

// Close flushes every user's buffered edits.
func (c *CanvasCoalescer) Close(ctx context.Context) error {
	c.mu.Lock()
	users := make([]uuid.UUID, 0, len(c.pending))
	for id := range c.pending {
		users = append(users, id)
	}
	c.mu.Unlock()
	var errs []error
	for _, id := range users {
		if err := c.Flush(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
