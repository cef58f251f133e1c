package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/corbeille/corbeille-backend/internal/repo"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
	"github.com/corbeille/corbeille-backend/pkg/redis"
)

// IdempotencyGuard is the fast, best-effort dedupe in front of the reconciler.
// The processed_webhook_events row written in the same transaction as the
// state change is the durable one.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark reports true when the event was already seen.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete forgets the event so the sender's retry is processed again.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	return g.store.Del(ctx, key)
}

// ProcessedEvents records applied event ids.
type ProcessedEvents interface {
	WithTx(tx *gorm.DB) ProcessedEvents
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
	Exists(ctx context.Context, eventID string) (bool, error)
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type processedEvents struct {
	repo.Base
}

func NewProcessedEvents(db *gorm.DB) ProcessedEvents {
	return &processedEvents{Base: repo.NewBase(db)}
}

func (p *processedEvents) WithTx(tx *gorm.DB) ProcessedEvents {
	return &processedEvents{Base: p.Tx(tx)}
}

// MarkProcessed inserts the event id, reporting false when it was already there.
func (p *processedEvents) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	res := p.DB(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ProcessedWebhookEvent{EventID: eventID, EventType: eventType})
	return res.RowsAffected == 1, res.Error
}

func (p *processedEvents) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := p.DB(ctx).Model(&models.ProcessedWebhookEvent{}).Where("event_id = ?", eventID).Count(&count).Error
	return count > 0, err
}

// DeleteProcessedBefore forgets events applied before cutoff. The provider
// stops retrying long before any sane retention window.
func (p *processedEvents) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := p.DB(ctx).Where("processed_at < ?", cutoff).Delete(&models.ProcessedWebhookEvent{})
	return res.RowsAffected, res.Error
}
