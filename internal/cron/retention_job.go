package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/pkg/logger"
)

const (
	defaultOutboxRetention  = 30 * 24 * time.Hour
	defaultWebhookRetention = 90 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedOutbox interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type processedWebhooks interface {
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type RetentionJobParams struct {
	Logger           *logger.Logger
	DB               txRunner
	Outbox           publishedOutbox
	Webhooks         processedWebhooks
	OutboxRetention  time.Duration
	WebhookRetention time.Duration
	Now              func() time.Time
}

// NewRetentionJob prunes published outbox rows and old processed webhook ids.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.DB == nil {
		return nil, errors.New("db runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox repository required")
	}
	if params.Webhooks == nil {
		return nil, errors.New("processed webhook store required")
	}
	job := &retentionJob{
		logg:             params.Logger,
		db:               params.DB,
		outbox:           params.Outbox,
		webhooks:         params.Webhooks,
		outboxRetention:  params.OutboxRetention,
		webhookRetention: params.WebhookRetention,
		now:              params.Now,
	}
	if job.outboxRetention <= 0 {
		job.outboxRetention = defaultOutboxRetention
	}
	if job.webhookRetention <= 0 {
		job.webhookRetention = defaultWebhookRetention
	}
	if job.now == nil {
		job.now = time.Now
	}
	return job, nil
}

type retentionJob struct {
	logg             *logger.Logger
	db               txRunner
	outbox           publishedOutbox
	webhooks         processedWebhooks
	outboxRetention  time.Duration
	webhookRetention time.Duration
	now              func() time.Time
}

func (j *retentionJob) Name() string { return "retention" }

func (j *retentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	outboxCutoff := now.Add(-j.outboxRetention)
	webhookCutoff := now.Add(-j.webhookRetention)

	var outboxDeleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.outbox.DeletePublishedBefore(tx, outboxCutoff)
		outboxDeleted = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("prune outbox: %w", err)
	}
	webhooksDeleted, err := j.webhooks.DeleteProcessedBefore(ctx, webhookCutoff)
	if err != nil {
		return fmt.Errorf("prune processed webhooks: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"outbox_cutoff":    outboxCutoff,
		"outbox_deleted":   outboxDeleted,
		"webhook_cutoff":   webhookCutoff,
		"webhooks_deleted": webhooksDeleted,
	}), "retention cleanup complete")
	return nil
}
