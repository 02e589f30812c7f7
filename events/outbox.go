package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// OutboxEvent is the transactional outbox row. Services create one in the
// same database transaction as the state change it announces, so a committed
// transition always has its event on disk. The dispatcher delivers rows
// asynchronously; delivery is therefore at-least-once and consumers must be
// idempotent.
type OutboxEvent struct {
	ID        uint64 `gorm:"primaryKey"`
	Kind      string `gorm:"not null;index"`
	Payload   []byte `gorm:"not null"`
	Source    string `gorm:"not null"`
	UserID    string
	Attempts  int `gorm:"not null;default:0"`
	LastError *string
	SentAt    *time.Time `gorm:"index"`
	CreatedAt time.Time  `gorm:"not null"`
}

// PublishTx enqueues an event inside the caller's transaction. A marshal
// failure is returned so the caller can log it, but callers must not abort
// their transaction over it: the committed state change is the source of
// truth, a lost event only degrades downstream freshness.
func PublishTx(tx *gorm.DB, kind string, payload any, meta Meta) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	row := OutboxEvent{
		Kind:    kind,
		Payload: body,
		Source:  meta.Source,
		UserID:  meta.UserID,
	}
	if err := tx.Create(&row).Error; err != nil {
		return err
	}
	outboxEnqueued.WithLabelValues(kind).Inc()
	return nil
}

// Dispatcher drains the outbox into a Sink. Failed deliveries are retried on
// later polls up to MaxAttempts, then dropped with a log line and a counter
// bump. Nothing here ever propagates an error back to the services that
// enqueued the event.
type Dispatcher struct {
	db     *gorm.DB
	sink   Sink
	logger *slog.Logger

	limiter      *rate.Limiter
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

func NewDispatcher(db *gorm.DB, sink Sink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		db:           db,
		sink:         sink,
		logger:       logger.With("system", "outbox"),
		limiter:      rate.NewLimiter(rate.Limit(200), 20),
		PollInterval: time.Second,
		BatchSize:    100,
		MaxAttempts:  5,
	}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.DispatchBatch(ctx); err != nil {
				d.logger.Error("outbox poll failed", "err", err)
			}
		}
	}
}

// DispatchBatch delivers one batch of unsent rows. Exposed for tests and for
// callers that want to drain synchronously.
func (d *Dispatcher) DispatchBatch(ctx context.Context) error {
	var rows []OutboxEvent
	err := d.db.Where("sent_at IS NULL AND attempts < ?", d.MaxAttempts).
		Order("id asc").Limit(d.BatchSize).Find(&rows).Error
	if err != nil {
		return err
	}

	for i := range rows {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		d.dispatchOne(ctx, &rows[i])
	}
	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, row *OutboxEvent) {
	evt := &Event{
		ID:        row.ID,
		Kind:      row.Kind,
		Payload:   row.Payload,
		Meta:      Meta{Source: row.Source, UserID: row.UserID},
		CreatedAt: row.CreatedAt,
	}

	if err := d.sink.AddEvent(ctx, evt); err != nil {
		outboxDeliveryFailures.WithLabelValues(row.Kind).Inc()
		row.Attempts++
		msg := err.Error()
		row.LastError = &msg
		if row.Attempts >= d.MaxAttempts {
			outboxDropped.WithLabelValues(row.Kind).Inc()
			d.logger.Error("giving up on outbox event", "kind", row.Kind, "id", row.ID, "attempts", row.Attempts, "err", err)
		} else {
			d.logger.Warn("outbox delivery failed, will retry", "kind", row.Kind, "id", row.ID, "attempts", row.Attempts, "err", err)
		}
		if uerr := d.db.Model(row).Updates(map[string]any{"attempts": row.Attempts, "last_error": msg}).Error; uerr != nil {
			d.logger.Error("failed to record outbox delivery failure", "id", row.ID, "err", uerr)
		}
		return
	}

	now := time.Now()
	if err := d.db.Model(row).Update("sent_at", &now).Error; err != nil {
		d.logger.Error("failed to mark outbox event sent", "id", row.ID, "err", err)
		return
	}
	outboxDelivered.WithLabelValues(row.Kind).Inc()
}
