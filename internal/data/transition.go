package data

import (
	"context"
	"sync"
	"time"

	pkgerrors "OrderSaga/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

const transitionQueueSize = 1000

// Transition is the GORM model for the order_transitions table: one row
// per saga step so a run can be replayed after the fact.
type Transition struct {
	ID        int64     `gorm:"primaryKey;column:id" json:"-"`
	OrderID   string    `gorm:"column:order_id;type:varchar(36);not null;index" json:"orderId"`
	Step      string    `gorm:"column:step;type:varchar(32);not null" json:"step"`
	From      string    `gorm:"column:from_state;type:varchar(32);not null" json:"from"`
	To        string    `gorm:"column:to_state;type:varchar(32);not null" json:"to"`
	Reason    string    `gorm:"column:reason;type:varchar(255)" json:"reason,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"at"`
}

// TableName specifies the table name for GORM.
func (Transition) TableName() string {
	return "order_transitions"
}

// TransitionLog persists saga transitions asynchronously. Append never
// blocks the saga: when the queue is full the row is dropped and logged.
type TransitionLog struct {
	db     *gorm.DB
	queue  chan *Transition
	logger *log.Helper

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewTransitionLog starts the background writer. The cleanup drains the
// queue before returning.
func NewTransitionLog(db *gorm.DB, logger log.Logger) (*TransitionLog, func()) {
	tl := &TransitionLog{
		db:     db,
		queue:  make(chan *Transition, transitionQueueSize),
		logger: log.NewHelper(logger),
		done:   make(chan struct{}),
	}
	go tl.run()
	return tl, tl.Close
}

func (l *TransitionLog) run() {
	defer close(l.done)
	for t := range l.queue {
		if err := l.db.WithContext(context.Background()).Create(t).Error; err != nil {
			l.logger.Errorw("msg", "failed to write order transition",
				"order_id", t.OrderID,
				"step", t.Step,
				"error", pkgerrors.ClassifyDBError(err).Error())
		}
	}
}

// Append queues a transition without blocking.
func (l *TransitionLog) Append(_ context.Context, t *Transition) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}

	select {
	case l.queue <- t:
	default:
		l.logger.Warnw("msg", "transition queue full, dropping row",
			"order_id", t.OrderID,
			"step", t.Step)
	}
}

// List returns the persisted transitions of an order, oldest first.
func (l *TransitionLog) List(ctx context.Context, orderID string) ([]*Transition, error) {
	var rows []*Transition
	err := l.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.ClassifyDBError(err)
	}
	return rows, nil
}

// Close stops accepting rows and waits for queued ones to be written.
func (l *TransitionLog) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
}
