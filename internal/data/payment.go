package data

import (
	"context"
	"time"

	pkgerrors "OrderSaga/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentStatus is the ledger status of a payment record.
type PaymentStatus string

// Payment status constants.
const (
	PaymentInitiated PaymentStatus = "initiated"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment is the GORM model for the payments table. One row per order.
type Payment struct {
	ID        int64           `gorm:"primaryKey;column:id" json:"-"`
	OrderID   string          `gorm:"column:order_id;type:varchar(36);uniqueIndex;not null" json:"orderId"`
	PaymentID string          `gorm:"column:payment_id;type:varchar(64)" json:"paymentId,omitempty"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(14,2);not null" json:"amount"`
	Method    string          `gorm:"column:method;type:varchar(16);default:card;not null" json:"method"`
	Status    PaymentStatus   `gorm:"column:status;type:varchar(16);not null" json:"status"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name for GORM.
func (Payment) TableName() string {
	return "payments"
}

// PaymentRepo implements biz.PaymentRepo.
type PaymentRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewPaymentRepo creates a new payment ledger repository.
func NewPaymentRepo(db *gorm.DB, logger log.Logger) *PaymentRepo {
	return &PaymentRepo{db: db, logger: log.NewHelper(logger)}
}

// RecordInitiated inserts an initiated payment unless one already exists
// for the order; an existing row (possibly already settled) is kept.
func (r *PaymentRepo) RecordInitiated(ctx context.Context, orderID string, amount decimal.Decimal) error {
	p := &Payment{OrderID: orderID, Amount: amount, Method: "card", Status: PaymentInitiated}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(p).Error
	if err != nil {
		return pkgerrors.ClassifyDBError(err)
	}
	return nil
}

// Settle records the final outcome, creating the row when the initiated
// record was never written.
func (r *PaymentRepo) Settle(ctx context.Context, orderID, paymentID string, amount decimal.Decimal, status PaymentStatus) error {
	p := &Payment{OrderID: orderID, PaymentID: paymentID, Amount: amount, Method: "card", Status: status}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payment_id", "status", "updated_at"}),
		}).
		Create(p).Error
	if err != nil {
		dbErr := pkgerrors.ClassifyDBError(err)
		r.logger.Errorw("msg", "failed to settle payment", "order_id", orderID, "status", status, "error", dbErr.Error())
		return dbErr
	}
	return nil
}

// GetByOrder returns the payment row of an order.
func (r *PaymentRepo) GetByOrder(ctx context.Context, orderID string) (*Payment, error) {
	var p Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&p).Error; err != nil {
		return nil, pkgerrors.ClassifyDBError(err)
	}
	return &p, nil
}
