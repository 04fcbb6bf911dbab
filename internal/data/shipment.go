package data

import (
	"context"
	"time"

	pkgerrors "OrderSaga/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ShipmentCreated is the initial shipment status.
const ShipmentCreated = "created"

// Shipment is the GORM model for the shipments table.
type Shipment struct {
	ID         int64     `gorm:"primaryKey;column:id" json:"-"`
	ShipmentID string    `gorm:"column:shipment_id;type:varchar(36);uniqueIndex;not null" json:"shipmentId"`
	OrderID    string    `gorm:"column:order_id;type:varchar(36);uniqueIndex;not null" json:"orderId"`
	Status     string    `gorm:"column:status;type:varchar(16);not null" json:"status"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// TableName specifies the table name for GORM.
func (Shipment) TableName() string {
	return "shipments"
}

// ShipmentRepo implements biz.ShipmentRepo.
type ShipmentRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewShipmentRepo creates a new shipment repository.
func NewShipmentRepo(db *gorm.DB, logger log.Logger) *ShipmentRepo {
	return &ShipmentRepo{db: db, logger: log.NewHelper(logger)}
}

// CreateForOrder creates the order's shipment. created is false when the
// order already had one, so a duplicate payment_completed is harmless.
func (r *ShipmentRepo) CreateForOrder(ctx context.Context, orderID string) (shipment *Shipment, created bool, err error) {
	s := &Shipment{ShipmentID: uuid.NewString(), OrderID: orderID, Status: ShipmentCreated}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(s)
	if result.Error != nil {
		return nil, false, pkgerrors.ClassifyDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		r.logger.Debugw("msg", "shipment already exists", "order_id", orderID)
		return s, false, nil
	}
	return s, true, nil
}
