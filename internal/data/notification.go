package data

import (
	"context"
	"encoding/json"
	"time"

	pkgerrors "OrderSaga/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// Notification is the GORM model for the notifications table.
type Notification struct {
	ID        int64           `gorm:"primaryKey;column:id" json:"id"`
	Type      string          `gorm:"column:type;type:varchar(16);not null" json:"type"`
	To        string          `gorm:"column:recipient;type:varchar(128)" json:"to"`
	Message   string          `gorm:"column:message;type:varchar(255)" json:"message"`
	Metadata  json.RawMessage `gorm:"column:metadata;type:json" json:"metadata,omitempty"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// TableName specifies the table name for GORM.
func (Notification) TableName() string {
	return "notifications"
}

// NotificationRepo implements biz.NotificationRepo.
type NotificationRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewNotificationRepo creates a new notification repository.
func NewNotificationRepo(db *gorm.DB, logger log.Logger) *NotificationRepo {
	return &NotificationRepo{db: db, logger: log.NewHelper(logger)}
}

// Create stores a notification.
func (r *NotificationRepo) Create(ctx context.Context, n *Notification) error {
	if len(n.Metadata) == 0 {
		n.Metadata = json.RawMessage("{}")
	}
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		dbErr := pkgerrors.ClassifyDBError(err)
		r.logger.Errorw("msg", "failed to save notification", "type", n.Type, "error", dbErr.Error())
		return dbErr
	}
	return nil
}
