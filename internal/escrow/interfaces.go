package escrow

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmedina-dev/hauldash-backend/pkg/db/models"
)

// Repository defines persistence operations for payment records. The webhook
// reconciler shares this repository for its correlation and fallback lookups.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePaymentRecord(ctx context.Context, record *models.PaymentRecord) (*models.PaymentRecord, error)
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.PaymentRecord, error)
	FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*models.PaymentRecord, error)
	FindByGatewayRef(ctx context.Context, gatewayRef string) (*models.PaymentRecord, error)
	UpdatePaymentRecord(ctx context.Context, recordID uuid.UUID, updates map[string]any) error
}
