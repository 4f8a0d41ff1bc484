package stripewebhook

import (
	"context"

	"gorm.io/gorm"

	"github.com/rmedina-dev/hauldash-backend/pkg/db/models"
)

// LedgerRepository persists the durable record of every ingested gateway
// event. The unique gateway event id is what makes replays harmless.
type LedgerRepository interface {
	WithTx(tx *gorm.DB) LedgerRepository
	FindByGatewayEventID(ctx context.Context, provider, eventID string) (*models.WebhookLedgerEntry, error)
	Append(ctx context.Context, entry *models.WebhookLedgerEntry) error
}

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository builds a webhook ledger repository bound to the provided DB.
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) WithTx(tx *gorm.DB) LedgerRepository {
	if tx == nil {
		return r
	}
	return &ledgerRepository{db: tx}
}

func (r *ledgerRepository) FindByGatewayEventID(ctx context.Context, provider, eventID string) (*models.WebhookLedgerEntry, error) {
	var entry models.WebhookLedgerEntry
	err := r.db.WithContext(ctx).
		Where("provider = ? AND gateway_event_id = ?", provider, eventID).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *ledgerRepository) Append(ctx context.Context, entry *models.WebhookLedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
