package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
)

// WebhookLedgerEntry is the durable dedup record for gateway events. The
// unique gateway_event_id makes replayed deliveries no-ops even after the
// redis guard key expires.
type WebhookLedgerEntry struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Provider       string                 `gorm:"column:provider;not null;default:'stripe'"`
	GatewayEventID string                 `gorm:"column:gateway_event_id;not null;unique"`
	EventKind      enums.GatewayEventKind `gorm:"column:event_kind;type:gateway_event_kind;not null"`
	BookingID      *uuid.UUID             `gorm:"column:booking_id;type:uuid;index"`
	Sequence       int64                  `gorm:"column:sequence;not null;default:0"`
	Outcome        enums.IngestOutcome    `gorm:"column:outcome;type:ingest_outcome;not null"`
	Payload        json.RawMessage        `gorm:"column:payload;type:jsonb"`
	ReceivedAt     time.Time              `gorm:"column:received_at;not null"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
}
