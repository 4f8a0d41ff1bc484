package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
)

// Listing is a provider's published rate card for one service category.
type Listing struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProviderID       uuid.UUID             `gorm:"column:provider_id;type:uuid;not null;index"`
	Category         enums.ServiceCategory `gorm:"column:category;type:service_category;not null"`
	Title            string                `gorm:"column:title;not null"`
	BaseRateCents    int64                 `gorm:"column:base_rate_cents;not null"`
	PerMileRateCents int64                 `gorm:"column:per_mile_rate_cents;not null"`
	PerMinRateCents  int64                 `gorm:"column:per_min_rate_cents;not null;default:0"`
	MaxDistanceMiles float64               `gorm:"column:max_distance_miles;type:numeric(8,2);not null;default:0"`
	IsActive         bool                  `gorm:"column:is_active;not null;default:true"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
