package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// User is a tenant of the engine. One user maps to exactly one
// SecureWallet; the relationship is enforced by the unique index on
// SecureWallet.UserID rather than a foreign key default, since wallets
// are created lazily.
type User struct {
	gorm.Model
	ExternalID string `gorm:"size:128;uniqueIndex;not null"` // caller-supplied tenant identifier
	Active     bool   `gorm:"default:true;index"`
	Preferences Preferences `gorm:"foreignKey:UserID"`
}

// Preferences holds the per-user knobs the scheduler and scanner consult
// on every cycle. Strategies is a Postgres text[] rather than a join
// table since membership is small and read far more than written.
type Preferences struct {
	gorm.Model
	UserID            uint           `gorm:"uniqueIndex;not null"`
	MinTradingBalance float64        `gorm:"default:0.01"`
	Strategies        pq.StringArray `gorm:"type:text[]"`
	MaxSlippageBps    int            `gorm:"default:50"`
	NotifyOnTrade     bool           `gorm:"default:true"`
	UpdatedAt         time.Time
}
