package domain

import (
	"time"

	"github.com/google/uuid"
)

// Credentials is an exchange API key pair. Each account signs with its own pair.
type Credentials struct {
	APIKey    string `json:"-"`
	APISecret string `json:"-"`
}

// IsZero reports whether either half of the key pair is missing
func (c Credentials) IsZero() bool {
	return c.APIKey == "" || c.APISecret == ""
}

// BrokerAccount is a master trading account whose positions are mirrored
type BrokerAccount struct {
	ID            uuid.UUID   `json:"id"`
	UserID        uuid.UUID   `json:"user_id"`
	AccountName   string      `json:"account_name"`
	BrokerName    string      `json:"broker_name"`
	Credentials   Credentials `json:"-"`
	IsActive      bool        `json:"is_active"`
	IsVerified    bool        `json:"is_verified"`
	AccountStatus string      `json:"account_status"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// AccountStatus constants shared by broker accounts and followers
const (
	AccountStatusActive   = "active"
	AccountStatusPaused   = "paused"
	AccountStatusInactive = "inactive"
)

// Monitorable reports whether the poller should keep watching this account
func (b *BrokerAccount) Monitorable() bool {
	return b.IsActive && !b.Credentials.IsZero()
}
