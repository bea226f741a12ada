package dto

import (
	"time"

	"copytrade/internal/domain"
)

// BrokerOutput represents a master account in API responses. Secrets never leave the server.
type BrokerOutput struct {
	ID            string    `json:"id"`
	AccountName   string    `json:"account_name"`
	BrokerName    string    `json:"broker_name"`
	APIKeyHint    string    `json:"api_key_hint"`
	IsActive      bool      `json:"is_active"`
	IsVerified    bool      `json:"is_verified"`
	AccountStatus string    `json:"account_status"`
	Monitored     bool      `json:"monitored"`
	CreatedAt     time.Time `json:"created_at"`
}

// FollowerOutput represents a follower in API responses
type FollowerOutput struct {
	ID                    string            `json:"id"`
	FollowerName          string            `json:"follower_name"`
	MasterBrokerAccountID string            `json:"master_broker_account_id"`
	APIKeyHint            string            `json:"api_key_hint"`
	CopyConfig            domain.CopyConfig `json:"copy_config"`
	AccountStatus         string            `json:"account_status"`
	IsVerified            bool              `json:"is_verified"`
	CreatedAt             time.Time         `json:"created_at"`
}

// KeyHint keeps the last four characters of an API key
func KeyHint(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// NewBrokerOutput converts a broker account for the API
func NewBrokerOutput(b *domain.BrokerAccount, monitored bool) BrokerOutput {
	return BrokerOutput{
		ID:            b.ID.String(),
		AccountName:   b.AccountName,
		BrokerName:    b.BrokerName,
		APIKeyHint:    KeyHint(b.Credentials.APIKey),
		IsActive:      b.IsActive,
		IsVerified:    b.IsVerified,
		AccountStatus: b.AccountStatus,
		Monitored:     monitored,
		CreatedAt:     b.CreatedAt,
	}
}

// NewFollowerOutput converts a follower for the API
func NewFollowerOutput(f *domain.Follower) FollowerOutput {
	return FollowerOutput{
		ID:                    f.ID.String(),
		FollowerName:          f.FollowerName,
		MasterBrokerAccountID: f.MasterBrokerAccountID.String(),
		APIKeyHint:            KeyHint(f.Credentials.APIKey),
		CopyConfig:            f.CopyConfig,
		AccountStatus:         f.AccountStatus,
		IsVerified:            f.IsVerified,
		CreatedAt:             f.CreatedAt,
	}
}
