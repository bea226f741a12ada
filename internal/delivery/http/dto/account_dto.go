package dto

import (
	"strings"

	"copytrade/internal/domain"
)

// LinkBrokerRequest links an exchange account as a master
type LinkBrokerRequest struct {
	AccountName string `json:"account_name"`
	BrokerName  string `json:"broker_name"`
	APIKey      string `json:"api_key"`
	APISecret   string `json:"api_secret"`
}

// Trim strips surrounding whitespace from every field
func (r *LinkBrokerRequest) Trim() {
	r.AccountName = strings.TrimSpace(r.AccountName)
	r.BrokerName = strings.TrimSpace(r.BrokerName)
	r.APIKey = strings.TrimSpace(r.APIKey)
	r.APISecret = strings.TrimSpace(r.APISecret)
}

// LinkBrokerResponse is the new account plus the ids of accounts it replaced
type LinkBrokerResponse struct {
	Broker   BrokerOutput `json:"broker"`
	Replaced []string     `json:"replaced"`
}

// FollowerSettings is a partial copy config; nil fields keep their current value
type FollowerSettings struct {
	CopyMode          *string   `json:"copy_mode"`
	Multiplier        *float64  `json:"multiplier"`
	FixedLot          *float64  `json:"fixed_lot"`
	FixedAmount       *float64  `json:"fixed_amount"`
	Percentage        *float64  `json:"percentage"`
	MinLotSize        *float64  `json:"min_lot_size"`
	MaxLotSize        *float64  `json:"max_lot_size"`
	ReverseDirection  *bool     `json:"reverse_direction"`
	CopyPositionClose *bool     `json:"copy_position_close"`
	SymbolFilter      *[]string `json:"symbol_filter"`
}

// Apply overlays the settings on cfg
func (s *FollowerSettings) Apply(cfg domain.CopyConfig) domain.CopyConfig {
	if s == nil {
		return cfg
	}
	if s.CopyMode != nil {
		cfg.Mode = domain.CopyMode(strings.ToLower(strings.TrimSpace(*s.CopyMode)))
	}
	setFloat(&cfg.Multiplier, s.Multiplier)
	setFloat(&cfg.FixedLot, s.FixedLot)
	setFloat(&cfg.FixedAmount, s.FixedAmount)
	setFloat(&cfg.Percentage, s.Percentage)
	setFloat(&cfg.MinLotSize, s.MinLotSize)
	setFloat(&cfg.MaxLotSize, s.MaxLotSize)
	if s.ReverseDirection != nil {
		cfg.ReverseDirection = *s.ReverseDirection
	}
	if s.CopyPositionClose != nil {
		cfg.CopyPositionClose = *s.CopyPositionClose
	}
	if s.SymbolFilter != nil {
		cfg.SymbolFilter = append([]string{}, (*s.SymbolFilter)...)
	}
	cfg.NormalizeSymbols()
	return cfg
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// CreateFollowerRequest links a follower account to a master
type CreateFollowerRequest struct {
	FollowerName          string            `json:"follower_name"`
	MasterBrokerAccountID string            `json:"master_broker_account_id"`
	APIKey                string            `json:"api_key"`
	APISecret             string            `json:"api_secret"`
	Settings              *FollowerSettings `json:"settings"`
}

// UpdateSettingsRequest changes a follower's copy settings
type UpdateSettingsRequest struct {
	Settings *FollowerSettings `json:"settings"`
}
