// Package persistence is the GORM-backed execdb.Database implementation.
//
// Grounded on internal/database/database.go's New(dbPath) dual
// postgres/sqlite dispatch and AutoMigrate call from the teacher repo;
// the row types here replace that file's Market/Trade/ArbTrade models
// with the order/position/account shapes this engine actually needs.
package persistence

import (
	"time"

	"github.com/shopspring/decimal"
)

// orderRow is the persisted shape of an order.Order. Fill history is kept
// as a JSON-encoded blob rather than a join table, matching the teacher's
// preference for flat rows over normalized schemas.
type orderRow struct {
	ClientOrderID string `gorm:"primaryKey"`
	OrderID       string `gorm:"index"`
	Symbol        string `gorm:"index"`
	Venue         string `gorm:"index"`
	AssetClass    string
	AssetType     string
	StrategyID    string `gorm:"index"`

	Side    string
	Type    string
	TIF     string
	Purpose string

	Quantity     decimal.Decimal `gorm:"type:decimal(32,12)"`
	QtyPrecision uint8
	Price        *decimal.Decimal `gorm:"type:decimal(32,12)"`
	PricePrecision uint8
	TriggerPrice *decimal.Decimal `gorm:"type:decimal(32,12)"`
	ExpireTime   *time.Time

	State string

	FilledQty    decimal.Decimal `gorm:"type:decimal(32,12)"`
	LeavesQty    decimal.Decimal `gorm:"type:decimal(32,12)"`
	AvgPrice     decimal.Decimal `gorm:"type:decimal(32,12)"`
	Commission   decimal.Decimal `gorm:"type:decimal(32,12)"`
	CommissionCcy string

	FillsJSON    string `gorm:"type:text"`
	RejectReason string
	LastUpdated  time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (orderRow) TableName() string { return "orders" }

// positionRow is the persisted shape of a position.Position.
type positionRow struct {
	StrategyID string `gorm:"primaryKey;column:strategy_id"`
	Symbol     string `gorm:"primaryKey;column:symbol"`
	Venue      string `gorm:"primaryKey;column:venue"`
	AssetClass string `gorm:"primaryKey;column:asset_class"`
	AssetType  string `gorm:"primaryKey;column:asset_type"`

	Side              string
	Quantity          decimal.Decimal `gorm:"type:decimal(32,12)"`
	AvgEntryPrice     decimal.Decimal `gorm:"type:decimal(32,12)"`
	AvgEntryPrecision uint8
	RealizedPnL       decimal.Decimal `gorm:"type:decimal(32,12)"`
	UnrealizedPnL     decimal.Decimal `gorm:"type:decimal(32,12)"`
	QuoteCurrency     string

	UpdatedAt time.Time
}

func (positionRow) TableName() string { return "positions" }

// accountRow is the persisted shape of an account.Account.
type accountRow struct {
	Venue      string `gorm:"primaryKey"`
	Balance    decimal.Decimal `gorm:"type:decimal(32,12)"`
	UsedMargin decimal.Decimal `gorm:"type:decimal(32,12)"`
	FreeMargin decimal.Decimal `gorm:"type:decimal(32,12)"`
	Currency   string
	MarginCall bool
	UpdatedAt  time.Time
}

func (accountRow) TableName() string { return "accounts" }
