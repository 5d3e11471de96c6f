package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/axiom-trade/exengine/account"
	"github.com/axiom-trade/exengine/command"
	"github.com/axiom-trade/exengine/currency"
	"github.com/axiom-trade/exengine/event"
	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/money"
	"github.com/axiom-trade/exengine/order"
	"github.com/axiom-trade/exengine/orderstate"
	"github.com/axiom-trade/exengine/position"
)

// Store is a GORM-backed execdb.Database, dispatching to postgres when
// dsn carries a postgres:// scheme and falling back to sqlite otherwise
// (the teacher's New(dbPath) dispatch, unchanged in shape).
type Store struct {
	db *gorm.DB
}

// New opens dsn and migrates the order/position/account schema.
func New(dsn string) (*Store, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("persistence: open postgres: %w", err)
		}
		log.Info().Msg("execution database connected (postgres)")
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("persistence: mkdir %s: %w", dir, err)
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("persistence: open sqlite: %w", err)
		}
		log.Info().Str("path", dsn).Msg("execution database initialized (sqlite)")
	}

	if err := db.AutoMigrate(&orderRow{}, &positionRow{}, &accountRow{}); err != nil {
		return nil, fmt.Errorf("persistence: automigrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) AddOrder(o *order.Order) error {
	row, err := toOrderRow(o)
	if err != nil {
		return err
	}
	return s.db.Create(&row).Error
}

func (s *Store) UpdateOrder(o *order.Order) error {
	row, err := toOrderRow(o)
	if err != nil {
		return err
	}
	return s.db.Save(&row).Error
}

func (s *Store) Order(id identifiers.ClientOrderID) (*order.Order, bool) {
	var row orderRow
	if err := s.db.First(&row, "client_order_id = ?", string(id)).Error; err != nil {
		return nil, false
	}
	o, err := fromOrderRow(row)
	if err != nil {
		log.Error().Err(err).Str("client_order_id", string(id)).Msg("persistence: decode order row")
		return nil, false
	}
	return o, true
}

func (s *Store) Orders() []*order.Order {
	orders, _ := s.LoadOrders()
	return orders
}

func (s *Store) OrdersOpen() []*order.Order {
	var rows []orderRow
	if err := s.db.Where("state NOT IN ?", terminalStateStrings()).Find(&rows).Error; err != nil {
		log.Error().Err(err).Msg("persistence: load open orders")
		return nil
	}
	return decodeOrderRows(rows)
}

func (s *Store) LoadOrders() ([]*order.Order, error) {
	var rows []orderRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return decodeOrderRows(rows), nil
}

func (s *Store) UpsertPosition(p *position.Position) error {
	row := toPositionRow(p)
	return s.db.Save(&row).Error
}

func (s *Store) Position(key position.Key) (*position.Position, bool) {
	var row positionRow
	err := s.db.First(&row, "strategy_id = ? AND symbol = ? AND venue = ? AND asset_class = ? AND asset_type = ?",
		string(key.StrategyID), key.Sec.Symbol, string(key.Sec.Venue), string(key.Sec.AssetClass), string(key.Sec.AssetType)).Error
	if err != nil {
		return nil, false
	}
	return fromPositionRow(row), true
}

func (s *Store) Positions() []*position.Position {
	positions, _ := s.LoadPositions()
	return positions
}

func (s *Store) LoadPositions() ([]*position.Position, error) {
	var rows []positionRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*position.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromPositionRow(r))
	}
	return out, nil
}

func (s *Store) UpdateAccount(a *account.Account) error {
	row := toAccountRow(a)
	return s.db.Save(&row).Error
}

func (s *Store) Account(venue identifiers.Venue) (*account.Account, bool) {
	var row accountRow
	if err := s.db.First(&row, "venue = ?", string(venue)).Error; err != nil {
		return nil, false
	}
	return fromAccountRow(row), true
}

func (s *Store) Accounts() []*account.Account {
	accounts, _ := s.LoadAccounts()
	return accounts
}

func (s *Store) LoadAccounts() ([]*account.Account, error) {
	var rows []accountRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*account.Account, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromAccountRow(r))
	}
	return out, nil
}

func terminalStateStrings() []string {
	return []string{
		string(orderstate.Rejected), string(orderstate.Filled),
		string(orderstate.Cancelled), string(orderstate.Expired),
		string(orderstate.Invalid),
	}
}

func toOrderRow(o *order.Order) (orderRow, error) {
	fillsJSON, err := json.Marshal(o.Fills)
	if err != nil {
		return orderRow{}, fmt.Errorf("persistence: marshal fills: %w", err)
	}
	row := orderRow{
		ClientOrderID: string(o.ClientOrderID),
		OrderID:       string(o.OrderID),
		Symbol:        o.Sec.Symbol,
		Venue:         string(o.Sec.Venue),
		AssetClass:    string(o.Sec.AssetClass),
		AssetType:     string(o.Sec.AssetType),
		StrategyID:    string(o.StrategyID),
		Side:          string(o.Side),
		Type:          string(o.Type),
		TIF:           string(o.TIF),
		Purpose:       o.Purpose,
		Quantity:      o.Quantity.Decimal,
		QtyPrecision:  o.Quantity.Precision,
		ExpireTime:    o.ExpireTime,
		State:         string(o.State),
		FilledQty:     o.FilledQty.Decimal,
		LeavesQty:     o.LeavesQty.Decimal,
		AvgPrice:      o.AvgPrice.Decimal,
		Commission:    o.Commission.Decimal,
		CommissionCcy: o.Commission.Currency.Code,
		FillsJSON:     string(fillsJSON),
		RejectReason:  o.RejectReason,
		LastUpdated:   o.LastUpdated,
	}
	if o.Price != nil {
		row.Price = &o.Price.Decimal
		row.PricePrecision = o.Price.Precision
	}
	if o.TriggerPrice != nil {
		row.TriggerPrice = &o.TriggerPrice.Decimal
	}
	return row, nil
}

func decodeOrderRows(rows []orderRow) []*order.Order {
	out := make([]*order.Order, 0, len(rows))
	for _, r := range rows {
		o, err := fromOrderRow(r)
		if err != nil {
			log.Error().Err(err).Str("client_order_id", r.ClientOrderID).Msg("persistence: decode order row")
			continue
		}
		out = append(out, o)
	}
	return out
}

func fromOrderRow(r orderRow) (*order.Order, error) {
	sec, err := identifiers.NewSecurity(r.Symbol, identifiers.Venue(r.Venue),
		identifiers.AssetClass(r.AssetClass), identifiers.AssetType(r.AssetType))
	if err != nil {
		return nil, err
	}
	var fills []event.Fill
	if r.FillsJSON != "" {
		if err := json.Unmarshal([]byte(r.FillsJSON), &fills); err != nil {
			return nil, fmt.Errorf("persistence: unmarshal fills: %w", err)
		}
	}
	o := &order.Order{
		ClientOrderID: identifiers.ClientOrderID(r.ClientOrderID),
		OrderID:       identifiers.OrderID(r.OrderID),
		Sec:           sec,
		StrategyID:    identifiers.StrategyID(r.StrategyID),
		Side:          command.Side(r.Side),
		Type:          command.Type(r.Type),
		TIF:           command.TimeInForce(r.TIF),
		Purpose:       r.Purpose,
		Quantity:      money.NewQuantity(r.Quantity, r.QtyPrecision),
		ExpireTime:    r.ExpireTime,
		State:         orderstate.State(r.State),
		FilledQty:     money.NewQuantity(r.FilledQty, r.QtyPrecision),
		LeavesQty:     money.NewQuantity(r.LeavesQty, r.QtyPrecision),
		AvgPrice:      money.NewPrice(r.AvgPrice, r.PricePrecision),
		Fills:         fills,
		RejectReason:  r.RejectReason,
		LastUpdated:   r.LastUpdated,
	}
	if r.CommissionCcy != "" {
		o.Commission = money.NewMoney(r.Commission, currency.Currency{Code: r.CommissionCcy, Precision: r.QtyPrecision})
	}
	if r.Price != nil {
		px := money.NewPrice(*r.Price, r.PricePrecision)
		o.Price = &px
	}
	if r.TriggerPrice != nil {
		px := money.NewPrice(*r.TriggerPrice, r.PricePrecision)
		o.TriggerPrice = &px
	}
	return o, nil
}

func toPositionRow(p *position.Position) positionRow {
	return positionRow{
		StrategyID:        string(p.Key.StrategyID),
		Symbol:            p.Key.Sec.Symbol,
		Venue:             string(p.Key.Sec.Venue),
		AssetClass:        string(p.Key.Sec.AssetClass),
		AssetType:         string(p.Key.Sec.AssetType),
		Side:              string(p.Side),
		Quantity:          p.Quantity,
		AvgEntryPrice:     p.AvgEntryPrice.Decimal,
		AvgEntryPrecision: p.AvgEntryPrice.Precision,
		RealizedPnL:       p.RealizedPnL.Decimal,
		UnrealizedPnL:     p.UnrealizedPnL.Decimal,
		QuoteCurrency:     p.RealizedPnL.Currency.Code,
	}
}

func fromPositionRow(r positionRow) *position.Position {
	sec := identifiers.Security{
		Symbol: r.Symbol, Venue: identifiers.Venue(r.Venue),
		AssetClass: identifiers.AssetClass(r.AssetClass), AssetType: identifiers.AssetType(r.AssetType),
	}
	ccy := currency.Currency{Code: r.QuoteCurrency, Precision: 8}
	return &position.Position{
		Key:           position.Key{StrategyID: identifiers.StrategyID(r.StrategyID), Sec: sec},
		Side:          position.Side(r.Side),
		Quantity:      r.Quantity,
		AvgEntryPrice: money.NewPrice(r.AvgEntryPrice, r.AvgEntryPrecision),
		RealizedPnL:   money.NewMoney(r.RealizedPnL, ccy),
		UnrealizedPnL: money.NewMoney(r.UnrealizedPnL, ccy),
	}
}

func toAccountRow(a *account.Account) accountRow {
	return accountRow{
		Venue:      string(a.Venue),
		Balance:    a.Balance.Decimal,
		UsedMargin: a.UsedMargin.Decimal,
		FreeMargin: a.FreeMargin.Decimal,
		Currency:   a.Balance.Currency.Code,
		MarginCall: a.MarginCall,
		UpdatedAt:  a.UpdatedAt,
	}
}

func fromAccountRow(r accountRow) *account.Account {
	ccy := currency.Currency{Code: r.Currency, Precision: 8}
	return &account.Account{
		Venue:      identifiers.Venue(r.Venue),
		Balance:    money.NewMoney(r.Balance, ccy),
		UsedMargin: money.NewMoney(r.UsedMargin, ccy),
		FreeMargin: money.NewMoney(r.FreeMargin, ccy),
		MarginCall: r.MarginCall,
		UpdatedAt:  r.UpdatedAt,
	}
}
