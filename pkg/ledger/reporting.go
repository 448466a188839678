package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reporter generates expiry and valuation reports over the batch ledger
// バッチ台帳に対する期限・評価レポートを生成
type Reporter struct {
	storage Storage
	logger  *zap.Logger
	config  *Config

	// テストで差し替え可能な時刻関数
	nowFunc func() time.Time
}

// NewReporter creates a new reporter
// 新しいレポーターを作成
func NewReporter(storage Storage, logger *zap.Logger, config *Config) *Reporter {
	if config == nil {
		config = &Config{
			DefaultReorderLevel: 10,
			NearExpiryDays:      30,
			AlertsEnabled:       true,
		}
	}

	return &Reporter{
		storage: storage,
		logger:  logger,
		config:  config,
		nowFunc: time.Now,
	}
}

// ExpiringBatch is one row of the expiring stock report
// 期限切れ間近在庫レポートの1行を表現
type ExpiringBatch struct {
	ProductID      string          `json:"product_id"`
	ProductName    string          `json:"product_name"`
	BatchID        string          `json:"batch_id"`
	BatchNumber    string          `json:"batch_number"`
	ExpirationDate time.Time       `json:"expiration_date"`
	DaysUntil      int             `json:"days_until"`
	Quantity       int64           `json:"quantity"`
	ValueAtCost    decimal.Decimal `json:"value_at_cost"`
}

// ExpiredBatchRow is one row of the expired stock report
// 期限切れ在庫レポートの1行を表現
type ExpiredBatchRow struct {
	ProductID      string          `json:"product_id"`
	ProductName    string          `json:"product_name"`
	BatchID        string          `json:"batch_id"`
	BatchNumber    string          `json:"batch_number"`
	ExpirationDate time.Time       `json:"expiration_date"`
	DaysExpired    int             `json:"days_expired"`
	Quantity       int64           `json:"quantity"`
	ValueAtCost    decimal.Decimal `json:"value_at_cost"`
}

// Valuation holds the cost and retail value of sellable stock
// 販売可能在庫の原価・売価評価を保持
type Valuation struct {
	ProductID    string          `json:"product_id,omitempty"`
	Quantity     int64           `json:"quantity"`
	ValueAtCost  decimal.Decimal `json:"value_at_cost"`
	ValueAtPrice decimal.Decimal `json:"value_at_price"`
}

// DashboardSummary aggregates headline figures for the whole ledger
// 台帳全体の主要指標を集計
type DashboardSummary struct {
	TotalProducts   int             `json:"total_products"`
	LowStockCount   int             `json:"low_stock_count"`
	ExpiringBatches int             `json:"expiring_batches"`
	ExpiredBatches  int             `json:"expired_batches"`
	TotalQuantity   int64           `json:"total_quantity"`
	ValueAtCost     decimal.Decimal `json:"value_at_cost"`
	ValueAtPrice    decimal.Decimal `json:"value_at_price"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// ExpiringReport lists batches that still hold quantity and expire within
// the given duration
// 指定期間内に期限切れとなる残数量ありのバッチを一覧
func (r *Reporter) ExpiringReport(ctx context.Context, within time.Duration) ([]ExpiringBatch, error) {
	if within <= 0 {
		return nil, NewValidationError("within", "期間は正の値である必要があります", within.String())
	}

	products, err := r.allProducts(ctx)
	if err != nil {
		return nil, err
	}

	at := r.nowFunc()
	var rows []ExpiringBatch

	for i := range products {
		p := &products[i]
		for j := range p.Batches {
			b := &p.Batches[j]
			if !b.IsExpiringSoon(at, within) {
				continue
			}
			days := int(b.ExpirationDate.Sub(at).Hours() / 24)
			rows = append(rows, ExpiringBatch{
				ProductID:      p.ID,
				ProductName:    p.Name,
				BatchID:        b.ID,
				BatchNumber:    b.BatchNumber,
				ExpirationDate: b.ExpirationDate,
				DaysUntil:      days,
				Quantity:       b.QuantityRemaining,
				ValueAtCost:    b.UnitCost.Mul(decimal.NewFromInt(b.QuantityRemaining)),
			})
		}
	}

	r.logger.Info("期限間近レポート生成完了",
		zap.Duration("within", within),
		zap.Int("count", len(rows)),
	)

	return rows, nil
}

// ExpiredReport lists batches holding quantity that is already past expiry
// 既に期限切れで残数量を持つバッチを一覧
func (r *Reporter) ExpiredReport(ctx context.Context) ([]ExpiredBatchRow, error) {
	products, err := r.allProducts(ctx)
	if err != nil {
		return nil, err
	}

	at := r.nowFunc()
	var rows []ExpiredBatchRow

	for i := range products {
		p := &products[i]
		for _, b := range p.ExpiredBatches(at) {
			days := int(at.Sub(b.ExpirationDate).Hours() / 24)
			rows = append(rows, ExpiredBatchRow{
				ProductID:      p.ID,
				ProductName:    p.Name,
				BatchID:        b.ID,
				BatchNumber:    b.BatchNumber,
				ExpirationDate: b.ExpirationDate,
				DaysExpired:    days,
				Quantity:       b.QuantityRemaining,
				ValueAtCost:    b.UnitCost.Mul(decimal.NewFromInt(b.QuantityRemaining)),
			})
		}
	}

	r.logger.Info("期限切れレポート生成完了",
		zap.Int("count", len(rows)),
	)

	return rows, nil
}

// ProductValuation values one product's sellable stock at cost and at price
// 1商品の販売可能在庫を原価と売価で評価
func (r *Reporter) ProductValuation(ctx context.Context, productID string) (*Valuation, error) {
	if err := ValidateProductID(productID); err != nil {
		return nil, err
	}

	product, err := r.storage.GetProduct(ctx, productID)
	if err != nil {
		if err == ErrProductNotFound {
			return nil, ErrProductNotFound
		}
		return nil, NewStorageError("get_product", "商品取得に失敗しました", err)
	}

	v := valueProduct(product, r.nowFunc())
	v.ProductID = productID
	return v, nil
}

// TotalValuation values the entire sellable inventory
// 販売可能在庫全体を評価
func (r *Reporter) TotalValuation(ctx context.Context) (*Valuation, error) {
	products, err := r.allProducts(ctx)
	if err != nil {
		return nil, err
	}

	at := r.nowFunc()
	total := &Valuation{
		ValueAtCost:  decimal.Zero,
		ValueAtPrice: decimal.Zero,
	}

	for i := range products {
		v := valueProduct(&products[i], at)
		total.Quantity += v.Quantity
		total.ValueAtCost = total.ValueAtCost.Add(v.ValueAtCost)
		total.ValueAtPrice = total.ValueAtPrice.Add(v.ValueAtPrice)
	}

	return total, nil
}

// Dashboard collects headline figures in one pass over the inventory
// 在庫を1回走査して主要指標を収集
func (r *Reporter) Dashboard(ctx context.Context) (*DashboardSummary, error) {
	products, err := r.allProducts(ctx)
	if err != nil {
		return nil, err
	}

	at := r.nowFunc()
	nearExpiry := time.Duration(r.config.NearExpiryDays) * 24 * time.Hour

	summary := &DashboardSummary{
		TotalProducts: len(products),
		ValueAtCost:   decimal.Zero,
		ValueAtPrice:  decimal.Zero,
		GeneratedAt:   at,
	}

	for i := range products {
		p := &products[i]

		if p.IsLowStock(at) {
			summary.LowStockCount++
		}
		summary.ExpiredBatches += len(p.ExpiredBatches(at))

		for j := range p.Batches {
			if p.Batches[j].IsExpiringSoon(at, nearExpiry) {
				summary.ExpiringBatches++
			}
		}

		v := valueProduct(p, at)
		summary.TotalQuantity += v.Quantity
		summary.ValueAtCost = summary.ValueAtCost.Add(v.ValueAtCost)
		summary.ValueAtPrice = summary.ValueAtPrice.Add(v.ValueAtPrice)
	}

	return summary, nil
}

// RaiseExpiryAlerts scans all products and creates alerts for batches that
// are expiring soon or already expired. Returns the number of alerts raised.
// 全商品を走査して期限間近・期限切れバッチのアラートを作成（作成件数を返す）
func (r *Reporter) RaiseExpiryAlerts(ctx context.Context) (int, error) {
	products, err := r.allProducts(ctx)
	if err != nil {
		return 0, err
	}

	at := r.nowFunc()
	nearExpiry := time.Duration(r.config.NearExpiryDays) * 24 * time.Hour
	raised := 0

	for i := range products {
		p := &products[i]
		for j := range p.Batches {
			b := &p.Batches[j]
			if b.IsDepleted() {
				continue
			}

			var alert *StockAlert
			switch {
			case b.IsExpired(at):
				alert = &StockAlert{
					ID:         NewAlertID(),
					Type:       AlertTypeExpired,
					ProductID:  p.ID,
					BatchID:    b.ID,
					CurrentQty: b.QuantityRemaining,
					Message:    fmt.Sprintf("ロット %s は期限切れです (残数量: %d)", b.BatchNumber, b.QuantityRemaining),
					IsActive:   true,
					CreatedAt:  at,
				}
			case b.IsExpiringSoon(at, nearExpiry):
				days := int(b.ExpirationDate.Sub(at).Hours() / 24)
				alert = &StockAlert{
					ID:         NewAlertID(),
					Type:       AlertTypeExpiring,
					ProductID:  p.ID,
					BatchID:    b.ID,
					CurrentQty: b.QuantityRemaining,
					Threshold:  int64(r.config.NearExpiryDays),
					Message:    fmt.Sprintf("ロット %s が %d 日後に期限切れになります", b.BatchNumber, days),
					IsActive:   true,
					CreatedAt:  at,
				}
			default:
				continue
			}

			if err := r.storage.CreateAlert(ctx, alert); err != nil {
				r.logger.Error("期限アラート作成に失敗しました",
					zap.String("product_id", p.ID),
					zap.String("batch_id", b.ID),
					zap.Error(err),
				)
				continue
			}
			raised++
		}
	}

	r.logger.Info("期限アラート走査完了",
		zap.Int("raised", raised),
	)

	return raised, nil
}

// valueProduct values a single product's available batches
// 1商品の販売可能バッチを評価
func valueProduct(product *Product, at time.Time) *Valuation {
	v := &Valuation{
		ValueAtCost:  decimal.Zero,
		ValueAtPrice: decimal.Zero,
	}

	for _, b := range product.AvailableBatches(at) {
		qty := decimal.NewFromInt(b.QuantityRemaining)
		v.Quantity += b.QuantityRemaining
		v.ValueAtCost = v.ValueAtCost.Add(b.UnitCost.Mul(qty))
		v.ValueAtPrice = v.ValueAtPrice.Add(b.SalePrice.Mul(qty))
	}

	return v
}

// allProducts pages through the full product list
// 商品一覧を全ページ取得
func (r *Reporter) allProducts(ctx context.Context) ([]Product, error) {
	const pageSize = 500

	var all []Product
	offset := 0
	for {
		page, err := r.storage.ListProducts(ctx, offset, pageSize)
		if err != nil {
			return nil, NewStorageError("list_products", "商品一覧取得に失敗しました", err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
		offset += pageSize
	}

	return all, nil
}
