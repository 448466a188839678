// Package ledger provides batch-based pharmacy inventory management
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Batch represents one received lot of a product
// 入荷した1ロット分の在庫バッチを表現
type Batch struct {
	ID                string          `json:"id" db:"id"`                                 // バッチID
	BatchNumber       string          `json:"batch_number" db:"batch_number"`             // ロット番号（仕入先採番）
	ExpirationDate    time.Time       `json:"expiration_date" db:"expiration_date"`      // 有効期限
	QuantityReceived  int64           `json:"quantity_received" db:"quantity_received"`   // 入荷数量（履歴として不変）
	QuantityRemaining int64           `json:"quantity_remaining" db:"quantity_remaining"` // 残数量
	UnitCost          decimal.Decimal `json:"unit_cost" db:"unit_cost"`                   // 仕入単価
	SalePrice         decimal.Decimal `json:"sale_price" db:"sale_price"`                 // 販売単価
	ReceivedDate      time.Time       `json:"received_date" db:"received_date"`           // 入荷日
	SupplierID        string          `json:"supplier_id" db:"supplier_id"`               // 仕入先ID
	Notes             string          `json:"notes" db:"notes"`                           // 備考
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`                 // 作成日時
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`                 // 更新日時
}

// Product is the aggregate root owning the batch collection
// バッチコレクションを所有する集約ルート（商品）
type Product struct {
	ID            string    `json:"id" db:"id"`                         // 商品ID
	Name          string    `json:"name" db:"name"`                     // 商品名
	SKU           string    `json:"sku" db:"sku"`                       // SKU（在庫管理単位）
	Category      string    `json:"category" db:"category"`             // カテゴリ
	ReorderLevel  int64     `json:"reorder_level" db:"reorder_level"`   // 発注点（低在庫閾値）
	StockQuantity int64     `json:"stock_quantity" db:"stock_quantity"` // 利用可能在庫の非正規化合計
	Version       int64     `json:"version" db:"version"`               // 楽観的ロック用バージョン
	Batches       []Batch   `json:"batches" db:"-"`                     // バッチコレクション（挿入順）
	CreatedAt     time.Time `json:"created_at" db:"created_at"`         // 作成日時
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`         // 更新日時
}

// Supplier represents a wholesale supplier
// 卸売仕入先を表現
type Supplier struct {
	ID        string    `json:"id" db:"id"`                 // 仕入先ID
	Name      string    `json:"name" db:"name"`             // 仕入先名
	Phone     string    `json:"phone" db:"phone"`           // 電話番号
	Email     string    `json:"email" db:"email"`           // メールアドレス
	Address   string    `json:"address" db:"address"`       // 住所
	IsActive  bool      `json:"is_active" db:"is_active"`   // アクティブ状態
	CreatedAt time.Time `json:"created_at" db:"created_at"` // 作成日時
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // 更新日時
}

// BatchInput carries the fields required to receive a new batch
// 新規バッチ入荷に必要なフィールドを保持
type BatchInput struct {
	BatchNumber       string          `json:"batch_number"`
	ExpirationDate    time.Time       `json:"expiration_date"`
	QuantityReceived  int64           `json:"quantity_received"`
	QuantityRemaining *int64          `json:"quantity_remaining,omitempty"` // 未指定の場合はQuantityReceivedを使用
	UnitCost          decimal.Decimal `json:"unit_cost"`
	SalePrice         decimal.Decimal `json:"sale_price"`
	ReceivedDate      time.Time       `json:"received_date"`
	SupplierID        string          `json:"supplier_id"`
	Notes             string          `json:"notes"`
}

// BatchPatch carries a partial batch update; nil fields are left unchanged
// バッチの部分更新を保持（nilフィールドは変更しない）
type BatchPatch struct {
	BatchNumber       *string          `json:"batch_number,omitempty"`
	ExpirationDate    *time.Time       `json:"expiration_date,omitempty"`
	QuantityRemaining *int64           `json:"quantity_remaining,omitempty"`
	UnitCost          *decimal.Decimal `json:"unit_cost,omitempty"`
	SalePrice         *decimal.Decimal `json:"sale_price,omitempty"`
	SupplierID        *string          `json:"supplier_id,omitempty"`
	Notes             *string          `json:"notes,omitempty"`
}

// AllocationLine records the quantity taken from one batch
// 1バッチから引き当てた数量を記録
type AllocationLine struct {
	BatchID        string          `json:"batch_id"`
	BatchNumber    string          `json:"batch_number"`
	Quantity       int64           `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	ExpirationDate time.Time       `json:"expiration_date"`
}

// AllocationPlan is a successful allocation across one or more batches
// 複数バッチにまたがる引当計画（成功時）
type AllocationPlan struct {
	Lines         []AllocationLine `json:"lines"`          // 期限の早い順
	TotalQuantity int64            `json:"total_quantity"` // 引当数量合計
	TotalCost     decimal.Decimal  `json:"total_cost"`     // Σ(数量 × 仕入単価)
	TotalRevenue  decimal.Decimal  `json:"total_revenue"`  // Σ(数量 × 販売単価)
}

// StockAlert represents low stock or expiry alerts
// 低在庫や期限切れの在庫アラートを表現
type StockAlert struct {
	ID         string     `json:"id" db:"id"`                   // アラートID
	Type       AlertType  `json:"type" db:"type"`               // アラートタイプ
	ProductID  string     `json:"product_id" db:"product_id"`   // 商品ID
	BatchID    string     `json:"batch_id" db:"batch_id"`       // バッチID（商品単位のアラートは空）
	CurrentQty int64      `json:"current_qty" db:"current_qty"` // 現在数量
	Threshold  int64      `json:"threshold" db:"threshold"`     // 閾値
	Message    string     `json:"message" db:"message"`         // メッセージ
	IsActive   bool       `json:"is_active" db:"is_active"`     // アクティブ状態
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`   // 作成日時
	ResolvedAt *time.Time `json:"resolved_at" db:"resolved_at"` // 解決日時
}

// AlertType defines types of inventory alerts
// 在庫アラートのタイプを定義
type AlertType string

const (
	AlertTypeLowStock AlertType = "low_stock" // 低在庫
	AlertTypeExpiring AlertType = "expiring"  // 期限切れ間近
	AlertTypeExpired  AlertType = "expired"   // 期限切れ
)

// NewBatchID generates a new batch ID
// 新しいバッチIDを生成
func NewBatchID() string {
	return uuid.New().String()
}

// NewAlertID generates a new alert ID
// 新しいアラートIDを生成
func NewAlertID() string {
	return uuid.New().String()
}

// NewEventID generates a new event ID
// 新しいイベントIDを生成
func NewEventID() string {
	return uuid.New().String()
}

// IsExpired reports whether the batch has expired at the given time
// 指定時刻においてバッチが期限切れかチェック
func (b *Batch) IsExpired(at time.Time) bool {
	return !b.ExpirationDate.After(at)
}

// IsAvailable reports whether the batch can be allocated at the given time
// 指定時刻においてバッチが引当可能かチェック
func (b *Batch) IsAvailable(at time.Time) bool {
	return b.QuantityRemaining > 0 && b.ExpirationDate.After(at)
}

// IsExpiringSoon reports whether the batch expires within the given duration
// バッチが指定期間内に期限切れになるかチェック
func (b *Batch) IsExpiringSoon(at time.Time, within time.Duration) bool {
	return b.ExpirationDate.After(at) && !b.ExpirationDate.After(at.Add(within))
}

// IsDepleted reports whether the batch has been fully consumed
// バッチが完全に消費されたかチェック
func (b *Batch) IsDepleted() bool {
	return b.QuantityRemaining <= 0
}

// AvailableBatches returns available batches in FEFO order
// 引当可能なバッチを有効期限の早い順で取得
func (p *Product) AvailableBatches(at time.Time) []Batch {
	available := make([]Batch, 0, len(p.Batches))
	for _, b := range p.Batches {
		if b.IsAvailable(at) {
			available = append(available, b)
		}
	}
	sortFEFO(available)
	return available
}

// ExpiredBatches returns batches that still hold quantity but have expired
// 残数量があるのに期限切れになったバッチを取得
func (p *Product) ExpiredBatches(at time.Time) []Batch {
	expired := make([]Batch, 0)
	for _, b := range p.Batches {
		if b.QuantityRemaining > 0 && b.IsExpired(at) {
			expired = append(expired, b)
		}
	}
	sortFEFO(expired)
	return expired
}

// AvailableStock returns the authoritative sellable quantity
// 販売可能な在庫数量（正とみなすべき値）を取得
func (p *Product) AvailableStock(at time.Time) int64 {
	var total int64
	for _, b := range p.Batches {
		if b.IsAvailable(at) {
			total += b.QuantityRemaining
		}
	}
	return total
}

// IsLowStock reports whether available stock is at or below the reorder level
// 利用可能在庫が発注点以下かチェック
func (p *Product) IsLowStock(at time.Time) bool {
	return p.AvailableStock(at) <= p.ReorderLevel
}

// CanFulfill reports whether the requested quantity can be fully allocated
// 要求数量を完全に引当できるかチェック
func (p *Product) CanFulfill(quantity int64, at time.Time) bool {
	return p.AvailableStock(at) >= quantity
}

// CurrentPrice returns the sale price of the earliest-expiring available batch.
// The second return value is false when no batch is available.
// 次に販売されるバッチの販売単価を取得（引当可能バッチがない場合はfalse）
func (p *Product) CurrentPrice(at time.Time) (decimal.Decimal, bool) {
	available := p.AvailableBatches(at)
	if len(available) == 0 {
		return decimal.Zero, false
	}
	return available[0].SalePrice, true
}

// RecomputeStockQuantity rederives the denormalized stock counter from the
// batch list. Always a full recompute, never an increment, so the counter
// cannot drift from the batches.
// 非正規化在庫カウンタをバッチリストから再計算（差分更新はしない）
func (p *Product) RecomputeStockQuantity(at time.Time) {
	p.StockQuantity = p.AvailableStock(at)
}

// FindBatch locates a batch by ID in the live batch list
// バッチリストからIDでバッチを検索
func (p *Product) FindBatch(batchID string) *Batch {
	for i := range p.Batches {
		if p.Batches[i].ID == batchID {
			return &p.Batches[i]
		}
	}
	return nil
}
