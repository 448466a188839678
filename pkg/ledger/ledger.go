package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger implements the StockLedger interface over per-product batch state
// 商品ごとのバッチ状態に対するStockLedgerインターフェースの実装
type Ledger struct {
	storage   Storage        // ストレージ層
	publisher EventPublisher // イベント発行者
	logger    *zap.Logger    // ログ
	config    *Config        // 設定

	// 商品単位のミューテックス（同一商品への並行変更を直列化）
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// テストで差し替え可能な時刻関数
	nowFunc func() time.Time
}

// すべてのインターフェースを実装することを明示
var (
	_ StockLedger     = (*Ledger)(nil)
	_ ProductManager  = (*Ledger)(nil)
	_ SupplierManager = (*Ledger)(nil)
)

// Config holds configuration for the ledger
// 在庫台帳の設定を保持
type Config struct {
	DefaultReorderLevel int64 `yaml:"default_reorder_level"` // デフォルト発注点
	NearExpiryDays      int   `yaml:"near_expiry_days"`      // 期限切れ間近とみなす日数
	AlertsEnabled       bool  `yaml:"alerts_enabled"`        // アラート有効
}

// NewLedger creates a new inventory ledger
// 新しい在庫台帳を作成
func NewLedger(storage Storage, publisher EventPublisher, logger *zap.Logger, config *Config) *Ledger {
	if config == nil {
		config = &Config{
			DefaultReorderLevel: 10,
			NearExpiryDays:      30,
			AlertsEnabled:       true,
		}
	}

	return &Ledger{
		storage:   storage,
		publisher: publisher,
		logger:    logger,
		config:    config,
		locks:     make(map[string]*sync.Mutex),
		nowFunc:   time.Now,
	}
}

// now returns the current time via the injectable clock
// 差し替え可能なクロック経由で現在時刻を取得
func (l *Ledger) now() time.Time {
	return l.nowFunc()
}

// lockProduct serializes mutating operations on one product
// 同一商品への変更操作を直列化
func (l *Ledger) lockProduct(productID string) func() {
	l.locksMu.Lock()
	mu, ok := l.locks[productID]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[productID] = mu
	}
	l.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Allocate plans a FEFO allocation for the requested quantity without
// mutating any state. Calling it repeatedly with unchanged batch state
// yields identical plans.
// 状態を変更せずに先期限先出しの引当計画を作成（同一状態なら同一結果）
func (l *Ledger) Allocate(ctx context.Context, productID string, quantity int64) (*AllocationPlan, error) {
	product, err := l.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	plan, err := PlanAllocation(product, quantity, l.now())
	if err != nil {
		if _, ok := err.(*InsufficientStockError); ok {
			shortagesTotal.Inc()
		}
		return nil, err
	}

	allocationsTotal.Inc()
	return plan, nil
}

// ReduceStock consumes stock for a sale or dispense. It either applies
// the full allocation plan and persists the aggregate in one write, or
// fails before mutating anything.
// 販売・調剤のために在庫を消費（全引当の適用と永続化、または変更なしの失敗）
func (l *Ledger) ReduceStock(ctx context.Context, productID string, quantity int64, reason string) ([]AllocationLine, error) {
	start := l.now()
	defer func() {
		reduceDuration.Observe(time.Since(start).Seconds())
	}()

	unlock := l.lockProduct(productID)
	defer unlock()

	product, err := l.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	at := l.now()
	plan, err := PlanAllocation(product, quantity, at)
	if err != nil {
		if _, ok := err.(*InsufficientStockError); ok {
			shortagesTotal.Inc()
			l.logger.Warn("在庫不足のため引当に失敗しました",
				zap.String("product_id", productID),
				zap.Int64("requested", quantity),
				zap.Error(err),
			)
		}
		return nil, err
	}

	if err := applyAllocation(product, plan); err != nil {
		l.logger.Error("引当適用で整合性エラーが発生しました",
			zap.String("product_id", productID),
			zap.Error(err),
		)
		return nil, err
	}

	// 非正規化在庫は差分更新ではなく常に全再計算（ドリフト防止）
	product.RecomputeStockQuantity(at)
	product.Version++
	product.UpdatedAt = at

	if err := l.storage.SaveProduct(ctx, product); err != nil {
		return nil, NewStorageError("save_product", "商品集約の保存に失敗しました", err)
	}

	allocationsTotal.Inc()

	// イベント発行
	if l.publisher != nil {
		event := StockReducedEvent{
			ProductID:     productID,
			Quantity:      quantity,
			Reason:        reason,
			Lines:         plan.Lines,
			NewStock:      product.StockQuantity,
			TransactionID: NewEventID(),
			Timestamp:     at,
		}
		if err := l.publisher.PublishStockReduced(ctx, event); err != nil {
			l.logger.Error("在庫消費イベント発行に失敗しました", zap.Error(err))
		}
	}

	// 低在庫アラートチェック
	if l.config.AlertsEnabled && product.IsLowStock(at) {
		l.triggerLowStockAlert(ctx, product, at)
	}

	l.logger.Info("在庫消費完了",
		zap.String("product_id", productID),
		zap.Int64("quantity", quantity),
		zap.String("reason", reason),
		zap.Int("batches_used", len(plan.Lines)),
		zap.Int64("stock_after", product.StockQuantity),
	)

	return plan.Lines, nil
}

// AddBatch receives a new lot into stock
// 新規ロットを在庫に入荷
func (l *Ledger) AddBatch(ctx context.Context, productID string, input BatchInput) (*Batch, error) {
	if err := ValidateBatchInput(&input); err != nil {
		return nil, err
	}

	unlock := l.lockProduct(productID)
	defer unlock()

	product, err := l.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	at := l.now()

	remaining := input.QuantityReceived
	if input.QuantityRemaining != nil {
		remaining = *input.QuantityRemaining
	}

	receivedDate := input.ReceivedDate
	if receivedDate.IsZero() {
		receivedDate = at
	}

	batch := Batch{
		ID:                NewBatchID(),
		BatchNumber:       input.BatchNumber,
		ExpirationDate:    input.ExpirationDate,
		QuantityReceived:  input.QuantityReceived,
		QuantityRemaining: remaining,
		UnitCost:          input.UnitCost,
		SalePrice:         input.SalePrice,
		ReceivedDate:      receivedDate,
		SupplierID:        input.SupplierID,
		Notes:             input.Notes,
		CreatedAt:         at,
		UpdatedAt:         at,
	}

	product.Batches = append(product.Batches, batch)
	product.RecomputeStockQuantity(at)
	product.Version++
	product.UpdatedAt = at

	if err := l.storage.SaveProduct(ctx, product); err != nil {
		return nil, NewStorageError("save_product", "商品集約の保存に失敗しました", err)
	}

	batchesReceivedTotal.Inc()

	// イベント発行
	if l.publisher != nil {
		event := BatchReceivedEvent{
			ProductID:   productID,
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			Quantity:    batch.QuantityReceived,
			SupplierID:  batch.SupplierID,
			Timestamp:   at,
		}
		if err := l.publisher.PublishBatchReceived(ctx, event); err != nil {
			l.logger.Error("入荷イベント発行に失敗しました", zap.Error(err))
		}
	}

	l.logger.Info("バッチ入荷完了",
		zap.String("product_id", productID),
		zap.String("batch_id", batch.ID),
		zap.String("batch_number", batch.BatchNumber),
		zap.Int64("quantity", batch.QuantityReceived),
		zap.Time("expiration_date", batch.ExpirationDate),
	)

	return &batch, nil
}

// UpdateBatch applies a partial correction to an existing batch
// 既存バッチへの部分的な訂正を適用
func (l *Ledger) UpdateBatch(ctx context.Context, productID, batchID string, patch BatchPatch) (*Batch, error) {
	if err := ValidateBatchPatch(&patch); err != nil {
		return nil, err
	}

	unlock := l.lockProduct(productID)
	defer unlock()

	product, err := l.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	batch := product.FindBatch(batchID)
	if batch == nil {
		return nil, ErrBatchNotFound
	}

	// 指定されたフィールドのみ上書き（部分更新セマンティクス）
	if patch.BatchNumber != nil {
		batch.BatchNumber = *patch.BatchNumber
	}
	if patch.ExpirationDate != nil {
		batch.ExpirationDate = *patch.ExpirationDate
	}
	if patch.QuantityRemaining != nil {
		if *patch.QuantityRemaining > batch.QuantityReceived {
			return nil, NewValidationError("quantity_remaining",
				"残数量は入荷数量を超えられません", fmt.Sprintf("%d", *patch.QuantityRemaining))
		}
		batch.QuantityRemaining = *patch.QuantityRemaining
	}
	if patch.UnitCost != nil {
		batch.UnitCost = *patch.UnitCost
	}
	if patch.SalePrice != nil {
		batch.SalePrice = *patch.SalePrice
	}
	if patch.SupplierID != nil {
		batch.SupplierID = *patch.SupplierID
	}
	if patch.Notes != nil {
		batch.Notes = *patch.Notes
	}

	at := l.now()
	batch.UpdatedAt = at

	product.RecomputeStockQuantity(at)
	product.Version++
	product.UpdatedAt = at

	if err := l.storage.SaveProduct(ctx, product); err != nil {
		return nil, NewStorageError("save_product", "商品集約の保存に失敗しました", err)
	}

	l.logger.Info("バッチ更新完了",
		zap.String("product_id", productID),
		zap.String("batch_id", batchID),
	)

	updated := *batch
	return &updated, nil
}

// AvailableStock returns the sellable quantity across non-expired batches
// 期限内バッチ合計の販売可能数量を取得
func (l *Ledger) AvailableStock(ctx context.Context, productID string) (int64, error) {
	product, err := l.loadProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	return product.AvailableStock(l.now()), nil
}

// CanFulfill reports whether the requested quantity can be fully allocated
// 要求数量を完全に引当できるかチェック
func (l *Ledger) CanFulfill(ctx context.Context, productID string, quantity int64) (bool, error) {
	product, err := l.loadProduct(ctx, productID)
	if err != nil {
		return false, err
	}
	return product.CanFulfill(quantity, l.now()), nil
}

// IsLowStock reports whether the product is at or below its reorder level
// 商品が発注点以下かチェック
func (l *Ledger) IsLowStock(ctx context.Context, productID string) (bool, error) {
	product, err := l.loadProduct(ctx, productID)
	if err != nil {
		return false, err
	}
	return product.IsLowStock(l.now()), nil
}

// CurrentPrice returns the price of the next unit that would be sold
// 次に販売される1単位の価格を取得
func (l *Ledger) CurrentPrice(ctx context.Context, productID string) (decimal.Decimal, bool, error) {
	product, err := l.loadProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, false, err
	}
	price, ok := product.CurrentPrice(l.now())
	return price, ok, nil
}

// ExpiredBatches returns batches holding quantity past their expiration
// 残数量を持つ期限切れバッチを取得
func (l *Ledger) ExpiredBatches(ctx context.Context, productID string) ([]Batch, error) {
	product, err := l.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return product.ExpiredBatches(l.now()), nil
}

// GetAlerts gets active alerts for a product (empty ID returns all)
// 商品のアクティブアラートを取得（ID未指定で全件）
func (l *Ledger) GetAlerts(ctx context.Context, productID string) ([]StockAlert, error) {
	return l.storage.GetActiveAlerts(ctx, productID)
}

// ResolveAlert resolves an alert
// アラートを解決
func (l *Ledger) ResolveAlert(ctx context.Context, alertID string) error {
	return l.storage.ResolveAlert(ctx, alertID)
}

// CreateProduct registers a new product with an empty batch list
// 空のバッチリストを持つ新規商品を登録
func (l *Ledger) CreateProduct(ctx context.Context, product *Product) error {
	if product != nil && product.ReorderLevel == 0 {
		product.ReorderLevel = l.config.DefaultReorderLevel
	}
	if err := ValidateProduct(product); err != nil {
		return err
	}

	at := l.now()
	product.Version = 1
	product.CreatedAt = at
	product.UpdatedAt = at
	product.RecomputeStockQuantity(at)

	if err := l.storage.CreateProduct(ctx, product); err != nil {
		if err == ErrDuplicateProduct {
			return ErrDuplicateProduct
		}
		return NewStorageError("create_product", "商品作成に失敗しました", err)
	}

	l.logger.Info("商品登録完了",
		zap.String("product_id", product.ID),
		zap.String("name", product.Name),
	)

	return nil
}

// GetProduct retrieves a product aggregate with its batches
// バッチ付きの商品集約を取得
func (l *Ledger) GetProduct(ctx context.Context, productID string) (*Product, error) {
	return l.loadProduct(ctx, productID)
}

// UpdateProduct updates product metadata (not batches)
// 商品メタデータを更新（バッチは対象外）
func (l *Ledger) UpdateProduct(ctx context.Context, product *Product) error {
	if err := ValidateProduct(product); err != nil {
		return err
	}

	unlock := l.lockProduct(product.ID)
	defer unlock()

	existing, err := l.loadProduct(ctx, product.ID)
	if err != nil {
		return err
	}

	existing.Name = product.Name
	existing.SKU = product.SKU
	existing.Category = product.Category
	existing.ReorderLevel = product.ReorderLevel

	at := l.now()
	existing.RecomputeStockQuantity(at)
	existing.Version++
	existing.UpdatedAt = at

	if err := l.storage.SaveProduct(ctx, existing); err != nil {
		return NewStorageError("save_product", "商品更新に失敗しました", err)
	}

	*product = *existing
	return nil
}

// ListProducts retrieves products with pagination
// ページネーション付きで商品一覧を取得
func (l *Ledger) ListProducts(ctx context.Context, offset, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 100 // デフォルト値
	}
	return l.storage.ListProducts(ctx, offset, limit)
}

// SearchProducts searches for products by query string
// クエリ文字列で商品を検索
func (l *Ledger) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	return l.storage.SearchProducts(ctx, query)
}

// CreateSupplier registers a new supplier
// 新規仕入先を登録
func (l *Ledger) CreateSupplier(ctx context.Context, supplier *Supplier) error {
	if err := ValidateSupplier(supplier); err != nil {
		return err
	}

	at := l.now()
	supplier.CreatedAt = at
	supplier.UpdatedAt = at

	if err := l.storage.CreateSupplier(ctx, supplier); err != nil {
		if err == ErrDuplicateSupplier {
			return ErrDuplicateSupplier
		}
		return NewStorageError("create_supplier", "仕入先作成に失敗しました", err)
	}

	return nil
}

// GetSupplier retrieves a supplier by ID
// IDで仕入先を取得
func (l *Ledger) GetSupplier(ctx context.Context, supplierID string) (*Supplier, error) {
	return l.storage.GetSupplier(ctx, supplierID)
}

// UpdateSupplier updates an existing supplier
// 既存の仕入先を更新
func (l *Ledger) UpdateSupplier(ctx context.Context, supplier *Supplier) error {
	if err := ValidateSupplier(supplier); err != nil {
		return err
	}
	supplier.UpdatedAt = l.now()
	return l.storage.UpdateSupplier(ctx, supplier)
}

// ListSuppliers retrieves suppliers with pagination
// ページネーション付きで仕入先一覧を取得
func (l *Ledger) ListSuppliers(ctx context.Context, offset, limit int) ([]Supplier, error) {
	if limit <= 0 {
		limit = 100 // デフォルト値
	}
	return l.storage.ListSuppliers(ctx, offset, limit)
}

// ヘルパーメソッド

// loadProduct loads the product aggregate from storage
// ストレージから商品集約を読み込み
func (l *Ledger) loadProduct(ctx context.Context, productID string) (*Product, error) {
	if err := ValidateProductID(productID); err != nil {
		return nil, err
	}

	product, err := l.storage.GetProduct(ctx, productID)
	if err != nil {
		if err == ErrProductNotFound {
			return nil, ErrProductNotFound
		}
		return nil, NewStorageError("get_product", "商品取得に失敗しました", err)
	}

	return product, nil
}

// triggerLowStockAlert creates a low stock alert and publishes the event
// 低在庫アラートを作成してイベントを発行
func (l *Ledger) triggerLowStockAlert(ctx context.Context, product *Product, at time.Time) {
	current := product.AvailableStock(at)

	alert := &StockAlert{
		ID:         NewAlertID(),
		Type:       AlertTypeLowStock,
		ProductID:  product.ID,
		CurrentQty: current,
		Threshold:  product.ReorderLevel,
		Message:    fmt.Sprintf("商品 %s の在庫が発注点を下回っています (現在: %d, 発注点: %d)", product.ID, current, product.ReorderLevel),
		IsActive:   true,
		CreatedAt:  at,
	}

	if err := l.storage.CreateAlert(ctx, alert); err != nil {
		l.logger.Error("アラート作成に失敗しました", zap.Error(err))
		return
	}

	lowStockAlertsTotal.Inc()

	// 低在庫アラートイベント発行
	if l.publisher != nil {
		event := LowStockAlertEvent{
			ProductID:  product.ID,
			CurrentQty: current,
			Threshold:  product.ReorderLevel,
			Timestamp:  at,
		}
		if err := l.publisher.PublishLowStockAlert(ctx, event); err != nil {
			l.logger.Error("低在庫アラートイベント発行に失敗しました", zap.Error(err))
		}
	}
}
