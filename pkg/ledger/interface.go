package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StockLedger defines the core contract consumed by checkout, POS and
// receiving workflows
// チェックアウト・POS・入荷ワークフローが利用するコア契約を定義
type StockLedger interface {
	// 引当と消費 - Allocation and consumption
	Allocate(ctx context.Context, productID string, quantity int64) (*AllocationPlan, error)
	ReduceStock(ctx context.Context, productID string, quantity int64, reason string) ([]AllocationLine, error)

	// バッチ管理 - Batch management
	AddBatch(ctx context.Context, productID string, input BatchInput) (*Batch, error)
	UpdateBatch(ctx context.Context, productID, batchID string, patch BatchPatch) (*Batch, error)

	// 在庫照会 - Stock inquiry
	AvailableStock(ctx context.Context, productID string) (int64, error)
	CanFulfill(ctx context.Context, productID string, quantity int64) (bool, error)
	IsLowStock(ctx context.Context, productID string) (bool, error)
	CurrentPrice(ctx context.Context, productID string) (decimal.Decimal, bool, error)
	ExpiredBatches(ctx context.Context, productID string) ([]Batch, error)

	// アラート管理 - Alert management
	GetAlerts(ctx context.Context, productID string) ([]StockAlert, error)
	ResolveAlert(ctx context.Context, alertID string) error
}

// ProductManager defines interface for product management
// 商品管理のインターフェースを定義
type ProductManager interface {
	CreateProduct(ctx context.Context, product *Product) error
	GetProduct(ctx context.Context, productID string) (*Product, error)
	UpdateProduct(ctx context.Context, product *Product) error
	ListProducts(ctx context.Context, offset, limit int) ([]Product, error)
	SearchProducts(ctx context.Context, query string) ([]Product, error)
}

// SupplierManager defines interface for supplier management
// 仕入先管理のインターフェースを定義
type SupplierManager interface {
	CreateSupplier(ctx context.Context, supplier *Supplier) error
	GetSupplier(ctx context.Context, supplierID string) (*Supplier, error)
	UpdateSupplier(ctx context.Context, supplier *Supplier) error
	ListSuppliers(ctx context.Context, offset, limit int) ([]Supplier, error)
}

// Storage defines the interface for the data persistence layer. The
// product aggregate (product row plus its full batch list) is always
// read and written as one unit.
// データ永続化層のインターフェースを定義（商品集約は常に一体で読み書きする）
type Storage interface {
	// Product aggregate
	CreateProduct(ctx context.Context, product *Product) error
	GetProduct(ctx context.Context, productID string) (*Product, error)
	SaveProduct(ctx context.Context, product *Product) error
	ListProducts(ctx context.Context, offset, limit int) ([]Product, error)
	SearchProducts(ctx context.Context, query string) ([]Product, error)

	// Supplier management
	CreateSupplier(ctx context.Context, supplier *Supplier) error
	GetSupplier(ctx context.Context, supplierID string) (*Supplier, error)
	UpdateSupplier(ctx context.Context, supplier *Supplier) error
	ListSuppliers(ctx context.Context, offset, limit int) ([]Supplier, error)

	// Alert management
	CreateAlert(ctx context.Context, alert *StockAlert) error
	GetActiveAlerts(ctx context.Context, productID string) ([]StockAlert, error)
	ResolveAlert(ctx context.Context, alertID string) error

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// EventPublisher defines interface for publishing ledger events
// 在庫台帳イベント発行のインターフェースを定義
type EventPublisher interface {
	PublishStockReduced(ctx context.Context, event StockReducedEvent) error
	PublishBatchReceived(ctx context.Context, event BatchReceivedEvent) error
	PublishLowStockAlert(ctx context.Context, event LowStockAlertEvent) error
}

// Events for ledger operations
// 在庫台帳操作のイベント定義

// StockReducedEvent represents a completed stock consumption
// 在庫消費完了イベントを表現
type StockReducedEvent struct {
	ProductID     string           `json:"product_id"`
	Quantity      int64            `json:"quantity"`
	Reason        string           `json:"reason"`
	Lines         []AllocationLine `json:"lines"`
	NewStock      int64            `json:"new_stock"`
	TransactionID string           `json:"transaction_id"`
	Timestamp     time.Time        `json:"timestamp"`
}

// BatchReceivedEvent represents a newly received batch
// 新規バッチ入荷イベントを表現
type BatchReceivedEvent struct {
	ProductID   string    `json:"product_id"`
	BatchID     string    `json:"batch_id"`
	BatchNumber string    `json:"batch_number"`
	Quantity    int64     `json:"quantity"`
	SupplierID  string    `json:"supplier_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// LowStockAlertEvent represents a low stock alert
// 低在庫アラートイベントを表現
type LowStockAlertEvent struct {
	ProductID  string    `json:"product_id"`
	CurrentQty int64     `json:"current_qty"`
	Threshold  int64     `json:"threshold"`
	Timestamp  time.Time `json:"timestamp"`
}
