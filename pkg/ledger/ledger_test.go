package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockStorage はテスト用のStorageモック
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) CreateProduct(ctx context.Context, product *Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockStorage) GetProduct(ctx context.Context, productID string) (*Product, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Product), args.Error(1)
}

func (m *MockStorage) SaveProduct(ctx context.Context, product *Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockStorage) ListProducts(ctx context.Context, offset, limit int) ([]Product, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).([]Product), args.Error(1)
}

func (m *MockStorage) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]Product), args.Error(1)
}

func (m *MockStorage) CreateSupplier(ctx context.Context, supplier *Supplier) error {
	args := m.Called(ctx, supplier)
	return args.Error(0)
}

func (m *MockStorage) GetSupplier(ctx context.Context, supplierID string) (*Supplier, error) {
	args := m.Called(ctx, supplierID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Supplier), args.Error(1)
}

func (m *MockStorage) UpdateSupplier(ctx context.Context, supplier *Supplier) error {
	args := m.Called(ctx, supplier)
	return args.Error(0)
}

func (m *MockStorage) ListSuppliers(ctx context.Context, offset, limit int) ([]Supplier, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).([]Supplier), args.Error(1)
}

func (m *MockStorage) CreateAlert(ctx context.Context, alert *StockAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func (m *MockStorage) GetActiveAlerts(ctx context.Context, productID string) ([]StockAlert, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).([]StockAlert), args.Error(1)
}

func (m *MockStorage) ResolveAlert(ctx context.Context, alertID string) error {
	args := m.Called(ctx, alertID)
	return args.Error(0)
}

func (m *MockStorage) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

// newTestLedger builds a ledger with a fixed clock and mock storage
// 固定クロックとモックストレージでテスト用台帳を作成
func newTestLedger(storage Storage) *Ledger {
	lgr := NewLedger(storage, nil, zap.NewNop(), &Config{
		DefaultReorderLevel: 10,
		NearExpiryDays:      30,
		AlertsEnabled:       true,
	})
	lgr.nowFunc = func() time.Time { return testNow }
	return lgr
}

// TestLedger_ReduceStock は在庫消費のテスト
func TestLedger_ReduceStock(t *testing.T) {
	mockStorage := new(MockStorage)
	lgr := newTestLedger(mockStorage)
	ctx := context.Background()

	product := newTestProduct()

	var saved *Product
	mockStorage.On("GetProduct", ctx, "MED-TEST").Return(product, nil)
	mockStorage.On("SaveProduct", ctx, mock.AnythingOfType("*ledger.Product")).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(*Product)
		}).Return(nil)

	lines, err := lgr.ReduceStock(ctx, "MED-TEST", 7, "RX-001")

	assert.NoError(t, err)
	assert.Len(t, lines, 2)
	assert.Equal(t, int64(5), lines[0].Quantity)
	assert.Equal(t, int64(2), lines[1].Quantity)

	// 保存された集約の検証
	assert.NotNil(t, saved)
	assert.Equal(t, int64(0), saved.FindBatch("batch-a").QuantityRemaining)
	assert.Equal(t, int64(8), saved.FindBatch("batch-b").QuantityRemaining)
	assert.Equal(t, int64(8), saved.StockQuantity)
	assert.Equal(t, int64(2), saved.Version)
	mockStorage.AssertExpectations(t)
}

// TestLedger_ReduceStock_InsufficientStock は在庫不足時に保存が行われないテスト
func TestLedger_ReduceStock_InsufficientStock(t *testing.T) {
	mockStorage := new(MockStorage)
	lgr := newTestLedger(mockStorage)
	ctx := context.Background()

	product := newTestProduct()
	mockStorage.On("GetProduct", ctx, "MED-TEST").Return(product, nil)

	lines, err := lgr.ReduceStock(ctx, "MED-TEST", 100, "RX-002")

	assert.Nil(t, lines)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	var insufficientErr *InsufficientStockError
	assert.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, int64(85), insufficientErr.Shortage)

	// 失敗時は永続化しない
	mockStorage.AssertNotCalled(t, "SaveProduct", mock.Anything, mock.Anything)
	mockStorage.AssertExpectations(t)
}

// TestLedger_ReduceStock_VersionMismatch は楽観的ロック衝突の伝播テスト
func TestLedger_ReduceStock_VersionMismatch(t *testing.T) {
	mockStorage := new(MockStorage)
	lgr := newTestLedger(mockStorage)
	ctx := context.Background()

	product := newTestProduct()
	mockStorage.On("GetProduct", ctx, "MED-TEST").Return(product, nil)
	mockStorage.On("SaveProduct", ctx, mock.AnythingOfType("*ledger.Product")).Return(ErrVersionMismatch)

	_, err := lgr.ReduceStock(ctx, "MED-TEST", 7, "RX-003")

	assert.ErrorIs(t, err, ErrVersionMismatch)
	mockStorage.AssertExpectations(t)
}

// TestLedger_ReduceStock_LowStockAlert は消費後の低在庫アラートのテスト
func TestLedger_ReduceStock_LowStockAlert(t *testing.T) {
	mockStorage := new(MockStorage)
	lgr := newTestLedger(mockStorage)
	ctx := context.Background()

	product := newTestProduct() // 在庫15、発注点3

	mockStorage.On("GetProduct", ctx, "MED-TEST").Return(product, nil)
	mockStorage.On("SaveProduct", ctx, mock.AnythingOfType("*ledger.Product")).Return(nil)

	var alert *StockAlert
	mockStorage.On("CreateAlert", ctx, mock.AnythingOfType("*ledger.StockAlert")).
		Run(func(args mock.Arguments) {
			alert = args.Get(1).(*StockAlert)
		}).Return(nil)

	// 13個消費 → 残り2個 ≤ 発注点3
	_, err := lgr.ReduceStock(ctx, "MED-TEST", 13, "RX-004")

	assert.NoError(t, err)
	assert.NotNil(t, alert)
	assert.Equal(t, AlertTypeLowStock, alert.Type)
	assert.Equal(t, "MED-TEST", alert.ProductID)
	assert.Equal(t, int64(2), alert.CurrentQty)
	assert.Equal(t, int64(3), alert.Threshold)
	mockStorage.AssertExpectations(t)
}

// TestLedger_Allocate は引当計画が状態を変更しないテスト
func TestLedger_Allocate(t *testing.T) {
	mockStorage := new(MockStorage)
	lgr := newTestLedger(mockStorage)
	ctx := context.Background()

	product := newTestProduct()
	mockStorage.On("GetProduct", ctx, "MED-TEST").Return(product, nil)

	plan, err := lgr.Allocate(ctx, "MED-TEST", 7)

	assert.NoError(t, err)
	assert.Equal(t, int64(7), plan.TotalQuantity)

	// 計画だけでは保存されない
	mockStorage.AssertNotCalled(t, "SaveProduct", mock.Anything, mock.Anything)
	mockStorage.AssertExpectations(t)
}

// TestLedger_AddBatch はバッチ入荷のテスト
func TestLedger_AddBatch(t *testing.T) {
	mockStorage := new(MockStorage)
	lgr := newTestLedger(mockStorage)
	ctx := context.Background()

	product := newTestProduct()

	var saved *Product
	mockStorage.On("GetProduct", ctx, "MED-TEST").Return(product, nil)
	mockStorage.On("SaveProduct", ctx, mock.AnythingOfType("*ledger.Product")).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(*Product)
		}).Return(nil)

	batch, err := lgr.AddBatch(ctx, "MED-TEST", BatchInput{
		BatchNumber:      "LOT-C",
		ExpirationDate:   testNow.AddDate(1, 0, 0),
		QuantityReceived: 50,
		UnitCost:         decimal.NewFromInt(2),
		SalePrice:        decimal.NewFromInt(5),
	})

	assert.NoError(t, err)
	assert.NotEmpty(t, batch.ID)
	// 残数量は未指定時に入荷数量と同じ
	assert.Equal(t, int64(50), batch.QuantityRemaining)
	// 入荷日は未指定時に現在時刻
	assert.Equal(t, testNow, batch.ReceivedDate)

	assert.Len(t, saved.Batches, 3)
	assert.Equal(t, int64(65), saved.StockQuantity)
	assert.Equal(t, int64(2), saved.Version)
	mockStorage.AssertExpectations(t)
}

// TestLedger_AddBatch_ValidationError は不正な入荷入力のテスト
func TestLedger_AddBatch_ValidationError(t *testing.T) {
	mockStorage := new(MockStorage)
	lgr := newTestLedger(mockStorage)
	ctx := context.Background()

	cases := []BatchInput{
		{ExpirationDate: testNow.AddDate(1, 0, 0), QuantityReceived: 10, UnitCost: decimal.NewFromInt(1)},       // ロット番号なし
		{BatchNumber: "LOT-C", QuantityReceived: 10, UnitCost: decimal.NewFromInt(1)},                           // 有効期限なし
		{BatchNumber: "LOT-C", ExpirationDate: testNow.AddDate(1, 0, 0), UnitCost: decimal.NewFromInt(1)},       // 数量ゼロ
		{BatchNumber: "LOT-C", ExpirationDate: testNow.AddDate(1, 0, 0), QuantityReceived: -5, UnitCost: decimal.NewFromInt(1)}, // 負の数量
	}

	for _, input := range cases {
		_, err := lgr.AddBatch(ctx, "MED-TEST", input)
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	}

	// バリデーション失敗時はストレージに触れない
	mockStorage.AssertNotCalled(t, "GetProduct", mock.Anything, mock.Anything)
	mockStorage.AssertNotCalled(t, "SaveProduct", mock.Anything, mock.Anything)
}

// TestLedger_UpdateBatch はバッチ部分更新のテスト
func TestLedger_UpdateBatch(t *testing.T) {
	mockStorage := new(MockStorage)
	lgr := newTestLedger(mockStorage)
	ctx := context.Background()

	product := newTestProduct()

	var saved *Product
	mockStorage.On("GetProduct", ctx, "MED-TEST").Return(product, nil)
	mockStorage.On("SaveProduct", ctx, mock.AnythingOfType("*ledger.Product")).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(*Product)
		}).Return(nil)

	// 廃棄などでロットBの残数量を4に訂正
	newRemaining := int64(4)
	newNotes := "破損のため廃棄"
	batch, err := lgr.UpdateBatch(ctx, "MED-TEST", "batch-b", BatchPatch{
		QuantityRemaining: &newRemaining,
		Notes:             &newNotes,
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(4), batch.QuantityRemaining)
	assert.Equal(t, newNotes, batch.Notes)
	// 指定しなかったフィールドは不変
	assert.Equal(t, "LOT-B", batch.BatchNumber)

	assert.Equal(t, int64(9), saved.StockQuantity)
	mockStorage.AssertExpectations(t)
}

// TestLedger_UpdateBatch_NotFound は存在しないバッチ更新のテスト
func TestLedger_UpdateBatch_NotFound(t *testing.T) {
	mockStorage := new(MockStorage)
	lgr := newTestLedger(mockStorage)
	ctx := context.Background()

	product := newTestProduct()
	mockStorage.On("GetProduct", ctx, "MED-TEST").Return(product, nil)

	newRemaining := int64(4)
	_, err := lgr.UpdateBatch(ctx, "MED-TEST", "no-such-batch", BatchPatch{
		QuantityRemaining: &newRemaining,
	})

	assert.ErrorIs(t, err, ErrBatchNotFound)
	mockStorage.AssertNotCalled(t, "SaveProduct", mock.Anything, mock.Anything)
}

// TestLedger_UpdateBatch_ExceedsReceived は残数量が入荷数量を超える訂正のテスト
func TestLedger_UpdateBatch_ExceedsReceived(t *testing.T) {
	mockStorage := new(MockStorage)
	lgr := newTestLedger(mockStorage)
	ctx := context.Background()

	product := newTestProduct()
	mockStorage.On("GetProduct", ctx, "MED-TEST").Return(product, nil)

	newRemaining := int64(100) // 入荷数量10を超える
	_, err := lgr.UpdateBatch(ctx, "MED-TEST", "batch-b", BatchPatch{
		QuantityRemaining: &newRemaining,
	})

	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
	mockStorage.AssertNotCalled(t, "SaveProduct", mock.Anything, mock.Anything)
}

// TestLedger_StockQueries は在庫照会系のテスト
func TestLedger_StockQueries(t *testing.T) {
	mockStorage := new(MockStorage)
	lgr := newTestLedger(mockStorage)
	ctx := context.Background()

	product := newTestProduct()
	mockStorage.On("GetProduct", ctx, "MED-TEST").Return(product, nil)

	available, err := lgr.AvailableStock(ctx, "MED-TEST")
	assert.NoError(t, err)
	assert.Equal(t, int64(15), available)

	ok, err := lgr.CanFulfill(ctx, "MED-TEST", 15)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = lgr.CanFulfill(ctx, "MED-TEST", 16)
	assert.NoError(t, err)
	assert.False(t, ok)

	low, err := lgr.IsLowStock(ctx, "MED-TEST")
	assert.NoError(t, err)
	assert.False(t, low)

	price, hasPrice, err := lgr.CurrentPrice(ctx, "MED-TEST")
	assert.NoError(t, err)
	assert.True(t, hasPrice)
	assert.True(t, decimal.NewFromInt(2).Equal(price))
}

// TestLedger_ProductNotFound は存在しない商品のテスト
func TestLedger_ProductNotFound(t *testing.T) {
	mockStorage := new(MockStorage)
	lgr := newTestLedger(mockStorage)
	ctx := context.Background()

	mockStorage.On("GetProduct", ctx, "NO-SUCH").Return(nil, ErrProductNotFound)

	_, err := lgr.AvailableStock(ctx, "NO-SUCH")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = lgr.ReduceStock(ctx, "NO-SUCH", 1, "RX-005")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

// TestLedger_CreateProduct は商品登録のテスト
func TestLedger_CreateProduct(t *testing.T) {
	mockStorage := new(MockStorage)
	lgr := newTestLedger(mockStorage)
	ctx := context.Background()

	mockStorage.On("CreateProduct", ctx, mock.AnythingOfType("*ledger.Product")).Return(nil)

	product := &Product{
		ID:   "MED-NEW",
		Name: "新規医薬品",
	}
	err := lgr.CreateProduct(ctx, product)

	assert.NoError(t, err)
	// 発注点未指定時は設定のデフォルト値
	assert.Equal(t, int64(10), product.ReorderLevel)
	assert.Equal(t, int64(1), product.Version)
	assert.Equal(t, testNow, product.CreatedAt)
	mockStorage.AssertExpectations(t)
}

// TestLedger_CreateProduct_Duplicate は重複商品登録のテスト
func TestLedger_CreateProduct_Duplicate(t *testing.T) {
	mockStorage := new(MockStorage)
	lgr := newTestLedger(mockStorage)
	ctx := context.Background()

	mockStorage.On("CreateProduct", ctx, mock.AnythingOfType("*ledger.Product")).Return(ErrDuplicateProduct)

	err := lgr.CreateProduct(ctx, &Product{ID: "MED-DUP", Name: "重複医薬品"})
	assert.ErrorIs(t, err, ErrDuplicateProduct)
}

// TestLedger_CreateSupplier は仕入先登録のテスト
func TestLedger_CreateSupplier(t *testing.T) {
	mockStorage := new(MockStorage)
	lgr := newTestLedger(mockStorage)
	ctx := context.Background()

	mockStorage.On("CreateSupplier", ctx, mock.AnythingOfType("*ledger.Supplier")).Return(nil)

	supplier := &Supplier{
		ID:   "SUP-01",
		Name: "テスト仕入先",
	}
	err := lgr.CreateSupplier(ctx, supplier)

	assert.NoError(t, err)
	assert.Equal(t, testNow, supplier.CreatedAt)
	mockStorage.AssertExpectations(t)

	// バリデーションエラー
	err = lgr.CreateSupplier(ctx, &Supplier{ID: "", Name: "名前のみ"})
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

// MockPublisher はテスト用のEventPublisherモック
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishStockReduced(ctx context.Context, event StockReducedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) PublishBatchReceived(ctx context.Context, event BatchReceivedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) PublishLowStockAlert(ctx context.Context, event LowStockAlertEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// TestLedger_ReduceStock_PublishesEvent は在庫消費イベント発行のテスト
func TestLedger_ReduceStock_PublishesEvent(t *testing.T) {
	mockStorage := new(MockStorage)
	mockPublisher := new(MockPublisher)
	lgr := NewLedger(mockStorage, mockPublisher, zap.NewNop(), &Config{
		DefaultReorderLevel: 10,
		NearExpiryDays:      30,
		AlertsEnabled:       false,
	})
	lgr.nowFunc = func() time.Time { return testNow }
	ctx := context.Background()

	product := newTestProduct()
	mockStorage.On("GetProduct", ctx, "MED-TEST").Return(product, nil)
	mockStorage.On("SaveProduct", ctx, mock.AnythingOfType("*ledger.Product")).Return(nil)

	var event StockReducedEvent
	mockPublisher.On("PublishStockReduced", ctx, mock.AnythingOfType("ledger.StockReducedEvent")).
		Run(func(args mock.Arguments) {
			event = args.Get(1).(StockReducedEvent)
		}).Return(nil)

	_, err := lgr.ReduceStock(ctx, "MED-TEST", 7, "RX-006")

	assert.NoError(t, err)
	assert.Equal(t, "MED-TEST", event.ProductID)
	assert.Equal(t, int64(7), event.Quantity)
	assert.Equal(t, "RX-006", event.Reason)
	assert.Equal(t, int64(8), event.NewStock)
	assert.Len(t, event.Lines, 2)
	assert.NotEmpty(t, event.TransactionID)
	mockPublisher.AssertExpectations(t)
}

// ベンチマークテスト
func BenchmarkLedger_ReduceStock(b *testing.B) {
	mockStorage := new(MockStorage)
	lgr := newTestLedger(mockStorage)
	ctx := context.Background()

	mockStorage.On("GetProduct", ctx, "MED-TEST").Return(newTestProduct(), nil)
	mockStorage.On("SaveProduct", ctx, mock.AnythingOfType("*ledger.Product")).Return(nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lgr.ReduceStock(ctx, "MED-TEST", 1, "BENCH")
	}
}
