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

// newTestReporter builds a reporter with a fixed clock and mock storage
// 固定クロックとモックストレージでテスト用レポーターを作成
func newTestReporter(storage Storage) *Reporter {
	r := NewReporter(storage, zap.NewNop(), &Config{
		DefaultReorderLevel: 10,
		NearExpiryDays:      30,
		AlertsEnabled:       true,
	})
	r.nowFunc = func() time.Time { return testNow }
	return r
}

// newReportFixture builds products covering expiring, expired and healthy lots
// 期限間近・期限切れ・正常の各ロットを持つテスト商品群を作成
func newReportFixture() []Product {
	return []Product{
		{
			ID:           "MED-EXPIRING",
			Name:         "期限間近医薬品",
			ReorderLevel: 3,
			Batches: []Batch{
				{
					ID:                "soon",
					BatchNumber:       "LOT-S",
					ExpirationDate:    testNow.AddDate(0, 0, 10),
					QuantityReceived:  20,
					QuantityRemaining: 20,
					UnitCost:          decimal.NewFromInt(5),
					SalePrice:         decimal.NewFromInt(12),
				},
			},
		},
		{
			ID:           "MED-EXPIRED",
			Name:         "期限切れ医薬品",
			ReorderLevel: 3,
			Batches: []Batch{
				{
					ID:                "gone",
					BatchNumber:       "LOT-G",
					ExpirationDate:    testNow.AddDate(0, 0, -5),
					QuantityReceived:  10,
					QuantityRemaining: 4,
					UnitCost:          decimal.NewFromInt(2),
					SalePrice:         decimal.NewFromInt(6),
				},
			},
		},
		{
			ID:           "MED-HEALTHY",
			Name:         "正常在庫医薬品",
			ReorderLevel: 3,
			Batches: []Batch{
				{
					ID:                "fine",
					BatchNumber:       "LOT-F",
					ExpirationDate:    testNow.AddDate(1, 0, 0),
					QuantityReceived:  30,
					QuantityRemaining: 30,
					UnitCost:          decimal.NewFromInt(1),
					SalePrice:         decimal.NewFromInt(4),
				},
			},
		},
	}
}

// TestReporter_ExpiringReport は期限間近レポートのテスト
func TestReporter_ExpiringReport(t *testing.T) {
	mockStorage := new(MockStorage)
	reporter := newTestReporter(mockStorage)
	ctx := context.Background()

	mockStorage.On("ListProducts", ctx, 0, 500).Return(newReportFixture(), nil)

	rows, err := reporter.ExpiringReport(ctx, 30*24*time.Hour)

	assert.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "MED-EXPIRING", rows[0].ProductID)
	assert.Equal(t, "LOT-S", rows[0].BatchNumber)
	assert.Equal(t, 10, rows[0].DaysUntil)
	assert.Equal(t, int64(20), rows[0].Quantity)
	// 20個 × 5円
	assert.True(t, decimal.NewFromInt(100).Equal(rows[0].ValueAtCost))
	mockStorage.AssertExpectations(t)
}

// TestReporter_ExpiringReport_InvalidWindow は不正な期間のテスト
func TestReporter_ExpiringReport_InvalidWindow(t *testing.T) {
	mockStorage := new(MockStorage)
	reporter := newTestReporter(mockStorage)

	_, err := reporter.ExpiringReport(context.Background(), 0)
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

// TestReporter_ExpiredReport は期限切れレポートのテスト
func TestReporter_ExpiredReport(t *testing.T) {
	mockStorage := new(MockStorage)
	reporter := newTestReporter(mockStorage)
	ctx := context.Background()

	mockStorage.On("ListProducts", ctx, 0, 500).Return(newReportFixture(), nil)

	rows, err := reporter.ExpiredReport(ctx)

	assert.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "MED-EXPIRED", rows[0].ProductID)
	assert.Equal(t, 5, rows[0].DaysExpired)
	assert.Equal(t, int64(4), rows[0].Quantity)
	mockStorage.AssertExpectations(t)
}

// TestReporter_TotalValuation は在庫全体評価のテスト
func TestReporter_TotalValuation(t *testing.T) {
	mockStorage := new(MockStorage)
	reporter := newTestReporter(mockStorage)
	ctx := context.Background()

	mockStorage.On("ListProducts", ctx, 0, 500).Return(newReportFixture(), nil)

	valuation, err := reporter.TotalValuation(ctx)

	assert.NoError(t, err)
	// 期限切れロットは評価対象外: 20 + 30個
	assert.Equal(t, int64(50), valuation.Quantity)
	// 20×5 + 30×1
	assert.True(t, decimal.NewFromInt(130).Equal(valuation.ValueAtCost))
	// 20×12 + 30×4
	assert.True(t, decimal.NewFromInt(360).Equal(valuation.ValueAtPrice))
	mockStorage.AssertExpectations(t)
}

// TestReporter_ProductValuation は商品別評価のテスト
func TestReporter_ProductValuation(t *testing.T) {
	mockStorage := new(MockStorage)
	reporter := newTestReporter(mockStorage)
	ctx := context.Background()

	fixture := newReportFixture()
	mockStorage.On("GetProduct", ctx, "MED-EXPIRING").Return(&fixture[0], nil)

	valuation, err := reporter.ProductValuation(ctx, "MED-EXPIRING")

	assert.NoError(t, err)
	assert.Equal(t, "MED-EXPIRING", valuation.ProductID)
	assert.Equal(t, int64(20), valuation.Quantity)
	assert.True(t, decimal.NewFromInt(100).Equal(valuation.ValueAtCost))
	mockStorage.AssertExpectations(t)
}

// TestReporter_Dashboard はダッシュボード集計のテスト
func TestReporter_Dashboard(t *testing.T) {
	mockStorage := new(MockStorage)
	reporter := newTestReporter(mockStorage)
	ctx := context.Background()

	mockStorage.On("ListProducts", ctx, 0, 500).Return(newReportFixture(), nil)

	summary, err := reporter.Dashboard(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 3, summary.TotalProducts)
	// 期限切れ商品は利用可能在庫0で低在庫
	assert.Equal(t, 1, summary.LowStockCount)
	assert.Equal(t, 1, summary.ExpiringBatches)
	assert.Equal(t, 1, summary.ExpiredBatches)
	assert.Equal(t, int64(50), summary.TotalQuantity)
	assert.True(t, decimal.NewFromInt(130).Equal(summary.ValueAtCost))
	mockStorage.AssertExpectations(t)
}

// TestReporter_RaiseExpiryAlerts は期限アラート走査のテスト
func TestReporter_RaiseExpiryAlerts(t *testing.T) {
	mockStorage := new(MockStorage)
	reporter := newTestReporter(mockStorage)
	ctx := context.Background()

	mockStorage.On("ListProducts", ctx, 0, 500).Return(newReportFixture(), nil)

	var alerts []*StockAlert
	mockStorage.On("CreateAlert", ctx, mock.AnythingOfType("*ledger.StockAlert")).
		Run(func(args mock.Arguments) {
			alerts = append(alerts, args.Get(1).(*StockAlert))
		}).Return(nil)

	raised, err := reporter.RaiseExpiryAlerts(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 2, raised)
	assert.Len(t, alerts, 2)

	types := map[AlertType]string{}
	for _, alert := range alerts {
		types[alert.Type] = alert.ProductID
	}
	assert.Equal(t, "MED-EXPIRED", types[AlertTypeExpired])
	assert.Equal(t, "MED-EXPIRING", types[AlertTypeExpiring])
	mockStorage.AssertExpectations(t)
}
