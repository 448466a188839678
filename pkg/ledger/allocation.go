package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// sortFEFO sorts batches for First-Expired-First-Out consumption.
// Ties on the expiration date are broken by received date, then batch ID,
// so the same batch set always allocates in the same order.
// バッチを先期限先出し順にソート（同一期限は入荷日→バッチIDで決定的に順序付け）
func sortFEFO(batches []Batch) {
	sort.Slice(batches, func(i, j int) bool {
		if !batches[i].ExpirationDate.Equal(batches[j].ExpirationDate) {
			return batches[i].ExpirationDate.Before(batches[j].ExpirationDate)
		}
		if !batches[i].ReceivedDate.Equal(batches[j].ReceivedDate) {
			return batches[i].ReceivedDate.Before(batches[j].ReceivedDate)
		}
		return batches[i].ID < batches[j].ID
	})
}

// PlanAllocation walks the product's available batches in FEFO order and
// builds an allocation plan for the requested quantity. It is a pure
// planning step: no batch is mutated. On shortage it returns an
// InsufficientStockError carrying the exact shortage and leaves the
// batches untouched.
// 要求数量に対する引当計画を先期限先出し順で作成（純粋な計画ステップ、状態は変更しない）
func PlanAllocation(product *Product, requested int64, at time.Time) (*AllocationPlan, error) {
	if requested <= 0 {
		return nil, NewValidationError("quantity", "数量は正の値である必要があります", fmt.Sprintf("%d", requested))
	}

	available := product.AvailableBatches(at)

	var totalAvailable int64
	for _, b := range available {
		totalAvailable += b.QuantityRemaining
	}

	if totalAvailable < requested {
		return nil, NewInsufficientStockError(requested, totalAvailable)
	}

	plan := &AllocationPlan{
		Lines:        make([]AllocationLine, 0, len(available)),
		TotalCost:    decimal.Zero,
		TotalRevenue: decimal.Zero,
	}

	remaining := requested
	for _, b := range available {
		if remaining <= 0 {
			break
		}

		take := b.QuantityRemaining
		if take > remaining {
			take = remaining
		}

		qty := decimal.NewFromInt(take)
		plan.Lines = append(plan.Lines, AllocationLine{
			BatchID:        b.ID,
			BatchNumber:    b.BatchNumber,
			Quantity:       take,
			UnitCost:       b.UnitCost,
			SalePrice:      b.SalePrice,
			ExpirationDate: b.ExpirationDate,
		})
		plan.TotalQuantity += take
		plan.TotalCost = plan.TotalCost.Add(b.UnitCost.Mul(qty))
		plan.TotalRevenue = plan.TotalRevenue.Add(b.SalePrice.Mul(qty))

		remaining -= take
	}

	return plan, nil
}

// applyAllocation subtracts each planned line from the live batch list.
// Every planned batch must still exist; a vanished batch is a
// data-integrity fault and aborts the apply before any persistence.
// 引当計画をバッチリストへ適用（計画対象バッチの消失は整合性エラーとして中断）
func applyAllocation(product *Product, plan *AllocationPlan) error {
	for _, line := range plan.Lines {
		batch := product.FindBatch(line.BatchID)
		if batch == nil {
			return NewIntegrityError(product.ID, line.BatchID, "引当計画が参照するバッチが存在しません")
		}
		if batch.QuantityRemaining < line.Quantity {
			return NewIntegrityError(product.ID, line.BatchID,
				fmt.Sprintf("バッチ残数量が引当数量を下回っています (残: %d, 引当: %d)", batch.QuantityRemaining, line.Quantity))
		}
		batch.QuantityRemaining -= line.Quantity
	}
	return nil
}
