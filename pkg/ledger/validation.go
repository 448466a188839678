package ledger

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
var lotPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ValidateProductID 商品IDの形式をバリデーション
func ValidateProductID(productID string) error {
	if productID == "" {
		return NewValidationError("product_id", "商品IDが空です", productID)
	}
	if len(productID) > 255 {
		return NewValidationError("product_id", "商品IDが長すぎます", productID)
	}
	// 英数字、ハイフン、アンダースコアのみ許可
	if !idPattern.MatchString(productID) {
		return NewValidationError("product_id", "商品IDに無効な文字が含まれています", productID)
	}
	return nil
}

// ValidateProductName 商品名をバリデーション
func ValidateProductName(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewValidationError("name", "商品名が空です", name)
	}
	if len(name) > 500 {
		return NewValidationError("name", "商品名が長すぎます", name)
	}
	return nil
}

// ValidateBatchNumber ロット番号の形式をバリデーション
func ValidateBatchNumber(batchNumber string) error {
	if batchNumber == "" {
		return NewValidationError("batch_number", "ロット番号が空です", batchNumber)
	}
	if len(batchNumber) > 255 {
		return NewValidationError("batch_number", "ロット番号が長すぎます", batchNumber)
	}
	// 英数字、ハイフン、アンダースコア、ドットのみ許可
	if !lotPattern.MatchString(batchNumber) {
		return NewValidationError("batch_number", "ロット番号に無効な文字が含まれています", batchNumber)
	}
	return nil
}

// ValidateQuantity 数量をバリデーション
func ValidateQuantity(quantity int64) error {
	if quantity < 0 {
		return NewValidationError("quantity", "負の数量は許可されていません", fmt.Sprintf("%d", quantity))
	}
	if quantity > 999999999 {
		return NewValidationError("quantity", "数量が有効範囲を超えています", fmt.Sprintf("%d", quantity))
	}
	return nil
}

// ValidateMoney 金額をバリデーション
func ValidateMoney(field string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return NewValidationError(field, "金額は0以上である必要があります", amount.String())
	}
	if amount.GreaterThan(decimal.NewFromInt(999999999)) {
		return NewValidationError(field, "金額が有効範囲を超えています", amount.String())
	}
	return nil
}

// ValidateReorderLevel 発注点をバリデーション
func ValidateReorderLevel(level int64) error {
	if level < 0 {
		return NewValidationError("reorder_level", "発注点は0以上である必要があります", fmt.Sprintf("%d", level))
	}
	return nil
}

// ValidateBatchInput 入荷バッチ入力全体をバリデーション
func ValidateBatchInput(input *BatchInput) error {
	if input == nil {
		return NewValidationError("batch", "バッチ入力が指定されていません", "nil")
	}

	if err := ValidateBatchNumber(input.BatchNumber); err != nil {
		return err
	}
	if input.ExpirationDate.IsZero() {
		return NewValidationError("expiration_date", "有効期限が指定されていません", "")
	}
	if input.QuantityReceived <= 0 {
		return NewValidationError("quantity_received", "入荷数量は正の値である必要があります", fmt.Sprintf("%d", input.QuantityReceived))
	}
	if err := ValidateQuantity(input.QuantityReceived); err != nil {
		return err
	}
	if input.QuantityRemaining != nil {
		if *input.QuantityRemaining < 0 || *input.QuantityRemaining > input.QuantityReceived {
			return NewValidationError("quantity_remaining", "残数量は0以上かつ入荷数量以下である必要があります", fmt.Sprintf("%d", *input.QuantityRemaining))
		}
	}
	if input.UnitCost.IsZero() && input.SalePrice.IsZero() {
		return NewValidationError("unit_cost", "仕入単価と販売単価が指定されていません", "")
	}
	if err := ValidateMoney("unit_cost", input.UnitCost); err != nil {
		return err
	}
	if err := ValidateMoney("sale_price", input.SalePrice); err != nil {
		return err
	}

	return nil
}

// ValidateBatchPatch 部分更新の各フィールドをバリデーション
func ValidateBatchPatch(patch *BatchPatch) error {
	if patch == nil {
		return NewValidationError("patch", "更新内容が指定されていません", "nil")
	}

	if patch.BatchNumber != nil {
		if err := ValidateBatchNumber(*patch.BatchNumber); err != nil {
			return err
		}
	}
	if patch.ExpirationDate != nil && patch.ExpirationDate.IsZero() {
		return NewValidationError("expiration_date", "有効期限が無効です", time.Time{}.String())
	}
	if patch.QuantityRemaining != nil {
		if err := ValidateQuantity(*patch.QuantityRemaining); err != nil {
			return err
		}
	}
	if patch.UnitCost != nil {
		if err := ValidateMoney("unit_cost", *patch.UnitCost); err != nil {
			return err
		}
	}
	if patch.SalePrice != nil {
		if err := ValidateMoney("sale_price", *patch.SalePrice); err != nil {
			return err
		}
	}

	return nil
}

// ValidateProduct 商品全体をバリデーション
func ValidateProduct(product *Product) error {
	if product == nil {
		return NewValidationError("product", "商品が指定されていません", "nil")
	}

	if err := ValidateProductID(product.ID); err != nil {
		return err
	}
	if err := ValidateProductName(product.Name); err != nil {
		return err
	}
	if err := ValidateReorderLevel(product.ReorderLevel); err != nil {
		return err
	}

	// バッチ不変条件: 0 ≤ 残数量 ≤ 入荷数量
	for i := range product.Batches {
		b := &product.Batches[i]
		if b.QuantityRemaining < 0 || b.QuantityRemaining > b.QuantityReceived {
			return NewValidationError("quantity_remaining",
				fmt.Sprintf("バッチ %s の残数量が不変条件に違反しています", b.BatchNumber),
				fmt.Sprintf("%d/%d", b.QuantityRemaining, b.QuantityReceived))
		}
	}

	return nil
}

// ValidateSupplier 仕入先全体をバリデーション
func ValidateSupplier(supplier *Supplier) error {
	if supplier == nil {
		return NewValidationError("supplier", "仕入先が指定されていません", "nil")
	}

	if supplier.ID == "" {
		return NewValidationError("supplier_id", "仕入先IDが空です", supplier.ID)
	}
	if !idPattern.MatchString(supplier.ID) {
		return NewValidationError("supplier_id", "仕入先IDに無効な文字が含まれています", supplier.ID)
	}
	if strings.TrimSpace(supplier.Name) == "" {
		return NewValidationError("name", "仕入先名が空です", supplier.Name)
	}
	if len(supplier.Name) > 500 {
		return NewValidationError("name", "仕入先名が長すぎます", supplier.Name)
	}

	return nil
}
