package ledger

import (
	"errors"
	"fmt"
)

// Common ledger errors
// 共通の在庫台帳エラー定義

var (
	// ErrProductNotFound is returned when a product doesn't exist
	// 商品が存在しない場合のエラー
	ErrProductNotFound = errors.New("商品が見つかりません")

	// ErrBatchNotFound is returned when a batch doesn't exist
	// バッチが存在しない場合のエラー
	ErrBatchNotFound = errors.New("バッチが見つかりません")

	// ErrSupplierNotFound is returned when a supplier doesn't exist
	// 仕入先が存在しない場合のエラー
	ErrSupplierNotFound = errors.New("仕入先が見つかりません")

	// ErrAlertNotFound is returned when an alert doesn't exist
	// アラートが存在しない場合のエラー
	ErrAlertNotFound = errors.New("アラートが見つかりません")

	// ErrInsufficientStock is returned when there's not enough available stock
	// 利用可能在庫が不足している場合のエラー
	ErrInsufficientStock = errors.New("在庫が不足しています")

	// ErrVersionMismatch is returned when optimistic locking fails
	// 楽観的ロック失敗時のエラー
	ErrVersionMismatch = errors.New("バージョンが一致しません。他のユーザーによって更新されています")

	// ErrDuplicateProduct is returned when trying to create a product that already exists
	// 既に存在する商品を作成しようとした場合のエラー
	ErrDuplicateProduct = errors.New("商品は既に存在します")

	// ErrDuplicateSupplier is returned when trying to create a supplier that already exists
	// 既に存在する仕入先を作成しようとした場合のエラー
	ErrDuplicateSupplier = errors.New("仕入先は既に存在します")
)

// InsufficientStockError reports a shortage with its exact size so the
// caller can decide to partial-fulfill, backorder, or reject.
// 不足数量付きの在庫不足エラー（呼び出し側が対応方法を判断する）
type InsufficientStockError struct {
	Requested int64 `json:"requested"` // 要求数量
	Available int64 `json:"available"` // 利用可能数量
	Shortage  int64 `json:"shortage"`  // 不足数量
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("在庫が不足しています (要求: %d, 利用可能: %d, 不足: %d)", e.Requested, e.Available, e.Shortage)
}

// Is reports ErrInsufficientStock as the base sentinel for errors.Is
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// NewInsufficientStockError creates a new insufficient stock error
// 新しい在庫不足エラーを作成
func NewInsufficientStockError(requested, available int64) *InsufficientStockError {
	return &InsufficientStockError{
		Requested: requested,
		Available: available,
		Shortage:  requested - available,
	}
}

// ValidationError represents a validation error with details
// 詳細付きバリデーションエラーを表現
type ValidationError struct {
	Field   string `json:"field"`   // エラーフィールド
	Message string `json:"message"` // エラーメッセージ
	Value   string `json:"value"`   // 無効な値
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("バリデーションエラー [%s]: %s (値: %s)", e.Field, e.Message, e.Value)
}

// StorageError represents a storage layer error
// ストレージ層のエラーを表現
type StorageError struct {
	Operation string `json:"operation"` // 操作名
	Message   string `json:"message"`   // エラーメッセージ
	Cause     error  `json:"cause"`     // 原因エラー
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ストレージエラー [%s]: %s (原因: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("ストレージエラー [%s]: %s", e.Operation, e.Message)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// IntegrityError reports a data-integrity anomaly, such as an allocation
// plan referencing a batch that vanished from the live batch list. Under
// the per-product lock this must not happen; it is surfaced instead of
// being silently under-counted.
// データ整合性異常を表現（引当計画が参照するバッチが消失した場合など）
type IntegrityError struct {
	ProductID string `json:"product_id"` // 商品ID
	BatchID   string `json:"batch_id"`   // バッチID
	Message   string `json:"message"`    // エラーメッセージ
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("整合性エラー [商品: %s, バッチ: %s]: %s", e.ProductID, e.BatchID, e.Message)
}

// NewValidationError creates a new validation error
// 新しいバリデーションエラーを作成
func NewValidationError(field, message, value string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NewStorageError creates a new storage error
// 新しいストレージエラーを作成
func NewStorageError(operation, message string, cause error) *StorageError {
	return &StorageError{
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewIntegrityError creates a new integrity error
// 新しい整合性エラーを作成
func NewIntegrityError(productID, batchID, message string) *IntegrityError {
	return &IntegrityError{
		ProductID: productID,
		BatchID:   batchID,
		Message:   message,
	}
}
