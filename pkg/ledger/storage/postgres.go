package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/nemonet1337/yakkyokuGoFramework/pkg/ledger"
)

// PostgreSQLStorage implements the Storage interface using PostgreSQL
// PostgreSQLを使用したStorageインターフェースの実装
type PostgreSQLStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// インターフェース実装の確認
var _ ledger.Storage = (*PostgreSQLStorage)(nil)

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
// 新しいPostgreSQLストレージインスタンスを作成
func NewPostgreSQLStorage(dsn string, logger *zap.Logger) (*PostgreSQLStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	// 接続テスト
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("データベースpingに失敗しました: %w", err)
	}

	// 接続プール設定
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	storage := &PostgreSQLStorage{
		db:     db,
		logger: logger,
	}

	return storage, nil
}

// CreateProduct creates a new product with its initial batches
// 新しい商品を初期バッチとともに作成
func (s *PostgreSQLStorage) CreateProduct(ctx context.Context, product *ledger.Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO products (id, name, sku, category, reorder_level, stock_quantity, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.ExecContext(ctx, query,
		product.ID,
		product.Name,
		product.SKU,
		product.Category,
		product.ReorderLevel,
		product.StockQuantity,
		product.Version,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ledger.ErrDuplicateProduct
		}
		return fmt.Errorf("商品作成に失敗しました: %w", err)
	}

	if err := s.insertBatches(ctx, tx, product.ID, product.Batches); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションコミットに失敗しました: %w", err)
	}

	return nil
}

// GetProduct retrieves a product aggregate (product row plus all batches)
// 商品集約（商品行と全バッチ）を取得
func (s *PostgreSQLStorage) GetProduct(ctx context.Context, productID string) (*ledger.Product, error) {
	query := `
		SELECT id, name, sku, category, reorder_level, stock_quantity, version, created_at, updated_at
		FROM products
		WHERE id = $1`

	product := &ledger.Product{}
	err := s.db.QueryRowContext(ctx, query, productID).Scan(
		&product.ID,
		&product.Name,
		&product.SKU,
		&product.Category,
		&product.ReorderLevel,
		&product.StockQuantity,
		&product.Version,
		&product.CreatedAt,
		&product.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ledger.ErrProductNotFound
		}
		return nil, fmt.Errorf("商品取得に失敗しました: %w", err)
	}

	batches, err := s.loadBatches(ctx, []string{productID})
	if err != nil {
		return nil, err
	}
	product.Batches = batches[productID]

	return product, nil
}

// SaveProduct writes the whole product aggregate in one transaction. The
// products row carries an optimistic lock version: the update only matches
// when the stored version is exactly one behind the version being written.
// 商品集約全体を1トランザクションで保存（楽観的ロックのバージョンで保護）
func (s *PostgreSQLStorage) SaveProduct(ctx context.Context, product *ledger.Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE products
		SET name = $2, sku = $3, category = $4, reorder_level = $5, stock_quantity = $6, version = $7, updated_at = $8
		WHERE id = $1 AND version = $9`

	result, err := tx.ExecContext(ctx, query,
		product.ID,
		product.Name,
		product.SKU,
		product.Category,
		product.ReorderLevel,
		product.StockQuantity,
		product.Version,
		product.UpdatedAt,
		product.Version-1, // 楽観的ロックのための前バージョン
	)

	if err != nil {
		return fmt.Errorf("商品更新に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}

	if rowsAffected == 0 {
		// 行が存在しないかバージョン不一致
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, product.ID).Scan(&exists); err != nil {
			return fmt.Errorf("商品存在確認に失敗しました: %w", err)
		}
		if !exists {
			return ledger.ErrProductNotFound
		}
		return ledger.ErrVersionMismatch
	}

	// バッチは全削除・全挿入で集約と同期
	if _, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE product_id = $1`, product.ID); err != nil {
		return fmt.Errorf("バッチ削除に失敗しました: %w", err)
	}

	if err := s.insertBatches(ctx, tx, product.ID, product.Batches); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションコミットに失敗しました: %w", err)
	}

	return nil
}

// ListProducts retrieves products with pagination, batches included
// ページネーション付きで商品一覧を取得（バッチ込み）
func (s *PostgreSQLStorage) ListProducts(ctx context.Context, offset, limit int) ([]ledger.Product, error) {
	query := `
		SELECT id, name, sku, category, reorder_level, stock_quantity, version, created_at, updated_at
		FROM products
		ORDER BY created_at DESC
		OFFSET $1 LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("商品一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}

	return s.attachBatches(ctx, products)
}

// SearchProducts searches for products by query string
// クエリ文字列で商品を検索
func (s *PostgreSQLStorage) SearchProducts(ctx context.Context, query string) ([]ledger.Product, error) {
	sqlQuery := `
		SELECT id, name, sku, category, reorder_level, stock_quantity, version, created_at, updated_at
		FROM products
		WHERE name ILIKE $1 OR sku ILIKE $1 OR category ILIKE $1
		ORDER BY name`

	searchPattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, sqlQuery, searchPattern)
	if err != nil {
		return nil, fmt.Errorf("商品検索に失敗しました: %w", err)
	}
	defer rows.Close()

	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}

	return s.attachBatches(ctx, products)
}

// CreateSupplier creates a new supplier
// 新しい仕入先を作成
func (s *PostgreSQLStorage) CreateSupplier(ctx context.Context, supplier *ledger.Supplier) error {
	query := `
		INSERT INTO suppliers (id, name, phone, email, address, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		supplier.ID,
		supplier.Name,
		supplier.Phone,
		supplier.Email,
		supplier.Address,
		supplier.IsActive,
		supplier.CreatedAt,
		supplier.UpdatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ledger.ErrDuplicateSupplier
		}
		return fmt.Errorf("仕入先作成に失敗しました: %w", err)
	}

	return nil
}

// GetSupplier retrieves a supplier by ID
// IDで仕入先を取得
func (s *PostgreSQLStorage) GetSupplier(ctx context.Context, supplierID string) (*ledger.Supplier, error) {
	query := `
		SELECT id, name, phone, email, address, is_active, created_at, updated_at
		FROM suppliers
		WHERE id = $1`

	supplier := &ledger.Supplier{}
	err := s.db.QueryRowContext(ctx, query, supplierID).Scan(
		&supplier.ID,
		&supplier.Name,
		&supplier.Phone,
		&supplier.Email,
		&supplier.Address,
		&supplier.IsActive,
		&supplier.CreatedAt,
		&supplier.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ledger.ErrSupplierNotFound
		}
		return nil, fmt.Errorf("仕入先取得に失敗しました: %w", err)
	}

	return supplier, nil
}

// UpdateSupplier updates an existing supplier
// 既存の仕入先を更新
func (s *PostgreSQLStorage) UpdateSupplier(ctx context.Context, supplier *ledger.Supplier) error {
	query := `
		UPDATE suppliers
		SET name = $2, phone = $3, email = $4, address = $5, is_active = $6, updated_at = $7
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query,
		supplier.ID,
		supplier.Name,
		supplier.Phone,
		supplier.Email,
		supplier.Address,
		supplier.IsActive,
		supplier.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("仕入先更新に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}

	if rowsAffected == 0 {
		return ledger.ErrSupplierNotFound
	}

	return nil
}

// ListSuppliers retrieves suppliers with pagination
// ページネーション付きで仕入先一覧を取得
func (s *PostgreSQLStorage) ListSuppliers(ctx context.Context, offset, limit int) ([]ledger.Supplier, error) {
	query := `
		SELECT id, name, phone, email, address, is_active, created_at, updated_at
		FROM suppliers
		ORDER BY created_at DESC
		OFFSET $1 LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("仕入先一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var suppliers []ledger.Supplier
	for rows.Next() {
		var supplier ledger.Supplier
		err := rows.Scan(
			&supplier.ID,
			&supplier.Name,
			&supplier.Phone,
			&supplier.Email,
			&supplier.Address,
			&supplier.IsActive,
			&supplier.CreatedAt,
			&supplier.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("仕入先スキャンに失敗しました: %w", err)
		}
		suppliers = append(suppliers, supplier)
	}

	return suppliers, nil
}

// CreateAlert creates a new stock alert
// 新しい在庫アラートを作成
func (s *PostgreSQLStorage) CreateAlert(ctx context.Context, alert *ledger.StockAlert) error {
	query := `
		INSERT INTO stock_alerts (id, type, product_id, batch_id, current_qty, threshold, message, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.ExecContext(ctx, query,
		alert.ID,
		alert.Type,
		alert.ProductID,
		alert.BatchID,
		alert.CurrentQty,
		alert.Threshold,
		alert.Message,
		alert.IsActive,
		alert.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("アラート作成に失敗しました: %w", err)
	}

	return nil
}

// GetActiveAlerts retrieves active alerts for a product (empty ID = all)
// 商品のアクティブアラートを取得（ID未指定で全件）
func (s *PostgreSQLStorage) GetActiveAlerts(ctx context.Context, productID string) ([]ledger.StockAlert, error) {
	query := `
		SELECT id, type, product_id, batch_id, current_qty, threshold, message, is_active, created_at, resolved_at
		FROM stock_alerts
		WHERE is_active = true AND ($1 = '' OR product_id = $1)
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("アラート取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var alerts []ledger.StockAlert
	for rows.Next() {
		var alert ledger.StockAlert
		err := rows.Scan(
			&alert.ID,
			&alert.Type,
			&alert.ProductID,
			&alert.BatchID,
			&alert.CurrentQty,
			&alert.Threshold,
			&alert.Message,
			&alert.IsActive,
			&alert.CreatedAt,
			&alert.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("アラートスキャンに失敗しました: %w", err)
		}
		alerts = append(alerts, alert)
	}

	return alerts, nil
}

// ResolveAlert resolves an alert by setting it inactive
// アラートを非アクティブにして解決
func (s *PostgreSQLStorage) ResolveAlert(ctx context.Context, alertID string) error {
	now := time.Now()
	query := `
		UPDATE stock_alerts
		SET is_active = false, resolved_at = $2
		WHERE id = $1 AND is_active = true`

	result, err := s.db.ExecContext(ctx, query, alertID, now)
	if err != nil {
		return fmt.Errorf("アラート解決に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}

	if rowsAffected == 0 {
		return ledger.ErrAlertNotFound
	}

	return nil
}

// Ping checks database connectivity
// データベース接続をチェック
func (s *PostgreSQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
// データベース接続を閉じる
func (s *PostgreSQLStorage) Close() error {
	return s.db.Close()
}

// insertBatches bulk-inserts the aggregate's batches inside a transaction
// トランザクション内で集約のバッチを一括挿入
func (s *PostgreSQLStorage) insertBatches(ctx context.Context, tx *sql.Tx, productID string, batches []ledger.Batch) error {
	if len(batches) == 0 {
		return nil
	}

	query := `
		INSERT INTO batches (id, product_id, batch_number, expiration_date, quantity_received, quantity_remaining, unit_cost, sale_price, received_date, supplier_id, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	for i := range batches {
		b := &batches[i]
		_, err := tx.ExecContext(ctx, query,
			b.ID,
			productID,
			b.BatchNumber,
			b.ExpirationDate,
			b.QuantityReceived,
			b.QuantityRemaining,
			b.UnitCost,
			b.SalePrice,
			b.ReceivedDate,
			b.SupplierID,
			b.Notes,
			b.CreatedAt,
			b.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("バッチ挿入に失敗しました: %w", err)
		}
	}

	return nil
}

// loadBatches loads batches for a set of products keyed by product ID
// 複数商品のバッチを商品IDキーでまとめて読み込み
func (s *PostgreSQLStorage) loadBatches(ctx context.Context, productIDs []string) (map[string][]ledger.Batch, error) {
	if len(productIDs) == 0 {
		return map[string][]ledger.Batch{}, nil
	}

	query := `
		SELECT id, product_id, batch_number, expiration_date, quantity_received, quantity_remaining, unit_cost, sale_price, received_date, supplier_id, notes, created_at, updated_at
		FROM batches
		WHERE product_id = ANY($1)
		ORDER BY expiration_date ASC, received_date ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(productIDs))
	if err != nil {
		return nil, fmt.Errorf("バッチ取得に失敗しました: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]ledger.Batch, len(productIDs))
	for rows.Next() {
		var b ledger.Batch
		var productID string
		err := rows.Scan(
			&b.ID,
			&productID,
			&b.BatchNumber,
			&b.ExpirationDate,
			&b.QuantityReceived,
			&b.QuantityRemaining,
			&b.UnitCost,
			&b.SalePrice,
			&b.ReceivedDate,
			&b.SupplierID,
			&b.Notes,
			&b.CreatedAt,
			&b.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("バッチスキャンに失敗しました: %w", err)
		}
		result[productID] = append(result[productID], b)
	}

	return result, nil
}

// attachBatches loads and attaches batches to a product slice
// 商品スライスにバッチを読み込んで付与
func (s *PostgreSQLStorage) attachBatches(ctx context.Context, products []ledger.Product) ([]ledger.Product, error) {
	ids := make([]string, 0, len(products))
	for i := range products {
		ids = append(ids, products[i].ID)
	}

	batches, err := s.loadBatches(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range products {
		products[i].Batches = batches[products[i].ID]
	}

	return products, nil
}

// scanProducts scans product rows without batches
// バッチなしで商品行をスキャン
func scanProducts(rows *sql.Rows) ([]ledger.Product, error) {
	var products []ledger.Product
	for rows.Next() {
		var product ledger.Product
		err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.SKU,
			&product.Category,
			&product.ReorderLevel,
			&product.StockQuantity,
			&product.Version,
			&product.CreatedAt,
			&product.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("商品スキャンに失敗しました: %w", err)
		}
		products = append(products, product)
	}

	return products, nil
}
