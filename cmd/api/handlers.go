package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nemonet1337/yakkyokuGoFramework/pkg/ledger"
)

// Handlers holds HTTP handlers for the batch ledger API
// バッチ台帳API用のHTTPハンドラーを保持
type Handlers struct {
	ledger   *ledger.Ledger
	reporter *ledger.Reporter
	storage  ledger.Storage
	logger   *zap.Logger
}

// NewHandlers creates new HTTP handlers
// 新しいHTTPハンドラーを作成
func NewHandlers(lgr *ledger.Ledger, reporter *ledger.Reporter, storage ledger.Storage, logger *zap.Logger) *Handlers {
	return &Handlers{
		ledger:   lgr,
		reporter: reporter,
		storage:  storage,
		logger:   logger,
	}
}

// APIResponse represents standard API response format
// 標準的なAPIレスポンス形式を表現
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// AllocateRequest represents an allocation planning request
// 引当計画リクエストを表現
type AllocateRequest struct {
	Quantity int64 `json:"quantity"`
}

// ReduceStockRequest represents a stock consumption request
// 在庫消費リクエストを表現
type ReduceStockRequest struct {
	Quantity int64  `json:"quantity"`
	Reason   string `json:"reason"`
}

// HealthCheck handles health check requests
// ヘルスチェックリクエストを処理
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := h.storage.Ping(r.Context()); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	response := APIResponse{
		Success: code == http.StatusOK,
		Data: map[string]interface{}{
			"status":    status,
			"timestamp": time.Now(),
			"service":   "yakkyokuGoFramework",
		},
	}

	json.NewEncoder(w).Encode(response)
}

// CreateProduct handles create product requests
// 商品作成リクエストを処理
func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var product ledger.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	if err := h.ledger.CreateProduct(r.Context(), &product); err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, product)
}

// GetProduct handles get product requests
// 商品取得リクエストを処理
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	productID := vars["productId"]

	product, err := h.ledger.GetProduct(r.Context(), productID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, product)
}

// UpdateProduct handles update product requests
// 商品更新リクエストを処理
func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	productID := vars["productId"]

	var product ledger.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}
	product.ID = productID

	if err := h.ledger.UpdateProduct(r.Context(), &product); err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, product)
}

// ListProducts handles list products requests
// 商品一覧リクエストを処理
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)

	products, err := h.ledger.ListProducts(r.Context(), offset, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, products)
}

// SearchProducts handles search products requests
// 商品検索リクエストを処理
func (h *Handlers) SearchProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.sendError(w, http.StatusBadRequest, "検索クエリが指定されていません")
		return
	}

	products, err := h.ledger.SearchProducts(r.Context(), query)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, products)
}

// AddBatch handles batch receiving requests
// バッチ入荷リクエストを処理
func (h *Handlers) AddBatch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	productID := vars["productId"]

	var input ledger.BatchInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	batch, err := h.ledger.AddBatch(r.Context(), productID, input)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, batch)
}

// UpdateBatch handles batch correction requests
// バッチ訂正リクエストを処理
func (h *Handlers) UpdateBatch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	productID := vars["productId"]
	batchID := vars["batchId"]

	var patch ledger.BatchPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	batch, err := h.ledger.UpdateBatch(r.Context(), productID, batchID, patch)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, batch)
}

// Allocate handles allocation planning requests (no state change)
// 引当計画リクエストを処理（状態変更なし）
func (h *Handlers) Allocate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	productID := vars["productId"]

	var req AllocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	plan, err := h.ledger.Allocate(r.Context(), productID, req.Quantity)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, plan)
}

// ReduceStock handles stock consumption requests
// 在庫消費リクエストを処理
func (h *Handlers) ReduceStock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	productID := vars["productId"]

	var req ReduceStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	lines, err := h.ledger.ReduceStock(r.Context(), productID, req.Quantity, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, map[string]interface{}{
		"lines": lines,
	})
}

// GetStock handles stock inquiry requests
// 在庫照会リクエストを処理
func (h *Handlers) GetStock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	productID := vars["productId"]

	available, err := h.ledger.AvailableStock(r.Context(), productID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	lowStock, err := h.ledger.IsLowStock(r.Context(), productID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, map[string]interface{}{
		"product_id":   productID,
		"available":    available,
		"is_low_stock": lowStock,
	})
}

// CanFulfill handles fulfillment check requests
// 引当可否チェックリクエストを処理
func (h *Handlers) CanFulfill(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	productID := vars["productId"]

	quantity, err := strconv.ParseInt(r.URL.Query().Get("quantity"), 10, 64)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "無効な数量パラメータです")
		return
	}

	ok, err := h.ledger.CanFulfill(r.Context(), productID, quantity)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, map[string]interface{}{
		"product_id":  productID,
		"quantity":    quantity,
		"can_fulfill": ok,
	})
}

// GetCurrentPrice handles current price requests
// 現在価格リクエストを処理
func (h *Handlers) GetCurrentPrice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	productID := vars["productId"]

	price, ok, err := h.ledger.CurrentPrice(r.Context(), productID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	if !ok {
		h.sendError(w, http.StatusNotFound, "販売可能な在庫がありません")
		return
	}

	h.sendSuccess(w, map[string]interface{}{
		"product_id": productID,
		"price":      price,
	})
}

// GetExpiredBatches handles expired batch listing per product
// 商品ごとの期限切れバッチ一覧リクエストを処理
func (h *Handlers) GetExpiredBatches(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	productID := vars["productId"]

	batches, err := h.ledger.ExpiredBatches(r.Context(), productID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, batches)
}

// GetAlerts handles get alerts requests
// アラート取得リクエストを処理
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("product_id")

	alerts, err := h.ledger.GetAlerts(r.Context(), productID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, alerts)
}

// ResolveAlert handles resolve alert requests
// アラート解決リクエストを処理
func (h *Handlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	alertID := vars["alertId"]

	if err := h.ledger.ResolveAlert(r.Context(), alertID); err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, map[string]string{
		"message": "アラートが解決されました",
	})
}

// CreateSupplier handles create supplier requests
// 仕入先作成リクエストを処理
func (h *Handlers) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var supplier ledger.Supplier
	if err := json.NewDecoder(r.Body).Decode(&supplier); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	if err := h.ledger.CreateSupplier(r.Context(), &supplier); err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, supplier)
}

// GetSupplier handles get supplier requests
// 仕入先取得リクエストを処理
func (h *Handlers) GetSupplier(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	supplierID := vars["supplierId"]

	supplier, err := h.ledger.GetSupplier(r.Context(), supplierID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, supplier)
}

// UpdateSupplier handles update supplier requests
// 仕入先更新リクエストを処理
func (h *Handlers) UpdateSupplier(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	supplierID := vars["supplierId"]

	var supplier ledger.Supplier
	if err := json.NewDecoder(r.Body).Decode(&supplier); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}
	supplier.ID = supplierID

	if err := h.ledger.UpdateSupplier(r.Context(), &supplier); err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, supplier)
}

// ListSuppliers handles list suppliers requests
// 仕入先一覧リクエストを処理
func (h *Handlers) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)

	suppliers, err := h.ledger.ListSuppliers(r.Context(), offset, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, suppliers)
}

// ExpiringReport handles expiring stock report requests
// 期限間近在庫レポートリクエストを処理
func (h *Handlers) ExpiringReport(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)

	rows, err := h.reporter.ExpiringReport(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, rows)
}

// ExpiredReport handles expired stock report requests
// 期限切れ在庫レポートリクエストを処理
func (h *Handlers) ExpiredReport(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reporter.ExpiredReport(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, rows)
}

// TotalValuation handles total valuation requests
// 在庫全体評価リクエストを処理
func (h *Handlers) TotalValuation(w http.ResponseWriter, r *http.Request) {
	valuation, err := h.reporter.TotalValuation(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, valuation)
}

// ProductValuation handles per-product valuation requests
// 商品別評価リクエストを処理
func (h *Handlers) ProductValuation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	productID := vars["productId"]

	valuation, err := h.reporter.ProductValuation(r.Context(), productID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, valuation)
}

// Dashboard handles dashboard summary requests
// ダッシュボード集計リクエストを処理
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reporter.Dashboard(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, summary)
}

// ScanExpiryAlerts handles expiry alert scan requests
// 期限アラート走査リクエストを処理
func (h *Handlers) ScanExpiryAlerts(w http.ResponseWriter, r *http.Request) {
	raised, err := h.reporter.RaiseExpiryAlerts(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sendSuccess(w, map[string]int{
		"raised": raised,
	})
}

// ヘルパーメソッド

// respondError maps domain errors to HTTP status codes
// ドメインエラーをHTTPステータスコードにマッピング
func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	var validationErr *ledger.ValidationError
	var insufficientErr *ledger.InsufficientStockError
	var integrityErr *ledger.IntegrityError

	switch {
	case errors.As(err, &validationErr):
		h.sendError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &insufficientErr):
		h.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrProductNotFound),
		errors.Is(err, ledger.ErrBatchNotFound),
		errors.Is(err, ledger.ErrSupplierNotFound),
		errors.Is(err, ledger.ErrAlertNotFound):
		h.sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrDuplicateProduct),
		errors.Is(err, ledger.ErrDuplicateSupplier),
		errors.Is(err, ledger.ErrVersionMismatch):
		h.sendError(w, http.StatusConflict, err.Error())
	case errors.As(err, &integrityErr):
		h.sendError(w, http.StatusInternalServerError, err.Error())
	default:
		h.logger.Error("ハンドラーで予期しないエラーが発生しました", zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, err.Error())
	}
}

// sendSuccess sends a successful API response
// 成功APIレスポンスを送信
func (h *Handlers) sendSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := APIResponse{
		Success: true,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("レスポンス送信に失敗しました", zap.Error(err))
	}
}

// sendError sends an error API response
// エラーAPIレスポンスを送信
func (h *Handlers) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error:   message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("エラーレスポンス送信に失敗しました", zap.Error(err))
	}
}

// queryInt reads an integer query parameter with a default
// デフォルト値付きで整数クエリパラメータを取得
func queryInt(r *http.Request, key string, defaultValue int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			return v
		}
	}
	return defaultValue
}
