package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/rl1809/catalog-service/internal/core/domain"
	"github.com/rl1809/catalog-service/internal/core/service"
)

type orderCreator interface {
	CreateOrder(ctx context.Context, req service.OrderRequest) (*domain.Order, error)
}

type searcher interface {
	Search(ctx context.Context, q service.SearchQuery) (*service.SearchResult, error)
}

type variantReader interface {
	Get(ctx context.Context, variantID uint64) (*domain.VariantDetail, error)
}

type userDirectory interface {
	GetUserDetails(ctx context.Context, userID uint64) (*domain.UserDetail, error)
	UpdateUserDetails(ctx context.Context, userID uint64, update service.UserUpdate) (*domain.UserDetail, error)
}

type batchSyncer interface {
	RunOnce(ctx context.Context) (int, error)
}

type HTTPHandler struct {
	orders   orderCreator
	search   searcher
	variants variantReader
	users    userDirectory
	batch    batchSyncer
	health   *HealthReporter
}

type CreateOrderHTTPRequest struct {
	UserID    uint64 `json:"user_id,string" binding:"required"`
	VariantID uint64 `json:"variant_id,string" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
	Address   string `json:"address" binding:"required"`
}

type OrderHTTPResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Order   *domain.Order `json:"order,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func NewHTTPHandler(
	orders orderCreator,
	search searcher,
	variants variantReader,
	users userDirectory,
	batch batchSyncer,
	health *HealthReporter,
) *HTTPHandler {
	return &HTTPHandler{
		orders:   orders,
		search:   search,
		variants: variants,
		users:    users,
		batch:    batch,
		health:   health,
	}
}

func (h *HTTPHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	api.POST("/orders", h.CreateOrder)
	api.GET("/search", h.Search)
	api.GET("/variants/:id", h.GetVariant)
	api.GET("/users/:id", h.GetUser)
	api.PUT("/users/:id", h.UpdateUser)
	api.POST("/admin/sync", h.TriggerSync)
}

func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), service.OrderRequest{
		UserID:    req.UserID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
		Address:   req.Address,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, OrderHTTPResponse{
		Success: true,
		Message: "order placed successfully",
		Order:   order,
	})
}

func (h *HTTPHandler) Search(c *gin.Context) {
	q, err := parseSearchQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
		return
	}

	res, err := h.search.Search(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *HTTPHandler) GetVariant(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	d, err := h.variants.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !d.Variant.Active {
		writeError(c, domain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *HTTPHandler) GetUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	u, err := h.users.GetUserDetails(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *HTTPHandler) UpdateUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var update service.UserUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	u, err := h.users.UpdateUserDetails(c.Request.Context(), id, update)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *HTTPHandler) TriggerSync(c *gin.Context) {
	n, err := h.batch.RunOnce(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "documents": n})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	report := h.health.Check(c.Request.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func parseSearchQuery(c *gin.Context) (service.SearchQuery, error) {
	q := service.SearchQuery{Text: c.Query("q")}

	if raw := c.Query("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				q.Tags = append(q.Tags, t)
			}
		}
	}

	var err error
	if q.MinTagMatch, err = queryInt(c, "min_tag_match"); err != nil {
		return q, err
	}
	if q.Page, err = queryInt(c, "page"); err != nil {
		return q, err
	}
	if q.Size, err = queryInt(c, "size"); err != nil {
		return q, err
	}
	if q.MinPrice, err = queryDecimal(c, "min_price"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = queryDecimal(c, "max_price"); err != nil {
		return q, err
	}
	return q, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func queryDecimal(c *gin.Context, key string) (*decimal.Decimal, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &d, nil
}

func pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid id"})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	status, message := statusFor(err)
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	_ = c.Error(err)
	c.JSON(status, ErrorResponse{Message: message})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, "insufficient stock"
	case errors.Is(err, domain.ErrBusy):
		return http.StatusServiceUnavailable, "resource busy, try again"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
