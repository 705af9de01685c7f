package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	appinventory "github.com/xiebiao/bookstore-ledger/internal/application/inventory"
	"github.com/xiebiao/bookstore-ledger/internal/interface/http/dto"
	"github.com/xiebiao/bookstore-ledger/internal/interface/http/middleware"
	apperrors "github.com/xiebiao/bookstore-ledger/pkg/errors"
	"github.com/xiebiao/bookstore-ledger/pkg/response"
)

// InventoryHandler 库存HTTP处理器
type InventoryHandler struct {
	stock *appinventory.StockService
	query *appinventory.QueryService
}

// NewInventoryHandler 创建库存处理器
func NewInventoryHandler(stock *appinventory.StockService, query *appinventory.QueryService) *InventoryHandler {
	return &InventoryHandler{
		stock: stock,
		query: query,
	}
}

// Create 创建库存记录
// @Summary      创建库存记录
// @Description  为目录中的图书创建库存记录，每本图书只能创建一次
// @Tags         库存
// @Accept       json
// @Produce      json
// @Param        X-Operator header string false "操作人"
// @Param        request body dto.CreateInventoryRequest true "库存信息"
// @Success      200 {object} response.Response{data=appinventory.InventorySummary}
// @Failure      200 {object} response.Response "40009 重复创建 / 40402 图书不存在 / 40903 阈值非法"
// @Router       /api/v1/inventories [post]
func (h *InventoryHandler) Create(c *gin.Context) {
	var req dto.CreateInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeBindError, "参数错误: "+err.Error())
		return
	}

	result, err := h.stock.Create(c.Request.Context(), appinventory.CreateInventoryRequest{
		BookID:            req.BookID,
		QuantityAvailable: req.QuantityAvailable,
		StockMin:          req.StockMin,
		StockMax:          req.StockMax,
		Actor:             middleware.GetOperator(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// List 库存列表
// @Summary      库存列表
// @Description  不传active时返回全部记录
// @Tags         库存
// @Produce      json
// @Param        active query bool false "是否启用"
// @Success      200 {object} response.Response{data=[]appinventory.InventorySummary}
// @Router       /api/v1/inventories [get]
func (h *InventoryHandler) List(c *gin.Context) {
	raw, ok := c.GetQuery("active")
	if !ok || raw == "" {
		list, err := h.query.ListAll(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, list)
		return
	}

	active, err := strconv.ParseBool(raw)
	if err != nil {
		response.Error(c, apperrors.ErrInvalidParams.WithField("inventory", "active", raw))
		return
	}
	list, err := h.query.ListByActiveStatus(c.Request.Context(), active)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// ListLowStock 低库存预警列表
// @Summary      低库存预警列表
// @Tags         库存
// @Produce      json
// @Success      200 {object} response.Response{data=[]appinventory.InventorySummary}
// @Router       /api/v1/inventories/low-stock [get]
func (h *InventoryHandler) ListLowStock(c *gin.Context) {
	list, err := h.query.ListLowStockAlert(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// GetByID 按库存ID查询详情
// @Summary      库存详情
// @Tags         库存
// @Produce      json
// @Param        id path int true "库存ID"
// @Success      200 {object} response.Response{data=appinventory.InventoryDetail}
// @Failure      200 {object} response.Response "40404 库存记录不存在"
// @Router       /api/v1/inventories/{id} [get]
func (h *InventoryHandler) GetByID(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	detail, err := h.query.FindByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}

// Disable 停用库存记录
// @Summary      停用库存记录
// @Description  重复停用不会报错，每次都会记录一条DISABLE变动
// @Tags         库存
// @Produce      json
// @Param        X-Operator header string false "操作人"
// @Param        id path int true "库存ID"
// @Success      200 {object} response.Response
// @Router       /api/v1/inventories/{id} [delete]
func (h *InventoryHandler) Disable(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.stock.DisableByID(c.Request.Context(), id, middleware.GetOperator(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// GetByBookID 按图书ID查询详情
// @Summary      图书库存详情
// @Description  含图书信息和实际可售数量（可用 - 预留）
// @Tags         库存
// @Produce      json
// @Param        book_id path int true "图书ID"
// @Success      200 {object} response.Response{data=appinventory.InventoryDetail}
// @Router       /api/v1/inventories/book/{book_id} [get]
func (h *InventoryHandler) GetByBookID(c *gin.Context) {
	bookID, ok := uintParam(c, "book_id")
	if !ok {
		return
	}
	detail, err := h.query.FindByBookID(c.Request.Context(), bookID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}

// CheckAvailability 查询可售状态
// @Summary      可售状态
// @Tags         库存
// @Produce      json
// @Param        book_id path int true "图书ID"
// @Success      200 {object} response.Response{data=appinventory.AvailabilityView}
// @Router       /api/v1/inventories/book/{book_id}/availability [get]
func (h *InventoryHandler) CheckAvailability(c *gin.Context) {
	bookID, ok := uintParam(c, "book_id")
	if !ok {
		return
	}
	view, err := h.query.CheckAvailability(c.Request.Context(), bookID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// RegisterSale 销售出库
// @Summary      销售出库
// @Tags         库存变更
// @Accept       json
// @Produce      json
// @Param        X-Operator header string false "操作人"
// @Param        book_id path int true "图书ID"
// @Param        request body dto.StockChangeRequest true "数量"
// @Success      200 {object} response.Response{data=appinventory.InventorySummary}
// @Failure      200 {object} response.Response "40001 可用库存不足 / 40010 并发冲突"
// @Router       /api/v1/inventories/book/{book_id}/sales [post]
func (h *InventoryHandler) RegisterSale(c *gin.Context) {
	h.change(c, h.stock.RegisterSale)
}

// RegisterEntry 采购入库
// @Summary      采购入库
// @Tags         库存变更
// @Accept       json
// @Produce      json
// @Param        X-Operator header string false "操作人"
// @Param        book_id path int true "图书ID"
// @Param        request body dto.StockChangeRequest true "数量"
// @Success      200 {object} response.Response{data=appinventory.InventorySummary}
// @Router       /api/v1/inventories/book/{book_id}/entries [post]
func (h *InventoryHandler) RegisterEntry(c *gin.Context) {
	h.change(c, h.stock.RegisterEntry)
}

// RegisterReturn 退货入库
// @Summary      退货入库
// @Tags         库存变更
// @Accept       json
// @Produce      json
// @Param        X-Operator header string false "操作人"
// @Param        book_id path int true "图书ID"
// @Param        request body dto.StockChangeRequest true "数量"
// @Success      200 {object} response.Response{data=appinventory.InventorySummary}
// @Router       /api/v1/inventories/book/{book_id}/returns [post]
func (h *InventoryHandler) RegisterReturn(c *gin.Context) {
	h.change(c, h.stock.RegisterReturn)
}

// PositiveAdjustment 正向盘点调整
// @Summary      正向盘点调整
// @Tags         库存变更
// @Accept       json
// @Produce      json
// @Param        X-Operator header string false "操作人"
// @Param        book_id path int true "图书ID"
// @Param        request body dto.StockChangeRequest true "数量"
// @Success      200 {object} response.Response{data=appinventory.InventorySummary}
// @Router       /api/v1/inventories/book/{book_id}/adjustments/positive [post]
func (h *InventoryHandler) PositiveAdjustment(c *gin.Context) {
	h.change(c, h.stock.PositiveAdjustment)
}

// NegativeAdjustment 负向盘点调整
// @Summary      负向盘点调整
// @Tags         库存变更
// @Accept       json
// @Produce      json
// @Param        X-Operator header string false "操作人"
// @Param        book_id path int true "图书ID"
// @Param        request body dto.StockChangeRequest true "数量"
// @Success      200 {object} response.Response{data=appinventory.InventorySummary}
// @Failure      200 {object} response.Response "40902 调整后库存为负"
// @Router       /api/v1/inventories/book/{book_id}/adjustments/negative [post]
func (h *InventoryHandler) NegativeAdjustment(c *gin.Context) {
	h.change(c, h.stock.NegativeAdjustment)
}

// ReserveStock 预留库存
// @Summary      预留库存
// @Tags         库存变更
// @Accept       json
// @Produce      json
// @Param        X-Operator header string false "操作人"
// @Param        book_id path int true "图书ID"
// @Param        request body dto.ReservationRequest true "数量"
// @Success      200 {object} response.Response
// @Router       /api/v1/inventories/book/{book_id}/reservations [post]
func (h *InventoryHandler) ReserveStock(c *gin.Context) {
	h.reservation(c, h.stock.ReserveStock)
}

// ReleaseReservation 释放预留
// @Summary      释放预留
// @Tags         库存变更
// @Accept       json
// @Produce      json
// @Param        X-Operator header string false "操作人"
// @Param        book_id path int true "图书ID"
// @Param        request body dto.ReservationRequest true "数量"
// @Success      200 {object} response.Response
// @Failure      200 {object} response.Response "40006 预留库存不足"
// @Router       /api/v1/inventories/book/{book_id}/reservations/release [post]
func (h *InventoryHandler) ReleaseReservation(c *gin.Context) {
	h.reservation(c, h.stock.ReleaseReservation)
}

// UpdateThresholds 更新库存阈值
// @Summary      更新库存阈值
// @Tags         库存变更
// @Accept       json
// @Produce      json
// @Param        X-Operator header string false "操作人"
// @Param        book_id path int true "图书ID"
// @Param        request body dto.ThresholdRequest true "阈值"
// @Success      200 {object} response.Response{data=appinventory.InventoryDetail}
// @Failure      200 {object} response.Response "40903 最小库存必须小于最大库存"
// @Router       /api/v1/inventories/book/{book_id}/thresholds [put]
func (h *InventoryHandler) UpdateThresholds(c *gin.Context) {
	bookID, ok := uintParam(c, "book_id")
	if !ok {
		return
	}
	var req dto.ThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeBindError, "参数错误: "+err.Error())
		return
	}

	detail, err := h.stock.UpdateThresholds(c.Request.Context(), appinventory.ThresholdRequest{
		BookID:   bookID,
		StockMin: req.StockMin,
		StockMax: req.StockMax,
		Actor:    middleware.GetOperator(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}

type changeFunc func(ctx context.Context, req appinventory.StockChangeRequest) (*appinventory.InventorySummary, error)

func (h *InventoryHandler) change(c *gin.Context, fn changeFunc) {
	bookID, ok := uintParam(c, "book_id")
	if !ok {
		return
	}
	var req dto.StockChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeBindError, "参数错误: "+err.Error())
		return
	}

	summary, err := fn(c.Request.Context(), appinventory.StockChangeRequest{
		BookID:      bookID,
		Quantity:    req.Quantity,
		Actor:       middleware.GetOperator(c),
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, summary)
}

type reservationFunc func(ctx context.Context, req appinventory.ReservationRequest) error

func (h *InventoryHandler) reservation(c *gin.Context, fn reservationFunc) {
	bookID, ok := uintParam(c, "book_id")
	if !ok {
		return
	}
	var req dto.ReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeBindError, "参数错误: "+err.Error())
		return
	}

	err := fn(c.Request.Context(), appinventory.ReservationRequest{
		BookID:      bookID,
		Quantity:    req.Quantity,
		Actor:       middleware.GetOperator(c),
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// uintParam 解析路径中的正整数ID，失败时直接写入错误响应
func uintParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		response.Error(c, apperrors.ErrInvalidParams.WithField("inventory", name, raw))
		return 0, false
	}
	return uint(id), true
}
