package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	appinventory "github.com/xiebiao/bookstore-ledger/internal/application/inventory"
	"github.com/xiebiao/bookstore-ledger/internal/interface/http/dto"
	apperrors "github.com/xiebiao/bookstore-ledger/pkg/errors"
	"github.com/xiebiao/bookstore-ledger/pkg/response"
)

// 时间参数支持的格式
var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// MovementHandler 库存变动查询处理器
type MovementHandler struct {
	query *appinventory.QueryService
}

// NewMovementHandler 创建变动查询处理器
func NewMovementHandler(query *appinventory.QueryService) *MovementHandler {
	return &MovementHandler{query: query}
}

// ByInventory 按库存记录查询变动
// @Summary      库存记录的变动
// @Tags         库存变动
// @Produce      json
// @Param        id path int true "库存ID"
// @Param        page query int false "页码" default(1)
// @Param        size query int false "每页数量" default(10)
// @Param        sort query string false "排序" default(created_at,desc)
// @Success      200 {object} response.Response{data=response.PageData{list=[]appinventory.MovementView}}
// @Router       /api/v1/movements/inventory/{id} [get]
func (h *MovementHandler) ByInventory(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}
	result, err := h.query.MovementsByInventory(c.Request.Context(), id, page)
	writePage(c, result, err)
}

// ByType 按变动类型查询
// @Summary      按类型查询变动
// @Tags         库存变动
// @Produce      json
// @Param        type path string true "变动类型" Enums(ENTRY, EXIT, POSITIVE_ADJUSTMENT, NEGATIVE_ADJUSTMENT, RETURN, RESERVE, RELEASE_RESERVE, INITIAL_INVENTORY, UPDATE_THRESHOLD, DISABLE)
// @Param        page query int false "页码" default(1)
// @Param        size query int false "每页数量" default(10)
// @Param        sort query string false "排序" default(created_at,desc)
// @Success      200 {object} response.Response{data=response.PageData{list=[]appinventory.MovementView}}
// @Failure      200 {object} response.Response "40906 未知的变动类型"
// @Router       /api/v1/movements/type/{type} [get]
func (h *MovementHandler) ByType(c *gin.Context) {
	page, ok := bindPage(c)
	if !ok {
		return
	}
	result, err := h.query.MovementsByType(c.Request.Context(), c.Param("type"), page)
	writePage(c, result, err)
}

// ByDateRange 按时间范围查询
// @Summary      按时间范围查询变动
// @Tags         库存变动
// @Produce      json
// @Param        start query string true "开始时间"
// @Param        end query string true "结束时间"
// @Param        page query int false "页码" default(1)
// @Param        size query int false "每页数量" default(10)
// @Param        sort query string false "排序" default(created_at,desc)
// @Success      200 {object} response.Response{data=response.PageData{list=[]appinventory.MovementView}}
// @Failure      200 {object} response.Response "40904 开始时间晚于结束时间"
// @Router       /api/v1/movements/range [get]
func (h *MovementHandler) ByDateRange(c *gin.Context) {
	var q dto.DateRangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeBindError, "参数错误: "+err.Error())
		return
	}

	start, err := parseTime(q.Start)
	if err != nil {
		response.Error(c, apperrors.ErrInvalidParams.WithField("movement", "start", q.Start))
		return
	}
	end, err := parseTime(q.End)
	if err != nil {
		response.Error(c, apperrors.ErrInvalidParams.WithField("movement", "end", q.End))
		return
	}

	result, err := h.query.MovementsByDateRange(c.Request.Context(), start, end, toPageQuery(q.PageQuery))
	writePage(c, result, err)
}

// Recent 最近的变动
// @Summary      最近的变动
// @Tags         库存变动
// @Produce      json
// @Param        page query int false "页码" default(1)
// @Param        size query int false "每页数量" default(10)
// @Param        sort query string false "排序" default(created_at,desc)
// @Success      200 {object} response.Response{data=response.PageData{list=[]appinventory.MovementView}}
// @Router       /api/v1/movements/recent [get]
func (h *MovementHandler) Recent(c *gin.Context) {
	page, ok := bindPage(c)
	if !ok {
		return
	}
	result, err := h.query.RecentMovements(c.Request.Context(), page)
	writePage(c, result, err)
}

func bindPage(c *gin.Context) (appinventory.PageQuery, bool) {
	var q dto.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeBindError, "参数错误: "+err.Error())
		return appinventory.PageQuery{}, false
	}
	return toPageQuery(q), true
}

func toPageQuery(q dto.PageQuery) appinventory.PageQuery {
	return appinventory.PageQuery{Page: q.Page, Size: q.Size, Sort: q.Sort}
}

func writePage(c *gin.Context, result *appinventory.MovementPage, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithPage(c, result.List, result.Total, result.Page, result.Size)
}

// parseTime 不带时区的格式按本地时区解析
func parseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
