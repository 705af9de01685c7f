package inventory

import (
	"strings"
)

// 分页默认值
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	DefaultSort     = "created_at,desc"
)

// sortableFields 允许排序的字段(对应数据库列名)
var sortableFields = map[string]bool{
	"created_at":        true,
	"id":                true,
	"affected_quantity": true,
	"movement_type":     true,
}

// PageRequest 分页与排序参数
type PageRequest struct {
	Page   int    // 页码(从1开始)
	Size   int    // 每页数量
	SortBy string // 排序字段
	Desc   bool   // 是否降序
}

// Offset 查询偏移量
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Size
}

// OrderClause 排序子句,如"created_at DESC"
// 以id作为第二排序键,保证同一时间的记录顺序稳定
func (p PageRequest) OrderClause() string {
	dir := "ASC"
	if p.Desc {
		dir = "DESC"
	}
	clause := p.SortBy + " " + dir
	if p.SortBy != "id" {
		clause += ", id " + dir
	}
	return clause
}

// NewPageRequest 解析并规范化分页参数
// - page < 1 按1处理
// - size <= 0 使用defaultSize,超过maxSize截断
// - sort格式为"field"或"field,asc|desc",空串使用DefaultSort
func NewPageRequest(page, size int, sort string, defaultSize, maxSize int) (PageRequest, error) {
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}

	if strings.TrimSpace(sort) == "" {
		sort = DefaultSort
	}
	parts := strings.Split(sort, ",")
	field := strings.ToLower(strings.TrimSpace(parts[0]))
	if !sortableFields[field] {
		return PageRequest{}, ErrInvalidSort.WithField("movement", "sort", sort)
	}

	desc := false
	if len(parts) > 1 {
		switch strings.ToLower(strings.TrimSpace(parts[1])) {
		case "desc":
			desc = true
		case "asc", "":
		default:
			return PageRequest{}, ErrInvalidSort.WithField("movement", "sort", sort)
		}
	}
	if len(parts) > 2 {
		return PageRequest{}, ErrInvalidSort.WithField("movement", "sort", sort)
	}

	return PageRequest{Page: page, Size: size, SortBy: field, Desc: desc}, nil
}

// DefaultPageRequest 第一页、默认大小、按创建时间降序
func DefaultPageRequest() PageRequest {
	return PageRequest{Page: 1, Size: DefaultPageSize, SortBy: "created_at", Desc: true}
}

// IsSortable 排序字段是否在白名单内
func IsSortable(field string) bool {
	return sortableFields[field]
}
