package dto

// CreateInventoryRequest HTTP创建库存请求
type CreateInventoryRequest struct {
	BookID            uint `json:"book_id" binding:"required,min=1" example:"1"`
	QuantityAvailable int  `json:"quantity_available" binding:"min=0" example:"100"`
	StockMin          int  `json:"stock_min" binding:"min=0" example:"10"`
	StockMax          int  `json:"stock_max" binding:"required,min=1" example:"500"`
}

// StockChangeRequest HTTP数量变更请求（销售、入库、退货、盘点调整）
// quantity的正数校验交给应用层，以便返回带字段信息的InvalidQuantity错误
type StockChangeRequest struct {
	Quantity    int    `json:"quantity" example:"30"`
	Description string `json:"description" binding:"max=255" example:"门店销售"`
}

// ReservationRequest HTTP预留/释放请求
type ReservationRequest struct {
	Quantity    int    `json:"quantity" example:"40"`
	Description string `json:"description" binding:"max=255" example:"订单20240115001预留"`
}

// ThresholdRequest HTTP阈值更新请求
type ThresholdRequest struct {
	StockMin int `json:"stock_min" example:"70"`
	StockMax int `json:"stock_max" example:"80"`
}

// PageQuery HTTP分页参数
// sort格式：字段[,asc|desc]，如 created_at,desc
type PageQuery struct {
	Page int    `form:"page" binding:"omitempty,min=1" example:"1"`
	Size int    `form:"size" binding:"omitempty,min=1" example:"10"`
	Sort string `form:"sort" example:"created_at,desc"`
}

// DateRangeQuery HTTP时间范围参数
// 支持RFC3339或 2006-01-02 15:04:05（按服务器本地时区解析）
type DateRangeQuery struct {
	PageQuery
	Start string `form:"start" binding:"required" example:"2024-01-01 00:00:00"`
	End   string `form:"end" binding:"required" example:"2024-01-31 23:59:59"`
}
