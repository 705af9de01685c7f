package inventory

import (
	apperrors "github.com/xiebiao/bookstore-ledger/pkg/errors"
)

// entityName 错误中使用的实体名
const entityName = "inventory"

// 库存领域错误定义
//
// 错误分类（apperrors.KindOf）：
// - NotFound：库存记录不存在
// - Conflict：库存不足、预留不足、重复创建、并发冲突
// - InvalidArgument：调整为负、阈值非法、时间范围非法、数量非法、操作人过长
var (
	// ErrInventoryNotFound 库存记录不存在
	ErrInventoryNotFound = apperrors.New(apperrors.ErrCodeInventoryNotFound, "库存记录不存在")

	// ErrInsufficientStock 可用库存不足
	ErrInsufficientStock = apperrors.New(apperrors.ErrCodeInsufficientStock, "可用库存不足")

	// ErrInsufficientReservedStock 预留库存不足
	ErrInsufficientReservedStock = apperrors.New(apperrors.ErrCodeInsufficientReservedStock, "预留库存不足")

	// ErrDuplicateInventory 图书已存在库存记录
	ErrDuplicateInventory = apperrors.New(apperrors.ErrCodeDuplicateEntry, "该图书已存在库存记录")

	// ErrConcurrentModification 并发修改冲突（重试次数耗尽）
	ErrConcurrentModification = apperrors.New(apperrors.ErrCodeConcurrentModification, "库存正在被其他操作修改，请稍后重试")

	// ErrVersionConflict 乐观锁版本冲突（内部可重试，不直接返回给调用方）
	ErrVersionConflict = apperrors.New(apperrors.ErrCodeConcurrentModification, "库存版本已变化")

	// ErrOrderSaleApplied 订单明细已经出库（重复投递）
	ErrOrderSaleApplied = apperrors.New(apperrors.ErrCodeOrderSaleApplied, "订单明细已出库")

	// ErrInvalidAdjustment 负向调整后库存为负
	ErrInvalidAdjustment = apperrors.New(apperrors.ErrCodeInvalidAdjustment, "调整后库存不能为负数")

	// ErrInvalidStockThreshold 最小库存必须小于最大库存
	ErrInvalidStockThreshold = apperrors.New(apperrors.ErrCodeInvalidStockThreshold, "库存阈值不合法")

	// ErrInvalidDateRange 开始时间晚于结束时间
	ErrInvalidDateRange = apperrors.New(apperrors.ErrCodeInvalidDateRange, "开始时间不能晚于结束时间")

	// ErrInvalidQuantity 数量不合法
	ErrInvalidQuantity = apperrors.New(apperrors.ErrCodeInvalidQuantity, "数量不合法")

	// ErrInvalidMovementType 未知的变动类型
	ErrInvalidMovementType = apperrors.New(apperrors.ErrCodeInvalidMovementType, "未知的库存变动类型")

	// ErrInvalidSort 不支持的排序方式
	ErrInvalidSort = apperrors.New(apperrors.ErrCodeInvalidSort, "不支持的排序方式")

	// ErrInvalidBookID 无效的图书ID
	ErrInvalidBookID = apperrors.New(apperrors.ErrCodeInvalidParams, "无效的图书ID")

	// ErrInvalidActor 操作人过长
	ErrInvalidActor = apperrors.New(apperrors.ErrCodeInvalidParams, "操作人不合法")

	// ErrStorageUnavailable 操作超时
	ErrStorageUnavailable = apperrors.ErrUnavailable
)
