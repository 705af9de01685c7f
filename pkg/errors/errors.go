package errors

import (
	"errors"
	"fmt"
)

// AppError 自定义应用错误
// 设计说明：
// 1. Code用于客户端判断错误类型（不要直接暴露HTTP状态码）
// 2. Message是用户友好的提示信息
// 3. Entity/Field/Value指出出错的实体、字段和取值，便于调用方诊断
// 4. Err是内部错误，仅记录到日志，不返回给客户端（防止泄露敏感信息）
type AppError struct {
	Code    int         `json:"code"`             // 业务错误码
	Message string      `json:"message"`          // 用户友好的错误提示
	Entity  string      `json:"entity,omitempty"` // 出错的实体（如inventory）
	Field   string      `json:"field,omitempty"`  // 出错的字段（如quantity_available）
	Value   interface{} `json:"value,omitempty"`  // 出错的取值
	Err     error       `json:"-"`                // 内部错误（不序列化）
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%d] %s", e.Code, e.Message)
	if e.Entity != "" || e.Field != "" {
		msg = fmt.Sprintf("%s (%s.%s=%v)", msg, e.Entity, e.Field, e.Value)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap 支持errors.Is和errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较
// 预定义错误经过WithField修饰后是新的实例，仍需要errors.Is(err, ErrXxx)成立
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithField 复制错误并附带实体、字段、取值
func (e *AppError) WithField(entity, field string, value interface{}) *AppError {
	cp := *e
	cp.Entity = entity
	cp.Field = field
	cp.Value = value
	return &cp
}

// WithCause 复制错误并附带内部原因
func (e *AppError) WithCause(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// New 创建新的AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装系统错误（如数据库错误、网络错误）
// 用途：将底层错误转换为业务错误，隐藏实现细节
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// =========================================
// 错误码定义
// =========================================
// 规范：
// - 4xxxx: 客户端错误（参数错误、业务规则校验失败）
// - 5xxxx: 服务端错误（数据库异常、外部服务调用失败）

const (
	// 系统级错误码（50000-50099）
	ErrCodeInternal    = 50000 // 内部错误
	ErrCodeRedisError  = 50002 // Redis错误
	ErrCodeUnavailable = 50003 // 存储暂不可用（超时）

	// 资源错误（40400-40499）
	ErrCodeBookNotFound      = 40402 // 图书不存在
	ErrCodeInventoryNotFound = 40404 // 库存记录不存在

	// 冲突错误（40000-40099）
	ErrCodeInsufficientStock         = 40001 // 可用库存不足
	ErrCodeInsufficientReservedStock = 40006 // 预留库存不足
	ErrCodeDuplicateEntry            = 40009 // 重复记录(通用)
	ErrCodeConcurrentModification    = 40010 // 并发修改冲突（重试耗尽）
	ErrCodeOrderSaleApplied          = 40011 // 订单明细已出库

	// 参数错误（40900-40999）
	ErrCodeInvalidParams         = 40900 // 参数错误
	ErrCodeBindError             = 40901 // 参数绑定失败
	ErrCodeInvalidAdjustment     = 40902 // 调整后库存为负
	ErrCodeInvalidStockThreshold = 40903 // 最小库存必须小于最大库存
	ErrCodeInvalidDateRange      = 40904 // 开始时间晚于结束时间
	ErrCodeInvalidQuantity       = 40905 // 数量必须大于0
	ErrCodeInvalidMovementType   = 40906 // 未知的变动类型
	ErrCodeInvalidSort           = 40907 // 不支持的排序字段
)

// =========================================
// 预定义错误（避免每次都New）
// =========================================

var (
	// 系统错误
	ErrRedisError  = New(ErrCodeRedisError, "缓存服务错误")
	ErrUnavailable = New(ErrCodeUnavailable, "存储服务繁忙，请稍后重试")

	// 资源不存在
	ErrBookNotFound = New(ErrCodeBookNotFound, "图书不存在")

	// 参数错误
	ErrInvalidParams = New(ErrCodeInvalidParams, "参数错误")
)

// =========================================
// 错误分类
// =========================================

// Kind 错误类别（与传输层无关）
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindInvalidArgument
	KindUnavailable
)

// String 类别名称
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindUnavailable:
		return "Unavailable"
	default:
		return "Internal"
	}
}

// KindOf 根据错误码判断错误类别
func KindOf(err error) Kind {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return KindInternal
	}

	switch {
	case appErr.Code == ErrCodeUnavailable:
		return KindUnavailable
	case appErr.Code >= 40400 && appErr.Code < 40500:
		return KindNotFound
	case appErr.Code >= 40000 && appErr.Code < 40100:
		return KindConflict
	case appErr.Code >= 40900 && appErr.Code < 41000:
		return KindInvalidArgument
	default:
		return KindInternal
	}
}

// =========================================
// 辅助函数
// =========================================

// IsAppError 判断是否为AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError 提取AppError（如果不是AppError则包装成Internal错误）
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, "系统内部错误")
}
