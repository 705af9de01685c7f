package mysql

import (
	"context"
	"errors"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/xiebiao/bookstore-ledger/internal/domain/inventory"
	apperrors "github.com/xiebiao/bookstore-ledger/pkg/errors"
)

// MySQL错误码
const (
	errDuplicateEntry   = 1062 // Duplicate entry 'xxx' for key 'yyy'
	errLockWaitTimeout  = 1205 // Lock wait timeout exceeded
	errDeadlockDetected = 1213 // Deadlock found when trying to get lock
)

// isDuplicateError 判断是否为唯一索引冲突错误
func isDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errDuplicateEntry {
		return true
	}
	// 兼容检查:MySQL "Duplicate entry" / SQLite "UNIQUE constraint failed"
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

// isLockContention 判断是否为死锁或锁等待超时(可重试)
// SQLite的SQLITE_BUSY/SQLITE_LOCKED同样视为锁竞争
func isLockContention(err error) bool {
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == errDeadlockDetected || myErr.Number == errLockWaitTimeout
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// translateError 数据库错误 → 领域错误
// - 已经是AppError的原样返回
// - 死锁/锁等待超时/SQLite忙 → ErrVersionConflict(由上层重试)
// - context超时 → ErrStorageUnavailable
// - 其他 → Internal
func translateError(err error, message string) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}
	if isLockContention(err) {
		return inventory.ErrVersionConflict.WithCause(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return inventory.ErrStorageUnavailable.WithCause(err)
	}
	return apperrors.Wrap(err, message)
}
