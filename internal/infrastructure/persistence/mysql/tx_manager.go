package mysql

import (
	"context"

	"gorm.io/gorm"
)

// txKey context中保存事务DB的键
type txKey struct{}

// TxManager 事务管理器
// 教学要点:
// 1. 封装GORM的Transaction方法
// 2. 通过context传递事务DB(避免全局变量)
// 3. 支持嵌套事务(GORM自动使用Savepoint)
type TxManager struct {
	db *gorm.DB
}

// NewTxManager 创建事务管理器
func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

// Transaction 执行事务
// fn返回error时自动ROLLBACK,返回nil时自动COMMIT
//
// 使用示例:
//
//	err := txManager.Transaction(ctx, func(ctx context.Context) error {
//	    inv, err := inventoryRepo.LockByBookID(ctx, bookID)
//	    if err != nil {
//	        return err
//	    }
//	    movement, err := inv.Sell(quantity, actor, "")
//	    if err != nil {
//	        return err // 自动回滚
//	    }
//	    if err := inventoryRepo.Update(ctx, inv); err != nil {
//	        return err
//	    }
//	    return movementRepo.Append(ctx, movement)
//	})
func (m *TxManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	// fn内部的错误已经是领域错误,这里只转换BEGIN/COMMIT阶段的数据库错误
	return translateError(err, "提交事务失败")
}

// getDB 从context获取事务DB,如果没有则使用默认DB
func getDB(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}
