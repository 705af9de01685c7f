package book

import (
	"context"
)

// Catalog 图书目录查询接口(只读)
// 设计说明:
// 1. 库存账本对目录没有写权限,只需要按ID查询
// 2. 由infrastructure层实现,测试中可以用内存实现替换
type Catalog interface {
	// FindBookByID 根据ID查找图书,不存在时返回ErrBookNotFound
	FindBookByID(ctx context.Context, id uint) (*Book, error)
}
