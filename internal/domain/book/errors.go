package book

import (
	apperrors "github.com/xiebiao/bookstore-ledger/pkg/errors"
)

// 图书领域错误定义
var (
	// ErrBookNotFound 图书不存在
	ErrBookNotFound = apperrors.ErrBookNotFound
)
