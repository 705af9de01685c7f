package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/xiebiao/bookstore-ledger/internal/domain/book"
)

// bookRepository 图书目录查询实现(只读)
// 设计说明:
// 1. 实现domain/book/repository.go定义的Catalog接口
// 2. 库存账本不写books表,只按ID读取展示字段
type bookRepository struct {
	db *gorm.DB
}

// NewBookRepository 创建图书目录查询
func NewBookRepository(db *gorm.DB) book.Catalog {
	return &bookRepository{db: db}
}

// FindBookByID 根据ID查找图书
func (r *bookRepository) FindBookByID(ctx context.Context, id uint) (*book.Book, error) {
	var model BookModel
	err := getDB(ctx, r.db).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, book.ErrBookNotFound.WithField("book", "id", id)
		}
		return nil, translateError(err, "查询图书失败")
	}

	return toBookEntity(&model), nil
}

// toBookEntity GORM模型 → 领域实体
func toBookEntity(model *BookModel) *book.Book {
	return &book.Book{
		ID:        model.ID,
		ISBN:      model.ISBN,
		Title:     model.Title,
		Author:    model.Author,
		Publisher: model.Publisher,
	}
}
