package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/xiebiao/bookstore-ledger/internal/domain/inventory"
)

// orderSaleRepository 订单明细出库登记
type orderSaleRepository struct {
	db *gorm.DB
}

// NewOrderSaleRepository 创建订单明细出库登记仓储
func NewOrderSaleRepository(db *gorm.DB) inventory.OrderSaleRepository {
	return &orderSaleRepository{db: db}
}

// Record 插入登记，唯一索引冲突说明该明细已出库
func (r *orderSaleRepository) Record(ctx context.Context, orderNo string, bookID uint) error {
	model := &OrderSaleModel{OrderNo: orderNo, BookID: bookID}
	if err := getDB(ctx, r.db).Create(model).Error; err != nil {
		if isDuplicateError(err) {
			return inventory.ErrOrderSaleApplied.WithField("order_sale", "order_no", orderNo)
		}
		return translateError(err, "登记订单明细失败")
	}
	return nil
}

// Remove 删除登记
func (r *orderSaleRepository) Remove(ctx context.Context, orderNo string, bookID uint) (bool, error) {
	result := getDB(ctx, r.db).
		Where("order_no = ? AND book_id = ?", orderNo, bookID).
		Delete(&OrderSaleModel{})
	if result.Error != nil {
		return false, translateError(result.Error, "删除订单明细登记失败")
	}
	return result.RowsAffected > 0, nil
}
