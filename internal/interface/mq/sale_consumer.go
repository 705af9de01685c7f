package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	appinventory "github.com/xiebiao/bookstore-ledger/internal/application/inventory"
	"github.com/xiebiao/bookstore-ledger/internal/domain/inventory"
	apperrors "github.com/xiebiao/bookstore-ledger/pkg/errors"
	pkgmq "github.com/xiebiao/bookstore-ledger/pkg/mq"
	"github.com/xiebiao/bookstore-ledger/pkg/saga"
)

// SaleActor 由订单事件触发的出库使用的操作人
const SaleActor = "order-service"

// SaleEvent 订单支付事件（order.paid）
type SaleEvent struct {
	OrderNo string     `json:"order_no"`
	Items   []SaleItem `json:"items"`
}

// SaleItem 订单明细
type SaleItem struct {
	BookID   uint `json:"book_id"`
	Quantity int  `json:"quantity"`
}

// SaleRecorder 订单明细出库和撤销（由StockService实现）
// 同一订单同一图书只出库一次，重复调用返回false
type SaleRecorder interface {
	RegisterOrderSale(ctx context.Context, req appinventory.OrderSaleRequest) (bool, error)
	RevertOrderSale(ctx context.Context, req appinventory.OrderSaleRequest) (bool, error)
}

// SaleConsumer 把订单支付事件转换为销售出库
type SaleConsumer struct {
	recorder SaleRecorder
	log      *zap.Logger
}

// NewSaleConsumer 创建销售事件消费者
func NewSaleConsumer(recorder SaleRecorder, log *zap.Logger) *SaleConsumer {
	return &SaleConsumer{recorder: recorder, log: log}
}

// Handle 处理一条订单支付消息，签名与pkg/mq.Handler一致
//
// 每条明细是一个Saga步骤，某条明细失败时本次已出库的明细撤销出库。
// 明细按(order_no, book_id)登记，重复投递的明细不会再次出库。
// 错误处理：
// - 消息格式错误、业务校验失败（库存不足、图书无库存记录）：永久错误，丢弃
// - 超时、并发冲突且补偿全部成功：重新入队
// - 补偿失败：不重新入队，记录错误日志人工处理
func (h *SaleConsumer) Handle(ctx context.Context, body []byte) error {
	var event SaleEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return pkgmq.Permanent(fmt.Errorf("解析订单事件失败: %w", err))
	}
	if event.OrderNo == "" || len(event.Items) == 0 {
		return pkgmq.Permanent(fmt.Errorf("订单事件缺少订单号或明细"))
	}

	s := saga.New(0, h.log.With(zap.String("order_no", event.OrderNo)))
	duplicates := 0
	for _, item := range event.Items {
		sale := appinventory.OrderSaleRequest{
			OrderNo:     event.OrderNo,
			BookID:      item.BookID,
			Quantity:    item.Quantity,
			Actor:       SaleActor,
			Description: "订单出库 " + event.OrderNo,
		}
		undo := sale
		undo.Description = "订单出库回滚 " + event.OrderNo

		var applied bool
		s.AddStep(fmt.Sprintf("出库 book_id=%d", item.BookID),
			func(ctx context.Context) error {
				var err error
				applied, err = h.recorder.RegisterOrderSale(ctx, sale)
				if err == nil && !applied {
					duplicates++
				}
				return err
			},
			func(ctx context.Context) error {
				// 之前投递已出库的明细不在本次撤销
				if !applied {
					return nil
				}
				_, err := h.recorder.RevertOrderSale(ctx, undo)
				return err
			},
		)
	}

	err := s.Execute(ctx)
	if err == nil {
		h.log.Info("订单出库完成",
			zap.String("order_no", event.OrderNo),
			zap.Int("items", len(event.Items)),
			zap.Int("duplicates", duplicates),
		)
		return nil
	}

	var stepErr *saga.StepError
	if !errors.As(err, &stepErr) {
		return pkgmq.Permanent(err)
	}
	h.log.Error("订单出库失败",
		zap.String("order_no", event.OrderNo),
		zap.Int("applied_items", stepErr.Index),
		zap.Bool("compensated", stepErr.Compensated()),
		zap.Error(err),
	)
	if !stepErr.Compensated() || !retryable(stepErr.Err) {
		return pkgmq.Permanent(err)
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, inventory.ErrConcurrentModification) {
		return true
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindUnavailable, apperrors.KindInternal:
		return true
	default:
		return false
	}
}
