package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xiebiao/bookstore-ledger/internal/domain/book"
	"github.com/xiebiao/bookstore-ledger/internal/domain/inventory"
	apperrors "github.com/xiebiao/bookstore-ledger/pkg/errors"
	"github.com/xiebiao/bookstore-ledger/pkg/metrics"
	"github.com/xiebiao/bookstore-ledger/pkg/tracing"
)

const tracerName = "bookstore-ledger/inventory"

// TxManager 事务边界（由mysql.TxManager实现）
type TxManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// AvailabilityCache 可售状态缓存（由redis.AvailabilityCache实现）
// Get未命中时返回(nil, nil)
// Invalidate记录已提交的版本号，之后版本更旧的Set被忽略
type AvailabilityCache interface {
	Get(ctx context.Context, bookID uint) (*inventory.AvailabilitySnapshot, error)
	Set(ctx context.Context, snap inventory.AvailabilitySnapshot) error
	Invalidate(ctx context.Context, bookID uint, version int64) error
}

type noopCache struct{}

func (noopCache) Get(context.Context, uint) (*inventory.AvailabilitySnapshot, error) { return nil, nil }
func (noopCache) Set(context.Context, inventory.AvailabilitySnapshot) error          { return nil }
func (noopCache) Invalidate(context.Context, uint, int64) error                      { return nil }

// Options 变更引擎的超时与重试参数
type Options struct {
	OperationTimeout     time.Duration // 单次操作（含所有重试）的超时
	MaxRetries           int           // 版本冲突后的最大重试次数
	RetryInitialInterval time.Duration // 首次重试的退避间隔
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		OperationTimeout:     5 * time.Second,
		MaxRetries:           3,
		RetryInitialInterval: 20 * time.Millisecond,
	}
}

// StockService 库存变更引擎
//
// 所有变更操作使用同一套并发控制：
// 1. 事务内 SELECT ... FOR UPDATE 锁定库存行
// 2. Update按版本号写入，版本不一致返回ErrVersionConflict
// 3. 版本冲突、死锁、锁等待超时时整体重试（指数退避，最多MaxRetries次）
// 4. 整个操作受OperationTimeout约束，超时返回ErrStorageUnavailable
//
// 提交成功后失效可售状态缓存并发布领域事件，二者失败只记录日志
type StockService struct {
	repo       inventory.Repository
	movements  inventory.MovementRepository
	orderSales inventory.OrderSaleRepository
	catalog    book.Catalog
	txManager  TxManager
	cache      AvailabilityCache
	publisher  EventPublisher
	opts       Options
	log        *zap.Logger
}

// NewStockService 创建库存变更引擎
// cache和publisher可以为nil，orderSales只有订单出库使用
func NewStockService(
	repo inventory.Repository,
	movements inventory.MovementRepository,
	orderSales inventory.OrderSaleRepository,
	catalog book.Catalog,
	txManager TxManager,
	cache AvailabilityCache,
	publisher EventPublisher,
	opts Options,
	log *zap.Logger,
) *StockService {
	if cache == nil {
		cache = noopCache{}
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = DefaultOptions().OperationTimeout
	}
	if opts.RetryInitialInterval <= 0 {
		opts.RetryInitialInterval = DefaultOptions().RetryInitialInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StockService{
		repo:       repo,
		movements:  movements,
		orderSales: orderSales,
		catalog:    catalog,
		txManager:  txManager,
		cache:      cache,
		publisher:  publisher,
		opts:       opts,
		log:        log,
	}
}

// Create 创建库存记录
//
// 流程：
// 1. 校验参数（数量、阈值、操作人）
// 2. 校验图书存在
// 3. 事务内保存记录并写入INITIAL_INVENTORY变动
func (s *StockService) Create(ctx context.Context, req CreateInventoryRequest) (*InventorySummary, error) {
	var result *InventorySummary
	err := s.execute(ctx, "create", req.BookID, func(ctx context.Context) error {
		if err := inventory.ValidateActor(req.Actor); err != nil {
			return err
		}
		inv, movement, err := inventory.NewInventory(req.BookID, req.QuantityAvailable, req.StockMin, req.StockMax, req.Actor)
		if err != nil {
			return err
		}
		if _, err := s.catalog.FindBookByID(ctx, req.BookID); err != nil {
			return err
		}

		err = s.txManager.Transaction(ctx, func(txCtx context.Context) error {
			if err := s.repo.Create(txCtx, inv); err != nil {
				return err
			}
			movement.InventoryID = inv.ID
			return s.movements.Append(txCtx, movement)
		})
		if err != nil {
			return err
		}

		s.afterCommit(ctx, "create", inv, movement, false)
		summary := toSummary(inv)
		result = &summary
		return nil
	})
	return result, err
}

// RegisterSale 销售出库
func (s *StockService) RegisterSale(ctx context.Context, req StockChangeRequest) (*InventorySummary, error) {
	return s.change(ctx, "register_sale", req, (*inventory.Inventory).Sell)
}

// RegisterEntry 采购入库
func (s *StockService) RegisterEntry(ctx context.Context, req StockChangeRequest) (*InventorySummary, error) {
	return s.change(ctx, "register_entry", req, (*inventory.Inventory).Restock)
}

// RegisterReturn 退货入库
func (s *StockService) RegisterReturn(ctx context.Context, req StockChangeRequest) (*InventorySummary, error) {
	return s.change(ctx, "register_return", req, (*inventory.Inventory).AcceptReturn)
}

// PositiveAdjustment 正向盘点调整
func (s *StockService) PositiveAdjustment(ctx context.Context, req StockChangeRequest) (*InventorySummary, error) {
	return s.change(ctx, "positive_adjustment", req, (*inventory.Inventory).AdjustUp)
}

// NegativeAdjustment 负向盘点调整
func (s *StockService) NegativeAdjustment(ctx context.Context, req StockChangeRequest) (*InventorySummary, error) {
	return s.change(ctx, "negative_adjustment", req, (*inventory.Inventory).AdjustDown)
}

// RegisterOrderSale 订单明细销售出库
// 订单明细登记与出库在同一事务内提交，同一订单同一图书只出库一次。
// 重复投递不做变更，applied返回false
func (s *StockService) RegisterOrderSale(ctx context.Context, req OrderSaleRequest) (applied bool, err error) {
	err = s.execute(ctx, "register_order_sale", req.BookID, func(ctx context.Context) error {
		if err := validateOrderSale(req); err != nil {
			return err
		}
		record := func(ctx context.Context, inv *inventory.Inventory) error {
			return s.orderSales.Record(ctx, req.OrderNo, req.BookID)
		}
		_, err := s.mutate(ctx, "register_order_sale", s.lockThen(s.lockByBook(req.BookID), record), func(inv *inventory.Inventory) (*inventory.Movement, error) {
			return inv.Sell(req.Quantity, req.Actor, req.Description)
		})
		if errors.Is(err, inventory.ErrOrderSaleApplied) {
			s.log.Info("订单明细已出库，忽略重复消息",
				zap.String("order_no", req.OrderNo),
				zap.Uint("book_id", req.BookID),
			)
			return nil
		}
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// RevertOrderSale 撤销订单明细出库（退货入库并删除登记）
// 明细未登记时不做变更，reverted返回false
func (s *StockService) RevertOrderSale(ctx context.Context, req OrderSaleRequest) (reverted bool, err error) {
	err = s.execute(ctx, "revert_order_sale", req.BookID, func(ctx context.Context) error {
		if err := validateOrderSale(req); err != nil {
			return err
		}
		remove := func(ctx context.Context, inv *inventory.Inventory) error {
			found, err := s.orderSales.Remove(ctx, req.OrderNo, req.BookID)
			if err != nil {
				return err
			}
			if !found {
				return errOrderSaleNotRecorded
			}
			return nil
		}
		_, err := s.mutate(ctx, "revert_order_sale", s.lockThen(s.lockByBook(req.BookID), remove), func(inv *inventory.Inventory) (*inventory.Movement, error) {
			return inv.AcceptReturn(req.Quantity, req.Actor, req.Description)
		})
		if errors.Is(err, errOrderSaleNotRecorded) {
			return nil
		}
		if err != nil {
			return err
		}
		reverted = true
		return nil
	})
	return reverted, err
}

var errOrderSaleNotRecorded = errors.New("订单明细未登记")

func validateOrderSale(req OrderSaleRequest) error {
	if req.OrderNo == "" {
		return apperrors.ErrInvalidParams.WithField("order_sale", "order_no", req.OrderNo)
	}
	if err := inventory.ValidateQuantity(req.Quantity); err != nil {
		return err
	}
	return inventory.ValidateActor(req.Actor)
}

// ReserveStock 预留库存
func (s *StockService) ReserveStock(ctx context.Context, req ReservationRequest) error {
	_, err := s.change(ctx, "reserve_stock", StockChangeRequest(req), (*inventory.Inventory).Reserve)
	return err
}

// ReleaseReservation 释放预留库存
func (s *StockService) ReleaseReservation(ctx context.Context, req ReservationRequest) error {
	_, err := s.change(ctx, "release_reservation", StockChangeRequest(req), (*inventory.Inventory).Release)
	return err
}

// UpdateThresholds 更新库存阈值，返回更新后的详情
func (s *StockService) UpdateThresholds(ctx context.Context, req ThresholdRequest) (*InventoryDetail, error) {
	var result *InventoryDetail
	err := s.execute(ctx, "update_thresholds", req.BookID, func(ctx context.Context) error {
		if err := inventory.ValidateThresholds(req.StockMin, req.StockMax); err != nil {
			return err
		}
		if err := inventory.ValidateActor(req.Actor); err != nil {
			return err
		}
		inv, err := s.mutate(ctx, "update_thresholds", s.lockByBook(req.BookID), func(inv *inventory.Inventory) (*inventory.Movement, error) {
			return inv.UpdateThresholds(req.StockMin, req.StockMax, req.Actor, "")
		})
		if err != nil {
			return err
		}
		result, err = detailOf(ctx, s.catalog, inv)
		return err
	})
	return result, err
}

// DisableByID 停用库存记录
// 重复停用不改变状态，但仍然写入DISABLE变动
func (s *StockService) DisableByID(ctx context.Context, inventoryID uint, actor string) error {
	return s.execute(ctx, "disable", 0, func(ctx context.Context) error {
		if err := inventory.ValidateActor(actor); err != nil {
			return err
		}
		_, err := s.mutate(ctx, "disable", s.lockByID(inventoryID), func(inv *inventory.Inventory) (*inventory.Movement, error) {
			return inv.Disable(actor, ""), nil
		})
		return err
	})
}

// stockChange 数量类变更的领域方法签名
type stockChange func(inv *inventory.Inventory, quantity int, actor, description string) (*inventory.Movement, error)

func (s *StockService) change(ctx context.Context, op string, req StockChangeRequest, apply stockChange) (*InventorySummary, error) {
	var result *InventorySummary
	err := s.execute(ctx, op, req.BookID, func(ctx context.Context) error {
		// 参数错误不需要加锁
		if err := inventory.ValidateQuantity(req.Quantity); err != nil {
			return err
		}
		if err := inventory.ValidateActor(req.Actor); err != nil {
			return err
		}
		inv, err := s.mutate(ctx, op, s.lockByBook(req.BookID), func(inv *inventory.Inventory) (*inventory.Movement, error) {
			return apply(inv, req.Quantity, req.Actor, req.Description)
		})
		if err != nil {
			return err
		}
		summary := toSummary(inv)
		result = &summary
		return nil
	})
	return result, err
}

// loader 在事务内锁定并读取库存记录
type loader func(ctx context.Context) (*inventory.Inventory, error)

func (s *StockService) lockByBook(bookID uint) loader {
	return func(ctx context.Context) (*inventory.Inventory, error) {
		return s.repo.LockByBookID(ctx, bookID)
	}
}

func (s *StockService) lockByID(id uint) loader {
	return func(ctx context.Context) (*inventory.Inventory, error) {
		return s.repo.LockByID(ctx, id)
	}
}

// lockThen 锁定库存后在同一事务内执行附加写入
func (s *StockService) lockThen(load loader, fn func(ctx context.Context, inv *inventory.Inventory) error) loader {
	return func(ctx context.Context) (*inventory.Inventory, error) {
		inv, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := fn(ctx, inv); err != nil {
			return nil, err
		}
		return inv, nil
	}
}

// mutate 锁定 → 领域变更 → 按版本写入 → 追加变动记录，冲突时整体重试
func (s *StockService) mutate(
	ctx context.Context,
	op string,
	load loader,
	fn func(inv *inventory.Inventory) (*inventory.Movement, error),
) (*inventory.Inventory, error) {
	var (
		inv      *inventory.Inventory
		movement *inventory.Movement
		wasLow   bool
		attempt  int
	)

	operation := func() error {
		attempt++
		if attempt > 1 {
			metrics.IncMutationRetry(op)
			s.log.Debug("库存版本冲突，重试",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
			)
		}

		err := s.txManager.Transaction(ctx, func(txCtx context.Context) error {
			current, err := load(txCtx)
			if err != nil {
				return err
			}
			low := current.AlertLowStock

			m, err := fn(current)
			if err != nil {
				return err
			}
			if err := s.repo.Update(txCtx, current); err != nil {
				return err
			}
			if err := s.movements.Append(txCtx, m); err != nil {
				return err
			}

			inv, movement, wasLow = current, m, low
			return nil
		})
		if err == nil || isRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(s.newBackOff(), uint64(max(s.opts.MaxRetries, 0))),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		if isRetryable(err) {
			return nil, inventory.ErrConcurrentModification.
				WithField("inventory", "attempts", attempt).
				WithCause(err)
		}
		return nil, err
	}

	s.afterCommit(ctx, op, inv, movement, wasLow)
	return inv, nil
}

func (s *StockService) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInitialInterval
	b.MaxInterval = 20 * s.opts.RetryInitialInterval
	// 重试次数和总时长分别由MaxRetries和OperationTimeout控制
	b.MaxElapsedTime = 0
	return b
}

// afterCommit 提交后的副作用：指标、缓存失效、事件、日志
func (s *StockService) afterCommit(ctx context.Context, op string, inv *inventory.Inventory, m *inventory.Movement, wasLow bool) {
	metrics.IncMovement(string(m.Type))

	if err := s.cache.Invalidate(ctx, inv.BookID, inv.Version); err != nil {
		s.log.Warn("失效可售状态缓存失败",
			zap.Uint("book_id", inv.BookID),
			zap.Error(err),
		)
	}

	if err := s.publisher.Publish(ctx, MovementRoutingKey(m.Type), newMovementEvent(inv, m)); err != nil {
		s.log.Warn("发布库存变动事件失败",
			zap.Uint("movement_id", m.ID),
			zap.Error(err),
		)
	}
	if inv.AlertLowStock && !wasLow {
		if err := s.publisher.Publish(ctx, RoutingKeyLowStock, newLowStockEvent(inv)); err != nil {
			s.log.Warn("发布低库存预警事件失败",
				zap.Uint("inventory_id", inv.ID),
				zap.Error(err),
			)
		}
	}

	s.log.Info("库存变更成功",
		zap.String("operation", op),
		zap.Uint("inventory_id", inv.ID),
		zap.Uint("book_id", inv.BookID),
		zap.String("movement_type", string(m.Type)),
		zap.Int("quantity_before", m.QuantityBefore),
		zap.Int("quantity_after", m.QuantityAfter),
		zap.Int64("version", inv.Version),
		zap.String("actor", m.Actor),
		zap.String("trace_id", tracing.ExtractTraceID(ctx)),
	)
}

// execute 为一次操作加上超时、Span和指标，并统一错误
func (s *StockService) execute(ctx context.Context, op string, bookID uint, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OperationTimeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, tracerName, "StockService."+op)
	if bookID != 0 {
		span.SetAttributes(attribute.Int64("book_id", int64(bookID)))
	}

	start := time.Now()
	err := normalizeError(fn(ctx))
	metrics.ObserveMutation(op, resultLabel(err), time.Since(start))
	tracing.EndSpan(span, err)

	if err != nil {
		fields := []zap.Field{
			zap.String("operation", op),
			zap.Uint("book_id", bookID),
			zap.Error(err),
		}
		if apperrors.KindOf(err) == apperrors.KindInternal {
			s.log.Error("库存变更失败", fields...)
		} else {
			s.log.Info("库存变更被拒绝", fields...)
		}
	}
	return err
}

// isRetryable 版本冲突、死锁、锁等待超时
func isRetryable(err error) bool {
	return errors.Is(err, inventory.ErrVersionConflict)
}

// normalizeError 超时统一映射为ErrStorageUnavailable
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !apperrors.IsAppError(err) {
		return inventory.ErrStorageUnavailable.WithCause(err)
	}
	return err
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		return "not_found"
	case apperrors.KindConflict:
		return "conflict"
	case apperrors.KindInvalidArgument:
		return "invalid_argument"
	case apperrors.KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}
