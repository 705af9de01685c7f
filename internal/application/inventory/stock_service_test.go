package inventory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiebiao/bookstore-ledger/internal/domain/book"
	"github.com/xiebiao/bookstore-ledger/internal/domain/inventory"
	apperrors "github.com/xiebiao/bookstore-ledger/pkg/errors"
)

type fixture struct {
	store     *memoryStore
	cache     *memoryCache
	publisher *recordingPublisher
	stock     *StockService
	query     *QueryService
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	store := newMemoryStore()
	catalog := newMemoryCatalog(
		&book.Book{ID: 1, ISBN: "9787111544937", Title: "Go程序设计语言", Author: "Alan A. A. Donovan"},
		&book.Book{ID: 2, ISBN: "9787115480330", Title: "Go语言实战", Author: "William Kennedy"},
		&book.Book{ID: 3, ISBN: "9787121312090", Title: "Go并发编程实战", Author: "郝林"},
	)
	cache := newMemoryCache()
	publisher := &recordingPublisher{}
	ledger := movementLedger{store}

	return &fixture{
		store:     store,
		cache:     cache,
		publisher: publisher,
		stock:     NewStockService(store, ledger, store, catalog, store, cache, publisher, opts, zap.NewNop()),
		query:     NewQueryService(store, ledger, catalog, cache, 10, 100, zap.NewNop()),
	}
}

func (f *fixture) create(t *testing.T, bookID uint, qty, stockMin, stockMax int) *InventorySummary {
	t.Helper()
	summary, err := f.stock.Create(context.Background(), CreateInventoryRequest{
		BookID:            bookID,
		QuantityAvailable: qty,
		StockMin:          stockMin,
		StockMax:          stockMax,
		Actor:             "admin",
	})
	require.NoError(t, err)
	return summary
}

func assertBalanced(t *testing.T, movements []inventory.Movement) {
	t.Helper()
	for _, m := range movements {
		assert.Equal(t, m.QuantityBefore+m.AffectedQuantity, m.QuantityAfter, "movement %d", m.ID)
		assert.GreaterOrEqual(t, m.QuantityAfter, 0)
	}
}

// TestStockService_RoundTrip 测试创建 → 销售 → 入库
func TestStockService_RoundTrip(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()

	created := f.create(t, 1, 100, 10, 500)
	assert.Equal(t, 100, created.QuantityAvailable)
	assert.False(t, created.AlertLowStock)
	assert.True(t, created.Active)

	sold, err := f.stock.RegisterSale(ctx, StockChangeRequest{BookID: 1, Quantity: 30, Actor: "cashier"})
	require.NoError(t, err)
	assert.Equal(t, 70, sold.QuantityAvailable)

	restocked, err := f.stock.RegisterEntry(ctx, StockChangeRequest{BookID: 1, Quantity: 30, Description: "采购到货"})
	require.NoError(t, err)
	assert.Equal(t, 100, restocked.QuantityAvailable)

	movements := f.store.movementsOf(created.ID)
	require.Len(t, movements, 3)
	assert.Equal(t, inventory.MovementInitialInventory, movements[0].Type)
	assert.Equal(t, inventory.MovementExit, movements[1].Type)
	assert.Equal(t, -30, movements[1].AffectedQuantity)
	assert.Equal(t, "cashier", movements[1].Actor)
	assert.Equal(t, inventory.MovementEntry, movements[2].Type)
	assert.Equal(t, "采购到货", movements[2].Description)
	assert.Equal(t, inventory.DefaultActor, movements[2].Actor)
	assertBalanced(t, movements)

	assert.Equal(t, []string{
		"inventory.movement.initial_inventory",
		"inventory.movement.exit",
		"inventory.movement.entry",
	}, f.publisher.routingKeys())

	t.Logf("✓ 创建/销售/入库后库存回到100，变动记录3条")
}

// TestStockService_Create 测试创建库存记录
func TestStockService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("图书不存在", func(t *testing.T) {
		f := newFixture(t, DefaultOptions())
		_, err := f.stock.Create(ctx, CreateInventoryRequest{BookID: 99, QuantityAvailable: 1, StockMin: 0, StockMax: 10})
		assert.True(t, errors.Is(err, book.ErrBookNotFound))
		assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	})

	t.Run("重复创建", func(t *testing.T) {
		f := newFixture(t, DefaultOptions())
		f.create(t, 1, 10, 1, 20)
		_, err := f.stock.Create(ctx, CreateInventoryRequest{BookID: 1, QuantityAvailable: 5, StockMin: 1, StockMax: 20})
		assert.True(t, errors.Is(err, inventory.ErrDuplicateInventory))
		assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
		assert.Len(t, f.store.movementsOf(1), 1)
	})

	t.Run("阈值非法", func(t *testing.T) {
		f := newFixture(t, DefaultOptions())
		_, err := f.stock.Create(ctx, CreateInventoryRequest{BookID: 1, QuantityAvailable: 5, StockMin: 20, StockMax: 20})
		assert.True(t, errors.Is(err, inventory.ErrInvalidStockThreshold))
		assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))
	})

	t.Run("初始库存为0时立即预警", func(t *testing.T) {
		f := newFixture(t, DefaultOptions())
		created := f.create(t, 1, 0, 0, 10)
		assert.True(t, created.AlertLowStock)
		assert.Contains(t, f.publisher.routingKeys(), RoutingKeyLowStock)
	})

	t.Logf("✓ 创建校验通过")
}

// TestStockService_SellAll 测试卖光全部库存
func TestStockService_SellAll(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	f.create(t, 1, 25, 0, 100)

	sold, err := f.stock.RegisterSale(ctx, StockChangeRequest{BookID: 1, Quantity: 25})
	require.NoError(t, err)
	assert.Equal(t, 0, sold.QuantityAvailable)
	assert.True(t, sold.AlertLowStock)
	assert.Contains(t, f.publisher.routingKeys(), RoutingKeyLowStock)

	_, err = f.stock.RegisterSale(ctx, StockChangeRequest{BookID: 1, Quantity: 1})
	assert.True(t, errors.Is(err, inventory.ErrInsufficientStock))
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	t.Logf("✓ 卖光后库存为0并触发预警")
}

// TestStockService_NegativeAdjustment 测试负向调整
func TestStockService_NegativeAdjustment(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	created := f.create(t, 1, 10, 2, 50)

	t.Run("调整为负数失败且不写入", func(t *testing.T) {
		before, err := f.store.FindByID(ctx, created.ID)
		require.NoError(t, err)

		_, err = f.stock.NegativeAdjustment(ctx, StockChangeRequest{BookID: 1, Quantity: 11})
		require.Error(t, err)
		assert.True(t, errors.Is(err, inventory.ErrInvalidAdjustment))
		assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))

		var appErr *apperrors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "inventory", appErr.Entity)
		assert.Equal(t, "quantity", appErr.Field)
		assert.Equal(t, 11, appErr.Value)

		after, err := f.store.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Len(t, f.store.movementsOf(created.ID), 1)
	})

	t.Run("正常调整", func(t *testing.T) {
		adjusted, err := f.stock.NegativeAdjustment(ctx, StockChangeRequest{BookID: 1, Quantity: 10, Description: "盘亏"})
		require.NoError(t, err)
		assert.Equal(t, 0, adjusted.QuantityAvailable)

		adjusted, err = f.stock.PositiveAdjustment(ctx, StockChangeRequest{BookID: 1, Quantity: 4, Description: "盘盈"})
		require.NoError(t, err)
		assert.Equal(t, 4, adjusted.QuantityAvailable)

		movements := f.store.movementsOf(created.ID)
		require.Len(t, movements, 3)
		assert.Equal(t, inventory.MovementNegativeAdjustment, movements[1].Type)
		assert.Equal(t, inventory.MovementPositiveAdjustment, movements[2].Type)
		assertBalanced(t, movements)
	})

	t.Logf("✓ 负向调整校验通过")
}

// TestStockService_Return 测试退货入库
func TestStockService_Return(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	created := f.create(t, 1, 10, 2, 50)

	returned, err := f.stock.RegisterReturn(ctx, StockChangeRequest{BookID: 1, Quantity: 2, Description: "客户退货"})
	require.NoError(t, err)
	assert.Equal(t, 12, returned.QuantityAvailable)

	movements := f.store.movementsOf(created.ID)
	require.Len(t, movements, 2)
	assert.Equal(t, inventory.MovementReturn, movements[1].Type)
	assert.Equal(t, 2, movements[1].AffectedQuantity)

	t.Logf("✓ 退货入库写入RETURN变动")
}

// TestStockService_InvalidQuantity 测试数量校验
func TestStockService_InvalidQuantity(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	f.create(t, 1, 10, 2, 50)

	for _, qty := range []int{0, -5} {
		_, err := f.stock.RegisterSale(ctx, StockChangeRequest{BookID: 1, Quantity: qty})
		assert.True(t, errors.Is(err, inventory.ErrInvalidQuantity), qty)
		assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))

		err = f.stock.ReserveStock(ctx, ReservationRequest{BookID: 1, Quantity: qty})
		assert.True(t, errors.Is(err, inventory.ErrInvalidQuantity), qty)
	}

	_, err := f.stock.RegisterEntry(ctx, StockChangeRequest{BookID: 42, Quantity: 1})
	assert.True(t, errors.Is(err, inventory.ErrInventoryNotFound))
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	assert.Len(t, f.store.movementsOf(1), 1)
	t.Logf("✓ 非法数量在加锁前被拒绝")
}

// TestStockService_InvalidActor 测试操作人过长时在加锁前被拒绝
func TestStockService_InvalidActor(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	created := f.create(t, 1, 10, 2, 50)
	actor := strings.Repeat("x", inventory.MaxActorLength+1)

	assertRejected := func(t *testing.T, err error) {
		t.Helper()
		require.Error(t, err)
		assert.True(t, errors.Is(err, inventory.ErrInvalidActor))
		assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))
	}

	_, err := f.stock.RegisterSale(ctx, StockChangeRequest{BookID: 1, Quantity: 1, Actor: actor})
	assertRejected(t, err)

	err = f.stock.ReserveStock(ctx, ReservationRequest{BookID: 1, Quantity: 1, Actor: actor})
	assertRejected(t, err)

	_, err = f.stock.UpdateThresholds(ctx, ThresholdRequest{BookID: 1, StockMin: 1, StockMax: 20, Actor: actor})
	assertRejected(t, err)

	err = f.stock.DisableByID(ctx, created.ID, actor)
	assertRejected(t, err)

	_, err = f.stock.Create(ctx, CreateInventoryRequest{BookID: 2, StockMax: 10, Actor: actor})
	assertRejected(t, err)

	inv, err := f.store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, inv.QuantityAvailable)
	assert.True(t, inv.Active)
	assert.Len(t, f.store.movementsOf(created.ID), 1)

	_, err = f.stock.RegisterSale(ctx, StockChangeRequest{BookID: 1, Quantity: 1, Actor: actor[:inventory.MaxActorLength]})
	require.NoError(t, err)

	t.Logf("✓ 操作人超过%d个字符时不写入变动", inventory.MaxActorLength)
}

// TestStockService_OrderSale 测试订单明细只出库一次
func TestStockService_OrderSale(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	created := f.create(t, 1, 10, 2, 50)
	req := OrderSaleRequest{OrderNo: "O1001", BookID: 1, Quantity: 4, Actor: "order-service"}

	applied, err := f.stock.RegisterOrderSale(ctx, req)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = f.stock.RegisterOrderSale(ctx, req)
	require.NoError(t, err)
	assert.False(t, applied)

	inv, err := f.store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, inv.QuantityAvailable)
	assert.Len(t, f.store.movementsOf(created.ID), 2)

	t.Run("库存不足时不登记", func(t *testing.T) {
		big := OrderSaleRequest{OrderNo: "O1002", BookID: 1, Quantity: 7, Actor: "order-service"}
		_, err := f.stock.RegisterOrderSale(ctx, big)
		assert.True(t, errors.Is(err, inventory.ErrInsufficientStock))

		big.Quantity = 6
		applied, err := f.stock.RegisterOrderSale(ctx, big)
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("撤销后可以再次出库", func(t *testing.T) {
		reverted, err := f.stock.RevertOrderSale(ctx, req)
		require.NoError(t, err)
		assert.True(t, reverted)

		reverted, err = f.stock.RevertOrderSale(ctx, req)
		require.NoError(t, err)
		assert.False(t, reverted)

		inv, err := f.store.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, inv.QuantityAvailable)

		applied, err := f.stock.RegisterOrderSale(ctx, req)
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("缺少订单号", func(t *testing.T) {
		_, err := f.stock.RegisterOrderSale(ctx, OrderSaleRequest{BookID: 1, Quantity: 1})
		assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))
	})

	movements := f.store.movementsOf(created.ID)
	assertBalanced(t, movements)
	t.Logf("✓ 订单明细出库%d条变动", len(movements))
}

// TestStockService_Reservation 测试预留与释放
func TestStockService_Reservation(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	created := f.create(t, 2, 100, 10, 500)

	require.NoError(t, f.stock.ReserveStock(ctx, ReservationRequest{BookID: 2, Quantity: 40}))

	detail, err := f.query.FindByBookID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 60, detail.QuantityAvailable)
	assert.Equal(t, 40, detail.QuantityReserved)
	assert.Equal(t, 20, detail.RealStockAvailable)
	assert.Equal(t, "Go语言实战", detail.BookTitle)

	view, err := f.query.CheckAvailability(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, string(inventory.StatusAvailable), view.Status)
	assert.True(t, view.IsAvailable)
	assert.Equal(t, 60, view.QuantityAvailable)

	t.Run("预留超过可用库存", func(t *testing.T) {
		err := f.stock.ReserveStock(ctx, ReservationRequest{BookID: 2, Quantity: 61})
		assert.True(t, errors.Is(err, inventory.ErrInsufficientStock))
	})

	t.Run("释放超过预留库存", func(t *testing.T) {
		err := f.stock.ReleaseReservation(ctx, ReservationRequest{BookID: 2, Quantity: 41})
		assert.True(t, errors.Is(err, inventory.ErrInsufficientReservedStock))
		assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	})

	t.Run("释放全部预留", func(t *testing.T) {
		require.NoError(t, f.stock.ReleaseReservation(ctx, ReservationRequest{BookID: 2, Quantity: 40}))
		detail, err := f.query.FindByBookID(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, 100, detail.QuantityAvailable)
		assert.Equal(t, 0, detail.QuantityReserved)
	})

	movements := f.store.movementsOf(created.ID)
	require.Len(t, movements, 3)
	assert.Equal(t, inventory.MovementReserve, movements[1].Type)
	assert.Equal(t, -40, movements[1].AffectedQuantity)
	assert.Equal(t, inventory.MovementReleaseReserve, movements[2].Type)
	assertBalanced(t, movements)

	t.Logf("✓ 预留从可用库存中划出，释放后恢复")
}

// TestStockService_UpdateThresholds 测试阈值更新
func TestStockService_UpdateThresholds(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	created := f.create(t, 2, 100, 10, 500)
	require.NoError(t, f.stock.ReserveStock(ctx, ReservationRequest{BookID: 2, Quantity: 40}))

	detail, err := f.stock.UpdateThresholds(ctx, ThresholdRequest{BookID: 2, StockMin: 70, StockMax: 80, Actor: "manager"})
	require.NoError(t, err)
	assert.True(t, detail.AlertLowStock)
	assert.Equal(t, 70, detail.StockMin)
	assert.Equal(t, 80, detail.StockMax)
	assert.Equal(t, string(inventory.StatusFewUnits), detail.Status)
	assert.Equal(t, "Go语言实战", detail.BookTitle)

	movements := f.store.movementsOf(created.ID)
	last := movements[len(movements)-1]
	assert.Equal(t, inventory.MovementUpdateThreshold, last.Type)
	assert.Equal(t, 60, last.QuantityBefore)
	assert.Equal(t, 60, last.QuantityAfter)
	assert.Equal(t, 0, last.AffectedQuantity)
	assert.Equal(t, "manager", last.Actor)
	assert.Contains(t, f.publisher.routingKeys(), RoutingKeyLowStock)

	t.Run("最小库存不小于最大库存", func(t *testing.T) {
		_, err := f.stock.UpdateThresholds(ctx, ThresholdRequest{BookID: 2, StockMin: 80, StockMax: 80})
		assert.True(t, errors.Is(err, inventory.ErrInvalidStockThreshold))
		assert.Len(t, f.store.movementsOf(created.ID), len(movements))
	})

	t.Logf("✓ 阈值更新后重新计算预警")
}

// TestStockService_Disable 测试停用
func TestStockService_Disable(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	created := f.create(t, 1, 10, 2, 50)

	require.NoError(t, f.stock.DisableByID(ctx, created.ID, "admin"))
	require.NoError(t, f.stock.DisableByID(ctx, created.ID, "admin"))

	inv, err := f.store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, inv.Active)
	assert.Equal(t, 10, inv.QuantityAvailable)

	movements := f.store.movementsOf(created.ID)
	require.Len(t, movements, 3)
	assert.Equal(t, inventory.MovementDisable, movements[1].Type)
	assert.Equal(t, inventory.MovementDisable, movements[2].Type)

	err = f.stock.DisableByID(ctx, 999, "admin")
	assert.True(t, errors.Is(err, inventory.ErrInventoryNotFound))

	t.Logf("✓ 重复停用仍然记录DISABLE变动")
}

// TestStockService_Retry 测试版本冲突重试
func TestStockService_Retry(t *testing.T) {
	ctx := context.Background()
	opts := Options{OperationTimeout: time.Second, MaxRetries: 3, RetryInitialInterval: time.Millisecond}

	t.Run("冲突后重试成功", func(t *testing.T) {
		f := newFixture(t, opts)
		created := f.create(t, 1, 10, 2, 50)

		f.store.conflicts = 2
		sold, err := f.stock.RegisterSale(ctx, StockChangeRequest{BookID: 1, Quantity: 3})
		require.NoError(t, err)
		assert.Equal(t, 7, sold.QuantityAvailable)
		assert.Len(t, f.store.movementsOf(created.ID), 2)
	})

	t.Run("重试耗尽返回并发冲突", func(t *testing.T) {
		f := newFixture(t, opts)
		created := f.create(t, 1, 10, 2, 50)

		f.store.conflicts = 10
		_, err := f.stock.RegisterSale(ctx, StockChangeRequest{BookID: 1, Quantity: 3})
		require.Error(t, err)
		assert.True(t, errors.Is(err, inventory.ErrConcurrentModification))
		assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
		assert.Equal(t, 6, f.store.conflicts)

		inv, err := f.store.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, inv.QuantityAvailable)
		assert.Len(t, f.store.movementsOf(created.ID), 1)
	})

	t.Logf("✓ 版本冲突按次数重试")
}

// TestStockService_Timeout 测试操作超时
func TestStockService_Timeout(t *testing.T) {
	store := newMemoryStore()
	catalog := newMemoryCatalog(&book.Book{ID: 1, Title: "Go程序设计语言"})
	svc := NewStockService(store, movementLedger{store}, store, catalog, blockingTx{}, nil, nil,
		Options{OperationTimeout: 30 * time.Millisecond, MaxRetries: 3, RetryInitialInterval: time.Millisecond},
		zap.NewNop())

	start := time.Now()
	_, err := svc.RegisterSale(context.Background(), StockChangeRequest{BookID: 1, Quantity: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, inventory.ErrStorageUnavailable))
	assert.Equal(t, apperrors.KindUnavailable, apperrors.KindOf(err))
	assert.Less(t, time.Since(start), time.Second)

	t.Logf("✓ 超时返回Unavailable")
}

// TestStockService_ConcurrentSales 测试并发销售
// N个并发请求各买1本，库存N-1，恰好一个请求失败
func TestStockService_ConcurrentSales(t *testing.T) {
	const n = 20
	f := newFixture(t, Options{OperationTimeout: 5 * time.Second, MaxRetries: 3, RetryInitialInterval: time.Millisecond})
	ctx := context.Background()
	created := f.create(t, 3, n-1, 0, 100)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
		other        []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.stock.RegisterSale(ctx, StockChangeRequest{BookID: 3, Quantity: 1})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, inventory.ErrInsufficientStock):
				insufficient++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, n-1, succeeded)
	assert.Equal(t, 1, insufficient)

	inv, err := f.store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, inv.QuantityAvailable)
	assert.Len(t, f.store.movementsOf(created.ID), n)
	assertBalanced(t, f.store.movementsOf(created.ID))

	t.Logf("✓ %d个并发销售：成功%d，库存不足%d", n, succeeded, insufficient)
}
