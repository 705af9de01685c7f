package mysql_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	appinventory "github.com/xiebiao/bookstore-ledger/internal/application/inventory"
	"github.com/xiebiao/bookstore-ledger/internal/domain/inventory"
	"github.com/xiebiao/bookstore-ledger/internal/infrastructure/persistence/mysql"
	apperrors "github.com/xiebiao/bookstore-ledger/pkg/errors"
)

// newFileDB 基于文件的SQLite，多个连接并发写入
// BEGIN IMMEDIATE在事务开始时取得写锁，效果与SELECT ... FOR UPDATE相同
func newFileDB(t *testing.T, conns int) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	sqlDB.SetMaxIdleConns(conns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, mysql.AutoMigrate(db))
	require.NoError(t, db.Create(&mysql.BookModel{
		ID: 3, ISBN: "9787121312090", Title: "Go并发编程实战", Author: "郝林", Publisher: "电子工业出版社",
	}).Error)
	return db
}

func newStockService(db *gorm.DB, repo inventory.Repository, opts appinventory.Options) *appinventory.StockService {
	return appinventory.NewStockService(repo, mysql.NewMovementRepository(db), mysql.NewOrderSaleRepository(db),
		mysql.NewBookRepository(db), mysql.NewTxManager(db), nil, nil, opts, zap.NewNop())
}

func movementCount(t *testing.T, db *gorm.DB, inventoryID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&mysql.MovementModel{}).Where("inventory_id = ?", inventoryID).Count(&n).Error)
	return n
}

// TestStockService_ConcurrentSalesOnSQLite 测试多连接并发销售
// N个请求各买1本，库存N-1，恰好一个请求库存不足
func TestStockService_ConcurrentSalesOnSQLite(t *testing.T) {
	const n = 16
	db := newFileDB(t, 8)
	repo := mysql.NewInventoryRepository(db)
	stock := newStockService(db, repo, appinventory.Options{
		OperationTimeout:     20 * time.Second,
		MaxRetries:           5,
		RetryInitialInterval: 5 * time.Millisecond,
	})
	ctx := context.Background()

	created, err := stock.Create(ctx, appinventory.CreateInventoryRequest{
		BookID: 3, QuantityAvailable: n - 1, StockMin: 0, StockMax: 100, Actor: "admin",
	})
	require.NoError(t, err)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
		other        []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := stock.RegisterSale(ctx, appinventory.StockChangeRequest{BookID: 3, Quantity: 1, Actor: "cashier"})

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
	close(start)
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, n-1, succeeded)
	assert.Equal(t, 1, insufficient)

	inv, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, inv.QuantityAvailable)
	assert.Equal(t, int64(n-1), inv.Version)
	assert.Equal(t, int64(n), movementCount(t, db, created.ID))

	var unbalanced int64
	require.NoError(t, db.Model(&mysql.MovementModel{}).
		Where("quantity_after <> quantity_before + affected_quantity OR quantity_after < 0").
		Count(&unbalanced).Error)
	assert.Zero(t, unbalanced)

	t.Logf("✓ %d个并发销售：成功%d，库存不足%d", n, succeeded, insufficient)
}

// staleRepository 前stale次LockByBookID返回过期版本号，Update按版本写入时冲突
type staleRepository struct {
	inventory.Repository
	mu    sync.Mutex
	stale int
	locks int
}

func (r *staleRepository) LockByBookID(ctx context.Context, bookID uint) (*inventory.Inventory, error) {
	inv, err := r.Repository.LockByBookID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks++
	if r.stale > 0 {
		r.stale--
		inv.Version--
	}
	return inv, nil
}

// TestStockService_VersionConflictOnSQLite 测试版本冲突经由真实Update触发重试
func TestStockService_VersionConflictOnSQLite(t *testing.T) {
	ctx := context.Background()
	opts := appinventory.Options{OperationTimeout: 5 * time.Second, MaxRetries: 3, RetryInitialInterval: time.Millisecond}

	t.Run("冲突后重试成功", func(t *testing.T) {
		db := newFileDB(t, 2)
		repo := &staleRepository{Repository: mysql.NewInventoryRepository(db)}
		stock := newStockService(db, repo, opts)

		created, err := stock.Create(ctx, appinventory.CreateInventoryRequest{BookID: 3, QuantityAvailable: 10, StockMax: 100})
		require.NoError(t, err)

		repo.stale = 2
		sold, err := stock.RegisterSale(ctx, appinventory.StockChangeRequest{BookID: 3, Quantity: 4})
		require.NoError(t, err)
		assert.Equal(t, 6, sold.QuantityAvailable)
		assert.Equal(t, 3, repo.locks)
		assert.Equal(t, int64(2), movementCount(t, db, created.ID))
	})

	t.Run("重试耗尽返回并发冲突", func(t *testing.T) {
		db := newFileDB(t, 2)
		repo := &staleRepository{Repository: mysql.NewInventoryRepository(db)}
		stock := newStockService(db, repo, opts)

		created, err := stock.Create(ctx, appinventory.CreateInventoryRequest{BookID: 3, QuantityAvailable: 10, StockMax: 100})
		require.NoError(t, err)

		repo.stale = 10
		_, err = stock.RegisterSale(ctx, appinventory.StockChangeRequest{BookID: 3, Quantity: 4})
		require.Error(t, err)
		assert.True(t, errors.Is(err, inventory.ErrConcurrentModification))
		assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
		assert.Equal(t, 4, repo.locks)

		inv, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, inv.QuantityAvailable)
		assert.Equal(t, int64(1), movementCount(t, db, created.ID))
	})

	t.Logf("✓ 版本号过期时Update冲突并整体重试")
}
