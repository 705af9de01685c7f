package inventory

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xiebiao/bookstore-ledger/internal/domain/book"
	"github.com/xiebiao/bookstore-ledger/internal/domain/inventory"
	"github.com/xiebiao/bookstore-ledger/pkg/metrics"
)

// QueryService 库存查询服务
// 读操作不加锁，允许读到稍旧的数据
type QueryService struct {
	repo            inventory.Repository
	movements       inventory.MovementRepository
	catalog         book.Catalog
	cache           AvailabilityCache
	defaultPageSize int
	maxPageSize     int
	log             *zap.Logger
}

// NewQueryService 创建查询服务
func NewQueryService(
	repo inventory.Repository,
	movements inventory.MovementRepository,
	catalog book.Catalog,
	cache AvailabilityCache,
	defaultPageSize, maxPageSize int,
	log *zap.Logger,
) *QueryService {
	if cache == nil {
		cache = noopCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &QueryService{
		repo:            repo,
		movements:       movements,
		catalog:         catalog,
		cache:           cache,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
		log:             log,
	}
}

// ListAll 查询全部库存记录
func (s *QueryService) ListAll(ctx context.Context) ([]InventorySummary, error) {
	list, err := s.repo.List(ctx, inventory.ListFilter{})
	if err != nil {
		return nil, err
	}
	return toSummaries(list), nil
}

// ListByActiveStatus 按启用状态查询
func (s *QueryService) ListByActiveStatus(ctx context.Context, active bool) ([]InventorySummary, error) {
	list, err := s.repo.List(ctx, inventory.ListFilter{Active: &active})
	if err != nil {
		return nil, err
	}
	return toSummaries(list), nil
}

// ListLowStockAlert 查询处于低库存预警的启用记录
func (s *QueryService) ListLowStockAlert(ctx context.Context) ([]InventorySummary, error) {
	active := true
	list, err := s.repo.List(ctx, inventory.ListFilter{Active: &active, LowStock: true})
	if err != nil {
		return nil, err
	}
	metrics.SetLowStock(len(list))
	return toSummaries(list), nil
}

// FindByBookID 按图书ID查询详情
func (s *QueryService) FindByBookID(ctx context.Context, bookID uint) (*InventoryDetail, error) {
	inv, err := s.repo.FindByBookID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return detailOf(ctx, s.catalog, inv)
}

// FindByID 按库存ID查询详情
func (s *QueryService) FindByID(ctx context.Context, id uint) (*InventoryDetail, error) {
	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return detailOf(ctx, s.catalog, inv)
}

// CheckAvailability 查询可售状态
// 优先读缓存，未命中或缓存不可用时读数据库并回填
// 缓存命中率只在这里计数
func (s *QueryService) CheckAvailability(ctx context.Context, bookID uint) (*AvailabilityView, error) {
	snap, err := s.cache.Get(ctx, bookID)
	switch {
	case err != nil:
		metrics.IncCache("error")
		s.log.Warn("读取可售状态缓存失败，回退到数据库", zap.Uint("book_id", bookID), zap.Error(err))
	case snap != nil:
		metrics.IncCache("hit")
		return toAvailability(*snap), nil
	default:
		metrics.IncCache("miss")
	}

	inv, err := s.repo.FindByBookID(ctx, bookID)
	if err != nil {
		return nil, err
	}

	fresh := inv.Snapshot()
	if err := s.cache.Set(ctx, fresh); err != nil {
		s.log.Warn("回填可售状态缓存失败", zap.Uint("book_id", bookID), zap.Error(err))
	}
	return toAvailability(fresh), nil
}

// MovementsByInventory 查询某条库存记录的变动
func (s *QueryService) MovementsByInventory(ctx context.Context, inventoryID uint, page PageQuery) (*MovementPage, error) {
	if _, err := s.repo.FindByID(ctx, inventoryID); err != nil {
		return nil, err
	}
	return s.listMovements(ctx, inventory.MovementQuery{InventoryID: &inventoryID}, page)
}

// MovementsByType 按变动类型查询
func (s *QueryService) MovementsByType(ctx context.Context, movementType string, page PageQuery) (*MovementPage, error) {
	t, err := inventory.ParseMovementType(movementType)
	if err != nil {
		return nil, err
	}
	return s.listMovements(ctx, inventory.MovementQuery{Type: &t}, page)
}

// MovementsByDateRange 按时间范围查询（闭区间）
func (s *QueryService) MovementsByDateRange(ctx context.Context, start, end time.Time, page PageQuery) (*MovementPage, error) {
	if start.After(end) {
		return nil, inventory.ErrInvalidDateRange.WithField("movement", "start", start.Format(timeLayout))
	}
	return s.listMovements(ctx, inventory.MovementQuery{From: &start, To: &end}, page)
}

// RecentMovements 最近的变动
func (s *QueryService) RecentMovements(ctx context.Context, page PageQuery) (*MovementPage, error) {
	return s.listMovements(ctx, inventory.MovementQuery{}, page)
}

func (s *QueryService) listMovements(ctx context.Context, q inventory.MovementQuery, page PageQuery) (*MovementPage, error) {
	req, err := inventory.NewPageRequest(page.Page, page.Size, page.Sort, s.defaultPageSize, s.maxPageSize)
	if err != nil {
		return nil, err
	}
	q.Page = req

	list, total, err := s.movements.List(ctx, q)
	if err != nil {
		return nil, err
	}

	views := make([]MovementView, 0, len(list))
	for _, m := range list {
		views = append(views, toMovementView(m))
	}
	return &MovementPage{
		List:  views,
		Total: total,
		Page:  req.Page,
		Size:  req.Size,
	}, nil
}

// detailOf 组装详情，图书已被移除时图书字段留空
func detailOf(ctx context.Context, catalog book.Catalog, inv *inventory.Inventory) (*InventoryDetail, error) {
	b, err := catalog.FindBookByID(ctx, inv.BookID)
	if err != nil && !errors.Is(err, book.ErrBookNotFound) {
		return nil, err
	}
	return toDetail(inv, b), nil
}
