package inventory

import (
	"context"
	"sort"
	"sync"

	"github.com/xiebiao/bookstore-ledger/internal/domain/book"
	"github.com/xiebiao/bookstore-ledger/internal/domain/inventory"
)

// memoryStore 内存版库存仓储 + 变动仓储 + 订单明细登记 + 事务管理
//
// Transaction持有txMu，模拟行锁串行化写入；fn返回错误时恢复快照，模拟回滚
type memoryStore struct {
	txMu sync.Mutex

	mu          sync.Mutex
	inventories map[uint]inventory.Inventory
	movements   []inventory.Movement
	nextInvID   uint
	nextMovID   uint
	orderSales  map[orderLine]struct{}

	// conflicts 接下来的Update调用中强制返回版本冲突的次数
	conflicts int
}

type orderLine struct {
	orderNo string
	bookID  uint
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		inventories: make(map[uint]inventory.Inventory),
		orderSales:  make(map[orderLine]struct{}),
	}
}

func (s *memoryStore) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	invs := make(map[uint]inventory.Inventory, len(s.inventories))
	for k, v := range s.inventories {
		invs[k] = v
	}
	sales := make(map[orderLine]struct{}, len(s.orderSales))
	for k := range s.orderSales {
		sales[k] = struct{}{}
	}
	movCount, nextInv, nextMov := len(s.movements), s.nextInvID, s.nextMovID
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.inventories = invs
		s.orderSales = sales
		s.movements = s.movements[:movCount]
		s.nextInvID, s.nextMovID = nextInv, nextMov
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memoryStore) Create(ctx context.Context, inv *inventory.Inventory) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.inventories {
		if existing.BookID == inv.BookID {
			return inventory.ErrDuplicateInventory.WithField("inventory", "book_id", inv.BookID)
		}
	}
	s.nextInvID++
	inv.ID = s.nextInvID
	inv.Version = 1
	s.inventories[inv.ID] = *inv
	return nil
}

func (s *memoryStore) FindByID(ctx context.Context, id uint) (*inventory.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.inventories[id]
	if !ok {
		return nil, inventory.ErrInventoryNotFound.WithField("inventory", "id", id)
	}
	return &inv, nil
}

func (s *memoryStore) FindByBookID(ctx context.Context, bookID uint) (*inventory.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.inventories {
		if inv.BookID == bookID {
			cp := inv
			return &cp, nil
		}
	}
	return nil, inventory.ErrInventoryNotFound.WithField("inventory", "book_id", bookID)
}

func (s *memoryStore) LockByID(ctx context.Context, id uint) (*inventory.Inventory, error) {
	return s.FindByID(ctx, id)
}

func (s *memoryStore) LockByBookID(ctx context.Context, bookID uint) (*inventory.Inventory, error) {
	return s.FindByBookID(ctx, bookID)
}

func (s *memoryStore) Update(ctx context.Context, inv *inventory.Inventory) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts > 0 {
		s.conflicts--
		return inventory.ErrVersionConflict.WithField("inventory", "version", inv.Version)
	}
	stored, ok := s.inventories[inv.ID]
	if !ok {
		return inventory.ErrInventoryNotFound.WithField("inventory", "id", inv.ID)
	}
	if stored.Version != inv.Version {
		return inventory.ErrVersionConflict.WithField("inventory", "version", inv.Version)
	}
	inv.Version++
	s.inventories[inv.ID] = *inv
	return nil
}

func (s *memoryStore) List(ctx context.Context, filter inventory.ListFilter) ([]*inventory.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*inventory.Inventory
	for _, inv := range s.inventories {
		if filter.Active != nil && inv.Active != *filter.Active {
			continue
		}
		if filter.LowStock && !(inv.Active && inv.QuantityAvailable <= inv.StockMin) {
			continue
		}
		cp := inv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) Append(ctx context.Context, m *inventory.Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMovID++
	m.ID = s.nextMovID
	s.movements = append(s.movements, *m)
	return nil
}

func (s *memoryStore) Record(ctx context.Context, orderNo string, bookID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := orderLine{orderNo, bookID}
	if _, ok := s.orderSales[key]; ok {
		return inventory.ErrOrderSaleApplied.WithField("order_sale", "order_no", orderNo)
	}
	s.orderSales[key] = struct{}{}
	return nil
}

func (s *memoryStore) Remove(ctx context.Context, orderNo string, bookID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := orderLine{orderNo, bookID}
	_, ok := s.orderSales[key]
	delete(s.orderSales, key)
	return ok, nil
}

// ListMovements 按ID排序，只支持id和created_at两种排序
func (s *memoryStore) ListMovements(q inventory.MovementQuery) ([]*inventory.Movement, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*inventory.Movement
	for _, m := range s.movements {
		if q.InventoryID != nil && m.InventoryID != *q.InventoryID {
			continue
		}
		if q.Type != nil && m.Type != *q.Type {
			continue
		}
		if q.From != nil && m.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && m.CreatedAt.After(*q.To) {
			continue
		}
		cp := m
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		if q.Page.Desc {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].ID < matched[j].ID
	})

	total := int64(len(matched))
	start := q.Page.Offset()
	if start >= len(matched) {
		return nil, total
	}
	end := min(start+q.Page.Size, len(matched))
	return matched[start:end], total
}

// movementsOf 某条库存记录的全部变动（按写入顺序）
func (s *memoryStore) movementsOf(inventoryID uint) []inventory.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.Movement
	for _, m := range s.movements {
		if m.InventoryID == inventoryID {
			out = append(out, m)
		}
	}
	return out
}

// movementLedger 让memoryStore同时满足MovementRepository（List方法名冲突）
type movementLedger struct {
	*memoryStore
}

func (l movementLedger) List(ctx context.Context, q inventory.MovementQuery) ([]*inventory.Movement, int64, error) {
	list, total := l.ListMovements(q)
	return list, total, nil
}

type memoryCatalog struct {
	books map[uint]*book.Book
}

func newMemoryCatalog(books ...*book.Book) *memoryCatalog {
	c := &memoryCatalog{books: make(map[uint]*book.Book)}
	for _, b := range books {
		c.books[b.ID] = b
	}
	return c
}

func (c *memoryCatalog) FindBookByID(ctx context.Context, id uint) (*book.Book, error) {
	b, ok := c.books[id]
	if !ok {
		return nil, book.ErrBookNotFound.WithField("book", "id", id)
	}
	return b, nil
}

// memoryCache 与Redis实现一致：Invalidate记录版本号，更旧的Set被忽略
type memoryCache struct {
	mu            sync.Mutex
	snapshots     map[uint]inventory.AvailabilitySnapshot
	versions      map[uint]int64
	invalidations int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		snapshots: make(map[uint]inventory.AvailabilitySnapshot),
		versions:  make(map[uint]int64),
	}
}

func (c *memoryCache) Get(ctx context.Context, bookID uint) (*inventory.AvailabilitySnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snapshots[bookID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (c *memoryCache) Set(ctx context.Context, snap inventory.AvailabilitySnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.versions[snap.BookID]; ok && cur > snap.Version {
		return nil
	}
	c.versions[snap.BookID] = snap.Version
	c.snapshots[snap.BookID] = snap
	return nil
}

func (c *memoryCache) Invalidate(ctx context.Context, bookID uint, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.versions[bookID]; !ok || cur < version {
		c.versions[bookID] = version
	}
	delete(c.snapshots, bookID)
	c.invalidations++
	return nil
}

// interleavedRepository 在FindByBookID读完之后、返回之前执行一次hook
type interleavedRepository struct {
	inventory.Repository
	once sync.Once
	hook func()
}

func (r *interleavedRepository) FindByBookID(ctx context.Context, bookID uint) (*inventory.Inventory, error) {
	inv, err := r.Repository.FindByBookID(ctx, bookID)
	r.once.Do(r.hook)
	return inv, err
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *recordingPublisher) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// blockingTx 直到ctx结束才返回，用于测试超时
type blockingTx struct{}

func (blockingTx) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	<-ctx.Done()
	return ctx.Err()
}
