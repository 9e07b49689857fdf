package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/shopcart/internal/cart/domain"
	cartmysql "github.com/wyfcoding/shopcart/internal/cart/infrastructure/persistence/mysql"
	catalog "github.com/wyfcoding/shopcart/internal/catalog/domain"
	catalogmysql "github.com/wyfcoding/shopcart/internal/catalog/infrastructure/persistence/mysql"
	"github.com/wyfcoding/shopcart/pkg/apperr"
	"github.com/wyfcoding/shopcart/pkg/db"
	"github.com/wyfcoding/shopcart/pkg/metrics"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, topic, _ string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, value)
	return nil
}

type fixture struct {
	gdb      *gorm.DB
	svc      *CartApplicationService
	query    *CartQueryService
	carts    *cartmysql.CartRepository
	tm       *db.TransactionManager
	pub      *recordingPublisher
	metrics  *metrics.Metrics
	clock    time.Time
	products catalog.ProductRepository
}

func (f *fixture) now() time.Time { return f.clock }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d, err := db.Open(sqlite.Open("file::memory:"), db.Config{Driver: "sqlite", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return newFixtureOn(t, d.DB)
}

func newFixtureOn(t *testing.T, gdb *gorm.DB) *fixture {
	t.Helper()
	require.NoError(t, cartmysql.Migrate(gdb))

	f := &fixture{
		gdb:      gdb,
		carts:    cartmysql.NewCartRepository(gdb),
		tm:       db.NewTransactionManager(gdb),
		pub:      &recordingPublisher{},
		metrics:  metrics.New("cart"),
		clock:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		products: catalogmysql.NewProductRepository(gdb),
	}
	command := NewCartCommandService(
		f.carts,
		f.products,
		catalogmysql.NewStockLedger(gdb),
		f.tm,
		f.pub,
		WithClock(f.now),
		WithMetrics(f.metrics),
	)
	f.query = NewCartQueryService(f.carts)
	f.svc = NewCartApplicationService(command, f.query)
	return f
}

func (f *fixture) product(t *testing.T, price string, stock int) *catalog.Product {
	t.Helper()
	p, err := catalog.NewProduct("Kettle", "", decimal.RequireFromString(price), stock, catalog.CategoryElectronics)
	require.NoError(t, err)
	require.NoError(t, f.products.Save(context.Background(), p))
	return p
}

func (f *fixture) cart(t *testing.T) *domain.Cart {
	t.Helper()
	c, err := f.svc.CreateCart(context.Background())
	require.NoError(t, err)
	return c
}

func (f *fixture) stock(t *testing.T, id uint) int {
	t.Helper()
	p, err := f.products.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func (f *fixture) setStatus(t *testing.T, id uint, status catalog.Status) {
	t.Helper()
	require.NoError(t, f.gdb.Model(&catalog.Product{}).Where("id = ?", id).UpdateColumn("status", status).Error)
}

func TestAddItemReservesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "10", 5)
	c := f.cart(t)

	got, err := f.svc.AddItem(ctx, c.ID, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, f.stock(t, p.ID))
	assert.True(t, got.TotalPrice.Equal(decimal.NewFromInt(20)))

	got, err = f.svc.AddItem(ctx, c.ID, p.ID, 3)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 5, got.Items[0].Quantity)
	assert.Equal(t, 0, f.stock(t, p.ID))
	assert.True(t, got.TotalPrice.Equal(decimal.NewFromInt(50)))

	_, err = f.svc.AddItem(ctx, c.ID, p.ID, 1)
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	assert.Equal(t, 0, f.stock(t, p.ID))

	loaded, err := f.svc.GetCart(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Items[0].Quantity)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CartOperationsTotal.WithLabelValues(opAddItem, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CartOperationsTotal.WithLabelValues(opAddItem, "InsufficientStock")))
	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.StockUnitsTotal.WithLabelValues("reserve")))
}

func TestAddItemRejectsUnsellableProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.cart(t)

	inactive := f.product(t, "10", 5)
	f.setStatus(t, inactive.ID, catalog.StatusInactive)
	_, err := f.svc.AddItem(ctx, c.ID, inactive.ID, 1)
	assert.True(t, apperr.Is(err, apperr.KindProductInactive))

	flagged := f.product(t, "10", 5)
	f.setStatus(t, flagged.ID, catalog.StatusOutOfStock)
	_, err = f.svc.AddItem(ctx, c.ID, flagged.ID, 1)
	assert.True(t, apperr.Is(err, apperr.KindProductOutOfStock))

	_, err = f.svc.AddItem(ctx, c.ID, 999, 1)
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)

	_, err = f.svc.AddItem(ctx, 999, inactive.ID, 1)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)

	assert.Equal(t, 5, f.stock(t, inactive.ID))
	assert.Equal(t, 5, f.stock(t, flagged.ID))
}

func TestInvalidQuantityIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "10", 5)
	c := f.cart(t)

	for _, q := range []int{0, -1} {
		_, err := f.svc.AddItem(ctx, c.ID, p.ID, q)
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
		_, err = f.svc.UpdateQuantity(ctx, c.ID, p.ID, q)
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	}
	assert.Equal(t, 5, f.stock(t, p.ID))
}

func TestUpdateQuantityAppliesDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "10", 5)
	c := f.cart(t)

	_, err := f.svc.AddItem(ctx, c.ID, p.ID, 2)
	require.NoError(t, err)

	got, err := f.svc.UpdateQuantity(ctx, c.ID, p.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, f.stock(t, p.ID))
	assert.Equal(t, 5, got.Items[0].Quantity)
	assert.True(t, got.TotalPrice.Equal(decimal.NewFromInt(50)))

	got, err = f.svc.UpdateQuantity(ctx, c.ID, p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, f.stock(t, p.ID))
	assert.True(t, got.TotalPrice.Equal(decimal.NewFromInt(10)))

	// 目标值不变时库存不变
	got, err = f.svc.UpdateQuantity(ctx, c.ID, p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, f.stock(t, p.ID))
	assert.Equal(t, 1, got.Items[0].Quantity)
	assert.True(t, got.TotalPrice.Equal(decimal.NewFromInt(10)))

	_, err = f.svc.UpdateQuantity(ctx, c.ID, p.ID, 6)
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	assert.Equal(t, 4, f.stock(t, p.ID))

	other := f.product(t, "1", 1)
	_, err = f.svc.UpdateQuantity(ctx, c.ID, other.ID, 1)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestRemoveItemRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "10", 5)
	c := f.cart(t)

	_, err := f.svc.AddItem(ctx, c.ID, p.ID, 3)
	require.NoError(t, err)

	// 下架商品仍可移除
	f.setStatus(t, p.ID, catalog.StatusInactive)
	got, err := f.svc.RemoveItem(ctx, c.ID, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.True(t, got.TotalPrice.IsZero())
	assert.Equal(t, 5, f.stock(t, p.ID))

	_, err = f.svc.RemoveItem(ctx, c.ID, p.ID)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
	assert.Equal(t, 5, f.stock(t, p.ID))
}

func TestClearCartReleasesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product(t, "10", 5)
	p2 := f.product(t, "0.99", 4)
	c := f.cart(t)

	_, err := f.svc.AddItem(ctx, c.ID, p1.ID, 2)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, c.ID, p2.ID, 4)
	require.NoError(t, err)

	got, err := f.svc.ClearCart(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.True(t, got.TotalPrice.IsZero())
	assert.Equal(t, 5, f.stock(t, p1.ID))
	assert.Equal(t, 4, f.stock(t, p2.ID))

	require.Contains(t, f.pub.topics, domain.TopicCartCleared)
	last := f.pub.events[len(f.pub.events)-1].(domain.CartClearedEvent)
	assert.Equal(t, 6, last.ReleasedUnits)

	_, err = f.svc.ClearCart(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestTotalFollowsCurrentPrices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product(t, "19.99", 10)
	p2 := f.product(t, "5.01", 10)
	c := f.cart(t)

	_, err := f.svc.AddItem(ctx, c.ID, p1.ID, 3)
	require.NoError(t, err)
	got, err := f.svc.AddItem(ctx, c.ID, p2.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "69.99", got.TotalPrice.StringFixed(2))

	loaded, err := f.svc.GetCart(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, loaded.TotalPrice.Equal(got.TotalPrice))
	assert.Equal(t, 5, loaded.ItemsCount())

	// 价格变动后下一次修改按新价重算
	require.NoError(t, f.gdb.Model(&catalog.Product{}).Where("id = ?", p1.ID).
		UpdateColumn("price", decimal.NewFromInt(20)).Error)
	got, err = f.svc.UpdateQuantity(ctx, c.ID, p2.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "65.01", got.TotalPrice.StringFixed(2))
}

func TestFindOrCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.cart(t)

	got, err := f.svc.FindOrCreate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	fresh, err := f.svc.FindOrCreate(ctx, 12345)
	require.NoError(t, err)
	assert.NotEqual(t, uint(12345), fresh.ID)
	assert.NotEqual(t, c.ID, fresh.ID)

	fresh, err = f.svc.FindOrCreate(ctx, 0)
	require.NoError(t, err)
	assert.NotZero(t, fresh.ID)
}

func TestMutationRefreshesActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "10", 5)
	c := f.cart(t)

	_, err := f.carts.MarkAbandoned(ctx, f.clock.Add(time.Minute), f.clock)
	require.NoError(t, err)

	f.clock = f.clock.Add(2 * time.Hour)
	got, err := f.svc.AddItem(ctx, c.ID, p.ID, 1)
	require.NoError(t, err)
	assert.False(t, got.Abandoned)

	loaded, err := f.svc.GetCart(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, loaded.Abandoned)
	assert.True(t, loaded.UpdatedAt.Equal(f.clock))
}

// SQLite 单连接下请求是串行的，这里只验证计数；真实行锁竞争见 MySQL 用例
func TestConcurrentAddsForLastUnit(t *testing.T) {
	contendForStock(t, newFixture(t), 1, 8)
}

// contendForStock 让 buyers 个购物车同时抢购 stock 件商品，每人一件
func contendForStock(t *testing.T, f *fixture, stock, buyers int) {
	t.Helper()
	ctx := context.Background()
	p := f.product(t, "10", stock)

	carts := make([]*domain.Cart, buyers)
	for i := range carts {
		carts[i] = f.cart(t)
	}

	var (
		mu        sync.Mutex
		succeeded int
		short     int
	)
	var g errgroup.Group
	for _, c := range carts {
		g.Go(func() error {
			_, err := f.svc.AddItem(ctx, c.ID, p.ID, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperr.Is(err, apperr.KindInsufficientStock):
				short++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, stock, succeeded)
	assert.Equal(t, buyers-stock, short)
	assert.Equal(t, 0, f.stock(t, p.ID))

	var reserved int64
	require.NoError(t, f.gdb.Model(&domain.CartItem{}).Where("product_id = ?", p.ID).
		Select("COALESCE(SUM(quantity), 0)").Scan(&reserved).Error)
	assert.Equal(t, int64(stock), reserved)
}

type failingTransactor struct{ err error }

func (t failingTransactor) Transaction(context.Context, func(ctx context.Context) error) error {
	return t.err
}

func TestLockWaitTimeoutIsRetryable(t *testing.T) {
	f := newFixture(t)
	command := NewCartCommandService(
		f.carts,
		f.products,
		catalogmysql.NewStockLedger(f.gdb),
		failingTransactor{err: fmt.Errorf("select for update: %w", &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})},
		f.pub,
		WithMetrics(f.metrics),
	)

	_, err := command.AddItem(context.Background(), AddItemCommand{CartID: 1, ProductID: 1, Quantity: 1})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInfrastructure))
	assert.True(t, apperr.IsRetryable(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CartOperationsTotal.WithLabelValues(opAddItem, resultLockTimeout)))

	// 其余基础设施错误不计入锁超时
	command = NewCartCommandService(f.carts, f.products, catalogmysql.NewStockLedger(f.gdb),
		failingTransactor{err: errors.New("connection reset")}, f.pub, WithMetrics(f.metrics))
	_, err = command.Clear(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInfrastructure))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.CartOperationsTotal.WithLabelValues(opClear, resultLockTimeout)))
}
