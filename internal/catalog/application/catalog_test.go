package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/shopcart/internal/catalog/domain"
	"github.com/wyfcoding/shopcart/internal/catalog/infrastructure/persistence/mysql"
	"github.com/wyfcoding/shopcart/pkg/apperr"
	"github.com/wyfcoding/shopcart/pkg/db"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic, _ string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return p.err
}

func newTestService(t *testing.T) (*CatalogApplicationService, *recordingPublisher, *gorm.DB) {
	t.Helper()
	d, err := db.Open(sqlite.Open("file::memory:"), db.Config{Driver: "sqlite", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, d.AutoMigrate(&domain.Product{}))
	require.NoError(t, d.Exec("CREATE TABLE cart_items (id INTEGER PRIMARY KEY, cart_id INTEGER, product_id INTEGER, quantity INTEGER)").Error)

	pub := &recordingPublisher{}
	svc := NewCatalogApplicationService(mysql.NewProductRepository(d.DB), db.NewTransactionManager(d.DB), pub)
	return svc, pub, d.DB
}

func createPhone(t *testing.T, svc *CatalogApplicationService, stock int) *domain.Product {
	t.Helper()
	p, err := svc.CreateProduct(context.Background(), CreateProductCommand{
		Name:     "Phone",
		Price:    decimal.RequireFromString("199.90"),
		Stock:    stock,
		Category: "electronics",
	})
	require.NoError(t, err)
	return p
}

func TestCreateAndGetProduct(t *testing.T) {
	svc, pub, _ := newTestService(t)
	ctx := context.Background()

	p := createPhone(t, svc, 3)
	assert.NotZero(t, p.ID)
	assert.Equal(t, domain.StatusActive, p.Status)
	assert.Equal(t, []string{domain.TopicProductCreated}, pub.topics)

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Phone", got.Name)

	_, err = svc.CreateProduct(ctx, CreateProductCommand{Name: "Bad", Category: "toys"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))
}

func TestCreateSurvivesPublisherFailure(t *testing.T) {
	svc, pub, _ := newTestService(t)
	pub.err = errors.New("broker down")

	p := createPhone(t, svc, 1)
	_, err := svc.GetProduct(context.Background(), p.ID)
	assert.NoError(t, err)
}

func TestUpdateProductPartial(t *testing.T) {
	svc, pub, _ := newTestService(t)
	ctx := context.Background()
	p := createPhone(t, svc, 3)

	name := "Phone X"
	stock := 10
	updated, err := svc.UpdateProduct(ctx, UpdateProductCommand{ID: p.ID, Name: &name, Stock: &stock})
	require.NoError(t, err)
	assert.Equal(t, "Phone X", updated.Name)
	assert.Equal(t, 10, updated.StockQuantity)
	assert.True(t, updated.Price.Equal(decimal.RequireFromString("199.90")))
	assert.Contains(t, pub.topics, domain.TopicProductUpdated)

	negative := -1
	_, err = svc.UpdateProduct(ctx, UpdateProductCommand{ID: p.ID, Stock: &negative})
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.StockQuantity)

	_, err = svc.UpdateProduct(ctx, UpdateProductCommand{ID: 999, Name: &name})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestChangeStatusPersists(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	p := createPhone(t, svc, 0)

	p, err := svc.ChangeStatus(ctx, p.ID, domain.EventMarkOutOfStock)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOutOfStock, p.Status)

	_, err = svc.ChangeStatus(ctx, p.ID, domain.EventRestock)
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOutOfStock, got.Status)

	stock := 4
	_, err = svc.UpdateProduct(ctx, UpdateProductCommand{ID: p.ID, Stock: &stock})
	require.NoError(t, err)
	p, err = svc.ChangeStatus(ctx, p.ID, domain.EventRestock)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, p.Status)
}

func TestDeleteProduct(t *testing.T) {
	svc, pub, gdb := newTestService(t)
	ctx := context.Background()
	p := createPhone(t, svc, 1)

	require.NoError(t, gdb.Exec("INSERT INTO cart_items (cart_id, product_id, quantity) VALUES (1, ?, 1)", p.ID).Error)
	assert.ErrorIs(t, svc.DeleteProduct(ctx, p.ID), domain.ErrProductReferenced)

	require.NoError(t, gdb.Exec("DELETE FROM cart_items").Error)
	require.NoError(t, svc.DeleteProduct(ctx, p.ID))
	assert.Contains(t, pub.topics, domain.TopicProductDeleted)

	assert.ErrorIs(t, svc.DeleteProduct(ctx, p.ID), domain.ErrProductNotFound)
}

func TestListProducts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		createPhone(t, svc, i)
	}
	_, err := svc.CreateProduct(ctx, CreateProductCommand{Name: "Shirt", Price: decimal.NewFromInt(5), Category: "clothing"})
	require.NoError(t, err)

	products, page, err := svc.ListProducts(ctx, ListProductsQuery{Category: "electronics", Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, products, 2)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, int64(2), page.Pages)

	_, _, err = svc.ListProducts(ctx, ListProductsQuery{Category: "toys"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))
}

type deadlineTransactor struct {
	next     Transactor
	deadline time.Duration
}

func (d *deadlineTransactor) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if deadline, ok := ctx.Deadline(); ok {
		d.deadline = time.Until(deadline)
	}
	return d.next.Transaction(ctx, fn)
}

func TestCommandsRunUnderOperationTimeout(t *testing.T) {
	_, _, gdb := newTestService(t)
	repo := mysql.NewProductRepository(gdb)
	tx := &deadlineTransactor{next: db.NewTransactionManager(gdb)}
	svc := NewCatalogCommandService(repo, tx, nil, WithOperationTimeout(2*time.Second))
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, CreateProductCommand{
		Name:     "Phone",
		Price:    decimal.RequireFromString("199.90"),
		Category: "electronics",
	})
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, p.ID, domain.EventMarkOutOfStock)
	require.NoError(t, err)
	assert.Greater(t, tx.deadline, time.Duration(0))
	assert.LessOrEqual(t, tx.deadline, 2*time.Second)
}
