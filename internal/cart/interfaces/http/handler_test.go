package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/shopcart/internal/cart/application"
	cartmysql "github.com/wyfcoding/shopcart/internal/cart/infrastructure/persistence/mysql"
	catalog "github.com/wyfcoding/shopcart/internal/catalog/domain"
	catalogmysql "github.com/wyfcoding/shopcart/internal/catalog/infrastructure/persistence/mysql"
	"github.com/wyfcoding/shopcart/pkg/db"
	"github.com/wyfcoding/shopcart/pkg/mq"
)

func newTestRouter(t *testing.T) (*gin.Engine, catalog.ProductRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	d, err := db.Open(sqlite.Open("file::memory:"), db.Config{Driver: "sqlite", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, cartmysql.Migrate(d.DB))

	carts := cartmysql.NewCartRepository(d.DB)
	products := catalogmysql.NewProductRepository(d.DB)
	command := application.NewCartCommandService(carts, products, catalogmysql.NewStockLedger(d.DB),
		db.NewTransactionManager(d.DB), mq.NopPublisher{})
	app := application.NewCartApplicationService(command, application.NewCartQueryService(carts))

	r := gin.New()
	NewCartHandler(app).RegisterRoutes(r)
	return r, products
}

func seed(t *testing.T, repo catalog.ProductRepository, stock int) *catalog.Product {
	t.Helper()
	p, err := catalog.NewProduct("Mug", "", decimal.RequireFromString("7.50"), stock, catalog.CategoryFood)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), p))
	return p
}

func do(r *gin.Engine, method, path, cartID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cartID != "" {
		req.Header.Set(HeaderCartID, cartID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) CartResponse {
	t.Helper()
	var resp CartResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestCartFlowOverHTTP(t *testing.T) {
	r, products := newTestRouter(t)
	p := seed(t, products, 5)
	path := "/api/v1/cart/" + strconv.FormatUint(uint64(p.ID), 10)

	w := do(r, http.MethodPost, "/api/v1/cart", "", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	cartID := w.Header().Get(HeaderCartID)
	require.NotEmpty(t, cartID)

	w = do(r, http.MethodPost, "/api/v1/cart/add_item", cartID, gin.H{"product_id": p.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	require.Len(t, resp.Products, 1)
	assert.Equal(t, 1, resp.Products[0].Quantity)
	assert.Equal(t, "Mug", resp.Products[0].Name)
	assert.Equal(t, "7.5", resp.Products[0].UnitPrice.String())

	w = do(r, http.MethodPut, path, cartID, gin.H{"quantity": 4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = decode(t, w)
	assert.Equal(t, 4, resp.ItemsCount)
	assert.Equal(t, "30", resp.TotalPrice.String())

	w = do(r, http.MethodPost, "/api/v1/cart/add_item", cartID, gin.H{"product_id": p.ID, "quantity": 2})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(r, http.MethodGet, "/api/v1/cart?cart_id="+cartID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, cartID, w.Header().Get(HeaderCartID))

	w = do(r, http.MethodDelete, path, cartID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w).Products)

	w = do(r, http.MethodDelete, path, cartID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	got, err := products.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.StockQuantity)
}

func TestCartRequestValidation(t *testing.T) {
	r, products := newTestRouter(t)
	p := seed(t, products, 5)
	path := "/api/v1/cart/" + strconv.FormatUint(uint64(p.ID), 10)

	w := do(r, http.MethodPost, "/api/v1/cart/add_item", "", gin.H{"product_id": p.ID, "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/cart/add_item", "", gin.H{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPut, path, "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPut, "/api/v1/cart/abc", "", gin.H{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/cart/add_item", "", gin.H{"product_id": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStaleCartIDStartsNewCart(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/v1/cart", "777", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.NotEqual(t, uint(777), resp.ID)
	assert.Equal(t, strconv.FormatUint(uint64(resp.ID), 10), w.Header().Get(HeaderCartID))

	w = do(r, http.MethodDelete, "/api/v1/cart", "not-a-number", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decode(t, w).ItemsCount)
}
