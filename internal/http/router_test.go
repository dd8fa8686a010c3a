package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/arabiperfum/perfume-store-website/internal/cache"
	"github.com/arabiperfum/perfume-store-website/internal/cart"
	"github.com/arabiperfum/perfume-store-website/internal/catalog"
	"github.com/arabiperfum/perfume-store-website/internal/checkout"
	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/arabiperfum/perfume-store-website/internal/favorites"
	"github.com/arabiperfum/perfume-store-website/internal/ledger"
	"github.com/arabiperfum/perfume-store-website/internal/metrics"
	"github.com/arabiperfum/perfume-store-website/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCartRepository struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
}

func (m *memoryCartRepository) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return c.Copy(), nil
}

func (m *memoryCartRepository) UpsertCart(_ context.Context, c *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[c.UserID] = c.Copy()
	return nil
}

func (m *memoryCartRepository) DeleteCart(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	return nil
}

type testServer struct {
	handler       http.Handler
	auth          *Authenticator
	customerToken string
	adminToken    string
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	repo, err := repository.NewRepository(&repository.Credentials{Driver: repository.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, repo.RunMigrations())
	t.Cleanup(func() { repo.Close() })

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	catalogService := catalog.NewService(repo)
	cartService := cart.NewService(&memoryCartRepository{carts: make(map[string]*domain.Cart)}, cache.NewRedisCache(redisClient, cache.Options{KeyPrefix: "test"}), catalogService)
	orders := ledger.New(repo)
	reg := prometheus.NewRegistry()
	auth := NewAuthenticator("test-secret")

	handler := NewRouter(RouterConfig{
		RequestTimeout: 5 * time.Second,
		CORSOrigins:    []string{"http://localhost:5173"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}, Services{
		Catalog:   catalogService,
		Carts:     cartService,
		Favorites: favorites.NewSessions(repo),
		Checkout:  checkout.NewSessions(orders, cartService),
		Orders:    orders,
		Auth:      auth,
		Metrics:   metrics.NewServerMetrics(reg),
		Gatherer:  reg,
	})

	customerToken, err := auth.Issue(customer, time.Hour)
	require.NoError(t, err)
	adminToken, err := auth.Issue(admin, time.Hour)
	require.NoError(t, err)

	return &testServer{handler: handler, auth: auth, customerToken: customerToken, adminToken: adminToken}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = jsonBody(t, body)
	}
	request := httptest.NewRequest(method, path, reader)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decode[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&v), recorder.Body.String())
	return v
}

func (s *testServer) createProduct(t *testing.T, name, price, category string) *domain.Product {
	t.Helper()
	rec := s.do(t, "POST", "/api/v1/admin/products", s.adminToken, catalog.ProductInput{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		ImageURL: "https://example.com/" + name + ".jpg",
		Category: category,
		Rating:   4.5,
		InStock:  true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*domain.Product](t, rec)
}

func TestRouter_Health(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, "GET", "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_CatalogIsPublic(t *testing.T) {
	s := setupServer(t)
	s.createProduct(t, "Royal Oud", "100", "Oud & incense")
	s.createProduct(t, "White Musk", "50", "Men's perfumes")

	rec := s.do(t, "GET", "/api/v1/products?q=oud", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	products := decode[[]domain.Product](t, rec)
	require.Len(t, products, 1)
	assert.Equal(t, "Oud & incense", products[0].Category)

	rec = s.do(t, "GET", "/api/v1/categories", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Category](t, rec), 3)

	rec = s.do(t, "GET", "/api/v1/products/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_AuthGates(t *testing.T) {
	s := setupServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"cart needs a user", "GET", "/api/v1/cart", "", http.StatusUnauthorized},
		{"orders need a user", "GET", "/api/v1/orders", "", http.StatusUnauthorized},
		{"bad token", "GET", "/api/v1/products", "garbage", http.StatusUnauthorized},
		{"admin needs a user", "GET", "/api/v1/admin/overview", "", http.StatusUnauthorized},
		{"customer is not admin", "GET", "/api/v1/admin/overview", s.customerToken, http.StatusForbidden},
		{"customer cannot edit catalog", "DELETE", "/api/v1/admin/products/x", s.customerToken, http.StatusForbidden},
		{"admin sees overview", "GET", "/api/v1/admin/overview", s.adminToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_CartToOrder(t *testing.T) {
	s := setupServer(t)
	oud := s.createProduct(t, "Royal Oud", "100", "Oud & incense")
	musk := s.createProduct(t, "White Musk", "50", "Men's perfumes")

	rec := s.do(t, "POST", "/api/v1/cart/items", s.customerToken, AddItemRequestDTO{ProductID: oud.ID, Quantity: 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, "POST", "/api/v1/cart/items", s.customerToken, AddItemRequestDTO{ProductID: musk.ID, Quantity: 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, "GET", "/api/v1/cart", s.customerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cartResp := decode[CartResponseDTO](t, rec)
	assert.True(t, decimal.NewFromInt(250).Equal(cartResp.Total), "total %s", cartResp.Total)
	assert.Equal(t, 3, cartResp.ItemCount)

	rec = s.do(t, "POST", "/api/v1/checkout/confirm", s.customerToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "confirm before review")

	rec = s.do(t, "POST", "/api/v1/checkout/shipping", s.customerToken, domain.CustomerInfo{
		Name:    "Layla Haddad",
		Email:   "layla@example.com",
		Phone:   "+971500000000",
		Address: "12 Corniche Rd",
		City:    "Abu Dhabi",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.CheckoutStepPaymentMethod, decode[checkout.State](t, rec).Step)

	rec = s.do(t, "POST", "/api/v1/checkout/payment", s.customerToken, domain.PaymentSelection{Kind: domain.PaymentCash})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.CheckoutStepReview, decode[checkout.State](t, rec).Step)

	rec = s.do(t, "POST", "/api/v1/checkout/confirm", s.customerToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orderID := decode[ConfirmResponseDTO](t, rec).OrderID

	rec = s.do(t, "GET", "/api/v1/cart", s.customerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[CartResponseDTO](t, rec).Lines)

	rec = s.do(t, "GET", "/api/v1/orders", s.customerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	orders := decode[[]domain.Order](t, rec)
	require.Len(t, orders, 1)
	assert.Equal(t, orderID, orders[0].ID)
	assert.True(t, decimal.NewFromInt(250).Equal(orders[0].Total))
	assert.Equal(t, domain.OrderStatusPending, orders[0].Status)
	assert.Len(t, orders[0].Lines, 2)

	rec = s.do(t, "PUT", "/api/v1/admin/orders/"+orderID.String()+"/status", s.adminToken, UpdateStatusRequestDTO{Status: domain.OrderStatusShipped})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.OrderStatusShipped, decode[domain.Order](t, rec).Status)

	rec = s.do(t, "GET", "/api/v1/orders/"+orderID.String(), s.customerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.OrderStatusShipped, decode[domain.Order](t, rec).Status)

	rec = s.do(t, "GET", "/api/v1/admin/overview", s.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	overview := decode[domain.Overview](t, rec)
	assert.Equal(t, 1, overview.OrderCount)
	assert.Equal(t, 1, overview.CustomerCount)
	assert.Equal(t, 2, overview.ProductCount)
	assert.Equal(t, 1, overview.ByStatus[domain.OrderStatusShipped])
}

func TestRouter_OtherUsersOrderIsHidden(t *testing.T) {
	s := setupServer(t)
	p := s.createProduct(t, "Amber Nights", "80", "Women's perfumes")

	s.do(t, "POST", "/api/v1/cart/items", s.customerToken, AddItemRequestDTO{ProductID: p.ID, Quantity: 1})
	s.do(t, "POST", "/api/v1/checkout/shipping", s.customerToken, domain.CustomerInfo{
		Name: "Layla Haddad", Email: "layla@example.com", Phone: "+971500000000", Address: "12 Corniche Rd", City: "Abu Dhabi",
	})
	s.do(t, "POST", "/api/v1/checkout/payment", s.customerToken, domain.PaymentSelection{Kind: domain.PaymentCash})
	rec := s.do(t, "POST", "/api/v1/checkout/confirm", s.customerToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orderID := decode[ConfirmResponseDTO](t, rec).OrderID

	other, err := s.auth.Issue(domain.User{ID: "user-2", Name: "Omar"}, time.Hour)
	require.NoError(t, err)

	rec = s.do(t, "GET", "/api/v1/orders/"+orderID.String(), other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_FavoritesAndSignOut(t *testing.T) {
	s := setupServer(t)
	p := s.createProduct(t, "Saffron Rose", "120", "Women's perfumes")

	rec := s.do(t, "POST", "/api/v1/favorites/"+p.ID+"/toggle", s.customerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[ToggleResponseDTO](t, rec).Favorite)

	rec = s.do(t, "GET", "/api/v1/favorites", s.customerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{p.ID}, decode[FavoritesResponseDTO](t, rec).ProductIDs)

	rec = s.do(t, "POST", "/api/v1/auth/signout", s.customerToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// a fresh session rehydrates from storage
	rec = s.do(t, "GET", "/api/v1/favorites", s.customerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{p.ID}, decode[FavoritesResponseDTO](t, rec).ProductIDs)

	rec = s.do(t, "POST", "/api/v1/favorites/"+p.ID+"/toggle", s.customerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[ToggleResponseDTO](t, rec).Favorite)

	rec = s.do(t, "POST", "/api/v1/favorites/not-a-uuid/toggle", s.customerToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_AdminProductValidation(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, "POST", "/api/v1/admin/products", s.adminToken, catalog.ProductInput{
		Name:     "",
		Price:    decimal.Zero,
		Category: "Perfumes for cats",
		Rating:   7,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Contains(t, resp.Fields, "name")
	assert.Contains(t, resp.Fields, "price")
	assert.Contains(t, resp.Fields, "category")
	assert.Contains(t, resp.Fields, "rating")
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := setupServer(t)

	request := httptest.NewRequest("OPTIONS", "/api/v1/cart", nil)
	request.Header.Set("Origin", "http://localhost:5173")
	request.Header.Set("Access-Control-Request-Method", "POST")
	request.Header.Set("Access-Control-Request-Headers", "Authorization")
	recorder := httptest.NewRecorder()

	s.handler.ServeHTTP(recorder, request)

	assert.Equal(t, "http://localhost:5173", recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	s := setupServer(t)
	s.do(t, "GET", "/api/v1/products", "", nil)

	rec := s.do(t, "GET", "/metrics", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `storefront_http_requests_total{method="GET",route="/api/v1/products",status="200"} 1`), body)
}
