package repository

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	womenCategoryID = "6c1c3f8e-0b1d-4c55-9a43-0d3e8a1f0001"
	menCategoryID   = "6c1c3f8e-0b1d-4c55-9a43-0d3e8a1f0002"
)

func setupSQLite(t *testing.T) *Repository {
	t.Helper()

	repo, err := NewRepository(&Credentials{Driver: DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, repo.RunMigrations())

	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedProduct(t *testing.T, repo *Repository, name, price, categoryID string) *domain.Product {
	t.Helper()

	p := &domain.Product{
		Name:        name,
		Description: name + " eau de parfum",
		Price:       decimal.RequireFromString(price),
		ImageURL:    "https://example.com/" + name + ".jpg",
		CategoryID:  categoryID,
		Rating:      4.5,
		ReviewCount: 12,
		InStock:     true,
	}
	require.NoError(t, repo.CreateProduct(context.Background(), p))
	return p
}

func newTestOrder(userID string, createdAt time.Time, lines ...domain.OrderLine) *domain.Order {
	return &domain.Order{
		ID:         uuid.New(),
		CheckoutID: uuid.New(),
		UserID:     userID,
		Lines:      lines,
		Total:      domain.SumLines(lines),
		Status:     domain.OrderStatusPending,
		Customer: domain.CustomerInfo{
			Name:    "Layla Haddad",
			Email:   "layla@example.com",
			Phone:   "+971500000000",
			Address: "12 Corniche Rd",
			City:    "Abu Dhabi",
		},
		PaymentMethod: domain.PaymentCash,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func line(productID string, qty int, price string) domain.OrderLine {
	return domain.OrderLine{
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
	}
}

func placedEvent(order *domain.Order) *OutboxEvent {
	payload, _ := json.Marshal(map[string]string{"order_id": order.ID.String()})
	return &OutboxEvent{
		AggregateID: order.ID.String(),
		EventType:   EventOrderPlaced,
		Payload:     payload,
	}
}

func TestSQLite_CreateOrder_RoundTrip(t *testing.T) {
	testCreateOrderRoundTrip(t, setupSQLite(t))
}

func TestSQLite_CreateOrder_DuplicateCheckout(t *testing.T) {
	testDuplicateCheckout(t, setupSQLite(t))
}

func TestSQLite_CreateOrder_FailedLineLeavesNothing(t *testing.T) {
	testFailedLineRollsBack(t, setupSQLite(t))
}

func TestSQLite_OrderLines_DeletedProductFallsBackToPlaceholders(t *testing.T) {
	testDeletedProductPlaceholders(t, setupSQLite(t))
}

func TestSQLite_Favorites_ConcurrentAddsKeepOneRow(t *testing.T) {
	testConcurrentFavoriteAdds(t, setupSQLite(t))
}

func testCreateOrderRoundTrip(t *testing.T, repo *Repository) {
	ctx := context.Background()
	oud := seedProduct(t, repo, "Royal Oud", "100", womenCategoryID)
	musk := seedProduct(t, repo, "White Musk", "50", menCategoryID)

	order := newTestOrder("user-1", time.Now().UTC().Truncate(time.Millisecond),
		line(oud.ID, 2, "100"),
		line(musk.ID, 1, "50"),
	)
	require.NoError(t, repo.CreateOrder(ctx, order, placedEvent(order)))

	got, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)

	assert.Equal(t, order.CheckoutID, got.CheckoutID)
	assert.Equal(t, "user-1", got.UserID)
	assert.True(t, decimal.NewFromInt(250).Equal(got.Total), "total %s", got.Total)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.Equal(t, domain.PaymentCash, got.PaymentMethod)
	assert.Equal(t, order.Customer, got.Customer)
	assert.WithinDuration(t, order.CreatedAt, got.CreatedAt, time.Second)

	require.Len(t, got.Lines, 2)
	assert.Equal(t, oud.ID, got.Lines[0].ProductID)
	assert.Equal(t, 2, got.Lines[0].Quantity)
	assert.Equal(t, "Royal Oud", got.Lines[0].Display.Name)
	assert.Equal(t, "Women's perfumes", got.Lines[0].Display.Category)
	assert.Equal(t, musk.ID, got.Lines[1].ProductID)
	assert.True(t, got.Total.Equal(domain.SumLines(got.Lines)))

	byCheckout, err := repo.GetOrderByCheckoutID(ctx, order.CheckoutID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, byCheckout.ID)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventOrderPlaced, events[0].EventType)
	assert.Equal(t, order.ID.String(), events[0].AggregateID)
	assert.JSONEq(t, `{"order_id":"`+order.ID.String()+`"}`, string(events[0].Payload))

	require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))
	events, err = repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func testDuplicateCheckout(t *testing.T, repo *Repository) {
	ctx := context.Background()
	p := seedProduct(t, repo, "Amber Nights", "80", womenCategoryID)

	first := newTestOrder("user-5", time.Now().UTC(), line(p.ID, 1, "80"))
	require.NoError(t, repo.CreateOrder(ctx, first, nil))

	second := newTestOrder("user-5", time.Now().UTC(), line(p.ID, 1, "80"))
	second.CheckoutID = first.CheckoutID

	err := repo.CreateOrder(ctx, second, nil)
	assert.ErrorIs(t, err, ErrDuplicateCheckout)

	_, err = repo.GetOrderByID(ctx, second.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	orders, err := repo.ListOrdersByUserID(ctx, "user-5")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func testFailedLineRollsBack(t *testing.T, repo *Repository) {
	ctx := context.Background()
	p := seedProduct(t, repo, "Saffron Rose", "120", womenCategoryID)

	// the second line violates quantity > 0 after the header is already written
	order := newTestOrder("user-2", time.Now().UTC(), line(p.ID, 1, "120"), line(p.ID, 0, "120"))
	err := repo.CreateOrder(ctx, order, placedEvent(order))
	require.Error(t, err)

	_, err = repo.GetOrderByID(ctx, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	orders, err := repo.ListAllOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func testDeletedProductPlaceholders(t *testing.T, repo *Repository) {
	ctx := context.Background()
	p := seedProduct(t, repo, "Vintage Vetiver", "65.50", menCategoryID)

	order := newTestOrder("user-3", time.Now().UTC(), line(p.ID, 3, "65.50"))
	require.NoError(t, repo.CreateOrder(ctx, order, nil))
	require.NoError(t, repo.DeleteProduct(ctx, p.ID))

	got, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)

	l := got.Lines[0]
	assert.Equal(t, p.ID, l.ProductID)
	assert.Equal(t, 3, l.Quantity)
	assert.True(t, decimal.RequireFromString("65.50").Equal(l.UnitPrice))
	assert.Equal(t, domain.PlaceholderProductName, l.Display.Name)
	assert.Equal(t, domain.PlaceholderImageURL, l.Display.ImageURL)
	assert.Equal(t, domain.PlaceholderCategory, l.Display.Category)
	assert.True(t, decimal.RequireFromString("196.50").Equal(got.Total))
}

func testConcurrentFavoriteAdds(t *testing.T, repo *Repository) {
	ctx := context.Background()
	p := seedProduct(t, repo, "Desert Bloom", "45", womenCategoryID)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.AddFavorite(ctx, "user-4", p.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	ids, err := repo.ListFavorites(ctx, "user-4")
	require.NoError(t, err)
	assert.Equal(t, []string{p.ID}, ids)
}

func TestSQLite_ListOrders_NewestFirstAndScopedToUser(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()
	p := seedProduct(t, repo, "Cedar Smoke", "30", menCategoryID)

	base := time.Now().UTC().Add(-time.Hour)
	older := newTestOrder("user-1", base, line(p.ID, 1, "30"))
	newer := newTestOrder("user-1", base.Add(10*time.Minute), line(p.ID, 2, "30"))
	other := newTestOrder("user-2", base.Add(5*time.Minute), line(p.ID, 1, "30"))
	for _, o := range []*domain.Order{older, newer, other} {
		require.NoError(t, repo.CreateOrder(ctx, o, nil))
	}

	mine, err := repo.ListOrdersByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, newer.ID, mine[0].ID)
	assert.Equal(t, older.ID, mine[1].ID)
	assert.Len(t, mine[0].Lines, 1)

	all, err := repo.ListAllOrders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uuid.UUID{newer.ID, other.ID, older.ID}, []uuid.UUID{all[0].ID, all[1].ID, all[2].ID})

	none, err := repo.ListOrdersByUserID(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSQLite_UpdateOrderStatus(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()
	p := seedProduct(t, repo, "Jasmine Dew", "70", womenCategoryID)

	order := newTestOrder("user-1", time.Now().UTC(), line(p.ID, 1, "70"))
	require.NoError(t, repo.CreateOrder(ctx, order, nil))

	event := &OutboxEvent{AggregateID: order.ID.String(), EventType: EventOrderStatusChanged, Payload: json.RawMessage(`{"status":"shipped"}`)}
	require.NoError(t, repo.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusShipped, event))

	got, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, got.Status)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventOrderStatusChanged, events[0].EventType)

	err = repo.UpdateOrderStatus(ctx, uuid.New(), domain.OrderStatusShipped, nil)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestSQLite_GetOrder_NotFound(t *testing.T) {
	repo := setupSQLite(t)

	_, err := repo.GetOrderByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = repo.GetOrderByCheckoutID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestSQLite_Favorites(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()
	a := seedProduct(t, repo, "Bergamot", "20", womenCategoryID)
	b := seedProduct(t, repo, "Sandalwood", "25", menCategoryID)

	ids, err := repo.ListFavorites(ctx, "user-1")
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)

	require.NoError(t, repo.AddFavorite(ctx, "user-1", a.ID))
	require.NoError(t, repo.AddFavorite(ctx, "user-1", a.ID))
	require.NoError(t, repo.AddFavorite(ctx, "user-1", b.ID))
	require.NoError(t, repo.AddFavorite(ctx, "user-2", b.ID))

	ids, err = repo.ListFavorites(ctx, "user-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	require.NoError(t, repo.RemoveFavorite(ctx, "user-1", a.ID))
	require.NoError(t, repo.RemoveFavorite(ctx, "user-1", a.ID))

	ids, err = repo.ListFavorites(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids)

	err = repo.AddFavorite(ctx, "user-1", uuid.NewString())
	assert.ErrorIs(t, err, ErrProductNotFound)

	// deleting a product drops it from every favorites set
	require.NoError(t, repo.DeleteProduct(ctx, b.ID))
	ids, err = repo.ListFavorites(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSQLite_Products(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	oud := seedProduct(t, repo, "Royal Oud", "100", womenCategoryID)
	seedProduct(t, repo, "Oud Wood", "140", menCategoryID)
	seedProduct(t, repo, "Citrus Splash", "35", menCategoryID)

	all, err := repo.ListProducts(ctx, domain.ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	men, err := repo.ListProducts(ctx, domain.ProductFilter{Category: "Men's perfumes"})
	require.NoError(t, err)
	assert.Len(t, men, 2)

	search, err := repo.ListProducts(ctx, domain.ProductFilter{Search: "OUD"})
	require.NoError(t, err)
	assert.Len(t, search, 2)

	both, err := repo.ListProducts(ctx, domain.ProductFilter{Category: "Men's perfumes", Search: "oud"})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "Oud Wood", both[0].Name)

	got, err := repo.GetProduct(ctx, oud.ID)
	require.NoError(t, err)
	assert.Equal(t, "Royal Oud", got.Name)
	assert.Equal(t, "Women's perfumes", got.Category)
	assert.True(t, decimal.NewFromInt(100).Equal(got.Price))
	assert.Nil(t, got.OriginalPrice)
	assert.True(t, got.InStock)

	original := decimal.RequireFromString("150")
	stock := 7
	got.OriginalPrice = &original
	got.StockQuantity = &stock
	got.InStock = false
	require.NoError(t, repo.UpdateProduct(ctx, got))

	updated, err := repo.GetProduct(ctx, oud.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.OriginalPrice)
	assert.True(t, original.Equal(*updated.OriginalPrice))
	require.NotNil(t, updated.StockQuantity)
	assert.Equal(t, 7, *updated.StockQuantity)
	assert.False(t, updated.InStock)

	n, err := repo.CountProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, repo.DeleteProduct(ctx, oud.ID))
	_, err = repo.GetProduct(ctx, oud.ID)
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.ErrorIs(t, repo.DeleteProduct(ctx, oud.ID), ErrProductNotFound)

	missing := &domain.Product{ID: uuid.NewString(), Name: "Ghost", Price: decimal.NewFromInt(1)}
	assert.ErrorIs(t, repo.UpdateProduct(ctx, missing), ErrProductNotFound)
}

func TestSQLite_Categories(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	categories, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 3)
	assert.Equal(t, "Men's perfumes", categories[0].Name)

	c, err := repo.GetCategoryByName(ctx, "Women's perfumes")
	require.NoError(t, err)
	assert.Equal(t, womenCategoryID, c.ID)

	_, err = repo.GetCategoryByName(ctx, "Candles")
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestSQLite_RunMigrations_IsIdempotent(t *testing.T) {
	repo := setupSQLite(t)
	assert.NoError(t, repo.RunMigrations())
}
