package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vendora/order-service/pkg/db/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.Shop{}, &models.Product{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return conn
}

func seedProduct(t *testing.T, db *gorm.DB, stock int) models.Product {
	t.Helper()
	shop := models.Shop{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		Name:    "Test Shop",
		Slug:    "test-shop-" + uuid.NewString()[:8],
	}
	if err := db.Create(&shop).Error; err != nil {
		t.Fatalf("create shop: %v", err)
	}
	product := models.Product{
		ID:       uuid.New(),
		ShopID:   shop.ID,
		Name:     "Widget",
		Price:    decimal.RequireFromString("9.99"),
		Stock:    stock,
		IsActive: true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

func TestByIDs(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first := seedProduct(t, db, 5)
	second := seedProduct(t, db, 3)

	products, err := repo.ByIDs(ctx, []uuid.UUID{first.ID, second.ID})
	if err != nil {
		t.Fatalf("by ids: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}

	products, err = repo.ByIDs(ctx, nil)
	if err != nil {
		t.Fatalf("empty ids: %v", err)
	}
	if products != nil {
		t.Fatal("expected nil result for empty id list")
	}
}

func TestDecrementStock(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	product := seedProduct(t, db, 5)

	ok, err := repo.DecrementStock(ctx, product.ID, 3)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if !ok {
		t.Fatal("expected decrement to succeed")
	}

	var reloaded models.Product
	if err := db.First(&reloaded, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Stock != 2 {
		t.Fatalf("expected stock 2, got %d", reloaded.Stock)
	}

	// More than remaining stock leaves the row untouched.
	ok, err = repo.DecrementStock(ctx, product.ID, 3)
	if err != nil {
		t.Fatalf("second decrement: %v", err)
	}
	if ok {
		t.Fatal("expected decrement to be refused")
	}
	if err := db.First(&reloaded, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Stock != 2 {
		t.Fatalf("stock should remain 2, got %d", reloaded.Stock)
	}
}

func TestShopByID(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	product := seedProduct(t, db, 1)
	shop, err := repo.ShopByID(ctx, product.ShopID)
	if err != nil {
		t.Fatalf("shop by id: %v", err)
	}
	if shop.Name != "Test Shop" {
		t.Fatalf("unexpected shop %+v", shop)
	}

	missing, err := repo.ShopByID(ctx, uuid.New())
	if err != nil {
		t.Fatalf("unknown shop should not error: %v", err)
	}
	if missing != nil {
		t.Fatalf("unknown shop should read as absent, got %+v", missing)
	}
}
