package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const cartTTL = 90 * 24 * time.Hour

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

type cartDocument struct {
	UserID    string             `bson:"user_id"`
	Lines     []cartLineDocument `bson:"lines"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

type cartLineDocument struct {
	ProductID     string                `bson:"product_id"`
	Quantity      int                   `bson:"quantity"`
	UnitPrice     primitive.Decimal128  `bson:"unit_price"`
	Name          string                `bson:"name"`
	ImageURL      string                `bson:"image_url"`
	Category      string                `bson:"category"`
	OriginalPrice *primitive.Decimal128 `bson:"original_price,omitempty"`
	AddedAt       time.Time             `bson:"added_at"`
}

type mongoCartRepository struct {
	collection *mongo.Collection
}

func NewMongoCartRepository(db *mongo.Database) CartRepository {
	return &mongoCartRepository{
		collection: db.Collection("carts"),
	}
}

// EnsureCartIndexes creates the unique user index and the idle-cart TTL index.
func EnsureCartIndexes(ctx context.Context, db *mongo.Database) error {
	repo := &mongoCartRepository{collection: db.Collection("carts")}
	return repo.CreateIndexes(ctx)
}

func (m *mongoCartRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var doc cartDocument

	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return doc.toDomain()
}

func (m *mongoCartRepository) UpsertCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now().UTC()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now

	doc, err := newCartDocument(cart)
	if err != nil {
		return err
	}

	opts := options.Update().SetUpsert(true)
	_, err = m.collection.UpdateOne(ctx, bson.M{"user_id": cart.UserID}, bson.M{"$set": doc}, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}

	return nil
}

// DeleteCart is idempotent: a missing document is not an error.
func (m *mongoCartRepository) DeleteCart(ctx context.Context, userID string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

func (m *mongoCartRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(cartTTL.Seconds())),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func newCartDocument(cart *domain.Cart) (*cartDocument, error) {
	doc := &cartDocument{
		UserID:    cart.UserID,
		Lines:     make([]cartLineDocument, 0, len(cart.Lines)),
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
	for _, line := range cart.Lines {
		price, err := toDecimal128(line.UnitPrice)
		if err != nil {
			return nil, err
		}
		ld := cartLineDocument{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: price,
			Name:      line.Product.Name,
			ImageURL:  line.Product.ImageURL,
			Category:  line.Product.Category,
			AddedAt:   line.AddedAt,
		}
		if line.Product.OriginalPrice != nil {
			op, err := toDecimal128(*line.Product.OriginalPrice)
			if err != nil {
				return nil, err
			}
			ld.OriginalPrice = &op
		}
		doc.Lines = append(doc.Lines, ld)
	}
	return doc, nil
}

func (d *cartDocument) toDomain() (*domain.Cart, error) {
	cart := &domain.Cart{
		UserID:    d.UserID,
		Lines:     make([]domain.CartLine, 0, len(d.Lines)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, ld := range d.Lines {
		price, err := decimal.NewFromString(ld.UnitPrice.String())
		if err != nil {
			return nil, fmt.Errorf("decode unit price for %s: %w", ld.ProductID, err)
		}
		line := domain.CartLine{
			ProductID: ld.ProductID,
			Quantity:  ld.Quantity,
			UnitPrice: price,
			Product: domain.ProductSnapshot{
				Name:     ld.Name,
				ImageURL: ld.ImageURL,
				Category: ld.Category,
			},
			AddedAt: ld.AddedAt,
		}
		if ld.OriginalPrice != nil {
			op, err := decimal.NewFromString(ld.OriginalPrice.String())
			if err != nil {
				return nil, fmt.Errorf("decode original price for %s: %w", ld.ProductID, err)
			}
			line.Product.OriginalPrice = &op
		}
		cart.Lines = append(cart.Lines, line)
	}
	return cart, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("encode %s as decimal128: %w", d, err)
	}
	return v, nil
}
