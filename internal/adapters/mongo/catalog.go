package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/rental-reservations/internal/domain"
	"github.com/robertarktes/rental-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("properties"),
		logger: logger,
	}
}

// PropertyDoc is the listing document. Prices are decimal strings so no
// precision is lost to BSON doubles.
type PropertyDoc struct {
	ID            uuid.UUID `bson:"_id"`
	OwnerID       uuid.UUID `bson:"owner_id"`
	Title         string    `bson:"title"`
	PricePerNight string    `bson:"price_per_night"`
	Currency      string    `bson:"currency"`
	MaxGuests     int       `bson:"max_guests"`
	IsActive      bool      `bson:"is_active"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func (d PropertyDoc) toDomain() (domain.Property, error) {
	price, err := domain.ParseMoney(d.PricePerNight)
	if err != nil {
		return domain.Property{}, errors.Wrapf(err, "property %s", d.ID)
	}
	return domain.Property{
		ID:                d.ID,
		OwnerID:           d.OwnerID,
		PricePerNightBase: price,
		Currency:          d.Currency,
		MaxGuests:         d.MaxGuests,
		IsActive:          d.IsActive,
	}, nil
}

// Property loads the price basis snapshot for one quote or commit.
func (c *CatalogRepository) Property(ctx context.Context, id uuid.UUID) (domain.Property, error) {
	var doc PropertyDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Property{}, errors.Wrapf(domain.ErrNotFound, "property %s", id)
	}
	if err != nil {
		c.logger.Error("failed to get property: ", err)
		return domain.Property{}, errors.Wrap(err, "find property")
	}
	return doc.toDomain()
}

func (c *CatalogRepository) UpsertProperty(ctx context.Context, doc PropertyDoc) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.Error("failed to upsert property: ", err)
		return errors.Wrap(err, "upsert property")
	}
	return nil
}

func (c *CatalogRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := c.coll.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_active": active, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		c.logger.Error("failed to update property state: ", err)
		return errors.Wrap(err, "update property")
	}
	if result.MatchedCount == 0 {
		return errors.Wrapf(domain.ErrNotFound, "property %s", id)
	}
	return nil
}
