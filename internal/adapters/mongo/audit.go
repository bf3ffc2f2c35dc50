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

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    uuid.UUID `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, userID uuid.UUID, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log: ", err)
		return errors.Wrap(err, "insert audit log")
	}
	return nil
}

// Record stores a reservation lifecycle action attributed to the client.
func (a *AuditLogger) Record(ctx context.Context, action string, res domain.Reservation) error {
	data := map[string]interface{}{
		"reservation_id": res.ID.String(),
		"property_id":    res.PropertyID.String(),
		"check_in":       domain.FormatDate(res.Range.Start),
		"check_out":      domain.FormatDate(res.Range.End),
		"status":         string(res.Status),
		"guests":         res.Guests,
		"total_price":    domain.FormatMoney(res.TotalPrice, res.Currency),
		"currency":       res.Currency,
	}
	return a.LogEvent(ctx, action, res.ClientID, data)
}

// History returns the audit entries for one reservation, oldest first.
func (a *AuditLogger) History(ctx context.Context, reservationID uuid.UUID) ([]AuditLog, error) {
	cur, err := a.coll.Find(ctx, bson.M{"data.reservation_id": reservationID.String()},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "find audit logs")
	}
	var logs []AuditLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, errors.Wrap(err, "decode audit logs")
	}
	return logs, nil
}
