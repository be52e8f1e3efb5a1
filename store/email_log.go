package store

import (
	"context"

	"github.com/openshelf/library-backend/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (db *DB) InsertEmailLog(ctx context.Context, entry *models.EmailLog) error {
	_, err := db.EmailLogs().InsertOne(ctx, entry)
	return err
}

// HasOverdueNotice reports whether an overdue notice for this user/isbn pair
// was already recorded, so the scanner mails each overdue loan once.
func (db *DB) HasOverdueNotice(ctx context.Context, userID primitive.ObjectID, isbn string) (bool, error) {
	n, err := db.EmailLogs().CountDocuments(ctx, bson.M{
		"userId": userID,
		"isbn":   isbn,
		"kind":   models.EmailKindOverdue,
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
