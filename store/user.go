package store

import (
	"context"
	"time"

	"github.com/openshelf/library-backend/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (db *DB) CreateUser(ctx context.Context, user *models.User) (primitive.ObjectID, error) {
	res, err := db.Users().InsertOne(ctx, user, options.InsertOne())
	if err != nil {
		return primitive.NilObjectID, err
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

func (db *DB) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.userByFilter(ctx, bson.M{"email": email})
}

func (db *DB) UserByUserName(ctx context.Context, userName string) (*models.User, error) {
	return db.userByFilter(ctx, bson.M{"userName": userName})
}

// UserByLoginID matches either email or userName, for the login form.
func (db *DB) UserByLoginID(ctx context.Context, loginID string) (*models.User, error) {
	return db.userByFilter(ctx, bson.M{"$or": bson.A{
		bson.M{"email": loginID},
		bson.M{"userName": loginID},
	}})
}

func (db *DB) UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return db.userByFilter(ctx, bson.M{"_id": id})
}

func (db *DB) userByFilter(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	err := db.Users().FindOne(ctx, filter).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserIDByUserName is the secondary lookup userName -> id. Returns
// NilObjectID when no user carries that userName.
func (db *DB) UserIDByUserName(ctx context.Context, userName string) (primitive.ObjectID, error) {
	var doc struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	err := db.Users().FindOne(ctx, bson.M{"userName": userName},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return primitive.NilObjectID, nil
	}
	if err != nil {
		return primitive.NilObjectID, err
	}
	return doc.ID, nil
}

func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	cur, err := db.Users().Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"userName": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// EmailOrUserNameTaken reports whether another user (excluding excludeID)
// already owns the email or userName. Both are expected lowercased.
func (db *DB) EmailOrUserNameTaken(ctx context.Context, email, userName string, excludeID primitive.ObjectID) (bool, error) {
	filter := bson.M{
		"$or": bson.A{bson.M{"email": email}, bson.M{"userName": userName}},
	}
	if !excludeID.IsZero() {
		filter["_id"] = bson.M{"$ne": excludeID}
	}
	n, err := db.Users().CountDocuments(ctx, filter)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateUserFields applies a $set patch and returns the updated document.
func (db *DB) UpdateUserFields(ctx context.Context, id primitive.ObjectID, patch bson.M) (*models.User, error) {
	var u models.User
	err := db.Users().FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": patch},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (db *DB) DeleteUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	err := db.Users().FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// PushLoan appends a loan to issued_books and returns the updated user.
func (db *DB) PushLoan(ctx context.Context, id primitive.ObjectID, loan models.Loan) (*models.User, error) {
	var u models.User
	err := db.Users().FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$push": bson.M{"issued_books": loan}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// PullLoan removes issued_books entries referencing bookID and returns the
// updated user. The loan record is deleted outright, not flagged returned.
func (db *DB) PullLoan(ctx context.Context, id, bookID primitive.ObjectID) (*models.User, error) {
	var u models.User
	err := db.Users().FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$pull": bson.M{"issued_books": bson.M{"book_id": bookID}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ReplaceUser writes the full document back; Renew uses this after editing
// a loan's due date in place.
func (db *DB) ReplaceUser(ctx context.Context, user *models.User) error {
	_, err := db.Users().ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
	return err
}

// SearchUsers runs a case-insensitive regex search over name, userName and
// email, returning one page of results plus the total match count.
func (db *DB) SearchUsers(ctx context.Context, q string, page, limit int64) ([]models.User, int64, error) {
	regex := primitive.Regex{Pattern: q, Options: "i"}
	filter := bson.M{"$or": bson.A{
		bson.M{"name": regex},
		bson.M{"userName": regex},
		bson.M{"email": regex},
	}}
	total, err := db.Users().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	cur, err := db.Users().Find(ctx, filter,
		options.Find().SetSkip((page-1)*limit).SetLimit(limit))
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// UsersWithOverdueLoans returns users holding at least one open loan whose
// due date is before now.
func (db *DB) UsersWithOverdueLoans(ctx context.Context, now time.Time) ([]models.User, error) {
	filter := bson.M{"issued_books": bson.M{"$elemMatch": bson.M{
		"returned": false,
		"due_date": bson.M{"$lt": now},
	}}}
	cur, err := db.Users().Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}
