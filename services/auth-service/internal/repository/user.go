package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/model"
)

// UserRepository defines the interface for user-related database operations.
type UserRepository interface {
	// CreateUser inserts a new user. It returns ErrDuplicateUser when the
	// username or email is already taken.
	CreateUser(ctx context.Context, user *model.User) (*model.User, error)

	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// GetUserByIdentifier finds a user whose username or email equals identifier.
	GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error)

	// FindConflictingUser returns any user holding username or email.
	FindConflictingUser(ctx context.Context, username, email string) (*model.User, error)

	// SetResetCode stores a reset code and its expiry, replacing any previous pair.
	SetResetCode(ctx context.Context, id, code string, expiresAt time.Time) error

	// ClearResetCode removes the reset code and expiry only if the stored code
	// is still code. It returns ErrResetCodeMismatch otherwise.
	ClearResetCode(ctx context.Context, id, code string) error

	// FindUserByResetCode returns the user with the given email whose stored
	// code equals code and expires strictly after now.
	FindUserByResetCode(ctx context.Context, email, code string, now time.Time) (*model.User, error)

	// ResetPassword atomically checks the same condition as FindUserByResetCode
	// and, if it holds, replaces the password hash and removes the reset code
	// and expiry in one write.
	ResetPassword(ctx context.Context, email, code string, now time.Time, passwordHash string) (*model.User, error)

	Ping(ctx context.Context) error
}

const userCollection = "users"

// Usernames and emails compare case-insensitively.
var identityCollation = &options.Collation{Locale: "en", Strength: 2}

type userMongoRepository struct {
	db *mongo.Database
}

// NewUserMongoRepository creates the MongoDB user repository and makes sure
// the unique identity indexes exist.
func NewUserMongoRepository(ctx context.Context, db *mongo.Database) (UserRepository, error) {
	collection := db.Collection(userCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(identityCollation),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(identityCollation),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("create user indexes: %w", err)
	}

	return &userMongoRepository{db: db}, nil
}

func (r *userMongoRepository) collection() *mongo.Collection {
	return r.db.Collection(userCollection)
}

func (r *userMongoRepository) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.ResetPasswordCode = nil
	user.ResetPasswordExpiresAt = nil

	result, err := r.collection().InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateUser
		}
		return nil, err
	}

	if objectID, ok := result.InsertedID.(bson.ObjectID); ok {
		user.ID = objectID
	} else {
		return nil, errors.New("failed to convert inserted ID to ObjectID")
	}

	return user, nil
}

func (r *userMongoRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}

	return r.findOne(ctx, bson.M{"_id": objectID})
}

func (r *userMongoRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *userMongoRepository) GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"username": identifier},
		bson.M{"email": identifier},
	}})
}

func (r *userMongoRepository) FindConflictingUser(ctx context.Context, username, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"username": username},
		bson.M{"email": email},
	}})
}

func (r *userMongoRepository) SetResetCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrUserNotFound
	}

	result, err := r.collection().UpdateOne(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{
			"reset_password_code":       code,
			"reset_password_expires_at": expiresAt,
			"updated_at":                time.Now(),
		}},
	)
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *userMongoRepository) ClearResetCode(ctx context.Context, id, code string) error {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrUserNotFound
	}

	result, err := r.collection().UpdateOne(
		ctx,
		bson.M{"_id": objectID, "reset_password_code": code},
		bson.M{
			"$unset": bson.M{"reset_password_code": "", "reset_password_expires_at": ""},
			"$set":   bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return ErrResetCodeMismatch
	}

	return nil
}

func (r *userMongoRepository) FindUserByResetCode(
	ctx context.Context,
	email, code string,
	now time.Time,
) (*model.User, error) {
	if !model.IsResetCode(code) {
		return nil, ErrResetCodeMismatch
	}

	user, err := r.findOne(ctx, resetCodeFilter(email, code, now))
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrResetCodeMismatch
	}

	return user, err
}

func (r *userMongoRepository) ResetPassword(
	ctx context.Context,
	email, code string,
	now time.Time,
	passwordHash string,
) (*model.User, error) {
	if !model.IsResetCode(code) {
		return nil, ErrResetCodeMismatch
	}

	result := r.collection().FindOneAndUpdate(
		ctx,
		resetCodeFilter(email, code, now),
		bson.M{
			"$set": bson.M{
				"password_hash": passwordHash,
				"updated_at":    time.Now(),
			},
			"$unset": bson.M{"reset_password_code": "", "reset_password_expires_at": ""},
		},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetCollation(identityCollation),
	)
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrResetCodeMismatch
		}
		return nil, err
	}

	var user model.User
	if err := result.Decode(&user); err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *userMongoRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, nil)
}

func (r *userMongoRepository) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	result := r.collection().FindOne(ctx, filter, options.FindOne().SetCollation(identityCollation))
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	var user model.User
	if err := result.Decode(&user); err != nil {
		return nil, err
	}

	return &user, nil
}

// resetCodeFilter runs under identityCollation, which would also fold
// full-width digits; callers only pass codes accepted by model.IsResetCode.
func resetCodeFilter(email, code string, now time.Time) bson.M {
	return bson.M{
		"email":                     email,
		"reset_password_code":       code,
		"reset_password_expires_at": bson.M{"$gt": now},
	}
}
