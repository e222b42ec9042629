package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendora/order-service/pkg/db/models"
	pkgerrors "github.com/vendora/order-service/pkg/errors"
	"github.com/vendora/order-service/pkg/types"
)

// Repository exposes the identity reads the order path needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	Snapshot(ctx context.Context, userID, addressID uuid.UUID) (types.AddressSnapshot, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a users repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) ByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Snapshot copies the address fields an order needs. The address must belong
// to the requesting user.
func (r *repositoryImpl) Snapshot(ctx context.Context, userID, addressID uuid.UUID) (types.AddressSnapshot, error) {
	var address models.Address
	err := r.db.WithContext(ctx).
		First(&address, "id = ? AND user_id = ?", addressID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.AddressSnapshot{}, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	if err != nil {
		return types.AddressSnapshot{}, err
	}

	snapshot := types.AddressSnapshot{
		Name:    address.Name,
		Street:  address.Street,
		City:    address.City,
		Zip:     address.Zip,
		Country: address.Country,
	}
	if address.Label != nil {
		snapshot.Label = *address.Label
	}
	return snapshot, nil
}
