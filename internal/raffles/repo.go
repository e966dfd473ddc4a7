package raffles

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rifa-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/rifa-backend/pkg/errors"
)

// Repository defines persistence operations for raffles.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, raffle *models.Raffle) (*models.Raffle, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Raffle, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a raffles repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, raffle *models.Raffle) (*models.Raffle, error) {
	if err := r.db.WithContext(ctx).Create(raffle).Error; err != nil {
		return nil, err
	}
	return raffle, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Raffle, error) {
	var raffle models.Raffle
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&raffle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "raffle not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load raffle")
	}
	return &raffle, nil
}
