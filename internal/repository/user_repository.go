package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, userID int64) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
}
