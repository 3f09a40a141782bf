package user

import (
	"context"

	"github.com/google/uuid"

	domain "user-records-service/internal/domain/user"
)

// UserUsecase defines the interface for user business logic operations.
type UserUsecase interface {
	ListAll(ctx context.Context) ([]domain.User, error)
	ListUsers(ctx context.Context, in ListUsersRequest) (*ListUsersResponse, error)
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	CreateUser(ctx context.Context, in CreateUserRequest) (*domain.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, in UpdateUserRequest) (*domain.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) (bool, error)
}

// Repository defines the interface for user data access operations.
// Lookups return nil, nil when nothing matches.
type Repository interface {
	List(ctx context.Context) ([]domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	Update(ctx context.Context, u *domain.User) (bool, error)
	Modify(ctx context.Context, id uuid.UUID, fn func(u *domain.User) error) (*domain.User, bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// Analyzer produces insights from free text. Implementations report "no
// insights" as an error.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*domain.Insights, error)
}

// ReanalysisQueue accepts user ids for background enrichment. Enqueue must
// not block.
type ReanalysisQueue interface {
	Enqueue(id uuid.UUID) bool
}
