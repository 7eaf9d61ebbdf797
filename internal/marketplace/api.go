package marketplace

//go:generate mockgen -source=api.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/MrSnakeDoc/listingd/internal/domain"
)

// CreateResult is the outcome of one element of a batch create, in request order
type CreateResult struct {
	Result *domain.Listing `json:"result,omitempty"`
	Error  *ElementError   `json:"error,omitempty"`
}

// ElementError is a per-listing failure inside a successful batch call
type ElementError struct {
	Message string `json:"message"`
}

// DeleteResult is the outcome of a batch delete
type DeleteResult struct {
	Deleted int           `json:"deleted"`
	Errors  []DeleteError `json:"errors,omitempty"`
}

// DeleteError reports an id the marketplace refused to delete
type DeleteError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// API is the subset of the marketplace used by the engine
type API interface {
	CreateBatch(ctx context.Context, token string, specs []domain.ListingSpec) ([]CreateResult, error)
	DeleteBatch(ctx context.Context, token string, ids []string) (*DeleteResult, error)
	DeleteArchivedBatch(ctx context.Context, token string, ids []string) (*DeleteResult, error)
	DeleteAll(ctx context.Context, token string) (int, error)
	DeleteAllArchived(ctx context.Context, token string) (int, error)
}
