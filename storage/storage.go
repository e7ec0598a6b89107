package storage

import (
	"context"

	"github.com/qubird/crudo/models"
)

type StorageI interface {
	Items() ItemsRepoI
	Actions() ActionsRepoI
	CloseDB()
}

// ItemsRepoI is the generic row store: every call targets a table known
// only through its ModelDescriptor. Writes run in their own transaction
// and refresh the model's cached row count on success.
type ItemsRepoI interface {
	List(ctx context.Context, model *models.ModelDescriptor, params models.ListParams) (*models.PaginatedResult, error)
	Get(ctx context.Context, model *models.ModelDescriptor, pk string) (map[string]any, error)
	Create(ctx context.Context, model *models.ModelDescriptor, payload map[string]any) (map[string]any, error)
	Update(ctx context.Context, model *models.ModelDescriptor, pk string, payload map[string]any) (map[string]any, error)
	Delete(ctx context.Context, model *models.ModelDescriptor, pk string) error
	RefreshCount(ctx context.Context, model *models.ModelDescriptor) error
}

// ActionsRepoI dispatches registered actions against selected rows
// inside a single transaction.
type ActionsRepoI interface {
	Run(ctx context.Context, model *models.ModelDescriptor, action *models.ActionDescriptor, pks []string, role string) (message string, count int, err error)
}
