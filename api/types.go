package api

import (
	"context"

	"todo-api/domain"
)

// Storage abstracts the todo collection for handlers.
type Storage interface {
	Create(text string) domain.Todo
	BulkCreate(texts []string) []domain.Todo
	Get(id int64) (domain.Todo, error)
	List(q domain.ListQuery) domain.Page
	Replace(id int64, text string, done bool) (domain.Todo, error)
	Patch(id int64, text *string, done *bool) (domain.Todo, error)
	Delete(id int64) error
	Stats() domain.Stats
}

// ReplayStore remembers the response to a create request by its
// idempotency key so a retried request gets the same answer.
type ReplayStore interface {
	// Load returns the stored response, if any.
	Load(ctx context.Context, key string) (StoredResponse, bool, error)
	// Save records the response unless the key already has one. It returns
	// true when the response was newly stored.
	Save(ctx context.Context, key string, resp StoredResponse) (bool, error)
}
