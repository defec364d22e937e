package api

import "todo-api/domain"

const maxBodySize = 64 * 1024 // 64 KiB

const (
	HeaderIdempotencyKey     = "Idempotency-Key"
	HeaderIdempotentReplayed = "Idempotent-Replayed"
	contextKeyRequestID      = "request_id"
)

// POST /v1/todos/bulk response body
type bulkResponse struct {
	Items []domain.Todo `json:"items"`
}
