package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// IdempotencyRecord is the shape persisted in the idempotency DynamoDB table.
type IdempotencyRecord struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK, scoped by Scope
	Status         string    `dynamodbav:"status"`
	Fingerprint    string    `dynamodbav:"fingerprint"`               // hash of the request body
	OrderID        string    `dynamodbav:"order_id,omitempty"`        // order created by the request
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`   // small JSON responses only
	ResponseStatus int       `dynamodbav:"response_status,omitempty"` // e.g., 201
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// Response is what a completed request answered, replayed verbatim to retries.
type Response struct {
	Status  int
	Body    string
	OrderID string
}
