package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/tailor-orderflow/internal/aws"
)

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // default TTL window when creating entries
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for idempotency entries.
// ttlWindow: default TTL window (e.g., 48*time.Hour)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// ErrConditionFailed indicates a conditional write failed (e.g., attribute_not_exists)
var ErrConditionFailed = errors.New("conditional check failed")

// CreateIfNotExists creates an idempotency record with status IN_PROGRESS if the key does not exist.
// An entry past its TTL counts as absent even if DynamoDB has not swept it yet.
// Returns (created=true, nil) if successfully created.
// Returns (created=false, nil) if the record already exists (caller should Get to inspect).
// Returns (created=false, err) on other errors.
func (s *Store) CreateIfNotExists(ctx context.Context, key, fingerprint string) (bool, error) {
	now := s.nowFunc()
	rec := IdempotencyRecord{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		Fingerprint:    fingerprint,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(idempotency_key) OR expires_at < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	}

	_, err = s.client.PutItem(ctx, input)
	if err != nil {
		if conditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}

	return true, nil
}

// Get retrieves an idempotency record by key. If not found or expired, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	input := &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: awsBool(true),
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec IdempotencyRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	if rec.ExpiresAt < s.nowFunc().Unix() {
		return nil, nil
	}
	return &rec, nil
}

// Reopen moves a FAILED record back to IN_PROGRESS so the request can be
// retried. It returns ErrConditionFailed when another caller got there first.
func (s *Store) Reopen(ctx context.Context, key string) error {
	return s.transition(ctx, key, StatusFailed, StatusInProgress, nil, "reopen")
}

// MarkDone sets status to DONE and stores the small response body & status.
// Only an IN_PROGRESS record can complete.
func (s *Store) MarkDone(ctx context.Context, key string, resp Response) error {
	set := map[string]types.AttributeValue{
		"response_body":   &types.AttributeValueMemberS{Value: resp.Body},
		"response_status": &types.AttributeValueMemberN{Value: strconv.Itoa(resp.Status)},
	}
	if resp.OrderID != "" {
		set["order_id"] = &types.AttributeValueMemberS{Value: resp.OrderID}
	}
	return s.transition(ctx, key, StatusInProgress, StatusDone, set, "mark done")
}

// MarkFailed marks the idempotency record as FAILED and stores a note.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	set := map[string]types.AttributeValue{
		"note": &types.AttributeValueMemberS{Value: note},
	}
	return s.transition(ctx, key, StatusInProgress, StatusFailed, set, "mark failed")
}

func (s *Store) transition(ctx context.Context, key, from, to string, set map[string]types.AttributeValue, op string) error {
	now := s.nowFunc()
	expr := "SET #s = :to, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":from": &types.AttributeValueMemberS{Value: from},
		":to":   &types.AttributeValueMemberS{Value: to},
		":ua":   &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
	}
	for _, attr := range sortedKeys(set) {
		ph := ":" + attr
		expr += fmt.Sprintf(", %s = %s", attr, ph)
		values[ph] = set[attr]
	}

	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression:    awsString(expr),
		ConditionExpression: awsString("#s = :from"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueUpdatedNew,
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		if conditionFailed(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("update item (%s): %w", op, err)
	}
	return nil
}

func conditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var sc smithy.APIError
	return errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException"
}

func sortedKeys(m map[string]types.AttributeValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Helpers
func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
