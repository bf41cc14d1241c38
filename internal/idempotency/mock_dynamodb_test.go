package idempotency

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a small in-memory mock of the idempotency table. It understands
// exactly the condition and update expressions Store emits.
type simpleMock struct {
	mu          sync.Mutex
	table       map[string]map[string]types.AttributeValue
	putCalls    int
	getCalls    int
	updateCalls int
	failWith    error
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func keyOf(av types.AttributeValue) (string, error) {
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing key")
	}
	return s.Value, nil
}

func numberOf(av types.AttributeValue) int64 {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	v, _ := strconv.ParseInt(n.Value, 10, 64)
	return v
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	k, err := keyOf(params.Item["idempotency_key"])
	if err != nil {
		return nil, err
	}
	if existing, ok := m.table[k]; ok && params.ConditionExpression != nil {
		if *params.ConditionExpression != "attribute_not_exists(idempotency_key) OR expires_at < :now" {
			return nil, errors.New("unexpected condition " + *params.ConditionExpression)
		}
		if numberOf(existing["expires_at"]) >= numberOf(params.ExpressionAttributeValues[":now"]) {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	k, err := keyOf(params.Key["idempotency_key"])
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

// UpdateItem supports "#s = :from" conditions and "SET a = :b, ..." updates.
func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	k, err := keyOf(params.Key["idempotency_key"])
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	resolve := func(name string) string {
		if n, ok := params.ExpressionAttributeNames[name]; ok {
			return n
		}
		return name
	}
	if params.ConditionExpression != nil {
		lhs, rhs, _ := strings.Cut(*params.ConditionExpression, " = ")
		want, _ := params.ExpressionAttributeValues[rhs].(*types.AttributeValueMemberS)
		got, _ := item[resolve(lhs)].(*types.AttributeValueMemberS)
		if want == nil || got == nil || want.Value != got.Value {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	updated := map[string]types.AttributeValue{}
	for a, v := range item {
		updated[a] = v
	}
	for _, assign := range strings.Split(strings.TrimPrefix(*params.UpdateExpression, "SET "), ", ") {
		lhs, rhs, _ := strings.Cut(assign, " = ")
		updated[resolve(lhs)] = params.ExpressionAttributeValues[rhs]
	}
	m.table[k] = updated
	return &dyn.UpdateItemOutput{Attributes: updated}, nil
}

func (m *simpleMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return nil, errors.New("not supported")
}

func (m *simpleMock) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	return nil, errors.New("not supported")
}

func (m *simpleMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return nil, errors.New("not supported")
}
