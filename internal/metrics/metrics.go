// Package metrics records lifecycle transition outcomes in CloudWatch.
package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/imrishuroy/tailor-orderflow/internal/aws"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
	"go.uber.org/zap"
)

// Outcome classifies the result of an operation.
type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeValidation Outcome = "validation"
	OutcomeGuard      Outcome = "guard"
	OutcomeConflict   Outcome = "conflict"
	OutcomeNotFound   Outcome = "not_found"
	OutcomeError      Outcome = "error"
)

// OutcomeOf maps err onto the error taxonomy.
func OutcomeOf(err error) Outcome {
	var ve *orders.ValidationError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &ve):
		return OutcomeValidation
	case orders.IsGuard(err):
		return OutcomeGuard
	case errors.Is(err, orders.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, orders.ErrNotFound):
		return OutcomeNotFound
	}
	return OutcomeError
}

// Recorder records one operation outcome.
type Recorder interface {
	Record(ctx context.Context, operation string, outcome Outcome)
}

// CloudWatch sends a Count datum per operation to a namespace.
// Failures to publish are logged, never returned.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	logger    *zap.Logger
}

// NewCloudWatch returns a CloudWatch recorder.
func NewCloudWatch(client aws.CloudWatchAPI, namespace string, logger *zap.Logger) *CloudWatch {
	return &CloudWatch{client: client, namespace: namespace, logger: logger}
}

func (c *CloudWatch) Record(ctx context.Context, operation string, outcome Outcome) {
	name := "Transition"
	op := "Operation"
	out := "Outcome"
	opVal := operation
	outVal := string(outcome)
	one := 1.0
	now := time.Now().UTC()
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &c.namespace,
		MetricData: []types.MetricDatum{{
			MetricName: &name,
			Unit:       types.StandardUnitCount,
			Value:      &one,
			Timestamp:  &now,
			Dimensions: []types.Dimension{
				{Name: &op, Value: &opVal},
				{Name: &out, Value: &outVal},
			},
		}},
	})
	if err != nil {
		c.logger.Warn("put metric data failed",
			zap.String("operation", operation),
			zap.String("outcome", outVal),
			zap.Error(err))
	}
}

// Nop discards every datum.
type Nop struct{}

func (Nop) Record(context.Context, string, Outcome) {}

// Counter counts outcomes in memory.
type Counter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *Counter) Record(_ context.Context, operation string, outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[operation+"/"+string(outcome)]++
}

// Count returns how often operation finished with outcome.
func (c *Counter) Count(operation string, outcome Outcome) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[operation+"/"+string(outcome)]
}
