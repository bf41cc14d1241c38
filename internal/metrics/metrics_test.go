package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
	"go.uber.org/zap"
)

type mockCloudWatch struct {
	last *cloudwatch.PutMetricDataInput
	err  error
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.last = params
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func TestOutcomeOf(t *testing.T) {
	cases := []struct {
		err  error
		want Outcome
	}{
		{nil, OutcomeOK},
		{orders.Invalid("reason", "required"), OutcomeValidation},
		{orders.Guard(orders.GuardRole, "no"), OutcomeGuard},
		{fmt.Errorf("approve: %w", orders.ErrConflict), OutcomeConflict},
		{orders.ErrNotFound, OutcomeNotFound},
		{errors.New("io"), OutcomeError},
	}
	for _, tc := range cases {
		if got := OutcomeOf(tc.err); got != tc.want {
			t.Fatalf("OutcomeOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestCloudWatch_Record(t *testing.T) {
	mock := &mockCloudWatch{}
	r := NewCloudWatch(mock, "TailorOrderflow", zap.NewNop())
	r.Record(context.Background(), "approve", OutcomeConflict)

	if *mock.last.Namespace != "TailorOrderflow" {
		t.Fatalf("namespace = %s", *mock.last.Namespace)
	}
	d := mock.last.MetricData[0]
	if *d.MetricName != "Transition" || *d.Value != 1 {
		t.Fatalf("unexpected datum %+v", d)
	}
	if *d.Dimensions[0].Value != "approve" || *d.Dimensions[1].Value != "conflict" {
		t.Fatalf("unexpected dimensions")
	}

	// A failing client must not panic or propagate.
	mock.err = errors.New("throttled")
	r.Record(context.Background(), "approve", OutcomeOK)
}

func TestCounter(t *testing.T) {
	var c Counter
	c.Record(context.Background(), "cancel", OutcomeGuard)
	c.Record(context.Background(), "cancel", OutcomeGuard)
	if c.Count("cancel", OutcomeGuard) != 2 || c.Count("cancel", OutcomeOK) != 0 {
		t.Fatalf("unexpected counts")
	}
}
