package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func TestCloudWatch_Record(t *testing.T) {
	mock := &mockCloudWatch{}
	cw := NewCloudWatch(mock, "LoyaltyLedger", nil)

	cw.Record(context.Background(),
		Count(OrdersProcessed, 1, "classification", "qualifying", "merchant", "m1"),
		Count(RewardsEarned, 0),
		Count(PurchasesRecorded, 3),
	)

	require.Len(t, mock.inputs, 1)
	in := mock.inputs[0]
	assert.Equal(t, "LoyaltyLedger", *in.Namespace)
	require.Len(t, in.MetricData, 2)

	first := in.MetricData[0]
	assert.Equal(t, OrdersProcessed, *first.MetricName)
	assert.Equal(t, 1.0, *first.Value)
	require.Len(t, first.Dimensions, 2)
	assert.Equal(t, "classification", *first.Dimensions[0].Name)
	assert.Equal(t, "merchant", *first.Dimensions[1].Name)
	assert.Nil(t, in.MetricData[1].Dimensions)
}

func TestCloudWatch_RecordSkipsEmptyAndSwallowsErrors(t *testing.T) {
	mock := &mockCloudWatch{err: errors.New("throttled")}
	cw := NewCloudWatch(mock, "LoyaltyLedger", nil)

	cw.Record(context.Background(), Count(RewardsEarned, 0))
	assert.Empty(t, mock.inputs)

	cw.Record(context.Background(), Count(RewardsEarned, 2))
	assert.Len(t, mock.inputs, 1)
}
