// Package metrics publishes ledger counters to CloudWatch. Publishing is
// best-effort and happens after the ledger transaction commits.
package metrics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/go-loyalty-ledger/internal/aws"
)

// Metric names
const (
	OrdersProcessed    = "OrdersProcessed"
	PurchasesRecorded  = "PurchasesRecorded"
	LineItemFailures   = "LineItemFailures"
	RefundsRecorded    = "RefundsRecorded"
	RewardsEarned      = "RewardsEarned"
	RewardsRevoked     = "RewardsRevoked"
	RewardsRedeemed    = "RewardsRedeemed"
	OutboxSent         = "OutboxSent"
	OutboxDeadLettered = "OutboxDeadLettered"
)

// Datum is one counter sample.
type Datum struct {
	Name       string
	Value      float64
	Dimensions map[string]string
}

// Count is a Datum with the given dimensions as alternating key/value pairs.
func Count(name string, n int, kv ...string) Datum {
	d := Datum{Name: name, Value: float64(n)}
	if len(kv) > 1 {
		d.Dimensions = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			d.Dimensions[kv[i]] = kv[i+1]
		}
	}
	return d
}

// Recorder accepts metric samples.
type Recorder interface {
	Record(ctx context.Context, data ...Datum)
}

// CloudWatch sends samples with PutMetricData.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	logger    *slog.Logger
	nowFunc   func() time.Time
}

func NewCloudWatch(client aws.CloudWatchAPI, namespace string, logger *slog.Logger) *CloudWatch {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatch{client: client, namespace: namespace, logger: logger, nowFunc: time.Now}
}

// Record publishes data in one call. Zero-valued samples are dropped.
// Failures are logged, never returned.
func (c *CloudWatch) Record(ctx context.Context, data ...Datum) {
	now := c.nowFunc()
	var datums []types.MetricDatum
	for _, d := range data {
		if d.Value == 0 {
			continue
		}
		datums = append(datums, types.MetricDatum{
			MetricName: sdkaws.String(d.Name),
			Value:      sdkaws.Float64(d.Value),
			Unit:       types.StandardUnitCount,
			Timestamp:  sdkaws.Time(now),
			Dimensions: dimensions(d.Dimensions),
		})
	}
	if len(datums) == 0 {
		return
	}

	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(c.namespace),
		MetricData: datums,
	})
	if err != nil {
		c.logger.Error("failed to publish metrics", "namespace", c.namespace, "count", len(datums), "error", err)
	}
}

func dimensions(m map[string]string) []types.Dimension {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dims := make([]types.Dimension, 0, len(keys))
	for _, k := range keys {
		dims = append(dims, types.Dimension{Name: sdkaws.String(k), Value: sdkaws.String(m[k])})
	}
	return dims
}

// Nop discards samples.
type Nop struct{}

func (Nop) Record(context.Context, ...Datum) {}
