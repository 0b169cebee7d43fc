package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func metricValues(in *cloudwatch.PutMetricDataInput) map[string]float64 {
	out := map[string]float64{}
	for _, d := range in.MetricData {
		out[*d.MetricName] = *d.Value
	}
	return out
}

func TestCloudWatchRecorder_PartialFailure(t *testing.T) {
	client := &fakeCloudWatch{}
	r := NewCloudWatchRecorder(client, "ECCheckout")
	r.nowFunc = func() time.Time { return time.Unix(1700000000, 0) }

	r.Record(context.Background(), &checkout.Report{
		State:            checkout.StatePartiallyFailed,
		PaymentMethod:    "Bank",
		SuccessfulOrders: []order.Order{{ID: "o-1"}, {ID: "o-2"}},
		FailedOrders:     []checkout.ShopFailure{{ShopID: "s-3"}},
	})

	require.Len(t, client.inputs, 1)
	assert.Equal(t, "ECCheckout", *client.inputs[0].Namespace)
	values := metricValues(client.inputs[0])
	assert.Equal(t, 1.0, values[MetricCheckoutPartiallyFailed])
	assert.Equal(t, 2.0, values[MetricOrdersCreated])
	assert.Equal(t, 1.0, values[MetricShopFailures])
	assert.Equal(t, 0.0, values[MetricPaymentErrors])
	assert.NotContains(t, values, MetricCheckoutSucceeded)
	assert.Equal(t, "Bank", *client.inputs[0].MetricData[0].Dimensions[0].Value)
}

func TestCloudWatchRecorder_ErrorIsSwallowed(t *testing.T) {
	client := &fakeCloudWatch{err: errors.New("throttled")}
	r := NewCloudWatchRecorder(client, "ECCheckout")

	assert.NotPanics(t, func() {
		r.Record(context.Background(), &checkout.Report{State: checkout.StateFailed})
	})
	assert.Equal(t, 1.0, metricValues(client.inputs[0])[MetricCheckoutFailed])
}
