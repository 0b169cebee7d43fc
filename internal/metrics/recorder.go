package metrics

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/smithy-go"
	"github.com/example/ec-checkout/internal/checkout"
)

// Metric names
const (
	MetricCheckoutSucceeded       = "CheckoutSucceeded"
	MetricCheckoutPartiallyFailed = "CheckoutPartiallyFailed"
	MetricCheckoutFailed          = "CheckoutFailed"
	MetricOrdersCreated           = "OrdersCreated"
	MetricShopFailures            = "ShopFailures"
	MetricPaymentErrors           = "PaymentErrors"
)

// CloudWatchAPI is the subset of the CloudWatch client the recorder uses.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRecorder publishes checkout outcome counters.
type CloudWatchRecorder struct {
	client    CloudWatchAPI
	namespace string
	timeout   time.Duration
	nowFunc   func() time.Time
}

func NewCloudWatchRecorder(client CloudWatchAPI, namespace string) *CloudWatchRecorder {
	return &CloudWatchRecorder{
		client:    client,
		namespace: namespace,
		timeout:   2 * time.Second,
		nowFunc:   time.Now,
	}
}

// Record never fails the checkout; errors are logged.
func (r *CloudWatchRecorder) Record(ctx context.Context, report *checkout.Report) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(r.namespace),
		MetricData: datums(report, r.nowFunc()),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			log.Printf("[Metrics] PutMetricData failed: %s (%s)", apiErr.ErrorCode(), apiErr.ErrorMessage())
			return
		}
		log.Printf("[Metrics] PutMetricData failed: %v", err)
	}
}

func datums(report *checkout.Report, now time.Time) []cwtypes.MetricDatum {
	dims := []cwtypes.Dimension{{Name: aws.String("PaymentMethod"), Value: aws.String(report.PaymentMethod)}}
	count := func(name string, v int) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Dimensions: dims,
			Timestamp:  aws.Time(now),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(v)),
		}
	}

	outcome := MetricCheckoutSucceeded
	switch report.State {
	case checkout.StatePartiallyFailed:
		outcome = MetricCheckoutPartiallyFailed
	case checkout.StateFailed:
		outcome = MetricCheckoutFailed
	}

	return []cwtypes.MetricDatum{
		count(outcome, 1),
		count(MetricOrdersCreated, len(report.SuccessfulOrders)),
		count(MetricShopFailures, len(report.FailedOrders)),
		count(MetricPaymentErrors, len(report.PaymentErrors)),
	}
}

// LogRecorder writes outcomes to the log when no metrics backend is configured.
type LogRecorder struct{}

func (LogRecorder) Record(ctx context.Context, report *checkout.Report) {
	log.Printf("[Metrics] checkout=%s state=%s method=%s orders=%d failedShops=%d paymentErrors=%d",
		report.CheckoutID, report.State, report.PaymentMethod,
		len(report.SuccessfulOrders), len(report.FailedOrders), len(report.PaymentErrors))
}
