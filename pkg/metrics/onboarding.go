package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Onboarding 引导流程相关指标
type Onboarding struct {
	AnswersTotal     metric.Int64Counter
	AdvancesTotal    metric.Int64Counter
	SubmissionsTotal metric.Int64Counter
	SubmitDuration   metric.Float64Histogram
	ActiveFlows      metric.Int64UpDownCounter
	RiskProfiles     metric.Int64Counter
}

var (
	onboarding *Onboarding
	initOnce   sync.Once
	initErr    error
)

// Init 在 otel.Init 之后调用；未调用时所有 Record* 都是空操作。
func Init() error {
	initOnce.Do(func() {
		meter := otel.Meter("plans")
		m := &Onboarding{}

		if m.AnswersTotal, initErr = meter.Int64Counter(
			"onboarding.answers.total",
			metric.WithDescription("Answers recorded per step"),
			metric.WithUnit("{answer}"),
		); initErr != nil {
			return
		}

		if m.AdvancesTotal, initErr = meter.Int64Counter(
			"onboarding.advances.total",
			metric.WithDescription("Step transitions by outcome"),
			metric.WithUnit("{advance}"),
		); initErr != nil {
			return
		}

		if m.SubmissionsTotal, initErr = meter.Int64Counter(
			"onboarding.submissions.total",
			metric.WithDescription("Onboarding submissions by status"),
			metric.WithUnit("{submission}"),
		); initErr != nil {
			return
		}

		if m.SubmitDuration, initErr = meter.Float64Histogram(
			"onboarding.submit.duration",
			metric.WithDescription("Time spent saving a submission"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
		); initErr != nil {
			return
		}

		if m.ActiveFlows, initErr = meter.Int64UpDownCounter(
			"onboarding.flows.active",
			metric.WithDescription("Flows held in memory"),
			metric.WithUnit("{flow}"),
		); initErr != nil {
			return
		}

		if m.RiskProfiles, initErr = meter.Int64Counter(
			"risk.profiles.total",
			metric.WithDescription("Risk profiles computed by level"),
			metric.WithUnit("{profile}"),
		); initErr != nil {
			return
		}

		onboarding = m
	})
	return initErr
}

func RecordAnswer(ctx context.Context, stepID string) {
	if onboarding == nil {
		return
	}
	onboarding.AnswersTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("step_id", stepID)))
}

func RecordAdvance(ctx context.Context, outcome string) {
	if onboarding == nil {
		return
	}
	onboarding.AdvancesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordSubmission status: success, failed
func RecordSubmission(ctx context.Context, status string, seconds float64) {
	if onboarding == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	onboarding.SubmissionsTotal.Add(ctx, 1, attrs)
	onboarding.SubmitDuration.Record(ctx, seconds, attrs)
}

func AddActiveFlows(ctx context.Context, delta int64) {
	if onboarding == nil {
		return
	}
	onboarding.ActiveFlows.Add(ctx, delta)
}

func RecordRiskProfile(ctx context.Context, level string) {
	if onboarding == nil {
		return
	}
	onboarding.RiskProfiles.Add(ctx, 1, metric.WithAttributes(attribute.String("level", level)))
}
