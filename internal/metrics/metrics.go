// Package metrics 报价服务的 Prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineStageTotal 成本计算环节调用次数
	PipelineStageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quote",
			Subsystem: "pipeline",
			Name:      "stage_total",
			Help:      "Total number of costing stage calls by result",
		},
		[]string{"stage", "result"},
	)

	// PipelineStageDuration 成本计算环节耗时
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quote",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of costing stage calls in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"stage"},
	)

	// LifecycleTransitionsTotal 状态迁移次数
	LifecycleTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quote",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Total number of lifecycle transitions by result",
		},
		[]string{"transition", "result"},
	)

	// RevisionsTotal 版本创建次数
	RevisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quote",
			Name:      "revisions_total",
			Help:      "Total number of rfq revisions by result",
		},
		[]string{"result"},
	)
)

// 结果标签
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// ObserveStage 记录一次环节调用
func ObserveStage(stage, result string, start time.Time) {
	PipelineStageTotal.WithLabelValues(stage, result).Inc()
	PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
