package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration 各阶段耗时分布
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assistant_pipeline_stage_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	// PipelineOutcomes 按校验结论统计的请求量
	PipelineOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_pipeline_outcomes_total",
		Help: "Pipeline invocations by validation outcome",
	}, []string{"outcome"})

	// RetrievalStatus 检索状态统计
	RetrievalStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_retrieval_status_total",
		Help: "Knowledge retrieval invocations by status",
	}, []string{"status"})

	// ModelFallbacks 主模型切换备用模型的次数
	ModelFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_model_fallbacks_total",
		Help: "Times the primary model failed and the fallback was invoked",
	})

	// ConfidenceScores 最终置信度分布
	ConfidenceScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assistant_confidence_score",
		Help:    "Distribution of final confidence scores",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
)
