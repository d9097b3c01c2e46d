package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"schoolPrint/internal/render"
)

const namespace = "schoolprint"

var (
	renderPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "passes_total",
			Help:      "渲染次数，按文档类型与结果分类。",
		},
		[]string{"kind", "result"},
	)

	renderPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "pages_total",
			Help:      "已输出的页数。",
		},
		[]string{"kind"},
	)

	renderMissingAssetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "missing_assets_total",
			Help:      "无法获取的图片资源数量。",
		},
		[]string{"kind", "role"},
	)

	renderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "pass_duration_seconds",
			Help:      "单次渲染耗时分布（秒）。",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	renderInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "passes_in_progress",
			Help:      "当前正在进行的渲染数量。",
		},
		[]string{"kind"},
	)
)

// RenderObserver 把渲染事件记录为 Prometheus 指标。
type RenderObserver struct{}

func (RenderObserver) PassStarted(kind render.Kind) {
	renderInProgress.WithLabelValues(string(kind)).Inc()
}

func (RenderObserver) PassFinished(kind render.Kind, stats render.Stats, elapsed time.Duration, err error) {
	k := string(kind)
	renderInProgress.WithLabelValues(k).Dec()
	renderDuration.WithLabelValues(k).Observe(elapsed.Seconds())
	renderPagesTotal.WithLabelValues(k).Add(float64(stats.Pages))

	result := "ok"
	if err != nil {
		result = string(render.KindFromError(err))
	}
	renderPassesTotal.WithLabelValues(k, result).Inc()
}

func (RenderObserver) AssetMissing(kind render.Kind, role string) {
	renderMissingAssetsTotal.WithLabelValues(string(kind), role).Inc()
}
