package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livefeed_poll_ticks_total",
		Help: "Total number of incremental poll ticks run.",
	})

	RefreshTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livefeed_refresh_ticks_total",
		Help: "Total number of snapshot refresh ticks run.",
	})

	TickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "livefeed_tick_duration_ms",
		Help:    "Tick latency in milliseconds, labelled by loop (poll or refresh).",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"loop"})

	SourceFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livefeed_source_fetch_errors_total",
		Help: "Total number of failed source reads, labelled by source.",
	}, []string{"source"})

	RowsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livefeed_rows_dropped_total",
		Help: "Rows rejected during normalization, labelled by source and reason.",
	}, []string{"source", "reason"})

	ItemsAdmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livefeed_items_admitted_total",
		Help: "Items admitted to the notification buffer, labelled by source.",
	}, []string{"source"})

	DuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livefeed_duplicates_skipped_total",
		Help: "Polled items skipped because their id was already seen.",
	})

	SeenIndexSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livefeed_seen_index_size",
		Help: "Current number of ids held by the seen-id index.",
	})

	BufferLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livefeed_buffer_length",
		Help: "Current notification buffer length.",
	})

	SnapshotSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livefeed_snapshot_size",
		Help: "Number of items in the latest snapshot.",
	})

	SinkPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livefeed_sink_publishes_total",
		Help: "Sink publish attempts, labelled by sink and status.",
	}, []string{"sink", "status"})

	SinkDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livefeed_sink_dropped_total",
		Help: "Items not dispatched to sinks because the queue was full.",
	})

	SinkQueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livefeed_sink_queue_utilization_ratio",
		Help: "Current sink queue utilization (0–1).",
	})
)
