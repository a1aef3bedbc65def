package paste

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	readsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paste_stash_reads_total",
			Help: "Content reads by outcome",
		},
		[]string{"outcome"},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paste_stash_uploads_total",
			Help: "Created records by kind",
		},
		[]string{"kind"},
	)

	deletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paste_stash_records_deleted_total",
			Help: "Deleted records by reason",
		},
		[]string{"reason"},
	)
)
