package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.dedis.ch/chainblog"
)

var (
	promSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chainblog_pipeline_submissions_total",
		Help: "total number of submissions by outcome",
	}, []string{"outcome"})

	promConfirmationRounds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chainblog_pipeline_confirmation_rounds",
		Help:    "number of rounds between the parameters and the confirmation of a transaction",
		Buckets: prometheus.LinearBuckets(0, 1, 8),
	})
)

func init() {
	chainblog.PromCollectors = append(chainblog.PromCollectors,
		promSubmissions, promConfirmationRounds)
}
