package projection

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.dedis.ch/chainblog"
)

var (
	promPosts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chainblog_projection_posts",
		Help: "number of posts of the last listing",
	})

	promSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chainblog_projection_skipped_total",
		Help: "total number of records left out of the listings",
	}, []string{"reason"})
)

func init() {
	chainblog.PromCollectors = append(chainblog.PromCollectors, promPosts, promSkipped)
}
