package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups the service metrics. A nil *Collectors records nothing.
type Collectors struct {
	activeSessions prometheus.Gauge
	stagedImages   prometheus.Gauge
	uploads        *prometheus.CounterVec
	uploadSeconds  prometheus.Histogram
	submissions    *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "booklisting",
			Name:      "wizard_sessions_active",
			Help:      "Wizard sessions currently held in memory.",
		}),
		stagedImages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "booklisting",
			Name:      "staged_images",
			Help:      "Images staged across all sessions.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booklisting",
			Name:      "image_uploads_total",
			Help:      "Image uploads by result.",
		}, []string{"result"}),
		uploadSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "booklisting",
			Name:      "image_upload_seconds",
			Help:      "Duration of single image uploads.",
			Buckets:   prometheus.DefBuckets,
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booklisting",
			Name:      "submissions_total",
			Help:      "Listing submissions by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(c.activeSessions, c.stagedImages, c.uploads, c.uploadSeconds, c.submissions)
	}
	return c
}

func (c *Collectors) SessionOpened() {
	if c == nil {
		return
	}
	c.activeSessions.Inc()
}

func (c *Collectors) SessionClosed() {
	if c == nil {
		return
	}
	c.activeSessions.Dec()
}

// StagedDelta adjusts the staged image gauge by n.
func (c *Collectors) StagedDelta(n int) {
	if c == nil || n == 0 {
		return
	}
	c.stagedImages.Add(float64(n))
}

// Upload records one upload attempt. Cancelled uploads count as "aborted".
func (c *Collectors) Upload(d time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, context.Canceled):
		result = "aborted"
	case err != nil:
		result = "error"
	}
	c.uploads.WithLabelValues(result).Inc()
	c.uploadSeconds.Observe(d.Seconds())
}

// Submission counts one pipeline outcome: "success", "upload_error",
// "write_error" or "rejected".
func (c *Collectors) Submission(outcome string) {
	if c == nil {
		return
	}
	c.submissions.WithLabelValues(outcome).Inc()
}
