package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus records protocol events to its own set of Prometheus
// collectors. Construct once per process with NewPrometheus and share the
// returned Recorder across every Server/Peer that should feed the same
// registry.
type Prometheus struct {
	framesEncoded         *prometheus.CounterVec
	framesDecoded         *prometheus.CounterVec
	correspondencesOpened prometheus.Counter
	correspondencesClosed prometheus.Counter
	dispatchDuration      *prometheus.HistogramVec
	exceptionsHandled     *prometheus.CounterVec
}

var registerOnce sync.Once

// NewPrometheus builds and registers the correspond_* collector family
// against the default Prometheus registry. Safe to call more than once per
// process; registration happens exactly once, for the first instance's
// collectors, so a later instance records into collectors that the default
// registry does not expose.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		framesEncoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "correspond",
				Subsystem: "frame",
				Name:      "encoded_total",
				Help:      "Frames encoded and written to a transport stream, by message type.",
			},
			[]string{"type"},
		),
		framesDecoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "correspond",
				Subsystem: "frame",
				Name:      "decoded_total",
				Help:      "Frames decoded off a transport stream, by message type.",
			},
			[]string{"type"},
		),
		correspondencesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "correspond",
			Subsystem: "correspondence",
			Name:      "opened_total",
			Help:      "Correspondences created, locally or remotely initiated.",
		}),
		correspondencesClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "correspond",
			Subsystem: "correspondence",
			Name:      "closed_total",
			Help:      "Correspondences that reached full termination (both halves closed).",
		}),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "correspond",
				Subsystem: "server",
				Name:      "dispatch_duration_seconds",
				Help:      "Subject handler invocation duration.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"subject"},
		),
		exceptionsHandled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "correspond",
				Subsystem: "server",
				Name:      "exceptions_handled_total",
				Help:      "Handler exceptions routed through the exception pipeline.",
			},
			[]string{"subject"},
		),
	}
	registerOnce.Do(func() {
		prometheus.MustRegister(
			p.framesEncoded,
			p.framesDecoded,
			p.correspondencesOpened,
			p.correspondencesClosed,
			p.dispatchDuration,
			p.exceptionsHandled,
		)
	})
	return p
}

func (p *Prometheus) FrameEncoded(msgType string) {
	p.framesEncoded.WithLabelValues(labelOrDefault(msgType)).Inc()
}

func (p *Prometheus) FrameDecoded(msgType string) {
	p.framesDecoded.WithLabelValues(labelOrDefault(msgType)).Inc()
}

func (p *Prometheus) CorrespondenceOpened() {
	p.correspondencesOpened.Inc()
}

func (p *Prometheus) CorrespondenceClosed() {
	p.correspondencesClosed.Inc()
}

func (p *Prometheus) DispatchDuration(subject string, d time.Duration) {
	p.dispatchDuration.WithLabelValues(subject).Observe(d.Seconds())
}

func (p *Prometheus) ExceptionHandled(subject string) {
	p.exceptionsHandled.WithLabelValues(subject).Inc()
}

func labelOrDefault(msgType string) string {
	if msgType == "" {
		return "request"
	}
	return msgType
}
