package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voicememo"

// Metrics holds the collectors updated by transcription sessions.
type Metrics struct {
	SessionsActive   prometheus.Gauge
	SessionsClosed   *prometheus.CounterVec
	TranscriptEvents *prometheus.CounterVec
	DocumentAppends  *prometheus.CounterVec
	AudioBytes       prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Transcription sessions currently open.",
		}),
		SessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Transcription sessions closed, by close code.",
		}, []string{"close_code"}),
		TranscriptEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_events_total",
			Help:      "Recognition events relayed to clients.",
		}, []string{"final"}),
		DocumentAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_appends_total",
			Help:      "Document append attempts, by result.",
		}, []string{"result"}),
		AudioBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Audio bytes forwarded to the recognizer.",
		}),
	}
	reg.MustRegister(m.SessionsActive, m.SessionsClosed, m.TranscriptEvents, m.DocumentAppends, m.AudioBytes)
	return m
}

func (m *Metrics) SessionOpened() {
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionClosed(code int) {
	m.SessionsActive.Dec()
	m.SessionsClosed.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (m *Metrics) TranscriptRelayed(isFinal bool) {
	m.TranscriptEvents.WithLabelValues(strconv.FormatBool(isFinal)).Inc()
}

// AppendResult records "ok", "failed" or "dropped".
func (m *Metrics) AppendResult(result string) {
	m.DocumentAppends.WithLabelValues(result).Inc()
}

func (m *Metrics) AudioReceived(n int) {
	m.AudioBytes.Add(float64(n))
}
