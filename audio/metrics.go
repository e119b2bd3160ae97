package audio

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "voicecap"

// Metrics 录音管线的 Prometheus 指标
type Metrics struct {
	FramesEncoded     prometheus.Counter
	CodecErrors       prometheus.Counter
	CaptureReadErrors prometheus.Counter
	SamplesCaptured   prometheus.Counter
	SessionsStarted   prometheus.Counter
	SessionErrors     prometheus.Counter
	CallbackPanics    prometheus.Counter
	RecordingState    prometheus.Gauge
}

// NewMetrics 创建并注册指标，reg 为 nil 时使用独立的 registry
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		FramesEncoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_encoded_total",
			Help:      "Voice frames encoded and delivered to the frame callback.",
		}),
		CodecErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "codec_errors_total",
			Help:      "Frames dropped because the encoder failed.",
		}),
		CaptureReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "capture_read_errors_total",
			Help:      "Audio thread ticks skipped because the backend read failed.",
		}),
		SamplesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "samples_captured_total",
			Help:      "PCM samples copied out of the backend capture buffer.",
		}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_started_total",
			Help:      "Recording sessions that reached the active state.",
		}),
		SessionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_errors_total",
			Help:      "Recording sessions aborted because the stream could not be opened or started.",
		}),
		CallbackPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "callback_panics_total",
			Help:      "Panics recovered from recording callbacks.",
		}),
		RecordingState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "recording_state",
			Help:      "Current recording state (0 idle, 1 deferred start, 2 active, 3 stopping, 4 halting).",
		}),
	}

	counters := []*prometheus.Counter{
		&m.FramesEncoded, &m.CodecErrors, &m.CaptureReadErrors, &m.SamplesCaptured,
		&m.SessionsStarted, &m.SessionErrors, &m.CallbackPanics,
	}
	for _, c := range counters {
		registered, err := register(reg, *c)
		if err != nil {
			return nil, err
		}
		*c = registered
	}
	gauge, err := register(reg, m.RecordingState)
	if err != nil {
		return nil, err
	}
	m.RecordingState = gauge
	return m, nil
}

// register 已注册过同名指标时复用已有的收集器
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
