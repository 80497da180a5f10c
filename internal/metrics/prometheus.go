package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the ears pipeline
type Metrics struct {
	// Capture metrics
	FramesCaptured  prometheus.Counter
	FramesDropped   prometheus.Counter
	FramesProcessed prometheus.Counter

	// VAD metrics
	VADVoicedFrames   prometheus.Counter
	VADSpeechFrames   prometheus.Counter
	VADCalibrating    prometheus.Gauge
	VADProcessingTime prometheus.Histogram

	// Endpoint metrics
	UtterancesDetected  prometheus.Counter
	UtterancesDiscarded prometheus.Counter
	UtteranceDuration   prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// Transcript output metrics
	TranscriptsEmitted  prometheus.Counter
	TranscriptsFiltered prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Capture metrics
		FramesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ears_frames_captured_total",
			Help: "Total number of audio frames read from the microphone",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ears_frames_dropped_total",
			Help: "Total number of frames dropped due to a full pipeline buffer",
		}),
		FramesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ears_frames_processed_total",
			Help: "Total number of frames run through the classifier",
		}),

		// VAD metrics
		VADVoicedFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ears_vad_voiced_frames_total",
			Help: "Total number of frames classified as voiced",
		}),
		VADSpeechFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ears_vad_speech_frames_total",
			Help: "Total number of frames classified as speech after debouncing",
		}),
		VADCalibrating: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ears_vad_calibrating",
			Help: "Whether the classifier is still calibrating (1) or done (0)",
		}),
		VADProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ears_vad_processing_duration_seconds",
			Help:    "Time spent classifying frames",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10), // 0.1ms to ~100ms
		}),

		// Endpoint metrics
		UtterancesDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ears_utterances_detected_total",
			Help: "Total number of utterances that reached an endpoint",
		}),
		UtterancesDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ears_utterances_discarded_total",
			Help: "Total number of utterances discarded as too short",
		}),
		UtteranceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ears_utterance_duration_seconds",
			Help:    "Duration of detected utterances",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s to ~1 minute
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ears_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ears_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ears_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ears_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// Transcript output metrics
		TranscriptsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ears_transcripts_emitted_total",
			Help: "Total number of transcripts written to output",
		}),
		TranscriptsFiltered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ears_transcripts_filtered_total",
			Help: "Total number of transcripts suppressed as hallucinations",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ears_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ears_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ears_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordFrameCaptured increments the frames captured counter
func (m *Metrics) RecordFrameCaptured() {
	m.FramesCaptured.Inc()
}

// RecordFrameDropped increments the frames dropped counter
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Inc()
}

// RecordFrameProcessed records one classified frame
func (m *Metrics) RecordFrameProcessed(voiced, speech bool, processingTimeSeconds float64) {
	m.FramesProcessed.Inc()
	if voiced {
		m.VADVoicedFrames.Inc()
	}
	if speech {
		m.VADSpeechFrames.Inc()
	}
	m.VADProcessingTime.Observe(processingTimeSeconds)
}

// SetCalibrating sets the calibration gauge
func (m *Metrics) SetCalibrating(calibrating bool) {
	if calibrating {
		m.VADCalibrating.Set(1)
	} else {
		m.VADCalibrating.Set(0)
	}
}

// RecordUtteranceDetected records an utterance that reached an endpoint
func (m *Metrics) RecordUtteranceDetected(durationSeconds float64) {
	m.UtterancesDetected.Inc()
	m.UtteranceDuration.Observe(durationSeconds)
}

// RecordUtteranceDiscarded increments the discarded utterances counter
func (m *Metrics) RecordUtteranceDiscarded() {
	m.UtterancesDiscarded.Inc()
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptEmitted increments the emitted transcripts counter
func (m *Metrics) RecordTranscriptEmitted() {
	m.TranscriptsEmitted.Inc()
}

// RecordTranscriptFiltered increments the filtered transcripts counter
func (m *Metrics) RecordTranscriptFiltered() {
	m.TranscriptsFiltered.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
