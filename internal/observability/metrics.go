package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	requestsTotal       *prometheus.CounterVec
	latencySeconds      *prometheus.HistogramVec
	errorsTotal         *prometheus.CounterVec
	submissionsTotal    *prometheus.CounterVec
	gradesTotal         prometheus.Counter
	quizAttemptsTotal   *prometheus.CounterVec
	chatMessagesTotal   prometheus.Counter
	chatConnectionsTotal prometheus.Counter
	announcementsTotal  prometheus.Counter
	uploadRejected      *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "classroom_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_submissions_total",
			Help: "Assignment submissions accepted, labelled by status.",
		}, []string{"status"})

		gradesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_grades_total",
			Help: "Submissions graded by faculty.",
		})

		quizAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_quiz_attempts_total",
			Help: "Quiz attempt transitions, labelled by resulting status.",
		}, []string{"status"})

		chatMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_chat_messages_total",
			Help: "Chat messages persisted and broadcast.",
		})

		chatConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_chat_connections_total",
			Help: "Websocket connections accepted.",
		})

		announcementsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_announcements_total",
			Help: "Course announcements published.",
		})

		uploadRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_upload_rejected_total",
			Help: "Attachment uploads rejected, labelled by reason.",
		}, []string{"reason"})

		prometheus.MustRegister(
			requestsTotal, latencySeconds, errorsTotal,
			submissionsTotal, gradesTotal, quizAttemptsTotal,
			chatMessagesTotal, chatConnectionsTotal,
			announcementsTotal, uploadRejected,
		)
	})
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for API requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return latencySeconds
}

// Errors exposes the counter for API error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}

// SubmissionsTotal exposes the submission counter.
func SubmissionsTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// GradesTotal exposes the grading counter.
func GradesTotal() prometheus.Counter {
	RegisterMetrics()
	return gradesTotal
}

// QuizAttemptsTotal exposes the quiz attempt counter.
func QuizAttemptsTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return quizAttemptsTotal
}

// ChatMessagesTotal exposes the chat message counter.
func ChatMessagesTotal() prometheus.Counter {
	RegisterMetrics()
	return chatMessagesTotal
}

// ChatConnectionsTotal exposes the websocket connection counter.
func ChatConnectionsTotal() prometheus.Counter {
	RegisterMetrics()
	return chatConnectionsTotal
}

// AnnouncementsTotal exposes the announcement counter.
func AnnouncementsTotal() prometheus.Counter {
	RegisterMetrics()
	return announcementsTotal
}

// UploadRejected exposes the rejected upload counter.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejected
}
