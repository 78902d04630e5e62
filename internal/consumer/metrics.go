package consumer

import "github.com/prometheus/client_golang/prometheus"

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salesops",
		Subsystem: "consumer",
		Name:      "events_processed_total",
		Help:      "Number of events processed successfully, labeled by event type.",
	}, []string{"event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salesops",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Number of handler failures, labeled by event type.",
	}, []string{"event_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salesops",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Number of messages that could not be decoded, labeled by topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, decodeErrorCounter)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.EventType).Inc()
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
