package metrics

//
// Oempro command metrics
//

import (
	"time"

	"go.miloapis.com/email-provider-oempro/pkg/oempro"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values for oempro_requests_total.
const (
	ResultSuccess        = "success"
	ResultAPIError       = "api_error"
	ResultTransportError = "transport_error"
	ResultError          = "error"
)

// CommandObserver records one sample per Oempro command round trip.
type CommandObserver struct {
	// requests counts commands by name and result.
	requests *prometheus.CounterVec

	// duration observes the round trip time of each command, failures included.
	duration *prometheus.HistogramVec
}

var _ oempro.RequestObserver = (*CommandObserver)(nil)

// NewCommandObserver registers the command metrics on reg.
func NewCommandObserver(reg prometheus.Registerer) *CommandObserver {
	factory := promauto.With(reg)
	return &CommandObserver{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oempro_requests_total",
			Help: "Total number of Oempro API commands by result",
		}, []string{"command", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oempro_request_duration_seconds",
			Help:    "Time to complete an Oempro API command (in seconds)",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
	}
}

// ObserveRequest implements oempro.RequestObserver.
func (o *CommandObserver) ObserveRequest(command string, duration time.Duration, err error) {
	o.requests.WithLabelValues(command, result(err)).Inc()
	o.duration.WithLabelValues(command).Observe(duration.Seconds())
}

func result(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case oempro.IsAPIError(err):
		return ResultAPIError
	case oempro.IsTransport(err):
		return ResultTransportError
	default:
		return ResultError
	}
}
