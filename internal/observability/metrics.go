package observability

import "github.com/prometheus/client_golang/prometheus"

func NewRegisterer() prometheus.Registerer {
	return prometheus.DefaultRegisterer
}

func NewGatherer() prometheus.Gatherer {
	return prometheus.DefaultGatherer
}
