package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	runs      *prometheus.CounterVec
	customers *prometheus.CounterVec
	changes   *prometheus.CounterVec
	errors    *prometheus.CounterVec
	retries   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	counter := func(name, help, label string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subsync",
			Subsystem: "reconcile",
			Name:      name,
			Help:      help,
		}, []string{label})
	}

	m := &metrics{
		runs:      counter("runs_total", "Reconciliation runs by source", "source"),
		customers: counter("customers_total", "Customers processed by source", "source"),
		changes:   counter("change_lines_total", "Change lines reported by source", "source"),
		errors:    counter("error_lines_total", "Error lines reported by source", "source"),
		retries:   counter("write_retries_total", "Ledger writes retried after a conflict", "operation"),
	}
	if reg == nil {
		return m
	}

	for _, c := range []**prometheus.CounterVec{&m.runs, &m.customers, &m.changes, &m.errors, &m.retries} {
		if err := reg.Register(*c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
					*c = existing
				}
			}
		}
	}
	return m
}
