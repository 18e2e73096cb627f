// Package filetx manipulates individual files through shared handles, with
// an optional flat transaction scope over mutating operations (create,
// write, delete, rename, duplicate) which may be committed or rolled back
// as a unit. No OS-level transaction primitive is assumed: atomicity is
// approximated in-process by an undo log which is replayed in reverse on
// rollback, while deletions are deferred until commit.
//
// Every handle resolved for one canonical path holds a reference to a single
// shared Record. Deleting or invalidating the file through one handle
// poisons the Record, and every other handle sharing it fails predictably,
// with the stored error, on its next use.
package filetx

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filetx_operations_total",
		Help: "Cumulative number of file operations, by operation type.",
	}, []string{"op"})
	txnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filetx_transactions_total",
		Help: "Cumulative number of closed transactions, by outcome.",
	}, []string{"outcome"})
	undoFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filetx_undo_failures_total",
		Help: "Cumulative number of undo steps which failed during rollback.",
	})
)
