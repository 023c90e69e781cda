package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	InstructionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rakurai_program_instructions_total",
			Help: "Total number of processed program instructions",
		},
		[]string{"program", "instruction", "status"},
	)

	LamportsMovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rakurai_program_lamports_moved_total",
			Help: "Total lamports moved by program instructions",
		},
		[]string{"program", "instruction"},
	)
)

// Observe records the outcome of one instruction.
func Observe(program, instruction string, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	InstructionsTotal.WithLabelValues(program, instruction, status).Inc()
}

func AddLamports(program, instruction string, lamports uint64) {
	if lamports == 0 {
		return
	}
	LamportsMovedTotal.WithLabelValues(program, instruction).Add(float64(lamports))
}
