package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRakurai_ProgramMetrics_Observe(t *testing.T) {
	t.Parallel()

	Observe("test-observe", "claim", nil)
	Observe("test-observe", "claim", nil)
	Observe("test-observe", "claim", errors.New("boom"))

	require.Equal(t, 2.0, testutil.ToFloat64(InstructionsTotal.WithLabelValues("test-observe", "claim", StatusSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(InstructionsTotal.WithLabelValues("test-observe", "claim", StatusError)))

	AddLamports("test-observe", "claim", 0)
	AddLamports("test-observe", "claim", 1500)
	require.Equal(t, 1500.0, testutil.ToFloat64(LamportsMovedTotal.WithLabelValues("test-observe", "claim")))
}
