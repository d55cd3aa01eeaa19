package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/AbdulmoneamAli/federated/internal/fedavg"
)

func TestObserveRound(t *testing.T) {
	r := New()
	r.ObserveRound(fedavg.RoundMetrics{
		Round:         0,
		NumClients:    10,
		FailedClients: 2,
		NumExamples:   500,
		Loss:          1.25,
	}, 3*time.Second)
	r.ObserveRound(fedavg.RoundMetrics{
		NumClients:  5,
		NumExamples: 100,
		Loss:        0.75,
	}, time.Second)

	require.Equal(t, 2.0, testutil.ToFloat64(r.roundsCompleted))
	require.Equal(t, 15.0, testutil.ToFloat64(r.clientUpdates))
	require.Equal(t, 2.0, testutil.ToFloat64(r.failedUpdates))
	require.Equal(t, 600.0, testutil.ToFloat64(r.examples))
	// The loss gauge tracks the latest round.
	require.Equal(t, 0.75, testutil.ToFloat64(r.trainLoss))
}

func TestObserveEval(t *testing.T) {
	r := New()
	r.ObserveEval(map[string]float64{"accuracy": 0.8, "loss": 0.5})
	r.ObserveEval(map[string]float64{"accuracy": 0.9})

	require.Equal(t, 0.9, testutil.ToFloat64(r.evalMetrics.WithLabelValues("accuracy")))
	require.Equal(t, 0.5, testutil.ToFloat64(r.evalMetrics.WithLabelValues("loss")))
}

func TestNilReporterIsNoop(t *testing.T) {
	var r *Reporter
	r.ObserveRound(fedavg.RoundMetrics{}, time.Second)
	r.ObserveEval(map[string]float64{"loss": 1})
	r.Serve(":0")
	require.NoError(t, r.Close(context.Background()))
}

func TestCloseWithoutServe(t *testing.T) {
	require.NoError(t, New().Close(context.Background()))
}
