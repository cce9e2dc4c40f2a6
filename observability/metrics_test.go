package observability

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRunClubMetrics(t *testing.T) {
	m := RunClub()
	require.Same(t, m, RunClub())

	m.ObserveOperation("redeem", nil, time.Millisecond)
	m.ObserveOperation("redeem", errors.New("boom"), time.Millisecond)
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("redeem", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("redeem", "error")))

	m.RecordRedeemed("usdc", big.NewInt(250))
	m.RecordRedeemed("usdc", big.NewInt(-1))
	require.Equal(t, 250.0, testutil.ToFloat64(m.redeemed.WithLabelValues("USDC")))

	m.RecordEvent("runclub.club.created")
	require.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("runclub.club.created")))

	var nilMetrics *RunClubMetrics
	nilMetrics.RecordEvent("ignored")
}

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	m.Observe("runclub", "POST /clubs", 409, time.Millisecond)
	require.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("runclub", "POST /clubs", "409")))
	m.RecordThrottle("", "")
	require.Equal(t, 1.0, testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "unspecified")))
}
