package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/shared"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.Transition(shared.GameFIFA, match.StateMatching, match.StateReady)
	c.Transition(shared.GameFIFA, match.StateMatching, match.StateReady)
	c.Settled(escrow.SettlementPayout, 80)
	c.Settled(escrow.SettlementPayout, 40)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.transitions.WithLabelValues("fifa", "matching", "ready")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.settlements.WithLabelValues("payout")))
	assert.Equal(t, 120.0, testutil.ToFloat64(c.settledAmount.WithLabelValues("payout")))

	_, err = New(reg)
	assert.Error(t, err, "registering twice")
}

func TestWatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	searching, dropped := 3, int64(7)
	require.NoError(t, Watch(reg, Sources{
		Searching: func() int { return searching },
		Dropped:   func() int64 { return dropped },
	}))

	expected := `
# HELP sandai_matches_searching Players waiting in the matchmaking pool
# TYPE sandai_matches_searching gauge
sandai_matches_searching 3
# HELP sandai_notifications_dropped_total Notifications dropped because the delivery queue was full
# TYPE sandai_notifications_dropped_total counter
sandai_notifications_dropped_total 7
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}
