// Package metrics exposes engine measurements to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/shared"
)

const namespace = "sandai"

// Collector records match transitions and settlements. It satisfies the
// match engine's Metrics interface.
type Collector struct {
	transitions   *prometheus.CounterVec
	settlements   *prometheus.CounterVec
	settledAmount *prometheus.CounterVec
}

// New registers the engine collectors on reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matches",
			Name:      "transitions_total",
			Help:      "Match state transitions",
		}, []string{"game", "from", "to"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "settlements_total",
			Help:      "Escrow settlements by kind",
		}, []string{"kind"}),
		settledAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "settled_amount_total",
			Help:      "Funds moved out of escrow by settlement kind",
		}, []string{"kind"}),
	}
	for _, col := range []prometheus.Collector{c.transitions, c.settlements, c.settledAmount} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) Transition(game shared.GameType, from, to match.State) {
	c.transitions.WithLabelValues(string(game), string(from), string(to)).Inc()
}

func (c *Collector) Settled(kind escrow.SettlementKind, total shared.Amount) {
	c.settlements.WithLabelValues(string(kind)).Inc()
	c.settledAmount.WithLabelValues(string(kind)).Add(float64(total))
}

// Sources are read at scrape time.
type Sources struct {
	Searching func() int
	Dropped   func() int64
}

// Watch registers gauges over live engine state.
func Watch(reg prometheus.Registerer, src Sources) error {
	if src.Searching != nil {
		err := reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "matches",
			Name:      "searching",
			Help:      "Players waiting in the matchmaking pool",
		}, func() float64 { return float64(src.Searching()) }))
		if err != nil {
			return err
		}
	}
	if src.Dropped != nil {
		err := reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "dropped_total",
			Help:      "Notifications dropped because the delivery queue was full",
		}, func() float64 { return float64(src.Dropped()) }))
		if err != nil {
			return err
		}
	}
	return nil
}
