// Command scenario drives a synthetic trade/order stream through the
// same pipeline topology backtesting.Engine uses, sized entirely from
// config's scenario harness knobs. It exists so an operator can sanity
// check the fill model and pipeline wiring end to end (no data
// provider, no strategy) before pointing it at real historical data.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alexherrero/chronoline/algorithm"
	"github.com/alexherrero/chronoline/config"
	"github.com/alexherrero/chronoline/event"
	"github.com/alexherrero/chronoline/pipeline"
	"github.com/alexherrero/chronoline/simulator"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// idleAlgorithm never issues an order; the scenario harness submits
// orders directly onto the OrderSource instead of deriving them from a
// strategy's own signal logic.
type idleAlgorithm struct{}

func (idleAlgorithm) Name() string      { return "scenario" }
func (idleAlgorithm) Initialize() error { return nil }
func (idleAlgorithm) Handle(algorithm.Frame, algorithm.OrderFunc) error {
	return nil
}

// countingSink is the scenario harness's PerformanceSink: it only
// needs the aggregate transaction count and signed volume the run
// produced, not a full performance.Tracker.
type countingSink struct {
	mu     sync.Mutex
	txns   int
	volume int64
}

func (s *countingSink) ProcessEvent(ev event.Envelope) error {
	if ev.Transaction == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns++
	s.volume += ev.Transaction.Amount
	return nil
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	const sid int64 = 1
	base := time.Now().UTC().Truncate(time.Minute)

	orderAmount := cfg.OrderAmount
	if cfg.CompleteFill && cfg.OrderCount > 0 {
		// Keep the combined order size under the default fill model's
		// volume cap for one trade so every order is expected to clear
		// in the scenario's first trade.
		volCap := int64(float64(cfg.TradeAmount) * simulator.DefaultVolumeLimit)
		if perOrder := volCap / int64(cfg.OrderCount); perOrder > 0 && perOrder < orderAmount {
			orderAmount = perOrder
		}
	}

	trades := make([]event.Envelope, cfg.TradeCount)
	for i := range trades {
		trades[i] = event.NewTrade("trades", sid, 10.0, cfg.TradeAmount, base.Add(time.Duration(i)*cfg.TradeInterval))
	}

	orders := make([]event.Envelope, cfg.OrderCount)
	for i := range orders {
		amount := orderAmount
		if cfg.Alternate && i%2 == 1 {
			amount = -amount
		}
		issuedAt := base.Add(-time.Duration(cfg.OrderCount-i) * cfg.OrderInterval)
		orders[i] = event.NewOrder("scenario", sid, amount, issuedAt)
	}

	log.Info().
		Int("trades", len(trades)).
		Int("orders", len(orders)).
		Str("simulation_style", cfg.SimulationStyle).
		Msg("running synthetic scenario")

	sink := &countingSink{}
	result := runScenario(cfg, trades, orders, sink)

	log.Info().
		Int("txn_count", result.txns).
		Int64("volume", result.volume).
		Msg("scenario complete")

	status := 0
	if cfg.ExpectedTxnCount != 0 && result.txns != cfg.ExpectedTxnCount {
		log.Error().Int("want", cfg.ExpectedTxnCount).Int("got", result.txns).Msg("transaction count mismatch")
		status = 1
	}
	if cfg.ExpectedTxnVolume != 0 && result.volume != cfg.ExpectedTxnVolume {
		log.Error().Int64("want", cfg.ExpectedTxnVolume).Int64("got", result.volume).Msg("transaction volume mismatch")
		status = 1
	}
	os.Exit(status)
}

// runScenario wires a TradeSource, a pre-loaded OrderSource, Feed,
// transaction simulator, Merge and TradingClient the same way
// backtesting.Engine.Run does and drives them to completion under a
// Controller, the production concurrent topology rather than a
// synchronous test pump.
func runScenario(cfg *config.Config, trades, orders []event.Envelope, sink *countingSink) *countingSink {
	const buf = 4096

	tradeSource := pipeline.NewTradeSource("trades", trades, buf)
	orderSource := pipeline.NewOrderSource("orders", buf, buf)
	for _, o := range orders {
		orderSource.Submit(o)
	}
	orderSource.CloseSubmission()
	tradeSource.OnDone(orderSource.CloseSubmission)

	feed := pipeline.NewFeed("feed", buf)
	feed.AddSource(tradeSource.ID(), tradeSource.Out())
	feed.AddSource(orderSource.ID(), orderSource.Out())

	mainCh, simCh := fanOut(feed.Out(), buf)

	var fillModel simulator.FillModel
	if cfg.SimulationStyle == "fixed_slippage" {
		fillModel = simulator.NewFixedSlippageSimulator(0.05, 0)
	} else {
		fillModel = simulator.NewVolumeShareSimulator()
	}
	simComponent := simulator.NewComponent("simulator", fillModel, simCh, buf)

	merge := pipeline.NewMerge("merge", "feed", mainCh, "simulator", simComponent.Out(), buf)
	client := pipeline.NewTradingClient("client", merge.Out(), orderSource, sink, idleAlgorithm{}, 500)

	components := []pipeline.Component{tradeSource, orderSource, feed, simComponent, merge, client}
	topology := make([]string, 0, len(components))
	for _, c := range components {
		topology = append(topology, c.ID())
	}
	controller := pipeline.NewController(topology, false)
	if cfg.HeartbeatInterval > 0 {
		controller.HeartbeatInterval = cfg.HeartbeatInterval
	}
	if cfg.HeartbeatTimeout > 0 {
		controller.HeartbeatTimeout = cfg.HeartbeatTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go controller.Run(ctx)

	var wg sync.WaitGroup
	for _, c := range components {
		wg.Add(1)
		go func(comp pipeline.Component) {
			defer wg.Done()
			if err := pipeline.RunComponent(ctx, controller, comp); err != nil && err != context.Canceled {
				log.Error().Err(err).Str("component", comp.ID()).Msg("scenario component failed")
			}
		}(c)
	}

	allDone := make(chan struct{})
	go func() { wg.Wait(); close(allDone) }()

	select {
	case <-allDone:
	case report := <-controller.Exceptions():
		fmt.Fprintf(os.Stderr, "scenario terminated: %s: %s\n", report.ComponentID, report.Message)
		cancel()
		wg.Wait()
	}

	return sink
}

// fanOut duplicates a single channel's contents onto two, mirroring
// the Feed-to-(simulator,merge) split backtesting.Engine.Run needs.
func fanOut(in <-chan event.Envelope, buf int) (chan event.Envelope, chan event.Envelope) {
	a := make(chan event.Envelope, buf)
	b := make(chan event.Envelope, buf)
	go func() {
		defer close(a)
		defer close(b)
		for ev := range in {
			a <- ev
			b <- ev
		}
	}()
	return a, b
}
