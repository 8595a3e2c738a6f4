package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"pricetracker/internal/config"
	"pricetracker/internal/tracker"
)

// newTracker is the single place the tracker instance comes from. Everything
// in this binary shares one instance; the laziness keeps construction next to
// the code that decides the process should run at all.
func newTracker(cfg config.Config, log zerolog.Logger) func() (*tracker.Tracker, error) {
	return sync.OnceValues(func() (*tracker.Tracker, error) {
		return tracker.New(cfg, log)
	})
}

func main() {
	// A local .env is a convenience for development; absence is fine.
	_ = godotenv.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	getTracker := newTracker(cfg, log)
	t, err := getTracker()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build tracker")
	}

	log.Info().
		Str("provider", t.ProviderName()).
		Strs("assets", cfg.Assets).
		Msg("starting price tracker")

	t.Start()
	defer t.Shutdown()

	updates := t.Subscribe()
	defer t.Unsubscribe(updates)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	report := time.NewTicker(30 * time.Second)
	defer report.Stop()

	for {
		select {
		case u := <-updates:
			delta := ""
			if u.OldPriceUSD != nil {
				delta = fmt.Sprintf(" (was %.4f)", *u.OldPriceUSD)
			}
			log.Info().
				Str("event_id", u.ID.String()).
				Str("asset", u.Price.Asset.Symbol()).
				Str("source", u.Price.Source).
				Msgf("%s = $%.4f%s", u.Price.Asset.Symbol(), u.Price.PriceUSD, delta)

		case <-report.C:
			health := t.HealthCheck()
			m := t.Metrics()
			log.Info().
				Str("status", string(health.Status)).
				Str("message", health.Message).
				Uint64("requests", m.TotalRequests).
				Uint64("failed", m.FailedRequests).
				Float64("success_rate", m.SuccessRate).
				Float64("latency_p50_ms", m.LatencyP50MS).
				Float64("latency_p99_ms", m.LatencyP99MS).
				Msg("status report")
			for asset, pd := range t.GetAllPrices() {
				log.Info().
					Str("asset", asset.Symbol()).
					Float64("price_usd", pd.PriceUSD).
					Dur("age", pd.Age()).
					Msg("cached price")
			}

		case sig := <-stop:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			return
		}
	}
}
