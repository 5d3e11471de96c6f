// Command engine runs the execution engine as a standalone process:
// it loads configuration, opens the execution database and event log,
// connects every configured venue client, wires the reconciliation
// loop and portfolio projection onto the engine's event stream, and
// blocks until SIGINT/SIGTERM.
//
// Grounded on cmd/polybot/main.go's load-config/wire-dependencies/
// wait-for-signal/graceful-shutdown shape from the teacher repo, with
// the strategy/risk/predictor wiring replaced by engine/reconcile/
// portfolio wiring.
package main

import (
	"context"
	"crypto/ecdsa"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/axiom-trade/exengine/client"
	"github.com/axiom-trade/exengine/currency"
	"github.com/axiom-trade/exengine/engine"
	"github.com/axiom-trade/exengine/eventlog"
	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/internal/config"
	"github.com/axiom-trade/exengine/notify"
	"github.com/axiom-trade/exengine/persistence"
	"github.com/axiom-trade/exengine/portfolio"
	"github.com/axiom-trade/exengine/reconcile"
)

const version = "1.0.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Getenv("EXENGINE_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("version", version).Int("venues", len(cfg.Venues)).Msg("execution engine starting")

	store, err := persistence.New(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open execution database")
	}
	defer store.Close()

	journal, err := eventlog.Open(cfg.EventLogDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open event log")
	}
	defer journal.Close()

	quoteCcy, err := currency.New(cfg.QuoteCcy, 2)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid quote currency")
	}

	eng := engine.New(store, cfg.QueueSize)

	for _, vc := range cfg.Venues {
		c, err := buildClient(vc)
		if err != nil {
			log.Fatal().Err(err).Str("venue", vc.Name).Msg("failed to build venue client")
		}
		if err := eng.RegisterClient(c); err != nil {
			log.Fatal().Err(err).Str("venue", vc.Name).Msg("failed to register venue client")
		}
	}

	port := portfolio.New(eng, journal, quoteCcy)
	eng.OnEvent(port.HandleEvent)

	notifier := notify.NewTelegramFromEnv()

	gate := reconcile.NewGate(
		cfg.Reconciliation.MaxConsecutiveFailures,
		cfg.Reconciliation.Cooldown(),
	)
	reconCfg := reconcile.DefaultConfig()
	reconCfg.PollInterval = cfg.Reconciliation.PollInterval()
	reconCfg.Timeout = cfg.Reconciliation.Timeout()
	reconciler := reconcile.New(eng, gate, reconCfg)
	eng.SetGate(gate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start engine")
	}
	port.Seed(eng.LoadedPositions(), eng.LoadedAccounts())

	go reconciler.RunForever(ctx)

	log.Info().Msg("execution engine running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := eng.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("engine did not stop cleanly")
		notifier.NotifyFatal("engine stop deadline exceeded", err)
		eng.Kill()
	}

	log.Info().Msg("execution engine stopped")
}

func buildClient(vc config.VenueConfig) (client.ExecutionClient, error) {
	var signer *client.OrderSigner
	if vc.SignerKeyHex != "" {
		key, err := crypto.HexToECDSA(vc.SignerKeyHex)
		if err != nil {
			return nil, err
		}
		signerAddr := crypto.PubkeyToAddress(*key.Public().(*ecdsa.PublicKey))
		signer = client.NewOrderSigner(
			key,
			signerAddr,
			signerAddr,
			vc.Name,
			common.HexToAddress(vc.ExchangeAddr),
			vc.ChainID,
			vc.SignatureType,
		)
	}

	return client.NewLiveClient(client.Config{
		Venue:   identifiers.Venue(vc.Name),
		BaseURL: vc.BaseURL,
		WSURL:   vc.WSURL,
		APIKey:  vc.APIKey,
		Timeout: 10 * time.Second,
		Retry:   client.DefaultRetryPolicy(),
	}, signer), nil
}
