// Command karmad runs the karma transfer endpoint. It holds the treasury key,
// re-checks solvency and pays out conversions.
//
// Usage:
//
//	karmad --config karmad.yaml
//
// Required environment variables:
//
//	TREASURY_PRIVATE_KEY (without it every claim answers 500)
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/karmabridge/config"
	"github.com/vadiminshakov/karmabridge/internal/api"
	"github.com/vadiminshakov/karmabridge/internal/storage/claims"
	"github.com/vadiminshakov/karmabridge/internal/treasury"
	"github.com/vadiminshakov/karmabridge/internal/wallet/query"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Get()
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sender api.Treasury
	if cfg.TreasuryKey == "" {
		logger.Warn("treasury key not set, claims will be refused", zap.String("env", config.EnvTreasuryKey))
	} else {
		eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			logger.Fatal("failed to dial chain rpc", zap.String("url", cfg.RPCURL), zap.Error(err))
		}
		defer eth.Close()

		checkChain(ctx, query.New(eth, logger), cfg, logger)

		journal, err := claims.Open(filepath.Join(cfg.WALDir, "claims"))
		if err != nil {
			logger.Fatal("failed to open claim journal", zap.Error(err))
		}
		defer journal.Close()

		for _, intent := range journal.Pending() {
			logger.Warn("claim from a previous run has no final status, check it on chain",
				zap.String("id", intent.ID),
				zap.String("destination", intent.Destination.String()),
				zap.String("tx_hash", intent.TxHash),
				zap.String("status", string(intent.Status)))
		}

		t, err := treasury.New(cfg.TreasuryKey, eth, logger,
			treasury.WithJournal(journal),
			treasury.WithConfirmTimeout(cfg.ConfirmTimeout),
			treasury.WithNetwork(cfg.Network),
		)
		if err != nil {
			logger.Fatal("failed to load treasury", zap.Error(err))
		}
		if cfg.TreasuryAddress != "" && !cfg.TreasuryAddress.Equal(t.Address()) {
			logger.Warn("configured treasury address differs from the signing key",
				zap.String("configured", cfg.TreasuryAddress.String()),
				zap.String("key", t.Address().String()))
		}
		logger.Info("treasury loaded", zap.String("address", t.Address().String()), zap.String("network", cfg.Network.Name))
		sender = t
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	server := api.NewServer(cfg.ListenAddr, sender, registry, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(cfg.TLSDomains) > 0 {
			return server.StartWithAutoTLS(gctx, cfg.TLSDomains, cfg.CertCacheDir)
		}
		return server.Start(gctx)
	})
	g.Go(func() error {
		return server.MonitorTreasury(gctx, cfg.MonitorInterval)
	})

	if err := g.Wait(); err != nil {
		logger.Error("karmad stopped", zap.Error(err))
	}
}

func checkChain(ctx context.Context, q *query.Query, cfg config.Config, l *zap.Logger) {
	id, err := q.ChainID(ctx)
	if err != nil {
		l.Warn("could not read chain id from rpc", zap.Error(err))
		return
	}
	if id != cfg.Network.ChainID {
		l.Fatal("rpc endpoint serves a different chain",
			zap.Uint64("rpc_chain_id", id),
			zap.Uint64("expected", cfg.Network.ChainID))
	}
}
