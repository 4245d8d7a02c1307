// Command karma is the wallet side of karma conversion. It keeps the wallet session,
// serves it on a local status API and runs claims.
//
// Usage:
//
//	karma setup [path]                 write a config with the terminal wizard
//	karma --config karma.yaml          serve the wallet status API
//	karma --config karma.yaml claim N  convert N karma points to the connected wallet
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/karmabridge/config"
	"github.com/vadiminshakov/karmabridge/internal/conversion"
	"github.com/vadiminshakov/karmabridge/internal/domain"
	"github.com/vadiminshakov/karmabridge/internal/events"
	"github.com/vadiminshakov/karmabridge/internal/setup"
	"github.com/vadiminshakov/karmabridge/internal/storage/claims"
	"github.com/vadiminshakov/karmabridge/internal/storage/markers"
	"github.com/vadiminshakov/karmabridge/internal/treasury"
	"github.com/vadiminshakov/karmabridge/internal/wallet/provider"
	"github.com/vadiminshakov/karmabridge/internal/wallet/query"
	"github.com/vadiminshakov/karmabridge/internal/wallet/session"
	"github.com/vadiminshakov/karmabridge/internal/web"
)

const defaultConfigPath = "config.gen.yaml"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if len(os.Args) > 1 && os.Args[1] == "setup" {
		path := defaultConfigPath
		if len(os.Args) > 2 {
			path = os.Args[2]
		}
		if err := setup.RunWizard(path); err != nil {
			logger.Fatal("setup failed", zap.Error(err))
		}
		return
	}

	cfg, err := config.Get()
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	discovery := provider.NewDiscovery(logger, provider.URLLocator(cfg.ProviderURL, cfg.ProviderPollInterval, logger))

	markerStore, err := markers.NewWALStore(filepath.Join(cfg.WALDir, "session"))
	if err != nil {
		logger.Fatal("failed to open session markers", zap.Error(err))
	}
	defer markerStore.Close()

	manager := session.NewManager(discovery, markerStore, logger, session.WithBroadcaster(events.NewSessionBroadcaster(16)))
	defer manager.Close()

	manager.Restore(ctx)

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		logger.Fatal("failed to dial chain rpc", zap.String("url", cfg.RPCURL), zap.Error(err))
	}
	defer eth.Close()

	service, closeService, err := newService(cfg, manager, eth, logger)
	if err != nil {
		logger.Fatal("failed to set up conversion", zap.Error(err))
	}
	defer closeService()

	switch flag.Arg(0) {
	case "claim":
		if err := claim(ctx, manager, service, flag.Arg(1)); err != nil {
			fmt.Println(setup.RenderError(err))
			os.Exit(1)
		}
	case "", "serve":
		var claimer web.Claimer
		if service != nil {
			claimer = service
		}
		if err := web.NewServer(cfg.StatusAddr, manager, claimer, logger).Start(ctx); err != nil {
			logger.Fatal("status server failed", zap.Error(err))
		}
	default:
		logger.Fatal("unknown command", zap.String("command", flag.Arg(0)))
	}
}

// newService wires the conversion service. It returns a nil service when no treasury is known.
func newService(cfg config.Config, manager *session.Manager, eth *ethclient.Client, l *zap.Logger) (*conversion.Service, func(), error) {
	noop := func() {}
	balances := conversion.NewSessionBalances(manager, query.New(eth, l), l)
	opts := []conversion.Option{conversion.WithSession(manager), conversion.WithNetwork(cfg.Network)}

	if !cfg.DirectSigner {
		if cfg.TreasuryAddress == "" {
			l.Warn("treasury_address not set, claims are disabled")
			return nil, noop, nil
		}
		transfer := conversion.NewDelegatedTransferer(cfg.ClaimEndpoint, cfg.TransferTimeout)
		return conversion.NewService(cfg.TreasuryAddress, balances, transfer, l, opts...), noop, nil
	}

	l.Warn("direct signer mode keeps the treasury key on this machine, prefer the backend endpoint")

	journal, err := claims.Open(filepath.Join(cfg.WALDir, "claims"))
	if err != nil {
		return nil, noop, err
	}
	t, err := treasury.New(cfg.TreasuryKey, eth, l,
		treasury.WithJournal(journal),
		treasury.WithConfirmTimeout(cfg.ConfirmTimeout),
		treasury.WithNetwork(cfg.Network),
	)
	if err != nil {
		_ = journal.Close()
		return nil, noop, err
	}

	addr := cfg.TreasuryAddress
	if addr == "" {
		addr = t.Address()
	}
	transfer, err := conversion.NewDirectTransferer(t, addr)
	if err != nil {
		_ = journal.Close()
		return nil, noop, err
	}
	closeJournal := func() { _ = journal.Close() }
	return conversion.NewService(addr, balances, transfer, l, opts...), closeJournal, nil
}

func claim(ctx context.Context, manager *session.Manager, service *conversion.Service, arg string) error {
	if service == nil {
		return errors.Wrap(domain.ErrTreasuryNotConfigured, "set treasury_address or direct_signer in the config")
	}
	points, err := setup.ParsePoints(arg)
	if err != nil {
		return errors.Wrapf(err, "karma points %q", arg)
	}

	if !manager.IsConnected() {
		if err := manager.Connect(ctx); err != nil {
			return err
		}
	}
	state := manager.State()
	if state.Address == nil {
		return errors.New("wallet session has no address")
	}

	ok, err := setup.ConfirmClaim(points, *state.Address, service.Network())
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("claim cancelled")
	}

	receipt, err := service.Claim(ctx, domain.ConversionRequest{Points: points, Destination: *state.Address})
	if err != nil {
		return err
	}
	fmt.Println(setup.RenderReceipt(receipt, service.Network()))
	return nil
}
