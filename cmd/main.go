package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dappnode/staking-pool-manager/internal/adapters/admingate"
	"github.com/dappnode/staking-pool-manager/internal/adapters/beacon"
	"github.com/dappnode/staking-pool-manager/internal/adapters/keystore"
	"github.com/dappnode/staking-pool-manager/internal/adapters/ledger"
	"github.com/dappnode/staking-pool-manager/internal/adapters/notifier"
	"github.com/dappnode/staking-pool-manager/internal/adapters/sqlite"
	"github.com/dappnode/staking-pool-manager/internal/application/services"
	"github.com/dappnode/staking-pool-manager/internal/config"
	"github.com/dappnode/staking-pool-manager/internal/logger"
)

func main() {
	// Load config
	cfg := config.LoadConfig()
	logger.Info("Loaded config: network=%s, beaconEndpoint=%s, ledgerEndpoint=%s, keyStoreEndpoint=%s",
		cfg.Network, cfg.BeaconEndpoint, cfg.LedgerEndpoint, cfg.KeyStoreEndpoint)

	// Open persistence
	storage, err := sqlite.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		logger.Fatal("Failed to open storage at %s: %v", cfg.DBPath, err)
	}

	// Build collaborator adapters
	ledgerAdapter := ledger.NewLedgerAdapter(cfg.LedgerEndpoint)
	keyStoreAdapter := keystore.NewKeyStoreAdapter(cfg.KeyStoreEndpoint)
	adminGate := admingate.NewAdminGateAdapter(cfg.AccessControlURL)
	events := notifier.NewNotifier(cfg.NotifierURL, cfg.Network)

	// Assemble the engine
	registry := services.NewOperatorRegistry(storage)
	allocator := &services.Allocator{
		Registry: registry,
		KeyStore: keyStoreAdapter,
		Notifier: events,
	}

	oracle, err := beacon.NewBeaconOracle(cfg.BeaconEndpoint, allocator)
	if err != nil {
		logger.Fatal("Failed to initialize beacon oracle: %v", err)
	}

	rewards := &services.RewardDistributor{
		Ledger:   ledgerAdapter,
		Registry: registry,
		Notifier: events,
		Treasury: cfg.TreasuryAddress,
	}
	balance := &services.BalanceAggregator{Oracle: oracle}

	pool, err := services.NewPool(registry, allocator, rewards, balance,
		ledgerAdapter, adminGate, storage, cfg.GlobalFee, cfg.OperatorRewardsShare)
	if err != nil {
		logger.Fatal("Failed to build pool: %v", err)
	}
	if err := pool.Restore(context.Background()); err != nil {
		logger.Fatal("Failed to restore pool state: %v", err)
	}
	logger.Info("Restored %d operators, %d deposited validators",
		registry.Count(), pool.State().DepositedValidators)

	// Prepare context and WaitGroup for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	// Start the oracle sync loop in a goroutine
	logger.Info("Starting oracle sync every %s", cfg.PollInterval)
	oracleSync := &services.OracleSync{
		Oracle:       oracle,
		Pool:         pool,
		PollInterval: cfg.PollInterval,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		oracleSync.Run(ctx)
	}()

	// Handle graceful shutdown
	handleShutdown(cancel)

	// Wait for all services to stop
	wg.Wait()
	logger.Info("All services stopped. Shutting down.")
}

// handleShutdown listens for SIGINT/SIGTERM and cancels the context
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received signal: %s. Initiating shutdown...", sig)
		cancel()
	}()
}
