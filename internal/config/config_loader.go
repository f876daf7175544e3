package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dappnode/staking-pool-manager/internal/application/domain"
	"github.com/dappnode/staking-pool-manager/internal/logger"
)

type Config struct {
	Network              string
	BeaconEndpoint       string
	LedgerEndpoint       string
	KeyStoreEndpoint     string
	AccessControlURL     string
	NotifierURL          string
	DBPath               string
	TreasuryAddress      common.Address
	GlobalFee            uint64
	OperatorRewardsShare uint64
	PollInterval         time.Duration
}

func LoadConfig() Config {
	network := strings.ToLower(os.Getenv("NETWORK"))
	if network == "" {
		network = "hoodi" // default
	}
	if network != "hoodi" && network != "holesky" && network != "mainnet" && network != "gnosis" {
		logger.Fatal("Unknown network: %s", network)
	}

	// Build the dynamic endpoints
	beaconEndpoint := fmt.Sprintf("http://beacon-chain.%s.dncore.dappnode:3500", network)
	ledgerEndpoint := "http://share-ledger.dappnode:8080"
	keyStoreEndpoint := "http://keystore.dappnode:9000"
	accessControlURL := "http://access-control.dappnode:8081"
	notifierURL := "http://notifier.dappnode:8080"

	// Allow override via environment variables
	if env := os.Getenv("BEACON_ENDPOINT"); env != "" {
		beaconEndpoint = env
	}
	if env := os.Getenv("LEDGER_ENDPOINT"); env != "" {
		ledgerEndpoint = env
	}
	if env := os.Getenv("KEYSTORE_ENDPOINT"); env != "" {
		keyStoreEndpoint = env
	}
	if env := os.Getenv("ACCESS_CONTROL_URL"); env != "" {
		accessControlURL = env
	}
	if env := os.Getenv("NOTIFIER_URL"); env != "" {
		notifierURL = env
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "staking-pool.db"
	}

	treasuryHex := os.Getenv("TREASURY_ADDRESS")
	if !common.IsHexAddress(treasuryHex) {
		logger.Fatal("TREASURY_ADDRESS is not a valid address: %q", treasuryHex)
	}

	globalFee := parseFeeEnv("GLOBAL_FEE", 10000)                 // 10% of balance growth
	operatorShare := parseFeeEnv("OPERATOR_REWARDS_SHARE", 50000) // half of the fee to operators

	pollInterval := 5 * time.Minute
	if env := os.Getenv("POLL_INTERVAL"); env != "" {
		d, err := time.ParseDuration(env)
		if err != nil {
			logger.Fatal("Invalid POLL_INTERVAL %q: %v", env, err)
		}
		pollInterval = d
	}

	return Config{
		Network:              network,
		BeaconEndpoint:       beaconEndpoint,
		LedgerEndpoint:       ledgerEndpoint,
		KeyStoreEndpoint:     keyStoreEndpoint,
		AccessControlURL:     accessControlURL,
		NotifierURL:          notifierURL,
		DBPath:               dbPath,
		TreasuryAddress:      common.HexToAddress(treasuryHex),
		GlobalFee:            globalFee,
		OperatorRewardsShare: operatorShare,
		PollInterval:         pollInterval,
	}
}

// parseFeeEnv reads a fee fraction in parts of domain.FeeBase.
func parseFeeEnv(name string, def uint64) uint64 {
	env := os.Getenv(name)
	if env == "" {
		return def
	}
	v, err := strconv.ParseUint(env, 10, 64)
	if err != nil || v > domain.FeeBase {
		logger.Fatal("%s must be an integer in [0, %d], got %q", name, domain.FeeBase, env)
	}
	return v
}
