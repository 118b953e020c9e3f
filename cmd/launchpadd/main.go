package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"

	"launchpad/config"
	"launchpad/core/state"
	"launchpad/integrations/ledger"
	"launchpad/integrations/staking"
	"launchpad/native/referral"
	"launchpad/native/sale"
	"launchpad/native/sale/settlement"
	"launchpad/observability"
	"launchpad/observability/logging"
	"launchpad/rpc"
	"launchpad/storage"
)

const (
	envEnv       = "LAUNCHPAD_ENV"
	rpcTokenEnv  = "LAUNCHPAD_RPC_TOKEN"
	memoryDBFlag = "memory-db"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memoryDB := flag.Bool(memoryDBFlag, false, "DEV ONLY: keep all state in memory")
	migrateReferrals := flag.Bool("migrate-referrals", false, "Rewrite legacy referral records in the current layout and exit")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envEnv))
	logger := logging.Setup("launchpadd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if token := strings.TrimSpace(os.Getenv(rpcTokenEnv)); token != "" {
		cfg.RPCAuthToken = token
	}

	var db storage.Database
	if *memoryDB {
		db = storage.NewMemDB()
	} else {
		db, err = storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
	}
	defer db.Close()

	manager := state.NewManager(db)

	joinFee, ok := new(big.Int).SetString(cfg.JoinFee, 10)
	if !ok || joinFee.Sign() < 0 {
		logger.Error("invalid join fee", "value", cfg.JoinFee)
		os.Exit(1)
	}
	registry := referral.NewRegistry(cfg.OwnerAccount, joinFee)
	registry.SetState(manager)

	if *migrateReferrals {
		migrated, err := registry.MigrateLegacyAccounts(0)
		if err != nil {
			logger.Error("referral migration failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("referral migration complete", "migrated", migrated)
		return
	}

	var fees [sale.Levels]uint64
	copy(fees[:], cfg.ReferralFees)
	engine := sale.NewEngine(cfg.OwnerAccount, fees)
	engine.SetState(manager)
	engine.SetReferralGraph(registry)

	pipeline := settlement.NewPipeline(engine, nil, nil, cfg.WrappedNativeToken, logger)
	pipeline.SetMembership(registry)

	if url := strings.TrimSpace(cfg.OracleURL); url != "" {
		oracle, err := staking.NewClient(url, pipeline, logger)
		if err != nil {
			logger.Error("failed to start staking oracle client", slog.Any("error", err))
			os.Exit(1)
		}
		defer oracle.Close()
		pipeline.SetOracle(oracle)
	}
	if url := strings.TrimSpace(cfg.LedgerURL); url != "" {
		tokens, err := ledger.NewClient(url, pipeline, logger)
		if err != nil {
			logger.Error("failed to start token ledger client", slog.Any("error", err))
			os.Exit(1)
		}
		defer tokens.Close()
		pipeline.SetLedger(tokens)
	}

	go func() {
		logger.Info("starting metrics server", "addr", cfg.MetricsAddress)
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
			logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()

	server := rpc.NewServer(engine, registry, pipeline, cfg.RPCAuthToken, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
