package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goran-ethernal/ContractIndexor/internal/accounts"
	"github.com/goran-ethernal/ContractIndexor/internal/cis2"
	"github.com/goran-ethernal/ContractIndexor/internal/common"
	"github.com/goran-ethernal/ContractIndexor/internal/config"
	"github.com/goran-ethernal/ContractIndexor/internal/db"
	"github.com/goran-ethernal/ContractIndexor/internal/importer"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/internal/metrics"
	"github.com/goran-ethernal/ContractIndexor/internal/node"
	"github.com/goran-ethernal/ContractIndexor/internal/notify"
	"github.com/goran-ethernal/ContractIndexor/internal/store"
	"github.com/goran-ethernal/ContractIndexor/internal/store/migrations"
	"github.com/goran-ethernal/ContractIndexor/internal/token"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║         ContractIndexor v%s            ║
║   Smart Contract Aggregate Indexer        ║
╚═══════════════════════════════════════════╝
`
	shutdownTimeout = 10 * time.Second
)

var (
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "ContractIndexor - smart contract aggregate indexer",
	Long: `ContractIndexor imports finalized blocks from a node gateway and maintains
contracts, their events and balance snapshots, CIS-2 tokens and per-account token
balances in SQLite, one committed unit of work per block height.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runIndexer,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the contract importer (default)",
	RunE:  runIndexer,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := migrations.RunMigrations(cfg.DB.Path); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		database, err := db.NewSQLiteDBFromConfig(cfg.DB)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		applied, err := db.AppliedMigrations(database)
		if err != nil {
			return err
		}
		fmt.Printf("%s is at schema version %d:\n", cfg.DB.Path, len(applied))
		for _, id := range applied {
			fmt.Printf("  - %s\n", id)
		}
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := config.JSONSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(schema))
		return nil
	},
}

var tokenAddressCmd = &cobra.Command{
	Use:   "token-address <index> <subindex> <token-id-hex>",
	Short: "Print the base58check address of a CIS-2 token",
	Args:  cobra.ExactArgs(3), //nolint:mnd
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := common.ParseUint64orHex(args[0])
		if err != nil {
			return fmt.Errorf("invalid contract index %q: %w", args[0], err)
		}
		subindex, err := common.ParseUint64orHex(args[1])
		if err != nil {
			return fmt.Errorf("invalid contract subindex %q: %w", args[1], err)
		}
		address, err := cis2.EncodeTokenAddress(index, subindex, args[2])
		if err != nil {
			return err
		}
		fmt.Println(address)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(runCmd, migrateCmd, schemaCmd, tokenAddressCmd)
}

func runIndexer(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	// Load configuration
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.NewComponentLoggerFromConfig(common.ComponentImporter, cfg.Logging)

	// Run store migrations
	log.Info("Running database migrations...")
	if err := migrations.RunMigrations(cfg.DB.Path); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.NewSQLiteDBFromConfig(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer database.Close()

	st := store.New(database, logger.NewComponentLoggerFromConfig(common.ComponentStore, cfg.Logging))

	dbMaintenance := db.NewMaintenanceCoordinator(
		cfg.DB.Path,
		database,
		cfg.Maintenance,
		logger.NewComponentLoggerFromConfig(common.ComponentMaintenance, cfg.Logging),
	)

	// Node gateway
	log.Info("Connecting to node gateway...")
	nodeClient, err := node.NewClient(ctx, cfg.Node,
		logger.NewComponentLoggerFromConfig(common.ComponentNodeClient, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create node client: %w", err)
	}
	defer nodeClient.Close()
	log.Infof("Connected to node gateway: %s", cfg.Node.RPCURL)

	// Account lookup, optionally backed by Redis
	var accountCache *redis.Client
	if cfg.Accounts.Redis != nil {
		accountCache = redis.NewClient(cfg.Accounts.Redis.Options())
		defer accountCache.Close()

		if err := accountCache.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Accounts.Redis.Address, err)
		}
	}
	resolver := accounts.NewResolver(st.Reader(), accountCache, cfg.Accounts,
		logger.NewComponentLoggerFromConfig(common.ComponentAccountResolver, cfg.Logging))
	defer resolver.Close()

	// Balance changed notifications
	publisher, err := notify.NewPublisher(cfg.Notifications,
		logger.NewComponentLoggerFromConfig(common.ComponentNotifier, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create notification publisher: %w", err)
	}
	dispatcher := notify.NewDispatcher(publisher, cfg.Notifications.Workers,
		logger.NewComponentLoggerFromConfig(common.ComponentNotifier, cfg.Logging))
	defer func() {
		if err := dispatcher.Close(); err != nil {
			log.Warnf("Failed to close notification publisher: %v", err)
		}
	}()

	aggregator := token.NewAggregator(resolver, dispatcher,
		logger.NewComponentLoggerFromConfig(common.ComponentTokenAggregator, cfg.Logging))

	imp, err := importer.New(cfg.Import, nodeClient, st, aggregator, dbMaintenance,
		logger.NewComponentLoggerFromConfig(common.ComponentImporter, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create importer: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := dbMaintenance.Start(gctx); err != nil {
		return fmt.Errorf("failed to start maintenance: %w", err)
	}
	defer func() {
		if err := dbMaintenance.Stop(); err != nil {
			log.Warnf("Failed to stop maintenance: %v", err)
		}
	}()

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics, imp, log)
		if err := metricsServer.Start(gctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsServer.Stop(shutdownCtx)
		})
		log.Infof("Metrics server started on %s%s", cfg.Metrics.ListenAddress, cfg.Metrics.Path)
	}

	log.Info("Starting ContractIndexor...")

	g.Go(func() error {
		return imp.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("ContractIndexor stopped", "state", imp.State().String(), "error", err)
		return fmt.Errorf("importer failed: %w", err)
	}

	log.Info("ContractIndexor stopped successfully")
	return nil
}
