package app

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/polyarb/polyarb/internal/account"
	"github.com/polyarb/polyarb/internal/arbitrage"
	"github.com/polyarb/polyarb/internal/circuitbreaker"
	"github.com/polyarb/polyarb/internal/discovery"
	"github.com/polyarb/polyarb/internal/execution"
	"github.com/polyarb/polyarb/internal/follow"
	"github.com/polyarb/polyarb/internal/markets"
	"github.com/polyarb/polyarb/internal/orderbook"
	"github.com/polyarb/polyarb/internal/ratelimiter"
	"github.com/polyarb/polyarb/internal/storage"
	"github.com/polyarb/polyarb/internal/whale"
	"github.com/polyarb/polyarb/pkg/cache"
	"github.com/polyarb/polyarb/pkg/config"
	"github.com/polyarb/polyarb/pkg/healthprobe"
	"github.com/polyarb/polyarb/pkg/httpserver"
	"github.com/polyarb/polyarb/pkg/types"
	"github.com/polyarb/polyarb/pkg/wallet"
	"github.com/polyarb/polyarb/pkg/websocket"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Initialize components
	healthChecker := setupHealthChecker()

	// Setup cache
	marketCache, err := setupCache(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	discoveryService := setupDiscoveryService(cfg, logger, marketCache, opts)
	wsPool := setupWebSocketPool(cfg, logger)
	obManager := setupOrderbookManager(logger, wsPool)

	// Setup HTTP server (needs orderbook manager and discovery service)
	httpServer := setupHTTPServer(cfg, logger, healthChecker, obManager, discoveryService)

	// Setup storage
	arbStorage, err := setupStorage(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	// Setup arbitrage detector
	arbDetector := setupArbitrageDetector(cfg, logger, obManager, discoveryService, arbStorage, marketCache)

	// Setup per-account credential/state lifecycle
	accountManager, err := setupAccountManager(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup account manager: %w", err)
	}

	// Setup executor
	executor, err := setupExecutor(ctx, cfg, logger, arbDetector, accountManager)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup executor: %w", err)
	}

	// Setup Data-API gateway, whale discovery, and follow-trade runners
	gateway := setupGateway(cfg, logger)

	whaleDiscovery, err := setupWhaleDiscovery(cfg, logger, gateway)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup whale discovery: %w", err)
	}

	followRunners, autoTrader := setupFollowTraders(cfg, logger, gateway, obManager)

	return &App{
		cfg:              cfg,
		logger:           logger,
		healthChecker:    healthChecker,
		httpServer:       httpServer,
		discoveryService: discoveryService,
		wsPool:           wsPool,
		obManager:        obManager,
		arbDetector:      arbDetector,
		executor:         executor,
		storage:          arbStorage,
		accountManager:   accountManager,
		whaleDiscovery:   whaleDiscovery,
		followRunners:    followRunners,
		autoTrader:       autoTrader,
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

func setupHealthChecker() *healthprobe.HealthChecker {
	return healthprobe.New()
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
	obManager *orderbook.Manager,
	discoveryService *discovery.Service,
) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:             cfg.HTTPPort,
		Logger:           logger,
		HealthChecker:    healthChecker,
		OrderbookManager: obManager,
		DiscoveryService: discoveryService,
	})
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000, // 10x expected max items (1000 markets)
		MaxCost:     1000,  // Maximum 1000 items in cache
		BufferItems: 64,    // Buffer size for Get operations
		Logger:      logger,
	})
}

func setupDiscoveryService(cfg *config.Config, logger *zap.Logger, marketCache cache.Cache, opts *Options) *discovery.Service {
	discoveryClient := discovery.NewClient(cfg.PolymarketGammaURL, logger)
	return discovery.New(&discovery.Config{
		Client:            discoveryClient,
		Cache:             marketCache,
		PollInterval:      cfg.DiscoveryPollInterval,
		MarketLimit:       cfg.DiscoveryMarketLimit,
		MaxMarketDuration: cfg.MaxMarketDuration,
		Logger:            logger,
		SingleMarket:      opts.SingleMarket,
	})
}

func setupWebSocketPool(cfg *config.Config, logger *zap.Logger) *websocket.Pool {
	return websocket.NewPool(websocket.PoolConfig{
		Size:                  cfg.WSPoolSize,
		WSUrl:                 cfg.PolymarketWSURL,
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	})
}

func setupOrderbookManager(logger *zap.Logger, wsPool *websocket.Pool) *orderbook.Manager {
	return orderbook.New(&orderbook.Config{
		Logger:         logger,
		MessageChannel: wsPool.MessageChan(),
	})
}

func setupStorage(cfg *config.Config, logger *zap.Logger) (arbitrage.Storage, error) {
	if cfg.StorageMode == "postgres" {
		pgStorage, err := storage.NewPostgresStorage(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	}

	return storage.NewConsoleStorage(logger), nil
}

func setupArbitrageDetector(
	cfg *config.Config,
	logger *zap.Logger,
	obManager *orderbook.Manager,
	discoveryService *discovery.Service,
	arbStorage arbitrage.Storage,
	appCache cache.Cache,
) *arbitrage.Detector {
	// Create metadata client for fetching tick size and min order size
	metadataClient := markets.NewMetadataClient()
	cachedMetadataClient := markets.NewCachedMetadataClient(metadataClient, appCache)

	return arbitrage.New(
		arbitrage.Config{
			Threshold:     cfg.ArbThreshold,
			MinTradeSize:  cfg.ArbMinTradeSize,
			MaxTradeSize:  cfg.ArbMaxTradeSize,
			TakerFee:      cfg.ArbTakerFee,
			ScanInterval:  cfg.ArbScanInterval,
			MaxMarkets:    cfg.ArbScanMaxMarkets,
			MinVolume24hr: cfg.ArbScanMinVolume24hr,
			Logger:        logger,
		},
		obManager,
		discoveryService,
		arbStorage,
		cachedMetadataClient,
	)
}

// setupAccountManager loads the on-disk account tree and, on first run,
// bootstraps the default account from the legacy single-key environment
// variables so existing single-account deployments keep working without
// manual account setup (§9 cyclic-dependency resolution).
func setupAccountManager(cfg *config.Config, logger *zap.Logger) (*account.Manager, error) {
	mgr, err := account.New(&account.Config{StateDir: cfg.StateDir, Logger: logger})
	if err != nil {
		return nil, err
	}

	if _, getErr := mgr.Get(types.DefaultAccountID); getErr != nil {
		privateKeyHex := os.Getenv("POLYMARKET_PRIVATE_KEY")
		if privateKeyHex == "" {
			logger.Warn("account-manager-no-default-account",
				zap.String("note", "POLYMARKET_PRIVATE_KEY not set; create an account via the accounts API before trading"))
			return mgr, nil
		}

		sigType, _ := strconv.Atoi(os.Getenv("POLY_SIGNATURE_TYPE"))
		if _, createErr := mgr.EnsureDefault(types.AccountSetup{
			PrivateKeyHex: privateKeyHex,
			ProxyAddress:  os.Getenv("POLY_PROXY_ADDRESS"),
			SignatureType: sigType,
		}); createErr != nil {
			return nil, fmt.Errorf("bootstrap default account: %w", createErr)
		}
		logger.Info("account-manager-bootstrapped-default-account")
	}

	return mgr, nil
}

// setupGateway wires a Data-API client, rate-limited the same way every
// other exchange call is, behind the narrow fetcher interfaces whale
// discovery and follow trading depend on.
func setupGateway(cfg *config.Config, logger *zap.Logger) *discovery.Gateway {
	limiter := ratelimiter.New(ratelimiter.DefaultConfig(), logger)
	dataClient := discovery.NewDataClient(cfg.PolymarketDataURL, limiter, logger)
	return discovery.NewGateway(dataClient, 2000, logger)
}

func setupWhaleDiscovery(cfg *config.Config, logger *zap.Logger, gateway *discovery.Gateway) (*whale.Discovery, error) {
	walletStore, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 100000,
		MaxCost:     10000,
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create wallet cache: %w", err)
	}

	return whale.New(whale.Config{
		MinTradeUSDC:        cfg.WhaleMinTradeUSDC,
		MinTradesObserved:   cfg.WhaleMinTradesObserved,
		MinPnl:              cfg.WhaleMinPnl,
		MinWinRate:          cfg.WhaleMinWinRate,
		MinVolume:           cfg.WhaleMinVolume,
		AnalysisInterval:    cfg.WhaleAnalysisInterval,
		MaxAnalysisPerBatch: cfg.WhaleMaxBatch,
		IndexPath:           cfg.StateDir + "/whale_cache.json",
		Fetcher:             gateway,
		Cache:               whale.NewWalletCache(walletStore),
		Logger:              logger,
	}), nil
}

// setupFollowTraders builds one Runner per configured target wallet,
// sharing a single paper-mode, copy-style AutoTrader that queues
// suggestions; the orderbook cache is passed in but copy style does not read it.
func setupFollowTraders(
	cfg *config.Config,
	logger *zap.Logger,
	gateway *discovery.Gateway,
	obManager *orderbook.Manager,
) ([]*follow.Runner, *follow.AutoTrader) {
	if len(cfg.FollowTargetWallets) == 0 {
		return nil, nil
	}

	autoTrader := follow.NewAutoTrader(follow.AutoTraderConfig{
		Mode:  "queue",
		Style: "copy",
		Paper: true,
	}, obManager, logger)

	runners := make([]*follow.Runner, 0, len(cfg.FollowTargetWallets))
	for _, targetWallet := range cfg.FollowTargetWallets {
		pollMs := int(cfg.FollowPollInterval / 1_000_000) // Duration is ns; convert to ms
		runner := follow.NewRunner(targetWallet, follow.RunnerConfig{
			TargetWallet: targetWallet,
			PollMs:       pollMs,
		}, gateway, logger)
		runner.OnSuggestion(autoTrader.HandleSuggestion)
		runners = append(runners, runner)
	}

	return runners, autoTrader
}

func setupExecutor(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	arbDetector *arbitrage.Detector,
	accountManager *account.Manager,
) (executor *execution.Executor, err error) {
	// Don't create executor in dry-run mode
	if cfg.ExecutionMode == "dry-run" {
		logger.Info("executor-disabled-dry-run-mode",
			zap.String("mode", cfg.ExecutionMode),
			zap.String("note", "opportunities will be detected and logged only"))
		return nil, nil
	}

	// Create circuit breaker if enabled
	var breaker *circuitbreaker.BalanceCircuitBreaker
	if cfg.CircuitBreakerEnabled {
		// Resolve the default account's signing key for balance checking
		setup, credErr := accountManager.Credentials(types.DefaultAccountID)
		if credErr != nil {
			logger.Warn("circuit-breaker-disabled-no-private-key",
				zap.String("note", "default account has no credentials, circuit breaker disabled"),
				zap.Error(credErr))
		} else {
			privateKeyHex := setup.PrivateKeyHex
			// Parse private key to derive address
			privateKey, parseErr := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
			if parseErr != nil {
				logger.Warn("circuit-breaker-disabled-invalid-key",
					zap.Error(parseErr))
			} else {
				publicKey := privateKey.Public()
				publicKeyECDSA, ok := publicKey.(*ecdsa.PublicKey)
				if !ok {
					logger.Warn("circuit-breaker-disabled-key-cast-failed")
				} else {
					address := crypto.PubkeyToAddress(*publicKeyECDSA)

					// Create wallet client for balance checking
					// Use Polygon mainnet RPC endpoint - could be made configurable
					rpcURL := os.Getenv("POLYGON_RPC_URL")
					if rpcURL == "" {
						rpcURL = "https://polygon-rpc.com"
					}

					walletClient, walletErr := wallet.NewClient(rpcURL, logger)
					if walletErr != nil {
						logger.Warn("circuit-breaker-disabled-wallet-client-failed",
							zap.Error(walletErr))
					} else {
						// Create circuit breaker
						breaker, err = circuitbreaker.New(&circuitbreaker.Config{
							CheckInterval:   cfg.CircuitBreakerCheckInterval,
							TradeMultiplier: cfg.CircuitBreakerTradeMultiplier,
							MinAbsolute:     cfg.CircuitBreakerMinAbsolute,
							HysteresisRatio: cfg.CircuitBreakerHysteresisRatio,
							WalletClient:    walletClient,
							Address:         address,
							Logger:          logger,
						})
						if err != nil {
							return nil, fmt.Errorf("create circuit breaker: %w", err)
						}

						// Start background monitoring
						breaker.Start(ctx)

						logger.Info("circuit-breaker-enabled",
							zap.Duration("check_interval", cfg.CircuitBreakerCheckInterval),
							zap.Float64("trade_multiplier", cfg.CircuitBreakerTradeMultiplier),
							zap.Float64("min_absolute", cfg.CircuitBreakerMinAbsolute),
							zap.Float64("hysteresis_ratio", cfg.CircuitBreakerHysteresisRatio))
					}
				}
			}
		}
	}

	executor = execution.New(&execution.Config{
		Mode:               cfg.ExecutionMode,
		MaxPositionSize:    cfg.ExecutionMaxPositionSize,
		Logger:             logger,
		OpportunityChannel: arbDetector.OpportunityChan(),
		CircuitBreaker:     breaker,
	})

	return executor, nil
}
