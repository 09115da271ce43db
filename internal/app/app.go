package app

import (
	"context"
	"sync"

	"github.com/polyarb/polyarb/internal/account"
	"github.com/polyarb/polyarb/internal/arbitrage"
	"github.com/polyarb/polyarb/internal/discovery"
	"github.com/polyarb/polyarb/internal/execution"
	"github.com/polyarb/polyarb/internal/follow"
	"github.com/polyarb/polyarb/internal/orderbook"
	"github.com/polyarb/polyarb/internal/whale"
	"github.com/polyarb/polyarb/pkg/config"
	"github.com/polyarb/polyarb/pkg/healthprobe"
	"github.com/polyarb/polyarb/pkg/httpserver"
	"github.com/polyarb/polyarb/pkg/websocket"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg              *config.Config
	logger           *zap.Logger
	healthChecker    *healthprobe.HealthChecker
	httpServer       *httpserver.Server
	discoveryService *discovery.Service
	wsPool           *websocket.Pool
	obManager        *orderbook.Manager
	arbDetector      *arbitrage.Detector
	executor         *execution.Executor
	storage          arbitrage.Storage
	accountManager   *account.Manager
	whaleDiscovery   *whale.Discovery
	followRunners    []*follow.Runner
	autoTrader       *follow.AutoTrader
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

// Options holds application options.
type Options struct {
	SingleMarket string // For debugging: slug of single market to track
}
