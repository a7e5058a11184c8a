// Package serve implements the serve sub-command.
package serve

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shutter-network/SealedBidRFP/api"
	"github.com/shutter-network/SealedBidRFP/cmd/common"
	"github.com/shutter-network/SealedBidRFP/config"
	"github.com/shutter-network/SealedBidRFP/log"
	"github.com/shutter-network/SealedBidRFP/metrics"
	"github.com/shutter-network/SealedBidRFP/storage/ledger"
)

const moduleName = "api"

var (
	// Path to the configuration file.
	configFile string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the sealed-bid RFP API",
		Run: func(cmd *cobra.Command, args []string) {
			RunWithConfig(configFile)
		},
	}
)

// RunWithConfig runs the API server with the given config file until
// SIGINT or SIGTERM.
func RunWithConfig(configFile string) {
	// Initialize config.
	cfg, err := config.InitConfig(configFile)
	if err != nil {
		log.NewDefaultLogger("init").Error("init failed",
			"error", err,
		)
		os.Exit(1)
	}

	// Initialize common environment.
	if err = common.Init(cfg); err != nil {
		log.NewDefaultLogger("init").Error("init failed",
			"error", err,
		)
		os.Exit(1)
	}
	logger := common.RootLogger()

	if cfg.Server == nil {
		logger.Error("server config not provided")
		os.Exit(1)
	}

	service, err := Init(cfg)
	if err != nil {
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics != nil {
		promService, err := metrics.NewPullService(cfg.Metrics.PullEndpoint, logger)
		if err != nil {
			logger.Error("failed to initialize metrics", "err", err)
			os.Exit(1)
		}
		go func() {
			if err := promService.Run(ctx); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics service stopped", "err", err)
			}
		}()
	}

	if err := service.Run(ctx); err != nil && err != http.ErrServerClosed {
		logger.Error("shutting down", "error", err)
		os.Exit(1)
	}
}

// Init initializes the API service.
func Init(cfg *config.Config) (*Service, error) {
	logger := common.RootLogger()

	service, err := NewService(cfg)
	if err != nil {
		logger.Error("service failed to start",
			"error", err,
		)
		return nil, err
	}
	return service, nil
}

// Service is the sealed-bid RFP API service.
type Service struct {
	server string
	logger *log.Logger
	ledger *ledger.Client
	router http.Handler
}

// NewService creates a new API service.
func NewService(cfg *config.Config) (*Service, error) {
	logger := common.RootLogger().WithModule(moduleName)

	status := &api.StatusLine{}
	workflows, ledgerClient, err := common.NewOrchestrator(context.Background(), cfg, status.Set)
	if err != nil {
		return nil, err
	}

	handler := api.NewHandler(workflows, status, logger)

	return &Service{
		server: cfg.Server.Endpoint,
		logger: logger,
		ledger: ledgerClient,
		router: handler.Router(),
	}, nil
}

// Run starts the API service and blocks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	defer s.ledger.Close()

	server := &http.Server{
		Addr:           s.server,
		Handler:        s.router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return common.RunServer(ctx, server, s.logger)
}

// Register registers the serve sub-command.
func Register(parentCmd *cobra.Command) {
	serveCmd.Flags().StringVar(&configFile, "config", "./config/local.yml", "path to the config.yml file")
	parentCmd.AddCommand(serveCmd)
}
