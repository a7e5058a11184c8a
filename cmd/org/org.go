// Package org implements the org sub-commands.
package org

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shutter-network/SealedBidRFP/cmd/common"
	"github.com/shutter-network/SealedBidRFP/config"
	"github.com/shutter-network/SealedBidRFP/log"
	"github.com/shutter-network/SealedBidRFP/orchestrator"
)

var (
	// Path to the configuration file.
	configFile string

	orgCmd = &cobra.Command{
		Use:   "org",
		Short: "Organization management",
	}

	createCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new organization",
		Args:  cobra.ExactArgs(1),
		Run:   runCreate,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List all organizations",
		Run:   runList,
	}
)

func setup(ctx context.Context) (*orchestrator.Orchestrator, func()) {
	cfg, err := config.InitConfig(configFile)
	if err != nil {
		log.NewDefaultLogger("init").Error("init failed", "error", err)
		os.Exit(1)
	}
	if err := common.Init(cfg); err != nil {
		log.NewDefaultLogger("init").Error("init failed", "error", err)
		os.Exit(1)
	}

	workflows, ledgerClient, err := common.NewOrchestrator(ctx, cfg, func(msg string) {
		fmt.Fprintln(os.Stderr, msg)
	})
	if err != nil {
		common.RootLogger().Error("wiring workflows failed", "error", err)
		os.Exit(1)
	}
	return workflows, ledgerClient.Close
}

func runCreate(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	workflows, cleanup := setup(ctx)
	defer cleanup()

	id, err := workflows.CreateOrganization(ctx, args[0])
	if err != nil {
		os.Exit(1)
	}
	fmt.Printf("organization %d created\n", id)
}

func runList(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	workflows, cleanup := setup(ctx)
	defer cleanup()

	views, err := workflows.Organizations(ctx)
	if err != nil {
		os.Exit(1)
	}
	out, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// Register registers the org sub-commands.
func Register(parentCmd *cobra.Command) {
	orgCmd.PersistentFlags().StringVar(&configFile, "config", "./config/local.yml", "path to the config.yml file")
	orgCmd.AddCommand(createCmd, listCmd)
	parentCmd.AddCommand(orgCmd)
}
