// Package rfp implements the rfp sub-commands for driving whole
// workflows from the command line.
package rfp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shutter-network/SealedBidRFP/cmd/common"
	"github.com/shutter-network/SealedBidRFP/config"
	"github.com/shutter-network/SealedBidRFP/log"
	"github.com/shutter-network/SealedBidRFP/orchestrator"
	"github.com/shutter-network/SealedBidRFP/timelock"
)

var (
	// Path to the configuration file.
	configFile string

	rfpCmd = &cobra.Command{
		Use:   "rfp",
		Short: "Sealed-bid RFP workflows",
	}

	createCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a new RFP with a fresh timelock identity",
		Run:   runCreate,
	}
	createTitle       string
	createDescription string
	createSubmission  string
	createReveal      string
	createOrg         uint64

	bidCmd = &cobra.Command{
		Use:   "bid <rfp-id>",
		Short: "Encrypt and submit a sealed bid",
		Args:  cobra.ExactArgs(1),
		Run:   runBid,
	}
	bidText string

	revealCmd = &cobra.Command{
		Use:   "reveal <rfp-id>",
		Short: "Decrypt and reveal all bids of an RFP",
		Args:  cobra.ExactArgs(1),
		Run:   runReveal,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List RFPs, newest first",
		Run:   runList,
	}
	listOrg int64
	listAll bool
)

// setup loads the config and wires an orchestrator whose status lines go
// to stderr. The returned cleanup must run before exit.
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

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// parseDeadline accepts UNIX seconds or an RFC3339 timestamp.
func parseDeadline(name, arg string) uint64 {
	if arg == "" {
		fmt.Fprintf(os.Stderr, "--%s is required\n", name)
		os.Exit(1)
	}
	if seconds, err := strconv.ParseUint(arg, 10, 64); err == nil {
		return seconds
	}
	ts, err := time.Parse(time.RFC3339, arg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "malformed %s %q: want UNIX seconds or RFC3339\n", name, arg)
		os.Exit(1)
	}
	return uint64(ts.Unix())
}

func parseID(arg string) uint64 {
	var id uint64
	if _, err := fmt.Sscanf(arg, "%d", &id); err != nil {
		fmt.Fprintf(os.Stderr, "malformed RFP id %q\n", arg)
		os.Exit(1)
	}
	return id
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func runCreate(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()
	workflows, cleanup := setup(ctx)
	defer cleanup()

	id, err := workflows.Create(ctx, orchestrator.CreateRequest{
		Title:              createTitle,
		Description:        createDescription,
		SubmissionDeadline: parseDeadline("submission-deadline", createSubmission),
		RevealDeadline:     parseDeadline("reveal-deadline", createReveal),
		OrganizationID:     createOrg,
	})
	if err != nil {
		os.Exit(1)
	}
	fmt.Printf("RFP %d created\n", id)
}

func runBid(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()
	workflows, cleanup := setup(ctx)
	defer cleanup()
	rfpID := parseID(args[0])

	ciphertext, err := workflows.EncryptBid(ctx, rfpID, bidText)
	if err != nil {
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "ciphertext: %s\n", ciphertext)

	index, err := workflows.SubmitBid(ctx, rfpID)
	if err != nil {
		os.Exit(1)
	}
	fmt.Printf("bid %d submitted for RFP %d\n", index, rfpID)
}

func runReveal(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()
	workflows, cleanup := setup(ctx)
	defer cleanup()
	rfpID := parseID(args[0])

	plaintexts, err := workflows.Reveal(ctx, rfpID)
	if errors.Is(err, timelock.ErrKeyNotReleased) {
		// Not a fault; the status line already told the user to retry.
		return
	}
	if err != nil {
		os.Exit(1)
	}
	printJSON(plaintexts)
}

func runList(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()
	workflows, cleanup := setup(ctx)
	defer cleanup()

	req := orchestrator.ListRequest{Refresh: true}
	if listOrg >= 0 {
		orgID := uint64(listOrg)
		req.OrganizationID = &orgID
	}

	for {
		listing, err := workflows.List(ctx, req)
		if err != nil {
			os.Exit(1)
		}
		printJSON(listing)
		if !listAll || !listing.HasMore {
			return
		}
		req.Refresh = false
	}
}

// Register registers the rfp sub-commands.
func Register(parentCmd *cobra.Command) {
	rfpCmd.PersistentFlags().StringVar(&configFile, "config", "./config/local.yml", "path to the config.yml file")

	createCmd.Flags().StringVar(&createTitle, "title", "", "RFP title")
	createCmd.Flags().StringVar(&createDescription, "description", "", "RFP description")
	createCmd.Flags().StringVar(&createSubmission, "submission-deadline", "", "submission deadline, UNIX seconds or RFC3339")
	createCmd.Flags().StringVar(&createReveal, "reveal-deadline", "", "reveal deadline, UNIX seconds or RFC3339")
	createCmd.Flags().Uint64Var(&createOrg, "org", 0, "owning organization id")

	bidCmd.Flags().StringVar(&bidText, "text", "", "bid plaintext")

	listCmd.Flags().Int64Var(&listOrg, "org", -1, "restrict the listing to one organization")
	listCmd.Flags().BoolVar(&listAll, "all", false, "walk every page instead of only the first")

	rfpCmd.AddCommand(createCmd, bidCmd, revealCmd, listCmd)
	parentCmd.AddCommand(rfpCmd)
}
