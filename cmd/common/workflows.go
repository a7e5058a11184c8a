package common

import (
	"context"

	"github.com/shutter-network/SealedBidRFP/bidcipher"
	"github.com/shutter-network/SealedBidRFP/config"
	"github.com/shutter-network/SealedBidRFP/orchestrator"
	"github.com/shutter-network/SealedBidRFP/storage/ledger"
	"github.com/shutter-network/SealedBidRFP/timelock"
)

// NewOrchestrator wires an orchestrator against the configured chain node
// and timelock key service. The returned ledger client must be closed by
// the caller.
func NewOrchestrator(ctx context.Context, cfg *config.Config, status func(string)) (*orchestrator.Orchestrator, *ledger.Client, error) {
	logger := RootLogger()

	ledgerClient, err := ledger.NewClient(ctx, cfg.Ledger, logger)
	if err != nil {
		return nil, nil, err
	}
	keyClient := timelock.NewClient(cfg.Shutter, logger)

	var batch uint64
	if cfg.Server != nil {
		batch = cfg.Server.ListBatchSize
	}
	workflows := orchestrator.New(orchestrator.Deps{
		Ledger:        ledgerClient,
		Keys:          keyClient,
		Cipher:        &bidcipher.Cipher{},
		Logger:        logger,
		Status:        status,
		ListBatchSize: batch,
	})
	return workflows, ledgerClient, nil
}
