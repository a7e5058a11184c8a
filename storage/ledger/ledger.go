// Package ledger is a typed client for the sealed-bid RFP contract. The
// contract is the sole source of truth for RFP, organization and bid
// state; this client holds no caches and no mutation rights of its own.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/shutter-network/SealedBidRFP/config"
	"github.com/shutter-network/SealedBidRFP/log"
	"github.com/shutter-network/SealedBidRFP/metrics"
)

const moduleName = "ledger"

var (
	// ErrUnavailable means the chain node could not be reached or did not
	// answer in time.
	ErrUnavailable = errors.New("ledger: unavailable")
	// ErrRejected means the transaction was never handed to the chain:
	// no signer is configured or signing was refused.
	ErrRejected = errors.New("ledger: transaction rejected")
	// ErrReverted means the contract refused the operation. Its message is
	// opaque to this client.
	ErrReverted = errors.New("ledger: transaction reverted")
)

// RFP is one sealed-bid request for proposal as stored on the ledger.
type RFP struct {
	ID                 uint64
	Creator            ethCommon.Address
	Title              string
	Description        string
	SubmissionDeadline uint64
	RevealDeadline     uint64
	EncryptionKey      string
	BidCount           uint64
	OrganizationID     uint64
}

// Bid is one sealed submission against one RFP.
type Bid struct {
	RFPID        uint64
	Index        uint64
	Bidder       ethCommon.Address
	EncryptedBid hexutil.Bytes
	Revealed     bool
	PlaintextBid string
}

// HasCiphertext reports whether an encrypted payload was ever stored for
// this bid. Empty bytes are the sentinel for "never encrypted".
func (b *Bid) HasCiphertext() bool {
	return len(b.EncryptedBid) > 0
}

// Organization is a named grouping of RFPs.
type Organization struct {
	ID     uint64
	Name   string
	RFPIDs []uint64
}

// Client wraps one JSON-RPC connection to the RFP contract. Reads work on
// any connection; writes require a configured signing key and always await
// on-chain confirmation before reporting success.
type Client struct {
	eth         *ethclient.Client
	contract    *bind.BoundContract
	signer      *bind.TransactOpts
	confirmWait time.Duration
	logger      *log.Logger
	metrics     metrics.WorkflowMetrics
}

// NewClient connects to the configured chain node and binds the contract.
func NewClient(ctx context.Context, cfg *config.LedgerConfig, logger *log.Logger) (*Client, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %s", ErrUnavailable, cfg.RPC, err)
	}

	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("ledger: parsing contract ABI: %w", err)
	}
	contract := bind.NewBoundContract(ethCommon.HexToAddress(cfg.ContractAddress), parsed, client, client, client)

	var signer *bind.TransactOpts
	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("ledger: parsing private key: %w", err)
		}
		signer, err = bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.ChainID))
		if err != nil {
			return nil, fmt.Errorf("ledger: building transactor: %w", err)
		}
	}

	return &Client{
		eth:         client,
		contract:    contract,
		signer:      signer,
		confirmWait: cfg.ConfirmationTimeout,
		logger:      logger.WithModule(moduleName),
		metrics:     metrics.NewDefaultWorkflowMetrics("sealedbid"),
	}, nil
}

// Close tears down the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ReadOnly reports whether the client can only read.
func (c *Client) ReadOnly() bool {
	return c.signer == nil
}

// Signer returns the transaction sender address, or the zero address for a
// read-only client.
func (c *Client) Signer() ethCommon.Address {
	if c.signer == nil {
		return ethCommon.Address{}
	}
	return c.signer.From
}

// RFPCount returns the total number of RFPs ever created.
func (c *Client) RFPCount(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "rfpCount")
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Uint64(), nil
}

// GetRFP fetches one RFP record.
func (c *Client) GetRFP(ctx context.Context, id uint64) (*RFP, error) {
	out, err := c.call(ctx, "rfps", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	return &RFP{
		ID:                 id,
		Creator:            out[0].(ethCommon.Address),
		Title:              out[1].(string),
		Description:        out[2].(string),
		SubmissionDeadline: out[3].(*big.Int).Uint64(),
		RevealDeadline:     out[4].(*big.Int).Uint64(),
		EncryptionKey:      out[5].(string),
		BidCount:           out[6].(*big.Int).Uint64(),
		OrganizationID:     out[7].(*big.Int).Uint64(),
	}, nil
}

// GetBid fetches one bid of one RFP by index.
func (c *Client) GetBid(ctx context.Context, rfpID, index uint64) (*Bid, error) {
	out, err := c.call(ctx, "bids", new(big.Int).SetUint64(rfpID), new(big.Int).SetUint64(index))
	if err != nil {
		return nil, err
	}
	return &Bid{
		RFPID:        rfpID,
		Index:        index,
		Bidder:       out[0].(ethCommon.Address),
		EncryptedBid: out[1].([]byte),
		Revealed:     out[2].(bool),
		PlaintextBid: out[3].(string),
	}, nil
}

// GetRFPEncryptionKey fetches the encryption key blob stored for an RFP.
func (c *Client) GetRFPEncryptionKey(ctx context.Context, rfpID uint64) (string, error) {
	out, err := c.call(ctx, "getRFPEncryptionKey", new(big.Int).SetUint64(rfpID))
	if err != nil {
		return "", err
	}
	return out[0].(string), nil
}

// OrganizationCount returns the total number of organizations.
func (c *Client) OrganizationCount(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "orgCount")
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Uint64(), nil
}

// OrganizationName fetches just the name of one organization.
func (c *Client) OrganizationName(ctx context.Context, id uint64) (string, error) {
	out, err := c.call(ctx, "orgs", new(big.Int).SetUint64(id))
	if err != nil {
		return "", err
	}
	return out[0].(string), nil
}

// GetOrganization fetches an organization with its RFP id list.
func (c *Client) GetOrganization(ctx context.Context, id uint64) (*Organization, error) {
	out, err := c.call(ctx, "getOrganization", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	rawIDs := out[1].([]*big.Int)
	ids := make([]uint64, len(rawIDs))
	for i, v := range rawIDs {
		ids[i] = v.Uint64()
	}
	return &Organization{
		ID:     id,
		Name:   out[0].(string),
		RFPIDs: ids,
	}, nil
}

// CreateRFP writes a new RFP and waits for confirmation.
func (c *Client) CreateRFP(ctx context.Context, title, description string, submissionDeadline, revealDeadline uint64, encryptionKey string, organizationID uint64) error {
	return c.transact(ctx, "createRFP",
		title,
		description,
		new(big.Int).SetUint64(submissionDeadline),
		new(big.Int).SetUint64(revealDeadline),
		encryptionKey,
		new(big.Int).SetUint64(organizationID),
	)
}

// SubmitBid writes a sealed bid and waits for confirmation.
func (c *Client) SubmitBid(ctx context.Context, rfpID uint64, ciphertext []byte) error {
	return c.transact(ctx, "submitBid", new(big.Int).SetUint64(rfpID), ciphertext)
}

// RevealAllBids reveals every bid of an RFP in one transaction. The
// contract requires exactly bidCount plaintexts in bid-index order.
func (c *Client) RevealAllBids(ctx context.Context, rfpID uint64, plaintexts []string) error {
	return c.transact(ctx, "revealAllBids", new(big.Int).SetUint64(rfpID), plaintexts)
}

// AddOrganization writes a new organization and waits for confirmation.
func (c *Client) AddOrganization(ctx context.Context, name string) error {
	return c.transact(ctx, "addOrganization", name)
}

func (c *Client) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	timer := c.metrics.LedgerTimer(method)
	defer timer.ObserveDuration()

	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		c.metrics.LedgerOperations(method, "failure").Inc()
		return nil, classify(err, method)
	}
	c.metrics.LedgerOperations(method, "success").Inc()
	return out, nil
}

func (c *Client) transact(ctx context.Context, method string, params ...interface{}) error {
	if c.signer == nil {
		return fmt.Errorf("%w: no signer configured", ErrRejected)
	}
	timer := c.metrics.LedgerTimer(method)
	defer timer.ObserveDuration()

	opts := *c.signer
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, method, params...)
	if err != nil {
		c.metrics.LedgerOperations(method, "failure").Inc()
		return classify(err, method)
	}
	c.logger.Info("transaction sent", "method", method, "tx", tx.Hash().Hex())

	// Never report success before the chain confirms the write.
	waitCtx, cancel := context.WithTimeout(ctx, c.confirmWait)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.eth, tx)
	if err != nil {
		c.metrics.LedgerOperations(method, "failure").Inc()
		return fmt.Errorf("%w: awaiting confirmation of %s: %s", ErrUnavailable, method, err)
	}
	if receipt.Status != ethTypes.ReceiptStatusSuccessful {
		c.metrics.LedgerOperations(method, "failure").Inc()
		return fmt.Errorf("%w: %s, tx %s", ErrReverted, method, tx.Hash().Hex())
	}
	c.metrics.LedgerOperations(method, "success").Inc()
	c.logger.Info("transaction confirmed", "method", method, "tx", tx.Hash().Hex(), "block", receipt.BlockNumber.Uint64())
	return nil
}

// classify maps a node/contract error onto the client's error taxonomy.
func classify(err error, method string) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert") {
		return fmt.Errorf("%w: %s: %s", ErrReverted, method, err)
	}
	return fmt.Errorf("%w: %s: %s", ErrUnavailable, method, err)
}
