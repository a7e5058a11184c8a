// Package orchestrator sequences the sealed-bid RFP lifecycle: identity
// registration, timelock encryption, on-chain submission and batch reveal.
// Each workflow is a strictly sequential chain of external calls; the
// first failure aborts the remaining steps of that workflow only, and no
// step is ever retried automatically.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/shutter-network/SealedBidRFP/bidcipher"
	"github.com/shutter-network/SealedBidRFP/log"
	"github.com/shutter-network/SealedBidRFP/storage/ledger"
	"github.com/shutter-network/SealedBidRFP/timelock"
)

const moduleName = "orchestrator"

// MinRevealGap is the minimum number of seconds between the submission
// deadline and the reveal deadline. The reveal deadline is clamped up to
// keep this gap; the key release must not happen while submissions are
// still open.
const MinRevealGap = 60

// DefaultListBatchSize is how many RFPs one listing page fetches unless
// configured otherwise.
const DefaultListBatchSize = 5

var (
	// ErrValidation flags missing or invalid user input, caught before
	// any external call.
	ErrValidation = errors.New("orchestrator: invalid input")
	// ErrPrecondition flags a workflow invoked out of order, e.g.
	// submitting before encrypting for the same RFP.
	ErrPrecondition = errors.New("orchestrator: precondition not met")
)

// Ledger is the contract surface the orchestrator consumes.
type Ledger interface {
	RFPCount(ctx context.Context) (uint64, error)
	GetRFP(ctx context.Context, id uint64) (*ledger.RFP, error)
	GetBid(ctx context.Context, rfpID, index uint64) (*ledger.Bid, error)
	GetRFPEncryptionKey(ctx context.Context, rfpID uint64) (string, error)
	OrganizationCount(ctx context.Context) (uint64, error)
	OrganizationName(ctx context.Context, id uint64) (string, error)
	GetOrganization(ctx context.Context, id uint64) (*ledger.Organization, error)
	CreateRFP(ctx context.Context, title, description string, submissionDeadline, revealDeadline uint64, encryptionKey string, organizationID uint64) error
	SubmitBid(ctx context.Context, rfpID uint64, ciphertext []byte) error
	RevealAllBids(ctx context.Context, rfpID uint64, plaintexts []string) error
	AddOrganization(ctx context.Context, name string) error
}

// KeyService is the timelock key service surface the orchestrator consumes.
type KeyService interface {
	RegisterIdentity(ctx context.Context, decryptionTimestamp uint64) (*timelock.Identity, error)
	EncryptionData(ctx context.Context, identity *timelock.Identity) (*timelock.EncryptionData, error)
	DecryptionKey(ctx context.Context, identityHex string) ([]byte, error)
}

// Cipher seals and opens bid payloads.
type Cipher interface {
	Encrypt(plaintext []byte, params *bidcipher.EncryptionParams) (string, error)
	Decrypt(ciphertextHex string, key []byte) ([]byte, error)
}

// Deps wires an Orchestrator.
type Deps struct {
	Ledger Ledger
	Keys   KeyService
	Cipher Cipher
	Logger *log.Logger

	// Status receives the user-visible status line after every step and
	// on every failure. Optional.
	Status func(msg string)

	// Clock is the wall clock used for status derivation. Defaults to
	// time.Now; tests inject a fixed one.
	Clock func() time.Time

	// ListBatchSize is the number of RFPs per listing page.
	ListBatchSize uint64
}

// Orchestrator coordinates one user session. The held ciphertext and the
// listing cursor are session state; a fresh Orchestrator starts a fresh
// session.
type Orchestrator struct {
	ledger Ledger
	keys   KeyService
	cipher Cipher
	logger *log.Logger
	status func(string)
	clock  func() time.Time
	batch  uint64

	mu sync.Mutex
	// Held ciphertext, tagged with the RFP it was encrypted for so a
	// stale one can never be submitted against a different RFP.
	heldRFPID      uint64
	heldCiphertext string
	// Listing cursor: how many RFPs of the current descending walk have
	// been served already.
	cursor uint64
}

// New creates an Orchestrator from its dependencies.
func New(deps Deps) *Orchestrator {
	o := &Orchestrator{
		ledger: deps.Ledger,
		keys:   deps.Keys,
		cipher: deps.Cipher,
		logger: deps.Logger.WithModule(moduleName),
		status: deps.Status,
		clock:  deps.Clock,
		batch:  deps.ListBatchSize,
	}
	if o.status == nil {
		o.status = func(string) {}
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.batch == 0 {
		o.batch = DefaultListBatchSize
	}
	return o
}

func (o *Orchestrator) setStatus(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.logger.Info(msg)
	o.status(msg)
}

func (o *Orchestrator) fail(err error) error {
	o.status(err.Error())
	return err
}

// CreateRequest is the input of the Create workflow. Deadlines are UNIX
// seconds.
type CreateRequest struct {
	Title              string
	Description        string
	SubmissionDeadline uint64
	RevealDeadline     uint64
	OrganizationID     uint64
}

// ClampedRevealDeadline returns the reveal deadline adjusted to keep the
// minimum gap after the submission deadline.
func (r *CreateRequest) ClampedRevealDeadline() uint64 {
	if r.RevealDeadline <= r.SubmissionDeadline+MinRevealGap {
		return r.SubmissionDeadline + MinRevealGap
	}
	return r.RevealDeadline
}

// Create runs the RFP creation workflow: register a timelock identity for
// the reveal deadline, fetch the matching encryption parameters, store
// both in the new RFP's encryption key blob and write the RFP on-chain.
// Returns the id of the new RFP.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (uint64, error) {
	if req.Title == "" || req.Description == "" || req.SubmissionDeadline == 0 || req.RevealDeadline == 0 {
		return 0, o.fail(fmt.Errorf("%w: title, description and both deadlines are required", ErrValidation))
	}
	revealDeadline := req.ClampedRevealDeadline()

	o.setStatus("Registering identity for reveal at %d...", revealDeadline)
	identity, err := o.keys.RegisterIdentity(ctx, revealDeadline)
	if err != nil {
		return 0, o.fail(fmt.Errorf("registering identity: %w", err))
	}

	o.setStatus("Fetching encryption parameters...")
	encData, err := o.keys.EncryptionData(ctx, identity)
	if err != nil {
		return 0, o.fail(fmt.Errorf("fetching encryption data: %w", err))
	}
	keyBlob, err := json.Marshal(encData)
	if err != nil {
		return 0, o.fail(fmt.Errorf("serializing encryption key: %w", err))
	}

	o.setStatus("Creating RFP on-chain...")
	if err := o.ledger.CreateRFP(ctx, req.Title, req.Description, req.SubmissionDeadline, revealDeadline, string(keyBlob), req.OrganizationID); err != nil {
		return 0, o.fail(fmt.Errorf("creating RFP: %w", err))
	}

	// The ledger assigns ids densely in creation order, so the new id is
	// count-1. There is no authoritative id in the confirmation; with a
	// concurrent creator this read can race.
	count, err := o.ledger.RFPCount(ctx)
	if err != nil || count == 0 {
		o.setStatus("RFP created")
		return 0, err
	}
	id := count - 1

	o.mu.Lock()
	o.cursor = 0
	o.mu.Unlock()

	o.setStatus("RFP created successfully with ID %d", id)
	return id, nil
}

// EncryptBid runs the first half of the Bid workflow: fetch the RFP's
// encryption parameters, seal the bid text and hold the ciphertext in the
// session until the user explicitly submits it. Returns the ciphertext
// for display.
func (o *Orchestrator) EncryptBid(ctx context.Context, rfpID uint64, bidText string) (string, error) {
	if bidText == "" {
		return "", o.fail(fmt.Errorf("%w: bid text is required", ErrValidation))
	}

	o.setStatus("Fetching RFP encryption key...")
	blob, err := o.ledger.GetRFPEncryptionKey(ctx, rfpID)
	if err != nil {
		return "", o.fail(fmt.Errorf("fetching encryption key: %w", err))
	}
	if blob == "" {
		return "", o.fail(fmt.Errorf("%w: no encryption key stored for RFP %d", ErrPrecondition, rfpID))
	}
	params, err := bidcipher.ParseEncryptionParams(blob)
	if err != nil {
		return "", o.fail(fmt.Errorf("%w: %s", ErrPrecondition, err))
	}

	o.setStatus("Encrypting bid...")
	ciphertext, err := o.cipher.Encrypt([]byte(bidText), params)
	if err != nil {
		return "", o.fail(fmt.Errorf("encrypting bid: %w", err))
	}

	o.mu.Lock()
	o.heldRFPID = rfpID
	o.heldCiphertext = ciphertext
	o.mu.Unlock()

	o.setStatus("Bid encryption complete")
	return ciphertext, nil
}

// SubmitBid runs the second half of the Bid workflow: submit the held
// ciphertext on-chain. The held ciphertext must have been encrypted for
// exactly this RFP; anything else is rejected before any ledger call.
// Returns the index of the new bid.
func (o *Orchestrator) SubmitBid(ctx context.Context, rfpID uint64) (uint64, error) {
	o.mu.Lock()
	held := o.heldCiphertext
	heldFor := o.heldRFPID
	o.mu.Unlock()

	if held == "" {
		return 0, o.fail(fmt.Errorf("%w: encrypt the bid first", ErrPrecondition))
	}
	if heldFor != rfpID {
		return 0, o.fail(fmt.Errorf("%w: held ciphertext was encrypted for RFP %d, not %d", ErrPrecondition, heldFor, rfpID))
	}
	ciphertext, err := hexutil.Decode(held)
	if err != nil {
		return 0, o.fail(fmt.Errorf("%w: held ciphertext is not valid hex", ErrPrecondition))
	}

	o.setStatus("Submitting bid on-chain...")
	if err := o.ledger.SubmitBid(ctx, rfpID, ciphertext); err != nil {
		return 0, o.fail(fmt.Errorf("submitting bid: %w", err))
	}

	o.mu.Lock()
	o.heldCiphertext = ""
	o.heldRFPID = 0
	o.mu.Unlock()

	o.setStatus("Bid submitted successfully")
	rfp, err := o.ledger.GetRFP(ctx, rfpID)
	if err != nil || rfp.BidCount == 0 {
		return 0, err
	}
	return rfp.BidCount - 1, nil
}

// Reveal runs the batch reveal workflow for one RFP. All bids are revealed
// in a single ledger transaction or not at all: a pending decryption key
// or any single failed decryption aborts the workflow before the ledger
// write. Returns the ordered plaintexts, one per bid index.
func (o *Orchestrator) Reveal(ctx context.Context, rfpID uint64) ([]string, error) {
	rfp, err := o.ledger.GetRFP(ctx, rfpID)
	if err != nil {
		return nil, o.fail(fmt.Errorf("fetching RFP: %w", err))
	}
	params, err := bidcipher.ParseEncryptionParams(rfp.EncryptionKey)
	if err != nil {
		return nil, o.fail(fmt.Errorf("%w: %s", ErrPrecondition, err))
	}

	o.setStatus("Fetching decryption key...")
	key, err := o.keys.DecryptionKey(ctx, params.IdentityHex())
	if errors.Is(err, timelock.ErrKeyNotReleased) {
		o.setStatus("Decryption key not available yet, try again after the reveal deadline")
		return nil, err
	}
	if err != nil {
		return nil, o.fail(fmt.Errorf("fetching decryption key: %w", err))
	}

	plaintexts := make([]string, 0, rfp.BidCount)
	for index := uint64(0); index < rfp.BidCount; index++ {
		bid, err := o.ledger.GetBid(ctx, rfpID, index)
		if err != nil {
			return nil, o.fail(fmt.Errorf("fetching bid %d: %w", index, err))
		}
		// Already-revealed bids and bids that never stored a ciphertext
		// pass their existing plaintext through unchanged.
		if bid.Revealed || !bid.HasCiphertext() {
			plaintexts = append(plaintexts, bid.PlaintextBid)
			continue
		}
		plaintext, err := o.cipher.Decrypt(hexutil.Encode(bid.EncryptedBid), key)
		if err != nil {
			return nil, o.fail(fmt.Errorf("decrypting bid %d: %w", index, err))
		}
		plaintexts = append(plaintexts, string(plaintext))
	}

	o.setStatus("Revealing all bids on-chain...")
	if err := o.ledger.RevealAllBids(ctx, rfpID, plaintexts); err != nil {
		return nil, o.fail(fmt.Errorf("revealing bids: %w", err))
	}

	o.setStatus("All bids for RFP %d revealed successfully", rfpID)
	return plaintexts, nil
}

// CreateOrganization writes a new organization and returns its id.
func (o *Orchestrator) CreateOrganization(ctx context.Context, name string) (uint64, error) {
	if name == "" {
		return 0, o.fail(fmt.Errorf("%w: organization name is required", ErrValidation))
	}

	o.setStatus("Creating organization on-chain...")
	if err := o.ledger.AddOrganization(ctx, name); err != nil {
		return 0, o.fail(fmt.Errorf("creating organization: %w", err))
	}

	count, err := o.ledger.OrganizationCount(ctx)
	if err != nil || count == 0 {
		o.setStatus("Organization created")
		return 0, err
	}
	o.setStatus("Organization %q created with ID %d", name, count-1)
	return count - 1, nil
}

// Organizations lists all organizations, oldest first.
func (o *Orchestrator) Organizations(ctx context.Context) ([]OrganizationView, error) {
	count, err := o.ledger.OrganizationCount(ctx)
	if err != nil {
		return nil, o.fail(fmt.Errorf("fetching organization count: %w", err))
	}
	views := make([]OrganizationView, 0, count)
	for id := uint64(0); id < count; id++ {
		name, err := o.ledger.OrganizationName(ctx, id)
		if err != nil {
			return nil, o.fail(fmt.Errorf("fetching organization %d: %w", id, err))
		}
		views = append(views, OrganizationView{ID: id, Name: name})
	}
	return views, nil
}
