package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/shutter-network/SealedBidRFP/bidcipher"
	"github.com/shutter-network/SealedBidRFP/log"
	"github.com/shutter-network/SealedBidRFP/storage/ledger"
	"github.com/shutter-network/SealedBidRFP/timelock"
)

// fakeLedger is an in-memory stand-in for the RFP contract.
type fakeLedger struct {
	rfps []*ledger.RFP
	bids map[uint64][]*ledger.Bid
	orgs []*ledger.Organization

	createCalls int
	submitCalls int
	revealCalls int

	failCreate error
	failSubmit error
	failReveal error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{bids: map[uint64][]*ledger.Bid{}}
}

func (f *fakeLedger) RFPCount(ctx context.Context) (uint64, error) {
	return uint64(len(f.rfps)), nil
}

func (f *fakeLedger) GetRFP(ctx context.Context, id uint64) (*ledger.RFP, error) {
	if id >= uint64(len(f.rfps)) {
		return nil, fmt.Errorf("%w: rfps: index out of range", ledger.ErrReverted)
	}
	return f.rfps[id], nil
}

func (f *fakeLedger) GetBid(ctx context.Context, rfpID, index uint64) (*ledger.Bid, error) {
	bids := f.bids[rfpID]
	if index >= uint64(len(bids)) {
		return nil, fmt.Errorf("%w: bids: index out of range", ledger.ErrReverted)
	}
	return bids[index], nil
}

func (f *fakeLedger) GetRFPEncryptionKey(ctx context.Context, rfpID uint64) (string, error) {
	rfp, err := f.GetRFP(ctx, rfpID)
	if err != nil {
		return "", err
	}
	return rfp.EncryptionKey, nil
}

func (f *fakeLedger) OrganizationCount(ctx context.Context) (uint64, error) {
	return uint64(len(f.orgs)), nil
}

func (f *fakeLedger) OrganizationName(ctx context.Context, id uint64) (string, error) {
	org, err := f.GetOrganization(ctx, id)
	if err != nil {
		return "", err
	}
	return org.Name, nil
}

func (f *fakeLedger) GetOrganization(ctx context.Context, id uint64) (*ledger.Organization, error) {
	if id >= uint64(len(f.orgs)) {
		return nil, fmt.Errorf("%w: getOrganization: index out of range", ledger.ErrReverted)
	}
	return f.orgs[id], nil
}

func (f *fakeLedger) CreateRFP(ctx context.Context, title, description string, submissionDeadline, revealDeadline uint64, encryptionKey string, organizationID uint64) error {
	f.createCalls++
	if f.failCreate != nil {
		return f.failCreate
	}
	f.rfps = append(f.rfps, &ledger.RFP{
		ID:                 uint64(len(f.rfps)),
		Title:              title,
		Description:        description,
		SubmissionDeadline: submissionDeadline,
		RevealDeadline:     revealDeadline,
		EncryptionKey:      encryptionKey,
		OrganizationID:     organizationID,
	})
	return nil
}

func (f *fakeLedger) SubmitBid(ctx context.Context, rfpID uint64, ciphertext []byte) error {
	f.submitCalls++
	if f.failSubmit != nil {
		return f.failSubmit
	}
	rfp, err := f.GetRFP(ctx, rfpID)
	if err != nil {
		return err
	}
	f.bids[rfpID] = append(f.bids[rfpID], &ledger.Bid{
		RFPID:        rfpID,
		Index:        rfp.BidCount,
		EncryptedBid: ciphertext,
	})
	rfp.BidCount++
	return nil
}

func (f *fakeLedger) RevealAllBids(ctx context.Context, rfpID uint64, plaintexts []string) error {
	f.revealCalls++
	if f.failReveal != nil {
		return f.failReveal
	}
	rfp, err := f.GetRFP(ctx, rfpID)
	if err != nil {
		return err
	}
	if uint64(len(plaintexts)) != rfp.BidCount {
		return fmt.Errorf("%w: revealAllBids: plaintext count mismatch", ledger.ErrReverted)
	}
	for i, bid := range f.bids[rfpID] {
		bid.Revealed = true
		bid.PlaintextBid = plaintexts[i]
	}
	return nil
}

func (f *fakeLedger) AddOrganization(ctx context.Context, name string) error {
	f.orgs = append(f.orgs, &ledger.Organization{ID: uint64(len(f.orgs)), Name: name})
	return nil
}

// fakeKeys scripts the timelock key service.
type fakeKeys struct {
	registerErr   error
	encDataErr    error
	decryptionKey []byte
	keyErr        error

	registeredAt []uint64
}

func (f *fakeKeys) RegisterIdentity(ctx context.Context, decryptionTimestamp uint64) (*timelock.Identity, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	f.registeredAt = append(f.registeredAt, decryptionTimestamp)
	return &timelock.Identity{IdentityPrefix: "0x0101", Identity: "0xdeadbeef"}, nil
}

func (f *fakeKeys) EncryptionData(ctx context.Context, identity *timelock.Identity) (*timelock.EncryptionData, error) {
	if f.encDataErr != nil {
		return nil, f.encDataErr
	}
	return &timelock.EncryptionData{Identity: "0xdeadbeef", EonKey: "0xfeedface"}, nil
}

func (f *fakeKeys) DecryptionKey(ctx context.Context, identityHex string) ([]byte, error) {
	if f.keyErr != nil {
		return nil, f.keyErr
	}
	return f.decryptionKey, nil
}

// fakeCipher is a reversible stand-in for the timelock cipher: the
// "ciphertext" is the plaintext behind a marker, bound to the key.
type fakeCipher struct {
	key []byte
}

func (f *fakeCipher) Encrypt(plaintext []byte, params *bidcipher.EncryptionParams) (string, error) {
	return hexutil.Encode(append([]byte("sealed:"), plaintext...)), nil
}

func (f *fakeCipher) Decrypt(ciphertextHex string, key []byte) ([]byte, error) {
	if !bytes.Equal(key, f.key) {
		return nil, bidcipher.ErrDecryptionFailed
	}
	raw, err := hexutil.Decode(ciphertextHex)
	if err != nil {
		return nil, bidcipher.ErrDecryptionFailed
	}
	if !bytes.HasPrefix(raw, []byte("sealed:")) {
		return nil, bidcipher.ErrDecryptionFailed
	}
	return bytes.TrimPrefix(raw, []byte("sealed:")), nil
}

const testKeyBlob = `{"identity":"0xdeadbeef","eon_key":"0xfeedface"}`

type fixture struct {
	ledger *fakeLedger
	keys   *fakeKeys
	cipher *fakeCipher
	orch   *Orchestrator
	status []string
	now    uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger: newFakeLedger(),
		keys:   &fakeKeys{decryptionKey: []byte("released-key")},
		cipher: &fakeCipher{key: []byte("released-key")},
		now:    1_700_000_000,
	}
	f.orch = New(Deps{
		Ledger: f.ledger,
		Keys:   f.keys,
		Cipher: f.cipher,
		Logger: log.NewDefaultLogger("test"),
		Status: func(msg string) { f.status = append(f.status, msg) },
		Clock:  func() time.Time { return time.Unix(int64(f.now), 0) },
	})
	return f
}

func (f *fixture) addRFP(t *testing.T, sub, reveal uint64) uint64 {
	t.Helper()
	require.NoError(t, f.ledger.CreateRFP(context.Background(), "title", "desc", sub, reveal, testKeyBlob, 0))
	return uint64(len(f.ledger.rfps) - 1)
}

func TestClampedRevealDeadline(t *testing.T) {
	for _, tc := range []struct {
		sub, reveal, want uint64
	}{
		{1000, 1010, 1060},  // 10s gap clamps to +60
		{1000, 1000, 1060},  // equal deadlines clamp
		{1000, 1060, 1060},  // exactly +60 stays
		{1000, 900, 1060},   // reveal before submission clamps
		{1000, 10000, 10000}, // generous gap untouched
	} {
		req := CreateRequest{SubmissionDeadline: tc.sub, RevealDeadline: tc.reveal}
		require.Equal(t, tc.want, req.ClampedRevealDeadline(), "sub=%d reveal=%d", tc.sub, tc.reveal)
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)

	id, err := f.orch.Create(context.Background(), CreateRequest{
		Title:              "New data center",
		Description:        "Sealed bids please",
		SubmissionDeadline: 2000,
		RevealDeadline:     2010,
		OrganizationID:     3,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(0), id)

	rfp := f.ledger.rfps[0]
	require.Equal(t, uint64(2000), rfp.SubmissionDeadline)
	// "now+10s" style input ends up exactly +60, not +10.
	require.Equal(t, uint64(2060), rfp.RevealDeadline)
	require.Equal(t, uint64(3), rfp.OrganizationID)

	// The identity was registered for the clamped reveal deadline.
	require.Equal(t, []uint64{2060}, f.keys.registeredAt)

	// The stored blob is the service's key material verbatim.
	var blob map[string]string
	require.NoError(t, json.Unmarshal([]byte(rfp.EncryptionKey), &blob))
	require.Equal(t, "0xdeadbeef", blob["identity"])
	require.Equal(t, "0xfeedface", blob["eon_key"])
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Create(context.Background(), CreateRequest{
		Title:              "",
		Description:        "desc",
		SubmissionDeadline: 2000,
		RevealDeadline:     3000,
	})
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, f.keys.registeredAt)
	require.Zero(t, f.ledger.createCalls)
}

func TestCreateAbortsOnRegisterFailure(t *testing.T) {
	f := newFixture(t)
	f.keys.registerErr = &timelock.ServiceError{Status: 500, Description: "keyper down"}

	_, err := f.orch.Create(context.Background(), CreateRequest{
		Title:              "t",
		Description:        "d",
		SubmissionDeadline: 2000,
		RevealDeadline:     3000,
	})
	require.Error(t, err)
	var svcErr *timelock.ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Zero(t, f.ledger.createCalls)
}

func TestCreateAbortsOnEncryptionDataFailure(t *testing.T) {
	f := newFixture(t)
	f.keys.encDataErr = timelock.ErrMissingIdentityPrefix

	_, err := f.orch.Create(context.Background(), CreateRequest{
		Title:              "t",
		Description:        "d",
		SubmissionDeadline: 2000,
		RevealDeadline:     3000,
	})
	require.Error(t, err)
	require.Zero(t, f.ledger.createCalls)
}

func TestEncryptThenSubmit(t *testing.T) {
	f := newFixture(t)
	id := f.addRFP(t, 2000, 3000)

	ciphertext, err := f.orch.EncryptBid(context.Background(), id, "my sealed offer")
	require.NoError(t, err)
	require.NotEmpty(t, ciphertext)

	index, err := f.orch.SubmitBid(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, uint64(0), index)
	require.Equal(t, 1, f.ledger.submitCalls)
	require.Equal(t, hexutil.MustDecode(ciphertext), []byte(f.ledger.bids[id][0].EncryptedBid))

	// The held ciphertext is cleared after submission.
	_, err = f.orch.SubmitBid(context.Background(), id)
	require.ErrorIs(t, err, ErrPrecondition)
	require.Equal(t, 1, f.ledger.submitCalls)
}

func TestEncryptBidValidation(t *testing.T) {
	f := newFixture(t)
	id := f.addRFP(t, 2000, 3000)

	_, err := f.orch.EncryptBid(context.Background(), id, "")
	require.ErrorIs(t, err, ErrValidation)
}

func TestEncryptBidMalformedKeyBlob(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.CreateRFP(context.Background(), "t", "d", 2000, 3000, "not json", 0))

	_, err := f.orch.EncryptBid(context.Background(), 0, "offer")
	require.ErrorIs(t, err, ErrPrecondition)
}

func TestStaleCiphertextGuard(t *testing.T) {
	f := newFixture(t)
	five := f.addRFP(t, 2000, 3000)
	_ = f.addRFP(t, 2000, 3000)
	seven := f.addRFP(t, 2000, 3000)

	_, err := f.orch.EncryptBid(context.Background(), five, "bid for five")
	require.NoError(t, err)
	_, err = f.orch.EncryptBid(context.Background(), seven, "bid for seven")
	require.NoError(t, err)

	// The held ciphertext now belongs to RFP seven; submitting against
	// five must be rejected before any ledger call.
	_, err = f.orch.SubmitBid(context.Background(), five)
	require.ErrorIs(t, err, ErrPrecondition)
	require.Zero(t, f.ledger.submitCalls)

	index, err := f.orch.SubmitBid(context.Background(), seven)
	require.NoError(t, err)
	require.Equal(t, uint64(0), index)
}

func TestSubmitWithoutEncrypt(t *testing.T) {
	f := newFixture(t)
	id := f.addRFP(t, 2000, 3000)

	_, err := f.orch.SubmitBid(context.Background(), id)
	require.ErrorIs(t, err, ErrPrecondition)
	require.Zero(t, f.ledger.submitCalls)
}

func TestRevealBatch(t *testing.T) {
	f := newFixture(t)
	id := f.addRFP(t, 2000, 3000)

	// One already-revealed bid, one sentinel bid without a ciphertext,
	// one sealed bid.
	f.ledger.bids[id] = []*ledger.Bid{
		{RFPID: id, Index: 0, Revealed: true, PlaintextBid: "already public"},
		{RFPID: id, Index: 1},
		{RFPID: id, Index: 2, EncryptedBid: append([]byte("sealed:"), []byte("late bid")...)},
	}
	f.ledger.rfps[id].BidCount = 3

	plaintexts, err := f.orch.Reveal(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []string{"already public", "", "late bid"}, plaintexts)
	require.Len(t, plaintexts, int(f.ledger.rfps[id].BidCount))
	require.Equal(t, 1, f.ledger.revealCalls)

	for _, bid := range f.ledger.bids[id] {
		require.True(t, bid.Revealed)
	}
}

func TestRevealPendingKey(t *testing.T) {
	f := newFixture(t)
	id := f.addRFP(t, 2000, 3000)
	f.ledger.bids[id] = []*ledger.Bid{
		{RFPID: id, Index: 0, EncryptedBid: []byte{0x01}},
	}
	f.ledger.rfps[id].BidCount = 1
	f.keys.keyErr = timelock.ErrKeyNotReleased

	_, err := f.orch.Reveal(context.Background(), id)
	require.ErrorIs(t, err, timelock.ErrKeyNotReleased)

	// No ledger write happened and no bid was touched.
	require.Zero(t, f.ledger.revealCalls)
	require.False(t, f.ledger.bids[id][0].Revealed)
	require.Contains(t, f.status[len(f.status)-1], "not available yet")
}

func TestRevealAbortsOnDecryptionFailure(t *testing.T) {
	f := newFixture(t)
	id := f.addRFP(t, 2000, 3000)
	f.ledger.bids[id] = []*ledger.Bid{
		{RFPID: id, Index: 0, EncryptedBid: append([]byte("sealed:"), []byte("fine")...)},
		{RFPID: id, Index: 1, EncryptedBid: []byte("garbage that will not decrypt")},
	}
	f.ledger.rfps[id].BidCount = 2

	_, err := f.orch.Reveal(context.Background(), id)
	require.ErrorIs(t, err, bidcipher.ErrDecryptionFailed)
	// All-or-nothing: no partial plaintext array reaches the ledger.
	require.Zero(t, f.ledger.revealCalls)
}

func TestCreateOrganization(t *testing.T) {
	f := newFixture(t)

	id, err := f.orch.CreateOrganization(context.Background(), "ACME")
	require.NoError(t, err)
	require.Equal(t, uint64(0), id)

	id, err = f.orch.CreateOrganization(context.Background(), "Globex")
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	_, err = f.orch.CreateOrganization(context.Background(), "")
	require.ErrorIs(t, err, ErrValidation)

	views, err := f.orch.Organizations(context.Background())
	require.NoError(t, err)
	require.Equal(t, []OrganizationView{{ID: 0, Name: "ACME"}, {ID: 1, Name: "Globex"}}, views)
}
