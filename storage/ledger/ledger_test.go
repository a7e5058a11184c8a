package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/require"

	"github.com/shutter-network/SealedBidRFP/config"
	"github.com/shutter-network/SealedBidRFP/log"
)

func testConfig() *config.LedgerConfig {
	return &config.LedgerConfig{
		// http transports dial lazily, so no node needs to listen here.
		RPC:                 "http://127.0.0.1:1",
		ContractAddress:     "0x06c04eA5b88Ae1e01966659C6fcc1bAd988Bcf6B",
		ChainID:             100,
		ConfirmationTimeout: time.Minute,
	}
}

func TestContractABIParses(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	require.NoError(t, err)

	for _, method := range []string{
		"rfpCount", "rfps", "bids", "getRFPEncryptionKey",
		"createRFP", "submitBid", "revealAllBids",
		"orgCount", "orgs", "addOrganization", "getOrganization",
	} {
		_, ok := parsed.Methods[method]
		require.True(t, ok, "method %s missing from ABI", method)
	}
}

func TestReadOnlyClientRejectsWrites(t *testing.T) {
	client, err := NewClient(context.Background(), testConfig(), log.NewDefaultLogger("test"))
	require.NoError(t, err)
	require.True(t, client.ReadOnly())

	// Writes fail before any RPC reaches the (nonexistent) node.
	err = client.SubmitBid(context.Background(), 3, []byte{0x01})
	require.ErrorIs(t, err, ErrRejected)
	err = client.CreateRFP(context.Background(), "t", "d", 1, 61, "{}", 0)
	require.ErrorIs(t, err, ErrRejected)
	err = client.RevealAllBids(context.Background(), 3, []string{"a"})
	require.ErrorIs(t, err, ErrRejected)
	err = client.AddOrganization(context.Background(), "acme")
	require.ErrorIs(t, err, ErrRejected)
}

func TestNewClientWithSigner(t *testing.T) {
	cfg := testConfig()
	cfg.PrivateKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	client, err := NewClient(context.Background(), cfg, log.NewDefaultLogger("test"))
	require.NoError(t, err)
	require.False(t, client.ReadOnly())
	require.NotZero(t, client.Signer())
}

func TestNewClientBadKey(t *testing.T) {
	cfg := testConfig()
	cfg.PrivateKey = "zz"
	_, err := NewClient(context.Background(), cfg, log.NewDefaultLogger("test"))
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	err := classify(errors.New("execution reverted: bid count mismatch"), "revealAllBids")
	require.ErrorIs(t, err, ErrReverted)
	// The opaque contract message is preserved.
	require.Contains(t, err.Error(), "bid count mismatch")

	err = classify(errors.New("connection refused"), "rfpCount")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestBidHasCiphertext(t *testing.T) {
	bid := Bid{}
	require.False(t, bid.HasCiphertext())
	bid.EncryptedBid = []byte{0x01}
	require.True(t, bid.HasCiphertext())
}
