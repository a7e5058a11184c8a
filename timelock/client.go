// Package timelock talks to a Shutter keyper HTTP API. The API binds a
// random identity to a decryption timestamp, hands out the public key
// material to encrypt against that identity, and releases the matching
// decryption key once the timestamp has passed.
package timelock

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/shutter-network/SealedBidRFP/config"
	"github.com/shutter-network/SealedBidRFP/log"
	"github.com/shutter-network/SealedBidRFP/metrics"
)

const moduleName = "timelock"

// ErrKeyNotReleased is returned by DecryptionKey while the service has not
// yet released the key. It is a normal, retryable condition, not a fault.
var ErrKeyNotReleased = errors.New("timelock: decryption key not released yet")

// ErrMissingIdentityPrefix is returned when encryption data is requested
// for an identity that was never registered.
var ErrMissingIdentityPrefix = errors.New("timelock: identity prefix not set, register the identity first")

// ServiceError is a non-2xx reply from the Shutter API. Description carries
// the service-provided `description` field when present.
type ServiceError struct {
	Status      int
	Description string
}

func (e *ServiceError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("timelock: service replied with HTTP %d", e.Status)
	}
	return fmt.Sprintf("timelock: service replied with HTTP %d: %s", e.Status, e.Description)
}

// Identity is the service-side handle binding a reveal timestamp to a
// future key release. Wire values are 0x-prefixed hex strings.
type Identity struct {
	IdentityPrefix string `json:"identity_prefix"`
	Identity       string `json:"identity"`
}

// EncryptionData is the public key material for encrypting against one
// registered identity.
type EncryptionData struct {
	Identity string `json:"identity"`
	EonKey   string `json:"eon_key"`
}

// Every API reply wraps its payload in a `message` object; error replies
// carry a top-level `description` instead.
type envelope struct {
	Message     json.RawMessage `json:"message"`
	Description string          `json:"description"`
}

// Client is a client for one Shutter API deployment.
type Client struct {
	base     string
	registry string
	hc       *http.Client
	logger   *log.Logger
	metrics  metrics.WorkflowMetrics
}

// NewClient creates a new Shutter API client.
func NewClient(cfg *config.ShutterConfig, logger *log.Logger) *Client {
	return &Client{
		base:     cfg.APIBase,
		registry: cfg.RegistryAddress,
		hc:       &http.Client{Timeout: cfg.RequestTimeout},
		logger:   logger.WithModule(moduleName),
		metrics:  metrics.NewDefaultWorkflowMetrics("sealedbid"),
	}
}

// RegisterIdentity registers a fresh identity whose decryption key the
// service will release at decryptionTimestamp (UNIX seconds). The identity
// prefix is 32 bytes of cryptographically secure randomness; reusing a
// prefix risks identity collisions, so a fresh one is drawn per call.
func (c *Client) RegisterIdentity(ctx context.Context, decryptionTimestamp uint64) (*Identity, error) {
	prefix := make([]byte, 32)
	if _, err := rand.Read(prefix); err != nil {
		return nil, fmt.Errorf("timelock: generating identity prefix: %w", err)
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"decryptionTimestamp": decryptionTimestamp,
		"identityPrefix":      hexutil.Encode(prefix),
		"registry":            c.registry,
	})
	if err != nil {
		return nil, fmt.Errorf("timelock: encoding register_identity request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/register_identity", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("timelock: building register_identity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var identity Identity
	if err := c.do(req, "register_identity", &identity); err != nil {
		return nil, err
	}
	if identity.IdentityPrefix == "" {
		return nil, fmt.Errorf("timelock: register_identity reply carries no identity_prefix")
	}
	c.logger.Debug("registered identity",
		"identity_prefix", identity.IdentityPrefix,
		"decryption_timestamp", decryptionTimestamp,
	)
	return &identity, nil
}

// EncryptionData fetches the eon public key and the full identity for a
// previously registered identity.
func (c *Client) EncryptionData(ctx context.Context, identity *Identity) (*EncryptionData, error) {
	if identity == nil || identity.IdentityPrefix == "" {
		return nil, ErrMissingIdentityPrefix
	}

	q := url.Values{}
	q.Set("address", c.registry)
	q.Set("identityPrefix", identity.IdentityPrefix)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/get_data_for_encryption?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("timelock: building get_data_for_encryption request: %w", err)
	}

	var data EncryptionData
	if err := c.do(req, "get_data_for_encryption", &data); err != nil {
		return nil, err
	}
	if data.Identity == "" || data.EonKey == "" {
		return nil, fmt.Errorf("timelock: get_data_for_encryption reply is missing identity or eon_key")
	}
	return &data, nil
}

// DecryptionKey polls for the released key of the given identity. Returns
// ErrKeyNotReleased while the service has not released it; callers retry at
// their own cadence.
func (c *Client) DecryptionKey(ctx context.Context, identityHex string) ([]byte, error) {
	q := url.Values{}
	q.Set("identity", identityHex)
	q.Set("registry", c.registry)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/get_decryption_key?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("timelock: building get_decryption_key request: %w", err)
	}

	var reply struct {
		DecryptionKey string `json:"decryption_key"`
	}
	if err := c.do(req, "get_decryption_key", &reply); err != nil {
		return nil, err
	}
	if reply.DecryptionKey == "" {
		return nil, ErrKeyNotReleased
	}
	key, err := hexutil.Decode(reply.DecryptionKey)
	if err != nil {
		return nil, fmt.Errorf("timelock: malformed decryption key: %w", err)
	}
	return key, nil
}

// do sends the request and unmarshals the envelope's message into out.
func (c *Client) do(req *http.Request, call string, out interface{}) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		c.metrics.TimelockCalls(call, "failure").Inc()
		return fmt.Errorf("timelock: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.TimelockCalls(call, "failure").Inc()
		return fmt.Errorf("timelock: reading reply: %w", err)
	}

	var env envelope
	// A malformed body on an error status is still a ServiceError; only
	// insist on valid JSON for successful replies.
	if err := json.Unmarshal(body, &env); err != nil && resp.StatusCode < 300 {
		c.metrics.TimelockCalls(call, "failure").Inc()
		return fmt.Errorf("timelock: decoding reply: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.TimelockCalls(call, "failure").Inc()
		return &ServiceError{Status: resp.StatusCode, Description: env.Description}
	}
	if len(env.Message) == 0 {
		c.metrics.TimelockCalls(call, "failure").Inc()
		return fmt.Errorf("timelock: reply carries no message")
	}
	if err := json.Unmarshal(env.Message, out); err != nil {
		c.metrics.TimelockCalls(call, "failure").Inc()
		return fmt.Errorf("timelock: decoding message: %w", err)
	}
	c.metrics.TimelockCalls(call, "success").Inc()
	return nil
}
