// Package bidcipher encrypts and decrypts bid payloads with the Shutter
// timelock scheme. The cryptographic primitive lives in shcrypto; this
// package only handles parameter parsing, randomness and hex framing.
package bidcipher

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shutter-network/shutter/shlib/shcrypto"
)

// ErrMalformedParams is returned when an RFP's stored encryption key blob
// cannot be parsed into usable key material.
var ErrMalformedParams = errors.New("bidcipher: malformed encryption parameters")

// ErrDecryptionFailed is returned when a ciphertext cannot be decrypted
// with the provided key.
var ErrDecryptionFailed = errors.New("bidcipher: decryption failed")

// EncryptionParams is the typed form of the `encryptionKey` blob an RFP
// carries on the ledger.
type EncryptionParams struct {
	// Identity is the Shutter identity bids are encrypted towards.
	Identity hexutil.Bytes
	// EonKey is the eon public key of the keyper set.
	EonKey hexutil.Bytes
}

// IdentityHex returns the identity in the wire form the Shutter API takes.
func (p *EncryptionParams) IdentityHex() string {
	return hexutil.Encode(p.Identity)
}

// ParseEncryptionParams parses and validates an RFP's encryption key blob.
// Both the `eon_key` and `eonKey` spellings occur in stored blobs.
func ParseEncryptionParams(blob string) (*EncryptionParams, error) {
	var raw struct {
		Identity  string `json:"identity"`
		EonKey    string `json:"eon_key"`
		EonKeyAlt string `json:"eonKey"`
	}
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedParams, err)
	}
	if raw.EonKey == "" {
		raw.EonKey = raw.EonKeyAlt
	}
	if raw.Identity == "" || raw.EonKey == "" {
		return nil, fmt.Errorf("%w: missing identity or eon key", ErrMalformedParams)
	}

	identity, err := hexutil.Decode(raw.Identity)
	if err != nil {
		return nil, fmt.Errorf("%w: identity: %s", ErrMalformedParams, err)
	}
	eonKey, err := hexutil.Decode(raw.EonKey)
	if err != nil {
		return nil, fmt.Errorf("%w: eon key: %s", ErrMalformedParams, err)
	}
	return &EncryptionParams{Identity: identity, EonKey: eonKey}, nil
}

// Cipher encrypts and decrypts bids. It is stateless; the zero value is
// ready to use.
type Cipher struct{}

// Encrypt seals plaintext under the RFP's eon key and identity. A fresh
// random sigma is drawn per call; sigma reuse breaks the scheme's security
// guarantee. Returns the 0x-hex encoding of the ciphertext.
func (Cipher) Encrypt(plaintext []byte, params *EncryptionParams) (string, error) {
	eonKey := new(shcrypto.EonPublicKey)
	if err := eonKey.Unmarshal(params.EonKey); err != nil {
		return "", fmt.Errorf("%w: eon key: %s", ErrMalformedParams, err)
	}
	epochID := shcrypto.ComputeEpochID(params.Identity)

	sigma, err := shcrypto.RandomSigma(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("bidcipher: drawing sigma: %w", err)
	}

	encrypted := shcrypto.Encrypt(plaintext, eonKey, epochID, sigma)
	return hexutil.Encode(encrypted.Marshal()), nil
}

// Decrypt opens a ciphertext with a released epoch secret key. The result
// is deterministic; a key/ciphertext mismatch yields ErrDecryptionFailed.
func (Cipher) Decrypt(ciphertextHex string, key []byte) ([]byte, error) {
	raw, err := hexutil.Decode(ciphertextHex)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %s", ErrDecryptionFailed, err)
	}
	encrypted := new(shcrypto.EncryptedMessage)
	if err := encrypted.Unmarshal(raw); err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %s", ErrDecryptionFailed, err)
	}
	secretKey := new(shcrypto.EpochSecretKey)
	if err := secretKey.Unmarshal(key); err != nil {
		return nil, fmt.Errorf("%w: key: %s", ErrDecryptionFailed, err)
	}

	plaintext, err := encrypted.Decrypt(secretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
