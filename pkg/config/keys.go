package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/luxfi/coproof/pkg/artifact"
)

// GenerateKey returns a fresh identity key.
func GenerateKey() (*secp256k1.PrivateKey, error) {
	return secp256k1.GeneratePrivateKey()
}

// SaveKey writes key hex encoded to a file readable by the owner only.
func SaveKey(path string, key *secp256k1.PrivateKey) error {
	return artifact.WriteSecret(path, []byte(hex.EncodeToString(key.Serialize())+"\n"))
}

// LoadKey reads a key written by SaveKey.
func LoadKey(path string) (*secp256k1.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil || len(b) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("%s: %w: not a hex encoded secp256k1 key", path, ErrInvalidConfig)
	}
	return secp256k1.PrivKeyFromBytes(b), nil
}

// PublicKeyHex returns the compressed public key of key, hex encoded.
func PublicKeyHex(key *secp256k1.PrivateKey) string {
	return hex.EncodeToString(key.PubKey().SerializeCompressed())
}
