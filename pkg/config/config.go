// Package config loads the network configuration of a party and its
// identity key.
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/luxfi/coproof/pkg/artifact"
	"github.com/luxfi/coproof/pkg/party"
	"github.com/luxfi/coproof/pkg/transport/tcp"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a collective round when the file sets no timeout.
const DefaultTimeout = 60 * time.Second

// ErrInvalidConfig means the network configuration is unusable.
var ErrInvalidConfig = errors.New("config: invalid network configuration")

// Duration is a time.Duration written as a Go duration string.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Self identifies the local party.
type Self struct {
	ID      party.ID `toml:"id"`
	KeyFile string   `toml:"key_file"`
}

// Party is an entry of the party list.
type Party struct {
	ID        party.ID `toml:"id"`
	Address   string   `toml:"address"`
	PublicKey string   `toml:"public_key"`
}

// Network is the content of a network configuration file.
type Network struct {
	Timeout Duration `toml:"timeout"`
	Self    Self     `toml:"self"`
	Parties []Party  `toml:"parties"`

	dir  string
	keys map[party.ID]*secp256k1.PublicKey
}

// Load reads and validates a network configuration. A relative key file is
// resolved against the directory of path.
func Load(path string) (*Network, error) {
	var n Network
	md, err := toml.DecodeFile(path, &n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrInvalidConfig, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: %w: unknown keys %s", path, ErrInvalidConfig, strings.Join(keys, ", "))
	}
	n.dir = filepath.Dir(path)
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &n, nil
}

// Save writes n to path.
func (n *Network) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(n); err != nil {
		return err
	}
	return artifact.WritePublic(path, buf.Bytes())
}

// Validate checks that the parties are exactly 0..n-1 and that the local
// party is one of them.
func (n *Network) Validate() error {
	if n.Timeout.Duration < 0 {
		return fmt.Errorf("%w: negative timeout %s", ErrInvalidConfig, n.Timeout)
	}
	if len(n.Parties) < 2 {
		return fmt.Errorf("%w: %d parties", ErrInvalidConfig, len(n.Parties))
	}
	sort.Slice(n.Parties, func(i, j int) bool { return n.Parties[i].ID < n.Parties[j].ID })
	ids := make(party.IDSlice, len(n.Parties))
	for i, p := range n.Parties {
		ids[i] = p.ID
	}
	if !ids.Valid() {
		return fmt.Errorf("%w: duplicate party ids %v", ErrInvalidConfig, ids)
	}
	if last := len(ids) - 1; ids[0] != 0 || ids[last] != party.ID(last) {
		return fmt.Errorf("%w: party ids must be 0..%d, found %v", ErrInvalidConfig, last, ids)
	}
	n.keys = make(map[party.ID]*secp256k1.PublicKey, len(n.Parties))
	for _, p := range n.Parties {
		if p.Address == "" {
			return fmt.Errorf("%w: party %s has no address", ErrInvalidConfig, p.ID)
		}
		key, err := ParsePublicKey(p.PublicKey)
		if err != nil {
			return fmt.Errorf("%w: party %s: %v", ErrInvalidConfig, p.ID, err)
		}
		n.keys[p.ID] = key
	}
	if !n.Self.ID.Valid(len(n.Parties)) {
		return fmt.Errorf("%w: self %s is not a party", ErrInvalidConfig, n.Self.ID)
	}
	if n.Self.KeyFile == "" {
		return fmt.Errorf("%w: no key file", ErrInvalidConfig)
	}
	return nil
}

// Size returns the number of parties.
func (n *Network) Size() int { return len(n.Parties) }

// RoundTimeout returns the configured timeout or DefaultTimeout.
func (n *Network) RoundTimeout() time.Duration {
	if n.Timeout.Duration == 0 {
		return DefaultTimeout
	}
	return n.Timeout.Duration
}

// KeyPath returns the path of the local identity key.
func (n *Network) KeyPath() string {
	if filepath.IsAbs(n.Self.KeyFile) || n.dir == "" {
		return n.Self.KeyFile
	}
	return filepath.Join(n.dir, n.Self.KeyFile)
}

// TCP loads the identity key and returns the mesh configuration.
func (n *Network) TCP(log *zap.Logger) (tcp.Config, error) {
	key, err := LoadKey(n.KeyPath())
	if err != nil {
		return tcp.Config{}, err
	}
	if !key.PubKey().IsEqual(n.keys[n.Self.ID]) {
		return tcp.Config{}, fmt.Errorf("%w: key file %s does not match the public key of party %s",
			ErrInvalidConfig, n.KeyPath(), n.Self.ID)
	}
	peers := make([]tcp.Peer, len(n.Parties))
	for i, p := range n.Parties {
		peers[i] = tcp.Peer{ID: p.ID, Address: p.Address, PublicKey: n.keys[p.ID]}
	}
	return tcp.Config{Self: n.Self.ID, Key: key, Peers: peers, Logger: log}, nil
}

// ParsePublicKey decodes a hex encoded secp256k1 public key.
func ParsePublicKey(s string) (*secp256k1.PublicKey, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	return secp256k1.ParsePubKey(b)
}
