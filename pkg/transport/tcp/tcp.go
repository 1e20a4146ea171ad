// Package tcp is a Messenger over a full mesh of TCP connections. Peers
// authenticate each other with their secp256k1 identity keys when the mesh is
// set up.
package tcp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/luxfi/coproof/pkg/party"
	"github.com/luxfi/coproof/pkg/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxMessageSize bounds the size of a single frame.
const DefaultMaxMessageSize = 64 << 20

// Peer is a party of the mesh.
type Peer struct {
	ID        party.ID
	Address   string
	PublicKey *secp256k1.PublicKey
}

// Config describes the mesh from the point of view of Self.
type Config struct {
	Self  party.ID
	Key   *secp256k1.PrivateKey
	Peers []Peer // every party, including Self

	// RetryInterval is the pause between dial attempts to a peer that is not
	// listening yet.
	RetryInterval  time.Duration
	MaxMessageSize uint32
	Logger         *zap.Logger
}

type conn struct {
	net.Conn
	wmu sync.Mutex
	rmu sync.Mutex
}

// Messenger is a transport.Messenger over authenticated TCP connections.
type Messenger struct {
	self    party.ID
	conns   map[party.ID]*conn
	maxSize uint32
	log     *zap.Logger
}

var _ transport.Messenger = (*Messenger)(nil)

// Connect builds the mesh: Self dials every peer with a lower ID and accepts
// connections from every peer with a higher one. It returns once all peers
// are connected and authenticated, or when ctx is done.
func Connect(ctx context.Context, cfg Config) (*Messenger, error) {
	if cfg.Key == nil {
		return nil, errors.New("tcp: missing identity key")
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	peers := make(map[party.ID]Peer, len(cfg.Peers))
	for _, p := range cfg.Peers {
		if _, ok := peers[p.ID]; ok {
			return nil, fmt.Errorf("tcp: party %s listed twice", p.ID)
		}
		peers[p.ID] = p
	}
	self, ok := peers[cfg.Self]
	if !ok {
		return nil, fmt.Errorf("tcp: self %s is not a listed party", cfg.Self)
	}

	m := &Messenger{
		self:    cfg.Self,
		conns:   make(map[party.ID]*conn, len(peers)-1),
		maxSize: cfg.MaxMessageSize,
		log:     cfg.Logger.With(zap.Stringer("party", cfg.Self)),
	}
	var mu sync.Mutex
	register := func(id party.ID, c net.Conn) {
		mu.Lock()
		defer mu.Unlock()
		m.conns[id] = &conn{Conn: c}
		m.log.Debug("peer connected", zap.Stringer("peer", id), zap.String("remote", c.RemoteAddr().String()))
	}

	incoming := 0
	for id := range peers {
		if id > cfg.Self {
			incoming++
		}
	}

	eg, ectx := errgroup.WithContext(ctx)
	if incoming > 0 {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", self.Address)
		if err != nil {
			return nil, fmt.Errorf("tcp: listening on %s: %w", self.Address, err)
		}
		// unblock Accept when setup ends either way
		stop := context.AfterFunc(ectx, func() { ln.Close() })
		defer stop()
		eg.Go(func() error {
			defer ln.Close()
			accepted := make(map[party.ID]struct{}, incoming)
			for len(accepted) < incoming {
				c, err := ln.Accept()
				if err != nil {
					if ectx.Err() != nil {
						return ectx.Err()
					}
					return fmt.Errorf("tcp: accepting on %s: %w", self.Address, err)
				}
				id, err := accept(ectx, c, cfg, peers, accepted)
				if err != nil {
					m.log.Warn("rejected connection", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
					c.Close()
					continue
				}
				accepted[id] = struct{}{}
				register(id, c)
			}
			return nil
		})
	}
	for id, p := range peers {
		if id >= cfg.Self {
			continue
		}
		eg.Go(func() error {
			c, err := dial(ectx, cfg, p)
			if err != nil {
				return err
			}
			register(p.ID, c)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func dial(ctx context.Context, cfg Config, p Peer) (net.Conn, error) {
	var d net.Dialer
	for {
		c, err := d.DialContext(ctx, "tcp", p.Address)
		if err == nil {
			if err = handshakeDialer(ctx, c, cfg, p); err != nil {
				c.Close()
				return nil, fmt.Errorf("tcp: handshake with party %s: %w", p.ID, err)
			}
			return c, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("tcp: dialing party %s at %s: %w", p.ID, p.Address, err)
		case <-time.After(cfg.RetryInterval):
		}
	}
}

func accept(ctx context.Context, c net.Conn, cfg Config, peers map[party.ID]Peer, accepted map[party.ID]struct{}) (party.ID, error) {
	return handshakeListener(ctx, c, cfg, func(id party.ID) (Peer, error) {
		p, ok := peers[id]
		if !ok || id <= cfg.Self {
			return Peer{}, fmt.Errorf("%w: %s", transport.ErrUnknownPeer, id)
		}
		if _, ok := accepted[id]; ok {
			return Peer{}, fmt.Errorf("tcp: party %s already connected", id)
		}
		return p, nil
	})
}

func (m *Messenger) conn(id party.ID) (*conn, error) {
	if id == m.self {
		return nil, transport.ErrSelf
	}
	c, ok := m.conns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", transport.ErrUnknownPeer, id)
	}
	return c, nil
}

// MessageSend writes one length-prefixed frame to receiver.
func (m *Messenger) MessageSend(ctx context.Context, receiver party.ID, buffer []byte) error {
	c, err := m.conn(receiver)
	if err != nil {
		return err
	}
	if uint64(len(buffer)) > uint64(m.maxSize) {
		return fmt.Errorf("%w: %d bytes", transport.ErrMessageTooLarge, len(buffer))
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.SetWriteDeadline(deadline)
		defer c.SetWriteDeadline(time.Time{})
	}
	if err := writeFrame(c, buffer); err != nil {
		return fmt.Errorf("%w: %s: %v", transport.ErrPeerDisconnected, receiver, err)
	}
	return nil
}

// MessageReceive reads one frame from sender.
func (m *Messenger) MessageReceive(ctx context.Context, sender party.ID) ([]byte, error) {
	c, err := m.conn(sender)
	if err != nil {
		return nil, err
	}
	c.rmu.Lock()
	defer c.rmu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.SetReadDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = c.SetReadDeadline(time.Now()) })
	defer func() {
		stop()
		_ = c.SetReadDeadline(time.Time{})
	}()

	msg, err := readFrame(c, m.maxSize)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, transport.ErrMessageTooLarge) {
			return nil, err
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, context.DeadlineExceeded
		}
		return nil, fmt.Errorf("%w: %s: %v", transport.ErrPeerDisconnected, sender, err)
	}
	return msg, nil
}

// MessagesReceive reads one frame from every sender concurrently.
func (m *Messenger) MessagesReceive(ctx context.Context, senders []party.ID) ([][]byte, error) {
	out := make([][]byte, len(senders))
	eg, ctx := errgroup.WithContext(ctx)
	for i, sender := range senders {
		eg.Go(func() error {
			msg, err := m.MessageReceive(ctx, sender)
			if err != nil {
				return err
			}
			out[i] = msg
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes every connection.
func (m *Messenger) Close() error {
	var result *multierror.Error
	for id, c := range m.conns {
		if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, fmt.Errorf("closing connection to party %s: %w", id, err))
		}
	}
	return result.ErrorOrNil()
}

func writeFrame(w io.Writer, buffer []byte) error {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(buffer)))
	if _, err := w.Write(length[:]); err != nil {
		return fmt.Errorf("writing message length: %w", err)
	}
	if _, err := w.Write(buffer); err != nil {
		return fmt.Errorf("writing message data: %w", err)
	}
	return nil
}

func readFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, fmt.Errorf("reading message length: %w", err)
	}
	n := binary.BigEndian.Uint32(length[:])
	if n > maxSize {
		return nil, fmt.Errorf("%w: %d bytes", transport.ErrMessageTooLarge, n)
	}
	buffer := make([]byte, n)
	if _, err := io.ReadFull(r, buffer); err != nil {
		return nil, fmt.Errorf("reading message data: %w", err)
	}
	return buffer, nil
}
