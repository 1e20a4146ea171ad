package tcp

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/fxamacker/cbor/v2"
	"github.com/luxfi/coproof/pkg/party"
	"github.com/zeebo/blake3"
)

const (
	handshakeDomain  = "coproof/tcp/handshake/v1"
	handshakeTimeout = 10 * time.Second
	handshakeMaxSize = 1 << 10
	nonceSize        = 32
)

var ErrHandshake = errors.New("tcp: handshake failed")

type hello struct {
	ID    int
	Nonce []byte
}

// transcript binds both identities and both fresh nonces.
func transcript(dialer, listener party.ID, dialerNonce, listenerNonce []byte) []byte {
	h := blake3.New()
	_, _ = h.WriteString(handshakeDomain)
	var ids [16]byte
	binary.BigEndian.PutUint64(ids[:8], uint64(dialer))
	binary.BigEndian.PutUint64(ids[8:], uint64(listener))
	_, _ = h.Write(ids[:])
	_, _ = h.Write(dialerNonce)
	_, _ = h.Write(listenerNonce)
	return h.Sum(nil)
}

// signedDigest is what signer signs over a transcript, so that a signature
// cannot be reflected back to its author.
func signedDigest(t []byte, signer party.ID) []byte {
	h := blake3.New()
	_, _ = h.Write(t)
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], uint64(signer))
	_, _ = h.Write(id[:])
	return h.Sum(nil)
}

func newNonce() ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}

func sendHello(c net.Conn, h hello) error {
	data, err := cbor.Marshal(h)
	if err != nil {
		return err
	}
	return writeFrame(c, data)
}

func receiveHello(c net.Conn) (hello, error) {
	var h hello
	data, err := readFrame(c, handshakeMaxSize)
	if err != nil {
		return h, err
	}
	if err := cbor.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if len(h.Nonce) != nonceSize {
		return h, fmt.Errorf("%w: nonce of %d bytes", ErrHandshake, len(h.Nonce))
	}
	return h, nil
}

// exchangeSignatures sends our signature over t and verifies the peer's.
func exchangeSignatures(c net.Conn, cfg Config, peer Peer, t []byte) error {
	sig := ecdsa.Sign(cfg.Key, signedDigest(t, cfg.Self))
	if err := writeFrame(c, sig.Serialize()); err != nil {
		return err
	}
	raw, err := readFrame(c, handshakeMaxSize)
	if err != nil {
		return err
	}
	peerSig, err := ecdsa.ParseDERSignature(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if peer.PublicKey == nil || !peerSig.Verify(signedDigest(t, peer.ID), peer.PublicKey) {
		return fmt.Errorf("%w: party %s did not prove its identity", ErrHandshake, peer.ID)
	}
	return nil
}

func withDeadline(ctx context.Context, c net.Conn) func() {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.SetDeadline(deadline)
	return func() { _ = c.SetDeadline(time.Time{}) }
}

func handshakeDialer(ctx context.Context, c net.Conn, cfg Config, peer Peer) error {
	defer withDeadline(ctx, c)()

	nonce, err := newNonce()
	if err != nil {
		return err
	}
	if err := sendHello(c, hello{ID: int(cfg.Self), Nonce: nonce}); err != nil {
		return err
	}
	reply, err := receiveHello(c)
	if err != nil {
		return err
	}
	if party.ID(reply.ID) != peer.ID {
		return fmt.Errorf("%w: expected party %s, got %d", ErrHandshake, peer.ID, reply.ID)
	}
	return exchangeSignatures(c, cfg, peer, transcript(cfg.Self, peer.ID, nonce, reply.Nonce))
}

func handshakeListener(ctx context.Context, c net.Conn, cfg Config, lookup func(party.ID) (Peer, error)) (party.ID, error) {
	defer withDeadline(ctx, c)()

	h, err := receiveHello(c)
	if err != nil {
		return 0, err
	}
	peer, err := lookup(party.ID(h.ID))
	if err != nil {
		return 0, err
	}
	nonce, err := newNonce()
	if err != nil {
		return 0, err
	}
	if err := sendHello(c, hello{ID: int(cfg.Self), Nonce: nonce}); err != nil {
		return 0, err
	}
	if err := exchangeSignatures(c, cfg, peer, transcript(peer.ID, cfg.Self, h.Nonce, nonce)); err != nil {
		return 0, err
	}
	return peer.ID, nil
}
