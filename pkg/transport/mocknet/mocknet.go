// Package mocknet is an in-process Messenger network for tests and local
// simulation of all parties in one process.
package mocknet

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/luxfi/coproof/pkg/party"
	"github.com/luxfi/coproof/pkg/transport"
	"golang.org/x/sync/errgroup"
)

// Messenger is one party's endpoint in a mock network.
type Messenger struct {
	self   party.ID
	outs   []*Messenger
	mutex  sync.Mutex
	cond   *sync.Cond
	queues []list.List
	closed atomic.Bool
}

var _ transport.Messenger = (*Messenger)(nil)

// New returns a fully connected network of n messengers, indexed by party.
func New(n int) []*Messenger {
	messengers := make([]*Messenger, n)
	for i := range messengers {
		m := &Messenger{self: party.ID(i)}
		m.cond = sync.NewCond(&m.mutex)
		messengers[i] = m
	}
	for _, m := range messengers {
		m.outs = messengers
		m.queues = make([]list.List, n)
	}
	return messengers
}

// Self returns the party of this endpoint.
func (m *Messenger) Self() party.ID { return m.self }

func (m *Messenger) peer(id party.ID) (*Messenger, error) {
	if id == m.self {
		return nil, transport.ErrSelf
	}
	if !id.Valid(len(m.outs)) {
		return nil, fmt.Errorf("%w: %s", transport.ErrUnknownPeer, id)
	}
	return m.outs[id], nil
}

// MessageSend queues a copy of buffer at the receiver.
func (m *Messenger) MessageSend(_ context.Context, receiver party.ID, buffer []byte) error {
	if m.closed.Load() {
		return transport.ErrClosed
	}
	r, err := m.peer(receiver)
	if err != nil {
		return err
	}
	if r.closed.Load() {
		return fmt.Errorf("%w: %s", transport.ErrPeerDisconnected, receiver)
	}
	msg := append([]byte(nil), buffer...)
	r.mutex.Lock()
	r.queues[m.self].PushBack(msg)
	r.mutex.Unlock()
	r.cond.Broadcast()
	return nil
}

// MessageReceive pops the oldest frame from sender. Frames sent before the
// sender closed are still delivered.
func (m *Messenger) MessageReceive(ctx context.Context, sender party.ID) ([]byte, error) {
	s, err := m.peer(sender)
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		m.mutex.Lock()
		defer m.mutex.Unlock()
		m.cond.Broadcast()
	})
	defer stop()

	m.mutex.Lock()
	defer m.mutex.Unlock()
	queue := &m.queues[sender]
	for queue.Len() == 0 {
		if m.closed.Load() {
			return nil, transport.ErrClosed
		}
		if s.closed.Load() {
			return nil, fmt.Errorf("%w: %s", transport.ErrPeerDisconnected, sender)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.cond.Wait()
	}
	front := queue.Front()
	queue.Remove(front)
	return front.Value.([]byte), nil
}

// MessagesReceive receives from all senders concurrently.
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

// Close disconnects the endpoint and wakes every peer waiting on it.
func (m *Messenger) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	for _, peer := range m.outs {
		peer.mutex.Lock()
		peer.cond.Broadcast()
		peer.mutex.Unlock()
	}
	return nil
}
