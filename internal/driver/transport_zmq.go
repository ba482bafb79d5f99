//go:build zmq

package driver

import (
	"fmt"
	"sync/atomic"

	zmq "github.com/pebbe/zmq4"
)

var zmqTransportSeq atomic.Uint64

// zmqTransport ships search-offload requests as ZeroMQ PUSH messages to a
// simulated device responder listening on the same inproc address, and
// reads the reply back over a PULL socket bound to a second address the
// responder pushes to. This mirrors the descriptor/hash wire shapes
// EncodeDescriptor/EncodeHash already produce; only the carrier differs
// from the default metadata-channel transport.
type zmqTransport struct {
	ctx    *zmq.Context
	push   *zmq.Socket
	pull   *zmq.Socket
	pushTo string
	pullAt string
}

// NewZmqSearchTransport dials a PUSH socket at reqAddr (the simulated
// device's request endpoint) and binds a PULL socket at replyAddr (where
// the simulated responder sends the search result back).
func NewZmqSearchTransport(reqAddr, replyAddr string) (SearchTransport, error) {
	ctx, err := zmq.NewContext()
	if err != nil {
		return nil, fmt.Errorf("driver: zmq context: %w", err)
	}
	push, err := ctx.NewSocket(zmq.PUSH)
	if err != nil {
		ctx.Term()
		return nil, fmt.Errorf("driver: zmq push socket: %w", err)
	}
	if err := push.Connect(reqAddr); err != nil {
		push.Close()
		ctx.Term()
		return nil, fmt.Errorf("driver: zmq push connect: %w", err)
	}
	pull, err := ctx.NewSocket(zmq.PULL)
	if err != nil {
		push.Close()
		ctx.Term()
		return nil, fmt.Errorf("driver: zmq pull socket: %w", err)
	}
	if err := pull.Bind(replyAddr); err != nil {
		push.Close()
		pull.Close()
		ctx.Term()
		return nil, fmt.Errorf("driver: zmq pull bind: %w", err)
	}
	return &zmqTransport{ctx: ctx, push: push, pull: pull, pushTo: reqAddr, pullAt: replyAddr}, nil
}

// DefaultZmqAddrs returns a fresh pair of inproc addresses suitable for
// a same-process simulated responder, distinct per call so concurrent
// Opens don't collide.
func DefaultZmqAddrs() (reqAddr, replyAddr string) {
	n := zmqTransportSeq.Add(1)
	return fmt.Sprintf("inproc://lsm-offload-req-%d", n), fmt.Sprintf("inproc://lsm-offload-reply-%d", n)
}

// NewSearchTransport builds the zmq-backed SearchTransport over a fresh
// address pair. drv is unused here: the zmq build ships the request to a
// simulated device responder instead of drv's metadata channel, but
// keeps the same constructor signature as the default build so db.Open
// doesn't need a build-tagged branch.
func NewSearchTransport(drv Driver) SearchTransport {
	reqAddr, replyAddr := DefaultZmqAddrs()
	t, err := NewZmqSearchTransport(reqAddr, replyAddr)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *zmqTransport) Send(_ SearchRequest, encoded []byte) error {
	_, err := t.push.SendBytes(encoded, 0)
	return err
}

func (t *zmqTransport) Recv() ([]byte, error) {
	return t.pull.RecvBytes(0)
}

func (t *zmqTransport) Close() error {
	t.push.Close()
	t.pull.Close()
	return t.ctx.Term()
}
