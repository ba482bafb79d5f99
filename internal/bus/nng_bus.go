//go:build nng
// +build nng

package bus

import (
	"sync/atomic"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pull"
	"go.nanomsg.org/mangos/v3/protocol/push"

	_ "go.nanomsg.org/mangos/v3/transport/inproc"
)

var busSeq atomic.Uint64

// nngBus relays Notify over an inproc push/pull pair instead of a plain
// Go channel, per DESIGN NOTES §9's suggestion of a dedicated message
// channel from worker to API — useful when the pool and write path are
// split across OS processes sharing a machine rather than goroutines in
// one process, which plain channels cannot do.
type nngBus struct {
	pusher mangos.Socket
	puller mangos.Socket
	out    chan Signal
	done   chan struct{}
}

// New creates an nng/mangos-backed bus over a fresh inproc address.
func New() Bus {
	addr := "inproc://lsm-bus-" + itoa(busSeq.Add(1))

	pullSock, err := pull.NewSocket()
	if err != nil {
		panic(err)
	}
	if err := pullSock.Listen(addr); err != nil {
		panic(err)
	}

	pushSock, err := push.NewSocket()
	if err != nil {
		panic(err)
	}
	if err := pushSock.Dial(addr); err != nil {
		panic(err)
	}

	b := &nngBus{pusher: pushSock, puller: pullSock, out: make(chan Signal, 1), done: make(chan struct{})}
	go b.pump()
	return b
}

func (b *nngBus) pump() {
	for {
		_, err := b.puller.Recv()
		if err != nil {
			select {
			case <-b.done:
				return
			default:
				continue
			}
		}
		select {
		case b.out <- Signal{}:
		default:
		}
	}
}

func (b *nngBus) Notify() {
	// Non-blocking: a send error (e.g. no room / closed) just means the
	// signal coalesces with whatever is already pending.
	_ = b.pusher.Send(nil)
}

func (b *nngBus) C() <-chan Signal { return b.out }

func (b *nngBus) Close() {
	close(b.done)
	_ = b.pusher.Close()
	_ = b.puller.Close()
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
