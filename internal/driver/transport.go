//go:build !zmq

package driver

// SearchTransport ships a search-offload request (spec §6) to the device
// and returns its raw reply. The default build routes the request
// through the same metadata channel as every other command; the zmq
// build instead ships it as a ZeroMQ PUSH message to a simulated device
// responder, per DESIGN NOTES §9's mention of an alternate transport for
// this one request type.
type SearchTransport interface {
	Send(req SearchRequest, encoded []byte) error
	Recv() ([]byte, error)
	Close() error
}

// metaTransport is the default SearchTransport: it reuses the driver's
// WriteMeta/ReadMeta pair, the same channel open_DB/close_DB/erase and
// file-selection commands already travel over.
type metaTransport struct {
	drv Driver
}

// NewSearchTransport builds the default SearchTransport, which ships the
// search-offload request over drv's own metadata channel. The zmq build
// shadows this constructor with one that dials a ZeroMQ PUSH/PULL pair
// instead; callers never need to know which is active.
func NewSearchTransport(drv Driver) SearchTransport {
	return &metaTransport{drv: drv}
}

func (t *metaTransport) Send(_ SearchRequest, encoded []byte) error {
	return t.drv.WriteMeta(encoded)
}

func (t *metaTransport) Recv() ([]byte, error) {
	return t.drv.ReadMeta()
}

func (t *metaTransport) Close() error { return nil }
