package passport

import (
	"context"
	"time"
)

// apduTimeout is the default per-APDU deadline (spec default: 20s);
// expiry is reported as ConnectionError.
const apduTimeout = 20 * time.Second

// Transport is the physical or emulated card connection ReadDocument
// drives. Implementations must preserve FIFO ordering of exchanges; the
// core never issues a second Transceive before the first returns.
type Transport interface {
	Connect(ctx context.Context) error
	Transceive(ctx context.Context, cmd []byte) ([]byte, error)
	Invalidate(message string)
}

// transmitter adapts Transport to iso7816.Transmitter (a plain
// []byte->[]byte call with no context), applying apduTimeout to every
// exchange. tagreader.Reader's methods accept a context for cancellation
// checks between chunks but do not thread it into the underlying
// Transmitter, so enforcing the per-APDU deadline here is the natural
// seam.
type transmitter struct {
	ctx context.Context
	t   Transport
}

func (a *transmitter) Transmit(cmd []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(a.ctx, apduTimeout)
	defer cancel()

	resp, err := a.t.Transceive(ctx, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &DocumentError{Kind: KindConnectionError, Err: ctx.Err()}
		}
		return nil, &DocumentError{Kind: KindConnectionError, Err: err}
	}
	return resp, nil
}
