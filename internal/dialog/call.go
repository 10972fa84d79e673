package dialog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sebas/sipua/internal/media"
	"github.com/sebas/sipua/internal/rtpsession"
	"github.com/sebas/sipua/internal/sipmsg"
)

// Call is the application-facing handle to an answered dialog: a
// signaling handler and an RTP session, each run for the
// life of the call in its own task, joined by the control and media
// channels the application reads/writes.
type Call struct {
	params  *SessionParameters
	handler *callHandler
	session *rtpsession.Session

	cancel context.CancelFunc
	wg     sync.WaitGroup

	finished atomic.Bool
}

func newCall(s *Socket, params *SessionParameters, inbound chan *sipmsg.Message, session *rtpsession.Session) *Call {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Call{
		params:  params,
		handler: newCallHandler(s, params, inbound),
		session: session,
		cancel:  cancel,
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.handler.run(ctx)
		c.finished.Store(true)
	}()
	go func() {
		defer c.wg.Done()
		_ = c.session.Run(ctx)
	}()

	return c
}

// RemoteURI returns the other party's URI as recorded in the
// SessionParameters at dialog establishment.
func (c *Call) RemoteURI() sipmsg.URI {
	return c.params.RemoteURI()
}

// SendAudio enqueues interleaved stereo f32 samples at 48kHz for
// transmission. Returns an error once the dialog has terminated.
func (c *Call) SendAudio(samples []float32) error {
	if c.finished.Load() {
		return ErrAlreadyTerminated
	}
	select {
	case c.session.FromApplication <- media.AudioMedia(samples):
		return nil
	default:
		return fmt.Errorf("dialog: outbound media queue full")
	}
}

// SendDTMF enqueues a telephone-event edge for transmission.
func (c *Call) SendDTMF(event uint8, keyUp bool) error {
	if c.finished.Load() {
		return ErrAlreadyTerminated
	}
	select {
	case c.session.FromApplication <- media.TelephoneEventMedia(event, keyUp):
		return nil
	default:
		return fmt.Errorf("dialog: outbound media queue full")
	}
}

// RecvMedia returns the channel of decoded media (audio, DTMF edges,
// and the OutputEmpty latch) arriving from the remote party.
func (c *Call) RecvMedia() <-chan media.Media {
	return c.session.ToApplication
}

// RecvControl returns the channel of dialog lifecycle events delivered
// to the application. Finished is the only event sent on it.
func (c *Call) RecvControl() <-chan CallControl {
	return c.handler.toApp
}

// RecvEither blocks until either a media event or a control event is
// available, returning whichever arrived first. A convenience over
// selecting both channels individually.
func (c *Call) RecvEither(ctx context.Context) (*media.Media, *CallControl, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case m, ok := <-c.session.ToApplication:
		if !ok {
			return nil, nil, ErrAlreadyTerminated
		}
		return &m, nil, nil
	case ctrl, ok := <-c.handler.toApp:
		if !ok {
			return nil, nil, ErrAlreadyTerminated
		}
		return nil, &ctrl, nil
	}
}

// BlockForOutputEmpty blocks until the RTP session latches an
// OutputEmpty event (its outbound buffers ran dry), or ctx is done.
func (c *Call) BlockForOutputEmpty(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-c.session.ToApplication:
			if !ok {
				return ErrAlreadyTerminated
			}
			if m.Kind == media.KindOutputEmpty {
				return nil
			}
		}
	}
}

// BlockForFinished blocks until the dialog's control channel yields
// Finished, or ctx is done.
func (c *Call) BlockForFinished(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ctrl, ok := <-c.handler.toApp:
			if !ok {
				return ErrAlreadyTerminated
			}
			if ctrl == ControlFinished {
				return nil
			}
		}
	}
}

// IsFinished reports whether the dialog has already terminated.
func (c *Call) IsFinished() bool {
	return c.finished.Load()
}

// Hangup requests a graceful termination: a BYE is queued for sending
// and the control channel then yields Finished. The 200 OK to the BYE
// is not awaited.
func (c *Call) Hangup() error {
	if c.finished.Load() {
		return ErrAlreadyTerminated
	}
	select {
	case c.handler.control <- ControlHangup:
		return nil
	default:
		return fmt.Errorf("dialog: hangup already in flight")
	}
}

// Drop aborts both of the call's tasks immediately: no
// graceful BYE is sent. Hangup must precede Drop for graceful
// shutdown. Best effort, it still makes a Finished notification
// available since Go has no destructor to run this implicitly.
func (c *Call) Drop() {
	c.cancel()
	c.session.Close()
	c.finished.Store(true)
}
