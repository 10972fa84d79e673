// Package manager implements the Manager: the application's entry
// point, owning the process-wide SIP context (config plus RTP port
// allocator) and the single socket connection.
package manager

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sebas/sipua/internal/config"
	"github.com/sebas/sipua/internal/dialog"
	"github.com/sebas/sipua/internal/logger"
	"github.com/sebas/sipua/internal/portpool"
	"github.com/sebas/sipua/internal/sipmsg"
)

const incomingQueueDepth = 16

// Re-exported so applications need only import this package.
type (
	Config       = config.Config
	Call         = dialog.Call
	IncomingCall = dialog.IncomingCall
	OutgoingCall = dialog.OutgoingCall
	CallControl  = dialog.CallControl
)

var (
	ErrTransportClosed   = dialog.ErrTransportClosed
	ErrInvalidSDP        = dialog.ErrInvalidSDP
	ErrNoCompatibleCodec = dialog.ErrNoCompatibleCodec
	ErrAuthRequired      = dialog.ErrAuthRequired
	ErrCancelled         = dialog.ErrCancelled
	ErrAlreadyTerminated = dialog.ErrAlreadyTerminated
)

// Manager owns one SIP context: its config, RTP port range, and (once
// Start succeeds) its socket connection. Multiple Managers in the same
// process must each own an independent Manager/port range.
type Manager struct {
	cfg   *config.Config
	ports *portpool.Allocator

	socket     *dialog.Socket
	incomingCh chan *dialog.IncomingCall

	cancel  context.CancelFunc
	running atomic.Bool
}

// FromConfig constructs a Manager without connecting it. Start
// performs the registration handshake and begins processing traffic.
func FromConfig(cfg *config.Config) *Manager {
	return &Manager{
		cfg:        cfg,
		ports:      portpool.New(cfg.RTPPortStart, cfg.RTPPortEnd),
		incomingCh: make(chan *dialog.IncomingCall, incomingQueueDepth),
	}
}

// Start connects the SIP socket, which performs REGISTER synchronously,
// then spawns its run-loop task. Any fatal
// transport failure afterward simply stops the run-loop; IsRunning
// reflects that without the caller having to have awaited it.
func (m *Manager) Start() error {
	socket, err := dialog.Connect(m.cfg, m.ports, m.incomingCh)
	if err != nil {
		return fmt.Errorf("manager: start: %w", err)
	}
	m.socket = socket

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running.Store(true)

	go func() {
		if err := socket.Run(ctx); err != nil {
			logger.Warn("manager: socket run-loop exited", "err", err)
		}
		m.running.Store(false)
	}()

	return nil
}

// Stop drops the socket: aborts its run-loop and closes the TCP
// connection. Dialog routing entries are left as they are and their
// channels are not closed, so live calls are not notified by Stop.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.socket != nil {
		_ = m.socket.Close()
	}
	m.running.Store(false)
}

// IsRunning reports whether the socket's run-loop is still active.
func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

// Call places an outgoing call to "to" (a bare SIP URI, e.g.
// "sip:1002@192.0.2.1"), sending the INVITE immediately. The caller
// must then drive WaitForAnswer to completion.
func (m *Manager) Call(to string) (*dialog.OutgoingCall, error) {
	if !m.running.Load() {
		return nil, fmt.Errorf("manager: not running")
	}
	uri, err := sipmsg.ParseURI(to)
	if err != nil {
		return nil, fmt.Errorf("manager: invalid destination %q: %w", to, err)
	}
	port := m.ports.Next()
	return dialog.Dial(m.socket, uri, m.cfg.Username, m.cfg.OwnAddr, port)
}

// RecvIncoming returns the next queued incoming call, if any, without
// blocking.
func (m *Manager) RecvIncoming() (*dialog.IncomingCall, bool) {
	select {
	case ic := <-m.incomingCh:
		return ic, true
	default:
		return nil, false
	}
}
