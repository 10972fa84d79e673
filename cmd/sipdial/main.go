// Command sipdial is a minimal demonstration client: it registers
// against a SIP server, then either places an outgoing call (to the
// SIP URI given as its first argument) or, with no argument, waits for
// and auto-accepts the next incoming one.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sebas/sipua/internal/banner"
	"github.com/sebas/sipua/internal/config"
	"github.com/sebas/sipua/internal/dialog"
	"github.com/sebas/sipua/internal/logger"
	"github.com/sebas/sipua/internal/media"
	"github.com/sebas/sipua/manager"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "sipdial:", err)
		os.Exit(1)
	}
	dest := flag.Arg(0) // optional "sip:user@host" destination; empty means wait for an incoming call

	logger.Init(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	banner.Print("SIPDIAL", []banner.ConfigLine{
		{Label: "Server", Value: cfg.ServerAddr},
		{Label: "Own Address", Value: cfg.OwnAddr},
		{Label: "Username", Value: cfg.Username},
		{Label: "RTP Range", Value: fmt.Sprintf("%d-%d", cfg.RTPPortStart, cfg.RTPPortEnd)},
		{Label: "Log Level", Value: cfg.LogLevel},
	})

	mgr := manager.FromConfig(cfg)
	if err := mgr.Start(); err != nil {
		logger.Error("sipdial: registration failed", "err", err)
		os.Exit(1)
	}
	defer mgr.Stop()
	logger.Info("sipdial: registered", "server", cfg.ServerAddr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if dest != "" {
		runOutgoing(ctx, mgr, dest)
		return
	}
	runIncoming(ctx, mgr)
}

func runOutgoing(ctx context.Context, mgr *manager.Manager, dest string) {
	oc, err := mgr.Call(dest)
	if err != nil {
		logger.Error("sipdial: call failed", "dest", dest, "err", err)
		return
	}

	call, err := oc.WaitForAnswer(ctx)
	if err != nil {
		logger.Error("sipdial: call not answered", "dest", dest, "err", err)
		return
	}
	logger.Info("sipdial: call established", "remote", call.RemoteURI().String())

	runCall(ctx, call)
}

func runIncoming(ctx context.Context, mgr *manager.Manager) {
	logger.Info("sipdial: waiting for an incoming call")

	var ic *dialog.IncomingCall
	for ic == nil {
		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
			ic, _ = mgr.RecvIncoming()
		}
	}

	logger.Info("sipdial: incoming call", "from", ic.RemoteURI().String())
	call, err := ic.Accept()
	if err != nil {
		logger.Error("sipdial: accept failed", "err", err)
		return
	}
	logger.Info("sipdial: call accepted")

	runCall(ctx, call)
}

// runCall drains media and control events until the dialog ends or ctx
// is cancelled, logging DTMF edges as they arrive.
func runCall(ctx context.Context, call *dialog.Call) {
	defer func() {
		if !call.IsFinished() {
			_ = call.Hangup()
			_ = call.BlockForFinished(ctx)
		}
	}()

	for {
		m, ctrl, err := call.RecvEither(ctx)
		if err != nil {
			return
		}
		if m != nil && m.Kind == media.KindTelephoneEvent {
			logger.Info("sipdial: dtmf", "event", m.Event, "key_up", m.KeyUp)
		}
		if ctrl != nil && *ctrl == dialog.ControlFinished {
			logger.Info("sipdial: call finished")
			return
		}
	}
}
