package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/parthd4/hubspot-cli/internal/devsync"
)

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second. In-flight requests get a chance to finish
// on the first signal, while a hung command can still be killed.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, initiating graceful shutdown",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit",
				slog.String("signal", sig.String()),
			)
			os.Exit(1)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}

// signalStopReason maps a termination signal to the dev session stop
// reason. A hangup leaves the staged build open.
func signalStopReason(sig os.Signal) devsync.StopReason {
	if sig == syscall.SIGHUP {
		return devsync.StopHangup
	}

	return devsync.StopInterrupt
}

// stopSignals delivers one stop reason for the first SIGINT, SIGTERM or
// SIGHUP and force-exits on a second signal. The returned function stops
// signal delivery.
func stopSignals(logger *slog.Logger) (<-chan devsync.StopReason, func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	out := make(chan devsync.StopReason, 1)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, stopping dev session",
				slog.String("signal", sig.String()),
			)
			out <- signalStopReason(sig)
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit",
				slog.String("signal", sig.String()),
			)
			os.Exit(1)
		case <-done:
			return
		}
	}()

	return out, func() {
		signal.Stop(sigCh)
		close(done)
	}
}
