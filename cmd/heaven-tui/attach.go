package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/heaven-console/tui/internal/console"
	"github.com/heaven-console/tui/internal/screen"
	"github.com/heaven-console/tui/internal/serial"
)

// detachKey is ctrl+], as in telnet.
const detachKey = 0x1d

func newAttachCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <label>",
		Short: "Attach this terminal to a port's serial console (ctrl+] detaches)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAttach(ctx, e, args[0], cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func runAttach(ctx context.Context, e *env, label string, in io.Reader, out, errOut io.Writer) error {
	c, err := e.client()
	if err != nil {
		return err
	}

	if f, ok := in.(*os.File); ok && term.IsTerminal(f.Fd()) {
		state, err := term.MakeRaw(f.Fd())
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		defer term.Restore(f.Fd(), state)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := e.consoleOptions()
	opts.OnEvent = func(ev serial.Event) {
		switch {
		case ev.State == serial.Attached:
			fmt.Fprintf(errOut, "\r\n[attached to %s, ctrl+] detaches]\r\n", label)
		case ev.State == serial.Disconnected && ev.RetryIn > 0:
			fmt.Fprintf(errOut, "\r\n[disconnected from %s, reconnecting in %s]\r\n", label, ev.RetryIn)
		}
	}
	bridge := console.NewBridge(c, label, screen.NewRaw(out), opts)

	go forwardInput(cancel, in, bridge, e)

	err = bridge.Run(ctx)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintf(errOut, "\r\n[detached from %s]\r\n", label)
		return nil
	}
	return err
}

// forwardInput copies typed bytes to the bridge until the detach key or
// the end of input.
func forwardInput(detach context.CancelFunc, in io.Reader, bridge *serial.ConnectionManager, e *env) {
	defer detach()
	buf := make([]byte, 1024)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			i := bytes.IndexByte(chunk, detachKey)
			if i >= 0 {
				chunk = chunk[:i]
			}
			if len(chunk) > 0 {
				if err := bridge.Send(chunk); err != nil {
					e.logger.Debug().Err(err).Int("bytes", len(chunk)).Msg("input dropped")
				}
			}
			if i >= 0 {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
