package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/lightscan/internal/devtools"
	"github.com/nao1215/lightscan/internal/driver"
)

// Exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitProtocol    = 67
	exitInterrupted = 130
)

// errInterrupted marks a run stopped by SIGINT or SIGTERM.
var errInterrupted = errors.New("interrupted")

// NewRootCmd creates the root command for lightscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lightscan",
		Short: "Audit web pages for performance and best practices",
		Long: `lightscan audits a web page through Chrome's remote debugging protocol.

It loads the page under mobile device emulation and throttling, records a
performance trace and the network activity, and scores the page on
performance, progressive web app and best practice audits.

Start Chrome with a debugging port before running an audit:
  google-chrome --headless --remote-debugging-port=9222`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := NewRootCmd().Execute()
	if err != nil {
		printError(os.Stderr, err)
	}
	return exitCode(err)
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errInterrupted), errors.Is(err, context.Canceled):
		return exitInterrupted
	case isProtocolError(err):
		return exitProtocol
	default:
		return exitError
	}
}

// isProtocolError reports whether err means the browser could not be
// reached or the page did not load.
func isProtocolError(err error) bool {
	return errors.Is(err, driver.ErrPageLoadTimeout) ||
		errors.Is(err, devtools.ErrDebuggerNotReady) ||
		errors.Is(err, devtools.ErrDetached) ||
		errors.Is(err, devtools.ErrConnectionClosed) ||
		errors.Is(err, context.DeadlineExceeded)
}

// printError writes err and, for protocol errors, what to try next.
func printError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err)

	switch {
	case errors.Is(err, driver.ErrPageLoadTimeout):
		fmt.Fprintln(w, "\nThe page did not finish loading in time.")
		fmt.Fprintln(w, "Check that the URL responds, or raise --max-wait-for-load.")
	case isProtocolError(err) && !errors.Is(err, errInterrupted):
		fmt.Fprintln(w, "\nUnable to talk to the browser over the remote debugging protocol.")
		fmt.Fprintln(w, "Make sure Chrome is running with --remote-debugging-port and that")
		fmt.Fprintln(w, "--port and --hostname point at it, then try again.")
	}
}
