// Command hl7send stamps HL7 v2 message files with a fresh control id and
// timestamp, applies field overrides, sends each one over MLLP and checks
// the acknowledgment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hl7tools/internal/config"
	"hl7tools/internal/controlid"
	"hl7tools/internal/logging"
	"hl7tools/internal/mllp"
	"hl7tools/internal/prepare"
	"hl7tools/internal/sender"
	"hl7tools/internal/ui"
)

// app carries what the commands share after PersistentPreRunE.
type app struct {
	configPath string
	verbose    bool
	noColor    bool

	cfg    *config.Config
	logger *zap.Logger

	send   sendFlags
	listen listenFlags
}

type sendFlags struct {
	host      string
	port      int
	serial    string
	timeout   time.Duration
	keepAlive bool
	retries   int

	sets            []string
	noRoot          bool
	keepID          bool
	keepTimestamp   bool
	timestampLayout string

	showMessage     bool
	showResponse    bool
	noSend          bool
	continueOnError bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	code := sender.ExitCode(err)
	switch {
	case err == nil:
	case code == sender.ExitAckFailures || code == sender.ExitNotSent:
		fmt.Fprintln(os.Stderr, "⚠️ ", err)
	default:
		fmt.Fprintln(os.Stderr, "❌", err)
	}
	os.Exit(code)
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "hl7send [flags] [path=value ...] file...",
		Short: "Send HL7 v2 message files over MLLP and check the acknowledgments",
		Long: `hl7send reads one HL7 v2 message per file (one segment per line), sets
MSH-10 to a fresh control id and MSH-7 to the current time, applies the
given field overrides in order, sends the message over MLLP and checks the
MSA acknowledgment code.

Overrides are path=value pairs and must come before the file names:

  hl7send -H lis.local -p 2575 PID-5.1=DOE 'OBX(2)-5=7.1' oru.hl7 adt.hl7

Paths are SEG[(n)]-F[(r)][.C[.S]]. By default they are anchored at the
message root and address the first SEG; with --no-root a path without a
leading '/' addresses every SEG in the message.

Exit status: 0 all accepted, 1 fatal error, 2 usage error,
3 finished with rejected or errored acknowledgments (--continue),
4 messages shown but not sent (--no-send).`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return sender.Usagef("%v", err)
			}
			a.cfg = cfg

			a.logger, err = logging.New(cfg.Logging, a.verbose)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: a.runSend,
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return sender.Usagef("%v", err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging on stderr")
	pf.BoolVar(&a.noColor, "no-color", false, "plain report output")

	f := root.Flags()
	f.StringVarP(&a.send.host, "host", "H", "", "receiver host")
	f.IntVarP(&a.send.port, "port", "p", 0, "receiver port")
	f.StringVar(&a.send.serial, "serial", "", "send over a serial port instead: serial://PORT?baud=N")
	f.DurationVarP(&a.send.timeout, "timeout", "t", 0, "time to wait for each acknowledgment (default from config, 30s)")
	f.BoolVar(&a.send.keepAlive, "keep-alive", false, "reuse one connection for every file")
	f.IntVar(&a.send.retries, "retries", 0, "resend attempts after a connection failure")

	f.StringArrayVarP(&a.send.sets, "set", "s", nil, "field override path=value, applied before positional overrides (repeatable)")
	f.BoolVar(&a.send.noRoot, "no-root", false, "use override paths verbatim instead of anchoring them at the message root")
	f.BoolVar(&a.send.keepID, "keep-id", false, "keep the control id from the file")
	f.BoolVar(&a.send.keepTimestamp, "keep-timestamp", false, "keep the timestamp from the file")
	f.StringVar(&a.send.timestampLayout, "timestamp-layout", "", "Go time layout for MSH-7 (default "+prepare.TimestampLayout+")")

	f.BoolVarP(&a.send.showMessage, "show-message", "m", false, "print each message before sending it")
	f.BoolVarP(&a.send.showResponse, "show-response", "r", false, "print each acknowledgment")
	f.BoolVarP(&a.send.noSend, "no-send", "n", false, "print the prepared messages without sending them")
	f.BoolVarP(&a.send.continueOnError, "continue", "c", false, "keep going after a rejected or errored acknowledgment")

	root.AddCommand(newListenCmd(a))
	return root
}

func (a *app) runSend(cmd *cobra.Command, args []string) error {
	overrides, files, err := splitArgs(a.send.sets, args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return sender.Usagef("no message files given")
	}

	hl7cfg := a.hl7Config(cmd)

	var transport sender.Transport
	if !a.send.noSend {
		target := hl7cfg.Target()
		if target == "" {
			return sender.Usagef("no receiver: set --host and --port, or --serial")
		}
		dialer, err := mllp.ParseTarget(target, hl7cfg.GetTimeout())
		if err != nil {
			return sender.Usagef("%v", err)
		}
		client := mllp.NewClient(dialer, mllp.ClientConfig{
			Timeout:   hl7cfg.GetTimeout(),
			KeepAlive: hl7cfg.KeepAlive,
			Logger:    a.logger,
		})
		defer client.Close()
		transport = client
		a.logger.Debug("Sending", zap.Stringer("target", dialer), zap.Int("files", len(files)))
	}

	prep := prepare.New(controlid.New(),
		prepare.WithTimestampLayout(hl7cfg.TimestampLayout),
		prepare.WithLogger(a.logger))

	opts := sender.Options{
		Prepare: prepare.Options{
			GenerateID:     !a.send.keepID,
			StampTimestamp: !a.send.keepTimestamp,
			Overrides:      overrides,
			RootRelative:   !a.send.noRoot,
		},
		ShowMessage:        a.send.showMessage,
		ShowResponse:       a.send.showResponse,
		NoSend:             a.send.noSend,
		ContinueOnAckError: a.send.continueOnError,
		Retry:              hl7cfg.RetryPolicy(),
	}

	s := sender.New(prep, transport, ui.NewPrinter(cmd.OutOrStdout(), a.noColor), a.logger)
	_, err = s.Run(cmd.Context(), sender.FileSources(files), opts)
	return err
}

// hl7Config layers the flags that were set over the loaded config.
func (a *app) hl7Config(cmd *cobra.Command) config.HL7Config {
	c := a.cfg.HL7
	flags := cmd.Flags()
	if flags.Changed("host") {
		c.Host = a.send.host
	}
	if flags.Changed("port") {
		c.Port = a.send.port
	}
	if flags.Changed("serial") {
		c.Serial = a.send.serial
	}
	if flags.Changed("timeout") {
		c.Timeout = a.send.timeout.String()
	}
	if flags.Changed("keep-alive") {
		c.KeepAlive = a.send.keepAlive
	}
	if flags.Changed("retries") {
		c.Retry.MaxAttempts = a.send.retries + 1
	}
	if flags.Changed("timestamp-layout") {
		c.TimestampLayout = a.send.timestampLayout
	}
	return c
}

// splitArgs returns the overrides (--set values first, then positional
// path=value arguments) and the file names. An override after a file name
// is a usage error.
func splitArgs(sets, args []string) ([]prepare.Override, []string, error) {
	var overrides []prepare.Override
	for _, s := range sets {
		o, err := prepare.ParseOverride(s)
		if err != nil {
			return nil, nil, sender.Usagef("--set: %v", err)
		}
		overrides = append(overrides, o)
	}

	var files []string
	for _, arg := range args {
		if !strings.Contains(arg, "=") {
			files = append(files, arg)
			continue
		}
		if len(files) > 0 {
			return nil, nil, sender.Usagef("override %q after file %q: overrides must precede file names", arg, files[len(files)-1])
		}
		o, err := prepare.ParseOverride(arg)
		if err != nil {
			return nil, nil, sender.Usagef("%v", err)
		}
		overrides = append(overrides, o)
	}
	return overrides, files, nil
}
