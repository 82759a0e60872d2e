package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hl7tools/internal/ack"
	"hl7tools/internal/controlid"
	"hl7tools/internal/hl7"
	"hl7tools/internal/mllp"
	"hl7tools/internal/results"
	"hl7tools/internal/sender"
	"hl7tools/internal/ui"
)

type listenFlags struct {
	addr    string
	serial  string
	code    string
	text    string
	forward string
}

func newListenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Accept MLLP connections and acknowledge every message",
		Long: `listen runs a small MLLP receiver. Every message is answered with an
ACK carrying the configured code. With --forward, OBX observations of each
message are posted as JSON to the given URL.

With --serial the receiver answers frames on a serial port instead of
accepting TCP connections.

Useful as a test peer for hl7send.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return sender.Usagef("listen takes no arguments, got %q", args)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch a.listen.code {
			case ack.CodeAccept, ack.CodeReject, ack.CodeError:
			default:
				return sender.Usagef("--ack %q: want AA, AR or AE", a.listen.code)
			}

			responder := a.ackHandler(ui.NewPrinter(cmd.OutOrStdout(), a.noColor), time.Now)
			defer responder.Wait()

			srv := &mllp.Server{Handler: responder, Logger: a.logger}
			if a.listen.serial != "" {
				return a.serveSerial(cmd, srv)
			}

			ln, err := net.Listen("tcp", a.listen.addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", a.listen.addr, err)
			}
			a.logger.Info("Listening for HL7 messages", zap.Stringer("addr", ln.Addr()))
			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", ln.Addr())
			return srv.Serve(cmd.Context(), ln)
		},
	}

	f := cmd.Flags()
	f.StringVar(&a.listen.addr, "addr", ":2575", "TCP listen address")
	f.StringVar(&a.listen.serial, "serial", "", "listen on a serial port instead: serial://PORT?baud=N")
	f.StringVar(&a.listen.code, "ack", ack.CodeAccept, "acknowledgment code to answer with (AA, AR or AE)")
	f.StringVar(&a.listen.text, "ack-text", "", "MSA-3 text message")
	f.StringVar(&a.listen.forward, "forward", "", "post extracted observations as JSON to this URL")
	return cmd
}

// serveSerial answers frames on the serial port until interrupted. Reads
// block without a timeout; cancellation closes the port.
func (a *app) serveSerial(cmd *cobra.Command, srv *mllp.Server) error {
	if !strings.HasPrefix(a.listen.serial, "serial://") {
		return sender.Usagef("--serial %q: want serial://PORT?baud=N", a.listen.serial)
	}
	dialer, err := mllp.ParseTarget(a.listen.serial, 0)
	if err != nil {
		return sender.Usagef("%v", err)
	}

	port, err := dialer.Dial(cmd.Context())
	if err != nil {
		return err
	}
	a.logger.Info("Listening for HL7 messages", zap.Stringer("port", dialer))
	fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", dialer)

	if err := srv.ServeStream(cmd.Context(), port); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ackResponder acknowledges every message and, when a forward URL is set,
// forwards its observations after the acknowledgment is built. Forwarding
// runs in the background so the peer never waits on the HTTP endpoint;
// failures are logged and do not change the acknowledgment.
type ackResponder struct {
	code, text string
	now        func() time.Time
	ids        *controlid.Generator
	fwd        *results.Forwarder
	logger     *zap.Logger

	mu      sync.Mutex
	printer *ui.Printer

	forwards sync.WaitGroup
}

func (a *app) ackHandler(printer *ui.Printer, now func() time.Time) *ackResponder {
	r := &ackResponder{
		code:    a.listen.code,
		text:    a.listen.text,
		now:     now,
		ids:     controlid.New(),
		logger:  a.logger,
		printer: printer,
	}
	if a.listen.forward != "" {
		r.fwd = results.NewForwarder(a.listen.forward, a.logger)
	}
	return r
}

// Handle builds the acknowledgment for msg.
func (r *ackResponder) Handle(ctx context.Context, msg *hl7.Message) (*hl7.Message, error) {
	resp, err := ack.Build(msg, r.code, r.text, r.ids.Next(), r.now())
	if err != nil {
		return nil, err
	}

	status := ui.StatusOK
	if r.code != ack.CodeAccept {
		status = ui.StatusWarn
	}
	r.mu.Lock()
	r.printer.Result(ui.Result{
		Type:      msg.Type(),
		ControlID: msg.ControlID(),
		Outcome:   r.code,
		Text:      r.text,
		Status:    status,
	})
	r.mu.Unlock()

	if r.fwd != nil {
		if obs := results.Extract(msg); len(obs) > 0 {
			r.forwards.Add(1)
			go r.forward(context.WithoutCancel(ctx), msg.ControlID(), obs)
		}
	}
	return resp, nil
}

func (r *ackResponder) forward(ctx context.Context, controlID string, obs []results.Observation) {
	defer r.forwards.Done()
	if err := r.fwd.Forward(ctx, obs); err != nil {
		r.logger.Warn("Failed to forward observations",
			zap.String("control_id", controlID),
			zap.Error(err))
	}
}

// Wait blocks until every background forward has finished.
func (r *ackResponder) Wait() {
	r.forwards.Wait()
}
