// Package sender runs a batch of HL7 message files through
// prepare → display → transmit → classify → report, one message at a time,
// stopping the batch on the first fatal condition.
package sender

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"hl7tools/internal/ack"
	"hl7tools/internal/hl7"
	"hl7tools/internal/prepare"
	"hl7tools/internal/retry"
	"hl7tools/internal/ui"
)

// Transport delivers a message and returns the peer's response.
type Transport interface {
	SendAndReceive(ctx context.Context, msg *hl7.Message) (*hl7.Message, error)
}

// Preparer rewrites a message before it is sent.
type Preparer interface {
	Prepare(msg *hl7.Message, opts prepare.Options) (*hl7.Message, error)
}

// Reporter receives the human-facing output of a run.
type Reporter interface {
	Message(title, body string)
	Result(r ui.Result)
	Response(body string)
	Summary(sent, failed, total int)
}

// Options control a run.
type Options struct {
	Prepare            prepare.Options
	ShowMessage        bool
	ShowResponse       bool
	NoSend             bool
	ContinueOnAckError bool
	Retry              retry.Config
}

// Status is the terminal state of a run.
type Status int

const (
	CompletedAll Status = iota
	CompletedWithAckFailures
	NotSent
	AbortedFatal
)

func (s Status) String() string {
	switch s {
	case CompletedAll:
		return "completed"
	case CompletedWithAckFailures:
		return "completed with acknowledgment failures"
	case NotSent:
		return "not sent"
	case AbortedFatal:
		return "aborted"
	default:
		return "unknown"
	}
}

// Record is what happened to one source.
type Record struct {
	Source    string
	Type      string
	ControlID string
	Outcome   ack.Outcome
	Sent      bool
}

// Summary describes a finished run.
type Summary struct {
	Status   Status
	Total    int
	Sent     int
	Accepted int
	Failed   int
	Records  []Record
}

// Sender owns the collaborators of a run.
type Sender struct {
	preparer  Preparer
	transport Transport
	reporter  Reporter
	logger    *zap.Logger
}

// New returns a Sender. transport may be nil in no-send mode.
func New(preparer Preparer, transport Transport, reporter Reporter, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{preparer: preparer, transport: transport, reporter: reporter, logger: logger}
}

// Run processes sources in order. The returned error is nil only when every
// message was sent and accepted; its Kind tells the caller why otherwise.
func (s *Sender) Run(ctx context.Context, sources []Source, opts Options) (Summary, error) {
	sum := Summary{Total: len(sources)}

	for _, src := range sources {
		rec, err := s.process(ctx, src, opts, &sum)
		if rec != nil {
			sum.Records = append(sum.Records, *rec)
		}
		if err != nil {
			sum.Status = AbortedFatal
			s.logger.Error("Batch aborted", zap.String("source", src.Name), zap.Error(err))
			return sum, err
		}
	}

	switch {
	case opts.NoSend:
		sum.Status = NotSent
		return sum, newError(KindNotSent, "", fmt.Errorf("%d message(s) rendered", sum.Total))
	case sum.Failed > 0:
		s.reporter.Summary(sum.Sent, sum.Failed, sum.Total)
		sum.Status = CompletedWithAckFailures
		return sum, newError(KindAckFailures, "", fmt.Errorf("%d of %d message(s) not accepted", sum.Failed, sum.Sent))
	default:
		s.reporter.Summary(sum.Sent, sum.Failed, sum.Total)
		sum.Status = CompletedAll
		return sum, nil
	}
}

func (s *Sender) process(ctx context.Context, src Source, opts Options, sum *Summary) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError(KindTransport, src.Name, err)
	}

	msg, err := Load(src)
	if err != nil {
		return nil, err
	}

	if _, err := s.preparer.Prepare(msg, opts.Prepare); err != nil {
		var oe *prepare.OverrideError
		if errors.As(err, &oe) {
			return nil, newError(KindOverride, src.Name, err)
		}
		return nil, newError(KindInvalidMessage, src.Name, err)
	}

	rec := &Record{Source: src.Name, Type: msg.Type(), ControlID: msg.ControlID()}
	log := s.logger.With(zap.String("source", src.Name), zap.String("control_id", rec.ControlID))

	if opts.ShowMessage || opts.NoSend {
		s.reporter.Message(src.Name, msg.String())
	}
	if opts.NoSend {
		s.reporter.Result(ui.Result{Source: src.Name, Type: rec.Type, ControlID: rec.ControlID, Outcome: "not sent", Status: ui.StatusSkipped})
		log.Debug("Message not sent")
		return rec, nil
	}

	resp, err := s.transmit(ctx, msg, opts.Retry, log)
	if err != nil {
		return rec, newError(KindTransport, src.Name, err)
	}
	rec.Sent = true
	sum.Sent++

	rec.Outcome = ack.Classify(resp)
	detail := ack.Details(resp)
	s.report(rec, detail)
	if opts.ShowResponse && resp != nil {
		s.reporter.Response(resp.String())
	}

	switch rec.Outcome {
	case ack.Accepted:
		sum.Accepted++
		log.Info("Message accepted")
		return rec, nil

	case ack.MalformedResponse:
		return rec, newError(KindMalformedResponse, src.Name, nil)

	case ack.Rejected, ack.Error:
		sum.Failed++
		kind, sentinel := KindAckRejected, ErrAckRejected
		if rec.Outcome == ack.Error {
			kind, sentinel = KindAckError, ErrAckError
		}
		if !opts.ContinueOnAckError {
			return rec, newError(kind, src.Name, ackCause(detail))
		}
		log.Warn("Continuing after negative acknowledgment",
			zap.String("code", detail.Code),
			zap.String("text", detail.Text),
			zap.NamedError("outcome", sentinel))
		return rec, nil
	}
	return rec, nil
}

func (s *Sender) transmit(ctx context.Context, msg *hl7.Message, cfg retry.Config, log *zap.Logger) (*hl7.Message, error) {
	if s.transport == nil {
		return nil, errors.New("no transport configured")
	}

	var resp *hl7.Message
	err := retry.Do(ctx, cfg, func(attempt int) error {
		if attempt > 1 {
			log.Warn("Retrying send", zap.Int("attempt", attempt))
		}
		r, err := s.transport.SendAndReceive(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return retry.NonRetryable(err)
			}
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

func (s *Sender) report(rec *Record, detail ack.Detail) {
	status := ui.StatusOK
	switch rec.Outcome {
	case ack.Rejected, ack.Error:
		status = ui.StatusWarn
	case ack.MalformedResponse:
		status = ui.StatusFail
	}

	text := detail.Text
	if text == "" && len(detail.Errors) > 0 {
		text = detail.Errors[0]
	}
	s.reporter.Result(ui.Result{
		Source:    rec.Source,
		Type:      rec.Type,
		ControlID: rec.ControlID,
		Outcome:   rec.Outcome.String(),
		Text:      text,
		Status:    status,
	})
}

func ackCause(d ack.Detail) error {
	msg := "code " + d.Code
	if d.Code == "" {
		msg = "empty code"
	}
	if d.Text != "" {
		msg += ": " + d.Text
	}
	return errors.New(msg)
}
