package xmlpost

import (
	"context"
	"errors"
	"fmt"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"hl7tools/internal/ui"
)

// ErrNotSent is returned by a no-send run.
var ErrNotSent = errors.New("documents rendered but not sent")

// Options control a batch.
type Options struct {
	Overrides    []Override
	ShowDocument bool
	ShowResponse bool
	NoSend       bool
}

// Batch posts files one at a time and stops at the first failure.
type Batch struct {
	poster   *Poster
	reporter *ui.Printer
	logger   *zap.Logger
}

// NewBatch returns a Batch. poster may be nil for no-send runs.
func NewBatch(poster *Poster, reporter *ui.Printer, logger *zap.Logger) *Batch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batch{poster: poster, reporter: reporter, logger: logger}
}

// Run processes files in order.
func (b *Batch) Run(ctx context.Context, files []string, opts Options) error {
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.one(ctx, f, opts); err != nil {
			b.logger.Error("Batch aborted", zap.String("file", f), zap.Error(err))
			return fmt.Errorf("%s: %w", f, err)
		}
	}
	if opts.NoSend {
		return ErrNotSent
	}
	return nil
}

func (b *Batch) one(ctx context.Context, file string, opts Options) error {
	doc, err := Load(file)
	if err != nil {
		return err
	}
	if err := Rewrite(doc, opts.Overrides); err != nil {
		return err
	}

	body, err := Encode(doc)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	if opts.ShowDocument || opts.NoSend {
		b.reporter.Message(file, string(body))
	}
	if opts.NoSend {
		b.reporter.Result(ui.Result{Source: file, Type: rootTag(doc), Outcome: "not sent", Status: ui.StatusSkipped})
		return nil
	}
	if b.poster == nil {
		return errors.New("no endpoint configured")
	}

	resp, err := b.poster.Post(ctx, body)
	if resp != nil {
		status := ui.StatusOK
		if err != nil {
			status = ui.StatusFail
		}
		b.reporter.Result(ui.Result{Source: file, Type: rootTag(doc), Outcome: resp.Status, Status: status})
		if opts.ShowResponse && len(resp.Body) > 0 {
			b.reporter.Response(string(resp.Body))
		}
	}
	return err
}

func rootTag(doc *etree.Document) string {
	if r := doc.Root(); r != nil {
		return r.Tag
	}
	return ""
}
