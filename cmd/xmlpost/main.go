// Command xmlpost rewrites elements of XML documents and POSTs each one to
// an HTTP endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hl7tools/internal/config"
	"hl7tools/internal/logging"
	"hl7tools/internal/sender"
	"hl7tools/internal/ui"
	"hl7tools/internal/xmlpost"
)

type options struct {
	configPath string
	verbose    bool
	noColor    bool

	url          string
	contentType  string
	headers      []string
	sets         []string
	timeout      time.Duration
	showDocument bool
	showResponse bool
	noSend       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	code := exitCode(err)
	switch code {
	case sender.ExitOK:
	case sender.ExitNotSent:
		fmt.Fprintln(os.Stderr, "⚠️ ", err)
	default:
		fmt.Fprintln(os.Stderr, "❌", err)
	}
	os.Exit(code)
}

// exitCode follows hl7send: 2 for usage errors, 4 for --no-send runs.
func exitCode(err error) int {
	if errors.Is(err, xmlpost.ErrNotSent) {
		return sender.ExitNotSent
	}
	return sender.ExitCode(err)
}

func newRootCmd() *cobra.Command {
	o := &options{}
	var logger *zap.Logger
	var cfg *config.Config

	cmd := &cobra.Command{
		Use:   "xmlpost [flags] [xpath=value ...] file...",
		Short: "Rewrite XML documents and POST them to an HTTP endpoint",
		Long: `xmlpost loads each XML file, applies the overrides in order and POSTs
the document. Overrides use etree paths; a trailing /@name sets an attribute:

  xmlpost --url https://lis.example.org/orders \
      './/patient/id=42' './/order/@priority=STAT' order.xml

A path that matches nothing stops the batch, as does any non-2xx status.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(o.configPath); err != nil {
				return sender.Usagef("%v", err)
			}
			logger, err = logging.New(cfg.Logging, o.verbose)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, o, cfg.XML, logger, args)
		},
	}
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return sender.Usagef("%v", err)
	})

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "YAML config file")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging on stderr")
	f.BoolVar(&o.noColor, "no-color", false, "plain report output")
	f.StringVarP(&o.url, "url", "u", "", "endpoint URL (or XMLPOST_URL)")
	f.StringVar(&o.contentType, "content-type", "", "request Content-Type (default "+xmlpost.DefaultContentType+")")
	f.StringArrayVarP(&o.headers, "header", "H", nil, "extra request header 'Name: value' (repeatable)")
	f.StringArrayVarP(&o.sets, "set", "s", nil, "override xpath=value, applied before positional overrides (repeatable)")
	f.DurationVarP(&o.timeout, "timeout", "t", 0, "HTTP timeout (default from config, 30s)")
	f.BoolVarP(&o.showDocument, "show", "m", false, "print each document before posting it")
	f.BoolVarP(&o.showResponse, "show-response", "r", false, "print each response body")
	f.BoolVarP(&o.noSend, "no-send", "n", false, "print the rewritten documents without posting them")
	return cmd
}

func run(cmd *cobra.Command, o *options, xc config.XMLConfig, logger *zap.Logger, args []string) error {
	overrides, files, err := splitArgs(o.sets, args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return sender.Usagef("no XML files given")
	}

	if cmd.Flags().Changed("url") {
		xc.URL = o.url
	}
	if cmd.Flags().Changed("content-type") {
		xc.ContentType = o.contentType
	}
	timeout := xc.GetTimeout()
	if cmd.Flags().Changed("timeout") {
		timeout = o.timeout
	}
	headers, err := mergeHeaders(xc.Headers, o.headers)
	if err != nil {
		return err
	}

	var poster *xmlpost.Poster
	if !o.noSend {
		if xc.URL == "" {
			return sender.Usagef("no endpoint: set --url or XMLPOST_URL")
		}
		poster = xmlpost.NewPoster(xmlpost.PosterConfig{
			URL:         xc.URL,
			ContentType: xc.ContentType,
			Headers:     headers,
			Timeout:     timeout,
			Logger:      logger,
		})
	}

	batch := xmlpost.NewBatch(poster, ui.NewPrinter(cmd.OutOrStdout(), o.noColor), logger)
	return batch.Run(cmd.Context(), files, xmlpost.Options{
		Overrides:    overrides,
		ShowDocument: o.showDocument,
		ShowResponse: o.showResponse,
		NoSend:       o.noSend,
	})
}

func splitArgs(sets, args []string) ([]xmlpost.Override, []string, error) {
	var overrides []xmlpost.Override
	for _, s := range sets {
		ov, err := xmlpost.ParseOverride(s)
		if err != nil {
			return nil, nil, sender.Usagef("--set: %v", err)
		}
		overrides = append(overrides, ov)
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
		ov, err := xmlpost.ParseOverride(arg)
		if err != nil {
			return nil, nil, sender.Usagef("%v", err)
		}
		overrides = append(overrides, ov)
	}
	return overrides, files, nil
}

// mergeHeaders layers "Name: value" flags over the configured headers.
func mergeHeaders(base map[string]string, flags []string) (map[string]string, error) {
	out := make(map[string]string, len(base)+len(flags))
	for k, v := range base {
		out[k] = v
	}
	for _, h := range flags {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, sender.Usagef("header %q: want 'Name: value'", h)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}
