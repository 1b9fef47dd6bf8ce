// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	safearchive "github.com/hashicorp/go-safearchive"
	"github.com/hashicorp/go-safearchive/events"
	"golang.org/x/sync/errgroup"
)

// CLI are the cli parameters for the safearchive binary
type CLI struct {
	MaxInputSize     string           `optional:"" default:"1GiB" help:"Maximum size of an archive file. (disable check: -1)"`
	NestedScanDepth  uint32           `optional:"" default:"1" help:"Nesting levels that are measured by opening nested archives. (1: estimate only)"`
	Telemetry        bool             `short:"T" optional:"" help:"Print telemetry data to log after each operation."`
	Verbose          bool             `short:"v" optional:"" help:"Verbose logging."`
	VerifyMagicBytes bool             `optional:"" help:"Require the archive content to match its file extension."`
	Version          kong.VersionFlag `short:"V" optional:"" help:"Print release version information."`

	Analyze   AnalyzeCmd   `cmd:"" help:"Analyze archives without extracting them."`
	Extract   ExtractCmd   `cmd:"" help:"Validate an archive and extract it."`
	IsArchive IsArchiveCmd `cmd:"" name:"is-archive" help:"Report whether files carry a known archive extension."`
}

// globals are passed to every command.
type globals struct {
	engine *safearchive.Engine
	logger *slog.Logger
	stdout io.Writer
}

// Run the entrypoint into safearchive as a cli tool
func Run(version, commit, date string) {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("safearchive"),
		kong.Description("Analyze and safely extract untrusted archives"),
		kong.UsageOnError(),
		kong.Vars{
			"version": fmt.Sprintf("%s (%s), commit %s, built at %s", filepath.Base(os.Args[0]), version, commit, date),
		},
	)

	g, err := cli.globals(os.Stdout, os.Stderr)
	ctx.FatalIfErrorf(err)
	ctx.FatalIfErrorf(ctx.Run(g))
}

// globals creates the engine from the global flags.
func (cli *CLI) globals(stdout, stderr io.Writer) (*globals, error) {
	// Check for verbose output
	logLevel := slog.LevelWarn
	if cli.Verbose {
		logLevel = slog.LevelDebug
	}

	// setup logger
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	maxInputSize, err := parseSize(cli.MaxInputSize)
	if err != nil {
		return nil, fmt.Errorf("invalid max input size: %w", err)
	}

	// setup telemetry hook
	telemetryToLog := func(ctx context.Context, td *safearchive.TelemetryData) {
		if cli.Telemetry {
			logger.Info("operation finished", "telemetry", td)
		}
	}

	engine := safearchive.New(
		safearchive.WithEventSink(events.NewLogSink(logger)),
		safearchive.WithLogger(logger),
		safearchive.WithMaxInputSize(maxInputSize),
		safearchive.WithNestedScanDepth(cli.NestedScanDepth),
		safearchive.WithTelemetryHook(telemetryToLog),
		safearchive.WithVerifyMagicBytes(cli.VerifyMagicBytes),
	)

	return &globals{engine: engine, logger: logger, stdout: stdout}, nil
}

// AnalyzeCmd analyzes one or more archives concurrently.
type AnalyzeCmd struct {
	Archives []string `arg:"" name:"archive" help:"Paths to archives."`
	JSON     bool     `short:"j" optional:"" help:"Print the analysis as JSON."`
	Parallel int      `short:"p" optional:"" default:"4" help:"Number of archives analyzed in parallel."`
	Strict   bool     `short:"s" optional:"" help:"Fail if an archive is suspicious."`
}

// analysis is the outcome of analyzing a single archive.
type analysis struct {
	Archive string                   `json:"archive"`
	Info    *safearchive.ArchiveInfo `json:"info,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

// Run analyzes all archives and prints the results in argument order.
func (a *AnalyzeCmd) Run(g *globals) error {
	results := make([]analysis, len(a.Archives))

	eg, ctx := errgroup.WithContext(context.Background())
	eg.SetLimit(max(a.Parallel, 1))
	for i, archive := range a.Archives {
		i, archive := i, archive
		eg.Go(func() error {
			results[i].Archive = archive
			info, err := g.engine.AnalyzeArchive(ctx, archive)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Info = info
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if err := a.print(g.stdout, results); err != nil {
		return err
	}

	var failed, suspicious int
	for _, r := range results {
		switch {
		case len(r.Error) > 0:
			failed++
		case r.Info.IsSuspicious:
			suspicious++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d archives could not be analyzed", failed, len(results))
	}
	if a.Strict && suspicious > 0 {
		return fmt.Errorf("%d of %d archives are suspicious", suspicious, len(results))
	}
	return nil
}

func (a *AnalyzeCmd) print(w io.Writer, results []analysis) error {
	if a.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, r := range results {
		if len(r.Error) > 0 {
			fmt.Fprintf(w, "%s: error: %s\n", r.Archive, r.Error)
			continue
		}
		info := r.Info
		fmt.Fprintf(w, "%s: %s, %d entries, %s -> %s (ratio %.1f:1), nesting level %d, suspicious: %t\n",
			r.Archive, info.Format, info.TotalFiles,
			humanize.IBytes(info.TotalCompressedSize), humanize.IBytes(info.TotalUncompressedSize),
			info.CompressionRatio, info.NestingLevel, info.IsSuspicious)
		for _, warning := range info.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warning)
		}
	}
	return nil
}

// ExtractCmd validates and extracts a single archive.
type ExtractCmd struct {
	Archive         string        `arg:"" name:"archive" help:"Path to archive." type:"existingfile"`
	Destination     string        `arg:"" name:"destination" default:"." help:"Output directory."`
	AllowExt        []string      `optional:"" name:"allow-ext" help:"Allowed file extensions, e.g. .txt,.png. (default: all)"`
	ContinueOnError bool          `short:"C" optional:"" help:"Continue extraction on per file errors."`
	MaxFileSize     string        `optional:"" help:"Maximum size of a single file, e.g. 100MiB."`
	MaxFiles        string        `optional:"" help:"Maximum number of entries."`
	MaxNestingLevel string        `optional:"" help:"Maximum nesting level of archives in archives. (no nested archives: 0)"`
	MaxTotalSize    string        `optional:"" help:"Maximum extraction size, e.g. 1GiB."`
	NoValidatePaths bool          `optional:"" help:"[Dangerous!] Disable path sanitization for trusted archives."`
	Overwrite       bool          `short:"O" optional:"" help:"Overwrite if exist."`
	Policy          string        `short:"P" optional:"" help:"YAML policy file with extraction limits." type:"existingfile"`
	Stream          bool          `short:"s" optional:"" help:"Stream entries instead of buffering them in memory."`
	Timeout         time.Duration `optional:"" default:"60s" help:"Maximum time the extraction may take. (disable: 0)"`
}

// Run extracts the archive and prints the result as JSON.
func (e *ExtractCmd) Run(g *globals) error {
	opts, err := e.options()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	extract := g.engine.ExtractArchive
	if e.Stream {
		extract = g.engine.ExtractArchiveStreaming
	}
	result, err := extract(ctx, e.Archive, opts)
	if result != nil {
		enc := json.NewEncoder(g.stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil {
			return encErr
		}
	}
	if err != nil {
		return fmt.Errorf("error during extraction: %w", err)
	}
	return nil
}

// options merges the policy file, if any, with the flags. Flags win.
func (e *ExtractCmd) options() (*safearchive.ExtractionOptions, error) {
	opts := safearchive.DefaultExtractionOptions()
	if len(e.Policy) > 0 {
		var err error
		if opts, err = safearchive.LoadPolicyFile(e.Policy); err != nil {
			return nil, err
		}
	}

	opts.ExtractPath = e.Destination
	if len(e.MaxTotalSize) > 0 {
		size, err := humanize.ParseBytes(e.MaxTotalSize)
		if err != nil {
			return nil, fmt.Errorf("invalid max total size: %w", err)
		}
		opts.MaxTotalSize = size
	}
	if len(e.MaxFileSize) > 0 {
		size, err := humanize.ParseBytes(e.MaxFileSize)
		if err != nil {
			return nil, fmt.Errorf("invalid max file size: %w", err)
		}
		opts.MaxFileSize = size
	}
	if len(e.MaxFiles) > 0 {
		n, err := parseCount(e.MaxFiles)
		if err != nil {
			return nil, fmt.Errorf("invalid max files: %w", err)
		}
		opts.MaxFiles = n
	}
	if len(e.MaxNestingLevel) > 0 {
		n, err := parseCount(e.MaxNestingLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid max nesting level: %w", err)
		}
		opts.MaxNestingLevel = n
	}
	if len(e.AllowExt) > 0 {
		opts.AllowedExtensions = e.AllowExt
	}
	if e.Overwrite {
		opts.Overwrite = true
	}
	if e.NoValidatePaths {
		opts.ValidatePaths = false
	}
	if e.ContinueOnError {
		opts.ContinueOnError = true
	}
	return opts, nil
}

// IsArchiveCmd checks file extensions.
type IsArchiveCmd struct {
	Paths []string `arg:"" name:"path" help:"File names to check."`
}

// Run prints one line per path.
func (c *IsArchiveCmd) Run(g *globals) error {
	for _, p := range c.Paths {
		format := "-"
		if f, err := safearchive.DetectFormat(p); err == nil {
			format = f.String()
		}
		fmt.Fprintf(g.stdout, "%s\t%t\t%s\n", p, safearchive.IsArchive(p), format)
	}
	return nil
}

// parseSize parses a human readable size. "-1" disables a limit.
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "-1" {
		return -1, nil
	}
	size, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if size > math.MaxInt64 {
		return 0, fmt.Errorf("size %s is too large", s)
	}
	return int64(size), nil
}

// parseCount parses a non negative count that fits into 32 bits.
func parseCount(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
