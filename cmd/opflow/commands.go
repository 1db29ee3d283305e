package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rendis/opflow/internal/diagram"
	"github.com/rendis/opflow/internal/engine"
	"github.com/rendis/opflow/internal/scheduler"
	"github.com/rendis/opflow/internal/store"
	"github.com/rendis/opflow/internal/telemetry"
	"github.com/rendis/opflow/pkg/mcp"
)

func (c *cli) fail(err error) int {
	fmt.Fprintf(c.stderr, "Error: %v\n", err)
	return 1
}

func (c *cli) printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return c.fail(err)
	}
	fmt.Fprintln(c.stdout, string(data))
	return 0
}

// bindConfigFlags lets flags override the loaded configuration.
func bindConfigFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")
	fs.IntVar(&cfg.ParallelLimit, "parallel-limit", cfg.ParallelLimit, "default concurrency cap for parallel steps (0 = none)")
	fs.StringVar(&cfg.OTelEndpoint, "otel-endpoint", cfg.OTelEndpoint, "OTLP/HTTP endpoint for traces (empty = disabled)")
	fs.StringVar(&cfg.HistoryDB, "history", cfg.HistoryDB, "libSQL database recording runs (empty = disabled)")
}

// parseWithFile accepts the flow file either before or after the flags.
func parseWithFile(fs *flag.FlagSet, args []string) (string, error) {
	var file string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		file, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if file == "" {
		file = fs.Arg(0)
	}
	if file == "" {
		return "", errors.New("missing flow file")
	}
	return file, nil
}

// openHistory opens and migrates the run history database.
func openHistory(ctx context.Context, path string) (*store.LibSQLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	st, err := store.NewLibSQLStore(path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return st, nil
}

// app is an engine together with what it was wired to.
type app struct {
	eng     *engine.Engine
	history *store.LibSQLStore // nil when history is disabled
	// close flushes spans and closes the history.
	close func(context.Context) error
}

// newEngine wires tracing and the optional run history into an engine.
func newEngine(ctx context.Context, cfg Config, logger *slog.Logger) (*app, error) {
	tp, shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    "opflow",
		ServiceVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	engCfg := engine.Config{
		Logger:         logger,
		TracerProvider: tp,
		ParallelLimit:  cfg.ParallelLimit,
	}

	rt := &app{close: shutdown}
	if cfg.HistoryDB != "" {
		st, err := openHistory(ctx, cfg.HistoryDB)
		if err != nil {
			_ = shutdown(ctx)
			return nil, err
		}
		engCfg.History = st
		rt.history = st
		rt.close = func(ctx context.Context) error {
			return errors.Join(shutdown(ctx), st.Close())
		}
	}

	rt.eng, err = engine.New(engCfg)
	if err != nil {
		_ = rt.close(ctx)
		return nil, err
	}
	return rt, nil
}

func readInput(inline, path string) (any, error) {
	data := []byte(inline)
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	return input, nil
}

func (c *cli) runFlow(ctx context.Context, args []string) int {
	cfg := c.cfg
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	inputJSON := fs.String("input", "", "flow input as JSON")
	inputFile := fs.String("input-file", "", "read the flow input from a JSON file")
	schedule := fs.String("schedule", "", "cron spec; re-run the flow until interrupted")
	bindConfigFlags(fs, &cfg)

	file, err := parseWithFile(fs, args)
	if err != nil {
		return c.fail(err)
	}
	input, err := readInput(*inputJSON, *inputFile)
	if err != nil {
		return c.fail(err)
	}

	logger, err := cfg.logger(c.stderr)
	if err != nil {
		return c.fail(err)
	}
	rt, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return c.fail(err)
	}
	defer func() { _ = rt.close(context.Background()) }()
	eng := rt.eng

	def, err := engine.LoadDefinitionFile(file)
	if err != nil {
		return c.fail(err)
	}
	flow, err := eng.Compile(def)
	if err != nil {
		return c.fail(err)
	}

	if *schedule == "" {
		res, err := eng.Run(ctx, flow, input)
		if err != nil {
			return c.fail(err)
		}
		return c.printJSON(res)
	}

	name := flow.Name()
	if name == "" {
		name = filepath.Base(file)
	}
	sched := scheduler.New(logger)
	err = sched.Add(name, *schedule, func(ctx context.Context) error {
		res, err := eng.Run(ctx, flow, input)
		if err != nil {
			return err
		}
		c.printJSON(res)
		return nil
	})
	if err != nil {
		return c.fail(err)
	}
	if err := sched.Start(ctx); err != nil {
		return c.fail(err)
	}
	<-ctx.Done()
	if err := sched.Stop(); err != nil {
		return c.fail(err)
	}
	return 0
}

func (c *cli) validate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	file, err := parseWithFile(fs, args)
	if err != nil {
		return c.fail(err)
	}

	eng, err := engine.New(engine.Config{})
	if err != nil {
		return c.fail(err)
	}
	def, err := engine.LoadDefinitionFile(file)
	if err != nil {
		return c.fail(err)
	}

	result := eng.Validate(def)
	for _, w := range result.Warnings {
		fmt.Fprintf(c.stdout, "warning: %s\n", w)
	}
	if !result.Valid() {
		for _, e := range result.Errors {
			fmt.Fprintf(c.stdout, "error: %s\n", e)
		}
		return 1
	}
	// Compiling also checks static action params.
	if _, err := eng.Compile(def); err != nil {
		fmt.Fprintf(c.stdout, "error: %v\n", err)
		return 1
	}

	fmt.Fprintf(c.stdout, "%s: valid\n", file)
	return 0
}

func (c *cli) diagram(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("diagram", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	format := fs.String("format", "mermaid", "output format: mermaid, ascii, png, svg")
	out := fs.String("o", "", "write to a file instead of stdout")
	file, err := parseWithFile(fs, args)
	if err != nil {
		return c.fail(err)
	}

	eng, err := engine.New(engine.Config{})
	if err != nil {
		return c.fail(err)
	}
	def, err := engine.LoadDefinitionFile(file)
	if err != nil {
		return c.fail(err)
	}
	model, err := diagram.Build(def, eng.Registry())
	if err != nil {
		return c.fail(err)
	}

	var data []byte
	switch *format {
	case "mermaid":
		data = []byte(diagram.RenderMermaid(model))
	case "ascii":
		data = []byte(diagram.RenderASCII(model))
	case "png", "svg":
		if *out == "" && *format == "png" {
			return c.fail(errors.New("png output requires -o"))
		}
		if data, err = diagram.RenderImage(ctx, model, diagram.ImageFormat(*format)); err != nil {
			return c.fail(err)
		}
	default:
		return c.fail(fmt.Errorf("unknown diagram format %q", *format))
	}

	if *out == "" {
		_, err = c.stdout.Write(data)
	} else {
		err = os.WriteFile(*out, data, 0o644)
	}
	if err != nil {
		return c.fail(err)
	}
	return 0
}

func (c *cli) actions(args []string) int {
	fs := flag.NewFlagSet("actions", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	asJSON := fs.Bool("json", false, "print as JSON")
	if err := fs.Parse(args); err != nil {
		return c.fail(err)
	}

	eng, err := engine.New(engine.Config{})
	if err != nil {
		return c.fail(err)
	}
	list := eng.Registry().List()
	if *asJSON {
		return c.printJSON(list)
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tASYNC\tDESCRIPTION")
	for _, a := range list {
		fmt.Fprintf(tw, "%s\t%t\t%s\n", a.Name, a.Async, a.Description)
	}
	if err := tw.Flush(); err != nil {
		return c.fail(err)
	}
	return 0
}

func (c *cli) history(ctx context.Context, args []string) int {
	cfg := c.cfg
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	flow := fs.String("flow", "", "only runs of this flow")
	status := fs.String("status", "", "only runs with this status: succeeded or failed")
	limit := fs.Int("limit", 20, "maximum number of runs (0 = all)")
	prune := fs.Duration("prune", 0, "delete runs older than this instead of listing")
	asJSON := fs.Bool("json", false, "print as JSON")
	fs.StringVar(&cfg.HistoryDB, "history", cfg.HistoryDB, "libSQL database recording runs")
	if err := fs.Parse(args); err != nil {
		return c.fail(err)
	}
	if cfg.HistoryDB == "" {
		return c.fail(errors.New("no history database configured (use -history or OPFLOW_HISTORY_DB)"))
	}
	switch store.RunStatus(*status) {
	case "", store.RunSucceeded, store.RunFailed:
	default:
		return c.fail(fmt.Errorf("unknown run status %q", *status))
	}

	st, err := openHistory(ctx, cfg.HistoryDB)
	if err != nil {
		return c.fail(err)
	}
	defer st.Close()

	if *prune > 0 {
		n, err := st.PruneRuns(ctx, time.Now().UTC().Add(-*prune))
		if err != nil {
			return c.fail(err)
		}
		fmt.Fprintf(c.stdout, "pruned %d runs\n", n)
		return 0
	}

	runs, err := st.ListRuns(ctx, store.RunFilter{Flow: *flow, Status: store.RunStatus(*status), Limit: *limit})
	if err != nil {
		return c.fail(err)
	}
	if *asJSON {
		if runs == nil {
			runs = []*store.Run{}
		}
		return c.printJSON(runs)
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tFLOW\tSTATUS\tSTARTED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Flow, r.Status, r.StartedAt.Format(time.RFC3339), r.Duration())
	}
	if err := tw.Flush(); err != nil {
		return c.fail(err)
	}
	return 0
}

func (c *cli) serveMCP(ctx context.Context, args []string) int {
	cfg := c.cfg
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	bindConfigFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return c.fail(err)
	}

	// stdout carries the protocol; logs go to stderr.
	logger, err := cfg.logger(c.stderr)
	if err != nil {
		return c.fail(err)
	}
	rt, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return c.fail(err)
	}
	defer func() { _ = rt.close(context.Background()) }()

	deps := mcp.ServerDeps{Engine: rt.eng, Logger: logger, Version: version}
	if rt.history != nil {
		deps.History = rt.history
	}
	logger.Info("mcp server listening on stdio")
	if err := mcp.NewServer(deps).Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return c.fail(err)
	}
	return 0
}
