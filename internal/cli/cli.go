// Package cli implements the raidfinder command: frame listing, first-match
// search, den lookup and the HTTP server.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/MJE43/raid-frame-finder/internal/dens"
	"github.com/MJE43/raid-frame-finder/internal/engine"
	"github.com/MJE43/raid-frame-finder/internal/scan"
	"github.com/MJE43/raid-frame-finder/internal/scripting"
)

const maxListFrames = 10_000

const usageText = `usage: raidfinder <command> [flags]

commands:
  search   find the first frame matching a filter
  frames   list consecutive frames
  dens     show den entries
  serve    run the HTTP API

Run "raidfinder <command> -h" for the flags of a command.
`

// App carries the configuration and output streams of one invocation
type App struct {
	cfg    Config
	dens   *dens.Table
	out    io.Writer
	errOut io.Writer

	// listening is called with the bound address once serve accepts connections
	listening func(addr string)
}

// New creates an App writing results to out and diagnostics to errOut
func New(cfg Config, out, errOut io.Writer) *App {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	return &App{cfg: cfg, dens: dens.Default(), out: out, errOut: errOut}
}

// Run dispatches args[0] to a subcommand
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.errOut, usageText)
		return fmt.Errorf("%w: no command given", ErrUsage)
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "search":
		return a.runSearch(ctx, rest)
	case "frames":
		return a.runFrames(rest)
	case "dens":
		return a.runDens(rest)
	case "serve":
		return a.runServe(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usageText)
		return nil
	default:
		fmt.Fprint(a.errOut, usageText)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func (a *App) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// parse wraps flag errors so callers can tell them from runtime failures
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", ErrUsage, fs.Args())
	}
	return nil
}

func (a *App) color() bool { return !a.cfg.NoColor }

// runSearch finds the first frame that passes the filter and script
func (a *App) runSearch(ctx context.Context, args []string) error {
	var target targetFlags
	var filter filterFlags
	cfg := a.cfg
	fs := a.flagSet("search")
	target.bind(fs)
	filter.bind(fs)
	cfg.bindDenFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}

	enc, seed, err := target.resolve(a.dens, cfg)
	if err != nil {
		return err
	}
	ff, err := filter.build()
	if err != nil {
		return err
	}
	if err := scan.Admit(enc, ff); err != nil {
		return err
	}

	var matcher scan.Matcher = scan.MatchAll{}
	if ff != nil {
		matcher = ff
	}
	var script *scripting.Filter
	if strings.TrimSpace(filter.script) != "" {
		if script, err = scripting.Compile(filter.script); err != nil {
			return err
		}
		if ff != nil {
			matcher = scan.AllOf{ff, script}
		} else {
			matcher = script
		}
	}

	start := time.Now()
	res, err := scan.Search(ctx, enc, seed, matcher)
	if err != nil {
		return err
	}
	logger := log.New(a.errOut, "", 0)
	logger.Printf("search_done seed=%s evaluated=%d found=%t elapsed=%s", seed, res.Evaluated, res.Found, time.Since(start).Round(time.Millisecond))
	if script != nil {
		for _, entry := range script.Logs() {
			logger.Printf("script_log %s", entry.Message)
		}
		if err := script.Err(); err != nil {
			logger.Printf("script_error err=%v", err)
		}
	}

	if !res.Found {
		fmt.Fprintln(a.out, scan.NotFoundMessage)
		return nil
	}
	fmt.Fprintln(a.out, renderFrames([]engine.Frame{res.Frame}, a.color()))
	return nil
}

// runFrames prints consecutive frames starting at -skip
func (a *App) runFrames(args []string) error {
	var target targetFlags
	cfg := a.cfg
	fs := a.flagSet("frames")
	target.bind(fs)
	cfg.bindDenFlags(fs)
	skip := fs.Uint64("skip", 0, "first frame to list")
	count := fs.Int("count", 10, "number of frames")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *count < 1 || *count > maxListFrames {
		return fmt.Errorf("%w: -count must be between 1 and %d", ErrUsage, maxListFrames)
	}

	enc, seed, err := target.resolve(a.dens, cfg)
	if err != nil {
		return err
	}

	gen := engine.NewFrameGeneratorAt(enc, seed, *skip)
	frames := make([]engine.Frame, *count)
	for i := range frames {
		frames[i] = gen.Next()
	}
	fmt.Fprintln(a.out, renderFrames(frames, a.color()))
	return nil
}

// runDens prints the entries of one den, or of every den
func (a *App) runDens(args []string) error {
	cfg := a.cfg
	fs := a.flagSet("dens")
	cfg.bindDenFlags(fs)
	id := fs.String("den", "", "den id (default all dens)")
	if err := parse(fs, args); err != nil {
		return err
	}

	title, err := dens.ParseTitle(cfg.Title)
	if err != nil {
		return err
	}
	badge, err := dens.ParseBadgeLevel(cfg.Badge)
	if err != nil {
		return err
	}

	ids := []string{*id}
	if *id == "" {
		ids = ids[:0]
		for _, d := range a.dens.List() {
			ids = append(ids, d.ID)
		}
	}
	for _, denID := range ids {
		entries, err := a.dens.Entries(denID, title, badge)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, renderDen(a.dens, denID, entries, a.color()))
	}
	return nil
}
