// dotmatrix - byte-alphabet-constrained substrate writer
//
// Every byte is checked three times before it reaches the disk: when the
// command line is parsed, at the bridge boundary, and by the striker as it
// writes. A strike that fails any check stops immediately.
//
//	dotmatrix strike --bytes 72,105 --out hi.txt   Strike a byte sequence
//	dotmatrix verify hi.txt                        Re-validate a substrate
//	dotmatrix preview --bytes 72,160               Dry run, nothing is written
//	dotmatrix hex hi.txt                           Hexdump a substrate
//	dotmatrix check                                Probe the strike executor
//	dotmatrix check --watch                        Re-probe on every config change
//	dotmatrix history                              Show journaled strikes
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"dotmatrix/internal/alphabet"
	"dotmatrix/internal/bridge"
	"dotmatrix/internal/checked"
	"dotmatrix/internal/config"
	"dotmatrix/internal/journal"
	"dotmatrix/internal/logging"
	"dotmatrix/internal/metrics"
)

var (
	// Version information (set at build time)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Exit codes.
const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return exitUsage
	}

	a := &app{stdout: stdout, stderr: stderr}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "strike":
		return a.cmdStrike(rest)
	case "verify":
		return a.cmdVerify(rest)
	case "preview":
		return a.cmdPreview(rest)
	case "hex":
		return a.cmdHex(rest)
	case "check":
		return a.cmdCheck(rest)
	case "history":
		return a.cmdHistory(rest)
	case "init":
		return a.cmdInit(rest)
	case "version", "--version":
		fmt.Fprintf(stdout, "dotmatrix %s (commit: %s, built: %s)\n", version, commit, buildTime)
		return exitOK
	case "help", "-h", "--help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", cmd)
		usage(stderr)
		return exitUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `dotmatrix - Byte-alphabet-constrained substrate writer

USAGE:
    dotmatrix <command> [options]

COMMANDS:
    strike              Strike a byte sequence to a new substrate
    verify <file>       Re-validate every byte of a substrate (PASS/FAIL)
    preview             Show what a strike would write, without writing
    hex <file>          Hexdump a substrate
    check               Check that the strike executor is available
                        (--watch re-checks whenever the configuration changes)
    history             List recent strikes from the journal
    init                Write a default configuration file
    version             Print version information
    help                Show this help message

GLOBAL OPTIONS:
    --config <path>     Configuration file (default: $DOTMATRIX_CONFIG or the
                        platform config directory)

EXIT CODES:
    0   success / PASS
    1   contamination, failure or missing executor
    2   usage error
`)
}

// app carries the per-invocation environment shared by the commands.
type app struct {
	stdout io.Writer
	stderr io.Writer

	// base is the parent of every command context; nil means Background.
	base context.Context

	cfg     *config.Config
	log     *logging.Logger
	audit   *logging.AuditLogger
	journal *journal.Store
	metrics *metrics.StrikeMetrics
	bridge  *bridge.Bridge
}

func (a *app) errorf(format string, args ...any) {
	fmt.Fprintf(a.stderr, "Error: "+format+"\n", args...)
}

func (a *app) flagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	configPath := fs.String("config", "", "configuration file")
	return fs, configPath
}

// parse parses args and reports an exit code when the command should stop.
func (a *app) parse(fs *pflag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK, false
		}
		return exitUsage, false
	}
	return 0, true
}

// setup loads the configuration and builds the bridge with whatever
// journal, audit trail and metrics the configuration enables.
func (a *app) setup(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return a.build(cfg)
}

// build replaces everything setup would open with what cfg enables.
// Call close on the previous build first.
func (a *app) build(cfg *config.Config) error {
	a.cfg = cfg
	a.log, a.audit, a.journal, a.metrics, a.bridge = nil, nil, nil, nil, nil

	lc, err := cfg.LoggerConfig()
	if err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	switch strings.ToLower(lc.Output) {
	case "", "stderr":
		a.log = logging.NewWithWriter(lc, a.stderr)
	default:
		if a.log, err = logging.New(lc); err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
	}

	if ac := cfg.AuditLoggerConfig(); ac != nil {
		if a.audit, err = logging.NewAuditLogger(ac); err != nil {
			return fmt.Errorf("create audit logger: %w", err)
		}
	}

	opts := []bridge.Option{bridge.WithLogger(a.log), bridge.WithAuditLogger(a.audit)}
	if cfg.Journal.Enabled {
		if a.journal, err = journal.Open(cfg.Journal.Path, cfg.Journal.BusyTimeoutMs); err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		opts = append(opts, bridge.WithJournal(a.journal))
	}
	a.metrics = metrics.NewStrikeMetrics(nil)
	opts = append(opts, bridge.WithMetrics(a.metrics))

	if a.bridge, err = bridge.FromConfig(cfg, opts...); err != nil {
		return fmt.Errorf("create bridge: %w", err)
	}
	return nil
}

// close flushes metrics and releases everything setup opened.
func (a *app) close() {
	if a.cfg != nil && a.cfg.Metrics.Enabled && a.metrics != nil {
		if err := a.metrics.Registry().WriteTextfile(a.cfg.Metrics.TextfilePath); err != nil {
			a.log.Error("metrics export failed", "path", a.cfg.Metrics.TextfilePath, "error", err)
		}
	}
	if a.journal != nil {
		a.journal.Close()
	}
	a.audit.Close()
	if a.log != nil {
		a.log.Close()
	}
}

// parseValues is the command-line validation layer. It parses the list
// and checks it against a model of its own before the bridge sees it.
func (a *app) parseValues(list string) ([]int, []alphabet.Contaminant, error) {
	values, err := checked.ParseByteList(list)
	if err != nil {
		return nil, nil, err
	}
	model, err := a.cfg.Model()
	if err != nil {
		return nil, nil, err
	}
	return values, model.ContaminantsInts(values), nil
}

func (a *app) printContaminants(contaminants []alphabet.Contaminant) {
	for _, c := range contaminants {
		fmt.Fprintf(a.stdout, "  position %d: value %d (%s)\n", c.Position, c.Value, c.Description)
	}
}

// signalContext is canceled on interrupt so a strike in progress stops
// before its next byte.
func (a *app) signalContext() (context.Context, context.CancelFunc) {
	parent := a.base
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
