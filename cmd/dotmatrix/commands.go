package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"dotmatrix/internal/alphabet"
	"dotmatrix/internal/bridge"
	"dotmatrix/internal/config"
	"dotmatrix/internal/health"
	"dotmatrix/internal/journal"
	"dotmatrix/internal/logging"
)

func (a *app) cmdStrike(args []string) int {
	fs, configPath := a.flagSet("strike")
	list := fs.StringP("bytes", "b", "", "comma-separated decimal byte values")
	out := fs.StringP("out", "o", "", "destination substrate (must not exist)")
	payload := fs.String("payload", "", `JSON strike request {"bytes":[..],"path":".."}; "-" reads stdin`)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if code, ok := a.parse(fs, args); !ok {
		return code
	}

	if (*payload == "") == (*list == "" && *out == "") {
		a.errorf("use either --bytes with --out, or --payload")
		return exitUsage
	}
	if *payload == "" && (*list == "" || *out == "") {
		a.errorf("--bytes and --out are both required")
		return exitUsage
	}

	if err := a.setup(*configPath); err != nil {
		a.errorf("%v", err)
		return exitFail
	}
	defer a.close()

	var (
		values []int
		dest   string
	)
	if *payload != "" {
		p, err := readPayload(*payload)
		if err != nil {
			a.errorf("%v", err)
			return exitUsage
		}
		values, dest = p.Bytes, p.Path
		model, err := a.cfg.Model()
		if err != nil {
			a.errorf("%v", err)
			return exitFail
		}
		if contaminants := model.ContaminantsInts(values); len(contaminants) > 0 {
			return a.refuse(contaminants)
		}
	} else {
		var (
			contaminants []alphabet.Contaminant
			err          error
		)
		values, contaminants, err = a.parseValues(*list)
		if err != nil {
			a.errorf("%v", err)
			return exitUsage
		}
		if len(contaminants) > 0 {
			return a.refuse(contaminants)
		}
		dest = *out
	}

	ctx, stop := a.signalContext()
	defer stop()

	report, err := a.bridge.ExecuteStrike(ctx, values, dest)
	if *asJSON && report != nil {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	if err != nil {
		var cerr *bridge.ContaminationError
		if errors.As(err, &cerr) {
			return a.refuse(cerr.Contaminants)
		}
		a.errorf("%v", err)
		if report != nil && report.Strikes > 0 {
			fmt.Fprintf(a.stderr, "%d byte(s) reached %s before the failure; treat it as contaminated\n", report.Strikes, report.Path)
		}
		return exitFail
	}

	if !*asJSON {
		fmt.Fprintf(a.stdout, "Struck %d byte(s) to %s\n", report.Strikes, report.Path)
	}
	return exitOK
}

func (a *app) refuse(contaminants []alphabet.Contaminant) int {
	fmt.Fprintf(a.stdout, "REFUSED: %d byte(s) outside the alphabet, nothing written\n", len(contaminants))
	a.printContaminants(contaminants)
	return exitFail
}

func readPayload(src string) (*bridge.StrikePayload, error) {
	var (
		data []byte
		err  error
	)
	if src == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return bridge.DecodeStrikePayload(data)
}

func (a *app) cmdVerify(args []string) int {
	fs, configPath := a.flagSet("verify")
	asJSON := fs.Bool("json", false, "print the verification as JSON")
	quiet := fs.BoolP("quiet", "q", false, "print only PASS or FAIL")
	if code, ok := a.parse(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		a.errorf("verify takes exactly one file")
		return exitUsage
	}

	if err := a.setup(*configPath); err != nil {
		a.errorf("%v", err)
		return exitFail
	}
	defer a.close()

	ctx, stop := a.signalContext()
	defer stop()

	var previous *journal.VerificationRecord
	if a.journal != nil {
		var err error
		previous, err = a.journal.LastVerification(ctx, a.cfg.ResolveDestination(fs.Arg(0)))
		if err != nil {
			a.log.Warn("journal lookup failed", "error", err)
		}
	}

	v, err := a.bridge.VerifySubstrate(ctx, fs.Arg(0))
	if err != nil {
		a.errorf("%v", err)
		return exitFail
	}

	switch {
	case *asJSON:
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
	case *quiet:
		fmt.Fprintln(a.stdout, verdict(v.Clean))
	default:
		fmt.Fprintf(a.stdout, "%s  %s (%d bytes, blake3 %s)\n", verdict(v.Clean), v.Path, v.Size, v.Digest)
		a.printContaminants(v.Contaminants)
		if previous != nil && previous.Digest != v.Digest {
			fmt.Fprintf(a.stdout, "Changed since last verification at %s\n", previous.Timestamp.Local().Format(time.DateTime))
		}
		if v.Hexdump != "" {
			fmt.Fprintln(a.stdout, v.Hexdump)
		}
	}

	if !v.Clean {
		return exitFail
	}
	return exitOK
}

func verdict(clean bool) string {
	if clean {
		return "PASS"
	}
	return "FAIL"
}

func (a *app) cmdPreview(args []string) int {
	fs, configPath := a.flagSet("preview")
	list := fs.StringP("bytes", "b", "", "comma-separated decimal byte values")
	asJSON := fs.Bool("json", false, "print the preview as JSON")
	if code, ok := a.parse(fs, args); !ok {
		return code
	}
	if *list == "" {
		a.errorf("--bytes is required")
		return exitUsage
	}

	if err := a.setup(*configPath); err != nil {
		a.errorf("%v", err)
		return exitFail
	}
	defer a.close()

	values, _, err := a.parseValues(*list)
	if err != nil {
		a.errorf("%v", err)
		return exitUsage
	}

	p := a.bridge.PreviewStrike(values)
	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(p)
	} else {
		fmt.Fprintf(a.stdout, "%d byte(s)\n", p.ByteCount)
		if p.HexPreview != "" {
			fmt.Fprintln(a.stdout, p.HexPreview)
		}
		if p.WouldContaminate {
			fmt.Fprintf(a.stdout, "Would contaminate: %d byte(s) outside the alphabet\n", len(p.Contaminants))
			a.printContaminants(p.Contaminants)
		}
	}

	if p.WouldContaminate {
		return exitFail
	}
	return exitOK
}

func (a *app) cmdHex(args []string) int {
	fs, configPath := a.flagSet("hex")
	if code, ok := a.parse(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		a.errorf("hex takes exactly one file")
		return exitUsage
	}

	if err := a.setup(*configPath); err != nil {
		a.errorf("%v", err)
		return exitFail
	}
	defer a.close()

	ctx, stop := a.signalContext()
	defer stop()

	v, err := a.bridge.ReadSubstrateHex(ctx, fs.Arg(0))
	if err != nil {
		a.errorf("%v", err)
		return exitFail
	}
	if v.Hexdump != "" {
		fmt.Fprintln(a.stdout, v.Hexdump)
	}
	return exitOK
}

func (a *app) cmdCheck(args []string) int {
	fs, configPath := a.flagSet("check")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	watch := fs.BoolP("watch", "w", false, "re-run the checks whenever the configuration file changes")
	if code, ok := a.parse(fs, args); !ok {
		return code
	}

	ctx, stop := a.signalContext()
	defer stop()

	if *watch {
		return a.watchChecks(ctx, *configPath, *asJSON)
	}

	if err := a.setup(*configPath); err != nil {
		a.errorf("%v", err)
		return exitFail
	}
	defer a.close()
	return a.runChecks(ctx, *asJSON)
}

// runChecks probes the executor, the output directory and the journal
// of the current build and prints the report.
func (a *app) runChecks(ctx context.Context, asJSON bool) int {
	name := a.cfg.Kernel.Executor
	if name == "" {
		name = "in-process kernel"
	}

	checker := health.NewChecker()
	checker.RegisterFunc("executor", true, health.ExecutorCheck(name, a.bridge.CheckAvailable))
	checker.RegisterFunc("output_dir", false, health.DirectoryCheck(a.cfg.Paths.OutputDir))
	if a.journal != nil {
		checker.RegisterFunc("journal", true, health.DatabaseCheck(a.journal.Ping))
	}
	report := checker.Run(ctx)

	if asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		if report.Components["executor"].Status == health.StatusHealthy {
			fmt.Fprintf(a.stdout, "Executor available: %s\n", name)
		} else {
			fmt.Fprintf(a.stdout, "Executor unavailable: %s\n", name)
		}
		for _, component := range checker.Names() {
			r := report.Components[component]
			fmt.Fprintf(a.stdout, "  %-10s %-9s %s\n", component, r.Status, r.Message)
		}
	}

	if report.Status == health.StatusUnhealthy {
		return exitFail
	}
	return exitOK
}

// watchChecks runs the checks, then again after every valid change to the
// configuration file, until ctx is canceled. An invalid edit is reported
// and the previous configuration stays in effect.
func (a *app) watchChecks(ctx context.Context, configPath string, asJSON bool) int {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		a.errorf("load config: %v", err)
		return exitFail
	}
	defer loader.Close()

	reloaded := make(chan *config.Config, 1)
	loader.OnChange(func(_, next *config.Config) {
		// Only the newest configuration matters.
		select {
		case <-reloaded:
		default:
		}
		select {
		case reloaded <- next:
		default:
		}
	})
	if err := loader.Watch(); err != nil {
		a.errorf("watch %s: %v", loader.Path(), err)
		return exitFail
	}

	code := exitOK
	for changed := false; ; changed = true {
		if err := a.build(cfg); err != nil {
			a.errorf("%v", err)
			a.close()
			code = exitFail
		} else {
			if changed {
				a.log.Info("configuration reloaded", "path", loader.Path())
				if err := a.audit.LogConfigChange(ctx, loader.Path(), logging.ConfigReloaded); err != nil {
					a.log.Error("audit write failed", "error", err)
				}
			}
			code = a.runChecks(ctx, asJSON)
			a.close()
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				return code
			case err := <-loader.Errors():
				a.errorf("%v", err)
			case cfg = <-reloaded:
				fmt.Fprintf(a.stdout, "Configuration reloaded from %s\n", loader.Path())
				break wait
			}
		}
	}
}

func (a *app) cmdHistory(args []string) int {
	fs, configPath := a.flagSet("history")
	limit := fs.IntP("limit", "n", 20, "number of strikes to show (0 for all)")
	asJSON := fs.Bool("json", false, "print records as JSON")
	if code, ok := a.parse(fs, args); !ok {
		return code
	}

	if err := a.setup(*configPath); err != nil {
		a.errorf("%v", err)
		return exitFail
	}
	defer a.close()

	if a.journal == nil {
		a.errorf("journal is disabled; enable [journal] in the configuration")
		return exitFail
	}

	ctx, stop := a.signalContext()
	defer stop()

	records, err := a.journal.Strikes(ctx, *limit)
	if err != nil {
		a.errorf("%v", err)
		return exitFail
	}

	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(records)
		return exitOK
	}

	if len(records) == 0 {
		fmt.Fprintln(a.stdout, "No strikes recorded.")
		return exitOK
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTATE\tSTRIKES\tPATH")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\n", r.Timestamp.Local().Format(time.DateTime), r.State, r.Strikes, r.Requested, r.Path)
	}
	tw.Flush()
	return exitOK
}

func (a *app) cmdInit(args []string) int {
	fs, configPath := a.flagSet("init")
	if code, ok := a.parse(fs, args); !ok {
		return code
	}

	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, created, err := config.LoadOrCreate(path)
	if err != nil {
		a.errorf("%v", err)
		return exitFail
	}
	if err := cfg.EnsureDirectories(); err != nil {
		a.errorf("%v", err)
		return exitFail
	}

	if created {
		if ac := cfg.AuditLoggerConfig(); ac != nil {
			audit, err := logging.NewAuditLogger(ac)
			if err != nil {
				a.errorf("%v", err)
				return exitFail
			}
			_ = audit.LogConfigChange(context.Background(), path, logging.ConfigCreated)
			audit.Close()
		}
		fmt.Fprintf(a.stdout, "Wrote default configuration to %s\n", path)
	} else {
		fmt.Fprintf(a.stdout, "Configuration already exists at %s\n", path)
	}
	return exitOK
}
