// cmd/reclaim/main.go

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/windowsadmins/reclaim/pkg/action"
	"github.com/windowsadmins/reclaim/pkg/command"
	"github.com/windowsadmins/reclaim/pkg/config"
	"github.com/windowsadmins/reclaim/pkg/engine"
	"github.com/windowsadmins/reclaim/pkg/filter"
	"github.com/windowsadmins/reclaim/pkg/inventory"
	"github.com/windowsadmins/reclaim/pkg/logging"
	"github.com/windowsadmins/reclaim/pkg/report"
	"github.com/windowsadmins/reclaim/pkg/scripts"
	"github.com/windowsadmins/reclaim/pkg/snapshot"
	"github.com/windowsadmins/reclaim/pkg/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	enableANSIConsole()

	showConfig := pflag.Bool("show-config", false, "Display the current configuration and exit.")
	checkOnly := pflag.Bool("checkonly", false, "Report what would change without acting.")
	fullScan := pflag.Bool("full-scan", false, "Reprocess the full inventory, ignoring the diff optimization.")
	removalOnly := pflag.Bool("removal-only", false, "Run only the bloatware removal pass.")
	requiredOnly := pflag.Bool("required-only", false, "Run only the essential apps pass.")
	target := pflag.String("target", "", "Comma-separated item names to restrict the run to.")
	versionFlag := pflag.Bool("version", false, "Print the version and exit.")

	var verbosity int
	pflag.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (e.g. -v, -vv)")
	pflag.Parse()

	if *versionFlag {
		version.Print()
		return 0
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// -v flags override the configured log level.
	switch verbosity {
	case 0:
		// keep cfg.LogLevel
	case 1:
		cfg.LogLevel = "INFO"
	default:
		cfg.LogLevel = "DEBUG"
	}

	if *showConfig {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to serialize configuration: %v\n", err)
			return 1
		}
		fmt.Print(string(data))
		return 0
	}

	if err := logging.Init(logging.Config{
		BaseDir:       cfg.LogPath,
		Component:     "reclaim",
		Level:         logging.ParseLevel(cfg.LogLevel),
		Retention:     logging.DefaultRetentionPolicy(),
		EnableConsole: true,
		EnableJSON:    true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		return 1
	}
	defer logging.CloseLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	isCheckOnly := cfg.CheckOnly || *checkOnly
	runner := command.NewRunner()
	executor := action.NewExecutor(action.Config{
		Runner:         runner,
		Workers:        cfg.MaxWorkers,
		PackageTimeout: cfg.PackageTimeout(),
		LongOpTimeout:  cfg.LongOpTimeout(),
		CheckOnly:      isCheckOnly,
	})

	hooks := scripts.NewHooks(scripts.DefaultDir, runner, cfg.LongOpTimeout())
	if !isCheckOnly {
		if err := hooks.Preflight(ctx); err != nil {
			logging.Error("Preflight failed, aborting run", "error", err.Error())
			return 1
		}
		defer hooks.Postflight(context.Background())
	}

	eng := engine.New(cfg,
		inventory.DefaultSources(runner, cfg.PackageTimeout()),
		snapshot.NewStore(cfg.SnapshotsPath),
		executor,
		report.NewWriter(cfg.ReportsPath, 30),
	)

	runReport, err := eng.Run(ctx, engine.Options{
		CheckOnly:     isCheckOnly,
		ForceFullScan: *fullScan,
		SkipRemoval:   *requiredOnly,
		SkipRequired:  *removalOnly,
		Target:        filter.Parse(*target),
	})
	if err != nil {
		logging.Error("Run aborted", "error", err.Error())
		fmt.Fprintf(os.Stderr, "Run aborted: %v\n", err)
		return 1
	}

	failed := printSummary(runReport)
	if failed {
		return 2
	}
	return 0
}

// printSummary writes the per-pass totals to stdout and reports whether any
// item failed to converge.
func printSummary(run report.RunReport) bool {
	failed := false
	for _, pass := range run.Passes {
		s := pass.Summary
		fmt.Printf("%s: %d matched, %d succeeded, %d partial, %d failed, %d skipped\n",
			pass.Name, s.Total, s.Succeeded, s.Partial, s.Failed, s.Skipped)
		if s.Failed > 0 {
			failed = true
		}
	}
	if len(run.Passes) == 0 {
		fmt.Println("Nothing to do.")
	}
	return failed
}
