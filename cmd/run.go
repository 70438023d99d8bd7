package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/creativeprojects/imapfilter/audit"
	"github.com/creativeprojects/imapfilter/cfg"
	"github.com/creativeprojects/imapfilter/cursor"
	"github.com/creativeprojects/imapfilter/learn"
	"github.com/creativeprojects/imapfilter/metrics"
	"github.com/creativeprojects/imapfilter/runner"
	"github.com/creativeprojects/imapfilter/term"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type RunFlags struct {
	dryRun  bool
	once    bool
	metrics string
	noAudit bool
}

var runFlags RunFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sort the new messages, then wait for more",
	RunE:  runRun,
}

func init() {
	flag := runCmd.Flags()
	flag.BoolVarP(&runFlags.dryRun, "dry-run", "n", false, "display the decisions without changing anything (implies --once)")
	flag.BoolVar(&runFlags.once, "once", false, "sort the new messages and exit")
	flag.StringVar(&runFlags.metrics, "metrics", "", "serve prometheus metrics on this address (like \":9090\")")
	flag.BoolVar(&runFlags.noAudit, "no-audit", false, "do not record the decisions")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.ResolvePassword(); err != nil {
		return err
	}
	set, err := config.RuleSet()
	if err != nil {
		return err
	}

	runnerConfig := config.RunnerConfig(debugLogger("run"))
	runnerConfig.DryRun = runFlags.dryRun
	runnerConfig.Once = runFlags.once || runFlags.dryRun

	if !runFlags.noAudit {
		store, err := audit.NewStore(config.AuditFile)
		if err != nil {
			return fmt.Errorf("cannot open audit log: %w", err)
		}
		defer store.Close()
		runnerConfig.Recorder = store
	}
	if config.LearnDir != "" && !runFlags.dryRun {
		sink, err := learn.New(config.LearnDir)
		if err != nil {
			return fmt.Errorf("cannot open learning maildir: %w", err)
		}
		if count, err := sink.Count(); err == nil {
			term.Debugf("learning maildir %s holds %d header(s)", config.LearnDir, count)
		}
		runnerConfig.Learner = sink
	}

	connector := runner.SessionConnector(config.SessionConfig(debugLogger("imap")))
	cursors := cursor.NewStore(config.CursorFile)
	syncRunner := runner.New(runnerConfig, connector, cursors, set)
	term.Infof("watching %s of %s on %s (run %s)", config.Mailbox, config.User, config.Address(), syncRunner.RunID())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	if runFlags.metrics != "" {
		group.Go(func() error {
			term.Infof("serving metrics on %s", runFlags.metrics)
			return metrics.Serve(ctx, runFlags.metrics, "/metrics")
		})
	}
	group.Go(func() error {
		watchReload(ctx, syncRunner)
		return nil
	})
	group.Go(func() error {
		// stop the other goroutines when the runner is done
		defer cancel()
		return syncRunner.Run(ctx)
	})
	err = group.Wait()

	stats := syncRunner.Stats()
	term.Infof("%d pass(es), %d message(s) classified, %d changed, %d failure(s), %d reconnection(s)",
		stats.Passes, stats.Classified, stats.Mutated, stats.Failures, stats.Reconnects)
	if err != nil {
		return err
	}
	if runFlags.dryRun {
		return &exitCodeError{code: ExitDryRun}
	}
	return nil
}

// watchReload loads a new set of rules from the configuration file on a reload signal
func watchReload(ctx context.Context, syncRunner *runner.Runner) {
	if len(reloadSignals) == 0 {
		return
	}
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, reloadSignals...)
	defer signal.Stop(reload)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-reload:
			term.Infof("received %s: reloading rules from %s", sig, global.configFile)
			if err := reloadRules(global.configFile, syncRunner); err != nil {
				term.Errorf("keeping the current rules: %s", err)
			}
		}
	}
}

func reloadRules(configFile string, syncRunner *runner.Runner) error {
	config, err := cfg.LoadFromFile(configFile)
	if err != nil {
		return err
	}
	set, err := config.RuleSet()
	if err != nil {
		return err
	}
	syncRunner.SetRules(set)
	return nil
}
