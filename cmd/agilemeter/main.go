package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"agilemeter.shikanime.studio/cmd/agilemeter/app"
	"agilemeter.shikanime.studio/internal/config"
	"agilemeter.shikanime.studio/internal/maturity"
)

var version = "dev"

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	shutdown()
	if err != nil {
		log.Fatal(err)
	}
}

var (
	rootCmd = &cobra.Command{
		Use:               "agilemeter",
		Short:             "Agile maturity scoring of GitHub contributors",
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
	scoreCmd = &cobra.Command{
		Use:   "score",
		Short: "Score every contributor of an organization or a repository",
		RunE:  runScore,
	}
	userCmd = &cobra.Command{
		Use:   "user",
		Short: "Write a detailed report of one contributor in one repository",
		RunE:  runUser,
	}
	weightsCmd = &cobra.Command{
		Use:   "weights",
		Short: "Print the effective normalized criterion weights",
		RunE:  runWeights,
	}

	cfg      = config.New()
	shutdown = func() {}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("env-file", config.DefaultEnvFile, "Dotenv file merged into the environment")
	pf.String("log-level", "", "Log level: debug, info, warn or error. Falls back to LOG_LEVEL")
	pf.String("weights", "", "YAML, JSON or TOML file with a weights table")
	pf.Bool("disable-ai", false, "Disable the quality oracle")

	for _, c := range []*cobra.Command{scoreCmd, userCmd} {
		f := c.Flags()
		f.String("repo", "", "Repository as owner/name or a github.com URL")
		f.String("since", "", "Start of the period (YYYY-MM-DD)")
		f.String("until", "", "End of the period (YYYY-MM-DD), today when empty")
		f.String("out", "", "Report path; .md, .html, .json or .csv")
		f.Int("workers", 4, "Repositories processed in parallel")
		f.Duration("timeout", 0, "Bound on the whole run, 0 for none")
		f.Duration("max-wait", 15*time.Minute, "Longest wait for a rate limit reset")
		f.Int("max-retries", 5, "Retries of a failed GitHub request")
		f.Bool("search-coauthors", false, "Resolve co-author emails with the user search API")
	}

	sf := scoreCmd.Flags()
	sf.String("org", "", "GitHub organization to discover repositories in")
	sf.StringSlice("users", nil, "Only score these logins")
	sf.Bool("skip-forks", false, "Skip forked repositories")
	sf.Bool("only-recent", false, "Skip repositories not pushed within the staleness window after the period start")
	sf.Bool("include-new-repos", false, "Keep repositories created during the period even when --only-recent")
	sf.Bool("only-new", false, "Only keep repositories created during the period")

	userCmd.Flags().String("user", "", "Login of the contributor")

	rootCmd.AddCommand(scoreCmd, userCmd, weightsCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := cfg.BindFlags(cmd.Flags()); err != nil {
		return err
	}
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := cfg.LoadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}
	config.SetupLog(cfg)
	cfg.Watch()

	stop, err := config.SetupTelemetry(cmd.Context(), cfg, version)
	if err != nil {
		slog.Warn("Telemetry disabled", "error", err)
		return nil
	}
	shutdown = stop
	return nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()
	return app.Score(ctx, cfg)
}

func runUser(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()
	return app.User(ctx, cfg)
}

func runWeights(cmd *cobra.Command, _ []string) error {
	w, err := app.EffectiveWeights(cfg)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, c := range maturity.AllCriteria() {
		if v, ok := w[c]; ok {
			fmt.Fprintf(out, "%-24s %.4f\n", c, v)
		}
	}
	return nil
}
