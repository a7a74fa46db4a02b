package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/config"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/logging"
)

// Build information, set with -ldflags at release time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	logger     *zap.Logger
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdin, os.Stdout, os.Stderr)
}

func NewRootCommandWithIO(in io.Reader, out, errOut io.Writer) *cobra.Command {
	return newRootCommand(in, out, errOut)
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{
		stdin:  in,
		stdout: out,
		stderr: errOut,
	}

	cmd := &cobra.Command{
		Use:           "cloudsentry",
		Short:         "CloudTrail anomaly detection and triage",
		Long:          "cloudsentry encodes CloudTrail audit events, flags outliers with an isolation forest, scores and plans a response for each, and exports the results to InfluxDB.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultConfigPath, "path to the configuration file (optional)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	cmd.AddCommand(
		newRunCmd(a),
		newEncodeCmd(a),
		newDetectCmd(a),
		newInspectModelCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)

	cmd.SetVersionTemplate(fmt.Sprintf("cloudsentry {{.Version}} (commit %s, built %s)\n", Commit, BuildDate))

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return a.init(cmd.Context())
	}
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if a.logger != nil {
			_ = a.logger.Sync()
		}
	}

	return cmd
}

// init loads and validates the configuration and builds the logger.
func (a *app) init(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mgr, err := config.NewConfigManager(a.configPath)
	if err != nil {
		return err
	}
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("load %s: %w", a.configPath, err)
	}
	cfg := mgr.Get(ctx)
	if lvl := strings.TrimSpace(a.logLevel); lvl != "" {
		cfg.Logging.Level = strings.ToLower(lvl)
	}
	if err := mgr.Validate(ctx); err != nil {
		return err
	}

	opts := logging.OptionsFromConfig(cfg)
	opts.Output = a.stderr
	logger, err := logging.New(opts)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}
