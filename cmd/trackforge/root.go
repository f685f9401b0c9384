package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Faultbox/trackforge/internal/build"
	"github.com/Faultbox/trackforge/internal/config"
	"github.com/Faultbox/trackforge/internal/errs"
	"github.com/Faultbox/trackforge/internal/logger"
)

const envPrefix = "TRACKFORGE"

// app is the state shared by all subcommands.
type app struct {
	fs    afero.Fs
	flags *config.Flags
	cfg   *config.Config
}

func newRootCmd() *cobra.Command {
	return newRootCmdFs(afero.NewOsFs())
}

func newRootCmdFs(fs afero.Fs) *cobra.Command {
	a := &app{fs: fs}

	root := &cobra.Command{
		Use:           "trackforge",
		Short:         "Export track scenes to Assetto Corsa models and AI lines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	a.flags = config.BindFlags(root.PersistentFlags())

	root.AddCommand(
		newPipelineCmd(a, "export", "Write the .kn5 model", build.TargetModel),
		newPipelineCmd(a, "ailine", "Write ai/fast_lane.ai", build.TargetAILine),
		newPipelineCmd(a, "build", "Write the model, the AI line and surfaces.ini", build.TargetAll),
		newInspectCmd(a),
		newWatchCmd(a),
		newConfigCmd(a),
	)
	return root
}

// init applies environment overrides, loads the config and starts logging.
func (a *app) init(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	bindFlags(cmd, v)

	cfg, err := config.Load(a.fs, a.flags)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile, cfg.Logging.Filter); err != nil {
		return &errs.ConfigError{Source: "logging", Reason: "cannot start logger", Err: err}
	}
	a.cfg = cfg
	return nil
}

// bindFlags copies TRACKFORGE_* environment variables onto flags that were
// not set on the command line. --log-level reads TRACKFORGE_LOG_LEVEL.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		env := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if err := v.BindEnv(f.Name, env); err != nil {
			fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v\n", env, err)
			return
		}
		if !f.Changed && v.IsSet(f.Name) {
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				fmt.Fprintf(os.Stderr, "Could not set flag %s from %s: %v\n", f.Name, env, err)
			}
		}
	})
}

func newPipelineCmd(a *app, use, short string, targets build.Target) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <scene.yaml>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.run(cmd.Context(), args[0], targets)
			if err != nil {
				return err
			}
			for _, path := range res.Files() {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
}

func (a *app) run(ctx context.Context, scenePath string, targets build.Target) (*build.Result, error) {
	a.cfg.Scene.Path = scenePath
	log := logger.Named("build")
	p := &build.Pipeline{
		Fs:      a.fs,
		Config:  a.cfg,
		Log:     log,
		Targets: targets,
	}
	res, err := p.Run(ctx)
	if err != nil {
		log.Error("Build failed", zap.String("scene", scenePath), zap.Error(err))
		return nil, err
	}
	return res, nil
}

// exitCode maps error kinds to process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case errs.IsConfig(err):
		return 2
	case errs.IsValidation(err), errs.IsTransform(err):
		return 3
	case errs.IsIO(err):
		return 4
	default:
		return 1
	}
}
