package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/trackforge/internal/logger"
)

func newConfigCmd(a *app) *cobra.Command {
	var write string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings as YAML",
		Long: "Print the settings after applying the config file, TRACKFORGE_* variables\n" +
			"and flags. With --write the result is saved as a config file instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if write != "" {
				if err := a.cfg.SaveTo(a.fs, write); err != nil {
					return err
				}
				logger.Named("config").Info("Saved settings", zap.String("path", write))
				fmt.Fprintln(cmd.OutOrStdout(), write)
				return nil
			}
			data, err := a.cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&write, "write", "", "Save the settings to this file")
	return cmd
}
