package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	configForce bool

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
		Long: `Create, inspect and check the clipbridge configuration.

The effective configuration combines flags, CLIPBRIDGE_* environment
variables, the config file and defaults, in that order of precedence.`,
	}

	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the current settings",
		Long: `Write the effective configuration to the config file (--config, or
<data dir>/config.yaml). An existing file is kept unless --force is given.`,
		RunE: runConfigInit,
		Args: cobra.NoArgs,
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE:  runConfigShow,
		Args:  cobra.NoArgs,
	}

	configValidateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Check the effective configuration",
		RunE:  runConfigValidate,
		Args:  cobra.NoArgs,
	}
)

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	if err := cfg.WriteFile(cfg.ConfigFile, configForce); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", cfg.ConfigFile)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	data, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", color.RedString("invalid:"), err)
		return errSilentExit
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("valid:"), cfg.ConfigFile)
	return nil
}
