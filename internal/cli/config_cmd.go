package cli

import (
	"fmt"

	"github.com/filedeck/filedeck/internal/config"
	"github.com/filedeck/filedeck/internal/output"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change service URLs",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagJSON {
			output.JSON(cfg)
			return nil
		}
		p, _ := config.Path()
		fmt.Printf("Config file: %s\n", p)
		fmt.Printf("auth_url:    %s\n", cfg.AuthURL)
		fmt.Printf("media_url:   %s\n", cfg.MediaURL)
		fmt.Printf("public_url:  %s\n", cfg.LinkBase())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value (auth_url, media_url, public_url)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := config.Path()
		if err != nil {
			return err
		}
		// Only what is on disk is saved; env and flag overrides stay out.
		onDisk, err := config.LoadFile(p)
		if err != nil {
			return err
		}
		if err := onDisk.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := config.SaveFile(p, onDisk); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Printf("Set %s.\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
