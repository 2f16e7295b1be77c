package cli

import (
	"context"
	"fmt"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/output"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

var flagRemote bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version (and the server versions with --remote)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagRemote {
			if flagJSON {
				output.JSON(map[string]string{"cli": Version})
				return nil
			}
			fmt.Printf("filedeck %s\n", Version)
			return nil
		}
		auth := serverVersion(cmd.Context(), apiClient.AuthURL("/version"))
		media := serverVersion(cmd.Context(), apiClient.MediaURL("/version"))
		if flagJSON {
			output.JSON(map[string]string{"cli": Version, "auth": auth, "media": media})
			return nil
		}
		fmt.Printf("filedeck %s\n", Version)
		fmt.Printf("auth:     %s (%s)\n", auth, cfg.AuthURL)
		fmt.Printf("media:    %s (%s)\n", media, cfg.MediaURL)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&flagRemote, "remote", false, "Also ask the auth and media services for their versions")
	rootCmd.AddCommand(versionCmd)
}

func serverVersion(ctx context.Context, url string) string {
	var v api.VersionInfo
	if err := apiClient.Get(ctx, url, &v, api.WithoutAuth()); err != nil {
		return "unreachable"
	}
	if v.Version == "" {
		return "unknown"
	}
	return v.Version
}
