package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/config"
	"github.com/filedeck/filedeck/internal/logger"
	"github.com/filedeck/filedeck/internal/session"
	"github.com/filedeck/filedeck/internal/tokenstore"
	"github.com/spf13/cobra"
)

var (
	flagJSON     bool
	flagVerbose  bool
	flagAuthURL  string
	flagMediaURL string

	cfg       *config.Config
	store     tokenstore.Store
	apiClient *api.Client
	sess      *session.Manager
)

var rootCmd = &cobra.Command{
	Use:   "filedeck",
	Short: "filedeck: share files from the terminal",
	Long: `filedeck talks to the filedeck auth and media services so you can upload,
browse, share and download files without a browser.

Get started:
  filedeck register you@example.com   Create an account
  filedeck login you@example.com      Sign in (prompts for password and 2FA code)
  filedeck ls                         List your root folder
  filedeck upload report.pdf /Docs    Upload a file
  filedeck share file /Docs/report.pdf --expires 30/12/31`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logger.ParseLevel(os.Getenv("LOG_LEVEL"), slog.LevelWarn)
		if flagVerbose {
			level = slog.LevelDebug
		}
		log := logger.Init(logger.Options{Output: os.Stderr, Level: level, SentryDSN: os.Getenv("SENTRY_DSN")})

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if flagAuthURL != "" {
			cfg.AuthURL = flagAuthURL
		}
		if flagMediaURL != "" {
			cfg.MediaURL = flagMediaURL
		}

		path, err := tokenstore.DefaultPath()
		if err != nil {
			return fmt.Errorf("locating session file: %w", err)
		}
		store = tokenstore.NewFile(path)

		apiClient = api.New(api.Config{
			AuthURL:   cfg.AuthURL,
			MediaURL:  cfg.MediaURL,
			Store:     store,
			Logger:    log,
			UserAgent: "filedeck-cli/" + Version,
			OnSessionExpired: func() {
				fmt.Fprintln(os.Stderr, "Your session has expired. Run \"filedeck login\" to sign in again.")
			},
		})

		opts := session.DefaultOptions()
		opts.Logger = log
		sess = session.New(apiClient, opts)
		cmd.SetContext(session.Attach(cmd.Context(), sess))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log every request to stderr")
	rootCmd.PersistentFlags().StringVar(&flagAuthURL, "auth-url", "", "Override auth service URL (default: from config or "+config.DefaultAuthURL+")")
	rootCmd.PersistentFlags().StringVar(&flagMediaURL, "media-url", "", "Override media service URL (default: from config or "+config.DefaultMediaURL+")")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", api.UserMessage(err, err.Error()))
	}
	logger.Flush()
	return err
}

// requireAuth runs the session startup check and returns the manager, or an
// error telling the user to log in. Commands that never call it make no
// session requests.
func requireAuth(cmd *cobra.Command) (*session.Manager, error) {
	m := session.MustFromContext(cmd.Context())
	ctx := session.Provide(cmd.Context(), m)
	cmd.SetContext(ctx)
	return session.RequireAuthenticated(ctx)
}

// currentUserID is the signed-in user's id as recorded at login.
func currentUserID(m *session.Manager) string {
	if u := m.User(); u != nil && u.ID != "" {
		return u.ID
	}
	return m.Client().Store().UserID()
}
