package cli

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/browser"
	"github.com/filedeck/filedeck/internal/output"
	"github.com/filedeck/filedeck/internal/session"
	"github.com/spf13/cobra"
)

var (
	flagPublicFile string
	flagSubfolder  string
)

var publicCmd = &cobra.Command{
	Use:   "public",
	Short: "Open public share links (no account needed)",
	Long: `Browse and download from public links. Password-protected links prompt
for the password.

  filedeck public ls https://host/public/folders/abc123
  filedeck public get https://host/s/xyz789
  filedeck public get abc123 --file <file-id>     Download from a shared folder`,
}

var publicLsCmd = &cobra.Command{
	Use:   "ls <folder-link>",
	Short: "List a publicly shared folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m := session.MustFromContext(cmd.Context())
		_, token := parseShareRef(args[0])
		view := browser.NewPublicFolder(m.Client().Media, token)

		contents, err := view.Load(cmd.Context(), flagSubfolder)
		for errors.Is(err, browser.ErrPasswordRequired) {
			contents, err = retryWithPassword(view.State(), func(pw string) (*api.FolderContents, error) {
				return view.SubmitPassword(cmd.Context(), pw)
			})
		}
		if err != nil {
			return err
		}
		if flagJSON {
			output.JSON(contents)
			return nil
		}
		fmt.Printf("%s\n\n", browser.Path(contents.Breadcrumbs))
		output.FolderTable(contents)
		return nil
	},
}

var publicGetCmd = &cobra.Command{
	Use:   "get <link> [local-dir]",
	Short: "Download from a public link",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m := session.MustFromContext(cmd.Context())
		media := m.Client().Media
		kind, token := parseShareRef(args[0])
		destDir := "."
		if len(args) > 1 {
			destDir = args[1]
		}

		if kind == "folder" || flagPublicFile != "" {
			if flagPublicFile == "" {
				return errors.New("use --file <file-id> to pick a file from a shared folder")
			}
			view := browser.NewPublicFolder(media, token)
			contents, err := view.Load(cmd.Context(), flagSubfolder)
			for errors.Is(err, browser.ErrPasswordRequired) {
				contents, err = retryWithPassword(view.State(), func(pw string) (*api.FolderContents, error) {
					return view.SubmitPassword(cmd.Context(), pw)
				})
			}
			if err != nil {
				return err
			}
			name := flagPublicFile
			for _, f := range contents.Files {
				if f.ID == flagPublicFile {
					name = f.DisplayName()
				}
			}
			return savePublic(destDir, name, func(w *os.File) (int64, error) {
				return view.Download(cmd.Context(), flagPublicFile, w)
			})
		}

		view := browser.NewPublicFile(media, token)
		md, err := view.Load(cmd.Context())
		for errors.Is(err, browser.ErrPasswordRequired) {
			md, err = retryWithPassword(view.State(), func(pw string) (*api.FileMetadata, error) {
				return view.SubmitPassword(cmd.Context(), pw)
			})
		}
		if err != nil {
			return err
		}
		if !flagJSON {
			output.FileMetadata(*md)
		}
		return savePublic(destDir, md.Filename, func(w *os.File) (int64, error) {
			return view.Download(cmd.Context(), w)
		})
	},
}

func init() {
	publicCmd.PersistentFlags().StringVar(&flagSubfolder, "folder-id", "", "Subfolder of a shared folder")
	publicGetCmd.Flags().StringVar(&flagPublicFile, "file", "", "File id inside a shared folder")
	publicGetCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output file path (overrides default naming)")
	publicCmd.AddCommand(publicLsCmd, publicGetCmd)
	rootCmd.AddCommand(publicCmd)
}

// retryWithPassword prompts for the link password, showing why the last
// attempt failed.
func retryWithPassword[T any](state browser.PublicState, submit func(string) (T, error)) (T, error) {
	if state.PasswordErr != "" {
		fmt.Fprintln(os.Stderr, state.PasswordErr)
	} else {
		fmt.Fprintln(os.Stderr, "This link is password protected.")
	}
	pw, err := promptSecret("Link password: ")
	if err != nil {
		var zero T
		return zero, err
	}
	out, err := submit(pw)
	if err != nil && !api.IsPasswordRequired(err) && !errors.Is(err, browser.ErrPasswordRequired) {
		return out, err
	}
	if err != nil {
		return out, browser.ErrPasswordRequired
	}
	return out, nil
}

// parseShareRef accepts a full share URL or a bare token. The kind is
// "file", "folder" or "" when it cannot be told from the input.
func parseShareRef(ref string) (kind, token string) {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil || u.Path == "" {
		return "", ref
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(parts); i++ {
		switch {
		case parts[i] == "s" && i+1 < len(parts):
			return "file", parts[i+1]
		case parts[i] == "folders" && i > 0 && parts[i-1] == "public" && i+1 < len(parts):
			return "folder", parts[i+1]
		}
	}
	return "", parts[len(parts)-1]
}

func savePublic(destDir, name string, fill func(*os.File) (int64, error)) error {
	if name == "" {
		name = "download"
	}
	dest := filepath.Join(destDir, filepath.Base(name))
	if flagOutput != "" {
		dest = flagOutput
	}
	n, err := writeFile(dest, fill)
	if err != nil {
		return fmt.Errorf("downloading: %w", err)
	}
	fmt.Printf("Downloaded %s (%s) → %s\n", filepath.Base(name), output.FormatSize(n), dest)
	return nil
}
