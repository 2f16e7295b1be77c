package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/output"
	"github.com/filedeck/filedeck/internal/pathutil"
	"github.com/filedeck/filedeck/internal/session"
	"github.com/filedeck/filedeck/internal/sharing"
	"github.com/spf13/cobra"
)

var (
	flagShareEmail   string
	flagExpires      string
	flagProtect      bool
	flagMaxDownloads string
	flagFolder       bool
)

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Share a file or folder by email or public link",
	Long: `Share with another account by email, or create a public link.

  filedeck share file /Docs/report.pdf --email alice@example.com
  filedeck share file /Docs/report.pdf --expires 30/12/31 --max-downloads 5
  filedeck share folder /Photos --protect        Prompts for a link password

Dates are YY/MM/DD or YYYY/MM/DD. Two-digit years below 50 are 20xx.`,
}

var shareFileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Share a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShare(cmd, sharing.File, args[0])
	},
}

var shareFolderCmd = &cobra.Command{
	Use:   "folder <path>",
	Short: "Share a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShare(cmd, sharing.Folder, args[0])
	},
}

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Manage share links of a file (or a folder with --folder)",
}

var linksLsCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: "List active links",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modal, err := openModal(cmd, targetKind(), args[0])
		if err != nil {
			return err
		}
		links, err := modal.Links(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing links: %w", err)
		}
		if flagJSON {
			output.JSON(links)
			return nil
		}
		output.LinkTable(links)
		return nil
	},
}

var linksCreateCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create a public link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flagShareEmail = ""
		return runShare(cmd, targetKind(), args[0])
	},
}

var linksShowCmd = &cobra.Command{
	Use:   "show <path> <link-id>",
	Short: "Show one link",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		modal, err := openModal(cmd, targetKind(), args[0])
		if err != nil {
			return err
		}
		link, err := modal.Link(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		if flagJSON {
			output.JSON(link)
			return nil
		}
		output.LinkTable([]api.ShareLink{*link})
		return nil
	},
}

var linksRmCmd = &cobra.Command{
	Use:   "rm <path> <link-id>",
	Short: "Revoke a link",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		modal, err := openModal(cmd, targetKind(), args[0])
		if err != nil {
			return err
		}
		if err := modal.DeleteLink(cmd.Context(), args[1]); err != nil {
			return err
		}
		fmt.Println("Link revoked.")
		return nil
	},
}

var linksExtendCmd = &cobra.Command{
	Use:   "extend <path> <link-id> <date>",
	Short: "Move a file link's expiry date (YY/MM/DD or YYYY/MM/DD)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		modal, err := openModal(cmd, sharing.File, args[0])
		if err != nil {
			return err
		}
		link, err := modal.ExtendExpiry(cmd.Context(), args[1], args[2])
		if err != nil {
			return err
		}
		return printLinkUpdate(modal, link)
	},
}

var linksLimitCmd = &cobra.Command{
	Use:   "limit <path> <link-id> <max-downloads>",
	Short: "Change a file link's download limit",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		modal, err := openModal(cmd, sharing.File, args[0])
		if err != nil {
			return err
		}
		link, err := modal.UpdateDownloadLimit(cmd.Context(), args[1], args[2])
		if err != nil {
			return err
		}
		return printLinkUpdate(modal, link)
	},
}

func init() {
	for _, c := range []*cobra.Command{shareFileCmd, shareFolderCmd, linksCreateCmd} {
		c.Flags().StringVar(&flagExpires, "expires", "", "Expiry date, YY/MM/DD or YYYY/MM/DD")
		c.Flags().BoolVar(&flagProtect, "protect", false, "Prompt for a link password")
		c.Flags().StringVar(&flagMaxDownloads, "max-downloads", "", "Maximum number of downloads")
	}
	shareFileCmd.Flags().StringVar(&flagShareEmail, "email", "", "Share with this account instead of creating a public link")
	shareFolderCmd.Flags().StringVar(&flagShareEmail, "email", "", "Share with this account instead of creating a public link")
	linksCmd.PersistentFlags().BoolVar(&flagFolder, "folder", false, "The path is a folder")

	shareCmd.AddCommand(shareFileCmd, shareFolderCmd)
	linksCmd.AddCommand(linksLsCmd, linksShowCmd, linksCreateCmd, linksRmCmd, linksExtendCmd, linksLimitCmd)
	rootCmd.AddCommand(shareCmd, linksCmd)
}

func targetKind() sharing.Kind {
	if flagFolder {
		return sharing.Folder
	}
	return sharing.File
}

// resolveTarget turns a path into a share target.
func resolveTarget(ctx context.Context, m *session.Manager, kind sharing.Kind, p string) (sharing.Target, error) {
	media := m.Client().Media
	if kind == sharing.Folder {
		id, err := pathutil.Resolve(ctx, media, p)
		if err != nil {
			return sharing.Target{}, err
		}
		if id == "" {
			return sharing.Target{}, errors.New("the root folder cannot be shared")
		}
		return sharing.Target{Kind: kind, ID: id, Name: p}, nil
	}
	f, err := pathutil.ResolveFile(ctx, media, currentUserID(m), p)
	if err != nil {
		return sharing.Target{}, err
	}
	return sharing.Target{Kind: kind, ID: f.ID, Name: f.DisplayName()}, nil
}

func openModal(cmd *cobra.Command, kind sharing.Kind, p string) (*sharing.Modal, error) {
	m, err := requireAuth(cmd)
	if err != nil {
		return nil, err
	}
	target, err := resolveTarget(cmd.Context(), m, kind, p)
	if err != nil {
		return nil, err
	}
	return sharing.NewModal(m.Client().Media, target, cfg.LinkBase()), nil
}

func runShare(cmd *cobra.Command, kind sharing.Kind, p string) error {
	modal, err := openModal(cmd, kind, p)
	if err != nil {
		return err
	}

	form := sharing.Form{Email: flagShareEmail, ExpiresAt: flagExpires, MaxDownloads: flagMaxDownloads}
	if flagProtect {
		if form.Password, err = promptSecret("Link password: "); err != nil {
			return err
		}
		if form.Password == "" {
			return errors.New("link password cannot be empty")
		}
	}

	var link *api.ShareLink
	if form.Email != "" {
		link, err = modal.ShareWithEmail(cmd.Context(), form)
	} else {
		link, err = modal.CreateLink(cmd.Context(), form)
	}
	if err != nil {
		return err
	}

	if flagJSON {
		if link != nil {
			output.JSON(link)
		} else {
			output.JSON(modal.Snapshot().Message)
		}
		return nil
	}
	fmt.Println(modal.Snapshot().Message.Text)
	if url, ok := modal.Reveal(); ok && url != "" {
		fmt.Printf("\n  %s\n\n", url)
		fmt.Println("This is the only time the link is shown in full. Copy it now.")
	}
	return nil
}

func printLinkUpdate(modal *sharing.Modal, link *api.ShareLink) error {
	if flagJSON {
		output.JSON(link)
		return nil
	}
	fmt.Println(modal.Snapshot().Message.Text)
	return nil
}
