package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/browser"
	"github.com/filedeck/filedeck/internal/output"
	"github.com/filedeck/filedeck/internal/pathutil"
	"github.com/filedeck/filedeck/internal/session"
	"github.com/spf13/cobra"
)

var (
	flagParent  string
	flagWorkers int
	flagOutput  string
	flagForce   bool
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List folders and files",
	Long: `List your root folder or the contents of a folder.

  filedeck ls                       List root
  filedeck ls /Documents            List by path
  filedeck ls 550e8400-...          List by folder ID`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := requireAuth(cmd)
		if err != nil {
			return err
		}
		media := m.Client().Media

		p := ""
		if len(args) > 0 {
			p = args[0]
		}
		folderID, err := pathutil.Resolve(cmd.Context(), media, p)
		if err != nil {
			return err
		}

		b := browser.New(media, currentUserID(m))
		contents, err := b.Open(cmd.Context(), folderID)
		if err != nil {
			return fmt.Errorf("listing folder: %w", err)
		}

		if flagJSON {
			output.JSON(contents)
			return nil
		}
		fmt.Printf("%s\n\n", b.Path())
		output.FolderTable(contents)
		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a folder",
	Long: `Create a folder. The parent must already exist.

  filedeck mkdir /Projects
  filedeck mkdir /Projects/2025`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := requireAuth(cmd)
		if err != nil {
			return err
		}
		media := m.Client().Media

		clean := strings.Trim(args[0], "/")
		if clean == "" {
			return errors.New("folder name is required")
		}
		parentPath, name := path.Split(clean)
		parentID, err := pathutil.Resolve(cmd.Context(), media, parentPath)
		if err != nil {
			return fmt.Errorf("resolving parent: %w", err)
		}

		folder, err := media.CreateFolder(cmd.Context(), name, parentID)
		if err != nil {
			return fmt.Errorf("creating folder: %w", err)
		}
		if flagJSON {
			output.JSON(folder)
			return nil
		}
		fmt.Printf("Created folder %s (%s)\n", folder.Name, folder.ID)
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <path> [remote-folder]",
	Short: "Upload a file or directory",
	Long: `Upload a local file or directory.

  filedeck upload report.pdf                     Upload to root
  filedeck upload report.pdf /Documents          Upload to a folder
  filedeck upload ./project/ /Documents          Upload directory recursively
  filedeck upload report.pdf --parent <uuid>     Upload to folder by ID`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runUpload,
}

var downloadCmd = &cobra.Command{
	Use:   "download <remote-path> [local-dir]",
	Short: "Download a file",
	Long: `Download a file to your machine.

  filedeck download /Documents/report.pdf          Download to current directory
  filedeck download /Documents/report.pdf ./out     Download to a directory
  filedeck download <uuid> -o report.pdf            Download by file ID`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := requireAuth(cmd)
		if err != nil {
			return err
		}
		media := m.Client().Media

		f, err := pathutil.ResolveFile(cmd.Context(), media, currentUserID(m), args[0])
		if err != nil {
			return err
		}

		destDir := "."
		if len(args) > 1 {
			destDir = args[1]
		}
		name := f.DisplayName()
		if name == "" {
			name = f.ID
		}
		dest := filepath.Join(destDir, name)
		if flagOutput != "" {
			dest = flagOutput
		}

		n, err := writeFile(dest, func(w *os.File) (int64, error) {
			return media.Download(cmd.Context(), f.ID, w)
		})
		if err != nil {
			return fmt.Errorf("downloading: %w", err)
		}
		fmt.Printf("Downloaded %s (%s) → %s\n", name, output.FormatSize(n), dest)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Delete a file",
	Long: `Delete a file from the server.

  filedeck rm /Documents/old-report.pdf
  filedeck rm /Documents/old-report.pdf --force    Skip confirmation`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := requireAuth(cmd)
		if err != nil {
			return err
		}
		media := m.Client().Media

		f, err := pathutil.ResolveFile(cmd.Context(), media, currentUserID(m), args[0])
		if err != nil {
			return err
		}
		label := f.DisplayName()
		if label == "" {
			label = f.ID
		}
		if !flagForce && !confirm(fmt.Sprintf("Delete %q? This cannot be undone.", label)) {
			fmt.Println("Cancelled.")
			return nil
		}
		if err := media.DeleteFile(cmd.Context(), f.ID); err != nil {
			return fmt.Errorf("deleting: %w", err)
		}
		fmt.Printf("Deleted %s\n", label)
		return nil
	},
}

func init() {
	uploadCmd.Flags().StringVar(&flagParent, "parent", "", "Parent folder ID (alternative to positional arg)")
	uploadCmd.Flags().IntVarP(&flagWorkers, "workers", "w", 4, "Number of concurrent upload workers (for directories)")
	downloadCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output file path (overrides default naming)")
	rmCmd.Flags().BoolVarP(&flagForce, "force", "f", false, "Skip confirmation")
	rootCmd.AddCommand(lsCmd, mkdirCmd, uploadCmd, downloadCmd, rmCmd)
}

// writeFile streams into dest through a temporary file so a failed download
// leaves nothing behind.
func writeFile(dest string, fill func(*os.File) (int64, error)) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, err
	}
	n, err := fill(tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	m, err := requireAuth(cmd)
	if err != nil {
		return err
	}
	media := m.Client().Media
	localPath := args[0]

	parentID := flagParent
	if len(args) > 1 && parentID == "" {
		resolved, err := pathutil.Resolve(cmd.Context(), media, args[1])
		if err != nil {
			return fmt.Errorf("resolving remote folder: %w", err)
		}
		parentID = resolved
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}
	if !info.IsDir() {
		return uploadSingleFile(cmd.Context(), m, localPath, parentID)
	}
	return uploadDirectory(cmd.Context(), m, localPath, parentID)
}

func uploadSingleFile(ctx context.Context, m *session.Manager, path, parentID string) error {
	var progress api.Progress
	if !flagJSON {
		progress = output.Progress(os.Stderr, filepath.Base(path))
	}
	f, err := m.Client().Media.Upload(ctx, currentUserID(m), path, parentID, progress)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", filepath.Base(path), err)
	}
	if flagJSON {
		output.JSON(f)
		return nil
	}
	fmt.Printf("Uploaded %s (%s)\n", f.DisplayName(), output.FormatSize(f.Size))
	return nil
}

type uploadJob struct {
	localPath string
	parentID  string
}

func uploadDirectory(ctx context.Context, m *session.Manager, dirPath, parentID string) error {
	media := m.Client().Media
	userID := currentUserID(m)

	dirName := filepath.Base(filepath.Clean(dirPath))
	top, err := media.CreateFolder(ctx, dirName, parentID)
	if err != nil {
		return fmt.Errorf("creating remote folder %s: %w", dirName, err)
	}
	fmt.Printf("Created folder: %s\n", dirName)

	jobs := make(chan uploadJob, 64)
	var walkErr error
	var uploaded, failed atomic.Int64

	// Producer: walk the tree, create folders, enqueue files.
	go func() {
		defer close(jobs)
		walkErr = walkTree(ctx, media, dirPath, top.ID, jobs)
	}()

	workers := flagWorkers
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				f, err := media.Upload(ctx, userID, job.localPath, job.parentID, nil)
				if err != nil {
					fmt.Fprintf(os.Stderr, "  Failed: %s: %v\n", filepath.Base(job.localPath), api.UserMessage(err, err.Error()))
					failed.Add(1)
					continue
				}
				fmt.Printf("  Uploaded: %s (%s)\n", f.DisplayName(), output.FormatSize(f.Size))
				uploaded.Add(1)
			}
		}()
	}
	wg.Wait()

	if walkErr != nil {
		return fmt.Errorf("walking directory: %w", walkErr)
	}
	fmt.Printf("\nDone: %d uploaded, %d failed\n", uploaded.Load(), failed.Load())
	if failed.Load() > 0 {
		return fmt.Errorf("%d file(s) failed to upload", failed.Load())
	}
	return nil
}

// walkTree mirrors localDir under remoteParentID and enqueues its files.
func walkTree(ctx context.Context, media *api.Media, localDir, remoteParentID string, jobs chan<- uploadJob) error {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		localPath := filepath.Join(localDir, entry.Name())
		if !entry.IsDir() {
			jobs <- uploadJob{localPath: localPath, parentID: remoteParentID}
			continue
		}
		child, err := media.CreateFolder(ctx, entry.Name(), remoteParentID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  Failed to create folder: %s: %v\n", entry.Name(), err)
			continue
		}
		fmt.Printf("  Created folder: %s\n", entry.Name())
		if err := walkTree(ctx, media, localPath, child.ID, jobs); err != nil {
			return err
		}
	}
	return nil
}
