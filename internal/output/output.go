package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/filedeck/filedeck/internal/api"
)

// Out is where every printer writes.
var Out io.Writer = os.Stdout

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(Out, 0, 0, 2, ' ', 0)
}

// JSON prints v as indented JSON.
func JSON(v interface{}) {
	enc := json.NewEncoder(Out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// FolderTable prints subfolders first, then files.
func FolderTable(c *api.FolderContents) {
	if c == nil || (len(c.Subfolders) == 0 && len(c.Files) == 0) {
		fmt.Fprintln(Out, "Folder is empty.")
		return
	}

	w := newTable()
	fmt.Fprintln(w, "NAME\tSIZE\tTYPE\tCREATED\tID")
	for _, f := range c.Subfolders {
		fmt.Fprintf(w, "%s/\t-\tdir\t%s\t%s\n", f.Name, RelativeTime(f.CreatedAt), f.ID)
	}
	for _, f := range c.Files {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			f.DisplayName(), FormatSize(f.Size), shortMIME(f.ContentType), RelativeTime(f.CreatedAt), f.ID)
	}
	w.Flush()
}

// LinkTable prints share or public links.
func LinkTable(links []api.ShareLink) {
	if len(links) == 0 {
		fmt.Fprintln(Out, "No active links.")
		return
	}
	w := newTable()
	fmt.Fprintln(w, "ID\tURL\tEXPIRES\tDOWNLOADS\tPASSWORD")
	for _, l := range links {
		expires := "never"
		if l.ExpiresAt != nil {
			expires = l.ExpiresAt.Format("2006-01-02")
		}
		downloads := fmt.Sprintf("%d", l.DownloadsUsed)
		if l.MaxDownloads != nil {
			downloads = fmt.Sprintf("%d/%d", l.DownloadsUsed, *l.MaxDownloads)
		}
		password := "no"
		if l.HasPassword {
			password = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", l.Identifier(), l.URL, expires, downloads, password)
	}
	w.Flush()
}

// SessionTable prints the signed-in devices.
func SessionTable(sessions []api.DeviceSession) {
	if len(sessions) == 0 {
		fmt.Fprintln(Out, "No active sessions.")
		return
	}
	w := newTable()
	fmt.Fprintln(w, "ID\tDEVICE\tIP\tLAST SEEN\tCURRENT")
	for _, s := range sessions {
		current := ""
		if s.Current {
			current = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, truncate(s.UserAgent, 40), s.IPAddress, RelativeTime(s.LastSeenAt), current)
	}
	w.Flush()
}

// FileMetadata prints the details of a publicly shared file.
func FileMetadata(md api.FileMetadata) {
	w := newTable()
	fmt.Fprintf(w, "Name:\t%s\n", md.Filename)
	fmt.Fprintf(w, "Size:\t%s\n", FormatSize(md.Size))
	if md.ContentType != "" {
		fmt.Fprintf(w, "Type:\t%s\n", md.ContentType)
	}
	if md.ExpiresAt != nil {
		fmt.Fprintf(w, "Expires:\t%s\n", md.ExpiresAt.Format(time.RFC3339))
	}
	if md.MaxDownloads != nil {
		fmt.Fprintf(w, "Downloads:\t%d of %d\n", md.DownloadsUsed, *md.MaxDownloads)
	}
	w.Flush()
}

// UserInfo prints user details.
func UserInfo(u api.User) {
	w := newTable()
	if u.Email != "" {
		fmt.Fprintf(w, "Email:\t%s\n", u.Email)
	}
	if u.FullName != "" {
		fmt.Fprintf(w, "Name:\t%s\n", u.FullName)
	}
	fmt.Fprintf(w, "ID:\t%s\n", u.ID)
	if u.StorageLimit > 0 {
		fmt.Fprintf(w, "Storage:\t%s of %s\n", FormatSize(u.StorageUsed), FormatSize(u.StorageLimit))
	}
	fmt.Fprintf(w, "Verified:\t%s\n", yesNo(u.IsVerified))
	fmt.Fprintf(w, "2FA:\t%s\n", yesNo(u.Is2FAEnabled))
	w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// FormatSize converts bytes to a human-readable string.
func FormatSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// RelativeTime formats a timestamp relative to now (e.g. "2h ago", "3d ago").
func RelativeTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// Progress returns an upload progress printer that redraws one line on w.
func Progress(w io.Writer, name string) api.Progress {
	return func(sent, total int64) {
		pct := 100
		if total > 0 {
			pct = int(sent * 100 / total)
		}
		fmt.Fprintf(w, "\r  %s  %s / %s  %3d%%", name, FormatSize(sent), FormatSize(total), pct)
		if sent >= total {
			fmt.Fprintln(w)
		}
	}
}

func shortMIME(mime string) string {
	if mime == "" {
		return "-"
	}
	// "application/pdf" -> "pdf", "image/png" -> "png"
	parts := strings.Split(mime, "/")
	if len(parts) == 2 {
		s := parts[1]
		if idx := strings.LastIndex(s, "."); idx >= 0 {
			s = s[idx+1:]
		}
		return s
	}
	return mime
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
