// Package sharing implements the share and public-link flows for files and
// folders: validate the form, create the link, list and revoke links.
package sharing

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/validate"
)

// ErrUnsupported is returned for operations folder links do not have.
var ErrUnsupported = errors.New("not supported for folder links")

// ErrLinkNotFound is returned by Link when the target has no such link.
var ErrLinkNotFound = errors.New("link not found")

type Kind int

const (
	File Kind = iota
	Folder
)

func (k Kind) String() string {
	if k == Folder {
		return "folder"
	}
	return "file"
}

// Target is the file or folder being shared.
type Target struct {
	Kind Kind
	ID   string
	Name string
}

// Phase is the modal's single state variable.
type Phase int

const (
	Editing Phase = iota
	Submitting
	Created
	Failed
)

func (p Phase) String() string {
	switch p {
	case Editing:
		return "editing"
	case Submitting:
		return "submitting"
	case Created:
		return "created"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message is the one feedback slot. Error marks it as a failure.
type Message struct {
	Text  string
	Error bool
}

// Form is the raw user input. Every field is optional except Email for
// ShareWithEmail.
type Form struct {
	Email        string
	ExpiresAt    string // YY/MM/DD or YYYY/MM/DD
	Password     string
	MaxDownloads string
}

// Options validates the link constraints in f.
func (f Form) Options() (api.LinkOptions, error) {
	var errs validate.Errors
	expires, err := validate.ExpiryISO(f.ExpiresAt)
	errs.Add("expires_at", err)
	maxDL, err := validate.MaxDownloads(f.MaxDownloads)
	errs.Add("max_downloads", err)
	if err := errs.Err(); err != nil {
		return api.LinkOptions{}, err
	}
	return api.LinkOptions{ExpiresAt: expires, Password: f.Password, MaxDownloads: maxDL}, nil
}

// Snapshot is a copy of the modal state.
type Snapshot struct {
	Phase   Phase
	Message Message
	Links   []api.ShareLink
	Created *api.ShareLink
}

// Modal drives one share dialog. It is safe for concurrent use.
type Modal struct {
	media      *api.Media
	target     Target
	publicBase string

	mu       sync.Mutex
	phase    Phase
	message  Message
	links    []api.ShareLink
	created  *api.ShareLink
	revealed bool
}

// NewModal opens a dialog for target. publicBase is the web origin used to
// build link URLs when the backend does not return one.
func NewModal(media *api.Media, target Target, publicBase string) *Modal {
	return &Modal{media: media, target: target, publicBase: strings.TrimRight(publicBase, "/")}
}

func (m *Modal) Target() Target { return m.target }

func (m *Modal) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{Phase: m.phase, Message: m.message, Links: append([]api.ShareLink(nil), m.links...)}
	if m.created != nil {
		c := *m.created
		s.Created = &c
	}
	return s
}

// Reset returns to Editing and empties the message slot.
func (m *Modal) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = Editing
	m.message = Message{}
	m.created = nil
	m.revealed = false
}

func (m *Modal) begin() {
	m.mu.Lock()
	m.phase = Submitting
	m.message = Message{}
	m.mu.Unlock()
}

func (m *Modal) fail(err error) error {
	m.mu.Lock()
	m.phase = Failed
	m.message = Message{Text: api.UserMessage(err, "Something went wrong"), Error: true}
	m.mu.Unlock()
	return err
}

// invalid reports a validation failure without leaving Editing.
func (m *Modal) invalid(err error) error {
	m.mu.Lock()
	m.phase = Editing
	m.message = Message{Text: err.Error(), Error: true}
	m.mu.Unlock()
	return err
}

func (m *Modal) succeed(text string, link *api.ShareLink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = Created
	m.message = Message{Text: text}
	if link != nil {
		if link.URL == "" {
			link.URL = LinkURL(m.publicBase, m.target.Kind, *link)
		}
		m.created = link
		m.revealed = false
		if link.IsActive() {
			m.links = append([]api.ShareLink{*link}, m.links...)
		}
	}
}

// ShareWithEmail shares the target with another account by email. For files
// the returned link is the one mailed to the recipient; folders return nil.
func (m *Modal) ShareWithEmail(ctx context.Context, form Form) (*api.ShareLink, error) {
	if err := validate.Email(form.Email); err != nil {
		return nil, m.invalid(err)
	}
	email := strings.TrimSpace(form.Email)

	if m.target.Kind == Folder {
		m.begin()
		resp, err := m.media.ShareFolder(ctx, m.target.ID, email)
		if err != nil {
			return nil, m.fail(err)
		}
		text := resp.Message
		if text == "" {
			text = "Folder shared with " + email
		}
		m.succeed(text, nil)
		return nil, nil
	}

	opts, err := form.Options()
	if err != nil {
		return nil, m.invalid(err)
	}
	m.begin()
	link, err := m.media.CreateShareLink(ctx, api.ShareLinkRequest{FileID: m.target.ID, Email: email, LinkOptions: opts})
	if err != nil {
		return nil, m.fail(err)
	}
	m.succeed("Shared with "+email, link)
	return link, nil
}

// CreateLink creates a public link with the constraints in form.
func (m *Modal) CreateLink(ctx context.Context, form Form) (*api.ShareLink, error) {
	opts, err := form.Options()
	if err != nil {
		return nil, m.invalid(err)
	}
	m.begin()

	var link *api.ShareLink
	if m.target.Kind == Folder {
		link, err = m.media.CreateFolderPublicLink(ctx, m.target.ID, opts)
	} else {
		link, err = m.media.CreateShareLink(ctx, api.ShareLinkRequest{FileID: m.target.ID, LinkOptions: opts})
	}
	if err != nil {
		return nil, m.fail(err)
	}
	m.succeed("Link created", link)
	return link, nil
}

// Reveal returns the URL of the link just created. It answers only once per
// created link.
func (m *Modal) Reveal() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created == nil || m.revealed {
		return "", false
	}
	m.revealed = true
	return m.created.URL, true
}

// Links fetches the target's links and keeps only active ones. It does not
// touch the phase or message.
func (m *Modal) Links(ctx context.Context) ([]api.ShareLink, error) {
	var (
		links []api.ShareLink
		err   error
	)
	if m.target.Kind == Folder {
		links, err = m.media.FolderPublicLinks(ctx, m.target.ID)
	} else {
		links, err = m.media.FileShareLinks(ctx, m.target.ID)
	}
	if err != nil {
		return nil, err
	}
	links = FilterActive(links)
	for i := range links {
		if links[i].URL == "" {
			links[i].URL = LinkURL(m.publicBase, m.target.Kind, links[i])
		}
	}

	m.mu.Lock()
	m.links = links
	m.mu.Unlock()
	return append([]api.ShareLink(nil), links...), nil
}

// Link fetches a single link of the target. Files have no single-link
// endpoint, so their list is searched.
func (m *Modal) Link(ctx context.Context, linkID string) (*api.ShareLink, error) {
	var link *api.ShareLink
	if m.target.Kind == Folder {
		l, err := m.media.FolderPublicLink(ctx, m.target.ID, linkID)
		if err != nil {
			return nil, err
		}
		link = l
	} else {
		links, err := m.media.FileShareLinks(ctx, m.target.ID)
		if err != nil {
			return nil, err
		}
		for i := range links {
			if links[i].Identifier() == linkID {
				link = &links[i]
				break
			}
		}
		if link == nil {
			return nil, ErrLinkNotFound
		}
	}
	if link.URL == "" {
		link.URL = LinkURL(m.publicBase, m.target.Kind, *link)
	}
	return link, nil
}

// DeleteLink revokes a link. It is dropped from the local list first and put
// back only if the backend refuses.
func (m *Modal) DeleteLink(ctx context.Context, linkID string) error {
	m.mu.Lock()
	removedAt := -1
	var removed api.ShareLink
	kept := make([]api.ShareLink, 0, len(m.links))
	for i, l := range m.links {
		if l.Identifier() == linkID {
			removedAt, removed = i, l
			continue
		}
		kept = append(kept, l)
	}
	m.links = kept
	m.mu.Unlock()

	var err error
	if m.target.Kind == Folder {
		err = m.media.DeleteFolderPublicLink(ctx, m.target.ID, linkID)
	} else {
		err = m.media.DeleteShareLink(ctx, linkID)
	}
	if err != nil {
		m.mu.Lock()
		if removedAt >= 0 {
			m.restore(removedAt, removed)
		}
		m.message = Message{Text: api.UserMessage(err, "Could not delete link"), Error: true}
		m.mu.Unlock()
		return err
	}
	return nil
}

// restore puts link back at index i unless the list already holds it again.
// Callers hold m.mu.
func (m *Modal) restore(i int, link api.ShareLink) {
	for _, l := range m.links {
		if l.Identifier() == link.Identifier() {
			return
		}
	}
	if i > len(m.links) {
		i = len(m.links)
	}
	m.links = append(m.links[:i], append([]api.ShareLink{link}, m.links[i:]...)...)
}

// ExtendExpiry moves a file link's expiry to date (YY/MM/DD or YYYY/MM/DD).
func (m *Modal) ExtendExpiry(ctx context.Context, linkID, date string) (*api.ShareLink, error) {
	if m.target.Kind == Folder {
		return nil, ErrUnsupported
	}
	if strings.TrimSpace(date) == "" {
		return nil, m.invalid(&validate.FieldError{Field: "expires_at", Message: "a new expiry date is required"})
	}
	iso, err := validate.ExpiryISO(date)
	if err != nil {
		return nil, m.invalid(err)
	}
	m.begin()
	link, err := m.media.ExtendShareLinkExpiry(ctx, linkID, iso)
	if err != nil {
		return nil, m.fail(err)
	}
	m.replace(linkID, link)
	m.setMessage("Expiry updated to " + iso)
	return link, nil
}

// UpdateDownloadLimit sets a file link's download limit.
func (m *Modal) UpdateDownloadLimit(ctx context.Context, linkID, limit string) (*api.ShareLink, error) {
	if m.target.Kind == Folder {
		return nil, ErrUnsupported
	}
	n, err := validate.MaxDownloads(limit)
	if err == nil && n == nil {
		err = &validate.FieldError{Field: "max_downloads", Message: "a download limit is required"}
	}
	if err != nil {
		return nil, m.invalid(err)
	}
	m.begin()
	link, err := m.media.UpdateShareLinkDownloadLimit(ctx, linkID, *n)
	if err != nil {
		return nil, m.fail(err)
	}
	m.replace(linkID, link)
	m.setMessage("Download limit updated")
	return link, nil
}

func (m *Modal) replace(linkID string, link *api.ShareLink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.links {
		if l.Identifier() == linkID {
			updated := *link
			if updated.URL == "" {
				updated.URL = l.URL
			}
			m.links[i] = updated
		}
	}
}

func (m *Modal) setMessage(text string) {
	m.mu.Lock()
	m.phase = Editing
	m.message = Message{Text: text}
	m.mu.Unlock()
}

// FilterActive drops links explicitly marked inactive.
func FilterActive(links []api.ShareLink) []api.ShareLink {
	out := make([]api.ShareLink, 0, len(links))
	for _, l := range links {
		if l.IsActive() {
			out = append(out, l)
		}
	}
	return out
}

// LinkURL builds the browser URL for a link on publicBase.
func LinkURL(publicBase string, kind Kind, link api.ShareLink) string {
	if link.URL != "" {
		return link.URL
	}
	code := link.Code()
	if code == "" {
		return ""
	}
	if kind == Folder {
		return publicBase + "/public/folders/" + code
	}
	return publicBase + "/s/" + code
}
