// Package twofactor runs TOTP enrollment as an explicit step machine:
// Start, then Verify once a secret exists, then Complete.
package twofactor

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"strings"
	"sync"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/session"
	"github.com/filedeck/filedeck/internal/validate"
	"github.com/pquerna/otp"
)

type Step int

const (
	Start Step = iota
	Verify
	Complete
)

func (s Step) String() string {
	switch s {
	case Start:
		return "start"
	case Verify:
		return "verify"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// ErrWrongStep is returned when an action does not apply to the current step.
var ErrWrongStep = errors.New("twofactor: action not valid in this step")

// Enroller is the backend half of enrollment.
type Enroller interface {
	Setup(ctx context.Context) (*api.TOTPSetup, error)
	Confirm(ctx context.Context, code string) error
}

// SessionEnroller enrolls through /auth/totp/*.
type SessionEnroller struct{ M *session.Manager }

func (e SessionEnroller) Setup(ctx context.Context) (*api.TOTPSetup, error) {
	return e.M.SetupTOTP(ctx)
}

func (e SessionEnroller) Confirm(ctx context.Context, code string) error {
	_, err := e.M.VerifyTOTP(ctx, code)
	return err
}

// SettingsEnroller enrolls through /users/me/2fa/*.
type SettingsEnroller struct{ M *session.Manager }

func (e SettingsEnroller) Setup(ctx context.Context) (*api.TOTPSetup, error) {
	return e.M.Setup2FA(ctx)
}

func (e SettingsEnroller) Confirm(ctx context.Context, code string) error {
	_, err := e.M.Enable2FA(ctx, code)
	return err
}

// Wizard holds one enrollment attempt.
type Wizard struct {
	enroller Enroller

	mu   sync.Mutex
	step Step
	key  *otp.Key
	err  string
}

func NewWizard(e Enroller) *Wizard {
	return &Wizard{enroller: e}
}

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Err is the message of the last failed action, if any.
func (w *Wizard) Err() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Begin requests a secret and moves to Verify.
func (w *Wizard) Begin(ctx context.Context) (*otp.Key, error) {
	w.mu.Lock()
	if w.step != Start {
		w.mu.Unlock()
		return nil, ErrWrongStep
	}
	w.err = ""
	w.mu.Unlock()

	setup, err := w.enroller.Setup(ctx)
	if err == nil {
		var key *otp.Key
		key, err = keyFromSetup(setup)
		if err == nil {
			w.mu.Lock()
			w.key = key
			w.step = Verify
			w.mu.Unlock()
			return key, nil
		}
	}
	w.setErr(err, "Could not start two-factor setup")
	return nil, err
}

// keyFromSetup prefers the otpauth URL and falls back to a bare secret.
func keyFromSetup(s *api.TOTPSetup) (*otp.Key, error) {
	raw := s.OTPAuthURL
	if raw == "" {
		if s.Secret == "" {
			return nil, errors.New("server returned no TOTP secret")
		}
		raw = fmt.Sprintf("otpauth://totp/filedeck?secret=%s&issuer=filedeck", s.Secret)
	}
	key, err := otp.NewKeyFromURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing otpauth url: %w", err)
	}
	return key, nil
}

// Key returns the enrolled key once Begin has succeeded.
func (w *Wizard) Key() *otp.Key {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.key
}

// WriteQR renders the otpauth URL as a size x size PNG.
func (w *Wizard) WriteQR(out io.Writer, size int) error {
	key := w.Key()
	if key == nil {
		return ErrWrongStep
	}
	img, err := key.Image(size, size)
	if err != nil {
		return fmt.Errorf("rendering qr code: %w", err)
	}
	return png.Encode(out, img)
}

// Confirm verifies the first code. A malformed code fails without a
// network call and keeps the wizard in Verify.
func (w *Wizard) Confirm(ctx context.Context, code string) error {
	if w.Step() != Verify {
		return ErrWrongStep
	}
	code = strings.TrimSpace(code)
	if err := validate.Code(code); err != nil {
		w.setErr(err, "")
		return err
	}
	if err := w.enroller.Confirm(ctx, code); err != nil {
		w.setErr(err, "Invalid code")
		return err
	}
	w.mu.Lock()
	w.step = Complete
	w.err = ""
	w.mu.Unlock()
	return nil
}

// Restart discards the secret and returns to Start.
func (w *Wizard) Restart() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.step = Start
	w.key = nil
	w.err = ""
}

func (w *Wizard) setErr(err error, fallback string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = api.UserMessage(err, fallback)
}
