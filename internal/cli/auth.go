package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/output"
	"github.com/filedeck/filedeck/internal/session"
	"github.com/filedeck/filedeck/internal/validate"
	"github.com/spf13/cobra"
)

var (
	flagTOTP     string
	flagPasscode bool
	flagOAuth    string
	flagFullName string
)

var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Sign in to filedeck",
	Long: `Sign in with a password, an emailed passcode or an OAuth provider.

  filedeck login you@example.com                 Password (prompts for 2FA code if enabled)
  filedeck login you@example.com --totp 123456   Password plus 2FA code
  filedeck login you@example.com --passcode      Email me a one-time passcode
  filedeck login --oauth google                  Sign in through the browser`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := session.MustFromContext(cmd.Context())
		if err := m.Logout(cmd.Context()); err != nil {
			return fmt.Errorf("clearing session: %w", err)
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register [email]",
	Short: "Create an account",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m := session.MustFromContext(cmd.Context())
		var errs validate.Errors

		email, err := argOrPrompt(args, 0, "Email: ")
		if err != nil {
			return err
		}
		errs.Add("email", validate.Email(email))
		if err := errs.Err(); err != nil {
			return err
		}
		password, err := promptSecret("Password: ")
		if err != nil {
			return err
		}
		errs.Add("password", validate.Password(password))
		again, err := promptSecret("Confirm password: ")
		if err != nil {
			return err
		}
		if again != password {
			errs.Add("password", errors.New("passwords do not match"))
		}
		if err := errs.Err(); err != nil {
			return err
		}

		resp, err := m.Register(cmd.Context(), api.RegisterRequest{Email: email, Password: password, FullName: flagFullName})
		if err != nil {
			return err
		}
		if flagJSON {
			output.JSON(resp)
			return nil
		}
		fmt.Println(messageOr(resp, "Account created. Check your email for a verification link."))
		return nil
	},
}

var verifyEmailCmd = &cobra.Command{
	Use:   "verify-email <token>",
	Short: "Confirm your email address with the token from the verification email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := session.MustFromContext(cmd.Context()).VerifyEmail(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(messageOr(resp, "Email verified. You can now log in."))
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := requireAuth(cmd)
		if err != nil {
			return err
		}
		user := m.User()
		if user == nil {
			return session.ErrNotAuthenticated
		}
		if flagJSON {
			output.JSON(user)
			return nil
		}
		output.UserInfo(*user)
		if claims, err := api.PeekClaims(m.Client().Store().Get()); err == nil && !claims.ExpiresAt.IsZero() {
			fmt.Printf("Token expires: %s\n", claims.ExpiresAt.Local().Format(time.RFC1123))
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&flagTOTP, "totp", "", "6-digit authenticator code")
	loginCmd.Flags().BoolVar(&flagPasscode, "passcode", false, "Sign in with a one-time passcode sent by email")
	loginCmd.Flags().StringVar(&flagOAuth, "oauth", "", "Sign in with an OAuth provider (e.g. google, github)")
	registerCmd.Flags().StringVar(&flagFullName, "name", "", "Your full name")

	rootCmd.AddCommand(loginCmd, logoutCmd, registerCmd, verifyEmailCmd, whoamiCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	m := session.MustFromContext(cmd.Context())
	ctx := cmd.Context()

	if flagOAuth != "" {
		return loginOAuth(ctx, m, flagOAuth)
	}

	email, err := argOrPrompt(args, 0, "Email: ")
	if err != nil {
		return err
	}
	if err := validate.Email(email); err != nil {
		return err
	}

	if flagPasscode {
		return loginPasscode(ctx, m, email)
	}

	password, err := promptSecret("Password: ")
	if err != nil {
		return err
	}
	if flagTOTP != "" {
		if err := validate.Code(flagTOTP); err != nil {
			return err
		}
	}

	resp, err := m.Login(ctx, email, password, flagTOTP)
	if err != nil {
		return err
	}
	if m.State() == session.TOTPPending {
		if resp.Message != "" {
			fmt.Fprintln(os.Stderr, resp.Message)
		}
		code, err := promptSecret("Authenticator code: ")
		if err != nil {
			return err
		}
		if err := validate.Code(code); err != nil {
			return err
		}
		if _, err := m.Login(ctx, email, password, code); err != nil {
			return err
		}
	}
	return printLoggedIn(m)
}

func loginPasscode(ctx context.Context, m *session.Manager, email string) error {
	resp, err := m.GeneratePasscode(ctx, email)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, messageOr(resp, "A passcode has been sent to "+email+"."))
	code, err := prompt("Passcode: ")
	if err != nil {
		return err
	}
	if _, err := m.VerifyPasscode(ctx, email, code); err != nil {
		return err
	}
	return printLoggedIn(m)
}

// loginOAuth opens the provider's consent page and waits for the redirect on
// a loopback listener.
func loginOAuth(ctx context.Context, m *session.Manager, provider string) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("starting callback listener: %w", err)
	}
	redirectURI := fmt.Sprintf("http://%s/callback", ln.Addr())

	authURL, err := m.Client().Auth.OAuthAuthorizeURL(ctx, provider, redirectURI)
	if err != nil {
		ln.Close()
		return err
	}

	type result struct{ code, state, err string }
	results := make(chan result, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/callback" {
				http.NotFound(w, r)
				return
			}
			q := r.URL.Query()
			select {
			case results <- result{code: q.Get("code"), state: q.Get("state"), err: q.Get("error")}:
			default:
			}
			fmt.Fprintln(w, "You can close this window and return to the terminal.")
		}),
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	fmt.Printf("Opening browser to sign in with %s...\n", provider)
	fmt.Printf("If the browser doesn't open, visit:\n  %s\n\n", authURL)
	_ = openBrowser(authURL)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	var res result
	select {
	case res = <-results:
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for the %s sign-in to finish", provider)
	}
	if res.err != "" {
		return fmt.Errorf("%s sign-in failed: %s", provider, res.err)
	}
	if _, err := m.HandleOAuthCallback(ctx, provider, res.code, res.state, redirectURI); err != nil {
		return err
	}
	return printLoggedIn(m)
}

func printLoggedIn(m *session.Manager) error {
	user := m.User()
	if flagJSON {
		output.JSON(user)
		return nil
	}
	switch {
	case user == nil:
		fmt.Println("Logged in.")
	case user.FullName != "" && user.Email != "":
		fmt.Printf("Logged in as %s (%s)\n", user.FullName, user.Email)
	case user.Email != "":
		fmt.Printf("Logged in as %s\n", user.Email)
	default:
		fmt.Println("Logged in.")
	}
	return nil
}

func messageOr(resp *api.MessageResponse, fallback string) string {
	if resp != nil && resp.Message != "" {
		return resp.Message
	}
	return fallback
}
