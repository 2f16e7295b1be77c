package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/output"
	"github.com/filedeck/filedeck/internal/session"
	"github.com/filedeck/filedeck/internal/twofactor"
	"github.com/filedeck/filedeck/internal/validate"
	"github.com/spf13/cobra"
)

var (
	flagProfileName  string
	flagProfileEmail string
	flagQRPath       string
	flagTOTPSession  bool
	flagSessionAll   bool
)

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Reset or change your password",
}

var passwordForgotCmd = &cobra.Command{
	Use:   "forgot [email]",
	Short: "Email a password reset link",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := argOrPrompt(args, 0, "Email: ")
		if err != nil {
			return err
		}
		if err := validate.Email(email); err != nil {
			return err
		}
		resp, err := session.MustFromContext(cmd.Context()).RequestPasswordReset(cmd.Context(), email)
		if err != nil {
			return err
		}
		fmt.Println(messageOr(resp, "If that address has an account, a reset link is on its way."))
		return nil
	},
}

var passwordResetCmd = &cobra.Command{
	Use:   "reset <token>",
	Short: "Set a new password with the token from the reset email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := newPassword()
		if err != nil {
			return err
		}
		resp, err := session.MustFromContext(cmd.Context()).ResetPassword(cmd.Context(), args[0], password)
		if err != nil {
			return err
		}
		fmt.Println(messageOr(resp, "Password updated. You can now log in."))
		return nil
	},
}

var passwordChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the password of the signed-in account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := requireAuth(cmd)
		if err != nil {
			return err
		}
		current, err := promptSecret("Current password: ")
		if err != nil {
			return err
		}
		next, err := newPassword()
		if err != nil {
			return err
		}
		resp, err := m.ChangePassword(cmd.Context(), current, next)
		if err != nil {
			return err
		}
		fmt.Println(messageOr(resp, "Password changed."))
		return nil
	},
}

func newPassword() (string, error) {
	password, err := promptSecret("New password: ")
	if err != nil {
		return "", err
	}
	if err := validate.Password(password); err != nil {
		return "", err
	}
	again, err := promptSecret("Confirm new password: ")
	if err != nil {
		return "", err
	}
	if again != password {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "View or update your profile",
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update your name or email",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := requireAuth(cmd)
		if err != nil {
			return err
		}
		var update api.ProfileUpdate
		if cmd.Flags().Changed("name") {
			update.FullName = &flagProfileName
		}
		if cmd.Flags().Changed("email") {
			if err := validate.Email(flagProfileEmail); err != nil {
				return err
			}
			update.Email = &flagProfileEmail
		}
		if update.FullName == nil && update.Email == nil {
			return errors.New("nothing to update (use --name or --email)")
		}
		user, err := m.UpdateProfile(cmd.Context(), update)
		if err != nil {
			return err
		}
		if flagJSON {
			output.JSON(user)
			return nil
		}
		output.UserInfo(*user)
		return nil
	},
}

var twoFACmd = &cobra.Command{
	Use:   "2fa",
	Short: "Manage two-factor authentication",
}

var twoFASetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Enroll an authenticator app",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := requireAuth(cmd)
		if err != nil {
			return err
		}
		var enroller twofactor.Enroller = twofactor.SettingsEnroller{M: m}
		if flagTOTPSession {
			enroller = twofactor.SessionEnroller{M: m}
		}
		wizard := twofactor.NewWizard(enroller)
		key, err := wizard.Begin(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Println("Add this account to your authenticator app:")
		fmt.Printf("  Issuer:  %s\n  Account: %s\n  Secret:  %s\n", key.Issuer(), key.AccountName(), key.Secret())
		if flagQRPath != "" {
			f, err := os.OpenFile(flagQRPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
			if err != nil {
				return fmt.Errorf("creating %s: %w", flagQRPath, err)
			}
			err = wizard.WriteQR(f, 256)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Printf("  QR code: %s\n", flagQRPath)
		}
		fmt.Println()

		for wizard.Step() == twofactor.Verify {
			code, err := prompt("Enter the 6-digit code from the app: ")
			if err != nil {
				return err
			}
			if err := wizard.Confirm(cmd.Context(), code); err != nil {
				fmt.Fprintln(os.Stderr, wizard.Err())
				if !api.IsNetwork(err) && !errors.Is(err, api.ErrSessionExpired) {
					continue
				}
				return err
			}
		}
		fmt.Println("Two-factor authentication is now enabled.")
		return nil
	},
}

var twoFADisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn off two-factor authentication",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := requireAuth(cmd)
		if err != nil {
			return err
		}
		password, err := promptSecret("Password: ")
		if err != nil {
			return err
		}
		code, err := prompt("Authenticator code: ")
		if err != nil {
			return err
		}
		if err := validate.Code(code); err != nil {
			return err
		}
		resp, err := m.Disable2FA(cmd.Context(), code, password)
		if err != nil {
			return err
		}
		fmt.Println(messageOr(resp, "Two-factor authentication disabled."))
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List or revoke signed-in devices",
}

var sessionsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List signed-in devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := requireAuth(cmd)
		if err != nil {
			return err
		}
		sessions, err := m.Client().Auth.Sessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}
		if flagJSON {
			output.JSON(sessions)
			return nil
		}
		output.SessionTable(sessions)
		return nil
	},
}

var sessionsRevokeCmd = &cobra.Command{
	Use:   "revoke [session-id]",
	Short: "Sign out a device (or every device with --all)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := requireAuth(cmd)
		if err != nil {
			return err
		}
		if flagSessionAll {
			if !confirm("Sign out every device, including this one?") {
				fmt.Println("Cancelled.")
				return nil
			}
			if err := m.Client().Auth.RevokeAllSessions(cmd.Context()); err != nil {
				return fmt.Errorf("revoking sessions: %w", err)
			}
			_ = m.Client().Store().Clear()
			fmt.Println("All sessions revoked.")
			return nil
		}
		if len(args) == 0 {
			return errors.New("specify a session id or --all")
		}
		if err := m.Client().Auth.RevokeSession(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("revoking session: %w", err)
		}
		fmt.Println("Session revoked.")
		return nil
	},
}

func init() {
	profileUpdateCmd.Flags().StringVar(&flagProfileName, "name", "", "New full name")
	profileUpdateCmd.Flags().StringVar(&flagProfileEmail, "email", "", "New email address")
	twoFASetupCmd.Flags().StringVar(&flagQRPath, "qr", "", "Also write the enrollment QR code as a PNG to this path")
	twoFASetupCmd.Flags().BoolVar(&flagTOTPSession, "session", false, "Enroll through the sign-in endpoints (/auth/totp) instead of account settings")
	sessionsRevokeCmd.Flags().BoolVar(&flagSessionAll, "all", false, "Revoke every session")

	passwordCmd.AddCommand(passwordForgotCmd, passwordResetCmd, passwordChangeCmd)
	profileCmd.AddCommand(profileUpdateCmd)
	twoFACmd.AddCommand(twoFASetupCmd, twoFADisableCmd)
	sessionsCmd.AddCommand(sessionsLsCmd, sessionsRevokeCmd)
	rootCmd.AddCommand(passwordCmd, profileCmd, twoFACmd, sessionsCmd)
}
