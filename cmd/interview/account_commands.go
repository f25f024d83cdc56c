package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mimic-ai/interview/internal/session"
)

// loggedIn restores the saved session for commands that need one.
func loggedIn(ctx context.Context, cc *commandContext) (*session.Auth, *session.User, error) {
	_, auth, err := cc.session()
	if err != nil {
		return nil, nil, err
	}
	user, err := auth.Restore(ctx)
	if err != nil {
		return nil, nil, userFacing(err)
	}
	if user == nil {
		return nil, nil, errNotLoggedIn
	}
	return auth, user, nil
}

func newProfileCommand(ctx *commandContext) *cobra.Command {
	var username, email string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Change the display name or email",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, user, err := loggedIn(cmd.Context(), ctx)
			if err != nil {
				return err
			}
			if username == "" {
				username = user.Username
			}
			if email == "" {
				email = user.Email
			}
			updated, err := auth.UpdateProfile(cmd.Context(), username, email)
			if err != nil {
				return userFacing(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "プロフィールを更新しました: %s <%s>\n", updated.Username, updated.Email)
			if !updated.Verified {
				fmt.Fprintln(out, "確認メールを送信しました。メール内のリンクを開くか `mimic verify <token>` を実行してください")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "New display name (default: unchanged)")
	cmd.Flags().StringVar(&email, "email", "", "New email (default: unchanged)")
	return cmd
}

func newPasswordCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change or reset the account password",
	}
	cmd.AddCommand(newPasswordChangeCommand(ctx))
	cmd.AddCommand(newPasswordForgotCommand(ctx))
	cmd.AddCommand(newPasswordResetCommand(ctx))
	return cmd
}

func newPasswordChangeCommand(ctx *commandContext) *cobra.Command {
	var current, next string
	cmd := &cobra.Command{
		Use:   "change",
		Short: "Change the password of the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			var err error
			if current, err = promptIfEmpty(in, out, passwordOrEnv(current), "現在のパスワード: "); err != nil {
				return err
			}
			if next, err = promptIfEmpty(in, out, next, "新しいパスワード: "); err != nil {
				return err
			}
			auth, _, err := loggedIn(cmd.Context(), ctx)
			if err != nil {
				return err
			}
			if err := auth.ChangePassword(cmd.Context(), current, next); err != nil {
				return userFacing(err)
			}
			fmt.Fprintln(out, "パスワードを変更しました")
			return nil
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "Current password (default $MIMIC_PASSWORD, else prompt)")
	cmd.Flags().StringVar(&next, "new", "", "New password")
	return cmd
}

func newPasswordForgotCommand(ctx *commandContext) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "forgot",
		Short: "Mail a password reset link",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			var err error
			if email, err = promptIfEmpty(in, out, email, "メールアドレス: "); err != nil {
				return err
			}
			_, auth, err := ctx.session()
			if err != nil {
				return err
			}
			if err := auth.ForgotPassword(cmd.Context(), email); err != nil {
				return userFacing(err)
			}
			fmt.Fprintln(out, "登録済みのアドレスであれば、再設定用のリンクを送信しました")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	return cmd
}

func newPasswordResetCommand(ctx *commandContext) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "reset <token>",
		Short: "Set a new password with the token from the reset email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			var err error
			if password, err = promptIfEmpty(in, out, password, "新しいパスワード: "); err != nil {
				return err
			}
			_, auth, err := ctx.session()
			if err != nil {
				return err
			}
			if err := auth.ResetPassword(cmd.Context(), args[0], password); err != nil {
				return userFacing(err)
			}
			fmt.Fprintln(out, "パスワードを再設定しました。`mimic login` でログインしてください")
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "new", "", "New password")
	return cmd
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var resend bool
	cmd := &cobra.Command{
		Use:   "verify [token]",
		Short: "Confirm the account email, or mail a new link with --resend",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if resend {
				auth, user, err := loggedIn(cmd.Context(), ctx)
				if err != nil {
					return err
				}
				if user.Verified {
					fmt.Fprintln(out, "メールアドレスは確認済みです")
					return nil
				}
				if err := auth.ResendVerification(cmd.Context()); err != nil {
					return userFacing(err)
				}
				fmt.Fprintf(out, "%s に確認メールを送信しました\n", user.Email)
				return nil
			}
			if len(args) == 0 {
				return errors.New("token is required, or pass --resend")
			}
			_, auth, err := ctx.session()
			if err != nil {
				return err
			}
			if err := auth.VerifyEmail(cmd.Context(), args[0]); err != nil {
				return userFacing(err)
			}
			fmt.Fprintln(out, "メールアドレスを確認しました")
			return nil
		},
	}
	cmd.Flags().BoolVar(&resend, "resend", false, "Mail a new verification link")
	return cmd
}
