package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errNotLoggedIn = errors.New("not logged in; run `mimic login` first")

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			var err error
			if email, err = promptIfEmpty(in, out, email, "メールアドレス: "); err != nil {
				return err
			}
			if password, err = promptIfEmpty(in, out, passwordOrEnv(password), "パスワード: "); err != nil {
				return err
			}
			_, auth, err := ctx.session()
			if err != nil {
				return err
			}
			user, err := auth.Login(cmd.Context(), email, password)
			if err != nil {
				return userFacing(err)
			}
			fmt.Fprintf(out, "%s としてログインしました\n", user.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (default $MIMIC_PASSWORD, else prompt)")
	return cmd
}

func newRegisterCommand(ctx *commandContext) *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			var err error
			if username, err = promptIfEmpty(in, out, username, "ユーザー名: "); err != nil {
				return err
			}
			if email, err = promptIfEmpty(in, out, email, "メールアドレス: "); err != nil {
				return err
			}
			if password, err = promptIfEmpty(in, out, passwordOrEnv(password), "パスワード: "); err != nil {
				return err
			}
			_, auth, err := ctx.session()
			if err != nil {
				return err
			}
			user, err := auth.Register(cmd.Context(), username, email, password)
			if err != nil {
				return userFacing(err)
			}
			fmt.Fprintf(out, "%s を登録しました\n", user.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (default $MIMIC_PASSWORD, else prompt)")
	return cmd
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and remove saved cookies",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, auth, err := ctx.session()
			if err != nil {
				return err
			}
			if _, err := auth.Restore(cmd.Context()); err != nil {
				ctx.log().Debug("restore before logout", zap.Error(err))
			}
			if err := auth.Logout(cmd.Context()); err != nil {
				return userFacing(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ログアウトしました")
			return nil
		},
	}
}

func newWhoamiCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, auth, err := ctx.session()
			if err != nil {
				return err
			}
			user, err := auth.Restore(cmd.Context())
			if err != nil {
				return userFacing(err)
			}
			if user == nil {
				return errNotLoggedIn
			}
			rows := [][]string{
				{"ID", user.ID},
				{"ユーザー名", user.Username},
				{"メール", user.Email},
				{"権限", user.Role},
				{"メール確認", verifiedLabel(user.Verified)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValue(rows))
			return nil
		},
	}
}

func verifiedLabel(v bool) string {
	if v {
		return "確認済み"
	}
	return "未確認"
}

func passwordOrEnv(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv("MIMIC_PASSWORD")
}

func promptIfEmpty(in *bufio.Reader, out io.Writer, value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(label, ": "), err)
		}
		return "", fmt.Errorf("%s is required", strings.TrimSuffix(label, ": "))
	}
	return line, nil
}
