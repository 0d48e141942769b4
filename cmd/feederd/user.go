package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/feeder-core/internal/auth"
)

func newUserCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage operator accounts",
	}

	var displayName, role string
	add := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Create an account; the password is read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeDB, err := openAuthService(cmd, *configPath)
			if err != nil {
				return err
			}
			defer closeDB()

			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			user, err := svc.CreateUser(cmd.Context(), args[0], displayName, password, auth.Role(role))
			if err != nil {
				return fmt.Errorf("creating user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s, id %s)\n", user.Username, user.Role, user.ID)
			return nil
		},
	}
	add.Flags().StringVar(&displayName, "name", "", "display name (defaults to the username)")
	add.Flags().StringVar(&role, "role", string(auth.RoleOperator), "operator or admin")

	passwd := &cobra.Command{
		Use:   "passwd USERNAME",
		Short: "Set an account's password; the new password is read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeDB, err := openAuthService(cmd, *configPath)
			if err != nil {
				return err
			}
			defer closeDB()

			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := svc.SetPassword(cmd.Context(), args[0], password); err != nil {
				return fmt.Errorf("setting password: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(add, passwd)
	return cmd
}

// openAuthService opens and migrates the database and returns an auth
// service over it, plus the func that closes the database.
func openAuthService(cmd *cobra.Command, configPath string) (*auth.Service, func(), error) {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := openDatabase(cmd.Context(), cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}
	svc := auth.NewService(auth.NewUserRepository(db.DB), cfg.Security.JWT, log)
	return svc, func() { db.Close() }, nil //nolint:errcheck // CLI exit
}

// readPassword reads the first line of r.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("password is required on stdin")
	}
	return password, nil
}
