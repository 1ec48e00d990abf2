package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"forumcore/internal/app"
	"forumcore/internal/config"
	"forumcore/internal/db"
	"forumcore/internal/db/migrations"
	"forumcore/internal/seed"
)

var configFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp loads the configuration and wires the application. The caller must
// defer a.Close().
func newApp() (*app.App, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "forum",
	Short:        "Community forum server",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sweeper, err := a.StartSweeper()
		if err != nil {
			return err
		}
		defer sweeper.Stop()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", a.Config.Port),
			Handler:           a.Server,
			ReadHeaderTimeout: 5 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			a.Log.Info("listening", "addr", srv.Addr, "debug", a.Config.Debug)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			a.Log.Info("shutting down", "signal", sig.String())
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		conn, err := db.OpenConnection(cfg.DBPath)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := migrations.MigrateUp(conn); err != nil {
			return err
		}
		st, err := migrations.CheckStatus(conn)
		if err != nil {
			return err
		}
		fmt.Printf("Schema at version %d\n", st.Version)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		conn, err := db.OpenConnection(cfg.DBPath)
		if err != nil {
			return err
		}
		defer conn.Close()
		st, err := migrations.CheckStatus(conn)
		if err != nil {
			return err
		}
		fmt.Printf("Version: %d\nLatest:  %d\nDirty:   %v\n", st.Version, st.Latest, st.Dirty)
		if !st.UpToDate() {
			fmt.Println("Run 'forum migrate up' to apply pending migrations.")
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete idle sessions once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		n, err := a.Sessions.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d idle session(s)\n", n)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as TOML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		return cfg.WriteTOML(os.Stdout)
	},
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage accounts",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create <username> <email>",
	Short: "Create an account, prompting for the password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		password, err := readPassword(os.Stdin, os.Stderr)
		if err != nil {
			return err
		}
		acct, err := a.Auth.Register(cmd.Context(), args[0], args[1], password)
		if err != nil {
			return err
		}
		moderator, _ := cmd.Flags().GetBool("moderator")
		if moderator && !acct.IsModerator {
			if err := a.Auth.SetModerator(cmd.Context(), acct.Username, true); err != nil {
				return err
			}
			acct.IsModerator = true
		}
		fmt.Printf("Created account %s (id %d, moderator: %v)\n", acct.Username, acct.ID, acct.IsModerator)
		return nil
	},
}

func roleCmd(use, short string, moderator bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <username>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Auth.SetModerator(cmd.Context(), args[0], moderator); err != nil {
				return err
			}
			fmt.Printf("%s moderator: %v (takes effect at next login)\n", args[0], moderator)
			return nil
		},
	}
}

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Load accounts and posts from a YAML fixture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fx, err := seed.Load(args[0])
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		s := &seed.Seeder{Auth: a.Auth, Content: a.Content, Moderation: a.Moderation}
		res, err := s.Apply(cmd.Context(), fx)
		if err != nil {
			return err
		}
		fmt.Printf("Seeded %d account(s), %d post(s), %d comment(s)\n", res.Accounts, res.Posts, res.Comments)
		return nil
	},
}

// readPassword prompts without echo on a terminal and reads a single line
// otherwise, so the command also works with piped input.
func readPassword(in *os.File, prompt io.Writer) (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (YAML or TOML)")

	rootCmd.AddCommand(serveCmd)

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)

	rootCmd.AddCommand(sweepCmd)

	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)

	accountCreateCmd.Flags().Bool("moderator", false, "Grant moderator rights")
	accountCmd.AddCommand(accountCreateCmd)
	accountCmd.AddCommand(roleCmd("promote", "Grant moderator rights", true))
	accountCmd.AddCommand(roleCmd("demote", "Revoke moderator rights", false))
	rootCmd.AddCommand(accountCmd)

	rootCmd.AddCommand(seedCmd)
}
