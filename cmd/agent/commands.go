package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradewatch/agent/internal/api"
	"github.com/tradewatch/agent/internal/auth"
	"github.com/tradewatch/agent/internal/db"
	"github.com/tradewatch/agent/internal/export"
	"github.com/tradewatch/agent/internal/models"
	syncpkg "github.com/tradewatch/agent/internal/sync"
	"github.com/tradewatch/agent/internal/sync/scheduler"
	"github.com/tradewatch/agent/internal/uuid"
)

var (
	emailFlag    string
	passwordFlag string
	usernameFlag string
	nameFlag     string
)

func init() {
	for _, cmd := range []*cobra.Command{loginCmd, registerCmd} {
		cmd.Flags().StringVar(&emailFlag, "email", "", "account email")
		cmd.Flags().StringVar(&passwordFlag, "password", "", "account password (prompted if empty)")
	}
	registerCmd.Flags().StringVar(&usernameFlag, "username", "", "account username")
	registerCmd.Flags().StringVar(&nameFlag, "name", "", "display name")
	exportCmd.Flags().StringVarP(&exportOutFlag, "out", "o", "", "archive path (timestamped name if empty)")
}

// agentDeps wires the delivery subsystem the same way for every command.
type agentDeps struct {
	db      *db.DB
	store   *db.Store
	client  *api.Client
	session *auth.Manager
	engine  *syncpkg.Engine
}

func buildDeps() (*agentDeps, error) {
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	store := db.NewStore(database)

	clientID, err := loadOrGenerateClientID(store)
	if err != nil {
		database.Close()
		return nil, err
	}

	client := api.NewClient(cfg.APIURL, cfg.RequestTimeout)
	session, err := auth.NewManager(client, store)
	if err != nil {
		database.Close()
		return nil, err
	}

	reporter := syncpkg.LogReporter{}
	session.SetNotifier(reporter)

	engine := syncpkg.NewEngine(store, client, session, reporter, syncpkg.Config{
		ClientID:  clientID,
		BatchSize: cfg.BatchSize,
		Retention: cfg.Retention(),
	})

	return &agentDeps{
		db:      database,
		store:   store,
		client:  client,
		session: session,
		engine:  engine,
	}, nil
}

// loadOrGenerateClientID returns the process-stable agent identifier,
// creating and persisting one on first run. It is not tied to the user
// account and survives logout.
func loadOrGenerateClientID(store *db.Store) (string, error) {
	id, err := store.GetSetting(models.SettingClientID)
	if err != nil {
		return "", err
	}
	if uuid.IsValid(id) {
		return id, nil
	}
	id = uuid.New()
	if err := store.SetSetting(models.SettingClientID, id); err != nil {
		return "", err
	}
	return id, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.db.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sched := scheduler.New(deps.engine, scheduler.Config{
			Interval: cfg.SyncInterval,
			AutoSync: cfg.AutoSync,
		})
		deps.engine.SetTrigger(sched.Trigger)
		sched.Start(ctx)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		// Final flush happens inside Stop; the store closes after it.
		sched.Stop()
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the collector",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.db.Close()

		email, password, err := credentials()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()

		user, err := deps.session.Login(ctx, email, password)
		if err != nil {
			return err
		}
		fmt.Printf("Signed in as %s\n", user.Username)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.db.Close()

		email, password, err := credentials()
		if err != nil {
			return err
		}

		// Registration performs two round trips.
		ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.RequestTimeout)
		defer cancel()

		user, err := deps.session.Register(ctx, email, usernameFlag, password, nameFlag)
		if err != nil {
			return err
		}
		fmt.Printf("Registered and signed in as %s\n", user.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.db.Close()

		return deps.session.Logout()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending queue and session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.db.Close()

		pending, err := deps.store.Count()
		if err != nil {
			return err
		}
		fmt.Printf("Pending trades: %d\n", pending)
		if deps.session.IsAuthenticated() {
			fmt.Println("Session: signed in")
			if deps.session.IsExpiringSoon() {
				fmt.Println("  access token expiring soon")
			}
		} else {
			fmt.Println("Session: signed out")
		}
		return nil
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Run one sync cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		result, err := deps.engine.SyncNow(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Sent %d trades, %d pending\n", result.Sent, deps.engine.PendingCount())
		return nil
	},
}

var exportOutFlag string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a tar.gz archive of the pending queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.db.Close()

		result, err := export.NewService(deps.store).Export(exportOutFlag)
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d trades to %s (%d bytes, sha256 %s)\n",
			result.ItemCount, result.FilePath, result.SizeBytes, result.Checksum)
		return nil
	},
}

func credentials() (email, password string, err error) {
	reader := bufio.NewReader(os.Stdin)

	email = emailFlag
	if email == "" {
		fmt.Print("Email: ")
		email, err = reader.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		email = strings.TrimSpace(email)
	}

	password = passwordFlag
	if password == "" {
		fmt.Print("Password: ")
		password, err = reader.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		password = strings.TrimSpace(password)
	}

	if email == "" || password == "" {
		return "", "", fmt.Errorf("email and password are required")
	}
	return email, password, nil
}
