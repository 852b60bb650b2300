package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dmchat/config"
	"dmchat/database"
	"dmchat/logging"
	"dmchat/models"
)

var (
	version = "dev"
	commit  = "unknown"
)

// NewRootCmd builds the dmchat command tree
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dmchat",
		Short: "Direct-message chat server",
		Long: `dmchat serves one-to-one chat over HTTP and websockets and
provides admin commands for provisioning users and purging conversations.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringP("config", "c", "dmchat.yaml", "config file path")

	root.AddCommand(
		newServeCmd(),
		newUsersCmd(),
		newFriendsCmd(),
		newConversationsCmd(),
	)
	return root
}

// Execute is called by main.main()
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every command needs: config, logger and an open database
type env struct {
	cfg *config.Config
	log *zap.Logger
	db  *database.DB
}

func setup(cmd *cobra.Command) (*env, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: db}, nil
}

func (e *env) Close() {
	e.db.Close()
	e.log.Sync()
}

// lookupUser accepts either a username or a public user id
func lookupUser(ctx context.Context, dir *database.UserDirectory, ref string) (models.UserRef, error) {
	u, err := dir.GetByUsername(ctx, ref)
	if errors.Is(err, database.ErrUserNotFound) {
		u, err = dir.ResolveUser(ctx, ref)
	}
	if errors.Is(err, database.ErrUserNotFound) {
		return models.UserRef{}, fmt.Errorf("user %q not found", ref)
	}
	return u, err
}
