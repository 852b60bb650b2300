package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dmchat/chat"
	"dmchat/database"
	"dmchat/middleware"
)

func newUsersCmd() *cobra.Command {
	users := &cobra.Command{
		Use:   "users",
		Short: "Manage chat users",
	}

	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user and print its public id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			displayName, _ := cmd.Flags().GetString("display-name")
			u, err := database.NewUserDirectory(e.db).Create(cmd.Context(), args[0], displayName)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u.UserID)
			return nil
		},
	}
	add.Flags().String("display-name", "", "display name (defaults to the username)")

	token := &cobra.Command{
		Use:   "token <username|userId>",
		Short: "Print a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if e.cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			u, err := lookupUser(cmd.Context(), database.NewUserDirectory(e.db), args[0])
			if err != nil {
				return err
			}
			signed, err := middleware.NewTokens(e.cfg.Auth.JWTSecret, e.cfg.Auth.TokenTTL).Issue(u.UserID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}

	users.AddCommand(add, token)
	return users
}

func newFriendsCmd() *cobra.Command {
	friends := &cobra.Command{
		Use:   "friends",
		Short: "Manage the friend graph",
	}

	link := &cobra.Command{
		Use:   "link <user> <user>",
		Short: "Make two users friends",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			dir := database.NewUserDirectory(e.db)
			a, err := lookupUser(cmd.Context(), dir, args[0])
			if err != nil {
				return err
			}
			b, err := lookupUser(cmd.Context(), dir, args[1])
			if err != nil {
				return err
			}
			if err := dir.LinkFriends(cmd.Context(), a, b); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s and %s are now friends\n", a.Username, b.Username)
			return nil
		},
	}

	friends.AddCommand(link)
	return friends
}

func newConversationsCmd() *cobra.Command {
	conversations := &cobra.Command{
		Use:   "conversations",
		Short: "Administer stored conversations",
	}

	purge := &cobra.Command{
		Use:   "purge <user> <user>",
		Short: "Permanently delete every message between two users",
		Long: `purge removes the messages from storage for both participants.
Users who only want to clear their own view should delete the
conversation from the app instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			dir := database.NewUserDirectory(e.db)
			a, err := lookupUser(cmd.Context(), dir, args[0])
			if err != nil {
				return err
			}
			b, err := lookupUser(cmd.Context(), dir, args[1])
			if err != nil {
				return err
			}

			svc := chat.NewService(dir, database.NewMessageStore(e.db), database.NewVisibilityOverlay(e.db), nil, chat.Options{}, e.log, nil)
			n, err := svc.PurgeConversation(cmd.Context(), a.UserID, b.UserID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d messages\n", n)
			return nil
		},
	}

	conversations.AddCommand(purge)
	return conversations
}
