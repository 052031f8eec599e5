package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/soyeahso/hotline/internal/domain"
	"github.com/spf13/cobra"
)

func newNotificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notify"},
		Short:   "Read the notifications sent to a user about their cases",
	}

	cmd.AddCommand(newNotificationsListCmd())
	cmd.AddCommand(newNotificationsPendingCmd())
	cmd.AddCommand(newNotificationsCountCmd())
	cmd.AddCommand(newNotificationsReadCmd())
	cmd.AddCommand(newNotificationsDecideCmd("approve", true))
	cmd.AddCommand(newNotificationsDecideCmd("decline", false))
	return cmd
}

func newNotificationsListCmd() *cobra.Command {
	var (
		userID string
		unread bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's notifications, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStores(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			list, err := a.notifications.List(cmd.Context(), userID, unread)
			if err != nil {
				return err
			}
			printNotifications(cmd.OutOrStdout(), list)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread notifications")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newNotificationsReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStores(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ok, err := a.notifications.MarkRead(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("notification %q not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as read\n", args[0])
			return nil
		},
	}
}

func newNotificationsPendingCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List the resolution requests a user has not answered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStores(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			list, err := a.notifications.Pending(cmd.Context(), userID)
			if err != nil {
				return err
			}
			printNotifications(cmd.OutOrStdout(), list)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newNotificationsCountCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Show how many notifications a user has not read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStores(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.notifications.UnreadCount(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d unread\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// newNotificationsDecideCmd answers a resolution request. Approving one
// resolves its case.
func newNotificationsDecideCmd(verb string, approved bool) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   verb + " <id>",
		Short: fmt.Sprintf("%s a request to mark a case resolved", capitalize(verb)),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStores(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			d, err := a.approvals.Decide(cmd.Context(), args[0], userID, approved)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.Message)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "only answer if the notification belongs to this user")
	return cmd
}

func printNotifications(out io.Writer, list []domain.Notification) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No notifications.")
		return
	}
	for _, n := range list {
		mark := " "
		if !n.Read {
			mark = "*"
		}
		title := n.Title
		if n.Pending() {
			title += " [needs your approval]"
		}
		fmt.Fprintf(out, "%s %s  %s\n    %s\n", mark, n.ID, title, n.Body)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
