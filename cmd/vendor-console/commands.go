package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vendorhub/ticket-sync/internal/desk"
	"github.com/vendorhub/ticket-sync/internal/domain"
	"github.com/vendorhub/ticket-sync/internal/restapi"
)

func newListCmd(a *app) *cobra.Command {
	var (
		status string
		search string
		page   int
		watch  bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Logout()

			filter := desk.ListFilter{Status: domain.ParseStatusBucket(status), Search: search, Page: page}
			screen, err := d.OpenTickets(cmd.Context(), filter)
			if err != nil {
				return err
			}
			defer screen.Close()

			out := cmd.OutOrStdout()
			if err := printList(out, screen.List().Snapshot()); err != nil || !watch {
				return err
			}
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case <-screen.Changes():
					fmt.Fprintln(out)
					if err := printList(out, screen.List().Snapshot()); err != nil {
						fmt.Fprintln(cmd.ErrOrStderr(), err)
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&status, "status", "all", "all, active or resolved")
	cmd.Flags().StringVar(&search, "search", "", "search term")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep the list live")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <ticket-id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Logout()

			chat, err := d.OpenChat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer chat.Close()

			snap := chat.Detail().Snapshot()
			if snap.Err != nil {
				return snap.Err
			}
			printDetail(cmd.OutOrStdout(), snap, d.Session().Role, 0)
			return nil
		},
	}
}

func newFollowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "follow <ticket-id>",
		Aliases: []string{"fw"},
		Short:   "Follow a conversation live; lines typed on stdin are sent",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Logout()

			ctx := cmd.Context()
			chat, err := d.OpenChat(ctx, args[0])
			if err != nil {
				return err
			}
			defer chat.Close()

			out := cmd.OutOrStdout()
			role := d.Session().Role
			printed := printDetail(out, chat.Detail().Snapshot(), role, 0)

			lines := make(chan string)
			go readLines(ctx, cmd.InOrStdin(), lines)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-chat.Changes():
					printed = printDetail(out, chat.Detail().Snapshot(), role, printed)
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					composer := chat.Composer()
					composer.SetText(line)
					if res := composer.Submit(ctx); res.State == desk.SendDelivered && res.Message != nil {
						printed = printDetail(out, chat.Detail().Snapshot(), role, printed)
					}
				}
			}
		},
	}
}

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <ticket-id> <text>",
		Short: "Send one message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Logout()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Client.RequestTimeout)
			defer cancel()
			waitConnected(ctx, d, 2*time.Second)

			res := d.Sender().Send(ctx, args[0], strings.Join(args[1:], " "))
			if res.State != desk.SendDelivered {
				return res.Err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent via %s\n", res.Path)
			return nil
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	var in restapi.CreateTicketInput
	var priority string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a new ticket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Logout()

			in.Priority = domain.TicketPriority(strings.ToLower(priority))
			ticket, err := d.CreateTicket(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ticket.ID, ticket.Number)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Subject, "subject", "", "ticket subject")
	cmd.Flags().StringVar(&in.Description, "description", "", "first description of the problem")
	cmd.Flags().StringVar(&in.Type, "type", "general", "ticket type")
	cmd.Flags().StringVar(&priority, "priority", "medium", "low, medium or high")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func printList(w io.Writer, snap desk.ListSnapshot) error {
	if snap.Err != nil {
		return snap.Err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tSTATUS\tSUBJECT\tLAST ACTIVITY\tLAST MESSAGE")
	for _, item := range snap.Items {
		preview := "-"
		switch {
		case item.LastMessage != "":
			preview = truncate(item.LastMessage, 40)
		case item.HasLastMessage:
			preview = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			item.ID, item.Number, item.Status, truncate(item.Subject, 40),
			item.LastActivity.Local().Format(time.DateTime), preview)
	}
	p := snap.Pagination
	fmt.Fprintf(tw, "\npage %d/%d (%d total)\n", p.Page, p.Pages, p.Total)
	return tw.Flush()
}

// printDetail writes messages from index from onward and returns the new count.
func printDetail(w io.Writer, snap desk.DetailSnapshot, role domain.SenderRole, from int) int {
	if from == 0 && snap.Loaded {
		fmt.Fprintf(w, "%s  %s  [%s]\n", snap.Ticket.Number, snap.Ticket.Subject, snap.Ticket.Status)
	}
	if from > len(snap.Messages) {
		from = 0
	}
	for _, msg := range snap.Messages[from:] {
		who := string(msg.Sender)
		if msg.IsMine(role) {
			who = "you"
		}
		fmt.Fprintf(w, "%s  %-8s %s\n", msg.CreatedAt.Local().Format(time.TimeOnly), who, msg.Body)
	}
	return len(snap.Messages)
}

func readLines(ctx context.Context, r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case out <- line:
		case <-ctx.Done():
			return
		}
	}
}

// waitConnected gives the realtime channel a moment to come up so a one-shot
// send can use it. The sender falls back to HTTP either way.
func waitConnected(ctx context.Context, d *desk.Desk, max time.Duration) {
	deadline := time.NewTimer(max)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for !d.Connected() {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-tick.C:
		}
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
