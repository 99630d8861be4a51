package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gigmarket/gigsync"
	"github.com/spf13/cobra"
)

// ============================================================================
// Flag variables
// ============================================================================

var (
	jsonOutput bool

	// conversations
	conversationsUnread bool

	// messages
	messagesLimit  int
	messagesBefore string
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON")

	conversationsCmd.Flags().BoolVar(&conversationsUnread, "unread", false, "only show conversations with unread messages")
	messagesCmd.Flags().IntVarP(&messagesLimit, "limit", "n", 20, "number of messages to fetch")
	messagesCmd.Flags().StringVar(&messagesBefore, "before", "", "fetch messages older than this message id")

	rootCmd.AddCommand(conversationsCmd, readCmd, messagesCmd, sendCmd)
}

// ============================================================================
// conversations
// ============================================================================

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List conversations, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := getClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		list, err := env.client.Conversations.List(ctx)
		if err != nil {
			return apiError(err)
		}
		// Run the list through a store so ordering and counts match what a
		// live session would show.
		store := gigsync.NewStore(env.logger)
		store.UpsertConversations(list)
		convs := store.Conversations()
		if conversationsUnread {
			filtered := convs[:0]
			for _, c := range convs {
				if c.UnreadCount > 0 {
					filtered = append(filtered, c)
				}
			}
			convs = filtered
		}

		if jsonOutput {
			return printJSON(convs)
		}
		if len(convs) == 0 {
			fmt.Println("No conversations.")
			return nil
		}
		for _, c := range convs {
			printConversation(c, env.state.ViewerID)
		}
		fmt.Printf("\nTotal unread: %d\n", store.TotalUnread())
		return nil
	},
}

func printConversation(c gigsync.Conversation, viewerID string) {
	peer := "(unknown)"
	if p, ok := c.Peer(viewerID); ok {
		peer = valueOrDefault(p.Name, p.ID)
	}
	unread := ""
	if c.UnreadCount > 0 {
		unread = fmt.Sprintf(" [%d unread]", c.UnreadCount)
	}
	scope := ""
	if c.JobID != "" {
		scope = " job=" + c.JobID
	}
	fmt.Printf("%s  %s%s%s\n", c.ID, peer, scope, unread)
	if c.LastMessage != nil {
		fmt.Printf("    %s  %s\n", c.LastMessage.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(c.LastMessage.Content, 60))
	}
}

// ============================================================================
// read
// ============================================================================

var readCmd = &cobra.Command{
	Use:   "read <conversation-id>",
	Short: "Mark a conversation as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := getClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := env.client.Conversations.MarkRead(ctx, args[0]); err != nil {
			return apiError(err)
		}
		fmt.Printf("Marked %s as read\n", args[0])
		return nil
	},
}

// ============================================================================
// messages
// ============================================================================

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Show message history of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := getClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		msgs, err := env.client.Messages.History(ctx, args[0], &gigsync.PaginationOptions{
			Limit:  messagesLimit,
			Before: messagesBefore,
		})
		if err != nil {
			return apiError(err)
		}
		if jsonOutput {
			return printJSON(msgs)
		}
		if len(msgs) == 0 {
			fmt.Println("No messages.")
			return nil
		}
		for _, m := range msgs {
			printMessage(m, env.state.ViewerID)
		}
		return nil
	},
}

func printMessage(m gigsync.Message, viewerID string) {
	from := valueOrDefault(m.Sender.Name, m.Sender.ID)
	if viewerID != "" && m.Sender.ID == viewerID {
		from = "you"
	}
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), from, m.Content)
}

// ============================================================================
// send
// ============================================================================

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <text...>",
	Short: "Send a message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := getClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		content := strings.Join(args[1:], " ")
		msg, err := env.client.Messages.Send(ctx, args[0], content)
		if err != nil {
			return apiError(err)
		}
		if jsonOutput {
			return printJSON(msg)
		}
		fmt.Printf("Sent %s\n", msg.ID)
		return nil
	},
}
