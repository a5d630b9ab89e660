package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"coursehub/internal/domain/event"
	"coursehub/pkg/chatclient"
)

var (
	sendTo    string
	sendFiles []string
	sendJSON  bool

	historyPage  int
	historyLimit int

	listenRaw bool
)

func init() {
	rootCmd.AddCommand(sendCmd, historyCmd, listenCmd, conversationsCmd)

	sendCmd.Flags().StringVar(&sendTo, "to", "", "recipient user id instead of a conversation id")
	sendCmd.Flags().StringSliceVarP(&sendFiles, "file", "f", nil, "attach a file (repeatable)")
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "print the stored message as JSON")

	historyCmd.Flags().IntVar(&historyPage, "page", 1, "page number, 1 is the newest")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 30, "messages per page")

	listenCmd.Flags().BoolVar(&listenRaw, "raw", false, "print raw event envelopes")
}

var sendCmd = &cobra.Command{
	Use:   "send [conversation-id] <message>",
	Short: "Send a message",
	Long: "Send a message to a conversation, or to a user with --to.\n" +
		"Plain messages go over the socket; messages with files use the upload endpoint.",
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := session()
		if err != nil {
			return err
		}

		var conversationID, content string
		switch {
		case sendTo != "" && len(args) == 1:
			content = args[0]
		case sendTo == "" && len(args) == 2:
			conversationID, content = args[0], args[1]
		default:
			return fmt.Errorf("give either a conversation id or --to, followed by the message")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		tl := chatclient.NewTimeline(conversationID)
		draft := chatclient.Draft{Content: content}
		for _, f := range sendFiles {
			draft.Files = append(draft.Files, chatclient.DraftFile{Name: f, Path: f})
		}
		clientID := tl.AddPlaceholder(cfg.Auth.UserID, draft)

		var msg interface{}
		if len(sendFiles) > 0 {
			m, err := chatclient.NewAPI(cfg.baseURL(), cfg.Auth.Token, nil).
				SendFiles(ctx, conversationID, sendTo, content, clientID, sendFiles)
			if err != nil {
				tl.Fail(clientID)
				return err
			}
			tl.Confirm(*m, clientID)
			msg = m
		} else {
			c, err := chatclient.Dial(ctx, cfg.baseURL(), cfg.Auth.Token, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			m, err := c.Send(ctx, event.SendPayload{
				ConversationID: conversationID,
				To:             sendTo,
				Content:        content,
				ClientID:       clientID,
			})
			if err != nil {
				tl.Fail(clientID)
				return err
			}
			tl.Confirm(*m, clientID)
			msg = m
		}

		if sendJSON {
			return printJSON(msg)
		}
		entries := tl.Entries()
		if len(entries) == 1 {
			m := entries[0].Message
			fmt.Printf("Sent %s to conversation %s\n", m.ID, m.ConversationID)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <conversation-id>",
	Short: "Show message history, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		page, err := chatclient.NewAPI(cfg.baseURL(), cfg.Auth.Token, nil).History(ctx, args[0], historyPage, historyLimit)
		if err != nil {
			return err
		}
		tl := chatclient.NewTimeline(args[0])
		tl.Load(page.Items)
		for _, e := range tl.Entries() {
			m := e.Message
			line := fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Local().Format("2006-01-02 15:04"), m.SenderID, m.Content)
			for _, a := range m.Attachments {
				line += fmt.Sprintf(" <%s %s>", a.OriginalName, a.URL)
			}
			fmt.Println(line)
		}
		fmt.Printf("-- page %d of %d (%d messages)\n", page.Page, page.TotalPages, page.Total)
		return nil
	},
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List conversations as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		list, err := chatclient.NewAPI(cfg.baseURL(), cfg.Auth.Token, nil).Conversations(ctx)
		if err != nil {
			return err
		}
		return printJSON(list)
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print live events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := session()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		c, err := chatclient.Dial(ctx, cfg.baseURL(), cfg.Auth.Token, nil)
		if err != nil {
			return err
		}
		defer c.Close()

		fmt.Fprintln(os.Stderr, "Listening, press Ctrl+C to stop.")
		for {
			select {
			case <-ctx.Done():
				return nil
			case env, ok := <-c.Events():
				if !ok {
					return c.Err()
				}
				if listenRaw {
					if err := printJSON(env); err != nil {
						return err
					}
					continue
				}
				fmt.Println(describe(env))
			}
		}
	},
}

// describe renders the events a person cares about as one line.
func describe(env event.Envelope) string {
	switch env.Type {
	case event.TypeMessage:
		var p event.MessagePayload
		if env.Decode(&p) == nil && p.Message != nil {
			return fmt.Sprintf("%s  %s: %s", p.ConversationID, p.Message.SenderID, p.Message.Content)
		}
	case event.TypeTyping:
		var p event.TypingPayload
		if env.Decode(&p) == nil {
			verb := "stopped typing"
			if p.Typing {
				verb = "is typing"
			}
			return fmt.Sprintf("%s  %s %s", p.ConversationID, p.From, verb)
		}
	case event.TypePresence:
		var p event.PresencePayload
		if env.Decode(&p) == nil {
			return fmt.Sprintf("%s is %s", p.UserID, p.Status)
		}
	case event.TypeUnread:
		var p event.UnreadPayload
		if env.Decode(&p) == nil {
			parts := make([]string, 0, len(p.Unread))
			for uid, n := range p.Unread {
				parts = append(parts, fmt.Sprintf("%s=%d", uid, n))
			}
			return fmt.Sprintf("%s  unread %s", p.ConversationID, strings.Join(parts, " "))
		}
	case event.TypeGroupDeleted:
		var p event.GroupDeletedPayload
		if env.Decode(&p) == nil {
			return fmt.Sprintf("group %q was deleted", p.Name)
		}
	}
	return fmt.Sprintf("%s %s", env.Type, string(env.Data))
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
