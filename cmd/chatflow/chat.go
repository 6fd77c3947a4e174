package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	chatflow "github.com/chatflow-im/chatflow-go"
	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"
)

var chatPageSize int

func init() {
	chatCmd.Flags().IntVar(&chatPageSize, "page-size", 0, "History page size")
}

var chatCmd = &cobra.Command{
	Use:   "chat <conversation-id>",
	Short: "Open a conversation and chat in real time",
	Long:  "Open a conversation: loads recent history, streams live messages and typing indicators, and sends what you type. Commands: /older loads an earlier page, /quit exits.",
	Args:  cobra.ExactArgs(1),
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	conversationID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid conversation id %q", args[0])
	}

	client, cfg := getClient()
	logger := log.New("chatflow")
	logger.SetLevel(log.INFO)

	self := chatflow.User{
		ID:        cfg.Auth.UserID,
		FirstName: cfg.Auth.FirstName,
		LastName:  cfg.Auth.LastName,
		Email:     cfg.Auth.Email,
	}

	ctx := context.Background()

	peer, err := findPeer(ctx, client, conversationID)
	if err != nil {
		return err
	}

	sock, err := chatflow.ConnectSocket(ctx, cfg.Auth.Token)
	if err != nil {
		// The REST surface still works; live updates are just absent.
		logger.Warnf("live connection unavailable: %v", err)
		sock = chatflow.NewSocket(&chatflow.SocketConfig{Token: cfg.Auth.Token})
	}
	defer chatflow.DisconnectSocket()

	sock.OnDisconnected(func(reason string) {
		logger.Warnf("disconnected: %s", reason)
	})
	sock.OnReconnecting(func(attempt int, delay time.Duration) {
		logger.Infof("reconnecting (attempt %d) in %s", attempt, delay)
	})

	pageSize := chatPageSize
	if pageSize == 0 {
		pageSize = cfg.Default.PageSize
	}

	sess := chatflow.NewSession(client.Messages, sock, self, peer, conversationID, nil, &chatflow.SessionOptions{
		PageSize: pageSize,
	})
	sess.Bind(sock)

	// Print live traffic on top of the session's own merge handling.
	sock.OnMessageNew(func(p chatflow.NewMessagePayload) {
		if p.From == peer.ID {
			fmt.Printf("\r%s %s: %s\n> ", time.Now().Format("15:04"), peer.DisplayName(), p.Content)
		}
	})
	sock.OnTypingStart(func(p chatflow.TypingPayload) {
		if p.ConversationID == conversationID {
			fmt.Printf("\r%s is typing…\n> ", peer.DisplayName())
		}
	})

	if err := sess.Open(ctx); err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	defer sess.Close()

	printHistory(sess)
	fmt.Printf("Chatting with %s. /older loads an earlier page, /quit exits.\n", peer.DisplayName())

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return nil
		case line == "/older":
			if err := sess.LoadOlder(ctx); err != nil {
				if err == chatflow.ErrNoMorePages {
					fmt.Println("No earlier messages.")
				} else {
					logger.Errorf("failed to load older page: %v", err)
				}
			} else {
				printHistory(sess)
			}
		case line == "":
		default:
			sess.InputChanged(ctx, line)
			if _, err := sess.Send(ctx, line); err != nil {
				logger.Errorf("send failed: %v", err)
			}
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

// findPeer resolves the other party of a direct conversation from the
// conversation list.
func findPeer(ctx context.Context, client *chatflow.Client, conversationID int64) (chatflow.User, error) {
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	convs, err := client.Conversations.List(listCtx)
	if err != nil {
		return chatflow.User{}, fmt.Errorf("failed to list conversations: %w", err)
	}
	for _, conv := range convs {
		if conv.Receiver == nil {
			continue
		}
		if conv.Receiver.ConversationID == conversationID || conv.ID == conversationID {
			return *conv.Receiver, nil
		}
	}
	return chatflow.User{}, fmt.Errorf("conversation %d not found", conversationID)
}

func printHistory(sess *chatflow.Session) {
	for _, group := range sess.Groups(time.Now()) {
		fmt.Printf("--- %s ---\n", group.Label)
		for _, msg := range group.Messages {
			who := "me"
			if msg.Direction == chatflow.Inbound {
				who = msg.SenderLabel
				if who == "" {
					who = sess.Peer().DisplayName()
				}
			}
			fmt.Printf("%s %s: %s\n", msg.Timestamp.Format("15:04"), who, msg.Content)
		}
	}
}
