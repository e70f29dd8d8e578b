package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dugtong/internal/chatbot"
	"dugtong/internal/chatsync"
	"dugtong/internal/query"
	"dugtong/internal/service"
	"dugtong/internal/sqlstore"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const chatQueueKey = "chat:pending"

var (
	chatUser    string
	chatOffline bool
	chatSession string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the registry assistant; works offline and syncs later",
}

// chatService wires the offline-first chat stack over the local cache file.
func chatService(ctx context.Context) (service.ChatService, string, error) {
	repos, err := cli.data(ctx)
	if err != nil {
		return nil, "", err
	}
	userID, err := chatUserID(ctx)
	if err != nil {
		return nil, "", err
	}

	local, err := chatsync.NewLocalCache(ctx, sqlstore.NewDBExecutor(cli.cacheDB, query.DialectSQLite, cli.log))
	if err != nil {
		return nil, "", err
	}

	var conn chatsync.Connectivity
	switch {
	case chatOffline:
		conn = chatsync.NewStaticMonitor(false)
	case cli.remote():
		m := chatsync.NewProbeMonitor(chatsync.HTTPProbe(cli.cfg.APIBaseURL, "/healthz", 3*time.Second), 0, cli.log)
		m.Check(ctx)
		conn = m
	default:
		conn = chatsync.NewStaticMonitor(true)
	}

	syncer := chatsync.NewSyncer(local, repos.Chat, chatsync.NewQueue(cli.kv, chatQueueKey), conn, cli.log)
	res, err := syncer.Resume(ctx)
	if err != nil {
		cli.log.Warn("Chat sync drain failed", zap.Error(err))
	} else if res.Replayed+res.Failed > 0 {
		cli.log.Info("Chat sync drained", zap.Int("replayed", res.Replayed), zap.Int("failed", res.Failed))
	}
	responder, err := chatbot.NewDefaultResponder(chatbot.LLMConfig{
		BaseURL: cli.cfg.LLM.BaseURL,
		APIKeys: cli.cfg.LLM.APIKeys,
		Models:  cli.cfg.LLM.Models,
	}, cli.log)
	if err != nil {
		return nil, "", err
	}
	return service.NewChatService(syncer, responder, cli.log), userID, nil
}

// chatUserID --user, or the signed-in account on the rest backend.
func chatUserID(ctx context.Context) (string, error) {
	if chatUser != "" {
		return chatUser, nil
	}
	if cli.remote() && !chatOffline {
		u, err := currentUser(ctx)
		if err != nil {
			return "", err
		}
		return u.ID, nil
	}
	return "", errors.New("--user is required")
}

var chatSendCmd = &cobra.Command{
	Use:   "send MESSAGE",
	Short: "Send one message and print the reply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, userID, err := chatService(cmd.Context())
		if err != nil {
			return err
		}
		ex, err := svc.Send(cmd.Context(), userID, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ex.Reply.Content)
		if !ex.Message.IsSynced {
			fmt.Fprintln(cmd.ErrOrStderr(), "(offline: saved locally, run `dugtong chat sync` when back online)")
		}
		return nil
	},
}

var chatSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Deliver queued messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := chatService(cmd.Context())
		if err != nil {
			return err
		}
		res, err := svc.Sync(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "replayed %d, failed %d\n", res.Replayed, res.Failed)
		return nil
	},
}

var chatPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Count queued messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := chatsync.NewQueue(cli.kv, chatQueueKey)
		n, err := q.Len(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the current conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, userID, err := chatService(cmd.Context())
		if err != nil {
			return err
		}
		msgs, err := svc.Conversation(cmd.Context(), userID, chatSession)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			marker := ""
			if !m.IsSynced {
				marker = " *"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s%s\n", m.CreatedAt.Local().Format("2006-01-02 15:04"), m.Role, m.Content, marker)
		}
		return nil
	},
}

func init() {
	chatCmd.PersistentFlags().StringVar(&chatUser, "user", "", "user id (default: the signed-in account)")
	chatCmd.PersistentFlags().BoolVar(&chatOffline, "offline", false, "do not contact the shared store")
	chatHistoryCmd.Flags().StringVar(&chatSession, "session", "", "session id (default: current)")
	chatCmd.AddCommand(chatSendCmd, chatSyncCmd, chatPendingCmd, chatHistoryCmd)
}
