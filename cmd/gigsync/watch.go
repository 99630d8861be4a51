package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gigmarket/gigsync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	watchConversation string
	watchJobs         []string
	watchMetricsAddr  string
)

func init() {
	watchCmd.Flags().StringVar(&watchConversation, "conversation", "", "open this conversation and print its history")
	watchCmd.Flags().StringSliceVar(&watchJobs, "job", nil, "job ids to receive status updates for")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print realtime chat events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := getClient()
		if err != nil {
			return err
		}
		defer env.logger.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		metrics := gigsync.NewMetrics(reg)
		addr := valueOrDefault(watchMetricsAddr, env.cfg.Watch.MetricsAddr)
		if addr != "" {
			srv := serveMetrics(addr, reg, env.logger)
			defer srv.Close()
		}

		viewerID := env.state.ViewerID
		session := gigsync.NewSession(env.client, viewerID, &gigsync.SessionOptions{
			Metrics:      metrics,
			HistoryLimit: env.cfg.Watch.HistoryLimit,
			OnEvent:      func(ev gigsync.Event) { printEvent(ev, viewerID) },
			OnNotification: func(n gigsync.NotificationEvent) {
				fmt.Printf("* %s: %s %s\n", n.Kind, n.Title, n.Message)
			},
			Scroller: func(id string, action gigsync.ScrollAction) {
				env.logger.Debug("scroll", zap.String("conversation_id", id), zap.Stringer("action", action))
			},
		})

		if err := session.Start(ctx); err != nil {
			if errors.Is(err, gigsync.ErrAuthRejected) {
				return fmt.Errorf("token rejected by the realtime server; run 'gigsync init <token>' with a fresh token")
			}
			if !errors.Is(err, gigsync.ErrReconnectExhausted) && !errors.Is(err, gigsync.ErrConnectInProgress) {
				return apiError(err)
			}
			fmt.Fprintf(os.Stderr, "realtime unavailable: %v\n", err)
		}
		defer session.Stop()

		fmt.Printf("Loaded %d conversations, %d unread\n", len(session.Store().Conversations()), session.Store().TotalUnread())

		for _, job := range watchJobs {
			if err := session.WatchJob(ctx, job); err != nil {
				env.logger.Warn("cannot watch job", zap.String("job_id", job), zap.Error(err))
			}
		}
		if watchConversation != "" {
			if err := session.OpenConversation(ctx, watchConversation); err != nil {
				return apiError(err)
			}
			for _, m := range session.Store().Messages(watchConversation) {
				printMessage(m, viewerID)
			}
		}

		<-ctx.Done()
		fmt.Println("\nStopping.")
		return nil
	},
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}

func printEvent(ev gigsync.Event, viewerID string) {
	switch e := ev.(type) {
	case gigsync.ConnectedEvent:
		if e.Reconnect {
			fmt.Println("-- reconnected")
		} else {
			fmt.Println("-- connected")
		}
	case gigsync.DisconnectedEvent:
		fmt.Printf("-- disconnected (%s)\n", valueOrDefault(e.Reason, fmt.Sprint(e.Code)))
	case gigsync.NewMessageEvent:
		fmt.Printf("%s ", e.Message.ConversationID)
		printMessage(e.Message, viewerID)
	case gigsync.TypingEvent:
		if e.Typing {
			fmt.Printf("%s %s is typing...\n", e.ConversationID, e.UserID)
		}
	case gigsync.PresenceJoinEvent:
		fmt.Printf("+ %s online\n", e.UserID)
	case gigsync.PresenceLeaveEvent:
		fmt.Printf("- %s offline\n", e.UserID)
	case gigsync.PresenceSnapshotEvent:
		fmt.Printf("online: %s\n", valueOrDefault(strings.Join(e.UserIDs, ", "), "(nobody)"))
	case gigsync.UnreadCountEvent:
		fmt.Printf("unread: %d\n", e.Count)
	}
}
