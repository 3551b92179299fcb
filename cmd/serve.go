package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dinebot-sim/dinebot-sim/sim/decision"
	"github.com/dinebot-sim/dinebot-sim/sim/scenario"
	"github.com/dinebot-sim/dinebot-sim/web"
)

var (
	knowledgeFile string // rule documents served by /api/decide
	topK          int    // documents considered per decision
)

// serveCmd starts the decision service and run report API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the decision service and the run report API",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := env.openStore()
		if err != nil {
			logrus.Fatalf("open database: %v", err)
		}
		if db != nil {
			defer db.Close()
		}

		rdb := env.redisClient()
		if rdb != nil {
			defer rdb.Close()
		}

		kb, err := serverKnowledge(ctx, knowledgeFile, rdb, env.KnowledgeKey)
		if err != nil {
			logrus.Fatalf("load knowledge: %v", err)
		}

		pub, err := env.openPublisher()
		if err != nil {
			logrus.Warnf("messaging unavailable (%v), reports will not be published", err)
		}
		if pub != nil {
			defer pub.Close()
		}

		handler := web.NewRouter(web.Options{
			Knowledge: kb,
			TopK:      topK,
			DB:        db,
			Publisher: pub,
			Redis:     rdb,
			RedisKey:  env.KnowledgeKey,
			Deps:      scenario.Deps{Redis: rdb},
			TokenHash: env.APITokenHash,
		})
		srv := &http.Server{
			Addr:              env.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			logrus.Infof("web server listening on %s", env.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Fatalf("web server: %v", err)
			}
		}()

		<-ctx.Done()
		logrus.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("web server shutdown: %v", err)
		}
	},
}

// serverKnowledge picks the served knowledge base: an explicit file, then a non-empty
// Redis list, then the built-in documents.
func serverKnowledge(ctx context.Context, path string, rdb redis.UniversalClient, key string) (*decision.KnowledgeBase, error) {
	if path != "" {
		return decision.LoadKnowledgeBase(ctx, decision.FileSource{Path: path})
	}
	if rdb != nil && key != "" {
		kb, err := decision.LoadKnowledgeBase(ctx, decision.RedisKnowledgeSource{Client: rdb, Key: key})
		if err != nil {
			return nil, err
		}
		if kb.Len() > 0 {
			logrus.Infof("serving %d knowledge documents from redis list %q", kb.Len(), key)
			return kb, nil
		}
	}
	return decision.NewKnowledgeBase(decision.DefaultDocuments())
}

func init() {
	serveCmd.Flags().StringVar(&knowledgeFile, "knowledge", "", "YAML/JSON knowledge file (default: Redis list, then built-in rules)")
	serveCmd.Flags().IntVar(&topK, "top-k", decision.DefaultTopK, "Knowledge documents considered per decision")
	rootCmd.AddCommand(serveCmd)
}
