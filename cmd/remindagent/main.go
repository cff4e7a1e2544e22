// remindagent is the device-side companion daemon. The host notification
// handler posts actions to its loopback listener; online they go straight to
// the server, offline they are persisted and replayed once the server is
// reachable again. SIGUSR1 triggers an immediate drain, which lets
// network-up hooks wake the agent without waiting for the next poll.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hollyoak/remindhub/internal/logging"
	"github.com/hollyoak/remindhub/internal/queue"
)

func main() {
	godotenv.Load()

	serverURL := os.Getenv("REMINDAGENT_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	token := os.Getenv("REMINDAGENT_TOKEN")
	if token == "" {
		log.Fatal("REMINDAGENT_TOKEN is required")
	}
	queuePath := os.Getenv("REMINDAGENT_QUEUE_PATH")
	if queuePath == "" {
		queuePath = "remindagent-queue.db"
	}
	listenAddr := os.Getenv("REMINDAGENT_LISTEN")
	if listenAddr == "" {
		listenAddr = "127.0.0.1:8787"
	}

	logger := logging.SetupJSON(os.Getenv("REMINDAGENT_LOG_LEVEL"))

	store, err := queue.Open(queuePath)
	if err != nil {
		log.Fatalf("failed to open queue: %v", err)
	}
	defer store.Close()

	sender := queue.NewHTTPSender(serverURL, token)
	engine := queue.NewEngine(store, sender, logger)
	intake := queue.NewIntake(engine, sender, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	intakeServer := &http.Server{
		Addr:         listenAddr,
		Handler:      intake.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Info("intake listening", "addr", listenAddr)
		if err := intakeServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("intake server error: %v", err)
		}
	}()

	wake := make(chan os.Signal, 1)
	signal.Notify(wake, syscall.SIGUSR1)
	go func() {
		for range wake {
			logger.Info("wake signal received")
			engine.Wake()
		}
	}()

	go engine.Start(ctx)

	if pending, dead, err := store.Counts(); err == nil {
		logger.Info("agent started", "server", serverURL, "pending", pending, "dead", dead)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("agent shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := intakeServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("intake shutdown", "error", err)
	}
	cancel()
}
