package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hollyoak/remindhub/internal/auth"
	"github.com/hollyoak/remindhub/internal/config"
	"github.com/hollyoak/remindhub/internal/dispatch"
	"github.com/hollyoak/remindhub/internal/handler"
	"github.com/hollyoak/remindhub/internal/middleware"
	"github.com/hollyoak/remindhub/internal/push"
	"github.com/hollyoak/remindhub/internal/reconcile"
	"github.com/hollyoak/remindhub/internal/store"
	ws "github.com/hollyoak/remindhub/internal/websocket"
)

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	jwt         *auth.JWT
	pushH       *handler.PushHandler
	preferenceH *handler.PreferenceHandler
	actionH     *handler.ActionHandler
	eventH      *handler.EventHandler
	cronH       *handler.CronHandler
	dispatcher  *dispatch.Dispatcher
	scheduler   *dispatch.Scheduler
	logger      *slog.Logger
}

func New(db *sql.DB, cfg config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	reminderStore := store.NewReminderStore(db)
	pushStore := store.NewPushStore(db)
	preferenceStore := store.NewPreferenceStore(db)
	eventStore := store.NewEventStore(db)

	pushSvc := push.NewService(push.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subject:         cfg.VAPIDSubject,
	})

	dispatcher := dispatch.NewDispatcher(
		reminderStore, pushStore, preferenceStore, eventStore,
		pushSvc, hub, logger.With("component", "dispatch"),
	)
	reconciler := reconcile.NewReconciler(reminderStore, preferenceStore, eventStore, hub, logger)

	var scheduler *dispatch.Scheduler
	if cfg.ScanInterval > 0 {
		scheduler = dispatch.NewScheduler(dispatcher, cfg.ScanInterval, logger)
	}

	return &Server{
		db:          db,
		hub:         hub,
		jwt:         auth.NewJWT(cfg.JWTSecret),
		pushH:       handler.NewPushHandler(pushStore, preferenceStore, pushSvc, logger.With("component", "push_handler")),
		preferenceH: handler.NewPreferenceHandler(preferenceStore, logger.With("component", "preference_handler")),
		actionH:     handler.NewActionHandler(reconciler, logger.With("component", "action_handler")),
		eventH:      handler.NewEventHandler(eventStore, logger.With("component", "event_handler")),
		cronH:       handler.NewCronHandler(dispatcher, cfg.CronSecret, logger.With("component", "cron_handler")),
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		logger:      logger,
	}
}

// Scheduler returns the internal ticker, or nil when the deployment relies
// on the cron endpoint.
func (s *Server) Scheduler() *dispatch.Scheduler {
	return s.scheduler
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
	outerMux.HandleFunc("POST /api/cron/process-reminders", s.cronH.ProcessReminders)

	// Protected routes, wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("POST /api/notifications/subscribe", s.pushH.Subscribe)
	protectedMux.HandleFunc("POST /api/notifications/unsubscribe", s.pushH.Unsubscribe)
	protectedMux.HandleFunc("GET /api/notifications/vapid-key", s.pushH.VAPIDKey)
	protectedMux.HandleFunc("POST /api/notifications/test", s.pushH.Test)
	protectedMux.HandleFunc("GET /api/notifications/preferences", s.preferenceH.Get)
	protectedMux.HandleFunc("PUT /api/notifications/preferences", s.preferenceH.Update)
	protectedMux.HandleFunc("POST /api/notifications/action", s.actionH.Apply)
	protectedMux.HandleFunc("GET /api/notifications/events", s.eventH.List)

	authMiddleware := auth.RequireAuth(s.jwt)
	outerMux.Handle("/api/notifications/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
