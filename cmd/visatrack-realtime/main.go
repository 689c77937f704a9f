package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/webdoc-rokib/visa-track-sub000/internal/config"
	"github.com/webdoc-rokib/visa-track-sub000/internal/database"
	"github.com/webdoc-rokib/visa-track-sub000/internal/httpapi"
	"github.com/webdoc-rokib/visa-track-sub000/internal/hub"
	"github.com/webdoc-rokib/visa-track-sub000/internal/logging"
	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store/postgres"
	"github.com/webdoc-rokib/visa-track-sub000/internal/telemetry"
)

const consumerName = "realtime"

var broadcastTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "visatrack_realtime_messages_total",
	Help: "Realtime messages queued to clients.",
})

type eventEnvelope struct {
	Type       string    `json:"type"`
	FileID     string    `json:"file_id"`
	Status     string    `json:"status,omitempty"`
	AssignedTo string    `json:"assigned_to,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type sessionGetter interface {
	GetSession(ctx context.Context, sessionID string) (models.Session, error)
}

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	if cfg.DatabaseURL == "" {
		log.Fatal("DB_DSN is required")
	}

	shutdownTelemetry := telemetry.Setup("visatrack-realtime")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer pool.Close()

	st := postgres.NewStore(pool, postgres.Options{})
	h := hub.New()
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "visatrack_realtime_clients",
		Help: "Connected realtime clients.",
	}, func() float64 { return float64(h.Count()) })

	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute: cfg.RateLimitPerMinute,
		IPBurst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/realtime/", sockjs.NewHandler("/realtime", sockjs.DefaultOptions, sessionHandler(st, h)))

	server := &http.Server{
		Addr:         ":" + cfg.RealtimePort,
		Handler:      otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "visatrack-realtime"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	p := &poller{store: st, hub: h, batchSize: cfg.RealtimeBatchSize}
	if err := p.load(ctx); err != nil {
		log.WithError(err).Warn("load realtime offset")
	}

	go func() {
		log.WithField("addr", server.Addr).Info("visatrack-realtime listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()
	go p.run(ctx, cfg.RealtimePollInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
}

func sessionHandler(sessions sessionGetter, h *hub.Hub) func(sockjs.Session) {
	return func(session sockjs.Session) {
		sessionID := httpapi.SessionIDFromRequest(session.Request())
		if sessionID == "" {
			_ = session.Close(4001, "missing session")
			return
		}
		authSession, err := sessions.GetSession(context.Background(), sessionID)
		if err != nil {
			_ = session.Close(4002, "invalid session")
			return
		}

		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			h.UpdateSubscription(client, subscriptionFor(authSession, parsed))
		}
	}
}

func subscriptionFor(session models.Session, msg hub.SubscribeMessage) hub.Subscription {
	if msg.Action == "unsubscribe" {
		return hub.Subscription{}
	}
	return hub.Subscription{
		UserName: session.FullName,
		Role:     session.Role,
		Scope:    msg.Scope,
		FileID:   msg.FileID,
	}
}

// poller relays ledger events to the hub. Only one poll runs at a time.
type poller struct {
	store     store.EventStore
	hub       *hub.Hub
	batchSize int
	offset    int64
	running   atomic.Bool
}

func (p *poller) load(ctx context.Context) error {
	offset, err := p.store.GetOffset(ctx, consumerName)
	if err != nil {
		return err
	}
	p.offset = offset
	return nil
}

func (p *poller) run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if _, err := p.pollOnce(pollCtx); err != nil {
				log.WithError(err).Warn("realtime poll failed")
			}
			cancel()
		}
	}
}

// pollOnce broadcasts one batch and returns how many events it read.
func (p *poller) pollOnce(ctx context.Context) (int, error) {
	if !p.running.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer p.running.Store(false)

	batch := p.batchSize
	if batch <= 0 {
		batch = 200
	}
	events, err := p.store.ListEventsAfter(ctx, p.offset, batch)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	for _, event := range events {
		payload, meta, err := envelopeFor(event)
		if err != nil {
			log.WithError(err).WithField("position", event.Position).Warn("skip undecodable event")
			continue
		}
		broadcastTotal.Add(float64(p.hub.Broadcast(payload, meta)))
	}
	p.offset = events[len(events)-1].Position
	if err := p.store.UpdateOffset(ctx, consumerName, p.offset); err != nil {
		log.WithError(err).Warn("update realtime offset")
	}
	return len(events), nil
}

func envelopeFor(event store.FileEvent) ([]byte, hub.Meta, error) {
	payload, err := event.DecodePayload()
	if err != nil {
		return nil, hub.Meta{}, err
	}
	env := eventEnvelope{
		Type:       event.Type,
		FileID:     event.FileID,
		Status:     payload.Status,
		AssignedTo: payload.AssignedTo,
		CreatedAt:  event.CreatedAt,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, hub.Meta{}, err
	}
	return raw, hub.Meta{FileID: event.FileID, AssignedTo: payload.AssignedTo}, nil
}
