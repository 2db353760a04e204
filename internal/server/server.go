// Package server orchestrates all components: broker connection, JetStream
// stream, message-type registrations, contract verification, failure
// journal, and the HTTP health endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/couriermq/courier/internal/config"
	"github.com/couriermq/courier/pkg/commsutil"
	"github.com/couriermq/courier/pkg/contract"
	"github.com/couriermq/courier/pkg/envelope"
	"github.com/couriermq/courier/pkg/journal"
	"github.com/couriermq/courier/pkg/transport"
)

const logPrefix = "server:server"

// SetupFunc registers the application's message types on the given registry.
// It runs once at startup, after the transport is connected and before any
// delivery is consumed.
type SetupFunc func(reg *envelope.Registry) error

// Server is the courier worker orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *nats.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
	reg        *envelope.Registry
	journal    journal.Journal
}

// Run starts the worker, blocks until shutdown signal, then cleans up.
func Run(setup SetupFunc) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting courier worker %s", logPrefix, cfg.ServiceName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg, journal: &journal.NoOpJournal{}}

	// Step 1: Load the message contract
	c, err := contract.Load(cfg.ContractFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load contract: %w", logPrefix, err)
	}

	// Step 2: Connect to the broker
	nc, err := commsutil.Connect(cfg.BrokerURL, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to broker: %w", logPrefix, err)
	}
	s.nc = nc

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("%s - failed to get JetStream context: %w", logPrefix, err)
	}

	// Step 3: Register message types against the connected transport
	reg := envelope.New(transport.NewCommsTransport(js), cfg.ServiceName)
	if err := setup(reg); err != nil {
		nc.Close()
		return fmt.Errorf("%s - setup failed: %w", logPrefix, err)
	}
	if len(reg.Types()) == 0 {
		nc.Close()
		return fmt.Errorf("%s - no message types registered", logPrefix)
	}
	s.reg = reg

	// Step 4: Verify the registrations against the contract
	if err := contract.Verify(c, reg); err != nil {
		nc.Close()
		return fmt.Errorf("%s - contract verification failed: %w", logPrefix, err)
	}

	// Step 5: Connect the failure journal when configured
	if cfg.DatabaseURL != "" {
		pool, err := journal.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			nc.Close()
			return fmt.Errorf("%s - failed to connect to journal database: %w", logPrefix, err)
		}
		s.pool = pool
		if cfg.RunMigrations {
			if err := journal.Migrate(ctx, pool); err != nil {
				pool.Close()
				nc.Close()
				return fmt.Errorf("%s - failed to migrate journal: %w", logPrefix, err)
			}
		}
		s.journal = journal.NewPgJournal(pool)
	}

	// Step 6: Ensure the stream covers every registered type's subjects
	if err := ensureStream(js, cfg.Stream, reg); err != nil {
		s.close()
		return err
	}

	// Step 7: One queue subscription per registered type
	var subs []*nats.Subscription
	for _, t := range reg.Types() {
		subject := commsutil.TypeSubject(t.Name())
		sub, err := js.QueueSubscribe(subject, cfg.QueueGroup, func(msg *nats.Msg) {
			s.handleDelivery(ctx, msg)
		}, nats.ManualAck())
		if err != nil {
			for _, prev := range subs {
				prev.Unsubscribe()
			}
			s.close()
			return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
		}
		subs = append(subs, sub)
		slog.Info(fmt.Sprintf("%s - Subscribed to %s (queue %s)", logPrefix, subject, cfg.QueueGroup))
	}

	// Step 8: Start HTTP health server
	s.startHTTP(c)

	slog.Info(fmt.Sprintf("%s - Courier worker is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown
	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if s.httpServer != nil {
		s.httpServer.Shutdown(ctx)
	}
	s.nc.Drain()
	if s.pool != nil {
		s.pool.Close()
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// handleDelivery runs one dispatch pass with the configured deadline and
// translates the envelope's terminal state into an ack or nak.
func (s *Server) handleDelivery(ctx context.Context, msg *nats.Msg) {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	defer cancel()

	env := s.reg.Receive(dctx, msg.Data, msg.Subject)
	delivery := transport.NewCommsDelivery(msg)

	if envelope.Decide(env) == envelope.Accept {
		if err := delivery.Accept(); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to ack %s: %v", logPrefix, msg.Subject, err))
		}
		return
	}

	slog.Warn(fmt.Sprintf("%s - Rejecting %s: %v", logPrefix, msg.Subject, env.Errors()))
	if err := delivery.Reject(); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to nak %s: %v", logPrefix, msg.Subject, err))
	}
	// Best-effort: a journal failure never changes the ack decision.
	if err := s.journal.RecordFailure(dctx, journal.EntryFromEnvelope(env, msg.Subject)); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to journal rejection of %s: %v", logPrefix, msg.Subject, err))
	}
}

// ensureStream creates or updates the JetStream stream so it captures the
// routing-key subjects of every registered type.
func ensureStream(js nats.JetStreamContext, name string, reg *envelope.Registry) error {
	subjects := make([]string, 0, len(reg.Types()))
	for _, t := range reg.Types() {
		subjects = append(subjects, commsutil.TypeSubject(t.Name()))
	}
	streamCfg := &nats.StreamConfig{Name: name, Subjects: subjects}

	if _, err := js.StreamInfo(name); err != nil {
		if _, err := js.AddStream(streamCfg); err != nil {
			return fmt.Errorf("%s - failed to create stream %s: %w", logPrefix, name, err)
		}
		slog.Info(fmt.Sprintf("%s - Created stream %s for %d subjects", logPrefix, name, len(subjects)))
		return nil
	}

	if _, err := js.UpdateStream(streamCfg); err != nil {
		return fmt.Errorf("%s - failed to update stream %s: %w", logPrefix, name, err)
	}
	return nil
}

// startHTTP serves the health and status endpoints.
func (s *Server) startHTTP(c *contract.Contract) {
	httpAddr := s.cfg.HTTPAddr
	if httpAddr == "" {
		httpAddr = fmt.Sprintf(":%d", s.cfg.HTTPPort)
	}
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes(c)}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()
}

// routes builds the HTTP endpoints: health, readiness, and the registered
// type listing.
func (s *Server) routes(c *contract.Contract) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		connected := s.nc != nil && s.nc.IsConnected()
		status := map[string]any{
			"status":    "healthy",
			"connected": connected,
		}
		if !connected {
			status["status"] = "unhealthy"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	mux.HandleFunc("/types", func(w http.ResponseWriter, r *http.Request) {
		type typeStatus struct {
			Name    string   `json:"name"`
			Version string   `json:"version,omitempty"`
			Actions []string `json:"actions"`
			Fields  []string `json:"fields"`
		}
		out := struct {
			Contract string       `json:"contract"`
			Types    []typeStatus `json:"types"`
		}{Contract: c.Name}
		for _, t := range s.reg.Types() {
			out.Types = append(out.Types, typeStatus{
				Name:    t.Name(),
				Version: t.Version(),
				Actions: t.Actions(),
				Fields:  t.Schema().Names(),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	return mux
}

// close releases broker and journal resources on startup failure paths.
func (s *Server) close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}
