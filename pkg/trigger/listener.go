// Package trigger turns webhook deliveries into pipeline runs. The
// listener verifies each delivery's signature, gates it on event type
// and the configured filter, deduplicates by delivery GUID and answers
// before the run finishes; runs themselves execute one at a time.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/event"
	"github.com/slipway-ci/slipway/pkg/global"
	"github.com/slipway-ci/slipway/pkg/match"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

// maxBodySize bounds delivery payloads. Release events are a few
// kilobytes; a megabyte is already generous.
const maxBodySize = 1 << 20

// shutdownGrace is how long in-flight requests get on shutdown.
const shutdownGrace = 10 * time.Second

// Runs is the listener's view of run management. The listen command
// backs it with the run history and the pipeline engine.
type Runs interface {
	// Seen reports whether a delivery GUID was already handled.
	Seen(ctx context.Context, deliveryID string) (bool, error)
	// Activate records a new run for a delivery and returns its ID.
	Activate(ctx context.Context, evt *event.Event, deliveryID string) (string, error)
	// Execute runs the pipeline to completion, recording the outcome.
	// The listener logs the returned error and nothing more; by the
	// time it surfaces, the delivery has long been answered.
	Execute(ctx context.Context, runID string, evt *event.Event) error
}

// Listener serves the webhook endpoint.
type Listener struct {
	addr      string
	path      string
	secret    string
	eventType string
	filter    *match.Query
	runs      Runs

	// baseCtx outlives individual requests; runs are bound to it, not
	// to the delivery that started them.
	baseCtx context.Context
	runMu   sync.Mutex
	wg      sync.WaitGroup
}

// New builds a listener from the project config. It fails when no
// webhook is configured or its secret does not resolve.
func New(cfg *config.Config, runs Runs) (*Listener, error) {
	if cfg.Trigger == nil || cfg.Trigger.Webhook == nil {
		return nil, errors.New("no trigger.webhook configured")
	}
	webhook := cfg.Trigger.Webhook
	secret, err := webhook.ResolveSecret()
	if err != nil {
		return nil, err
	}

	filter := match.NewQuery(cfg.EffectiveFilter())
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trigger filter: %w", err)
	}

	eventType := cfg.Trigger.Event
	if eventType == "" {
		eventType = config.DefaultTriggerEvent
	}
	path := webhook.Path
	if path == "" {
		path = config.DefaultWebhookPath
	}
	addr := webhook.Addr
	if addr == "" {
		addr = config.DefaultListenAddr
	}

	return &Listener{
		addr:      addr,
		path:      path,
		secret:    secret,
		eventType: eventType,
		filter:    filter,
		runs:      runs,
		baseCtx:   context.Background(),
	}, nil
}

// Handler returns the listener's HTTP handler, for serving and tests.
func (l *Listener) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(l.path, l.handleDelivery)
	mux.HandleFunc("/healthz", l.handleHealth)
	return mux
}

// Serve runs the webhook endpoint until ctx is canceled, then shuts
// down gracefully and waits for any in-flight run to return.
func (l *Listener) Serve(ctx context.Context) error {
	l.baseCtx = ctx

	server := &http.Server{
		Addr:              l.addr,
		Handler:           l.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		console.Infof("Listening for %s deliveries on %s%s", l.eventType, l.addr, l.path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listener failed: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		console.Info("Shutting down listener")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return server.Close()
		}
		return nil
	})

	err := eg.Wait()
	l.wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (l *Listener) handleDelivery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	deliveryID := r.Header.Get(event.DeliveryHeader)
	if !VerifySignature(body, r.Header.Get(event.SignatureHeader), l.secret) {
		console.Warnf("Rejected delivery %s: signature mismatch", deliveryID)
		http.Error(w, "signature mismatch", http.StatusForbidden)
		return
	}

	if eventType := r.Header.Get(event.EventHeader); eventType != l.eventType {
		l.ignore(w, deliveryID, fmt.Sprintf("event type is %q", eventType))
		return
	}

	evt, err := event.Parse(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	matched, err := l.filter.Match(evt.Payload())
	if err != nil {
		console.Errorf("Trigger filter failed on delivery %s: %s", deliveryID, err)
		http.Error(w, "trigger filter failed", http.StatusInternalServerError)
		return
	}
	if !matched {
		l.ignore(w, deliveryID, "filter did not match")
		return
	}
	if err := evt.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	seen, err := l.runs.Seen(r.Context(), deliveryID)
	if err != nil {
		console.Errorf("Delivery lookup failed for %s: %s", deliveryID, err)
		http.Error(w, "run history unavailable", http.StatusInternalServerError)
		return
	}
	if seen {
		l.ignore(w, deliveryID, "delivery already handled")
		return
	}

	runID, err := l.runs.Activate(r.Context(), evt, deliveryID)
	if err != nil {
		console.Errorf("Failed to activate run for %s: %s", evt.Describe(), err)
		http.Error(w, "failed to activate run", http.StatusInternalServerError)
		return
	}
	console.Infof("Activated run %s for %s", runID, evt.Describe())

	// Answer the delivery now; the run executes in the background, one
	// at a time. Forges time webhooks out long before a build finishes.
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.runMu.Lock()
		defer l.runMu.Unlock()
		if err := l.runs.Execute(l.baseCtx, runID, evt); err != nil {
			console.Errorf("Run %s failed: %s", runID, err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"run_id": runID})
}

func (l *Listener) ignore(w http.ResponseWriter, deliveryID, reason string) {
	console.Debugf("Ignoring delivery %s: %s", deliveryID, reason)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "ignored", "reason": reason})
}

func (l *Listener) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": global.Version})
}
