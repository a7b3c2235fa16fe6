// Package web exposes the agent's status over a small JSON API, which the
// station dashboard polls. Every response travels in a typed envelope so the
// dashboard can dispatch on the message kind without sniffing payloads.
package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/solarfab/linesync/client"
	"github.com/solarfab/linesync/internal/engine"
	"github.com/solarfab/linesync/internal/state"
	"github.com/solarfab/linesync/types"
)

// Manager is the slice of the sync manager the API exposes.
type Manager interface {
	Status(ctx context.Context) (*client.Status, error)
	TriggerSync(ctx context.Context) (*types.SyncResult, error)
	RetryFailed(ctx context.Context) (*types.SyncResult, error)
	List(ctx context.Context, filter types.Filter) ([]types.Mutation, error)
	Record(ctx context.Context, table, recordID string) (json.RawMessage, error)
}

type HttpRouteHandler struct {
	manager Manager
	auth    Authenticator
	port    uint
}

func NewRouteHandler(manager Manager, auth Authenticator, port uint) HttpRouteHandler {
	return HttpRouteHandler{
		manager: manager,
		auth:    auth,
		port:    port,
	}
}

// Handler builds the API mux. Kept separate from Serve so tests can mount it
// on httptest servers.
func (handler *HttpRouteHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sync/status", handler.auth.Middleware(handler.handleStatus))
	mux.HandleFunc("/sync/queue", handler.auth.Middleware(handler.handleQueue))
	mux.HandleFunc("/sync/record", handler.auth.Middleware(handler.handleRecord))
	mux.HandleFunc("/sync/trigger", handler.auth.Middleware(handler.handleTrigger))
	mux.HandleFunc("/sync/retry", handler.auth.Middleware(handler.handleRetry))
	return mux
}

func (handler *HttpRouteHandler) Serve() error {
	addr := fmt.Sprintf(":%d", handler.port)
	log.Printf("[web] status API listening on %s", addr)
	return http.ListenAndServe(addr, handler.Handler())
}

func (handler *HttpRouteHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	status, err := handler.manager.Status(r.Context())
	if err != nil {
		log.Printf("[web] status read failed: %v", err)
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	writeEnvelope(w, http.StatusOK, TypeSyncStatus, status)
}

func (handler *HttpRouteHandler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	filter := types.Filter{
		Table:     strings.TrimSpace(r.URL.Query().Get("table")),
		Operation: types.Operation(strings.TrimSpace(r.URL.Query().Get("operation"))),
		Status:    state.MutationStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
	}

	items, err := handler.manager.List(r.Context(), filter)
	if err != nil {
		log.Printf("[web] queue read failed: %v", err)
		writeError(w, http.StatusInternalServerError, "queue unavailable")
		return
	}
	writeEnvelope(w, http.StatusOK, TypeMutationList, items)
}

// handleRecord serves the mirrored server copy of one record, the counterpart
// operators compare a manually released conflict against.
func (handler *HttpRouteHandler) handleRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	table := strings.TrimSpace(r.URL.Query().Get("table"))
	recordID := strings.TrimSpace(r.URL.Query().Get("id"))
	if table == "" || recordID == "" {
		writeError(w, http.StatusBadRequest, "table and id are required")
		return
	}

	record, err := handler.manager.Record(r.Context(), table, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "no mirrored copy of "+table+"/"+recordID)
			return
		}
		log.Printf("[web] record read failed: %v", err)
		writeError(w, http.StatusInternalServerError, "record unavailable")
		return
	}
	writeEnvelope(w, http.StatusOK, TypeRecord, record)
}

func (handler *HttpRouteHandler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	result, err := handler.manager.TriggerSync(r.Context())
	if err != nil {
		writeRefusal(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, TypeSyncResult, result)
}

func (handler *HttpRouteHandler) handleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	result, err := handler.manager.RetryFailed(r.Context())
	if err != nil {
		writeRefusal(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, TypeSyncResult, result)
}

func writeRefusal(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrSyncInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("[web] sync request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "sync failed")
	}
}

func writeEnvelope(w http.ResponseWriter, status int, kind MessageType, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Envelope{Type: kind, Payload: payload}); err != nil {
		log.Printf("[web] encoding response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, TypeError, map[string]string{"message": message})
}
