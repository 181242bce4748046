// Package net exposes the HTTP surface: fight CRUD, the character
// directory, intent submission for clients without a socket, and the
// websocket upgrade path.
package net

import (
	"encoding/json"
	"errors"
	"log"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"shotcounter/server"
	"shotcounter/server/internal/directory"
	"shotcounter/server/internal/fight"
	"shotcounter/server/internal/net/intake"
	"shotcounter/server/internal/net/proto"
	"shotcounter/server/internal/net/ws"
)

// HTTPHandlerConfig tunes the router. ClientDir, when set, serves the
// bundled web client from /.
type HTTPHandlerConfig struct {
	ClientDir string
	Logger    *log.Logger
	Metrics   func() map[string]uint64
	// IntentMinInterval spaces intents per websocket session. Zero
	// disables the throttle.
	IntentMinInterval time.Duration
}

type httpAPI struct {
	hub      *server.Hub
	sessions *ws.Handler
	upgrader websocket.Upgrader
	cfg      HTTPHandlerConfig
}

// NewRouter wires every HTTP route against the hub.
func NewRouter(hub *server.Hub, cfg HTTPHandlerConfig) *mux.Router {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	sessions := ws.NewHandler(hub, cfg.Logger)
	sessions.SetIntentInterval(cfg.IntentMinInterval)
	api := &httpAPI{
		hub:      hub,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*nethttp.Request) bool { return true },
		},
		cfg: cfg,
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", api.handleHealth).Methods(nethttp.MethodGet)
	router.HandleFunc("/diagnostics", api.handleDiagnostics).Methods(nethttp.MethodGet)
	router.HandleFunc("/api/fights", api.handleCreateFight).Methods(nethttp.MethodPost)
	router.HandleFunc("/api/fights", api.handleListFights).Methods(nethttp.MethodGet)
	router.HandleFunc("/api/fights/{id}", api.handleGetFight).Methods(nethttp.MethodGet)
	router.HandleFunc("/api/fights/{id}/events", api.handleFightEvents).Methods(nethttp.MethodGet)
	router.HandleFunc("/api/fights/{id}/intents", api.handleSubmitIntent).Methods(nethttp.MethodPost)
	router.HandleFunc("/api/characters", api.handleListCharacters).Methods(nethttp.MethodGet)
	router.HandleFunc("/api/characters", api.handlePutCharacter).Methods(nethttp.MethodPost)
	router.HandleFunc("/ws/fights/{id}", api.handleWebsocket).Methods(nethttp.MethodGet)
	if cfg.ClientDir != "" {
		router.PathPrefix("/").Handler(nethttp.FileServer(nethttp.Dir(cfg.ClientDir)))
	}
	return router
}

func (api *httpAPI) handleHealth(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]string{"status": "ok"})
}

func (api *httpAPI) handleDiagnostics(w nethttp.ResponseWriter, _ *nethttp.Request) {
	payload := struct {
		Time    time.Time                 `json:"time"`
		Fights  []server.FightDiagnostics `json:"fights"`
		Metrics map[string]uint64         `json:"metrics,omitempty"`
	}{
		Time:   time.Now(),
		Fights: api.hub.Diagnostics(),
	}
	if api.cfg.Metrics != nil {
		payload.Metrics = api.cfg.Metrics()
	}
	writeJSON(w, nethttp.StatusOK, payload)
}

func (api *httpAPI) handleCreateFight(w nethttp.ResponseWriter, r *nethttp.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpError(w, nethttp.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		httpError(w, nethttp.StatusBadRequest, "fight name required")
		return
	}
	snapshot, err := api.hub.CreateFight(r.Context(), body.Name)
	if err != nil {
		httpError(w, nethttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, nethttp.StatusCreated, snapshot)
}

func (api *httpAPI) handleListFights(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, struct {
		Fights []fight.Snapshot `json:"fights"`
	}{Fights: api.hub.Fights()})
}

func (api *httpAPI) handleGetFight(w nethttp.ResponseWriter, r *nethttp.Request) {
	fightID := mux.Vars(r)["id"]
	snapshot, revision, err := api.hub.CurrentSnapshot(fightID)
	if err != nil {
		httpError(w, nethttp.StatusNotFound, "unknown fight "+fightID)
		return
	}
	writeJSON(w, nethttp.StatusOK, struct {
		Revision uint64         `json:"revision"`
		Snapshot fight.Snapshot `json:"snapshot"`
	}{Revision: revision, Snapshot: snapshot})
}

func (api *httpAPI) handleFightEvents(w nethttp.ResponseWriter, r *nethttp.Request) {
	fightID := mux.Vars(r)["id"]
	events, err := api.hub.Events(r.Context(), fightID)
	if err != nil {
		httpError(w, nethttp.StatusNotFound, "unknown fight "+fightID)
		return
	}
	writeJSON(w, nethttp.StatusOK, struct {
		Events []fight.Event `json:"events"`
	}{Events: events})
}

// handleSubmitIntent accepts intents over plain HTTP. The websocket path is
// preferred for live play; this exists for scripted table setup and tests.
func (api *httpAPI) handleSubmitIntent(w nethttp.ResponseWriter, r *nethttp.Request) {
	fightID := mux.Vars(r)["id"]
	clientID := r.Header.Get("X-Client-ID")
	if clientID == "" {
		clientID = "http"
	}

	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpError(w, nethttp.StatusBadRequest, "request body is not valid JSON")
		return
	}

	ctx := intake.IntentContext{
		ResolveCharacter: func(id string) (fight.Combatant, error) {
			return api.hub.ResolveCharacter(r.Context(), id)
		},
		Submit: func(intent fight.Intent) (uint64, error) {
			return api.hub.SubmitIntent(r.Context(), fightID, intent)
		},
	}
	revision, ok, reason, message := intake.StageClientIntent(ctx, clientID, proto.ClientMessage{
		Type:   proto.TypeIntent,
		Intent: body,
	})
	if !ok {
		writeJSON(w, rejectionStatus(reason), struct {
			Reason  string `json:"reason"`
			Message string `json:"message,omitempty"`
		}{Reason: reason, Message: message})
		return
	}
	writeJSON(w, nethttp.StatusOK, struct {
		Revision uint64 `json:"revision"`
	}{Revision: revision})
}

func (api *httpAPI) handleListCharacters(w nethttp.ResponseWriter, r *nethttp.Request) {
	records, err := api.hub.Directory().List(r.Context())
	if err != nil {
		httpError(w, nethttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, nethttp.StatusOK, struct {
		Characters []directory.Record `json:"characters"`
	}{Characters: records})
}

func (api *httpAPI) handlePutCharacter(w nethttp.ResponseWriter, r *nethttp.Request) {
	var record directory.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		httpError(w, nethttp.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if err := api.hub.Directory().Put(r.Context(), record); err != nil {
		httpError(w, nethttp.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, nethttp.StatusCreated, record)
}

func (api *httpAPI) handleWebsocket(w nethttp.ResponseWriter, r *nethttp.Request) {
	fightID := mux.Vars(r)["id"]
	clientID := r.URL.Query().Get("client")
	if clientID == "" {
		httpError(w, nethttp.StatusBadRequest, "client query parameter required")
		return
	}
	if _, _, err := api.hub.CurrentSnapshot(fightID); err != nil {
		httpError(w, nethttp.StatusNotFound, "unknown fight "+fightID)
		return
	}
	conn, err := api.upgrader.Upgrade(w, r, nil)
	if err != nil {
		api.cfg.Logger.Printf("websocket upgrade failed for %s: %v", clientID, err)
		return
	}
	api.sessions.Serve(r.Context(), fightID, clientID, conn)
}

// rejectionStatus maps structured rejection reasons onto HTTP codes.
func rejectionStatus(reason string) int {
	switch reason {
	case intake.ReasonInvalidIntent:
		return nethttp.StatusBadRequest
	case intake.ReasonUnknownCharacter, string(fight.RejectUnknownCombatant):
		return nethttp.StatusNotFound
	case intake.ReasonInternal:
		return nethttp.StatusInternalServerError
	default:
		return nethttp.StatusConflict
	}
}

func writeJSON(w nethttp.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && !errors.Is(err, nethttp.ErrHandlerTimeout) {
		log.Printf("failed to encode response: %v", err)
	}
}

func httpError(w nethttp.ResponseWriter, status int, message string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: message})
}
