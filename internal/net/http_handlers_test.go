package net

import (
	"context"
	"encoding/json"
	"math/rand"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"shotcounter/server"
	"shotcounter/server/internal/dice"
	"shotcounter/server/internal/directory"
	"shotcounter/server/internal/fight"
)

func testRouter(t *testing.T) (*mux.Router, *server.Hub) {
	t.Helper()
	dir := directory.NewMemory()
	if err := directory.SeedRoster(context.Background(), dir); err != nil {
		t.Fatalf("seed roster: %v", err)
	}
	hub := server.NewHub(server.DefaultHubConfig(), server.HubDeps{
		Directory: dir,
		Roller:    dice.NewRollerFromSource(rand.NewSource(1)),
		Clock:     func() time.Time { return time.Date(2024, 5, 10, 19, 0, 0, 0, time.UTC) },
	})
	return NewRouter(hub, HTTPHandlerConfig{}), hub
}

func doJSON(t *testing.T, router *mux.Router, method, path, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	if out != nil && recorder.Code < 300 {
		if err := json.Unmarshal(recorder.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode response %s: %v", method, path, recorder.Body.String(), err)
		}
	}
	return recorder
}

func createFight(t *testing.T, router *mux.Router, name string) fight.Snapshot {
	t.Helper()
	var snapshot fight.Snapshot
	recorder := doJSON(t, router, nethttp.MethodPost, "/api/fights", `{"name":"`+name+`"}`, &snapshot)
	if recorder.Code != nethttp.StatusCreated {
		t.Fatalf("create fight: status %d body %s", recorder.Code, recorder.Body.String())
	}
	return snapshot
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := testRouter(t)
	recorder := doJSON(t, router, nethttp.MethodGet, "/healthz", "", nil)
	if recorder.Code != nethttp.StatusOK {
		t.Fatalf("health: status %d", recorder.Code)
	}
}

func TestFightLifecycleOverHTTP(t *testing.T) {
	router, _ := testRouter(t)

	created := createFight(t, router, "Warehouse Shootout")
	if created.ID == "" || !created.Active {
		t.Fatalf("unexpected created fight: %+v", created)
	}

	var list struct {
		Fights []fight.Snapshot `json:"fights"`
	}
	if recorder := doJSON(t, router, nethttp.MethodGet, "/api/fights", "", &list); recorder.Code != nethttp.StatusOK {
		t.Fatalf("list fights: status %d", recorder.Code)
	}
	if len(list.Fights) != 1 || list.Fights[0].ID != created.ID {
		t.Fatalf("unexpected fight list: %+v", list.Fights)
	}

	var fetched struct {
		Revision uint64         `json:"revision"`
		Snapshot fight.Snapshot `json:"snapshot"`
	}
	if recorder := doJSON(t, router, nethttp.MethodGet, "/api/fights/"+created.ID, "", &fetched); recorder.Code != nethttp.StatusOK {
		t.Fatalf("get fight: status %d", recorder.Code)
	}
	if fetched.Revision == 0 || fetched.Snapshot.ID != created.ID {
		t.Fatalf("unexpected fight payload: %+v", fetched)
	}

	if recorder := doJSON(t, router, nethttp.MethodGet, "/api/fights/fight-missing", "", nil); recorder.Code != nethttp.StatusNotFound {
		t.Fatalf("missing fight: status %d", recorder.Code)
	}
}

func TestCreateFightValidation(t *testing.T) {
	router, _ := testRouter(t)
	if recorder := doJSON(t, router, nethttp.MethodPost, "/api/fights", `{"name":"  "}`, nil); recorder.Code != nethttp.StatusBadRequest {
		t.Fatalf("blank name: status %d", recorder.Code)
	}
	if recorder := doJSON(t, router, nethttp.MethodPost, "/api/fights", `{{`, nil); recorder.Code != nethttp.StatusBadRequest {
		t.Fatalf("bad json: status %d", recorder.Code)
	}
}

func TestSubmitIntentOverHTTP(t *testing.T) {
	router, hub := testRouter(t)
	created := createFight(t, router, "Dockside Brawl")

	var applied struct {
		Revision uint64 `json:"revision"`
	}
	recorder := doJSON(t, router, nethttp.MethodPost, "/api/fights/"+created.ID+"/intents",
		`{"type":"add_combatant","addCombatant":{"characterId":"char-archer","initiative":12}}`, &applied)
	if recorder.Code != nethttp.StatusOK {
		t.Fatalf("add combatant: status %d body %s", recorder.Code, recorder.Body.String())
	}
	if applied.Revision == 0 {
		t.Fatalf("expected applied revision")
	}

	snapshot, _, err := hub.CurrentSnapshot(created.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapshot.Combatants) != 1 || snapshot.Combatants[0].CharacterID != "char-archer" {
		t.Fatalf("combatant not added: %+v", snapshot.Combatants)
	}
}

func TestSubmitIntentRejectionStatuses(t *testing.T) {
	router, hub := testRouter(t)
	created := createFight(t, router, "Dockside Brawl")

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed intent", `{"type":"attack"}`, nethttp.StatusBadRequest},
		{"unknown character", `{"type":"add_combatant","addCombatant":{"characterId":"char-ghost"}}`, nethttp.StatusNotFound},
		{"unknown combatant", `{"type":"heal","heal":{"targetId":"ghost","amount":5}}`, nethttp.StatusNotFound},
	}
	for _, tc := range cases {
		recorder := doJSON(t, router, nethttp.MethodPost, "/api/fights/"+created.ID+"/intents", tc.body, nil)
		if recorder.Code != tc.status {
			t.Fatalf("%s: status %d, want %d (%s)", tc.name, recorder.Code, tc.status, recorder.Body.String())
		}
	}

	if _, err := hub.SubmitIntent(context.Background(), created.ID, fight.Intent{Type: fight.IntentEndFight}); err != nil {
		t.Fatalf("end fight: %v", err)
	}
	recorder := doJSON(t, router, nethttp.MethodPost, "/api/fights/"+created.ID+"/intents",
		`{"type":"advance_sequence"}`, nil)
	if recorder.Code != nethttp.StatusConflict {
		t.Fatalf("ended fight: status %d body %s", recorder.Code, recorder.Body.String())
	}
}

func TestCharacterDirectoryOverHTTP(t *testing.T) {
	router, _ := testRouter(t)

	var list struct {
		Characters []directory.Record `json:"characters"`
	}
	if recorder := doJSON(t, router, nethttp.MethodGet, "/api/characters", "", &list); recorder.Code != nethttp.StatusOK {
		t.Fatalf("list characters: status %d", recorder.Code)
	}
	if len(list.Characters) == 0 {
		t.Fatalf("expected seeded roster")
	}

	recorder := doJSON(t, router, nethttp.MethodPost, "/api/characters",
		`{"id":"char-sniper","name":"The Sniper","type":"pc","actionValues":{"Guns":16},"defense":13,"toughness":6,"speed":7}`, nil)
	if recorder.Code != nethttp.StatusCreated {
		t.Fatalf("put character: status %d body %s", recorder.Code, recorder.Body.String())
	}

	if recorder := doJSON(t, router, nethttp.MethodPost, "/api/characters", `{"name":"No ID"}`, nil); recorder.Code != nethttp.StatusBadRequest {
		t.Fatalf("invalid character: status %d", recorder.Code)
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	dir := directory.NewMemory()
	hub := server.NewHub(server.DefaultHubConfig(), server.HubDeps{Directory: dir})
	router := NewRouter(hub, HTTPHandlerConfig{
		Metrics: func() map[string]uint64 { return map[string]uint64{"fights_created": 1} },
	})
	if _, err := hub.CreateFight(context.Background(), "Rooftop Chase"); err != nil {
		t.Fatalf("create: %v", err)
	}

	var payload struct {
		Fights  []server.FightDiagnostics `json:"fights"`
		Metrics map[string]uint64         `json:"metrics"`
	}
	recorder := doJSON(t, router, nethttp.MethodGet, "/diagnostics", "", &payload)
	if recorder.Code != nethttp.StatusOK {
		t.Fatalf("diagnostics: status %d", recorder.Code)
	}
	if len(payload.Fights) != 1 || payload.Metrics["fights_created"] != 1 {
		t.Fatalf("unexpected diagnostics: %+v", payload)
	}
}

func TestWebsocketRouteValidation(t *testing.T) {
	router, _ := testRouter(t)
	if recorder := doJSON(t, router, nethttp.MethodGet, "/ws/fights/fight-1", "", nil); recorder.Code != nethttp.StatusBadRequest {
		t.Fatalf("missing client id: status %d", recorder.Code)
	}
	if recorder := doJSON(t, router, nethttp.MethodGet, "/ws/fights/fight-1?client=c1", "", nil); recorder.Code != nethttp.StatusNotFound {
		t.Fatalf("unknown fight: status %d", recorder.Code)
	}
}
