package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cardpilot/cardpilot/internal/core"
	"github.com/cardpilot/cardpilot/internal/model"
	"github.com/cardpilot/cardpilot/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st, err := store.New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	svc := core.New(st, &core.Guard{})
	return New(svc, st, "*"), st
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode JSON: %v\nbody: %s", err, rr.Body.String())
	}
	return result
}

func createDeck(t *testing.T, h http.Handler, target int) string {
	t.Helper()
	body := `{"name":"Spanish","suggestion_target":` + strconv.Itoa(target) + `}`
	rr := doRequest(t, h, "POST", "/api/decks", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create deck: status = %d, body: %s", rr.Code, rr.Body.String())
	}
	return decodeJSON(t, rr)["id"].(string)
}

func createCard(t *testing.T, h http.Handler, deckID, front string) string {
	t.Helper()
	body := `{"deck_id":"` + deckID + `","front":"` + front + `","back":"back","item_type":"word"}`
	rr := doRequest(t, h, "POST", "/api/cards", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create card: status = %d, body: %s", rr.Code, rr.Body.String())
	}
	return decodeJSON(t, rr)["id"].(string)
}

func TestCreateDeck(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rr := doRequest(t, h, "POST", "/api/decks", `{"name":"Spanish","description":"core vocab","suggestion_target":20}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	result := decodeJSON(t, rr)
	if result["name"] != "Spanish" {
		t.Errorf("name = %v", result["name"])
	}
	if result["suggestion_target"] != float64(20) {
		t.Errorf("suggestion_target = %v, want 20", result["suggestion_target"])
	}
}

func TestCreateDeck_RequiresName(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rr := doRequest(t, h, "POST", "/api/decks", `{"description":"no name"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCreateCard_DuplicateConflict(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	deckID := createDeck(t, h, 0)
	createCard(t, h, deckID, "la mesa")

	body := `{"deck_id":"` + deckID + `","front":"LA MESA","back":"x","item_type":"word"}`
	rr := doRequest(t, h, "POST", "/api/cards", body)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body: %s", rr.Code, rr.Body.String())
	}
}

func TestGetCard_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rr := doRequest(t, h, "GET", "/api/cards/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestGradeCard(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	deckID := createDeck(t, h, 0)
	cardID := createCard(t, h, deckID, "la mesa")

	rr := doRequest(t, h, "POST", "/api/cards/"+cardID+"/grade", `{"grade":"good","elapsed_ms":2500}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	result := decodeJSON(t, rr)
	if result["interval_days"] != float64(1) {
		t.Errorf("interval_days = %v, want 1", result["interval_days"])
	}
	if result["review_count"] != float64(1) {
		t.Errorf("review_count = %v, want 1", result["review_count"])
	}

	rr = doRequest(t, h, "GET", "/api/cards/"+cardID+"/reviews", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list reviews: status = %d", rr.Code)
	}
	var logs []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &logs); err != nil {
		t.Fatalf("decode reviews: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("reviews = %d, want 1", len(logs))
	}
}

func TestGradeCard_UnknownGrade(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	deckID := createDeck(t, h, 0)
	cardID := createCard(t, h, deckID, "la mesa")

	rr := doRequest(t, h, "POST", "/api/cards/"+cardID+"/grade", `{"grade":"perfect"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestArchiveUnarchive(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	deckID := createDeck(t, h, 0)
	cardID := createCard(t, h, deckID, "la mesa")

	rr := doRequest(t, h, "POST", "/api/cards/"+cardID+"/archive", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("archive: status = %d, body: %s", rr.Code, rr.Body.String())
	}
	if st := decodeJSON(t, rr)["state"]; st != string(model.StateArchived) {
		t.Errorf("state = %v, want %s", st, model.StateArchived)
	}

	// Archiving twice is a conflict.
	rr = doRequest(t, h, "POST", "/api/cards/"+cardID+"/archive", "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("double archive: status = %d, want 409", rr.Code)
	}

	rr = doRequest(t, h, "POST", "/api/cards/"+cardID+"/unarchive", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("unarchive: status = %d", rr.Code)
	}
	if st := decodeJSON(t, rr)["state"]; st != string(model.StateActive) {
		t.Errorf("state = %v, want %s", st, model.StateActive)
	}
}

func insertVisibleSuggestion(t *testing.T, st *store.Store, deckID, id string) {
	t.Helper()
	c := model.NewSuggestion(id, deckID, "front "+id, "back", "word", "prompt", "ctx", "cat", time.Now().UTC())
	c.State = model.StateSuggestionVisible
	c.Artwork = []byte("art")
	if err := st.CreateCard(context.Background(), c); err != nil {
		t.Fatalf("insert suggestion: %v", err)
	}
}

func TestSuggestionLifecycleOverHTTP(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()
	deckID := createDeck(t, h, 0)
	insertVisibleSuggestion(t, st, deckID, "sugg-1")
	insertVisibleSuggestion(t, st, deckID, "sugg-2")
	insertVisibleSuggestion(t, st, deckID, "sugg-3")

	// The queue lists all three.
	rr := doRequest(t, h, "GET", "/api/decks/"+deckID+"/suggestions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list suggestions: status = %d", rr.Code)
	}
	var queue []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &queue); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if len(queue) != 3 {
		t.Fatalf("queue = %d, want 3", len(queue))
	}

	// Accept replaces the suggestion with a fresh active card.
	rr = doRequest(t, h, "POST", "/api/suggestions/sugg-1/accept", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("accept: status = %d, body: %s", rr.Code, rr.Body.String())
	}
	accepted := decodeJSON(t, rr)
	if accepted["state"] != string(model.StateActive) {
		t.Errorf("accepted state = %v", accepted["state"])
	}
	if accepted["id"] == "sugg-1" {
		t.Error("accepted card kept the suggestion id")
	}

	// Reject removes the suggestion.
	rr = doRequest(t, h, "POST", "/api/suggestions/sugg-2/reject", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("reject: status = %d, want 204", rr.Code)
	}

	// Skip leaves it in place.
	rr = doRequest(t, h, "POST", "/api/suggestions/sugg-3/skip", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("skip: status = %d, want 204", rr.Code)
	}

	rr = doRequest(t, h, "GET", "/api/decks/"+deckID+"/suggestions", "")
	queue = nil
	if err := json.Unmarshal(rr.Body.Bytes(), &queue); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if len(queue) != 1 {
		t.Fatalf("queue after accept/reject/skip = %d, want 1", len(queue))
	}
	if queue[0]["id"] != "sugg-3" {
		t.Errorf("remaining suggestion = %v, want sugg-3", queue[0]["id"])
	}
}

func TestReviewSessionEngagesGuard(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rr := doRequest(t, h, "PUT", "/api/review-session", `{"active":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	if !srv.core.Guard().Engaged() {
		t.Fatal("guard not engaged after PUT active=true")
	}

	rr = doRequest(t, h, "PUT", "/api/review-session", `{"active":false}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if srv.core.Guard().Engaged() {
		t.Fatal("guard still engaged after PUT active=false")
	}
}

func TestListCards_StateFilter(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()
	deckID := createDeck(t, h, 0)
	createCard(t, h, deckID, "la mesa")
	insertVisibleSuggestion(t, st, deckID, "sugg-1")

	rr := doRequest(t, h, "GET", "/api/decks/"+deckID+"/cards?state=ACTIVE", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var cards []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &cards); err != nil {
		t.Fatalf("decode cards: %v", err)
	}
	if len(cards) != 1 {
		t.Fatalf("cards = %d, want 1", len(cards))
	}
	if cards[0]["state"] != string(model.StateActive) {
		t.Errorf("state = %v", cards[0]["state"])
	}

	rr = doRequest(t, h, "GET", "/api/decks/"+deckID+"/cards?state=BOGUS", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bogus state: status = %d, want 400", rr.Code)
	}
}

func TestDeckCounts(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()
	deckID := createDeck(t, h, 0)
	createCard(t, h, deckID, "la mesa")
	insertVisibleSuggestion(t, st, deckID, "sugg-1")

	rr := doRequest(t, h, "GET", "/api/decks/"+deckID+"/counts", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	counts := decodeJSON(t, rr)
	if counts["new"] != float64(1) {
		t.Errorf("new = %v, want 1", counts["new"])
	}
	if counts["suggestions"] != float64(1) {
		t.Errorf("suggestions = %v, want 1", counts["suggestions"])
	}
}

func TestArtworkEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()
	deckID := createDeck(t, h, 0)
	cardID := createCard(t, h, deckID, "la mesa")

	// No artwork yet.
	rr := doRequest(t, h, "GET", "/api/cards/"+cardID+"/artwork", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}

	card, err := st.GetCard(context.Background(), cardID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	card.Artwork = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	if err := st.UpdateCard(context.Background(), *card); err != nil {
		t.Fatalf("UpdateCard: %v", err)
	}

	rr = doRequest(t, h, "GET", "/api/cards/"+cardID+"/artwork", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Body.Len() != 8 {
		t.Errorf("body = %d bytes, want 8", rr.Body.Len())
	}

	// Artwork never leaks into the card JSON.
	rr = doRequest(t, h, "GET", "/api/cards/"+cardID, "")
	result := decodeJSON(t, rr)
	if _, ok := result["artwork"]; ok {
		t.Error("card JSON contains raw artwork bytes")
	}
	if result["has_artwork"] != true {
		t.Errorf("has_artwork = %v, want true", result["has_artwork"])
	}
}

func TestUpdateCard(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	deckID := createDeck(t, h, 0)
	cardID := createCard(t, h, deckID, "la mesa")

	body := `{"front":"la mesa","back":"the table (updated)","item_type":"word","artwork_prompt":"a new prompt"}`
	rr := doRequest(t, h, "PATCH", "/api/cards/"+cardID, body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	result := decodeJSON(t, rr)
	if result["back"] != "the table (updated)" {
		t.Errorf("back = %v", result["back"])
	}
	if result["failure_count"] != float64(0) {
		t.Errorf("failure_count = %v, want 0", result["failure_count"])
	}
}

func TestDeleteCard(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	deckID := createDeck(t, h, 0)
	cardID := createCard(t, h, deckID, "la mesa")

	rr := doRequest(t, h, "DELETE", "/api/cards/"+cardID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}

	rr = doRequest(t, h, "GET", "/api/cards/"+cardID, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d after delete, want 404", rr.Code)
	}
}

func TestSetTarget(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	deckID := createDeck(t, h, 0)

	rr := doRequest(t, h, "PATCH", "/api/decks/"+deckID+"/target", `{"target":30}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, h, "GET", "/api/decks/"+deckID, "")
	if decodeJSON(t, rr)["suggestion_target"] != float64(30) {
		t.Errorf("target not persisted: %s", rr.Body.String())
	}

	rr = doRequest(t, h, "PATCH", "/api/decks/"+deckID+"/target", `{"target":-5}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("negative target: status = %d, want 400", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rr := doRequest(t, h, "OPTIONS", "/api/decks", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}
