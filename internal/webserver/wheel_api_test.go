package webserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ichi0g0y/prize-wheel/internal/cooldown"
	"github.com/ichi0g0y/prize-wheel/internal/eligibility"
	"github.com/ichi0g0y/prize-wheel/internal/localdb"
	"github.com/ichi0g0y/prize-wheel/internal/types"
	"github.com/ichi0g0y/prize-wheel/internal/wheel"
)

const testDurationMs = 8000

type stubChecker struct {
	decision eligibility.Decision
	calls    int
}

func (s *stubChecker) Check(context.Context, string) eligibility.Decision {
	s.calls++
	return s.decision
}

type wheelTestEnv struct {
	clock   *wheel.ManualClock
	checker *stubChecker
}

func setupWheelAPITest(t *testing.T, prizes []types.Prize) *wheelTestEnv {
	t.Helper()

	if localdb.DBClient != nil {
		_ = localdb.DBClient.Close()
		localdb.DBClient = nil
	}

	dbPath := filepath.Join(t.TempDir(), "local.db")
	db, err := localdb.SetupDB(dbPath)
	if err != nil {
		t.Fatalf("SetupDB failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		localdb.DBClient = nil
	})

	if prizes != nil {
		if err := localdb.ReplacePrizes(prizes); err != nil {
			t.Fatalf("ReplacePrizes failed: %v", err)
		}
	}

	originalCode := generateSpinCode
	generateSpinCode = func(int) (string, error) {
		return "ABCD1234", nil
	}
	t.Cleanup(func() {
		generateSpinCode = originalCode
	})

	env := &wheelTestEnv{
		clock:   wheel.NewManualClock(time.Unix(1_700_000_000, 0)),
		checker: &stubChecker{decision: eligibility.Decision{Allowed: true}},
	}
	InitWheel(WheelConfig{
		DurationMs: testDurationMs,
		Turns:      3,
		Gate:       cooldown.NewGate(cooldown.NewMemoryStore(), 15),
		Checker:    env.checker,
		Clock:      env.clock,
	})
	t.Cleanup(CloseWheel)

	return env
}

func samplePrizes() []types.Prize {
	return []types.Prize{
		{ID: "lunch", Label: "وجبة غداء", Percent: 10, MaxWins: 1},
		{ID: "coffee", Label: "Coffee", Percent: 60, Unlimited: true},
		{ID: "cap", Label: "Cap", Percent: 30, MaxWins: 5},
	}
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response: %v body=%s", err, rec.Body.String())
	}
	return out
}

func lastOutcome() *wheelOutcomeEvent {
	svc := getWheel()
	if svc == nil {
		return nil
	}
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.lastOutcome
}

func waitForOutcome(t *testing.T, sessionID uint64) *wheelOutcomeEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o := lastOutcome(); o != nil && o.SessionID == sessionID {
			return o
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("outcome for session %d was not emitted", sessionID)
	return nil
}

func waitForIdle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if getWheel().driver.State() == wheel.StateIdle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("driver did not return to idle")
}

func spinSessionID(t *testing.T, rec *httptest.ResponseRecorder) (uint64, int) {
	t.Helper()
	var body struct {
		Session wheel.Session `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode spin response: %v", err)
	}
	return body.Session.ID, body.Session.WinnerIndex
}

func TestHandleWheelSpin_FullCycle(t *testing.T) {
	env := setupWheelAPITest(t, samplePrizes())

	rec := doJSON(t, handleWheelSpin, http.MethodPost, "/api/wheel/spin", `{"identity":"+966 50 123 4567","forced_index":2}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("spin status mismatch: got=%d want=%d body=%s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	sessionID, winner := spinSessionID(t, rec)
	if winner != 2 {
		t.Fatalf("forced index was not used: got=%d want=2", winner)
	}

	// 回転中の二重スピンは409
	busy := doJSON(t, handleWheelSpin, http.MethodPost, "/api/wheel/spin", `{"identity":"other"}`)
	if busy.Code != http.StatusConflict {
		t.Fatalf("second spin status mismatch: got=%d want=%d", busy.Code, http.StatusConflict)
	}

	env.clock.Advance(testDurationMs * time.Millisecond)
	outcome := waitForOutcome(t, sessionID)
	waitForIdle(t)

	if outcome.Prize.ID != "cap" || outcome.Index != 2 || !outcome.Verified {
		t.Fatalf("unexpected outcome: %+v", outcome.Outcome)
	}
	if outcome.Code != "ABCD1234" {
		t.Fatalf("unexpected code: got=%q", outcome.Code)
	}
	if outcome.Owner != "501234567" {
		t.Fatalf("owner should be normalized: got=%q", outcome.Owner)
	}

	usage, err := localdb.GetPrizeUsage()
	if err != nil {
		t.Fatalf("GetPrizeUsage failed: %v", err)
	}
	if usage["cap"] != 1 {
		t.Fatalf("usage was not incremented: got=%d want=1", usage["cap"])
	}

	history, err := localdb.GetSpinHistory(10)
	if err != nil {
		t.Fatalf("GetSpinHistory failed: %v", err)
	}
	if len(history) != 1 || history[0].Identity != "501234567" || history[0].Code != "ABCD1234" {
		t.Fatalf("unexpected history: %+v", history)
	}

	// 同じ利用者はクールダウン中
	again := doJSON(t, handleWheelSpin, http.MethodPost, "/api/wheel/spin", `{"identity":"0501234567"}`)
	if again.Code != http.StatusTooManyRequests {
		t.Fatalf("cooldown status mismatch: got=%d want=%d", again.Code, http.StatusTooManyRequests)
	}
	body := decodeBody(t, again)
	if _, ok := body["ends_at"].(float64); !ok {
		t.Fatalf("ends_at missing: %v", body)
	}
	last, ok := body["last_outcome"].(map[string]interface{})
	if !ok || last["code"] != "ABCD1234" {
		t.Fatalf("unexpected last_outcome: %v", body["last_outcome"])
	}
}

func TestHandleWheelSpin_EligibilityDenied(t *testing.T) {
	env := setupWheelAPITest(t, samplePrizes())
	env.checker.decision = eligibility.Decision{Allowed: false, Message: "already redeemed"}

	rec := doJSON(t, handleWheelSpin, http.MethodPost, "/api/wheel/spin", `{"identity":"501234567"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status mismatch: got=%d want=%d", rec.Code, http.StatusForbidden)
	}
	if body := decodeBody(t, rec); body["message"] != "already redeemed" {
		t.Fatalf("unexpected message: %v", body["message"])
	}
	if getWheel().driver.State() != wheel.StateIdle {
		t.Fatal("denied spin must not start a session")
	}
}

func TestHandleWheelSpin_Rejections(t *testing.T) {
	setupWheelAPITest(t, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing identity", `{"identity":"  "}`, http.StatusBadRequest},
		{"no prizes", `{"identity":"501234567"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, handleWheelSpin, http.MethodPost, "/api/wheel/spin", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status mismatch: got=%d want=%d body=%s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	rec := doJSON(t, handleWheelSpin, http.MethodGet, "/api/wheel/spin", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status mismatch: got=%d want=%d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleWheelSpin_ExhaustedPrizeDisablesWheel(t *testing.T) {
	env := setupWheelAPITest(t, []types.Prize{
		{ID: "only", Label: "Only one", MaxWins: 1},
	})

	rec := doJSON(t, handleWheelSpin, http.MethodPost, "/api/wheel/spin", `{"identity":"a@example.com"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("spin status mismatch: got=%d body=%s", rec.Code, rec.Body.String())
	}
	sessionID, _ := spinSessionID(t, rec)
	env.clock.Advance(testDurationMs * time.Millisecond)
	waitForOutcome(t, sessionID)
	waitForIdle(t)

	if !getWheel().driver.Disabled() {
		t.Fatal("wheel should be disabled when no prize is left")
	}

	next := doJSON(t, handleWheelSpin, http.MethodPost, "/api/wheel/spin", `{"identity":"b@example.com"}`)
	if next.Code != http.StatusConflict {
		t.Fatalf("status mismatch: got=%d want=%d", next.Code, http.StatusConflict)
	}

	reset := doJSON(t, handleWheelUsageReset, http.MethodPost, "/api/wheel/usage/reset", "")
	if reset.Code != http.StatusOK {
		t.Fatalf("reset status mismatch: got=%d", reset.Code)
	}
	if getWheel().driver.Disabled() {
		t.Fatal("wheel should be enabled again after usage reset")
	}
}

func TestHandleWheelCancel_SuppressesOutcome(t *testing.T) {
	env := setupWheelAPITest(t, samplePrizes())

	rec := doJSON(t, handleWheelSpin, http.MethodPost, "/api/wheel/spin", `{"identity":"501234567","trigger":7}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("spin status mismatch: got=%d body=%s", rec.Code, rec.Body.String())
	}

	cancel := doJSON(t, handleWheelCancel, http.MethodPost, "/api/wheel/cancel", "")
	if body := decodeBody(t, cancel); body["cancelled"] != true {
		t.Fatalf("cancel was not applied: %v", body)
	}

	env.clock.Advance(2 * testDurationMs * time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	if o := lastOutcome(); o != nil {
		t.Fatalf("cancelled session must not emit an outcome: %+v", o)
	}
	history, _ := localdb.GetSpinHistory(10)
	if len(history) != 0 {
		t.Fatalf("cancelled session must not be recorded: %+v", history)
	}

	// 同じtriggerの再送は無視される
	dup := doJSON(t, handleWheelSpin, http.MethodPost, "/api/wheel/spin", `{"identity":"501234567","trigger":7}`)
	if dup.Code != http.StatusConflict {
		t.Fatalf("duplicate trigger status mismatch: got=%d want=%d", dup.Code, http.StatusConflict)
	}
	fresh := doJSON(t, handleWheelSpin, http.MethodPost, "/api/wheel/spin", `{"identity":"501234567","trigger":8}`)
	if fresh.Code != http.StatusAccepted {
		t.Fatalf("new trigger status mismatch: got=%d want=%d", fresh.Code, http.StatusAccepted)
	}
}

func TestHandleWheelPrizes_GetAndPut(t *testing.T) {
	setupWheelAPITest(t, nil)

	put := doJSON(t, handleWheelPrizes, http.MethodPut, "/api/wheel/prizes",
		`[{"id":"a","label":"A","percent":40,"max_wins":2},{"id":"b","label":"B","percent":40,"unlimited":true}]`)
	if put.Code != http.StatusOK {
		t.Fatalf("PUT status mismatch: got=%d body=%s", put.Code, put.Body.String())
	}
	percent := decodeBody(t, put)["percent"].(map[string]interface{})
	if percent["balanced"] != false || percent["total"] != "80.00" {
		t.Fatalf("unexpected percent summary: %v", percent)
	}

	get := doJSON(t, handleWheelPrizes, http.MethodGet, "/api/wheel/prizes", "")
	if get.Code != http.StatusOK {
		t.Fatalf("GET status mismatch: got=%d", get.Code)
	}
	body := decodeBody(t, get)
	if body["available_count"] != float64(2) {
		t.Fatalf("unexpected available_count: %v", body["available_count"])
	}
	prizes := body["prizes"].([]interface{})
	if len(prizes) != 2 {
		t.Fatalf("unexpected prize count: got=%d want=2", len(prizes))
	}

	bad := doJSON(t, handleWheelPrizes, http.MethodPut, "/api/wheel/prizes", `[{"id":"a","label":"A"},{"id":"a","label":"B"}]`)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("duplicate id status mismatch: got=%d want=%d", bad.Code, http.StatusBadRequest)
	}
}

func TestValidatePrizes(t *testing.T) {
	tests := []struct {
		name    string
		prizes  []types.Prize
		wantErr bool
	}{
		{"valid", []types.Prize{{ID: "a", Label: "A", Percent: 100}}, false},
		{"empty list", []types.Prize{}, false},
		{"missing id", []types.Prize{{Label: "A"}}, true},
		{"blank label", []types.Prize{{ID: "a", Label: "  "}}, true},
		{"negative percent", []types.Prize{{ID: "a", Label: "A", Percent: -1}}, true},
		{"percent over 100", []types.Prize{{ID: "a", Label: "A", Percent: 101}}, true},
		{"negative max wins", []types.Prize{{ID: "a", Label: "A", MaxWins: -1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePrizes(tt.prizes)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validatePrizes: got err=%v wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestHandleWheelGeometry(t *testing.T) {
	setupWheelAPITest(t, []types.Prize{
		{ID: "a", Label: "A", Unlimited: true},
		{ID: "b", Label: "B", Unlimited: true},
		{ID: "c", Label: "C", Unlimited: true},
		{ID: "d", Label: "D", Unlimited: true},
	})

	rec := doJSON(t, handleWheelGeometry, http.MethodGet, "/api/wheel/geometry?radius=100", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status mismatch: got=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["segment_angle"] != float64(90) {
		t.Fatalf("unexpected segment_angle: %v", body["segment_angle"])
	}
	segments := body["segments"].([]interface{})
	if len(segments) != 4 {
		t.Fatalf("unexpected segment count: got=%d want=4", len(segments))
	}
	first := segments[0].(map[string]interface{})
	if first["prize_id"] != "a" || first["start_deg"] != float64(0) || first["end_deg"] != float64(90) {
		t.Fatalf("unexpected first segment: %v", first)
	}

	bad := doJSON(t, handleWheelGeometry, http.MethodGet, "/api/wheel/geometry?radius=-1", "")
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("status mismatch: got=%d want=%d", bad.Code, http.StatusBadRequest)
	}
}

func TestHandleWheelHistory_ListAndClear(t *testing.T) {
	setupWheelAPITest(t, nil)

	if _, err := localdb.SaveSpinHistory(types.SpinHistory{Identity: "x", PrizeID: "a", PrizeLabel: "A"}); err != nil {
		t.Fatalf("SaveSpinHistory failed: %v", err)
	}

	get := doJSON(t, handleWheelHistory, http.MethodGet, "/api/wheel/history?limit=5", "")
	if body := decodeBody(t, get); body["count"] != float64(1) {
		t.Fatalf("unexpected count: %v", body["count"])
	}

	del := doJSON(t, handleWheelHistory, http.MethodDelete, "/api/wheel/history", "")
	if del.Code != http.StatusOK {
		t.Fatalf("DELETE status mismatch: got=%d", del.Code)
	}
	history, _ := localdb.GetSpinHistory(0)
	if len(history) != 0 {
		t.Fatalf("history was not cleared: %d", len(history))
	}
}

func TestHandleWheelState(t *testing.T) {
	setupWheelAPITest(t, samplePrizes())

	rec := doJSON(t, handleWheelState, http.MethodGet, "/api/wheel/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status mismatch: got=%d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["state"] != "idle" || body["prize_count"] != float64(3) || body["available_count"] != float64(3) {
		t.Fatalf("unexpected state: %v", body)
	}
	if _, ok := body["session"]; ok {
		t.Fatalf("idle state should not include a session: %v", body["session"])
	}
}

func TestHandleWheelSpin_WeightedModeIgnoresForcedIndex(t *testing.T) {
	env := setupWheelAPITest(t, []types.Prize{
		{ID: "lunch", Label: "Lunch", Percent: 0, Unlimited: true},
		{ID: "coffee", Label: "Coffee", Percent: 100, Unlimited: true},
		{ID: "cap", Label: "Cap", Percent: 0, Unlimited: true},
	})
	svc := getWheel()
	svc.mu.Lock()
	svc.weighted = true
	svc.mu.Unlock()

	rec := doJSON(t, handleWheelSpin, http.MethodPost, "/api/wheel/spin", `{"identity":"viewer-9","forced_index":2}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("spin status mismatch: got=%d want=%d body=%s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	sessionID, winner := spinSessionID(t, rec)
	if winner != 1 {
		t.Fatalf("weighted draw should decide the winner: got=%d want=1", winner)
	}

	env.clock.Advance(testDurationMs * time.Millisecond)
	outcome := waitForOutcome(t, sessionID)
	waitForIdle(t)
	if outcome.Prize.ID != "coffee" {
		t.Fatalf("unexpected prize: got=%q want=%q", outcome.Prize.ID, "coffee")
	}
}
