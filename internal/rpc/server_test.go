package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/claudeguard/claudeguard/internal/attention"
	"github.com/claudeguard/claudeguard/internal/budget"
	"github.com/claudeguard/claudeguard/internal/config"
	"github.com/claudeguard/claudeguard/internal/incident"
	"github.com/claudeguard/claudeguard/internal/risk"
	"github.com/claudeguard/claudeguard/internal/store"
)

func testServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DataDir:              filepath.Join(dir, "data"),
		WatchedDir:           filepath.Join(dir, "projects"),
		ProcessPrefix:        "claude",
		MaxLogDirMB:          200,
		HangThresholdSeconds: 300,
	}
	if err := os.MkdirAll(cfg.WatchedDir, 0755); err != nil {
		t.Fatal(err)
	}
	var discard bytes.Buffer
	return NewServer(cfg, log.New(&discard, "", 0)), cfg
}

// call runs one request line through the server and decodes the response.
func call(t *testing.T, s *Server, line string) Response {
	t.Helper()
	var out bytes.Buffer
	if err := s.Serve(strings.NewReader(line+"\n"), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, out.String())
	}
	return resp
}

// toolText extracts the text payload of a tools/call response.
func toolText(t *testing.T, resp Response) (string, bool) {
	t.Helper()
	data, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatal(err)
	}
	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unexpected result shape: %v", err)
	}
	if len(result.Content) != 1 {
		t.Fatalf("content blocks = %d, want 1", len(result.Content))
	}
	return result.Content[0].Text, result.IsError
}

func callTool(t *testing.T, s *Server, name, args string) (string, bool) {
	t.Helper()
	line := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":%q,"arguments":%s}}`, name, args)
	return toolText(t, call(t, s, line))
}

func TestInitialize(t *testing.T) {
	s, _ := testServer(t)
	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	if resp.Error != nil {
		t.Fatalf("initialize error: %v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	if !strings.Contains(string(data), "claudeguard") {
		t.Errorf("initialize result = %s", data)
	}
}

func TestToolsListHasEightToolsInOrder(t *testing.T) {
	s, _ := testServer(t)
	resp := call(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)

	data, _ := json.Marshal(resp.Result)
	var result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}

	want := []string{"status", "preflight_fix", "doctor", "nudge",
		"budget_get", "budget_acquire", "budget_release", "recovery_plan"}
	if len(result.Tools) != len(want) {
		t.Fatalf("tools = %d, want %d", len(result.Tools), len(want))
	}
	for i, tool := range result.Tools {
		if tool.Name != want[i] {
			t.Errorf("tool %d = %q, want %q", i, tool.Name, want[i])
		}
	}
}

func TestUnknownMethod(t *testing.T) {
	s, _ := testServer(t)
	resp := call(t, s, `{"jsonrpc":"2.0","id":3,"method":"wat"}`)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Errorf("error = %v, want method-not-found", resp.Error)
	}
}

func TestUnknownTool(t *testing.T) {
	s, _ := testServer(t)
	resp := call(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"rm_rf"}}`)
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Errorf("error = %v, want invalid-params", resp.Error)
	}
}

func TestMalformedLineDoesNotKillSession(t *testing.T) {
	s, _ := testServer(t)
	var out bytes.Buffer
	input := "not json at all\n" + `{"jsonrpc":"2.0","id":5,"method":"ping"}` + "\n"
	if err := s.Serve(strings.NewReader(input), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("responses = %d, want parse error then pong", len(lines))
	}
	if !strings.Contains(lines[0], "parse error") {
		t.Errorf("first response = %s", lines[0])
	}
}

func TestBudgetAcquireReleaseFlow(t *testing.T) {
	s, _ := testServer(t)

	text, isErr := callTool(t, s, "budget_acquire",
		`{"slots":2,"ttlSeconds":60,"reason":"batch"}`)
	if isErr {
		t.Fatalf("acquire errored: %s", text)
	}
	if !strings.Contains(text, "granted: lease ") {
		t.Fatalf("acquire = %q", text)
	}
	leaseID := strings.Fields(strings.TrimPrefix(text, "granted: lease "))[0]

	// Summary reflects the lease.
	text, _ = callTool(t, s, "budget_get", `{}`)
	var summary budget.Summary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		t.Fatalf("budget_get payload: %v\n%s", err, text)
	}
	if summary.SlotsInUse != 2 || summary.SlotsAvailable != 2 {
		t.Errorf("summary = %+v, want 2 in use of 4", summary)
	}

	// Release and verify not-found on the second attempt.
	text, _ = callTool(t, s, "budget_release", fmt.Sprintf(`{"leaseId":%q}`, leaseID))
	if !strings.Contains(text, "released") {
		t.Errorf("release = %q", text)
	}
	text, _ = callTool(t, s, "budget_release", fmt.Sprintf(`{"leaseId":%q}`, leaseID))
	if !strings.Contains(text, "not found") {
		t.Errorf("second release = %q", text)
	}
}

func TestBudgetAcquireDenial(t *testing.T) {
	s, _ := testServer(t)

	if _, isErr := callTool(t, s, "budget_acquire",
		`{"slots":4,"ttlSeconds":60,"reason":"all"}`); isErr {
		t.Fatal("full-cap acquire should succeed")
	}
	text, isErr := callTool(t, s, "budget_acquire",
		`{"slots":1,"ttlSeconds":60,"reason":"extra"}`)
	if isErr {
		t.Fatalf("denial is not a transport error: %s", text)
	}
	if !strings.Contains(text, "denied") || !strings.Contains(text, "only 0 available") {
		t.Errorf("denial = %q", text)
	}
}

func TestBudgetGetRecoversFromCorruption(t *testing.T) {
	s, cfg := testServer(t)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.BudgetPath(), []byte("{malformed"), 0644); err != nil {
		t.Fatal(err)
	}

	text, isErr := callTool(t, s, "budget_get", `{}`)
	if isErr {
		t.Fatalf("budget_get errored on corruption: %s", text)
	}
	var summary budget.Summary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.CurrentCap != 4 || summary.SlotsInUse != 0 {
		t.Errorf("summary = %+v, want default budget", summary)
	}

	matches, _ := filepath.Glob(cfg.BudgetPath() + ".corrupt.*")
	if len(matches) != 1 {
		t.Errorf("corrupt backups = %v, want one", matches)
	}
}

func TestStatusServesFreshSnapshot(t *testing.T) {
	s, cfg := testServer(t)

	st := store.New(cfg, nil)
	saved := &store.GuardianState{
		UpdatedAt: time.Now(),
		HangRisk:  risk.HangRisk{Level: risk.LevelWarn, Reasons: []string{"test marker"}},
		Attention: attention.Attention{Level: attention.LevelWarn},
	}
	if err := st.SaveState(saved); err != nil {
		t.Fatal(err)
	}

	text, isErr := callTool(t, s, "status", `{}`)
	if isErr {
		t.Fatalf("status errored: %s", text)
	}
	if !strings.Contains(text, "test marker") {
		t.Error("status should serve the fresh persisted snapshot")
	}
}

func TestRecoveryPlanTool(t *testing.T) {
	s, cfg := testServer(t)

	st := store.New(cfg, nil)
	bs := budget.Summary{CurrentCap: 4, BaseCap: 4}
	if err := st.SaveState(&store.GuardianState{
		UpdatedAt:     time.Now(),
		HangRisk:      risk.HangRisk{Level: risk.LevelOK},
		BudgetSummary: &bs,
	}); err != nil {
		t.Fatal(err)
	}

	text, isErr := callTool(t, s, "recovery_plan", `{}`)
	if isErr {
		t.Fatalf("recovery_plan errored: %s", text)
	}
	if !strings.Contains(text, `"status": "healthy"`) {
		t.Errorf("plan = %s", text)
	}
}

func TestNudgeIsIdempotent(t *testing.T) {
	s, cfg := testServer(t)

	st := store.New(cfg, nil)
	save := func() {
		if err := st.SaveState(&store.GuardianState{
			UpdatedAt: time.Now(),
			HangRisk:  risk.HangRisk{Level: risk.LevelOK},
		}); err != nil {
			t.Fatal(err)
		}
	}

	save()
	first, isErr := callTool(t, s, "nudge", `{}`)
	if isErr {
		t.Fatalf("nudge errored: %s", first)
	}
	save()
	second, _ := callTool(t, s, "nudge", `{}`)
	if !strings.Contains(first, "Nothing to do") || !strings.Contains(second, "Nothing to do") {
		t.Errorf("healthy nudge should be a no-op twice: %q then %q", first, second)
	}
}

func TestNudgeCapturesBundleExactlyOnce(t *testing.T) {
	s, cfg := testServer(t)

	st := store.New(cfg, nil)
	if err := st.SaveState(&store.GuardianState{
		UpdatedAt: time.Now(),
		HangRisk:  risk.HangRisk{Level: risk.LevelWarn, Reasons: []string{"quiet"}},
		ActiveIncident: &incident.Incident{
			ID:        "abcd1234",
			StartedAt: time.Now().Add(-time.Minute),
			Reason:    "quiet",
			PeakLevel: risk.LevelWarn,
		},
	}); err != nil {
		t.Fatal(err)
	}

	// First nudge: the warn incident has no bundle yet, so one is
	// captured and the flag is persisted.
	first, isErr := callTool(t, s, "nudge", `{}`)
	if isErr {
		t.Fatalf("nudge errored: %s", first)
	}
	if !strings.Contains(first, "captured bundle") {
		t.Fatalf("first nudge = %q, want a capture", first)
	}

	state, err := st.LoadState()
	if err != nil || state == nil {
		t.Fatalf("LoadState: %v, %v", state, err)
	}
	if !state.ActiveIncident.BundleCaptured || state.ActiveIncident.BundlePath == "" {
		t.Fatalf("capture not persisted: %+v", state.ActiveIncident)
	}

	// Second nudge with no intervening state change: no new bundle.
	second, _ := callTool(t, s, "nudge", `{}`)
	if strings.Contains(second, "captured bundle") {
		t.Errorf("second nudge = %q, must not capture again", second)
	}

	bundles, _ := filepath.Glob(filepath.Join(cfg.DataDir, "bundle-*.zip"))
	if len(bundles) != 1 {
		t.Errorf("bundles on disk = %v, want exactly one", bundles)
	}
}

func TestNotificationGetsNoResponse(t *testing.T) {
	s, _ := testServer(t)
	var out bytes.Buffer
	if err := s.Serve(strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`+"\n"), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("notification produced output: %s", out.String())
	}
}

func TestErrorPayloadIsStructured(t *testing.T) {
	s, _ := testServer(t)

	// Arguments of the wrong type fail inside the handler; the boundary
	// must still produce the structured payload, never a trace.
	text, isErr := callTool(t, s, "budget_acquire", `{"slots":"two"}`)
	if !isErr {
		t.Fatalf("expected an error payload, got %q", text)
	}
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Hint    string `json:"hint"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("error payload is not structured JSON: %v\n%s", err, text)
	}
	if payload.Code == "" || payload.Hint == "" {
		t.Errorf("payload = %+v, want code and hint", payload)
	}
}
