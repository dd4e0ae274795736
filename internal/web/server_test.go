package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intentlab/vdip/internal/config"
	"github.com/intentlab/vdip/internal/db"
	"github.com/intentlab/vdip/internal/llm"
	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/pipeline"
	"github.com/intentlab/vdip/internal/registry"
	"github.com/intentlab/vdip/internal/sandbox"
	"github.com/intentlab/vdip/internal/topology"
	"github.com/intentlab/vdip/internal/translate"
	"github.com/intentlab/vdip/internal/verify"
)

const dropBody = `{"rules":[{"switch_id":"s1","match_src_ip":"10.0.0.1","match_dst_ip":"10.0.0.2","action":"drop"}]}`

type fixedCompleter struct {
	output string
	block  chan struct{}
}

func (f *fixedCompleter) Complete(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	if f.block != nil {
		close(f.block)
		f.block = nil
		<-ctx.Done()
		return llm.CompletionResponse{}, ctx.Err()
	}
	return llm.CompletionResponse{OutputText: f.output}, nil
}

func newTestServer(t *testing.T, completer llm.Completer, poolSize int) (*Server, *pipeline.Manager) {
	t.Helper()
	dir := t.TempDir()
	topoYAML := `
name: pair
switches: [s1]
hosts:
  - {name: h1, ip: 10.0.0.1, switch: s1, link_latency_ms: 1}
  - {name: h2, ip: 10.0.0.2, switch: s1, link_latency_ms: 1}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pair.yaml"), []byte(topoYAML), 0o644))

	database, err := db.Open(filepath.Join(dir, "vdip.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	store := registry.NewStore(database)
	resolver := topology.NewResolver(dir)
	pool := sandbox.NewPool(resolver, poolSize, 50*time.Millisecond)
	engine := translate.NewEngine(completer, 2, time.Second)
	orch := pipeline.NewOrchestrator(engine, verify.NewEngine(), store)

	cfg := config.Default()
	mgr := pipeline.NewManager(orch, pool, resolver, store, cfg.Verify, cfg.Budgets)
	t.Cleanup(mgr.Close)

	srv, err := NewServer(mgr)
	require.NoError(t, err)
	return srv, mgr
}

func submit(t *testing.T, routes http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/intents", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	return rec
}

func TestSubmitAndGetSession(t *testing.T) {
	t.Parallel()
	srv, mgr := newTestServer(t, &fixedCompleter{output: dropBody}, 1)
	routes := srv.Routes()

	rec := submit(t, routes, `{"text":"Block traffic from h1 to h2","topology_ref":"pair"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)

	_, err := mgr.Wait(context.Background(), resp.SessionID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+resp.SessionID, nil)
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var sess model.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	require.Equal(t, model.SessionAccepted, sess.State)
	require.Len(t, sess.Attempts, 1)

	req = httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []registry.SessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	require.Equal(t, resp.SessionID, summaries[0].ID)

	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/sessions/%s/events", resp.SessionID), nil)
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var events []registry.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.NotEmpty(t, events)
	require.Equal(t, "session_created", events[0].Type)
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, &fixedCompleter{output: dropBody}, 1)
	routes := srv.Routes()

	rec := submit(t, routes, `{"topology_ref":"pair"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = submit(t, routes, `{"text":"Block traffic from h1 to h2","topology_ref":"missing"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = submit(t, routes, `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmit_CapacityExceeded(t *testing.T) {
	t.Parallel()
	blocked := make(chan struct{})
	srv, _ := newTestServer(t, &fixedCompleter{output: dropBody, block: blocked}, 1)
	routes := srv.Routes()

	rec := submit(t, routes, `{"text":"Block traffic from h1 to h2","topology_ref":"pair"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-blocked

	rec = submit(t, routes, `{"text":"Allow traffic from h1 to h2","topology_ref":"pair"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "5", rec.Header().Get("Retry-After"))
}

func TestGetUnknownSession(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, &fixedCompleter{output: dropBody}, 1)
	routes := srv.Routes()

	req := httptest.NewRequest(http.MethodGet, "/sessions/nope", nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/sessions/nope/events", nil)
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAbortSession(t *testing.T) {
	t.Parallel()
	blocked := make(chan struct{})
	srv, mgr := newTestServer(t, &fixedCompleter{output: dropBody, block: blocked}, 1)
	routes := srv.Routes()

	rec := submit(t, routes, `{"text":"Block traffic from h1 to h2","topology_ref":"pair"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	<-blocked

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+resp.SessionID+"/abort", nil)
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	sess, err := mgr.Wait(context.Background(), resp.SessionID)
	require.NoError(t, err)
	require.Equal(t, model.SessionAborted, sess.State)

	// A second abort hits the terminal state.
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+resp.SessionID+"/abort", nil)
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/sessions/unknown/abort", nil)
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
