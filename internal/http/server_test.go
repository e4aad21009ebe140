package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shipd/internal/classifier"
	"github.com/fyrsmithlabs/shipd/internal/recovery"
	"github.com/fyrsmithlabs/shipd/internal/state"
)

type stubInspector struct {
	st  *state.RepositoryState
	err error
}

func (s *stubInspector) Inspect() (*state.RepositoryState, error) { return s.st, s.err }

func newTestServer(t *testing.T, insp Inspector) *Server {
	t.Helper()
	s, err := NewServer(insp, classifier.New(classifier.DefaultConfig()), zap.NewNop(), nil)
	require.NoError(t, err)
	return s
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, &stubInspector{st: &state.RepositoryState{}})
	rec := doRequest(s, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestStateEndpoint(t *testing.T) {
	s := newTestServer(t, &stubInspector{st: &state.RepositoryState{
		Branch: "main", Ahead: 2, StashDepth: 1,
	}})
	rec := doRequest(s, http.MethodGet, "/api/v1/state", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var st state.RepositoryState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "main", st.Branch)
	assert.Equal(t, 2, st.Ahead)
	assert.Equal(t, 1, st.StashDepth)
}

func TestStateEndpointInspectorFailure(t *testing.T) {
	s := newTestServer(t, &stubInspector{err: assert.AnError})
	rec := doRequest(s, http.MethodGet, "/api/v1/state", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAdviseEndpoint(t *testing.T) {
	s := newTestServer(t, &stubInspector{st: &state.RepositoryState{
		Branch: "main", MergeInProgress: true,
	}})
	rec := doRequest(s, http.MethodGet, "/api/v1/advise", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp AdviseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Plan)
	require.Len(t, resp.Plan.Actions, 1)
	assert.Equal(t, recovery.AnomalyMergeInProgress, resp.Plan.Actions[0].Anomaly)
	assert.True(t, resp.State.MergeInProgress)
}

func TestClassifyEndpoint(t *testing.T) {
	s := newTestServer(t, &stubInspector{st: &state.RepositoryState{}})
	body := `{"files":[{"path":"internal/server.go","kind":"modified","category":"production","added":5,"removed":0}],"total_added":5}`
	rec := doRequest(s, http.MethodPost, "/api/v1/classify", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	var d classifier.RoutingDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, classifier.RequiresReview, d.Verdict)
	assert.Equal(t, classifier.RuleProtectedCategory, d.Rule)
}

func TestClassifyEndpointDirectCommit(t *testing.T) {
	s := newTestServer(t, &stubInspector{st: &state.RepositoryState{}})
	body := `{"files":[{"path":"docs/guide.md","kind":"modified","category":"documentation","added":40}],"total_added":40}`
	rec := doRequest(s, http.MethodPost, "/api/v1/classify", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	var d classifier.RoutingDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, classifier.DirectCommit, d.Verdict)
}

func TestClassifyEndpointRejectsEmptyBody(t *testing.T) {
	s := newTestServer(t, &stubInspector{st: &state.RepositoryState{}})
	rec := doRequest(s, http.MethodPost, "/api/v1/classify", `{"files":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewServerValidation(t *testing.T) {
	cls := classifier.New(classifier.DefaultConfig())
	_, err := NewServer(nil, cls, zap.NewNop(), nil)
	require.Error(t, err)

	_, err = NewServer(&stubInspector{}, nil, zap.NewNop(), nil)
	require.Error(t, err)

	_, err = NewServer(&stubInspector{}, cls, nil, nil)
	require.Error(t, err)
}
