package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunegrab/internal/core/domain"
)

// echoHandler answers every event through the outbox.
type echoHandler struct {
	out *Outbox
	err error
}

func (h *echoHandler) OnStart(ctx context.Context, owner domain.OwnerID) error {
	return h.out.SendText(ctx, owner, "hello")
}

func (h *echoHandler) OnQuery(ctx context.Context, owner domain.OwnerID, text string) error {
	if h.err != nil {
		return h.err
	}
	return h.out.SendText(ctx, owner, "results for "+text, domain.Button{Label: "Song", Token: "v1|restart"})
}

func (h *echoHandler) OnCallback(ctx context.Context, owner domain.OwnerID, token string) error {
	return h.out.SendText(ctx, owner, "pressed "+token)
}

func newTestServer() (*Server, *echoHandler) {
	out := NewOutbox(0)
	h := &echoHandler{out: out}
	return New(h, out, zerolog.Nop()), h
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func drain(t *testing.T, s *Server, owner string) []Message {
	t.Helper()
	rec := do(t, s, http.MethodGet, "/v1/owners/"+owner+"/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	return msgs
}

func TestServer_QueryAndCallback(t *testing.T) {
	s, _ := newTestServer()

	rec := do(t, s, http.MethodPost, "/v1/owners/alice/query", `{"text":"afternoon"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	msgs := drain(t, s, "alice")
	require.Len(t, msgs, 1)
	assert.Equal(t, "results for afternoon", msgs[0].Text)
	require.Len(t, msgs[0].Buttons, 1)

	rec = do(t, s, http.MethodPost, "/v1/owners/alice/callback", `{"token":"`+msgs[0].Buttons[0].Token+`"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	msgs = drain(t, s, "alice")
	require.Len(t, msgs, 1)
	assert.Equal(t, "pressed v1|restart", msgs[0].Text)

	// drained and isolated per owner
	assert.Empty(t, drain(t, s, "alice"))
	assert.Empty(t, drain(t, s, "bob"))
}

func TestServer_Errors(t *testing.T) {
	s, h := newTestServer()

	rec := do(t, s, http.MethodPost, "/v1/owners/alice/query", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "INVALID_REQUEST", errResp.Error.Code)

	h.err = errors.New("messenger gone")
	rec = do(t, s, http.MethodPost, "/v1/owners/alice/query", `{"text":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/owners/alice/job", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_StartHealthAndJob(t *testing.T) {
	s, _ := newTestServer()

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)

	assert.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/v1/owners/alice/start", "").Code)
	assert.Equal(t, "hello", drain(t, s, "alice")[0].Text)

	s.outbox.RecordJob(domain.JobEvent{JobID: "j1", OwnerID: "alice", State: domain.JobFetching})
	s.outbox.RecordJob(domain.JobEvent{JobID: "j1", OwnerID: "alice", State: domain.JobDone})

	rec := do(t, s, http.MethodGet, "/v1/owners/alice/job", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var evt domain.JobEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &evt))
	assert.Equal(t, domain.JobDone, evt.State)
}

func TestOutbox_DropsOldest(t *testing.T) {
	out := NewOutbox(2)
	ctx := context.Background()
	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, out.SendText(ctx, "alice", text))
	}
	msgs := out.Drain("alice")
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Text)
	assert.Equal(t, "three", msgs[1].Text)
}
