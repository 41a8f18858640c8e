package apify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"tunegrab/internal/core/domain"
)

const datasetItems = `[
  {"id":"aaa111","title":"Afternoon Tea","url":"https://www.youtube.com/watch?v=aaa111","duration":"3:35","channelName":"Band"},
  {"title":"no id, skipped"},
  {"id":"bbb222","title":"  ","duration":"01:02:05"},
  {"id":"ccc333","title":"Third","duration":"live"}
]`

func newApifyServer(t *testing.T, finalStatus string) (*httptest.Server, *[]byte) {
	t.Helper()
	var (
		polls int32
		input []byte
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/acts/"+youtubeSearchActorID+"/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		input, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"run1"}}`))
	})
	mux.HandleFunc("/actor-runs/run1", func(w http.ResponseWriter, r *http.Request) {
		status := "RUNNING"
		if atomic.AddInt32(&polls, 1) > 1 {
			status = finalStatus
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"status": status, "defaultDatasetId": "ds1"},
		})
	})
	mux.HandleFunc("/datasets/ds1/items", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(datasetItems))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &input
}

func TestSearcher_Search(t *testing.T) {
	srv, input := newApifyServer(t, "SUCCEEDED")
	s, err := NewSearcher("secret", WithBaseURL(srv.URL+"/"), WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	items, err := s.Search(context.Background(), "afternoon", 5)
	require.NoError(t, err)

	assert.Equal(t, "afternoon", gjson.GetBytes(*input, "searchQueries.0").String())
	assert.Equal(t, int64(5), gjson.GetBytes(*input, "maxResults").Int())

	require.Len(t, items, 3)
	assert.Equal(t, "aaa111", items[0].ExternalID)
	assert.Equal(t, "Band", items[0].Uploader)
	require.NotNil(t, items[0].DurationSeconds)
	assert.Equal(t, 215, *items[0].DurationSeconds)

	assert.Equal(t, 1, items[1].Index)
	assert.Equal(t, "Unknown title", items[1].Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=bbb222", items[1].SourceRef)
	assert.Equal(t, 3725, *items[1].DurationSeconds)

	assert.Nil(t, items[2].DurationSeconds)
}

func TestSearcher_Limit(t *testing.T) {
	srv, _ := newApifyServer(t, "SUCCEEDED")
	s, err := NewSearcher("secret", WithBaseURL(srv.URL), WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	items, err := s.Search(context.Background(), "afternoon", 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestSearcher_RunFailed(t *testing.T) {
	srv, _ := newApifyServer(t, "ABORTED")
	s, err := NewSearcher("secret", WithBaseURL(srv.URL), WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "afternoon", 5)
	var searchErr *domain.SearchError
	require.True(t, errors.As(err, &searchErr))
	assert.Equal(t, "afternoon", searchErr.Query)
	assert.ErrorContains(t, err, "ABORTED")
}

func TestSearcher_StartRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s, err := NewSearcher("secret", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	_, err = s.Search(context.Background(), "afternoon", 5)
	assert.ErrorContains(t, err, "status 401")
}

func TestNewSearcher_RequiresToken(t *testing.T) {
	_, err := NewSearcher("")
	assert.Error(t, err)
}
