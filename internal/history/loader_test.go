package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studygroup-chat/internal/apiclient"
)

func newTestLoader(t *testing.T, handler http.HandlerFunc) *Loader {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	api, err := apiclient.New(srv.URL+"/api", apiclient.StaticToken("tok"))
	require.NoError(t, err)
	return NewLoader(api)
}

func TestFetchHistoryReturnsOldestFirst(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	loader := newTestLoader(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Messages retrieved successfully","messages":[
			{"id":3,"content":"third","type":"TEXT","timestamp":"2024-05-01T10:03:00Z"},
			{"id":2,"content":"second","type":"TEXT","timestamp":"2024-05-01T10:02:00Z"},
			{"id":1,"content":"first","type":"TEXT","timestamp":"2024-05-01T10:01:00Z"}]}`))
	})

	msgs, err := loader.FetchHistory(context.Background(), 42, -1, 0)
	require.NoError(t, err)

	assert.Equal(t, "/api/chat/42/messages", gotPath)
	assert.Equal(t, "page=0&size=50", gotQuery)
	assert.Equal(t, "Bearer tok", gotAuth)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
}

func TestFetchHistoryPassesPaging(t *testing.T) {
	var gotQuery string
	loader := newTestLoader(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"messages":[]}`))
	})

	msgs, err := loader.FetchHistory(context.Background(), 7, 2, 20)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.NotNil(t, msgs)
	assert.Equal(t, "page=2&size=20", gotQuery)
}

func TestFetchHistoryReportsAPIError(t *testing.T) {
	loader := newTestLoader(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"you are not a member of this group"}`))
	})

	msgs, err := loader.FetchHistory(context.Background(), 42, 0, 50)
	require.Error(t, err)
	assert.Nil(t, msgs)
	assert.True(t, apiclient.IsStatus(err, http.StatusForbidden))
	assert.Contains(t, err.Error(), "not a member")
}
