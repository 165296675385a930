package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eslsoft/lexmatrix/internal/entity"
)

func newTestClient(t *testing.T, maxBytes int64, h http.HandlerFunc) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	logger, _ := test.NewNullLogger()
	return NewClient(time.Second, maxBytes, logger), srv.URL
}

func TestClient_RemoteDictionary(t *testing.T) {
	var keys []string
	client, endpoint := newTestClient(t, 1<<20, func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get(APIKeyHeader))
		switch r.URL.Path {
		case "/about/d1":
			_ = json.NewEncoder(w).Encode(map[string]any{"release": "PUBLIC", "sourceLanguage": "en", "title": "Remote"})
		case "/list/d1":
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"lemma": "cat", "id": "e1", "partOfSpeech": "NOUN", "formats": []string{"json", "tei", "ontolex"}},
				{"lemma": "dog", "id": "e2", "partOfSpeech": "NOUN", "formats": []string{"tei"}, "release": "PRIVATE"},
			})
		case "/ontolex/d1/e1":
			_, _ = w.Write([]byte("<#e1> a <http://www.w3.org/ns/lemon/ontolex#LexicalEntry> ."))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	dict, err := client.About(ctx, endpoint, "d1", "secret")
	require.NoError(t, err)
	assert.Equal(t, entity.ReleasePublic, dict.Release)
	assert.Equal(t, "Remote", dict.Title)

	lemmas, err := client.List(ctx, endpoint, "d1", "secret")
	require.NoError(t, err)
	require.Len(t, lemmas, 2)
	assert.Equal(t, entity.ReleasePolicy("PRIVATE"), lemmas[1].Release)

	data, err := client.Entry(ctx, endpoint, entity.ExportOntolex, "d1", "e1", "secret")
	require.NoError(t, err)
	assert.Contains(t, string(data), "LexicalEntry")

	_, err = client.Entry(ctx, endpoint, entity.ExportJSON, "d1", "e1", "secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")

	assert.Equal(t, []string{"secret", "secret", "secret", "secret"}, keys)
}

func TestClient_Fetch(t *testing.T) {
	client, endpoint := newTestClient(t, 16, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/big" {
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
			return
		}
		_, _ = w.Write([]byte("small"))
	})
	ctx := context.Background()

	data, err := client.Fetch(ctx, endpoint+"/small", "")
	require.NoError(t, err)
	assert.Equal(t, "small", string(data))

	_, err = client.Fetch(ctx, endpoint+"/big", "")
	var ve *entity.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "url", ve.Field)

	_, err = client.Fetch(ctx, "ftp://example.org/dict.ttl", "")
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Msg, "unsupported url")
}
