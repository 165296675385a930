package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eslsoft/lexmatrix/internal/adapter/remote"
	"github.com/eslsoft/lexmatrix/internal/adapter/repository"
	"github.com/eslsoft/lexmatrix/internal/entity"
	"github.com/eslsoft/lexmatrix/internal/infrastructure/worker"
	"github.com/eslsoft/lexmatrix/internal/usecase"
)

const catTurtle = `@prefix ontolex: <http://www.w3.org/ns/lemon/ontolex#> .
@prefix lexinfo: <http://www.lexinfo.net/ontology/3.0/lexinfo#> .
@prefix skos: <http://www.w3.org/2004/02/skos/core#> .

<#cat-n> a ontolex:LexicalEntry ;
    ontolex:canonicalForm [ ontolex:writtenRep "cat"@en , "mačka"@sl ] ;
    ontolex:otherForm [ ontolex:writtenRep "cats"@en ] ;
    lexinfo:partOfSpeech lexinfo:commonNoun ;
    ontolex:sense <#cat-n-1> , <#cat-n-2> .
<#cat-n-1> skos:definition "a small domesticated carnivorous mammal"@en .
<#cat-n-2> skos:definition "a spiteful woman"@en .

<#cat-v> a ontolex:LexicalEntry ;
    ontolex:canonicalForm [ ontolex:writtenRep "cat"@en ] ;
    lexinfo:partOfSpeech lexinfo:verb ;
    ontolex:sense <#cat-v-1> , <#cat-v-2> .
<#cat-v-1> skos:definition "to raise an anchor to the cathead"@en .
<#cat-v-2> skos:definition "to vomit"@en .
`

type stubLinker struct {
	links []entity.SenseLink
	err   error
}

func (s stubLinker) Link(ctx context.Context, job *entity.LinkingJob) ([]entity.SenseLink, error) {
	return s.links, s.err
}

// inlineQueue runs jobs as they are submitted; hold keeps them pending instead.
type inlineQueue struct{ hold bool }

func (q inlineQueue) Submit(job worker.Job) error {
	if q.hold {
		return nil
	}
	return job(context.Background())
}

func newTestServer(t *testing.T, linker usecase.Linker, queue usecase.JobQueue) *httptest.Server {
	t.Helper()
	logger, _ := test.NewNullLogger()
	dictRepo := repository.NewDictionaryMemoryRepository()
	dicts := usecase.NewDictionaryUsecase(dictRepo, remote.NewClient(time.Second, 1<<20, logger), logger)
	linking := usecase.NewLinkingUsecase(repository.NewLinkingJobMemoryRepository(), dictRepo, linker, queue, logger)
	srv := httptest.NewServer(NewHandler(dicts, linking, logger).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func upload(t *testing.T, srv *httptest.Server, query, doc string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "cats.ttl")
	require.NoError(t, err)
	_, err = part.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/import?"+query, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func importCats(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := upload(t, srv, "release=PUBLIC&sourceLanguage=en", catTurtle)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var id string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&id))
	require.True(t, entity.ValidID(id))
	return id
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.String()
}

func post(t *testing.T, url, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.String()
}

func TestDictionaryEndpoints(t *testing.T) {
	srv := newTestServer(t, stubLinker{}, inlineQueue{})
	id := importCats(t, srv)

	resp, body := get(t, srv.URL+"/dictionaries")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"dictionaries":["`+id+`"]}`, body)

	resp, body = get(t, srv.URL+"/about/"+id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dict map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &dict))
	assert.Equal(t, "PUBLIC", dict["release"])

	resp, body = get(t, srv.URL+"/list/"+id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lemmas []entity.Lemma
	require.NoError(t, json.Unmarshal([]byte(body), &lemmas))
	require.Len(t, lemmas, 2)
	assert.Equal(t, entity.POSNoun, lemmas[0].PartOfSpeech)
	assert.Equal(t, entity.POSVerb, lemmas[1].PartOfSpeech)

	resp, body = get(t, srv.URL+"/list/"+id+"?offset=1&limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal([]byte(body), &lemmas))
	assert.Len(t, lemmas, 1)

	resp, body = get(t, srv.URL+"/list/"+id+"?limit=0")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lemmas = nil
	require.NoError(t, json.Unmarshal([]byte(body), &lemmas))
	assert.Empty(t, lemmas)

	resp, body = get(t, srv.URL+"/lemma/"+id+"/cat?limit=0")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lemmas = nil
	require.NoError(t, json.Unmarshal([]byte(body), &lemmas))
	assert.Empty(t, lemmas)

	resp, body = get(t, srv.URL+"/list/"+id+"?filter="+`partOfSpeech%20%3D%3D%20'VERB'`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal([]byte(body), &lemmas))
	require.Len(t, lemmas, 1)
	assert.Equal(t, entity.POSVerb, lemmas[0].PartOfSpeech)

	resp, body = get(t, srv.URL+"/lemma/"+id+"/cats?inflected=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal([]byte(body), &lemmas))
	require.Len(t, lemmas, 1)
	noun := lemmas[0]
	assert.Equal(t, "cat", noun.Lemma)

	resp, body = get(t, srv.URL+"/ontolex/"+id+"/"+noun.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/turtle; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, `"mačka"@sl`)

	resp, body = get(t, srv.URL+"/tei/"+id+"/"+noun.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/xml; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "<entry")

	resp, body = get(t, srv.URL+"/json/"+id+"/"+noun.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/ld+json; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "@context")

	resp, body = get(t, srv.URL+"/export/tei/"+id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "teiHeader")

	resp, body = get(t, srv.URL+"/context.jsonld")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "ontolex")
}

func TestDictionaryEndpoints_Errors(t *testing.T) {
	srv := newTestServer(t, stubLinker{}, inlineQueue{})
	id := importCats(t, srv)

	resp := upload(t, srv, "release=PUBLIC", "this is not a dictionary")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = upload(t, srv, "sourceLanguage=en", catTurtle)
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "validation_error", body.Error)
	assert.Equal(t, "release", body.Field)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"malformed id", "/about/cat", http.StatusBadRequest},
		{"unknown dictionary", "/about/" + entity.NewID(), http.StatusNotFound},
		{"unknown entry", "/json/" + id + "/" + entity.NewID(), http.StatusNotFound},
		{"bad filter", "/list/" + id + "?filter=size%20%3D%3D%20'1'", http.StatusUnprocessableEntity},
		{"bad offset", "/list/" + id + "?offset=-1", http.StatusUnprocessableEntity},
		{"unknown export format", "/export/csv/" + id, http.StatusUnprocessableEntity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := get(t, srv.URL+tc.path)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestLinkingEndpoints(t *testing.T) {
	links := []entity.SenseLink{{SourceEntry: "a", SourceSense: "a-0", TargetEntry: "b", TargetSense: "b-0", Type: entity.LinkExact, Score: 0.8}}
	srv := newTestServer(t, stubLinker{links: links}, inlineQueue{})
	src, tgt := importCats(t, srv), importCats(t, srv)

	resp, body := post(t, srv.URL+"/linking/submit", `{"source":{"id":"`+src+`"},"target":{"id":"`+tgt+`"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	var id string
	require.NoError(t, json.Unmarshal([]byte(body), &id))

	resp, body = post(t, srv.URL+"/linking/status", `"`+id+`"`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"state":"COMPLETED","message":"Completed with 1 links"}`, body)

	resp, body = post(t, srv.URL+"/linking/result", id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var grouped []entity.LinkingOneResult
	require.NoError(t, json.Unmarshal([]byte(body), &grouped))
	require.Len(t, grouped, 1)
	assert.Equal(t, links, grouped[0].Linking)
}

func TestLinkingEndpoints_Pending(t *testing.T) {
	srv := newTestServer(t, stubLinker{}, inlineQueue{hold: true})
	src := importCats(t, srv)

	_, body := post(t, srv.URL+"/linking/submit", `{"source":{"id":"`+src+`"},"target":{"id":"`+src+`"}}`)
	var id string
	require.NoError(t, json.Unmarshal([]byte(body), &id))

	resp, body := post(t, srv.URL+"/linking/result", `{"id":"`+id+`"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"state":"PROCESSING","message":"Still working ..."}`, body)
}

func TestLinkingEndpoints_Failed(t *testing.T) {
	srv := newTestServer(t, stubLinker{err: &entity.LinkingFailure{Msg: "linking engine exited with code 3"}}, inlineQueue{})
	src := importCats(t, srv)

	_, body := post(t, srv.URL+"/linking/submit", `{"source":{"id":"`+src+`"},"target":{"id":"`+src+`"}}`)
	var id string
	require.NoError(t, json.Unmarshal([]byte(body), &id))

	resp, body := post(t, srv.URL+"/linking/result", `"`+id+`"`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var eb errorBody
	require.NoError(t, json.Unmarshal([]byte(body), &eb))
	assert.Equal(t, "linking_failed", eb.Error)
	assert.Equal(t, "linking engine exited with code 3", eb.Message)
}

func TestLinkingEndpoints_Validation(t *testing.T) {
	srv := newTestServer(t, stubLinker{}, inlineQueue{})

	resp, _ := post(t, srv.URL+"/linking/submit", `{"source":{"id":"babelnet"},"target":{"id":"babelnet"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = post(t, srv.URL+"/linking/submit", `{not json`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = post(t, srv.URL+"/linking/status", `"nope"`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = post(t, srv.URL+"/linking/status", entity.NewID())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&entity.ParseError{Format: "turtle", Msg: "bad"}, http.StatusUnprocessableEntity},
		{&entity.ValidationError{Field: "release", Msg: "missing"}, http.StatusUnprocessableEntity},
		{entity.ErrDictionaryNotFound, http.StatusNotFound},
		{entity.ErrNotReady, http.StatusAccepted},
		{entity.ErrInvalidID, http.StatusBadRequest},
		{&entity.LinkingFailure{Msg: "boom"}, http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, StatusOf(tc.err), tc.err.Error())
	}
}
