package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/eslsoft/lexmatrix/internal/adapter/format"
	"github.com/eslsoft/lexmatrix/internal/entity"
	"github.com/eslsoft/lexmatrix/internal/repository"
	"github.com/eslsoft/lexmatrix/internal/usecase"
)

const _multipartMemory = 32 << 20

// Handler serves the dictionary and linking API.
type Handler struct {
	dicts   usecase.DictionaryUsecase
	linking usecase.LinkingUsecase
	logger  logrus.FieldLogger
}

func NewHandler(dicts usecase.DictionaryUsecase, linking usecase.LinkingUsecase, logger logrus.FieldLogger) *Handler {
	return &Handler{dicts: dicts, linking: linking, logger: logger}
}

// Routes registers every endpoint on a fresh mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /context.jsonld", h.jsonLDContext)

	mux.HandleFunc("POST /import", h.importDocument)
	mux.HandleFunc("POST /import/api", h.importRemote)
	mux.HandleFunc("GET /dictionaries", h.listDictionaries)
	mux.HandleFunc("GET /about/{dictionary}", h.about)
	mux.HandleFunc("GET /list/{dictionary}", h.list)
	mux.HandleFunc("GET /lemma/{dictionary}/{headword}", h.lemma)
	for _, f := range entity.ExportFormats {
		mux.HandleFunc(fmt.Sprintf("GET /%s/{dictionary}/{entry}", f), h.exportEntry(f))
	}
	mux.HandleFunc("GET /export/{format}/{dictionary}", h.exportDictionary)

	mux.HandleFunc("POST /linking/submit", h.linkingSubmit)
	mux.HandleFunc("POST /linking/status", h.linkingStatus)
	mux.HandleFunc("POST /linking/result", h.linkingResult)
	return mux
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) jsonLDContext(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/ld+json; charset=utf-8")
	_, _ = w.Write(format.JSONLDContext())
}

func (h *Handler) importDocument(w http.ResponseWriter, r *http.Request) {
	req := &usecase.ImportRequest{URL: strings.TrimSpace(r.URL.Query().Get("url"))}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(_multipartMemory); err != nil {
			writeError(w, &entity.ValidationError{Field: "file", Msg: err.Error()})
			return
		}
		if file, _, err := r.FormFile("file"); err == nil {
			defer file.Close()
			req.Body = file
		}
		if req.URL == "" {
			req.URL = strings.TrimSpace(r.FormValue("url"))
		}
	} else if req.URL == "" && r.ContentLength != 0 {
		req.Body = r.Body
	}

	f, err := format.ParseFormat(r.FormValue("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	req.Format = f
	req.TargetID = r.FormValue("dictionary")
	req.Release = r.FormValue("release")
	req.SourceLanguage = r.FormValue("sourceLanguage")
	req.TargetLanguages = formValues(r, "targetLanguage")
	req.Genres = formValues(r, "genre")

	dict, err := h.dicts.Import(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dict.ID)
}

type remoteImportBody struct {
	URL              string `json:"url"`
	RemoteDictionary string `json:"remote_dictionary"`
	RemoteAPIKey     string `json:"remote_api_key"`
	Dictionary       string `json:"dictionary"`
}

func (h *Handler) importRemote(w http.ResponseWriter, r *http.Request) {
	var body remoteImportBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	dict, err := h.dicts.ImportRemote(r.Context(), &usecase.RemoteImportRequest{
		Endpoint:     body.URL,
		DictionaryID: body.RemoteDictionary,
		APIKey:       body.RemoteAPIKey,
		TargetID:     body.Dictionary,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dict.ID)
}

func (h *Handler) listDictionaries(w http.ResponseWriter, r *http.Request) {
	ids, err := h.dicts.ListDictionaries(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"dictionaries": ids})
}

func (h *Handler) about(w http.ResponseWriter, r *http.Request) {
	dict, err := h.dicts.Describe(r.Context(), r.PathValue("dictionary"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dict)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	lemmas, err := h.dicts.ListEntries(r.Context(), &repository.ListEntriesQuery{
		DictionaryID: r.PathValue("dictionary"),
		Pagination:   page,
		FilterOrder:  repository.FilterOrder{Filter: q.Get("filter"), OrderBy: q.Get("order_by")},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lemmas)
}

func (h *Handler) lemma(w http.ResponseWriter, r *http.Request) {
	page, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	inflected := false
	if raw := q.Get("inflected"); raw != "" {
		if inflected, err = strconv.ParseBool(raw); err != nil {
			writeError(w, &entity.ValidationError{Field: "inflected", Msg: fmt.Sprintf("not a boolean: %q", raw)})
			return
		}
	}
	lemmas, err := h.dicts.Lookup(r.Context(), &repository.HeadwordQuery{
		DictionaryID: r.PathValue("dictionary"),
		Headword:     r.PathValue("headword"),
		PartOfSpeech: entity.PartOfSpeech(q.Get("partOfSpeech")),
		Inflected:    inflected,
		Pagination:   page,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lemmas)
}

func (h *Handler) exportEntry(f entity.ExportFormat) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := h.dicts.ExportEntry(r.Context(), r.PathValue("dictionary"), r.PathValue("entry"), f, &buf); err != nil {
			writeError(w, err)
			return
		}
		writeDocument(w, f, &buf)
	}
}

func (h *Handler) exportDictionary(w http.ResponseWriter, r *http.Request) {
	f, err := format.ParseExportFormat(r.PathValue("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := h.dicts.ExportDictionary(r.Context(), r.PathValue("dictionary"), f, &buf); err != nil {
		writeError(w, err)
		return
	}
	writeDocument(w, f, &buf)
}

func writeDocument(w http.ResponseWriter, f entity.ExportFormat, body *bytes.Buffer) {
	w.Header().Set("Content-Type", format.ContentType(f))
	w.Header().Set("Content-Length", strconv.Itoa(body.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = body.WriteTo(w)
}

func pagination(r *http.Request) (repository.Pagination, error) {
	q := r.URL.Query()
	var page repository.Pagination
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, &entity.ValidationError{Field: "offset", Msg: fmt.Sprintf("not a non-negative integer: %q", raw)}
		}
		page.Offset = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, &entity.ValidationError{Field: "limit", Msg: fmt.Sprintf("not a non-negative integer: %q", raw)}
		}
		page.Limit = &n
	}
	return page, nil
}

// formValues accepts repeated parameters as well as comma separated lists.
func formValues(r *http.Request, key string) []string {
	var out []string
	for _, raw := range r.Form[key] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func decodeJSON(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &entity.ValidationError{Field: "body", Msg: err.Error()}
	}
	return nil
}
