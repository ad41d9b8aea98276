package httpapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpaint/paints"
	"github.com/chatpaint/paints/pkg/httpapi"
)

const description = `{"id":"p1","name":"Sunset","function":"LINEAR_GRADIENT","angle":90,
	"stops":[{"at":0,"color":-16776961},{"at":1,"color":65535}]}`

type fakeReloader struct {
	err   error
	calls int
}

func (f *fakeReloader) Load(context.Context) error {
	f.calls++
	return f.err
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPaintLifecycle(t *testing.T) {
	registry := paints.NewRegistry(nil, nil)
	h := httpapi.New(registry, nil, nil)

	rec := do(t, h, http.MethodPost, "/paints", description)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"added":true}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/paints", description)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"added":false}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/paints/p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{
		"id":"p1","name":"Sunset","kind":"linear-gradient","repeat":false,"angle":90,
		"stops":[{"at":0,"color":"#ff0000ff"},{"at":1,"color":"#0000ffff"}],
		"drop_shadows":[]
	}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/users/forsen/paint", "").Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPut, "/users/forsen/paint/p1", "").Code)
	rec = do(t, h, http.MethodGet, "/users/forsen/paint", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "p1", decode(t, rec)["id"])

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/users/forsen/paint/p2", "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/users/forsen/paint/p1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/users/forsen/paint", "").Code)
}

func TestAssignUnknownPaint(t *testing.T) {
	h := httpapi.New(paints.NewRegistry(nil, nil), nil, nil)

	rec := do(t, h, http.MethodPut, "/users/forsen/paint/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "paint not found", decode(t, rec)["error"])
}

func TestAddPaintRejectsInvalidJSON(t *testing.T) {
	h := httpapi.New(paints.NewRegistry(nil, nil), nil, nil)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/paints", "{").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/paints/unknown", "").Code)
}

func TestHealth(t *testing.T) {
	registry := paints.NewRegistry(nil, nil)
	registry.LoadPaints(context.Background(), []byte(`{"paints":[`+
		`{"id":"a","function":"RADIAL_GRADIENT","users":["forsen","nymn"]},`+
		`{"id":"b","function":"LINEAR_GRADIENT","users":[]}]}`))

	rec := do(t, httpapi.New(registry, nil, nil), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","paints":2,"users":2}`, rec.Body.String())
}

func TestReload(t *testing.T) {
	registry := paints.NewRegistry(nil, nil)

	t.Run("not routed without a reloader", func(t *testing.T) {
		h := httpapi.New(registry, nil, nil)
		assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/reload", "").Code)
	})

	t.Run("success", func(t *testing.T) {
		reloader := &fakeReloader{}
		rec := do(t, httpapi.New(registry, reloader, nil), http.MethodPost, "/reload", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, reloader.calls)
	})

	t.Run("failure", func(t *testing.T) {
		reloader := &fakeReloader{err: errors.New("upstream down")}
		rec := do(t, httpapi.New(registry, reloader, nil), http.MethodPost, "/reload", "")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "upstream down", decode(t, rec)["error"])
	})
}

func TestMethodNotAllowed(t *testing.T) {
	h := httpapi.New(paints.NewRegistry(nil, nil), nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodDelete, "/paints/p1", "").Code)
}
