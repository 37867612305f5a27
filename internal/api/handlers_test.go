package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/config"
	"github.com/campaign-insights/backend/internal/dataset"
	"github.com/campaign-insights/backend/internal/models"
	"github.com/campaign-insights/backend/internal/session"
	"github.com/campaign-insights/backend/internal/testutil"
	"github.com/campaign-insights/backend/internal/upload"
)

type fakeLoader struct {
	ds      *models.Dataset
	version string
}

func (l *fakeLoader) LoadVersion(ctx context.Context) (*models.Dataset, string) {
	if l.ds == nil {
		return nil, ""
	}
	return l.ds, l.version
}

func (l *fakeLoader) Version(ctx context.Context) string {
	if l.ds == nil {
		return ""
	}
	return l.version
}

type fakeProcessor struct {
	batch  *upload.Batch
	result *dataset.MergeResult
	err    error
	got    []*models.FileInfo
}

func (p *fakeProcessor) Process(ctx context.Context, files []*models.FileInfo) (*upload.Batch, *dataset.MergeResult, error) {
	p.got = files
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.batch, p.result, nil
}

func (p *fakeProcessor) GetBatch(id string) (*upload.Batch, bool) {
	if p.batch != nil && p.batch.ID == id {
		return p.batch, true
	}
	return nil, false
}

func (p *fakeProcessor) ListBatches(limit int) []*upload.Batch {
	if p.batch == nil {
		return []*upload.Batch{}
	}
	return []*upload.Batch{p.batch}
}

type fakeRouter struct {
	resp   *models.QueryResponse
	err    error
	prompt string
	rows   int
}

func (r *fakeRouter) Route(ctx context.Context, src dataset.Source, prompt string) (*models.QueryResponse, error) {
	r.prompt = prompt
	r.rows = src.Dataset().RowCount()
	return r.resp, r.err
}

func campaignDataset() *models.Dataset {
	return &models.Dataset{
		Columns: []string{"Campaign", "Clicks"},
		Rows: [][]string{
			{"Spring", "10"},
			{"Summer", "20"},
			{"Autumn", "30"},
		},
	}
}

func newSessions(t *testing.T, ds *models.Dataset) *session.Manager {
	t.Helper()
	mgr := session.NewManager(&fakeLoader{ds: ds, version: "v1"}, dataset.DuckOptions{Threads: 1}, zap.NewNop())
	t.Cleanup(mgr.Close)
	return mgr
}

func multipartBody(t *testing.T, names ...string) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for _, name := range names {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("Campaign,Clicks\nSpring,10\n"))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func newServer(t *testing.T, deps *Dependencies) *echo.Echo {
	t.Helper()
	e := echo.New()
	SetupMiddleware(e, config.ServerConfig{EnableRequestLogging: true}, zap.NewNop())
	RegisterRoutes(e, NewHandlers(deps))
	return e
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestUploadHandler_HandleUpload(t *testing.T) {
	t.Run("concatenates files", func(t *testing.T) {
		store := testutil.NewMockStorage(t.TempDir())
		merged := campaignDataset()
		processor := &fakeProcessor{
			batch:  &upload.Batch{ID: "batch-1", Status: upload.StatusComplete},
			result: &dataset.MergeResult{Dataset: merged, Version: "v2", OutputFile: "/runtime/concatenated_file.xlsx"},
		}
		h := NewUploadHandler(store, processor, 60, zap.NewNop())

		e := echo.New()
		body, contentType := multipartBody(t, "a.csv", "b.csv")
		req := httptest.NewRequest(http.MethodPost, "/upload/", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if assert.NoError(t, h.HandleUpload(c)) {
			assert.Equal(t, http.StatusOK, rec.Code)

			var resp uploadResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, MessageConcatenated, resp.Message)
			assert.Equal(t, "/runtime/concatenated_file.xlsx", resp.OutputFile)
			assert.Equal(t, "batch-1", resp.BatchID)
			assert.Equal(t, 3, resp.Rows)
			assert.Equal(t, []string{"Campaign", "Clicks"}, resp.Columns)
		}
		require.Len(t, processor.got, 2)
		assert.Equal(t, "a.csv", processor.got[0].Name)
		assert.Equal(t, "b.csv", processor.got[1].Name)
		assert.Equal(t, 2, store.SaveCount())
	})

	t.Run("validation failure is a bad request", func(t *testing.T) {
		store := testutil.NewMockStorage(t.TempDir())
		processor := &fakeProcessor{err: &dataset.ValidationError{File: "b.csv", Message: "File b.csv has a different structure."}}
		h := NewUploadHandler(store, processor, 60, zap.NewNop())

		e := echo.New()
		body, contentType := multipartBody(t, "a.csv", "b.csv")
		req := httptest.NewRequest(http.MethodPost, "/upload/", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		c := e.NewContext(req, httptest.NewRecorder())

		err := h.HandleUpload(c)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Equal(t, "File b.csv has a different structure.", apiErr.Message)
	})

	t.Run("upload in progress is a conflict", func(t *testing.T) {
		store := testutil.NewMockStorage(t.TempDir())
		processor := &fakeProcessor{err: upload.ErrUploadInProgress}
		h := NewUploadHandler(store, processor, 60, zap.NewNop())

		e := echo.New()
		body, contentType := multipartBody(t, "a.csv")
		req := httptest.NewRequest(http.MethodPost, "/upload/", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		c := e.NewContext(req, httptest.NewRecorder())

		err := h.HandleUpload(c)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusConflict, apiErr.Status)
	})

	t.Run("processing failure is an internal error", func(t *testing.T) {
		store := testutil.NewMockStorage(t.TempDir())
		processor := &fakeProcessor{err: errors.New("disk full")}
		h := NewUploadHandler(store, processor, 60, zap.NewNop())

		e := echo.New()
		body, contentType := multipartBody(t, "a.csv")
		req := httptest.NewRequest(http.MethodPost, "/upload/", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		c := e.NewContext(req, httptest.NewRecorder())

		err := h.HandleUpload(c)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
		assert.Equal(t, "Error concatenating files.", apiErr.Message)
		assert.Equal(t, "disk full", apiErr.Details)
	})

	t.Run("save failure removes saved files", func(t *testing.T) {
		store := testutil.NewMockStorage(t.TempDir())
		store.SaveErr = errors.New("read-only")
		processor := &fakeProcessor{}
		h := NewUploadHandler(store, processor, 60, zap.NewNop())

		e := echo.New()
		body, contentType := multipartBody(t, "a.csv")
		req := httptest.NewRequest(http.MethodPost, "/upload/", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		c := e.NewContext(req, httptest.NewRecorder())

		err := h.HandleUpload(c)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
		assert.Nil(t, processor.got)
	})
}

func TestUploadLimitThroughRouter(t *testing.T) {
	store := testutil.NewMockStorage(t.TempDir())
	processor := &fakeProcessor{}
	e := newServer(t, &Dependencies{
		Store:    store,
		Sessions: newSessions(t, nil),
		Uploads:  processor,
		Router:   &fakeRouter{},
		MaxFiles: 60,
	})

	names := make([]string, 61)
	for i := range names {
		names[i] = fmt.Sprintf("export_%02d.csv", i)
	}
	body, contentType := multipartBody(t, names...)
	req := httptest.NewRequest(http.MethodPost, "/upload/", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "You can upload a maximum of 60 files.", decodeAPIError(t, rec).Message)
	assert.Equal(t, 0, store.SaveCount())
	assert.Nil(t, processor.got)
}

func TestUploadHandler_Batches(t *testing.T) {
	processor := &fakeProcessor{batch: &upload.Batch{ID: "batch-1", Status: upload.StatusComplete, CreatedAt: time.Now()}}
	h := NewUploadHandler(testutil.NewMockStorage(t.TempDir()), processor, 60, zap.NewNop())
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/uploads", nil)
	rec := httptest.NewRecorder()
	if assert.NoError(t, h.HandleListBatches(e.NewContext(req, rec))) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"id":"batch-1"`)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/uploads/batch-1", nil)
	rec = httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("batchId")
	c.SetParamValues("batch-1")
	if assert.NoError(t, h.HandleGetBatch(c)) {
		assert.Contains(t, rec.Body.String(), `"status":"complete"`)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/uploads/missing", nil), httptest.NewRecorder())
	c.SetParamNames("batchId")
	c.SetParamValues("missing")
	err := h.HandleGetBatch(c)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestQueryHandler(t *testing.T) {
	postQuery := func(e *echo.Echo, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/query/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	t.Run("answers prompt", func(t *testing.T) {
		router := &fakeRouter{resp: &models.QueryResponse{Response: "Summer had 20 clicks."}}
		e := newServer(t, &Dependencies{Sessions: newSessions(t, campaignDataset()), Router: router, MaxFiles: 60})

		rec := postQuery(e, `{"prompt":"  clicks for Summer? "}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"response":"Summer had 20 clicks."}`, rec.Body.String())
		assert.Equal(t, "clicks for Summer?", router.prompt)
		assert.Equal(t, 3, router.rows)
	})

	t.Run("returns image", func(t *testing.T) {
		router := &fakeRouter{resp: &models.QueryResponse{Response: models.VisualizationStatus, Image: "iVBORw0KGgo="}}
		e := newServer(t, &Dependencies{Sessions: newSessions(t, campaignDataset()), Router: router, MaxFiles: 60})

		rec := postQuery(e, `{"prompt":"plot clicks"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"image":"iVBORw0KGgo="`)
	})

	t.Run("empty prompt", func(t *testing.T) {
		e := newServer(t, &Dependencies{Sessions: newSessions(t, campaignDataset()), Router: &fakeRouter{}, MaxFiles: 60})

		rec := postQuery(e, `{"prompt":"   "}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeAPIError(t, rec).Code)
	})

	t.Run("no dataset", func(t *testing.T) {
		router := &fakeRouter{}
		e := newServer(t, &Dependencies{Sessions: newSessions(t, nil), Router: router, MaxFiles: 60})

		rec := postQuery(e, `{"prompt":"how many clicks?"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, MessageNoDataset, decodeAPIError(t, rec).Message)
		assert.Empty(t, router.prompt)
	})

	t.Run("no dataset wins over an empty prompt", func(t *testing.T) {
		e := newServer(t, &Dependencies{Sessions: newSessions(t, nil), Router: &fakeRouter{}, MaxFiles: 60})

		for _, body := range []string{`{"prompt":""}`, `{"prompt":"   "}`, `{}`} {
			rec := postQuery(e, body)
			assert.Equal(t, http.StatusNotFound, rec.Code, body)
			assert.Equal(t, MessageNoDataset, decodeAPIError(t, rec).Message, body)
		}
	})

	t.Run("routing failure", func(t *testing.T) {
		router := &fakeRouter{err: errors.New("LLM query failed: timeout")}
		e := newServer(t, &Dependencies{Sessions: newSessions(t, campaignDataset()), Router: router, MaxFiles: 60})

		rec := postQuery(e, `{"prompt":"how many clicks?"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		apiErr := decodeAPIError(t, rec)
		assert.Equal(t, "Error processing query: LLM query failed: timeout", apiErr.Message)
		assert.Equal(t, "LLM query failed: timeout", apiErr.Details)
	})
}

func TestDatasetHandler(t *testing.T) {
	e := echo.New()

	t.Run("rows page", func(t *testing.T) {
		h := NewDatasetHandler(newSessions(t, campaignDataset()))
		req := httptest.NewRequest(http.MethodGet, "/api/dataset/rows?page=2&pageSize=2", nil)
		rec := httptest.NewRecorder()
		if assert.NoError(t, h.HandleRows(e.NewContext(req, rec))) {
			var resp rowsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, [][]string{{"Autumn", "30"}}, resp.Rows)
			assert.Equal(t, 3, resp.Total)
			assert.Equal(t, 2, resp.Page)
			assert.Equal(t, "v1", resp.Version)
		}
	})

	t.Run("rows msgpack", func(t *testing.T) {
		h := NewDatasetHandler(newSessions(t, campaignDataset()))
		req := httptest.NewRequest(http.MethodGet, "/api/dataset/rows/msgpack", nil)
		rec := httptest.NewRecorder()
		if assert.NoError(t, h.HandleRowsMsgpack(e.NewContext(req, rec))) {
			assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))
			var resp rowsResponse
			require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, []string{"Campaign", "Clicks"}, resp.Columns)
			assert.Len(t, resp.Rows, 3)
			assert.Equal(t, 100, resp.PageSize)
		}
	})

	t.Run("summary", func(t *testing.T) {
		h := NewDatasetHandler(newSessions(t, campaignDataset()))
		req := httptest.NewRequest(http.MethodGet, "/api/dataset/summary", nil)
		rec := httptest.NewRecorder()
		if assert.NoError(t, h.HandleSummary(e.NewContext(req, rec))) {
			var resp models.DatasetSummary
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, 3, resp.RowCount)
			require.Len(t, resp.Columns, 2)
			assert.Equal(t, "Campaign", resp.Columns[0].Name)
			assert.Equal(t, "Clicks", resp.Columns[1].Name)
			require.NotNil(t, resp.Columns[1].Mean)
			assert.InDelta(t, 20.0, *resp.Columns[1].Mean, 1e-9)
		}
	})

	t.Run("no dataset", func(t *testing.T) {
		h := NewDatasetHandler(newSessions(t, nil))
		req := httptest.NewRequest(http.MethodGet, "/api/dataset/summary", nil)
		err := h.HandleSummary(e.NewContext(req, httptest.NewRecorder()))
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
		assert.Equal(t, MessageNoDataset, apiErr.Message)
	})
}

func TestHealthHandler(t *testing.T) {
	sessions := newSessions(t, campaignDataset())
	sessions.Publish(campaignDataset(), "v7")
	h := NewHealthHandler("1.2.3", sessions)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	if assert.NoError(t, h.HandleHealth(e.NewContext(req, rec))) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","version":"1.2.3","dataset":"v7"}`, rec.Body.String())
	}
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "validation", err: &dataset.ValidationError{Message: "bad"}, wantStatus: http.StatusBadRequest},
		{name: "no dataset", err: session.ErrNoDataset, wantStatus: http.StatusNotFound},
		{name: "wrapped conflict", err: errors.Join(errors.New("x"), upload.ErrUploadInProgress), wantStatus: http.StatusConflict},
		{name: "api error passes through", err: NewValidationError("prompt"), wantStatus: http.StatusBadRequest},
		{name: "other", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, translateError(tt.err, "failed").Status)
		})
	}
}
