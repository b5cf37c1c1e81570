package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kickchoice/adapters/postgres"
	"kickchoice/app"
	"kickchoice/domain/core"
	"kickchoice/domain/run"
	"kickchoice/internal/config"
	"kickchoice/internal/errors"
	"kickchoice/internal/migration"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migration.NewRunner().Run(context.Background(), db))

	svc := app.NewEstimationService(postgres.NewRunRepository(db), config.EstimationConfig{
		Model:             "asc_only",
		Draws:             20,
		DrawMethod:        "halton",
		Seed:              1,
		MaxIterations:     100,
		GradientTolerance: 1e-6,
		Workers:           2,
		MaxConcurrentRuns: 2,
	})
	return NewRouter(NewEstimationHandler(svc, ""), NewSSEHub())
}

func do(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const shotsCSV = "Choice\n1\n2\n3\n4\n5\n6\n1\n2\n3\n4\n5\n6\n"

type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result struct {
		ModelName string `json:"model_name"`
		Estimates []struct {
			Name   string   `json:"name"`
			Fixed  bool     `json:"fixed"`
			StdErr *float64 `json:"std_err"`
			Lower  *float64 `json:"lower"`
		} `json:"estimates"`
		LogLikelihood float64 `json:"log_likelihood"`
	} `json:"result"`
}

func estimate(t *testing.T, router *gin.Engine) runResponse {
	t.Helper()
	w := do(t, router, http.MethodPost, "/api/estimate", EstimateRequest{Model: "asc_only", CSV: shotsCSV})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out runResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthAndModels(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = do(t, router, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var models struct {
		Models []ModelDTO `json:"models"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &models))
	require.Len(t, models.Models, 3)
	assert.Equal(t, "asc_and_covariates", models.Models[0].Name)
	assert.True(t, models.Models[2].Panel)
}

func TestEstimate_InlineCSV(t *testing.T) {
	router := newTestRouter(t)
	out := estimate(t, router)

	assert.Equal(t, string(run.StatusCompleted), out.Status)
	assert.Equal(t, "asc_only", out.Result.ModelName)
	assert.InDelta(t, 12*math.Log(1.0/6), out.Result.LogLikelihood, 1e-6)
	require.Len(t, out.Result.Estimates, 6)
	for _, e := range out.Result.Estimates {
		assert.Nil(t, e.Lower, "unbounded lower bound encodes as null")
		if e.Fixed {
			assert.Nil(t, e.StdErr, e.Name)
		} else {
			assert.NotNil(t, e.StdErr, e.Name)
		}
	}
}

func TestEstimate_BadRequests(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/estimate", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/estimate", EstimateRequest{Model: "asc_only"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/estimate", EstimateRequest{File: "shots.xlsx"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "disabled")

	w = do(t, router, http.MethodPost, "/api/estimate", EstimateRequest{Model: "nope", CSV: shotsCSV})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodPost, "/api/estimate", EstimateRequest{Model: "asc_only", CSV: "Choice\n1\n9\n"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var failed struct {
		Code string `json:"code"`
		Run  RunDTO `json:"run"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failed))
	assert.Equal(t, errors.CodeDataInvalid, failed.Code)
	assert.Equal(t, run.StatusFailed, failed.Run.Status)
}

func TestRuns_ListGetReport(t *testing.T) {
	router := newTestRouter(t)
	first := estimate(t, router)
	second := estimate(t, router)

	w := do(t, router, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs  []SummaryDTO `json:"runs"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)

	w = do(t, router, http.MethodGet, "/api/runs?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/runs/"+first.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), first.ID)

	w = do(t, router, http.MethodGet, "/api/runs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/runs/"+core.NewRunID().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodGet, "/api/runs/"+first.ID+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "# asc_only"))

	w = do(t, router, http.MethodGet, "/api/runs/"+first.ID+"/report?format=html", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<table>")

	w = do(t, router, http.MethodGet, "/api/runs/"+first.ID+"/report?format=xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = do(t, router, http.MethodGet, "/api/runs/"+first.ID+"/report?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/compare?ids="+first.ID+","+second.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"best":"asc_only"`)

	w = do(t, router, http.MethodGet, "/api/compare?ids="+first.ID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNumber_MarshalJSON(t *testing.T) {
	data, err := json.Marshal([]Number{1.5, Number(math.NaN()), Number(math.Inf(-1)), 0})
	require.NoError(t, err)
	assert.Equal(t, "[1.5,null,null,0]", string(data))
}

func TestSSEHub_PublishFilters(t *testing.T) {
	hub := NewSSEHub()
	a, b := core.NewRunID(), core.NewRunID()

	all := hub.Subscribe("")
	onlyA := hub.Subscribe(a.String())
	assert.Equal(t, 2, hub.ClientCount())

	hub.Publish(run.Event{RunID: a, Type: run.EventStarted})
	hub.Publish(run.Event{RunID: b, Type: run.EventStarted})

	assert.Len(t, all, 2)
	require.Len(t, onlyA, 1)
	assert.Equal(t, a, (<-onlyA).RunID)

	hub.Unsubscribe(onlyA)
	_, open := <-onlyA
	assert.False(t, open)
	hub.Unsubscribe(onlyA)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestSSEHub_FullBufferDrops(t *testing.T) {
	hub := NewSSEHub()
	ch := hub.Subscribe("")
	for i := 0; i < hub.buffer+5; i++ {
		hub.Publish(run.Event{RunID: core.NewRunID(), Type: run.EventCompleted})
	}
	assert.Len(t, ch, hub.buffer)
}
