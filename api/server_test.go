package api

import (
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clap-trainer/pattern"
	"clap-trainer/quiz"
	"clap-trainer/store"
)

type fixture struct {
	handler http.Handler
	records []quiz.Record
	custom  pattern.Preset
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	presets := store.NewPresets(store.NewMemoryKV())
	history := store.NewHistory(store.NewMemoryKV(), 0)

	custom := pattern.NewCustom("Mine", pattern.FromIndices(0, 2), false, time.UnixMilli(42))
	require.NoError(t, presets.Save(custom))

	var records []quiz.Record
	for i, name := range []string{"Step-Step (×4)", "Mine", "Step-Step (×4)"} {
		ev := quiz.Evaluation{Accuracy: float64(60 + 10*i)}
		r := quiz.NewRecord(name, 120, false, pattern.FromIndices(0), ev, time.UnixMilli(int64(i)))
		require.NoError(t, history.Append(r))
		records = append(records, r)
	}
	srv := New(presets, history)
	srv.rng = rand.New(rand.NewSource(1))
	return &fixture{handler: srv.Handler(nil), records: records, custom: custom}
}

func (f *fixture) get(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Origin", "http://dashboard.local")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	resp := w.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(body, out), string(body))
	}
	return resp
}

func TestPresets(t *testing.T) {
	f := newFixture(t)

	var all []pattern.Preset
	resp := f.get(t, "/presets", &all)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Len(t, all, len(pattern.BuiltIns())+1)
	assert.Equal(t, "Mine", all[len(all)-1].Name)

	var one pattern.Preset
	resp = f.get(t, "/presets/"+f.custom.ID, &one)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, one.IsCustom)

	resp = f.get(t, "/presets/triple-step", &one)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Triple Step (×4)", one.Name)

	resp = f.get(t, "/presets/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)

	var records []quiz.Record
	f.get(t, "/history", &records)
	require.Len(t, records, 3)
	assert.Equal(t, f.records[2].ID, records[0].ID, "newest first")

	f.get(t, "/history?limit=1", &records)
	assert.Len(t, records, 1)

	f.get(t, "/history?pattern=Step-Step%20(%C3%974)", &records)
	assert.Len(t, records, 2)

	resp := f.get(t, "/history?limit=-2", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var rec quiz.Record
	resp = f.get(t, "/history/"+f.records[1].ID, &rec)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Mine", rec.PatternName)

	resp = f.get(t, "/history/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	var stats store.Stats
	resp := f.get(t, "/history/stats", &stats)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, store.Stats{Total: 3, AverageAccuracy: 70, BestAccuracy: 80}, stats)
}

func TestQuestion(t *testing.T) {
	f := newFixture(t)
	var p pattern.Pattern
	resp := f.get(t, "/questions/medium", &p)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, p.IsEmpty())

	resp = f.get(t, "/questions/impossible", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReadOnly(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodDelete, "/history/"+f.records[0].ID, nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
