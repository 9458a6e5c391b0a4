package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
	"github.com/LeonardoBeccarini/plant_env/internal/model/messages"
	"github.com/LeonardoBeccarini/plant_env/pkg/rabbitmq/rabbitmqtest"
)

type fakeWriteAPI struct {
	mu      sync.Mutex
	points  []*write.Point
	errs    chan error
	flushes int
}

func newFakeWriteAPI() *fakeWriteAPI { return &fakeWriteAPI{errs: make(chan error, 1)} }

func (f *fakeWriteAPI) WritePoint(p *write.Point) {
	f.mu.Lock()
	f.points = append(f.points, p)
	f.mu.Unlock()
}

func (f *fakeWriteAPI) Flush() {
	f.mu.Lock()
	f.flushes++
	f.mu.Unlock()
}

func (f *fakeWriteAPI) Errors() <-chan error { return f.errs }

func (f *fakeWriteAPI) written() []*write.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*write.Point(nil), f.points...)
}

type fakeQuerier struct {
	steps []messages.StepEvent
	err   error
}

func (f fakeQuerier) QueryLatest(context.Context, int) ([]messages.StepEvent, error) {
	return f.steps, f.err
}

type fakeConn bool

func (c fakeConn) IsConnectionOpen() bool { return bool(c) }

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) (bool, error) { return p.err == nil, p.err }

func fieldMap(p *write.Point) map[string]interface{} {
	out := map[string]interface{}{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func stepJSON(t *testing.T, plant string, step int, soil float64, ts time.Time) []byte {
	t.Helper()
	b, err := json.Marshal(messages.StepEvent{
		PlantID:   plant,
		EpisodeID: "ep",
		Step:      step,
		Action:    entities.Action{Pump: true},
		State:     entities.SensorState{SoilHumidity: soil, WaterLevel: 0.4, ElapsedMinutes: 12},
		Reward:    -3,
		Timestamp: ts,
	})
	require.NoError(t, err)
	return b
}

func newTestService(t *testing.T, q Querier) (*Service, *rabbitmqtest.Consumer, *fakeWriteAPI) {
	t.Helper()
	api := newFakeWriteAPI()
	cons := &rabbitmqtest.Consumer{}
	svc, err := NewService(cons, NewWriter(api, nil), q, nil)
	require.NoError(t, err)
	return svc, cons, api
}

func TestStepToPoint(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := StepToPoint(messages.StepEvent{
		PlantID: "p1", EpisodeID: "e1", Step: 3,
		Action: entities.Action{LED: true},
		State:  entities.SensorState{SoilHumidity: 48.5, ElapsedMinutes: 7},
		Reward: -1.5, Timestamp: ts,
	})
	assert.Equal(t, StepMeasurement, p.Name())
	assert.Equal(t, ts, p.Time())
	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "plant_id", p.TagList()[0].Key)
	assert.Equal(t, "p1", p.TagList()[0].Value)

	f := fieldMap(p)
	assert.Equal(t, "e1", f["episode_id"])
	assert.Equal(t, int64(3), f["step"])
	assert.Equal(t, true, f["led"])
	assert.Equal(t, false, f["pump"])
	assert.Equal(t, 48.5, f["soil_humidity"])
	assert.Equal(t, int64(7), f["elapsed_minutes"])
	assert.Equal(t, -1.5, f["reward"])
}

func TestSummaryToPoint(t *testing.T) {
	p := SummaryToPoint(messages.EpisodeSummary{PlantID: "p1", EpisodeID: "e1", Steps: 60, MeanReward: -4, PumpOn: 12})
	assert.Equal(t, EpisodeMeasurement, p.Name())
	assert.Len(t, p.TagList(), 2)
	f := fieldMap(p)
	assert.Equal(t, int64(60), f["steps"])
	assert.Equal(t, int64(12), f["pump_on"])
	assert.Equal(t, -4.0, f["mean_reward"])
}

func TestHandleRoutesByTopic(t *testing.T) {
	svc, cons, api := newTestService(t, nil)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, cons.Deliver("plant/p1/step", stepJSON(t, "p1", 1, 40, now)))
	require.NoError(t, cons.Deliver("plant/p1/step", stepJSON(t, "p1", 1, 40, now))) // redelivery
	require.NoError(t, cons.Deliver("plant/p1/step", stepJSON(t, "p1", 2, 41, now.Add(time.Second))))
	// out of order: older step does not replace the cache
	require.NoError(t, cons.Deliver("plant/p1/step", stepJSON(t, "p1", 0, 39, now.Add(-time.Second))))
	require.NoError(t, cons.Deliver("plant/p2/step", stepJSON(t, "", 1, 60, now))) // id from topic

	summary, _ := json.Marshal(messages.EpisodeSummary{PlantID: "p1", EpisodeID: "ep", Steps: 2})
	require.NoError(t, cons.Deliver("plant/p1/summary", summary))
	require.NoError(t, cons.Deliver("plant/p1/step", []byte("{oops")))
	require.NoError(t, cons.Deliver("plant/p1/other", []byte("{}")))

	assert.Len(t, api.written(), 5)
	assert.Equal(t, int64(4), svc.writer.Count(StepMeasurement))
	assert.Equal(t, int64(1), svc.writer.Count(EpisodeMeasurement))

	latest := svc.LatestCache()
	require.Len(t, latest, 2)
	assert.Equal(t, "p1", latest[0].PlantID)
	assert.Equal(t, 2, latest[0].Step)
	assert.Equal(t, "p2", latest[1].PlantID)
}

func TestWriterTracksErrors(t *testing.T) {
	api := newFakeWriteAPI()
	w := NewWriter(api, nil)
	assert.Greater(t, w.LastErrorAge(), time.Hour)

	api.errs <- errors.New("bucket not found")
	require.Eventually(t, func() bool { return w.LastErrorAge() < time.Minute }, time.Second, 5*time.Millisecond)

	var nilWriter *Writer
	assert.Greater(t, nilWriter.LastErrorAge(), time.Hour)
	assert.Zero(t, nilWriter.Count(StepMeasurement))
}

func TestStartFlushesOnShutdown(t *testing.T) {
	svc, _, api := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Start(ctx)
	assert.Equal(t, 1, api.flushes)
}

func TestHTTPLatest(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	fromInflux := []messages.StepEvent{{PlantID: "z", Step: 9}, {PlantID: "a", Step: 8}}

	cases := []struct {
		name       string
		querier    Querier
		query      string
		wantCode   int
		wantSource string
		wantPlants []string
	}{
		{"auto prefers influx", fakeQuerier{steps: fromInflux}, "", http.StatusOK, "influx", []string{"a", "z"}},
		{"auto falls back on error", fakeQuerier{err: errors.New("down")}, "", http.StatusOK, "cache", []string{"p1"}},
		{"auto falls back when empty", fakeQuerier{}, "?source=auto", http.StatusOK, "cache", []string{"p1"}},
		{"auto without querier", nil, "", http.StatusOK, "cache", []string{"p1"}},
		{"cache only", fakeQuerier{steps: fromInflux}, "?source=cache", http.StatusOK, "cache", []string{"p1"}},
		{"influx only", fakeQuerier{steps: fromInflux}, "?source=influx&minutes=5", http.StatusOK, "influx", []string{"a", "z"}},
		{"influx error", fakeQuerier{err: errors.New("down")}, "?source=influx", http.StatusBadGateway, "", nil},
		{"bad source", nil, "?source=disk", http.StatusBadRequest, "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, cons, _ := newTestService(t, tc.querier)
			require.NoError(t, cons.Deliver("plant/p1/step", stepJSON(t, "p1", 1, 40, now)))

			srv := httptest.NewServer(NewHTTPMux(svc, fakeConn(true), fakePinger{}))
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/data/latest" + tc.query)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.wantCode, resp.StatusCode)
			if tc.wantCode != http.StatusOK {
				return
			}
			assert.Equal(t, tc.wantSource, resp.Header.Get("X-Data-Source"))
			var got []messages.StepEvent
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			plants := make([]string, 0, len(got))
			for _, e := range got {
				plants = append(plants, e.PlantID)
			}
			assert.Equal(t, tc.wantPlants, plants)
		})
	}
}

func TestHTTPHealth(t *testing.T) {
	cases := []struct {
		name      string
		mqtt      ConnChecker
		influx    Pinger
		wantState string
		wantReady int
	}{
		{"all up", fakeConn(true), fakePinger{}, "ok", http.StatusOK},
		{"influx down", fakeConn(true), fakePinger{err: errors.New("refused")}, "degraded", http.StatusServiceUnavailable},
		{"mqtt down", fakeConn(false), fakePinger{}, "degraded", http.StatusServiceUnavailable},
		{"nothing", nil, nil, "down", http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _ := newTestService(t, nil)
			srv := httptest.NewServer(NewHTTPMux(svc, tc.mqtt, tc.influx))
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/healthz")
			require.NoError(t, err)
			var st struct {
				Status string `json:"status"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
			resp.Body.Close()
			assert.Equal(t, tc.wantState, st.Status)

			resp, err = http.Get(srv.URL + "/readyz")
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tc.wantReady, resp.StatusCode)
		})
	}
}
