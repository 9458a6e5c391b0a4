package persistence

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/query"

	"github.com/LeonardoBeccarini/plant_env/internal/model/messages"
)

// InfluxQuerier reads plant_step points back with Flux.
type InfluxQuerier struct {
	client influxdb2.Client
	org    string
	bucket string
}

var _ Querier = (*InfluxQuerier)(nil)

func NewInfluxQuerier(client influxdb2.Client, org, bucket string) *InfluxQuerier {
	return &InfluxQuerier{client: client, org: org, bucket: bucket}
}

func buildLatestFlux(bucket string, minutes int) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == %q)
  |> last()
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
`, bucket, minutes, StepMeasurement)
}

func (q *InfluxQuerier) QueryLatest(ctx context.Context, minutes int) ([]messages.StepEvent, error) {
	res, err := q.client.QueryAPI(q.org).Query(ctx, buildLatestFlux(q.bucket, minutes))
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer res.Close()

	var out []messages.StepEvent
	for res.Next() {
		out = append(out, recordToStep(res.Record()))
	}
	if err := res.Err(); err != nil {
		return out, fmt.Errorf("influx iterate: %w", err)
	}
	return out, nil
}

func recordToStep(rec *query.FluxRecord) messages.StepEvent {
	var e messages.StepEvent
	e.PlantID = toString(rec.ValueByKey("plant_id"))
	e.EpisodeID = toString(rec.ValueByKey("episode_id"))
	e.Step = int(toF64(rec.ValueByKey("step")))
	e.Action.Pump = toBool(rec.ValueByKey("pump"))
	e.Action.LED = toBool(rec.ValueByKey("led"))
	e.Action.Condenser = toBool(rec.ValueByKey("condenser"))
	e.State.SoilHumidity = toF64(rec.ValueByKey("soil_humidity"))
	e.State.Light = toF64(rec.ValueByKey("light"))
	e.State.Temperature = toF64(rec.ValueByKey("temperature"))
	e.State.AirHumidity = toF64(rec.ValueByKey("air_humidity"))
	e.State.WaterLevel = toF64(rec.ValueByKey("water_level"))
	e.State.ElapsedMinutes = int(toF64(rec.ValueByKey("elapsed_minutes")))
	e.Reward = toF64(rec.ValueByKey("reward"))
	e.Done = toBool(rec.ValueByKey("done"))
	e.Timestamp = rec.Time().UTC()
	return e
}

// helper per convertire interi/float/string -> float64
func toF64(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case int:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", "."), 64); err == nil {
			return f
		}
	}
	return 0
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}
