package persistence

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/plant_env/internal/model/messages"
)

// ConnChecker is satisfied by mqtt.Client.
type ConnChecker interface {
	IsConnectionOpen() bool
}

// Pinger is satisfied by influxdb2.Client.
type Pinger interface {
	Ping(ctx context.Context) (bool, error)
}

// minOkErrorAge is how long the writer must be error free to be considered healthy.
const minOkErrorAge = 30 * time.Second

type deps struct {
	svc    *Service
	mqtt   ConnChecker
	influx Pinger
}

func (d deps) mqttOK() bool { return d.mqtt != nil && d.mqtt.IsConnectionOpen() }

func (d deps) influxOK(ctx context.Context) bool {
	if d.influx == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ok, err := d.influx.Ping(ctx)
	return err == nil && ok
}

func NewHTTPMux(svc *Service, mq ConnChecker, influx Pinger) *http.ServeMux {
	d := deps{svc: svc, mqtt: mq, influx: influx}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		type status struct {
			Status          string  `json:"status"`
			MQTTConnected   bool    `json:"mqtt_connected"`
			InfluxOK        bool    `json:"influx_ok"`
			LastWriteErrorS float64 `json:"last_write_error_age_sec"`
		}
		st := status{
			MQTTConnected:   d.mqttOK(),
			InfluxOK:        d.influxOK(r.Context()),
			LastWriteErrorS: svc.writer.LastErrorAge().Seconds(),
		}
		switch {
		case st.MQTTConnected && st.InfluxOK && svc.writer.LastErrorAge() > minOkErrorAge:
			st.Status = "ok"
		case st.MQTTConnected || st.InfluxOK:
			st.Status = "degraded"
		default:
			st.Status = "down"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	})

	// 200 solo se tutte le dipendenze sono ok
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ready := d.mqttOK() && d.influxOK(r.Context()) && svc.writer.LastErrorAge() > minOkErrorAge
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
	})

	// GET /data/latest
	// Query params:
	//   source=auto|influx|cache   (default auto: prova Influx, fallback cache)
	//   minutes=<int>              (finestra temporale per Influx, default 1440 = 24h)
	mux.HandleFunc("/data/latest", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		source := strings.ToLower(q.Get("source"))
		if source == "" {
			source = "auto"
		}
		if source != "auto" && source != "influx" && source != "cache" {
			http.Error(w, "source must be auto, influx or cache", http.StatusBadRequest)
			return
		}
		minutes := 60 * 24
		if s := q.Get("minutes"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				minutes = n
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		var (
			list []messages.StepEvent
			used string
		)
		if source == "influx" || source == "auto" {
			res, err := svc.QueryLatestFromInflux(ctx, minutes)
			switch {
			case err == nil && (len(res) > 0 || source == "influx"):
				list, used = res, "influx"
			case err != nil && source == "influx":
				w.Header().Set("X-Error", "influx-query-error")
				http.Error(w, err.Error(), http.StatusBadGateway)
				return
			}
		}
		if used == "" { // cache path
			list, used = svc.LatestCache(), "cache"
		}
		if list == nil {
			list = []messages.StepEvent{}
		}
		sort.Slice(list, func(i, j int) bool { return list[i].PlantID < list[j].PlantID })

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Data-Source", used)
		_ = json.NewEncoder(w).Encode(list)
	})

	return mux
}
