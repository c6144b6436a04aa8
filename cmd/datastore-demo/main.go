// Command datastore-demo wires a Store up to a NATS ingestion feed, a
// periodic GC scheduler, and a /metrics endpoint. It exists to exercise
// the store end-to-end; a deployable ingestion service would replace
// the line-protocol stand-in decoder with whatever external codec
// produces its LogMsg values.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/tracehive/datastore/internal/ingest"
	"github.com/tracehive/datastore/internal/store"
	"github.com/tracehive/datastore/internal/storeconfig"
	"github.com/tracehive/datastore/internal/storelog"
)

// ProgramConfig is the on-disk shape of --config. Only the fields the
// demo itself needs live here; store tuning lives in the embedded
// storeconfig.Config and follows its own JSON Schema.
type ProgramConfig struct {
	MetricsAddr     string          `json:"metrics-addr"`
	NatsURL         string          `json:"nats-url"`
	Subjects        []string        `json:"subjects"`
	IngestRateLimit float64         `json:"ingest-rate-limit"`
	IngestRateBurst int             `json:"ingest-rate-burst"`
	Store           json.RawMessage `json:"store"`
}

func main() {
	var flagConfigFile string
	var flagNoIngest bool
	flag.StringVar(&flagConfigFile, "config", "./datastore.json", "Overwrite the default options by those specified in `config.json`")
	flag.BoolVar(&flagNoIngest, "no-ingest", false, "Do not connect to NATS, only serve metrics and run the GC scheduler")
	flag.Parse()

	progConfig := ProgramConfig{
		MetricsAddr: ":9090",
		NatsURL:     nats.DefaultURL,
		Subjects:    []string{"datastore.rows"},
	}

	if f, err := os.Open(flagConfigFile); err == nil {
		dec := json.NewDecoder(f)
		if err := dec.Decode(&progConfig); err != nil {
			storelog.Fatalf("parsing %s: %s", flagConfigFile, err.Error())
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		storelog.Fatalf("opening %s: %s", flagConfigFile, err.Error())
	}

	storeCfg, err := storeconfig.Load(progConfig.Store)
	if err != nil {
		storelog.Fatalf("invalid store config: %s", err.Error())
	}

	st := store.New(storeCfg)

	gcScheduler, err := store.StartGCScheduler(st, storeCfg.GC.IntervalDuration())
	if err != nil {
		storelog.Fatalf("starting gc scheduler: %s", err.Error())
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(st.Registry(), promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: progConfig.MetricsAddr, Handler: mux}
	go func() {
		storelog.Infof("metrics server listening at %s", progConfig.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			storelog.Errorf("metrics server: %s", err.Error())
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())

	if !flagNoIngest {
		nc, err := nats.Connect(progConfig.NatsURL)
		if err != nil {
			storelog.Fatalf("connecting to NATS at %s: %s", progConfig.NatsURL, err.Error())
		}
		defer nc.Close()

		subs := make([]ingest.Subscription, len(progConfig.Subjects))
		for i, s := range progConfig.Subjects {
			subs[i] = ingest.Subscription{Subject: s}
		}

		var limiter *rate.Limiter
		if progConfig.IngestRateLimit > 0 {
			burst := progConfig.IngestRateBurst
			if burst < 1 {
				burst = 1
			}
			limiter = rate.NewLimiter(rate.Limit(progConfig.IngestRateLimit), burst)
		}

		go func() {
			if err := ingest.Receive(ctx, nc, subs, st, decodeLineProtocol, 4, limiter); err != nil {
				storelog.Errorf("ingestion stopped: %s", err.Error())
			}
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	cancel()
	_ = metricsServer.Shutdown(context.Background())
	_ = gcScheduler.Stop()
	storelog.Info("shutdown complete")
}

// decodeLineProtocol is a placeholder Decoder standing in for whatever
// wire codec a real deployment would use; the specification leaves
// component (de)serialization to an external collaborator.
func decodeLineProtocol([]byte) (store.LogMsg, error) {
	return store.LogMsg{}, &store.StoreError{Kind: store.ErrInvalidRow, Msg: "no line-protocol decoder wired up in this demo"}
}
