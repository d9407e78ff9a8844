// Package main starts a caseng workflow engine server.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/ahalstead/caseng/engine"
	enginehttp "github.com/ahalstead/caseng/engine/http"
	httpcmd "github.com/ahalstead/caseng/http"
	"github.com/ahalstead/caseng/logkeys"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/envflag"
	nanohttp "github.com/micromdm/nanolib/http"
	"github.com/micromdm/nanolib/http/trace"
	"github.com/micromdm/nanolib/log/stdlogfmt"
)

// overridden by -ldflags -X
var version = "unknown"

const (
	apiUsername = "caseng"
	apiRealm    = "caseng"
)

func main() {
	var (
		flDebug    = flag.Bool("debug", false, "log debug messages")
		flListen   = flag.String("listen", ":9004", "HTTP listen address")
		flVersion  = flag.Bool("version", false, "print version and exit")
		flAPIKey   = flag.String("api", "", "API key for API endpoints")
		flDump     = flag.Bool("dump", false, "dump API request bodies")
		flStorage  = flag.String("storage", "file", "name of storage backend")
		flDSN      = flag.String("storage-dsn", "", "data source name (e.g. connection string or path)")
		flRes      = flag.String("resources", "res-1:4", "comma-separated resource specs (id:concurrency[:cpu[:memory]])")
		flPolicy   = flag.String("policy", "least_loaded", "default allocation policy")
		flAdaptive = flag.Bool("adaptive", false, "select allocation policy adaptively from load")
		flWorkSec  = flag.Uint("worker-interval", uint(engine.DefaultWorkerDuration/time.Second), "interval for worker in seconds")
		flAllocSec = flag.Uint("alloc-timeout", 30, "allocation timeout in seconds")
	)
	envflag.Parse("CASENG_", []string{"version"})

	if *flVersion {
		fmt.Println(version)
		return
	}

	logger := stdlogfmt.New(stdlogfmt.WithDebugFlag(*flDebug))

	// configure storage
	storage, err := parseStorage(*flStorage, *flDSN)
	if err != nil {
		logger.Info(logkeys.Message, "parse storage", logkeys.Error, err)
		os.Exit(1)
	}

	// configure the resource manager
	manager, err := parseResources(*flRes, *flPolicy, *flAdaptive, logger)
	if err != nil {
		logger.Info(logkeys.Message, "parse resources", logkeys.Error, err)
		os.Exit(1)
	}

	// configure the workflow engine
	eOpts := []engine.Option{
		engine.WithLogger(logger.With("service", "engine")),
		engine.WithConcurrentExecution(),
	}
	if *flAllocSec > 0 {
		eOpts = append(eOpts, engine.WithAllocationTimeout(time.Second*time.Duration(*flAllocSec)))
	}
	e := engine.New(storage, manager, eOpts...)

	// register workflow definitions with the engine
	if err = registerDefinitions(e); err != nil {
		logger.Info(logkeys.Message, "registering definitions", logkeys.Error, err)
		os.Exit(1)
	}

	// configure the engine worker (async runner/job)
	var eWorker *engine.Worker
	if *flWorkSec > 0 {
		eWorker = engine.NewWorker(
			e,
			engine.WithWorkerLogger(logger.With("service", "engine worker")),
			engine.WithWorkerDuration(time.Second*time.Duration(*flWorkSec)),
		)
	}

	mux := flow.New()

	mux.Handle("/version", nanohttp.NewJSONVersionHandler(version))

	if *flAPIKey != "" {
		mux.Group(func(mux *flow.Mux) {
			mux.Use(func(h http.Handler) http.Handler {
				return nanohttp.NewSimpleBasicAuthHandler(h, apiUsername, *flAPIKey, apiRealm)
			})

			if *flDump {
				mux.Use(func(h http.Handler) http.Handler {
					return httpcmd.DumpHandler(h, os.Stdout)
				})
			}

			enginehttp.HandleAPIv1("/v1", mux, logger, e)
		})
	}

	if eWorker != nil {
		go func() {
			err := eWorker.Run(context.Background())
			logs := []interface{}{logkeys.Message, "engine worker stopped"}
			if err != nil {
				logger.Info(append(logs, logkeys.Error, err)...)
				return
			}
			logger.Debug(logs...)
		}()
	}

	rand.Seed(time.Now().UnixNano())

	logger.Info(logkeys.Message, "starting server", "listen", *flListen)
	err = http.ListenAndServe(*flListen, trace.NewTraceLoggingHandler(mux, logger.With("handler", "log"), newTraceID))
	logs := []interface{}{logkeys.Message, "server shutdown"}
	if err != nil {
		logs = append(logs, logkeys.Error, err)
	}
	logger.Info(logs...)

	if err = e.Shutdown(context.Background()); err != nil {
		logger.Info(logkeys.Message, "engine shutdown", logkeys.Error, err)
	}
}

// newTraceID generates a new HTTP trace ID for context logging.
// Currently this just makes a random string. This would be better
// served by e.g. https://github.com/oklog/ulid or something like
// https://opentelemetry.io/ someday.
func newTraceID(_ *http.Request) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
