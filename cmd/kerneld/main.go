// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// kerneld serves the document store REST API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"

	"github.com/juju/documentstore/apiserver"
	"github.com/juju/documentstore/config"
	"github.com/juju/documentstore/services"
	"github.com/juju/documentstore/state"
	"github.com/juju/documentstore/state/mongostate"
	"github.com/juju/documentstore/version"
)

var logger = loggo.GetLogger("kernel.cmd.kerneld")

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "kerneld: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := gnuflag.NewFlagSet("kerneld", gnuflag.ContinueOnError)
	configPath := flags.String("config", "", "path to an optional YAML settings file")
	loggingConfig := flags.String("logging-config", "<root>=INFO", "loggo configuration spec")
	listen := flags.String("listen", ":6543", "address to serve the API on")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(true, args); err != nil {
		return errors.Trace(err)
	}
	if *showVersion {
		fmt.Printf("%s %s\n", version.Name, version.Current)
		return nil
	}
	if err := loggo.ConfigureLoggers(*loggingConfig); err != nil {
		return errors.Annotate(err, "cannot configure loggers")
	}

	cfg, err := config.Read(*configPath, nil)
	if err != nil {
		return errors.Trace(err)
	}

	db, err := mongostate.Dial(mongostate.DialArgs{
		Addrs:          cfg.MongoAddrs(),
		ReplicaSet:     cfg.MongoReplicaSet,
		ReadPreference: cfg.MongoReadPreference,
	})
	if err != nil {
		return errors.Trace(err)
	}
	defer db.Close()

	policy := state.RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		BackoffFactor: cfg.BackoffFactor,
		Clock:         clock.WallClock,
	}

	serverConfig := apiserver.Config{
		NewServices: func() (*services.Services, func()) {
			session := db.NewSession().WithRetry(policy)
			return services.New(session, clock.WallClock), session.Close
		},
	}

	var metricsServer *http.Server
	if cfg.PrometheusEnabled {
		metrics := apiserver.NewMetrics()
		serverConfig.Metrics = metrics
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.PrometheusPort),
			Handler: mux,
		}
		go func() {
			logger.Infof("serving metrics on %s", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("metrics server: %v", err)
			}
		}()
	}

	server, err := apiserver.NewServer(serverConfig)
	if err != nil {
		return errors.Trace(err)
	}
	apiServer := &http.Server{Addr: *listen, Handler: server}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("%s %s serving on %s", version.Name, version.Current, *listen)
		errCh <- apiServer.ListenAndServe()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		logger.Infof("caught %v, shutting down", sig)
	case err := <-errCh:
		return errors.Annotate(err, "api server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		return errors.Annotate(err, "shutting down api server")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Warningf("shutting down metrics server: %v", err)
		}
	}
	return nil
}
