// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// kernelctl administers a document store deployment. Both commands are
// idempotent and safe to re-run on deploy.
package main

import (
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"

	"github.com/juju/documentstore/config"
	"github.com/juju/documentstore/state/mongostate"
	"github.com/juju/documentstore/version"
)

const usage = `usage: kernelctl [options] <command>

Commands:
    create-collections   create the backend collections
    create-indexes       create the change feed index
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "kernelctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := gnuflag.NewFlagSet("kernelctl", gnuflag.ContinueOnError)
	configPath := flags.String("config", "", "path to an optional YAML settings file")
	loggingConfig := flags.String("logging-config", "<root>=WARNING", "loggo configuration spec")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(true, args); err != nil {
		return errors.Trace(err)
	}
	if *showVersion {
		fmt.Printf("%s %s\n", version.Name, version.Current)
		return nil
	}
	if flags.NArg() != 1 {
		fmt.Fprint(os.Stderr, usage)
		return errors.BadRequestf("expected exactly one command")
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

	switch command := flags.Arg(0); command {
	case "create-collections":
		return errors.Trace(db.EnsureCollections())
	case "create-indexes":
		return errors.Trace(db.EnsureIndexes())
	default:
		fmt.Fprint(os.Stderr, usage)
		return errors.NotValidf("command %q", command)
	}
}
