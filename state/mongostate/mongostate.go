// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package mongostate implements the state ports over MongoDB.
//
// Each entity kind lives in its own collection, records keyed by the
// entity id in _id. Journal and bundle manifests are stored as native
// BSON documents. Document manifests are stored as a JSON string in a
// document field because asset slot names contain dots, which MongoDB
// forbids in field names. Change records get an auto ObjectId and are
// queried through an ascending timestamp index.
package mongostate

import (
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	mgo "github.com/juju/mgo/v3"

	"github.com/juju/documentstore/state"
)

var logger = loggo.GetLogger("kernel.state.mongostate")

const (
	// DefaultDatabase is the database holding the collections.
	DefaultDatabase = "document-store"

	journalsC  = "journals"
	bundlesC   = "documents_bundles"
	documentsC = "documents"
	changesC   = "changes"

	dialTimeout = 10 * time.Second
)

// DialArgs names the backend connection parameters.
type DialArgs struct {
	// Addrs are the host:port endpoints of the replica set members.
	Addrs []string

	// ReplicaSet is the replica-set name, or empty.
	ReplicaSet string

	// ReadPreference is one of primary, primaryPreferred, secondary,
	// secondaryPreferred, nearest. Empty means secondaryPreferred.
	ReadPreference string

	// Database overrides DefaultDatabase when set.
	Database string
}

func readMode(preference string) (mgo.Mode, error) {
	switch preference {
	case "primary":
		return mgo.Primary, nil
	case "primaryPreferred":
		return mgo.PrimaryPreferred, nil
	case "secondary":
		return mgo.Secondary, nil
	case "", "secondaryPreferred":
		return mgo.SecondaryPreferred, nil
	case "nearest":
		return mgo.Nearest, nil
	}
	return 0, errors.NotValidf("read preference %q", preference)
}

// Database owns the base connection to MongoDB. Request handlers take
// cheap per-request copies through NewSession.
type Database struct {
	session *mgo.Session
	name    string
}

// Dial connects to the backend and returns the shared handle.
func Dial(args DialArgs) (*Database, error) {
	mode, err := readMode(args.ReadPreference)
	if err != nil {
		return nil, errors.Trace(err)
	}
	name := args.Database
	if name == "" {
		name = DefaultDatabase
	}
	logger.Infof("dialling mongodb at %s", strings.Join(args.Addrs, ", "))
	session, err := mgo.DialWithInfo(&mgo.DialInfo{
		Addrs:          args.Addrs,
		ReplicaSetName: args.ReplicaSet,
		Timeout:        dialTimeout,
	})
	if err != nil {
		return nil, errors.Annotate(err, "cannot dial mongodb")
	}
	session.SetMode(mode, true)
	return &Database{session: session, name: name}, nil
}

// NewSession returns a unit of work over a copied mgo session. The
// session's Close releases the copy.
func (d *Database) NewSession() *state.Session {
	copied := d.session.Copy()
	db := copied.DB(d.name)
	return state.NewSession(
		&containerStore{kind: "journal", coll: db.C(journalsC)},
		&containerStore{kind: "documents bundle", coll: db.C(bundlesC)},
		&documentStore{coll: db.C(documentsC)},
		&changesStore{coll: db.C(changesC)},
		copied.Close,
	)
}

// Close shuts the base connection down.
func (d *Database) Close() {
	d.session.Close()
}

// EnsureCollections creates the four collections. Safe to re-run; the
// backend creates collections lazily anyway, so this mainly pins their
// existence for fresh deployments.
func (d *Database) EnsureCollections() error {
	copied := d.session.Copy()
	defer copied.Close()
	db := copied.DB(d.name)
	for _, name := range []string{journalsC, bundlesC, documentsC, changesC} {
		err := db.C(name).Create(&mgo.CollectionInfo{})
		if err != nil && !isCollectionExists(err) {
			return errors.Annotatef(err, "cannot create collection %q", name)
		}
		logger.Debugf("collection %q present", name)
	}
	return nil
}

// EnsureIndexes creates the ascending timestamp index the change feed
// queries through. Safe to re-run.
func (d *Database) EnsureIndexes() error {
	copied := d.session.Copy()
	defer copied.Close()
	err := copied.DB(d.name).C(changesC).EnsureIndex(mgo.Index{
		Key:        []string{"timestamp"},
		Background: true,
	})
	return errors.Annotate(err, "cannot ensure changes timestamp index")
}

func isCollectionExists(err error) bool {
	if qerr, ok := err.(*mgo.QueryError); ok {
		// NamespaceExists
		return qerr.Code == 48
	}
	return strings.Contains(err.Error(), "already exists")
}
