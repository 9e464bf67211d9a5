// Package cql adapts a gocql session to the types.Transport interface, so a
// Cassandra-compatible cluster can serve as the backend of a reconnecting
// channel.
//
// # Data Model
//
// Every table is stored as a cell table keyed by row, family and qualifier:
//
//	CREATE TABLE IF NOT EXISTS users (
//	    row_key blob,
//	    family text,
//	    qualifier blob,
//	    value blob,
//	    PRIMARY KEY (row_key, family, qualifier)
//	)
//
// A MutateRow request becomes one logged batch. Set cells are inserts, delete
// edits remove a row, a family or a single cell. Explicit edit timestamps are
// kept as write timestamps, so a replayed mutation is idempotent.
//
// # Usage
//
//	cluster := gocql.NewCluster("127.0.0.1")
//	cluster.Keyspace = "bigtable"
//
//	factory, err := cql.NewFactory(cluster)
//	if err != nil {
//	    return err
//	}
//
//	session, err := bigtable.NewSession(cfg, bigtable.WithTransportFactory(factory))
//
// # Errors
//
// Lost connections surface as *types.ConnectionError so the channel
// reconnects. Server error codes are mapped to status codes; unavailable and
// overloaded coordinators become codes.Unavailable and are retried.
package cql
