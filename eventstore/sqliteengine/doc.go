// Package sqliteengine provides an embedded SQLite implementation of eventstore.LogAdapter,
// built on the pure-Go modernc.org/sqlite driver.
//
//	log, _ := sqliteengine.Open(ctx, "counter.db")
//	defer log.Close()
//
//	store, _ := eventstore.NewStore(initial, log, parser, reducer)
package sqliteengine
