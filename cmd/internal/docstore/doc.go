// Package docstore is the document store with live queries that backs every
// persisted record in the campus portal.
//
// Documents are schemaless field maps grouped into slash-separated collections
// ("chats", "chats/{id}/messages"). Queries combine equality and
// array-containment predicates with an optional ordering; a live subscription
// re-runs its query whenever its collection changes and delivers the full
// ordered result to the subscriber, together with the per-document changes
// since the previous delivery.
//
// Two backends are provided: MemoryStore for development and tests, and
// PostgresStore which keeps documents as JSONB rows. Change notifications
// between server instances travel over a ChangeFeed (in-process, Redis
// pub/sub, or PostgreSQL LISTEN/NOTIFY).
package docstore
