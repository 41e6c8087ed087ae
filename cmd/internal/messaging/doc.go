// Package messaging implements one-to-one conversations between portal users about a
// lost-and-found item.
//
// Components:
//   - Directory: find-or-create the single conversation per (item, unordered pair).
//   - Feed: send messages and stream a conversation's messages in timestamp order.
//   - List: stream the conversations a user participates in, newest activity first.
//   - Watcher: derive the per-session unread flag from conversation changes.
//   - Session: the per-user context that owns the active conversation and the
//     subscription slots, and renders into a View.
//
// All state lives in a docstore.Store; this package keeps only transient session state.
package messaging
