// Package identity owns the lobby's user accounts: registration, password
// checks and the persisted online flag.
//
// Two Store implementations exist. FileStore keeps every record in one JSON
// document compatible with the legacy users.json layout. PostgresStore keeps
// the same records in a chat_users table. Both return OpError values whose Kind
// is one of the sentinel kinds in kinds.go.
package identity
