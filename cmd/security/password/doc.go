// Package password provides password hashing and verification for the lobby server.
//
// Two encodings are supported:
//   - sha256: lowercase hex SHA-256 digest, the format found in existing credential files
//   - argon2id: PHC-like "$argon2id$v=19$m=..,t=..,p=..$salt$hash" string
//
// Config.Hash produces the configured scheme. Config.Verify recognises either
// encoding, so a store may hold a mix while migrating.
//
// Hash strings are treated as untrusted input during Verify; Argon2id hashes with
// parameters far above the configured ones are refused.
package password
