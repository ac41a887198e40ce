// Package pkguid provides helpers for generating unique identifiers.
//
// The codebase uses these interfaces to avoid hard-coding a specific UID
// strategy:
//   - String IDs (UUIDv7) name events, commits, and requests.
//   - Numeric IDs (Snowflake) stamp each staged file with a generation so
//     late results from a removed file can be told apart.
package pkguid
