// Package manager is the session layer between the HTTP bridge and the
// completion coordinator. It is structured into small files by concern:
//
//   - manager.go: Manager type, document lifecycle, and the calls the HTTP
//     layer makes on behalf of the host editor.
//   - errors.go: error types carrying HTTP status codes.
//
// The Manager keeps the document mirror and the coordinator in step: every
// edit is applied to the mirror before the coordinator sees it, so snapshots
// always reflect the text the edit produced.
package manager
