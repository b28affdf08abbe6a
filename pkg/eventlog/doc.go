// Package eventlog stores the telemetry batches that Claude clients post to
// /api/event_logging/batch.
//
// Clients send these batches in loosely structured form: a JSON array of
// events, a single object, a bare scalar, or JavaScript-style objects with
// unquoted keys. ParseBatch accepts all of them. Each parsed event is wrapped
// in an Event carrying the receive timestamp and the client address, and is
// handed to a recorder that writes asynchronously so that logging never
// delays or fails the client request.
//
// # Subpackages
//
//   - storage: JSONL file (with size-based rotation), SQLite and in-memory
//     backends implementing Storage
//   - recorder: the asynchronous Recorder and the config-driven constructor
//
// # File Format
//
// The file backend appends one JSON object per line:
//
//	{"id":"...","timestamp":"2024-05-01T12:00:00Z","client_ip":"10.0.0.7","event":{...}}
//
// When the file grows beyond the configured size it is renamed to
// <file>.bak, replacing any previous backup.
package eventlog
