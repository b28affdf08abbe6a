// Package storage provides event log backends.
//
//   - FileStorage appends JSON lines to a file and rotates it to <file>.bak
//     once it exceeds a size limit
//   - SQLiteStorage keeps events in an SQLite database (pure Go driver)
//   - MemoryStorage keeps events in memory, for tests and the "memory"
//     backend setting
//
// Rotator runs FileStorage rotation on a cron schedule in addition to the
// check FileStorage performs before every write.
package storage
