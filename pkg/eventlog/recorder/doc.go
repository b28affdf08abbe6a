// Package recorder writes client telemetry batches to an event log
// backend without blocking the request that delivered them.
//
// Batches are queued on a buffered channel and written by a single
// background worker. A full queue drops the batch and reports
// eventlog.ErrQueueFull; it never waits. Close drains whatever is queued
// before returning.
//
// Open builds a Recorder from config.EventLogConfig, selecting the file,
// sqlite or memory backend and starting the rotation schedule for the
// file backend.
package recorder
