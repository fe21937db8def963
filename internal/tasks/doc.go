// Package tasks mirrors a Tautulli server into the local store with real-time progress reporting.
//
// # Sync
//
// [SyncEngine.Sync] runs four phases in order:
//
//  1. Users : the user directory is upserted in one transaction
//  2. Media : [ModeFull] pages every supported library section and walks each top-level item
//     to its leaves; [ModeIncremental] reads recently added items down to the media watermark
//  3. History : play events from the history watermark onward, one transaction per page
//  4. Prune : [ModeFull] with prune only; rows the server no longer lists are deleted
//
// A process lock is held for the whole run, so a second concurrent sync fails fast with
// [shared.ErrSyncLocked].
//
// # Transactions and watermarks
//
// Every watermark is written in the same transaction as the rows it covers. In full mode the
// media watermark moves once, when the run is finalized, and only if no section or subtree
// was lost. A crash therefore leaves the store consistent with its last committed batch and
// the next run re-reads anything the watermark does not cover.
//
// # Traversal
//
// Library trees are walked depth-first over an arena of nodes with an explicit stack. A parent
// row is written before its children are requested. A failed children listing skips that
// node's subtree and the walk continues with its siblings.
//
// # Errors
//
//   - [models.ValidationError] : the record is skipped and counted
//   - local fetch errors (shape, envelope, page limit) : the subtree or section is counted as errored
//   - auth, exhausted retries, store failures : the sync aborts and Sync returns the error
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for
// advanced UI rendering. Updates use select with default to prevent blocking.
package tasks
