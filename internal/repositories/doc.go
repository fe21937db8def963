// Package repositories implements SQLite persistence for synchronized Tautulli records.
//
// Key Implementations:
//   - [MediaRepository] : library items keyed by rating key, upserted with change detection
//   - [UserRepository] : server accounts from the user directory or first seen in history
//   - [HistoryRepository] : append-only play events deduplicated by natural key
//   - [StateRepository] : watermarks committed together with the rows they cover
//   - [SyncRunRepository] : audit trail of sync invocations
//   - [PruneRepository] : set-difference deletion that nulls history references
//   - [StatsRepository] : read-only aggregation views (top media, top users, growth, least watched)
//
// Writes report an [Outcome] (created, updated, unchanged). An unchanged record issues no UPDATE,
// so replaying the same remote state produces no writes.
//
// Database failures are wrapped in [StoreError]; record-level problems surface as models.ValidationError.
package repositories
