package tasks

import (
	"fmt"

	"github.com/desertthunder/tautsync/internal/services"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase, 0 when unknown
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	SyncUsers Phase = iota
	SyncMedia
	SyncHistory
	CollectKeys
	Prune
	Finalize
)

func (p Phase) String() string {
	switch p {
	case SyncUsers:
		return "sync_users"
	case SyncMedia:
		return "sync_media"
	case SyncHistory:
		return "sync_history"
	case CollectKeys:
		return "collect_keys"
	case Prune:
		return "prune"
	case Finalize:
		return "finalize"
	default:
		return ""
	}
}

func usersUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncUsers,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Syncing %d users...", count),
	}
}

func sectionUpdate(step, total int, lib services.Library) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncMedia,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Syncing library %s (%s)...", step, total, lib.Name, lib.Type),
		Data:    lib,
	}
}

func recentUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncMedia,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Syncing recently added items...", step, total),
	}
}

func mediaPageUpdate(page *services.Page) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncMedia,
		Step:    page.Start + len(page.Media),
		Total:   page.Total,
		Message: fmt.Sprintf("Page %d: %d items", page.Number, len(page.Media)),
	}
}

func historyUpdate(page *services.Page) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncHistory,
		Step:    page.Start + len(page.History),
		Total:   page.Total,
		Message: fmt.Sprintf("Page %d: %d play events", page.Number, len(page.History)),
	}
}

func collectKeysUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   CollectKeys,
		Step:    1,
		Total:   1,
		Message: "Collecting remote rating keys...",
	}
}

func pruneUpdate(pruned int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Prune,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Pruned %d records", pruned),
	}
}

func finalizeUpdate(s *Summary) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Finalize,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Sync %s: %d created, %d updated, %d unchanged", s.Status, s.Created, s.Updated, s.Unchanged),
		Data:    s,
	}
}
