package graph

import "context"

// VacuumStats summarizes a VacuumCleanup pass.
type VacuumStats struct {
	PagesFreed int64
	PageCount  uint32
}

// VacuumCleanup reclaims every tombstoned page left behind by prior
// BulkDelete calls, returning them to the page store's free list so the
// next Insert reuses the space instead of growing the relation (spec
// §4.5 VacuumCleanup, §9 supplemented bulk-delete behavior). It is safe
// to call even when no deletes have happened; it then just reports the
// current page count.
func (e *Engine) VacuumCleanup(ctx context.Context) (VacuumStats, error) {
	var stats VacuumStats
	relSize, err := e.RelationSize()
	if err != nil {
		return stats, err
	}
	stats.PageCount = relSize

	for page := uint32(1); page < relSize; page++ {
		if err := ctx.Err(); err != nil {
			return stats, wrapCancelled("VacuumCleanup", "cancelled", err)
		}
		node, err := e.getNode(page)
		if err != nil {
			continue
		}
		if !node.IsTombstone() {
			continue
		}
		if err := e.clearPage(page); err != nil {
			return stats, err
		}
		if err := e.store.FreePage(page); err != nil {
			return stats, newErr(KindResource, "VacuumCleanup", "failed to free page", err)
		}
		stats.PagesFreed++
	}
	return stats, nil
}

// clearPage empties a page's stored bytes before returning it to the
// free list, so a later scan treats it as empty (spec invariant 1) and a
// second VacuumCleanup pass over the same relation finds nothing left to
// free, rather than re-discovering the same tombstoned record.
func (e *Engine) clearPage(page uint32) error {
	guard, err := e.store.ReadExclusive(page)
	if err != nil {
		return newErr(KindResource, "clearPage", "failed to acquire exclusive guard", err)
	}
	defer guard.Release()
	if err := guard.Put([]byte{}); err != nil {
		return newErr(KindResource, "clearPage", "failed to clear page", err)
	}
	return nil
}
