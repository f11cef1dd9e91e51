// Package board holds the pure rules that keep a project's columns and the
// column references of its tasks consistent. Nothing here touches storage.
package board

import (
	"strings"

	"github.com/TNEM22/synera-app-backend/internal/apperror"
	"github.com/TNEM22/synera-app-backend/internal/models"

	"github.com/gofrs/uuid"
)

const defaultTerminalTitle = "Done"

// Plan is the outcome of reconciling a proposed column list with the stored
// one.
type Plan struct {
	// Final is the column list to persist, in order.
	Final models.Columns
	// RemovedIDs are old column IDs absent from Final. Tasks referencing
	// them must be deleted before Final is written.
	RemovedIDs []uuid.UUID
	// TitleOnly is set when nothing was proposed and columns stay as they are.
	TitleOnly bool
}

// PlanReconciliation computes the column list that replaces old.
//
// Proposed columns without an ID are new and receive one. A proposed ID must
// already exist in old: IDs are assigned by the server only, so an unknown ID
// is rejected instead of resurrecting a column whose tasks are gone.
//
// If no proposed column is terminal, the old terminal column is kept: it is
// appended unchanged, or promoted back in place when the caller demoted it.
func PlanReconciliation(old models.Columns, proposed []models.Column) (Plan, error) {
	if len(proposed) == 0 {
		return Plan{Final: cloneColumns(old), TitleOnly: true}, nil
	}

	final := make(models.Columns, 0, len(proposed)+1)
	seen := make(map[uuid.UUID]struct{}, len(proposed))
	terminals := 0

	for i, col := range proposed {
		col.Title = strings.TrimSpace(col.Title)
		if col.Kind != models.ColumnKindTerminal {
			col.Kind = models.ColumnKindNormal
		}

		if col.ID == uuid.Nil {
			id, err := uuid.NewV4()
			if err != nil {
				return Plan{}, apperror.Internal("generate column id", err)
			}
			col.ID = id
		} else if _, ok := old.Find(col.ID); !ok {
			return Plan{}, apperror.Validation("column %s does not belong to this project", col.ID)
		}

		if _, dup := seen[col.ID]; dup {
			return Plan{}, apperror.Validation("column %s appears more than once", col.ID)
		}
		seen[col.ID] = struct{}{}

		if col.Title == "" {
			if !col.IsTerminal() {
				return Plan{}, apperror.Validation("column %d needs a title", i+1)
			}
			col.Title = defaultTerminalTitle
		}

		if col.IsTerminal() {
			terminals++
		}
		final = append(final, col)
	}

	if terminals > 1 {
		return Plan{}, apperror.Validation("only one column can complete tasks, got %d", terminals)
	}

	if terminals == 0 {
		final = preserveTerminal(old, final, seen)
	}

	return Plan{Final: final, RemovedIDs: removedIDs(old, final)}, nil
}

func preserveTerminal(old, final models.Columns, seen map[uuid.UUID]struct{}) models.Columns {
	prev, ok := old.Terminal()
	if !ok {
		return final
	}
	if _, kept := seen[prev.ID]; kept {
		for i := range final {
			if final[i].ID == prev.ID {
				final[i].Kind = models.ColumnKindTerminal
			}
		}
		return final
	}
	if prev.Title == "" {
		prev.Title = defaultTerminalTitle
	}
	return append(final, prev)
}

func removedIDs(old, final models.Columns) []uuid.UUID {
	var removed []uuid.UUID
	for _, col := range old {
		if col.ID == uuid.Nil {
			continue
		}
		if _, ok := final.Find(col.ID); !ok {
			removed = append(removed, col.ID)
		}
	}
	return removed
}

func cloneColumns(c models.Columns) models.Columns {
	out := make(models.Columns, len(c))
	copy(out, c)
	return out
}

// RemovedRefs converts removed column IDs into task status values.
func RemovedRefs(ids []uuid.UUID) []models.ColumnRef {
	refs := make([]models.ColumnRef, len(ids))
	for i, id := range ids {
		refs[i] = models.RefTo(id)
	}
	return refs
}

// IsOrphan reports whether a task status points at a column the project no
// longer has. Unassigned statuses are never orphans.
func IsOrphan(columns models.Columns, status models.ColumnRef) bool {
	return status.IsAssigned() && !columns.Contains(status)
}
