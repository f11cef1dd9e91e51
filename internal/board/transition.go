package board

import (
	"github.com/TNEM22/synera-app-backend/internal/apperror"
	"github.com/TNEM22/synera-app-backend/internal/models"
)

// Transition is the write a status change produces.
type Transition struct {
	Status              models.ColumnRef
	CompletedMilestones models.StringList
	// CopyMilestones is set when the target column is terminal.
	CopyMilestones bool
}

// Fields returns the column updates for the transition.
func (t Transition) Fields() map[string]interface{} {
	fields := map[string]interface{}{"status": t.Status}
	if t.CopyMilestones {
		fields["completed_milestones"] = t.CompletedMilestones
	}
	return fields
}

// PlanTransition validates a move to target. Moving into the terminal column
// marks every milestone complete; leaving it never clears them.
func PlanTransition(columns models.Columns, milestones models.StringList, target models.ColumnRef) (Transition, error) {
	col, ok := columns.Find(target.ColumnID())
	if !ok {
		return Transition{}, apperror.Validation("status %q is not a column of this project", target.String())
	}

	t := Transition{Status: target}
	if col.IsTerminal() {
		t.CopyMilestones = true
		t.CompletedMilestones = milestones.Clone()
	}
	return t, nil
}

// ValidateStatus checks a status supplied on task create or update. The
// unassigned status is accepted.
func ValidateStatus(columns models.Columns, status models.ColumnRef) error {
	if !status.IsAssigned() || columns.Contains(status) {
		return nil
	}
	return apperror.Validation("status %q is not a column of this project", status.String())
}
