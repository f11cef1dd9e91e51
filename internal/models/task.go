package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// ColumnRef is a task's reference to the board column it sits in. The zero
// value is unassigned and is never matched against a column.
type ColumnRef struct {
	id uuid.UUID
}

func RefTo(columnID uuid.UUID) ColumnRef {
	return ColumnRef{id: columnID}
}

func ParseColumnRef(s string) (ColumnRef, error) {
	if s == "" {
		return ColumnRef{}, nil
	}
	id, err := uuid.FromString(s)
	if err != nil {
		return ColumnRef{}, fmt.Errorf("invalid column reference %q: %w", s, err)
	}
	return ColumnRef{id: id}, nil
}

func (r ColumnRef) IsAssigned() bool {
	return r.id != uuid.Nil
}

func (r ColumnRef) ColumnID() uuid.UUID {
	return r.id
}

func (r ColumnRef) String() string {
	if !r.IsAssigned() {
		return ""
	}
	return r.id.String()
}

func (r ColumnRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *ColumnRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	ref, err := ParseColumnRef(s)
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

func (r ColumnRef) Value() (driver.Value, error) {
	return r.String(), nil
}

func (r *ColumnRef) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case nil:
		*r = ColumnRef{}
		return nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return fmt.Errorf("unsupported column reference value %T", value)
	}
	ref, err := ParseColumnRef(s)
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

func (ColumnRef) GormDataType() string {
	return "varchar(64)"
}

// StringList is an ordered list of labels stored as JSON text.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *StringList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

func (StringList) GormDataType() string {
	return "text"
}

// Clone returns a copy that does not share the backing array.
func (l StringList) Clone() StringList {
	out := make(StringList, len(l))
	copy(out, l)
	return out
}

type UUIDList []uuid.UUID

func (l UUIDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]uuid.UUID(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *UUIDList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

func (UUIDList) GormDataType() string {
	return "text"
}

func scanJSON(value interface{}, dest interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported JSON value %T", value)
	}
}

type Task struct {
	ID                  uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	ProjectID           uuid.UUID  `json:"projectId" gorm:"type:uuid;not null;index"`
	UserID              uuid.UUID  `json:"userId" gorm:"type:uuid;not null"`
	Title               string     `json:"title" gorm:"not null"`
	Note                string     `json:"note" gorm:"not null"`
	Milestones          StringList `json:"milestones"`
	CompletedMilestones StringList `json:"completedMilestones"`
	AssignedDate        *time.Time `json:"assignedDate"`
	Comments            StringList `json:"comments"`
	Pinned              StringList `json:"pinned"`
	Collaborators       UUIDList   `json:"collaborators"`
	Status              ColumnRef  `json:"status" gorm:"index"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		t.ID = id
	}
	return nil
}
