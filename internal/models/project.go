package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// ColumnKind replaces the old "done column" id convention with an explicit tag.
type ColumnKind string

const (
	ColumnKindNormal   ColumnKind = "normal"
	ColumnKindTerminal ColumnKind = "terminal"
)

// Column is a stage of a project's board. It is embedded in the project row.
type Column struct {
	ID    uuid.UUID  `json:"id"`
	Title string     `json:"title"`
	Kind  ColumnKind `json:"kind"`
}

func (c Column) IsTerminal() bool {
	return c.Kind == ColumnKindTerminal
}

type columnJSON struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Kind         ColumnKind `json:"kind,omitempty"`
	CompleteTask bool       `json:"complete_task"`
}

// MarshalJSON keeps the complete_task flag on the wire alongside the kind.
func (c Column) MarshalJSON() ([]byte, error) {
	kind := c.Kind
	if kind == "" {
		kind = ColumnKindNormal
	}
	return json.Marshal(columnJSON{
		ID:           c.ID,
		Title:        c.Title,
		Kind:         kind,
		CompleteTask: kind == ColumnKindTerminal,
	})
}

func (c *Column) UnmarshalJSON(data []byte) error {
	var raw columnJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ID = raw.ID
	c.Title = raw.Title
	switch {
	case raw.CompleteTask, raw.Kind == ColumnKindTerminal:
		c.Kind = ColumnKindTerminal
	default:
		c.Kind = ColumnKindNormal
	}
	return nil
}

// Columns is the ordered column list of a project, stored as JSON text.
type Columns []Column

func (c Columns) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (c *Columns) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*c = Columns{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported columns value %T", value)
	}
	return json.Unmarshal(data, c)
}

func (Columns) GormDataType() string {
	return "text"
}

// Terminal returns the column flagged as the "done" stage.
func (c Columns) Terminal() (Column, bool) {
	for _, col := range c {
		if col.IsTerminal() {
			return col, true
		}
	}
	return Column{}, false
}

func (c Columns) Find(id uuid.UUID) (Column, bool) {
	if id == uuid.Nil {
		return Column{}, false
	}
	for _, col := range c {
		if col.ID == id {
			return col, true
		}
	}
	return Column{}, false
}

func (c Columns) Contains(ref ColumnRef) bool {
	_, ok := c.Find(ref.ColumnID())
	return ok
}

func (c Columns) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c))
	for _, col := range c {
		ids = append(ids, col.ID)
	}
	return ids
}

type Project struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	Title     string    `json:"title" gorm:"not null"`
	UserID    uuid.UUID `json:"userId" gorm:"type:uuid;not null;index"`
	Columns   Columns   `json:"columns"`
	Version   int64     `json:"version" gorm:"not null;default:1"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		p.ID = id
	}
	if p.Version == 0 {
		p.Version = 1
	}
	return nil
}

// OwnedBy reports whether userID created the project.
func (p *Project) OwnedBy(userID uuid.UUID) bool {
	return p.UserID == userID
}

// DefaultColumns is the board every new project starts with.
func DefaultColumns() Columns {
	return Columns{
		{ID: uuid.Must(uuid.NewV4()), Title: "To Do", Kind: ColumnKindNormal},
		{ID: uuid.Must(uuid.NewV4()), Title: "In Progress", Kind: ColumnKindNormal},
		{ID: uuid.Must(uuid.NewV4()), Title: "Done", Kind: ColumnKindTerminal},
	}
}
