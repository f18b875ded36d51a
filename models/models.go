package models

import (
	"time"

	"gorm.io/datatypes"
)

// Run represents one extraction run: started, done or failed.
type Run struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	PublicULID string `gorm:"type:varchar(26);uniqueIndex"`

	// Target
	Contract string `gorm:"type:varchar(42);index;not null"`
	Network  string `gorm:"type:varchar(32);not null"`
	ChainID  uint64

	// Outcome
	Status string `gorm:"type:varchar(20);default:'started'"` // started, done, failed
	Steps  int
	Error  string `gorm:"type:text"`

	// Flattened output: instance path -> 64-hex word
	Output datatypes.JSON `gorm:"type:jsonb"`

	StartedAt  time.Time `gorm:"autoCreateTime"`
	FinishedAt *time.Time

	// Relationships
	Observations []Observation `gorm:"foreignKey:RunID"`
}

// Observation is one visited storage node of a run, kept in visit order so
// consumers can reconstruct the traversal shape.
type Observation struct {
	ID    uint   `gorm:"primaryKey;autoIncrement"`
	RunID string `gorm:"type:varchar(36);index;not null"`

	Seq  int    `gorm:"not null"` // visit order
	Path string `gorm:"type:text;not null"`
	Kind string `gorm:"type:varchar(16);not null"`
	Type string `gorm:"type:text"`
	Slot string `gorm:"type:varchar(64)"`
	Word string `gorm:"type:varchar(64)"`
	Step int
}

// All lists every model for migration.
func All() []any {
	return []any{&Run{}, &Observation{}}
}
