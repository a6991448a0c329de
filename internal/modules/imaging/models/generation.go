package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Generation kinds
const (
	KindGenerate = "generate"
	KindEdit     = "edit"
)

// GenerationResult is one stored output: either a public URL with its
// storage path, or the inline base64 image when storage was unavailable.
type GenerationResult struct {
	URL  string `json:"url,omitempty"`
	Path string `json:"path,omitempty"`
	B64  string `json:"b64,omitempty"`
}

// Generation is the history row written after a successful provider call
type Generation struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string         `gorm:"type:text;not null;index" json:"user_id"`
	Kind      string         `gorm:"type:text;not null" json:"kind"`
	Prompt    string         `gorm:"type:text;not null" json:"prompt"`
	Size      string         `gorm:"type:text" json:"size"`
	Quality   string         `gorm:"type:text" json:"quality"`
	N         int            `gorm:"not null;default:1" json:"n"`
	Results   datatypes.JSON `json:"results"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

// TableName specifies the table name
func (Generation) TableName() string {
	return "generations"
}

// BeforeCreate sets UUID before creating
func (g *Generation) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// SetResults encodes results into the JSON column.
func (g *Generation) SetResults(results []GenerationResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	g.Results = datatypes.JSON(data)
	return nil
}

// DecodeResults returns the stored results.
func (g *Generation) DecodeResults() ([]GenerationResult, error) {
	if len(g.Results) == 0 {
		return nil, nil
	}
	var results []GenerationResult
	if err := json.Unmarshal(g.Results, &results); err != nil {
		return nil, err
	}
	return results, nil
}
