package models

import (
	"time"

	"dreamlog/backend/internal/dream"
)

// AnonymousAuthor is shown in the public library for anonymous dreams.
const AnonymousAuthor = "匿名"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Dream struct {
	ID             int64               `json:"id"`
	UserID         int64               `json:"-"`
	Author         string              `json:"author"`
	Content        string              `json:"content"`
	MoodLevel      int                 `json:"mood_level"`
	RealityContext string              `json:"reality_context"`
	IsPublic       bool                `json:"is_public"`
	IsAnonymous    bool                `json:"is_anonymous"`
	IsSaved        bool                `json:"is_saved"`
	IsOwner        bool                `json:"is_owner"`
	Analysis       string              `json:"analysis"`
	Narrative      string              `json:"narrative"`
	Keywords       []string            `json:"keywords"`
	Radar          *dream.RadarProfile `json:"radar"`
	Backend        string              `json:"backend,omitempty"`
	Degraded       bool                `json:"degraded"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Hydrate fills narrative and radar from the packed analysis for rows
// written before they were stored separately.
func (d *Dream) Hydrate() {
	if d.Radar != nil && d.Narrative != "" {
		return
	}
	narrative, radar, err := dream.Parse(d.Analysis)
	if d.Narrative == "" {
		d.Narrative = narrative
	}
	if d.Radar == nil && err == nil {
		d.Radar = &radar
	}
}
