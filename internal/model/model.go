package model

import "time"

// Definition describes one tree control: its configuration and its rows.
// Definitions are authored as YAML files and echoed as JSON or YAML by the CLI.
type Definition struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Type is vertical|horizontal.
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
	// SelectMode is single|multiple.
	SelectMode string `json:"selectMode,omitempty" yaml:"selectMode,omitempty"`
	// ExpandMode is client|lazy|dynamic.
	ExpandMode string `json:"expandMode,omitempty" yaml:"expandMode,omitempty"`
	Shuffle    bool   `json:"shuffle,omitempty" yaml:"shuffle,omitempty"`

	Items []NodeDef `json:"items" yaml:"items"`

	// Custom is the initial custom arrangement copied into every session.
	Custom []CustomDef `json:"custom,omitempty" yaml:"custom,omitempty"`

	// Source is the file the definition was read from. Not persisted.
	Source string `json:"-" yaml:"-"`
}

type NodeDef struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// Expandable defaults to true when the node has items.
	Expandable *bool `json:"expandable,omitempty" yaml:"expandable,omitempty"`

	Image *ImageDef `json:"image,omitempty" yaml:"image,omitempty"`
	Items []NodeDef `json:"items,omitempty" yaml:"items,omitempty"`
}

// IsExpandable resolves the Expandable default.
func (n NodeDef) IsExpandable() bool {
	if n.Expandable != nil {
		return *n.Expandable
	}
	return len(n.Items) > 0
}

// ImageDef is either an external URL or a file served through targeted requests.
type ImageDef struct {
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
	MimeType string `json:"mimeType,omitempty" yaml:"mimeType,omitempty"`
	CacheKey string `json:"cacheKey,omitempty" yaml:"cacheKey,omitempty"`
}

type CustomDef struct {
	ID string `json:"id" yaml:"id"`
	// Expandable marks a branch whose children load from the rows on first open.
	Expandable bool        `json:"expandable,omitempty" yaml:"expandable,omitempty"`
	Items      []CustomDef `json:"items,omitempty" yaml:"items,omitempty"`
}

// TreeState is the persisted per-session state of one tree.
type TreeState struct {
	SessionID string    `json:"sessionId" yaml:"sessionId"`
	TreeID    string    `json:"treeId" yaml:"treeId"`
	Selected  []string  `json:"selected" yaml:"selected"`
	Expanded  []string  `json:"expanded" yaml:"expanded"`
	Custom    string    `json:"custom,omitempty" yaml:"custom,omitempty"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Activity records a deferred action that ran for a session.
type Activity struct {
	ID        string    `json:"id" yaml:"id"`
	SessionID string    `json:"sessionId" yaml:"sessionId"`
	TreeID    string    `json:"treeId" yaml:"treeId"`
	Type      string    `json:"type" yaml:"type"`
	ItemID    string    `json:"itemId,omitempty" yaml:"itemId,omitempty"`
	At        time.Time `json:"at" yaml:"at"`
}

const (
	ActivityOpen    = "tree.open"
	ActivityShuffle = "tree.shuffle"
)
