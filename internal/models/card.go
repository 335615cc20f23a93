package models

import "time"

// Card is the root aggregate for one archived Trello card. Remote ids are the
// primary keys everywhere, so re-archiving a card updates rows in place
// instead of duplicating them. Every child table cascades with the card row.
type Card struct {
	ID           string     `gorm:"primaryKey" json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	ListID       string     `gorm:"index" json:"list_id"`
	ListName     string     `json:"list_name"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	DueComplete  bool       `gorm:"default:false" json:"due_complete"`
	Closed       bool       `gorm:"default:false" json:"closed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ArchivedAt   time.Time  `json:"archived_at"`

	Labels      []Label      `gorm:"constraint:OnDelete:CASCADE" json:"labels,omitempty"`
	Path        []PathEntry  `gorm:"constraint:OnDelete:CASCADE" json:"path,omitempty"`
	Comments    []Comment    `gorm:"constraint:OnDelete:CASCADE" json:"comments,omitempty"`
	Checklists  []Checklist  `gorm:"constraint:OnDelete:CASCADE" json:"checklists,omitempty"`
	Attachments []Attachment `gorm:"constraint:OnDelete:CASCADE" json:"attachments,omitempty"`
}

// Label membership is keyed by (card, remote label id). The full set is
// replaced on every upsert since labels carry no history.
type Label struct {
	CardID string `gorm:"primaryKey" json:"-"`
	ID     string `gorm:"primaryKey" json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`
}

// PathEntry is one stop in the ordered sequence of lists a card has occupied.
// Entries are immutable once recorded; (card, list, entered_at) identifies one.
type PathEntry struct {
	CardID    string    `gorm:"primaryKey" json:"-"`
	ListID    string    `gorm:"primaryKey" json:"list_id"`
	EnteredAt time.Time `gorm:"primaryKey" json:"entered_at"`
	ListName  string    `json:"list_name"`
}

// Comment rows are append-only, deduplicated by the remote comment action id.
type Comment struct {
	ID       string    `gorm:"primaryKey" json:"id"`
	CardID   string    `gorm:"index" json:"-"`
	Author   string    `json:"author"`
	Text     string    `json:"text"`
	PostedAt time.Time `json:"posted_at"`
}

type Checklist struct {
	ID     string          `gorm:"primaryKey" json:"id"`
	CardID string          `gorm:"index" json:"-"`
	Name   string          `json:"name"`
	Items  []ChecklistItem `gorm:"constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

type ChecklistItem struct {
	ID          string `gorm:"primaryKey" json:"id"`
	ChecklistID string `gorm:"index" json:"-"`
	Name        string `json:"name"`
	Checked     bool   `json:"checked"`
}

// Attachment metadata; LocalPath is filled in only after the binary has been
// downloaded successfully, so an absent path marks the download for retry.
type Attachment struct {
	CardID    string `gorm:"primaryKey" json:"-"`
	ID        string `gorm:"primaryKey" json:"id"`
	FileName  string `json:"file_name"`
	URL       string `json:"url"`
	LocalPath string `json:"local_path,omitempty"`
	IsImage   bool   `json:"is_image"`
	Bytes     int64  `json:"bytes,omitempty"`
}

// CardGraph is one card together with every sub-resource the extractor
// managed to fetch. Missing names the sub-resources whose fetch failed
// ("actions", "checklists" or "attachments"); the orchestrator decides
// whether a partial graph is acceptable.
type CardGraph struct {
	Card    Card
	Missing []string
}

func (g *CardGraph) IsComplete() bool {
	return len(g.Missing) == 0
}

// All lists every entity type the store migrates.
func All() []any {
	return []any{
		&Card{},
		&Label{},
		&PathEntry{},
		&Comment{},
		&Checklist{},
		&ChecklistItem{},
		&Attachment{},
	}
}
