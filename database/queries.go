package database

import (
	"context"

	"github.com/chxlky/trello-archiver/internal/models"
	"gorm.io/gorm"
)

// CardFilter narrows ListCards. Zero values mean "no filter".
type CardFilter struct {
	ListID string
	Closed *bool
	Limit  int
	Offset int
}

// ListCards returns card rows (without their sub-entities), newest first.
func (s *Store) ListCards(ctx context.Context, f CardFilter) ([]models.Card, error) {
	q := s.db.WithContext(ctx).Model(&models.Card{}).Order("created_at DESC")
	if f.ListID != "" {
		q = q.Where("list_id = ?", f.ListID)
	}
	if f.Closed != nil {
		q = q.Where("closed = ?", *f.Closed)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var cards []models.Card
	if err := q.Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

// GetCard loads one card with its full graph. Returns gorm.ErrRecordNotFound
// for unknown ids.
func (s *Store) GetCard(ctx context.Context, id string) (*models.Card, error) {
	var card models.Card
	err := s.db.WithContext(ctx).
		Preload("Labels").
		Preload("Path", func(db *gorm.DB) *gorm.DB {
			return db.Order("entered_at ASC")
		}).
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("posted_at ASC")
		}).
		Preload("Checklists.Items").
		Preload("Attachments").
		First(&card, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// ListStat summarises traffic through one board list.
type ListStat struct {
	ListID   string `json:"list_id"`
	ListName string `json:"list_name"`
	Entries  int64  `json:"entries"`
	Cards    int64  `json:"cards"`
}

// ListStats aggregates the path history: how many times cards entered each
// list and how many distinct cards passed through it.
func (s *Store) ListStats(ctx context.Context) ([]ListStat, error) {
	var stats []ListStat
	err := s.db.WithContext(ctx).Raw(`
		SELECT list_id, list_name, COUNT(*) AS entries, COUNT(DISTINCT card_id) AS cards
		FROM path_entries
		GROUP BY list_id, list_name
		ORDER BY entries DESC`).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// CountCards reports the archive size, used by the health endpoint.
func (s *Store) CountCards(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Card{}).Count(&n).Error
	return n, err
}
