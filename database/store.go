package database

import (
	"context"
	"fmt"

	"github.com/chxlky/trello-archiver/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps the archive database with the write and read operations the
// archiver and the read-only API need.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UpsertGraph writes one card graph in a single transaction. Submitting the
// identical graph again is a no-op; a graph with extra comments or path
// entries appends only the new rows. Per-entity rules:
//
//   - card row: insert-or-replace on the card id; archived_at keeps the
//     value from the first archival
//   - labels: full set replaced (no history to preserve)
//   - path entries: insert-if-absent, rows are immutable once recorded
//   - comments: insert-if-absent on the remote comment id
//   - checklists: full tree replaced (mutable structure, no history)
//   - attachments: insert-or-replace, but an already-recorded local path
//     survives so finished downloads aren't forgotten
//
// On any error the transaction rolls back and no partial rows are observable.
func (s *Store) UpsertGraph(ctx context.Context, g *models.CardGraph) error {
	if g.Card.ID == "" {
		return fmt.Errorf("refusing to upsert card graph without a card id")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		card := g.Card
		labels, path := card.Labels, card.Path
		comments, checklists, attachments := card.Comments, card.Checklists, card.Attachments

		if err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"name", "description", "list_id", "list_name",
					"created_at", "last_activity", "due_date",
					"due_complete", "closed", "completed_at",
				}),
			}).
			Create(&card).Error; err != nil {
			return fmt.Errorf("upsert card %s: %w", card.ID, err)
		}

		if err := tx.Where("card_id = ?", card.ID).Delete(&models.Label{}).Error; err != nil {
			return fmt.Errorf("clear labels for card %s: %w", card.ID, err)
		}
		if len(labels) > 0 {
			if err := tx.Create(&labels).Error; err != nil {
				return fmt.Errorf("insert labels for card %s: %w", card.ID, err)
			}
		}

		if len(path) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&path).Error; err != nil {
				return fmt.Errorf("insert path entries for card %s: %w", card.ID, err)
			}
		}

		if len(comments) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&comments).Error; err != nil {
				return fmt.Errorf("insert comments for card %s: %w", card.ID, err)
			}
		}

		if err := replaceChecklists(tx, card.ID, checklists); err != nil {
			return err
		}

		if err := upsertAttachments(tx, card.ID, attachments); err != nil {
			return err
		}

		return nil
	})
}

func replaceChecklists(tx *gorm.DB, cardID string, checklists []models.Checklist) error {
	ids := tx.Model(&models.Checklist{}).Select("id").Where("card_id = ?", cardID)
	if err := tx.Where("checklist_id IN (?)", ids).Delete(&models.ChecklistItem{}).Error; err != nil {
		return fmt.Errorf("clear checklist items for card %s: %w", cardID, err)
	}
	if err := tx.Where("card_id = ?", cardID).Delete(&models.Checklist{}).Error; err != nil {
		return fmt.Errorf("clear checklists for card %s: %w", cardID, err)
	}

	var items []models.ChecklistItem
	for i := range checklists {
		items = append(items, checklists[i].Items...)
	}
	if len(checklists) > 0 {
		if err := tx.Omit(clause.Associations).Create(&checklists).Error; err != nil {
			return fmt.Errorf("insert checklists for card %s: %w", cardID, err)
		}
	}
	if len(items) > 0 {
		if err := tx.Create(&items).Error; err != nil {
			return fmt.Errorf("insert checklist items for card %s: %w", cardID, err)
		}
	}
	return nil
}

func upsertAttachments(tx *gorm.DB, cardID string, attachments []models.Attachment) error {
	if len(attachments) == 0 {
		return nil
	}
	// The extractor never knows local paths, so only the metadata columns are
	// updated on conflict; a previously recorded download path stays intact.
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "card_id"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"file_name", "url", "is_image", "bytes"}),
	}).Create(&attachments).Error
	if err != nil {
		return fmt.Errorf("upsert attachments for card %s: %w", cardID, err)
	}
	return nil
}

// SetAttachmentPath records where an attachment's binary landed on disk.
// Called outside the graph transaction, after the download succeeded.
func (s *Store) SetAttachmentPath(ctx context.Context, cardID, attachmentID, localPath string) error {
	return s.db.WithContext(ctx).Model(&models.Attachment{}).
		Where("card_id = ? AND id = ?", cardID, attachmentID).
		Update("local_path", localPath).Error
}
