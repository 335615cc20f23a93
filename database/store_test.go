package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chxlky/trello-archiver/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Init(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return NewStore(db)
}

func testGraph() *models.CardGraph {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	moved := created.Add(48 * time.Hour)
	due := created.Add(30 * 24 * time.Hour)

	return &models.CardGraph{
		Card: models.Card{
			ID:           "card1",
			Name:         "Ship the release",
			Description:  "Cut and publish v2",
			ListID:       "list-doing",
			ListName:     "Doing",
			CreatedAt:    created,
			LastActivity: moved,
			DueDate:      &due,
			ArchivedAt:   time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
			Labels: []models.Label{
				{CardID: "card1", ID: "lab1", Name: "release", Color: "green"},
			},
			Path: []models.PathEntry{
				{CardID: "card1", ListID: "list-todo", ListName: "To Do", EnteredAt: created},
				{CardID: "card1", ListID: "list-doing", ListName: "Doing", EnteredAt: moved},
			},
			Comments: []models.Comment{
				{ID: "com1", CardID: "card1", Author: "Alice", Text: "started", PostedAt: created.Add(time.Hour)},
				{ID: "com2", CardID: "card1", Author: "Bob", Text: "reviewed", PostedAt: created.Add(2 * time.Hour)},
			},
			Checklists: []models.Checklist{
				{ID: "chk1", CardID: "card1", Name: "Release steps", Items: []models.ChecklistItem{
					{ID: "item1", ChecklistID: "chk1", Name: "tag", Checked: true},
					{ID: "item2", ChecklistID: "chk1", Name: "announce", Checked: false},
				}},
			},
			Attachments: []models.Attachment{
				{CardID: "card1", ID: "att1", FileName: "notes.pdf", URL: "https://example.com/notes.pdf"},
			},
		},
	}
}

func count(t *testing.T, s *Store, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.db.Model(model).Count(&n).Error)
	return n
}

func TestUpsertGraph_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertGraph(ctx, testGraph()))
	first, err := s.GetCard(ctx, "card1")
	require.NoError(t, err)

	require.NoError(t, s.UpsertGraph(ctx, testGraph()))
	second, err := s.GetCard(ctx, "card1")
	require.NoError(t, err)

	assert.EqualValues(t, 1, count(t, s, &models.Card{}))
	assert.EqualValues(t, 1, count(t, s, &models.Label{}))
	assert.EqualValues(t, 2, count(t, s, &models.PathEntry{}))
	assert.EqualValues(t, 2, count(t, s, &models.Comment{}))
	assert.EqualValues(t, 1, count(t, s, &models.Checklist{}))
	assert.EqualValues(t, 2, count(t, s, &models.ChecklistItem{}))
	assert.EqualValues(t, 1, count(t, s, &models.Attachment{}))

	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.Path, second.Path)
	assert.Equal(t, first.Comments, second.Comments)
}

func TestUpsertGraph_KeepsFirstArchivedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := testGraph()
	require.NoError(t, s.UpsertGraph(ctx, first))

	// A later run stamps a fresh archival time; the stored row must not churn.
	rerun := testGraph()
	rerun.Card.ArchivedAt = first.Card.ArchivedAt.Add(24 * time.Hour)
	require.NoError(t, s.UpsertGraph(ctx, rerun))

	card, err := s.GetCard(ctx, "card1")
	require.NoError(t, err)
	assert.Equal(t, first.Card.ArchivedAt, card.ArchivedAt.UTC())
}

func TestUpsertGraph_AppendsOnlyNewEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertGraph(ctx, testGraph()))

	g := testGraph()
	later := g.Card.LastActivity.Add(24 * time.Hour)
	g.Card.Comments = append(g.Card.Comments, models.Comment{
		ID: "com3", CardID: "card1", Author: "Alice", Text: "done", PostedAt: later,
	})
	g.Card.Path = append(g.Card.Path, models.PathEntry{
		CardID: "card1", ListID: "list-done", ListName: "Done", EnteredAt: later,
	})
	require.NoError(t, s.UpsertGraph(ctx, g))

	card, err := s.GetCard(ctx, "card1")
	require.NoError(t, err)
	require.Len(t, card.Comments, 3)
	require.Len(t, card.Path, 3)

	// Ordered by timestamp, union of old and new, no duplicates.
	assert.Equal(t, "com3", card.Comments[2].ID)
	assert.Equal(t, "list-done", card.Path[2].ListID)
	for i := 1; i < len(card.Path); i++ {
		assert.True(t, card.Path[i-1].EnteredAt.Before(card.Path[i].EnteredAt))
	}
}

func TestUpsertGraph_ReplacesLabelSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertGraph(ctx, testGraph()))

	g := testGraph()
	g.Card.Labels = []models.Label{
		{CardID: "card1", ID: "lab2", Name: "urgent", Color: "red"},
	}
	require.NoError(t, s.UpsertGraph(ctx, g))

	card, err := s.GetCard(ctx, "card1")
	require.NoError(t, err)
	require.Len(t, card.Labels, 1)
	assert.Equal(t, "lab2", card.Labels[0].ID)
}

func TestUpsertGraph_ReplacesChecklistTree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertGraph(ctx, testGraph()))

	g := testGraph()
	g.Card.Checklists = []models.Checklist{
		{ID: "chk2", CardID: "card1", Name: "Follow-up", Items: []models.ChecklistItem{
			{ID: "item3", ChecklistID: "chk2", Name: "retro", Checked: false},
		}},
	}
	require.NoError(t, s.UpsertGraph(ctx, g))

	card, err := s.GetCard(ctx, "card1")
	require.NoError(t, err)
	require.Len(t, card.Checklists, 1)
	assert.Equal(t, "chk2", card.Checklists[0].ID)
	require.Len(t, card.Checklists[0].Items, 1)
	assert.EqualValues(t, 1, count(t, s, &models.ChecklistItem{}))
}

func TestUpsertGraph_RollsBackOnFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := testGraph()
	// Duplicate checklist primary keys make the tree insert fail mid-transaction.
	g.Card.Checklists = append(g.Card.Checklists, g.Card.Checklists[0])
	require.Error(t, s.UpsertGraph(ctx, g))

	assert.EqualValues(t, 0, count(t, s, &models.Card{}))
	assert.EqualValues(t, 0, count(t, s, &models.Label{}))
	assert.EqualValues(t, 0, count(t, s, &models.PathEntry{}))
	assert.EqualValues(t, 0, count(t, s, &models.Comment{}))
	assert.EqualValues(t, 0, count(t, s, &models.Attachment{}))
}

func TestUpsertGraph_RollbackKeepsPriorState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertGraph(ctx, testGraph()))

	g := testGraph()
	g.Card.Name = "should not land"
	g.Card.Checklists = append(g.Card.Checklists, g.Card.Checklists[0])
	require.Error(t, s.UpsertGraph(ctx, g))

	card, err := s.GetCard(ctx, "card1")
	require.NoError(t, err)
	assert.Equal(t, "Ship the release", card.Name)
	assert.EqualValues(t, 1, count(t, s, &models.Checklist{}))
}

func TestSetAttachmentPath_SurvivesReUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertGraph(ctx, testGraph()))
	require.NoError(t, s.SetAttachmentPath(ctx, "card1", "att1", "/data/card1/att1-notes.pdf"))

	require.NoError(t, s.UpsertGraph(ctx, testGraph()))

	card, err := s.GetCard(ctx, "card1")
	require.NoError(t, err)
	require.Len(t, card.Attachments, 1)
	assert.Equal(t, "/data/card1/att1-notes.pdf", card.Attachments[0].LocalPath)
}

func TestListCards_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertGraph(ctx, testGraph()))

	g := testGraph()
	g.Card.ID = "card2"
	g.Card.Name = "Old chore"
	g.Card.Closed = true
	g.Card.Labels = nil
	g.Card.Path = nil
	g.Card.Comments = nil
	g.Card.Checklists = nil
	g.Card.Attachments = nil
	require.NoError(t, s.UpsertGraph(ctx, g))

	all, err := s.ListCards(ctx, CardFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	closed := true
	filtered, err := s.ListCards(ctx, CardFilter{Closed: &closed})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "card2", filtered[0].ID)
}

func TestListStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertGraph(ctx, testGraph()))

	stats, err := s.ListStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	for _, st := range stats {
		assert.EqualValues(t, 1, st.Entries)
		assert.EqualValues(t, 1, st.Cards)
	}
}

func TestGetCard_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCard(context.Background(), "nope")
	require.Error(t, err)
}
