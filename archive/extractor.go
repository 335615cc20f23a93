package archive

import (
	"context"
	"sort"
	"time"

	"github.com/chxlky/trello-archiver/internal/models"
	"go.uber.org/zap"
)

// RemoteSource is the slice of the Trello client the extractor needs.
type RemoteSource interface {
	GetCard(ctx context.Context, cardID string) (*models.TrelloCard, error)
	GetActions(ctx context.Context, cardID string) ([]models.TrelloAction, error)
	GetChecklists(ctx context.Context, cardID string) ([]models.TrelloChecklist, error)
	GetAttachments(ctx context.Context, cardID string) ([]models.TrelloAttachment, error)
}

// Extractor turns one remote card into a normalized in-memory graph. The card
// detail is mandatory; failures on actions, checklists or attachments leave a
// gap recorded in CardGraph.Missing instead of aborting the extraction.
type Extractor struct {
	source RemoteSource
}

func NewExtractor(source RemoteSource) *Extractor {
	return &Extractor{source: source}
}

func (e *Extractor) Extract(ctx context.Context, cardID string) (*models.CardGraph, error) {
	detail, err := e.source.GetCard(ctx, cardID)
	if err != nil {
		return nil, &RemoteFetchError{CardID: cardID, Resource: "detail", Err: err}
	}

	card, err := mapCard(detail)
	if err != nil {
		return nil, &RemoteFetchError{CardID: cardID, Resource: "detail", Err: err}
	}

	graph := &models.CardGraph{Card: *card}

	actions, err := e.source.GetActions(ctx, cardID)
	if err != nil {
		graph.Missing = append(graph.Missing, "actions")
		zap.L().Warn("Could not fetch card actions", zap.String("card_id", cardID), zap.Error(err))
	} else {
		graph.Card.Comments = mapComments(cardID, actions)
		graph.Card.Path = buildPath(&graph.Card, actions)
	}

	checklists, err := e.source.GetChecklists(ctx, cardID)
	if err != nil {
		graph.Missing = append(graph.Missing, "checklists")
		zap.L().Warn("Could not fetch card checklists", zap.String("card_id", cardID), zap.Error(err))
	} else {
		graph.Card.Checklists = mapChecklists(cardID, checklists)
	}

	attachments, err := e.source.GetAttachments(ctx, cardID)
	if err != nil {
		graph.Missing = append(graph.Missing, "attachments")
		zap.L().Warn("Could not fetch card attachments", zap.String("card_id", cardID), zap.Error(err))
	} else {
		graph.Card.Attachments = mapAttachments(cardID, attachments)
	}

	return graph, nil
}

// mapCard validates and converts the loosely typed API payload into the
// strongly typed card row. Malformed timestamps are rejected here rather than
// propagated downstream.
func mapCard(tc *models.TrelloCard) (*models.Card, error) {
	created, err := models.CardCreationTime(tc.ID)
	if err != nil {
		return nil, err
	}
	lastActivity, err := models.ParseTrelloTime(tc.DateLastActivity)
	if err != nil {
		return nil, err
	}

	card := &models.Card{
		ID:           tc.ID,
		Name:         tc.Name,
		Description:  tc.Desc,
		ListID:       tc.IDList,
		ListName:     tc.List.Name,
		CreatedAt:    created,
		LastActivity: lastActivity,
		DueComplete:  tc.DueComplete,
		Closed:       tc.Closed,
		ArchivedAt:   time.Now().UTC(),
	}

	if tc.Due != "" {
		due, err := models.ParseTrelloTime(tc.Due)
		if err != nil {
			return nil, err
		}
		card.DueDate = &due
	}
	// Completion mirrors the card's own closed flag only; checklist state has
	// no bearing on it.
	if tc.Closed {
		card.CompletedAt = &lastActivity
	}

	for _, l := range tc.Labels {
		card.Labels = append(card.Labels, models.Label{
			CardID: tc.ID,
			ID:     l.ID,
			Name:   l.Name,
			Color:  l.Color,
		})
	}

	return card, nil
}

func mapComments(cardID string, actions []models.TrelloAction) []models.Comment {
	var comments []models.Comment
	for _, a := range actions {
		if a.Type != "commentCard" {
			continue
		}
		posted, err := models.ParseTrelloTime(a.Date)
		if err != nil {
			zap.L().Warn("Skipping comment with malformed timestamp",
				zap.String("card_id", cardID), zap.String("action_id", a.ID))
			continue
		}
		author := a.MemberCreator.FullName
		if author == "" {
			author = a.MemberCreator.Username
		}
		comments = append(comments, models.Comment{
			ID:       a.ID,
			CardID:   cardID,
			Author:   author,
			Text:     a.Data.Text,
			PostedAt: posted,
		})
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].PostedAt.Before(comments[j].PostedAt) })
	return comments
}

// buildPath reconstructs the ordered sequence of lists the card occupied.
// The list the card was created in is synthesized as the first entry even
// when no move was ever recorded for it.
func buildPath(card *models.Card, actions []models.TrelloAction) []models.PathEntry {
	type move struct {
		at     time.Time
		before models.TrelloList
		after  models.TrelloList
	}
	var moves []move
	for _, a := range actions {
		if !a.IsListMove() {
			continue
		}
		at, err := models.ParseTrelloTime(a.Date)
		if err != nil {
			zap.L().Warn("Skipping list move with malformed timestamp",
				zap.String("card_id", card.ID), zap.String("action_id", a.ID))
			continue
		}
		moves = append(moves, move{at: at, before: a.Data.ListBefore, after: a.Data.ListAfter})
	}
	sort.Slice(moves, func(i, j int) bool { return moves[i].at.Before(moves[j].at) })

	// The original list: where the earliest move left from, or the current
	// list if the card never moved.
	origin := models.TrelloList{ID: card.ListID, Name: card.ListName}
	if len(moves) > 0 {
		origin = moves[0].before
	}

	path := []models.PathEntry{{
		CardID:    card.ID,
		ListID:    origin.ID,
		EnteredAt: card.CreatedAt,
		ListName:  origin.Name,
	}}
	for _, m := range moves {
		path = append(path, models.PathEntry{
			CardID:    card.ID,
			ListID:    m.after.ID,
			EnteredAt: m.at,
			ListName:  m.after.Name,
		})
	}
	return path
}

func mapChecklists(cardID string, checklists []models.TrelloChecklist) []models.Checklist {
	var out []models.Checklist
	for _, cl := range checklists {
		mapped := models.Checklist{
			ID:     cl.ID,
			CardID: cardID,
			Name:   cl.Name,
		}
		for _, item := range cl.CheckItems {
			mapped.Items = append(mapped.Items, models.ChecklistItem{
				ID:          item.ID,
				ChecklistID: cl.ID,
				Name:        item.Name,
				Checked:     item.State == "complete",
			})
		}
		out = append(out, mapped)
	}
	return out
}

func mapAttachments(cardID string, attachments []models.TrelloAttachment) []models.Attachment {
	var out []models.Attachment
	for _, a := range attachments {
		out = append(out, models.Attachment{
			CardID:   cardID,
			ID:       a.ID,
			FileName: a.Name,
			URL:      a.URL,
			IsImage:  models.IsImageMime(a.MimeType),
			Bytes:    a.Bytes,
		})
	}
	return out
}
