package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chxlky/trello-archiver/config"
	"github.com/chxlky/trello-archiver/integrations"
	"github.com/chxlky/trello-archiver/internal/models"
	"go.uber.org/zap"
)

// Remote is the full client surface the orchestrator drives.
type Remote interface {
	RemoteSource
	ListCards(ctx context.Context, listID string) ([]models.TrelloCard, error)
	DeleteCard(ctx context.Context, cardID string) error
}

// GraphStore is the persistence surface the orchestrator writes through.
type GraphStore interface {
	UpsertGraph(ctx context.Context, g *models.CardGraph) error
	SetAttachmentPath(ctx context.Context, cardID, attachmentID, localPath string) error
}

// Result summarises one archive run.
type Result struct {
	Eligible           int
	Skipped            int
	Archived           int
	Failed             int
	Deleted            int
	AttachmentsFetched int
	AttachmentsFailed  int
}

// Orchestrator drives one archival pass: select eligible cards, extract,
// persist, fetch attachments, optionally delete remotely. Failures are
// per-card; one bad card never aborts the rest of the run.
type Orchestrator struct {
	client    Remote
	store     GraphStore
	extractor *Extractor
	fetcher   *Fetcher

	listID      string
	minAge      time.Duration
	ageBasis    string
	removeAfter bool
	workers     int

	now func() time.Time
}

func NewOrchestrator(cfg *config.Config, client Remote, store GraphStore, fetcher *Fetcher) *Orchestrator {
	return &Orchestrator{
		client:      client,
		store:       store,
		extractor:   NewExtractor(client),
		fetcher:     fetcher,
		listID:      cfg.Trello.ListID,
		minAge:      cfg.Archive.MinAge,
		ageBasis:    cfg.Archive.AgeBasis,
		removeAfter: cfg.Archive.RemoveAfter,
		workers:     cfg.Archive.Workers,
		now:         time.Now,
	}
}

// Run performs one pass over the source list. Eligible cards are processed
// with bounded parallelism; each card's pipeline is independent and keyed by
// its own id, so workers never contend on the same aggregate.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	cards, err := o.client.ListCards(ctx, o.listID)
	if err != nil {
		return nil, fmt.Errorf("listing cards in %s: %w", o.listID, err)
	}

	res := &Result{}
	var eligible []models.TrelloCard
	for _, tc := range cards {
		if o.eligible(tc) {
			eligible = append(eligible, tc)
		} else {
			res.Skipped++
		}
	}
	res.Eligible = len(eligible)
	zap.L().Info("Selected cards for archival",
		zap.String("list_id", o.listID),
		zap.Int("eligible", res.Eligible),
		zap.Int("skipped", res.Skipped))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, o.workers) // limit concurrent card pipelines
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		fatalErr error
		once     sync.Once
	)

	for _, tc := range eligible {
		wg.Add(1)
		go func(tc models.TrelloCard) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			out := o.processCard(ctx, tc.ID)

			mu.Lock()
			if out.err != nil {
				res.Failed++
			} else {
				res.Archived++
			}
			if out.deleted {
				res.Deleted++
			}
			res.AttachmentsFetched += out.attachmentsFetched
			res.AttachmentsFailed += out.attachmentsFailed
			mu.Unlock()

			// Rejected credentials are a configuration problem, not a
			// per-card one. Stop the whole run.
			if out.err != nil && errors.Is(out.err, integrations.ErrUnauthorized) {
				once.Do(func() {
					mu.Lock()
					fatalErr = out.err
					mu.Unlock()
					cancel()
				})
			}
		}(tc)
	}
	wg.Wait()

	if fatalErr != nil {
		return res, fatalErr
	}
	return res, nil
}

// eligible applies the age threshold against the configured basis: time
// since last activity, or time since the card was created.
func (o *Orchestrator) eligible(tc models.TrelloCard) bool {
	var basis time.Time
	switch o.ageBasis {
	case config.AgeBasisCreation:
		created, err := models.CardCreationTime(tc.ID)
		if err != nil {
			zap.L().Warn("Card id carries no creation timestamp, skipping",
				zap.String("card_id", tc.ID), zap.Error(err))
			return false
		}
		basis = created
	default:
		t, err := models.ParseTrelloTime(tc.DateLastActivity)
		if err != nil {
			// No usable activity date: treat like a card that never moved.
			return true
		}
		basis = t
	}
	return o.now().Sub(basis) >= o.minAge
}

type cardOutcome struct {
	deleted            bool
	attachmentsFetched int
	attachmentsFailed  int
	err                error
}

// processCard walks one card through extract -> persist -> fetch attachments
// -> optional remote deletion. A failure at any stage leaves the remote card
// untouched and the card is retried from selection on the next run.
func (o *Orchestrator) processCard(ctx context.Context, cardID string) cardOutcome {
	log := zap.L().With(zap.String("card_id", cardID))

	graph, err := o.extractor.Extract(ctx, cardID)
	if err != nil {
		log.Error("Extraction failed", zap.String("stage", "extract"), zap.Error(err))
		return cardOutcome{err: err}
	}
	if !graph.IsComplete() {
		log.Warn("Archiving partial graph; missing sub-resources will be re-fetched next run",
			zap.Strings("missing", graph.Missing))
	}

	if err := o.store.UpsertGraph(ctx, graph); err != nil {
		perr := &PersistenceError{CardID: cardID, Err: err}
		log.Error("Persistence failed, transaction rolled back",
			zap.String("stage", "persist"), zap.Error(perr))
		return cardOutcome{err: perr}
	}

	out := cardOutcome{}
	attachmentsOK := true
	for _, att := range graph.Card.Attachments {
		path, err := o.fetcher.Fetch(ctx, att)
		if err != nil {
			attachmentsOK = false
			out.attachmentsFailed++
			log.Warn("Attachment download failed, will retry next run",
				zap.String("stage", "attachments"), zap.Error(err))
			continue
		}
		if err := o.store.SetAttachmentPath(ctx, att.CardID, att.ID, path); err != nil {
			attachmentsOK = false
			out.attachmentsFailed++
			log.Warn("Could not record attachment path",
				zap.String("stage", "attachments"),
				zap.String("attachment_id", att.ID), zap.Error(err))
			continue
		}
		out.attachmentsFetched++
	}

	// Deletion never precedes durability: the graph must be complete, the
	// transaction committed and every attachment on disk before the remote
	// copy is touched.
	if o.removeAfter && graph.IsComplete() && attachmentsOK {
		if err := o.client.DeleteCard(ctx, cardID); err != nil {
			derr := &RemoteDeletionError{CardID: cardID, Err: err}
			log.Error("Remote deletion failed, card stays on the board",
				zap.String("stage", "delete"), zap.Error(derr))
		} else {
			out.deleted = true
			log.Info("Card removed from remote board", zap.String("stage", "delete"))
		}
	}

	log.Info("Card archived",
		zap.Int("attachments_fetched", out.attachmentsFetched),
		zap.Int("attachments_failed", out.attachmentsFailed),
		zap.Bool("deleted_remotely", out.deleted))
	return out
}
