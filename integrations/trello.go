package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"github.com/chxlky/trello-archiver/config"
	"github.com/chxlky/trello-archiver/internal/models"
	"golang.org/x/time/rate"
)

// ErrUnauthorized marks credentials the Trello API rejected. It is a fatal
// configuration problem, never a per-card retryable one.
var ErrUnauthorized = errors.New("trello API rejected the configured credentials")

// TrelloClient talks to the Trello REST API with client-side throttling and
// bounded retry with exponential backoff on 429/5xx responses.
type TrelloClient struct {
	client      *http.Client
	dlClient    *http.Client
	limiter     *rate.Limiter
	baseURL     string
	apiKey      string
	apiToken    string
	maxAttempts uint
}

func NewTrelloClient(cfg config.TrelloConfig) *TrelloClient {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &TrelloClient{
		client:      &http.Client{Timeout: cfg.RequestTimeout},
		dlClient:    &http.Client{Timeout: cfg.DownloadTimeout},
		limiter:     rate.NewLimiter(limit, 1),
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		apiToken:    cfg.APIToken,
		maxAttempts: uint(cfg.MaxAttempts),
	}
}

// ListCards returns every open card in a list with the fields eligibility
// selection needs.
func (tc *TrelloClient) ListCards(ctx context.Context, listID string) ([]models.TrelloCard, error) {
	query := url.Values{}
	query.Set("fields", "id,name,closed,idList,due,dueComplete,dateLastActivity")
	var cards []models.TrelloCard
	if err := tc.do(ctx, http.MethodGet, "/lists/"+listID+"/cards", query, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func (tc *TrelloClient) GetCard(ctx context.Context, cardID string) (*models.TrelloCard, error) {
	query := url.Values{}
	query.Set("fields", "id,name,desc,closed,idList,idBoard,due,dueComplete,dateLastActivity,labels")
	query.Set("list", "true")
	var card models.TrelloCard
	if err := tc.do(ctx, http.MethodGet, "/cards/"+cardID, query, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

const actionsPageLimit = 1000

// GetActions fetches the card's full comment and list-move history, newest
// first as Trello returns it. Pages through the action log so long-lived
// cards don't lose their oldest moves.
func (tc *TrelloClient) GetActions(ctx context.Context, cardID string) ([]models.TrelloAction, error) {
	var actions []models.TrelloAction
	before := ""
	for {
		query := url.Values{}
		query.Set("filter", "commentCard,updateCard:idList")
		query.Set("limit", strconv.Itoa(actionsPageLimit))
		if before != "" {
			query.Set("before", before)
		}
		var page []models.TrelloAction
		if err := tc.do(ctx, http.MethodGet, "/cards/"+cardID+"/actions", query, &page); err != nil {
			return nil, err
		}
		actions = append(actions, page...)
		if len(page) < actionsPageLimit {
			return actions, nil
		}
		// Newest first, so the oldest id on the page cursors the next one.
		before = page[len(page)-1].ID
	}
}

func (tc *TrelloClient) GetChecklists(ctx context.Context, cardID string) ([]models.TrelloChecklist, error) {
	var checklists []models.TrelloChecklist
	if err := tc.do(ctx, http.MethodGet, "/cards/"+cardID+"/checklists", nil, &checklists); err != nil {
		return nil, err
	}
	return checklists, nil
}

func (tc *TrelloClient) GetAttachments(ctx context.Context, cardID string) ([]models.TrelloAttachment, error) {
	var attachments []models.TrelloAttachment
	if err := tc.do(ctx, http.MethodGet, "/cards/"+cardID+"/attachments", nil, &attachments); err != nil {
		return nil, err
	}
	return attachments, nil
}

// DeleteCard permanently removes a card from the remote board. Only ever
// called after the card's graph is durable locally.
func (tc *TrelloClient) DeleteCard(ctx context.Context, cardID string) error {
	return tc.do(ctx, http.MethodDelete, "/cards/"+cardID, nil, nil)
}

// DownloadAttachment streams an attachment binary into dst. Uploaded
// attachments require the OAuth authorization header; external URLs ignore it.
func (tc *TrelloClient) DownloadAttachment(ctx context.Context, fileURL string, dst io.Writer) error {
	if err := tc.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("Authorization",
		fmt.Sprintf(`OAuth oauth_consumer_key="%s", oauth_token="%s"`, tc.apiKey, tc.apiToken))

	resp, err := tc.dlClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", fileURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned non-200 status: %s", resp.Status)
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("failed to write download body: %w", err)
	}
	return nil
}

func (tc *TrelloClient) do(ctx context.Context, method, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("key", tc.apiKey)
	query.Set("token", tc.apiToken)
	endpoint := tc.baseURL + path + "?" + query.Encode()

	return retry.Do(
		func() error {
			if err := tc.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to create %s request: %w", method, err))
			}
			resp, err := tc.client.Do(req)
			if err != nil {
				return fmt.Errorf("failed to send %s request: %w", method, err)
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
				return retry.Unrecoverable(ErrUnauthorized)
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				return fmt.Errorf("trello API returned %s for %s %s", resp.Status, method, path)
			case resp.StatusCode != http.StatusOK:
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return retry.Unrecoverable(
					fmt.Errorf("trello API returned non-200 status: %s, body: %s", resp.Status, body))
			}

			if out == nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to decode Trello response: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(tc.maxAttempts),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
