package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Wire shapes for the Trello REST API. These stay loosely typed on purpose;
// the extractor maps them into the strongly typed graph entities and rejects
// anything malformed at that boundary.

type TrelloCard struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Desc             string        `json:"desc"`
	Closed           bool          `json:"closed"`
	IDList           string        `json:"idList"`
	IDBoard          string        `json:"idBoard"`
	Due              string        `json:"due"`
	DueComplete      bool          `json:"dueComplete"`
	DateLastActivity string        `json:"dateLastActivity"`
	List             TrelloList    `json:"list"`
	Labels           []TrelloLabel `json:"labels"`
}

type TrelloList struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type TrelloLabel struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// TrelloAction is one entry of a card's action log. Only commentCard and
// list-move updateCard actions are requested by the client.
type TrelloAction struct {
	ID            string `json:"id"`
	Type          string `json:"type"` // e.g., "updateCard", "commentCard"
	Date          string `json:"date"`
	MemberCreator struct {
		FullName string `json:"fullName"`
		Username string `json:"username"`
	} `json:"memberCreator"`
	Data struct {
		Text       string     `json:"text"`
		List       TrelloList `json:"list"`
		ListBefore TrelloList `json:"listBefore"`
		ListAfter  TrelloList `json:"listAfter"`
	} `json:"data"`
}

// IsListMove reports whether the action records the card moving between lists.
func (a TrelloAction) IsListMove() bool {
	return a.Type == "updateCard" && a.Data.ListBefore.ID != "" && a.Data.ListAfter.ID != ""
}

type TrelloChecklist struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	CheckItems []TrelloCheckItem `json:"checkItems"`
}

type TrelloCheckItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"` // "complete" or "incomplete"
}

type TrelloAttachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Bytes    int64  `json:"bytes"`
	IsUpload bool   `json:"isUpload"`
}

// ParseTrelloTime parses the RFC3339 timestamps the Trello API emits.
func ParseTrelloTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid trello timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// CardCreationTime recovers a card's creation time from its object id: the
// first eight hex characters of a Trello id are a unix timestamp in seconds.
func CardCreationTime(id string) (time.Time, error) {
	if len(id) < 8 {
		return time.Time{}, fmt.Errorf("trello id %q too short to carry a timestamp", id)
	}
	secs, err := strconv.ParseInt(id[:8], 16, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("trello id %q has no timestamp prefix: %w", id, err)
	}
	return time.Unix(secs, 0).UTC(), nil
}

// IsImageMime reports whether an attachment mime type denotes an image.
func IsImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}
