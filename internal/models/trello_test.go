package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardCreationTime(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	id := fmt.Sprintf("%08x%s", created.Unix(), "f2a4b6c8d0e2f4a6")

	got, err := CardCreationTime(id)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestCardCreationTime_Invalid(t *testing.T) {
	_, err := CardCreationTime("short")
	assert.Error(t, err)

	_, err = CardCreationTime("zzzzzzzz0000000000000000")
	assert.Error(t, err)
}

func TestParseTrelloTime(t *testing.T) {
	got, err := ParseTrelloTime("2024-03-01T10:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), got)

	_, err = ParseTrelloTime("yesterday")
	assert.Error(t, err)
}

func TestIsListMove(t *testing.T) {
	var a TrelloAction
	a.Type = "updateCard"
	assert.False(t, a.IsListMove(), "a rename is not a move")

	a.Data.ListBefore = TrelloList{ID: "l1"}
	a.Data.ListAfter = TrelloList{ID: "l2"}
	assert.True(t, a.IsListMove())

	a.Type = "commentCard"
	assert.False(t, a.IsListMove())
}

func TestIsImageMime(t *testing.T) {
	assert.True(t, IsImageMime("image/png"))
	assert.False(t, IsImageMime("application/pdf"))
	assert.False(t, IsImageMime(""))
}
