package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/chxlky/trello-archiver/internal/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Downloader is the slice of the Trello client the fetcher needs.
type Downloader interface {
	DownloadAttachment(ctx context.Context, fileURL string, dst io.Writer) error
}

// Fetcher downloads attachment binaries to deterministic local paths of the
// form <root>/<card id>/<attachment id>-<slug(filename)>. A destination file
// that already exists and is non-empty short-circuits the download, so
// repeated runs don't re-fetch.
type Fetcher struct {
	root string
	dl   Downloader
}

func NewFetcher(root string, dl Downloader) *Fetcher {
	return &Fetcher{root: root, dl: dl}
}

// Fetch downloads one attachment and returns its local path. Each attachment
// is independent; the caller decides what a failure means for the card.
func (f *Fetcher) Fetch(ctx context.Context, att models.Attachment) (string, error) {
	dir := filepath.Join(f.root, att.CardID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &AttachmentError{CardID: att.CardID, AttachmentID: att.ID,
			Err: fmt.Errorf("creating attachment directory: %w", err)}
	}

	path := filepath.Join(dir, att.ID+"-"+Slug(att.FileName))
	if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
		return path, nil
	}

	file, err := os.Create(path)
	if err != nil {
		return "", &AttachmentError{CardID: att.CardID, AttachmentID: att.ID, Err: err}
	}
	if err := f.dl.DownloadAttachment(ctx, att.URL, file); err != nil {
		file.Close()
		// A leftover empty or partial file must not block the retry on the
		// next run.
		os.Remove(path)
		return "", &AttachmentError{CardID: att.CardID, AttachmentID: att.ID, Err: err}
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", &AttachmentError{CardID: att.CardID, AttachmentID: att.ID, Err: err}
	}
	return path, nil
}

var slugStripper = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug normalises a filename for safe local storage: diacritics stripped,
// lowercased, anything outside [a-z0-9._] collapsed to single dashes.
func Slug(name string) string {
	cleaned, _, err := transform.String(slugStripper, name)
	if err != nil {
		cleaned = name
	}
	cleaned = strings.ToLower(cleaned)

	var b strings.Builder
	pendingDash := false
	for _, r := range cleaned {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}

	slug := strings.Trim(b.String(), "-._")
	if slug == "" {
		return "file"
	}
	return slug
}
