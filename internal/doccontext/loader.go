// Package doccontext turns referenced controlled documents into prompt text.
package doccontext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/ASI-Josh/asiportal/internal/storage"
)

const (
	defaultMaxChars = 6000
	loadConcurrency = 4
)

// Store defines the storage operations the Loader needs.
type Store interface {
	GetDocument(ctx context.Context, id string) (storage.Document, error)
	GetRevision(ctx context.Context, documentID string, revisionNumber int) (storage.DocumentRevision, error)
}

// Block is the prompt-ready text of one document.
type Block struct {
	DocumentID string
	Title      string
	Revision   int
	Status     string
	Text       string
}

// Result holds loaded blocks in request order plus warnings for documents
// that could not be used.
type Result struct {
	Blocks   []Block
	Warnings []string
}

// Render formats the blocks for inclusion in a prompt.
func (r Result) Render() string {
	var sb strings.Builder
	for i, b := range r.Blocks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s] %s (rev %d, %s)\n%s", b.DocumentID, b.Title, b.Revision, b.Status, b.Text)
	}
	return sb.String()
}

// Loader resolves document ids to their latest revision text. Attached files
// are read from filesDir.
type Loader struct {
	store    Store
	filesDir string
	maxChars int
}

func NewLoader(store Store, filesDir string) *Loader {
	return &Loader{store: store, filesDir: filesDir, maxChars: defaultMaxChars}
}

// Load fetches every id concurrently. Unknown or unreadable documents become
// warnings; only context cancellation fails the call.
func (l *Loader) Load(ctx context.Context, docIDs []string) (Result, error) {
	ids := dedupe(docIDs)
	blocks := make([]*Block, len(ids))
	warnings := make([]string, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			b, err := l.loadOne(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("document context unavailable", "document_id", id, "error", err)
				warnings[i] = fmt.Sprintf("document %s unavailable: %v", id, err)
				return nil
			}
			blocks[i] = &b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var res Result
	for i := range ids {
		if blocks[i] != nil {
			res.Blocks = append(res.Blocks, *blocks[i])
		}
		if warnings[i] != "" {
			res.Warnings = append(res.Warnings, warnings[i])
		}
	}
	return res, nil
}

func (l *Loader) loadOne(ctx context.Context, id string) (Block, error) {
	doc, err := l.store.GetDocument(ctx, id)
	if err != nil {
		return Block{}, err
	}
	rev, err := l.store.GetRevision(ctx, id, 0)
	if err != nil {
		return Block{}, fmt.Errorf("latest revision: %w", err)
	}

	text := rev.DraftOutput
	if rev.FilePath != "" {
		text, err = l.readFile(rev.FilePath, rev.FileContentType)
		if err != nil {
			return Block{}, fmt.Errorf("reading %s: %w", rev.FilePath, err)
		}
	}

	return Block{
		DocumentID: doc.ID,
		Title:      doc.Title,
		Revision:   rev.RevisionNumber,
		Status:     rev.Status,
		Text:       truncate(collapseSpace(text), l.maxChars),
	}, nil
}

func (l *Loader) readFile(name, contentType string) (string, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.filesDir, filepath.Clean("/"+name))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return ExtractText(data, contentType, filepath.Ext(name))
}

// ExtractText converts file content to plain text based on its content type,
// falling back to the file extension.
func ExtractText(data []byte, contentType, ext string) (string, error) {
	ct := strings.ToLower(contentType)
	ext = strings.ToLower(ext)
	switch {
	case strings.Contains(ct, "pdf") || ext == ".pdf":
		return extractPDF(data)
	case strings.Contains(ct, "html") || ext == ".html" || ext == ".htm":
		return extractHTML(data)
	default:
		return string(data), nil
	}
}

func extractPDF(data []byte) (text string, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var skipElements = map[string]bool{"script": true, "style": true, "noscript": true, "head": true}

func extractHTML(data []byte) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(data))
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return sb.String(), nil
			}
			return "", z.Err()
		case html.StartTagToken:
			name, _ := z.TagName()
			if skipElements[string(name)] {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skipElements[string(name)] && skip > 0 {
				skip--
			}
			sb.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + " [truncated]"
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
