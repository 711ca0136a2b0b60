// Package ingest turns externally produced content files into drafted queue
// entries. Content generation and safety review happen upstream; everything
// arriving here still requires explicit approval before it can be scheduled.
package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"postpilot/internal/queue"
	"postpilot/internal/store"
	logx "postpilot/pkg/logx"
)

// Item is one candidate post as found in an input file.
type Item struct {
	Content  string `json:"content"`
	Type     string `json:"content_type,omitempty"`
	Metadata string `json:"metadata,omitempty"`
}

// Report summarizes one import run.
type Report struct {
	Imported   int
	Duplicates int
	Skipped    int
}

type Importer struct {
	store store.Store
	log   logx.Logger
	now   func() time.Time
	newID func() string
}

type Options struct {
	Store store.Store
	Log   logx.Logger

	// Now and NewID override the clock and id generator, for tests.
	Now   func() time.Time
	NewID func() string
}

func New(opts Options) *Importer {
	i := &Importer{
		store: opts.Store,
		log:   opts.Log,
		now:   opts.Now,
		newID: opts.NewID,
	}
	if i.now == nil {
		i.now = time.Now
	}
	if i.newID == nil {
		i.newID = uuid.NewString
	}
	return i
}

// ImportFile reads a .json or .csv file and imports its items.
func (i *Importer) ImportFile(ctx context.Context, path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, err
	}
	defer f.Close()

	var items []Item
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		items, err = decodeJSON(f)
	case ".csv":
		items, err = decodeCSV(f)
	default:
		return Report{}, fmt.Errorf("unsupported input format %q (want .json or .csv)", filepath.Ext(path))
	}
	if err != nil {
		return Report{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return i.Import(ctx, items)
}

// Import creates a candidate plus a drafted entry per item. Items whose
// content hash already exists are counted as duplicates and left alone, so
// re-importing the same file is harmless.
func (i *Importer) Import(ctx context.Context, items []Item) (Report, error) {
	var rep Report
	for _, it := range items {
		content := strings.TrimSpace(it.Content)
		if content == "" {
			rep.Skipped++
			continue
		}
		now := i.now()
		cand := queue.Candidate{
			ID:          i.newID(),
			Content:     content,
			ContentType: strings.TrimSpace(it.Type),
			ContentHash: queue.ContentHash(content),
			Metadata:    it.Metadata,
			CreatedAt:   now,
		}
		if err := i.store.InsertCandidate(ctx, cand); err != nil {
			if errors.Is(err, store.ErrDuplicateCandidate) {
				rep.Duplicates++
				if !i.log.IsZero() {
					i.log.Debug("duplicate content skipped",
						logx.String("preview", queue.Preview(content, 40)))
				}
				continue
			}
			return rep, err
		}
		e := queue.Entry{
			ID:          i.newID(),
			CandidateID: cand.ID,
			Status:      queue.StatusDrafted,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := i.store.InsertEntry(ctx, e); err != nil {
			return rep, err
		}
		rep.Imported++
		if !i.log.IsZero() {
			i.log.Info("candidate imported",
				logx.String("entry", e.ID),
				logx.String("type", cand.ContentType),
				logx.String("preview", queue.Preview(content, 40)),
			)
		}
	}
	return rep, nil
}

func decodeJSON(r io.Reader) ([]Item, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var items []Item
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	return items, nil
}

// decodeCSV accepts either a headered file (content,content_type,metadata in
// any order) or plain rows where the first column is the content and an
// optional second column the type.
func decodeCSV(r io.Reader) ([]Item, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	colIdx := map[string]int{}
	start := 0
	for i, name := range records[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "content", "content_type", "metadata":
			colIdx[strings.ToLower(strings.TrimSpace(name))] = i
		}
	}
	if _, ok := colIdx["content"]; ok {
		start = 1
	} else {
		colIdx = map[string]int{"content": 0, "content_type": 1}
	}

	pick := func(row []string, name string) string {
		i, ok := colIdx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	items := make([]Item, 0, len(records)-start)
	for _, row := range records[start:] {
		items = append(items, Item{
			Content:  pick(row, "content"),
			Type:     pick(row, "content_type"),
			Metadata: pick(row, "metadata"),
		})
	}
	return items, nil
}
