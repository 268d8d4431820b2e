package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

const (
	contentTypeJSON = "application/json"
	snapshotPrefix  = "snapshots/"

	// Payloads above this size go through the multipart uploader.
	multipartThreshold = 16 * 1024 * 1024
)

// CycleArchive is the document stored for one committed cycle.
type CycleArchive struct {
	Report domain.CycleReport `json:"report"`
	Tokens []ArchivedToken    `json:"tokens"`
}

// ArchivedToken is the pricing state of one token at the end of a cycle.
type ArchivedToken struct {
	Ticker         string                        `json:"ticker"`
	FloorPriceStx  float64                       `json:"floor_price_stx"`
	FloorPriceUsd  float64                       `json:"floor_price_usd"`
	FloorPriceSats float64                       `json:"floor_price_sats"`
	MarketCapStx   float64                       `json:"market_cap_stx"`
	MarketCapUsd   float64                       `json:"market_cap_usd"`
	ActiveListings int                           `json:"active_listings"`
	History        map[string]ArchivedPricePoint `json:"history,omitempty"`
}

// ArchivedPricePoint is one interval baseline.
type ArchivedPricePoint struct {
	Value      float64   `json:"value"`
	CapturedAt time.Time `json:"captured_at"`
	Change     float64   `json:"change"`
}

// Archiver implements domain.SnapshotArchiver on top of a blob writer.
type Archiver struct {
	writer   domain.BlobWriter
	partSize int64
}

// NewArchiver creates an Archiver. partSize is used for large uploads.
func NewArchiver(writer domain.BlobWriter, partSize int64) *Archiver {
	return &Archiver{writer: writer, partSize: partSize}
}

// ArchiveCycle writes snapshots/YYYY/MM/DD/<cycle-id>.json.
func (a *Archiver) ArchiveCycle(ctx context.Context, report domain.CycleReport, tokens []domain.Token) error {
	doc := CycleArchive{Report: report, Tokens: make([]ArchivedToken, 0, len(tokens))}
	for _, t := range tokens {
		doc.Tokens = append(doc.Tokens, archivedToken(t))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("s3blob: archive cycle %s marshal: %w", report.CycleID, err)
	}

	path := SnapshotPath(report.StartedAt, report.CycleID)
	var err error
	if buf.Len() > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, &buf, a.partSize)
	} else {
		err = a.writer.Put(ctx, path, &buf, contentTypeJSON)
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive cycle %s: %w", report.CycleID, err)
	}
	return nil
}

// SnapshotPath builds the object key of a cycle archive, partitioned by the
// UTC day the cycle started.
//
//	snapshots/2026/03/01/6f1c...json
func SnapshotPath(startedAt time.Time, cycleID string) string {
	return DayPrefix(startedAt) + cycleID + ".json"
}

// DayPrefix is the key prefix shared by every archive of one UTC day.
func DayPrefix(day time.Time) string {
	return snapshotPrefix + day.UTC().Format("2006/01/02") + "/"
}

func archivedToken(t domain.Token) ArchivedToken {
	out := ArchivedToken{Ticker: t.Ticker, ActiveListings: t.ActiveListings}
	if t.Floor != nil {
		out.FloorPriceStx = t.Floor.Stx
		out.FloorPriceUsd = t.Floor.Usd
		out.FloorPriceSats = t.Floor.Sats
		out.MarketCapStx = t.Floor.MarketCapStx
		out.MarketCapUsd = t.Floor.MarketCapUsd
	}
	for _, iv := range domain.Intervals {
		p := t.History[iv]
		if !p.Initialized() {
			continue
		}
		if out.History == nil {
			out.History = make(map[string]ArchivedPricePoint, domain.IntervalCount)
		}
		out.History[iv.String()] = ArchivedPricePoint{Value: p.Value, CapturedAt: p.CapturedAt, Change: p.Change}
	}
	return out
}

// ArchiveBrowser reads cycle archives back.
type ArchiveBrowser struct {
	reader domain.BlobReader
}

// NewArchiveBrowser creates an ArchiveBrowser.
func NewArchiveBrowser(reader domain.BlobReader) *ArchiveBrowser {
	return &ArchiveBrowser{reader: reader}
}

// ListDay returns the archives written on the given UTC day, newest first.
func (b *ArchiveBrowser) ListDay(ctx context.Context, day time.Time) ([]domain.BlobInfo, error) {
	infos, err := b.reader.List(ctx, DayPrefix(day))
	if err != nil {
		return nil, err
	}
	out := infos[:0]
	for _, info := range infos {
		if strings.HasSuffix(info.Path, ".json") {
			out = append(out, info)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].LastModified.After(out[j].LastModified)
		}
		return out[i].Path > out[j].Path
	})
	return out, nil
}

// Load fetches and decodes one archive. Paths outside the snapshot prefix
// are reported as domain.ErrNotFound.
func (b *ArchiveBrowser) Load(ctx context.Context, path string) (CycleArchive, error) {
	if !strings.HasPrefix(path, snapshotPrefix) {
		return CycleArchive{}, fmt.Errorf("s3blob: load %s: %w", path, domain.ErrNotFound)
	}
	rc, err := b.reader.Get(ctx, path)
	if err != nil {
		return CycleArchive{}, err
	}
	defer rc.Close()

	var doc CycleArchive
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return CycleArchive{}, fmt.Errorf("s3blob: decode %s: %w", path, err)
	}
	return doc, nil
}

var _ domain.SnapshotArchiver = (*Archiver)(nil)
