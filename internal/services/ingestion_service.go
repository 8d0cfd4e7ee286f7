package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/wada/backend/internal/logger"
	"github.com/wada/backend/internal/observability"
	"github.com/wada/backend/internal/storage"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/korean"
)

// DefaultCellValue replaces empty cells in sampled rows.
const DefaultCellValue = "DEFAULT_VALUE"

// UploadedFile is one file received from the client.
type UploadedFile struct {
	Name    string
	Content []byte
}

// IngestedFile is a stored dataset plus the sample shown to the LLM.
type IngestedFile struct {
	FileName   string     `json:"file_name"`
	URL        string     `json:"-"`
	Columns    []string   `json:"columns"`
	SampleRows [][]string `json:"sample_rows"`
	TotalRows  int        `json:"total_rows"`
}

// Ingestor parses and stores uploaded datasets.
type Ingestor interface {
	Ingest(ctx context.Context, chatRoomID string, files []UploadedFile) ([]IngestedFile, error)
}

type IngestionService struct {
	store       storage.FileStore
	sampleSize  int
	concurrency int

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewIngestionService(store storage.FileStore, sampleSize, concurrency int) *IngestionService {
	return NewIngestionServiceWithSeed(store, sampleSize, concurrency, rand.Uint64())
}

// NewIngestionServiceWithSeed fixes the sampling seed, used by tests.
func NewIngestionServiceWithSeed(store storage.FileStore, sampleSize, concurrency int, seed uint64) *IngestionService {
	if sampleSize <= 0 {
		sampleSize = 20
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &IngestionService{
		store:       store,
		sampleSize:  sampleSize,
		concurrency: concurrency,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Ingest processes every file concurrently and waits for all of them. Files
// that fail are logged and skipped; the call fails only when none succeed.
func (s *IngestionService) Ingest(ctx context.Context, chatRoomID string, files []UploadedFile) ([]IngestedFile, error) {
	const op = "Ingest"
	if len(files) == 0 {
		return nil, newError(KindIngestion, op, "no files uploaded")
	}

	ctx, span := observability.StartSpan(ctx, "ingest.files")
	defer span.End()

	results := make([]*IngestedFile, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, f := range files {
		g.Go(func() error {
			out, err := s.ingestOne(gctx, chatRoomID, f)
			if err != nil {
				observability.IngestedFiles.WithLabelValues("failed").Inc()
				logger.WithChatRoom(chatRoomID, 0, "ingestion").
					WithField("file_name", f.Name).
					WithError(err).
					Warn("Skipping file that could not be ingested")
				return nil
			}
			observability.IngestedFiles.WithLabelValues("ok").Inc()
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, wrapError(KindIngestion, op, err)
	}

	ingested := make([]IngestedFile, 0, len(results))
	for _, r := range results {
		if r != nil {
			ingested = append(ingested, *r)
		}
	}
	if len(ingested) == 0 {
		return nil, newError(KindIngestion, op, "none of the %d uploaded files could be read", len(files))
	}
	return ingested, nil
}

func (s *IngestionService) ingestOne(ctx context.Context, chatRoomID string, f UploadedFile) (*IngestedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := decodeCSVBytes(f.Content)
	if err != nil {
		return nil, err
	}

	columns, rows, total, err := s.sampleCSV(text)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Name, err)
	}

	url, err := s.store.Put(ctx, storage.ObjectKey(chatRoomID, f.Name, f.Content), bytes.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", f.Name, err)
	}

	return &IngestedFile{
		FileName:   f.Name,
		URL:        url,
		Columns:    columns,
		SampleRows: rows,
		TotalRows:  total,
	}, nil
}

// decodeCSVBytes returns UTF-8 text, converting from EUC-KR when the input is
// not valid UTF-8.
func decodeCSVBytes(content []byte) ([]byte, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, errors.New("file is empty")
	}
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if utf8.Valid(content) {
		return content, nil
	}
	decoded, err := korean.EUCKR.NewDecoder().Bytes(content)
	if err != nil {
		return nil, fmt.Errorf("file is neither UTF-8 nor EUC-KR: %w", err)
	}
	return decoded, nil
}

// sampleCSV reads the header and draws up to sampleSize data rows uniformly at
// random with reservoir sampling, returned in file order.
func (s *IngestionService) sampleCSV(text []byte) ([]string, [][]string, int, error) {
	r := csv.NewReader(bytes.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, 0, errors.New("missing header row")
	}
	if err != nil {
		return nil, nil, 0, err
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = sanitizeCell(h)
	}

	type sampled struct {
		pos int
		row []string
	}
	reservoir := make([]sampled, 0, s.sampleSize)
	total := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, 0, err
		}
		if isBlankRow(row) {
			continue
		}
		if len(reservoir) < s.sampleSize {
			reservoir = append(reservoir, sampled{pos: total, row: row})
		} else if j := s.randN(total + 1); j < s.sampleSize {
			reservoir[j] = sampled{pos: total, row: row}
		}
		total++
	}

	sort.Slice(reservoir, func(i, j int) bool { return reservoir[i].pos < reservoir[j].pos })
	rows := make([][]string, len(reservoir))
	for i, sr := range reservoir {
		clean := make([]string, len(sr.row))
		for k, cell := range sr.row {
			clean[k] = sanitizeCell(cell)
		}
		rows[i] = clean
	}
	return columns, rows, total, nil
}

func (s *IngestionService) randN(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.IntN(n)
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// sanitizeCell drops control characters and substitutes empty values.
func sanitizeCell(s string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return DefaultCellValue
	}
	return clean
}
