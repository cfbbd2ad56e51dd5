/*
sheets.go - Paper volunteer sheets: upload, bulk entry, archive cascade

PURPOSE:
  A sheet is a scanned paper sign-up log. Starting a sheet uploads the
  image and assigns a short code (#1234) written on the paper. Entries
  transcribed from it carry the code as sourceSheetId, so deleting the
  sheet removes every log it produced.

DELETE CASCADE:
  1. Active logs with sourceSheetId == code (plus their history)
  2. Legacy logs found by collection-group query over "legacyLogs"
  3. The sheet document
  All three in one batch. The image blob is deleted after the commit; a
  blob failure is reported as a warning, the data is already gone.

SEE ALSO:
  - worklog/types.go: Log entry shape
  - store/s3store:    Production blob store
*/
package sheets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/members"
	"github.com/warp/clubportal/worklog"
)

const Collection = "volunteer_sheets"

// maxCodeAttempts bounds the search for an unused sheet code.
const maxCodeAttempts = 20

// SourceField is the log field linking an entry to its sheet.
const SourceField = "sourceSheetId"

// BlobStore holds sheet images.
type BlobStore interface {
	Put(ctx context.Context, path string, r io.Reader, contentType string) error
	URL(ctx context.Context, path string) (string, error)
	Delete(ctx context.Context, path string) error
}

type Status string

const (
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
)

// Sheet is a stored sheet record.
type Sheet struct {
	ID         string       `json:"id"`
	Code       string       `json:"sheetId"`
	Date       generic.Date `json:"date"`
	Event      string       `json:"event,omitempty"`
	ImagePath  string       `json:"imagePath"`
	ImageURL   string       `json:"imageUrl"`
	Status     Status       `json:"status"`
	UploadedAt time.Time    `json:"uploadedAt"`
	Entries    int          `json:"entries,omitempty"`
}

func decode(doc generic.Document) (Sheet, error) {
	var s Sheet
	if err := doc.Decode(&s); err != nil {
		return Sheet{}, err
	}
	s.ID = doc.Ref.ID
	return s, nil
}

// NormalizeCode accepts "1234" or "#1234".
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.HasPrefix(code, "#") {
		return code
	}
	return "#" + code
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store generic.DocStore
	Blobs BlobStore
	Clock generic.Clock

	// NewCode draws the numeric part of a sheet code.
	NewCode func() int

	// OnDelete observes delete outcomes ("deleted", "missing_index", "failed").
	OnDelete func(outcome string)
}

func NewService(store generic.DocStore, blobs BlobStore, clock generic.Clock) *Service {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &Service{
		Store:   store,
		Blobs:   blobs,
		Clock:   clock,
		NewCode: func() int { return 1000 + rand.Intn(9000) },
	}
}

func (s *Service) ref(id string) generic.DocRef {
	return generic.Collection(Collection).Doc(id)
}

// StartRequest describes a new sheet upload.
type StartRequest struct {
	Date        generic.Date
	Event       string
	Image       io.Reader
	ContentType string
}

// Start uploads the image and records the sheet as processing.
func (s *Service) Start(ctx context.Context, req StartRequest) (*Sheet, error) {
	if req.Date.IsZero() {
		return nil, &generic.ValidationError{Field: "date", Reason: "required"}
	}
	if req.Image == nil {
		return nil, &generic.ValidationError{Field: "image", Reason: "required"}
	}

	n, err := s.freeCode(ctx)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("sheets/%s_%d", req.Date, n)
	if err := s.Blobs.Put(ctx, path, req.Image, req.ContentType); err != nil {
		return nil, fmt.Errorf("upload sheet image: %w", err)
	}
	url, err := s.Blobs.URL(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("sheet image url: %w", err)
	}

	ref := generic.Collection(Collection).NewDoc()
	sheet := Sheet{
		ID:         ref.ID,
		Code:       fmt.Sprintf("#%d", n),
		Date:       req.Date,
		Event:      strings.TrimSpace(req.Event),
		ImagePath:  path,
		ImageURL:   url,
		Status:     StatusProcessing,
		UploadedAt: s.Clock.Now(),
	}
	if err := s.Store.Commit(ctx, generic.NewBatch().Create(ref, sheet)); err != nil {
		return nil, err
	}
	return &sheet, nil
}

// freeCode draws codes until one is not held by an existing sheet. The
// delete cascade matches logs by code, so codes must stay unique.
func (s *Service) freeCode(ctx context.Context) (int, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		n := s.NewCode()
		existing, err := s.FindByCode(ctx, fmt.Sprintf("#%d", n))
		if err != nil {
			return 0, err
		}
		if existing == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("no free sheet code after %d attempts", maxCodeAttempts)
}

// Get returns the sheet, or (nil, nil).
func (s *Service) Get(ctx context.Context, id string) (*Sheet, error) {
	doc, err := s.Store.Get(ctx, s.ref(id))
	if err != nil || doc == nil {
		return nil, err
	}
	sheet, err := decode(*doc)
	if err != nil {
		return nil, err
	}
	return &sheet, nil
}

// FindByCode returns the sheet with code, or (nil, nil) when there is none.
func (s *Service) FindByCode(ctx context.Context, code string) (*Sheet, error) {
	docs, err := s.Store.Query(ctx, generic.Collection(Collection), generic.Where("sheetId", NormalizeCode(code)))
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	sheet, err := decode(docs[0])
	if err != nil {
		return nil, err
	}
	return &sheet, nil
}

// List returns every sheet, newest date first.
func (s *Service) List(ctx context.Context) ([]Sheet, error) {
	docs, err := s.Store.Query(ctx, generic.Collection(Collection))
	if err != nil {
		return nil, err
	}
	out := make([]Sheet, 0, len(docs))
	for _, d := range docs {
		sheet, err := decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, sheet)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// =============================================================================
// BULK ENTRY
// =============================================================================

// Entry is one transcribed line. Member is a member ID, with the legacy
// prefix for unregistered members. Activity defaults to the sheet's event.
type Entry struct {
	Member   string `json:"member"`
	Hours    string `json:"hours"`
	Activity string `json:"activity"`
}

type SubmitResult struct {
	Written int      `json:"written"`
	Skipped int      `json:"skipped"`
	Reasons []string `json:"reasons,omitempty"`
}

// Submit writes every complete entry and marks the sheet complete, in one
// batch.
func (s *Service) Submit(ctx context.Context, sheetID string, entries []Entry) (*SubmitResult, error) {
	sheet, err := s.Get(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	if sheet == nil {
		return nil, fmt.Errorf("sheet %s: %w", sheetID, generic.ErrNotFound)
	}

	repo := members.NewRepository(s.Store)
	now := s.Clock.Now()
	res := &SubmitResult{}
	b := generic.NewBatch()
	skip := func(i int, reason string) {
		res.Skipped++
		res.Reasons = append(res.Reasons, fmt.Sprintf("line %d: %s", i+1, reason))
	}

	for i, e := range entries {
		hours := generic.ParseHours(e.Hours)
		if strings.TrimSpace(e.Member) == "" || !hours.IsPositive() {
			skip(i, "incomplete")
			continue
		}
		owner := worklog.ParseOwner(e.Member)
		m, err := repo.Find(ctx, owner)
		if err != nil {
			return nil, err
		}
		if m == nil {
			skip(i, "unknown member "+e.Member)
			continue
		}

		activity := strings.TrimSpace(e.Activity)
		if activity == "" {
			activity = sheet.Event
		}
		entry := worklog.LogEntry{
			Date:          sheet.Date,
			Activity:      activity,
			Hours:         hours,
			Status:        worklog.StatusApproved,
			SourceSheetID: sheet.Code,
		}
		if owner.Legacy {
			entry.ImportedAt = &now
		} else {
			entry.MemberID = owner.MemberID
			entry.SubmittedAt = &now
		}
		b.Set(owner.Logs().NewDoc(), entry)
		res.Written++
	}

	b.Merge(s.ref(sheet.ID), generic.Fields{"status": string(StatusComplete), "entries": sheet.Entries + res.Written})
	if err := s.Store.Commit(ctx, b); err != nil {
		return nil, err
	}
	return res, nil
}

// =============================================================================
// DELETE CASCADE
// =============================================================================

type DeleteResult struct {
	Sheet             Sheet  `json:"sheet"`
	LogsDeleted       int    `json:"logsDeleted"`
	LegacyLogsDeleted int    `json:"legacyLogsDeleted"`
	Warning           string `json:"warning,omitempty"`
}

// DeleteByCode deletes the sheet with code and every log it produced.
func (s *Service) DeleteByCode(ctx context.Context, code string) (*DeleteResult, error) {
	sheet, err := s.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if sheet == nil {
		return nil, fmt.Errorf("sheet %s: %w", NormalizeCode(code), generic.ErrNotFound)
	}
	return s.Delete(ctx, sheet)
}

// Delete runs the cascade. A missing collection-group index fails the whole
// delete before anything is written.
func (s *Service) Delete(ctx context.Context, sheet *Sheet) (*DeleteResult, error) {
	res, err := s.delete(ctx, sheet)
	switch {
	case err == nil:
		s.observe("deleted")
	case generic.IsMissingIndex(err):
		s.observe("missing_index")
	default:
		s.observe("failed")
	}
	return res, err
}

func (s *Service) delete(ctx context.Context, sheet *Sheet) (*DeleteResult, error) {
	res := &DeleteResult{Sheet: *sheet}
	b := generic.NewBatch()

	if sheet.Code != "" {
		active, err := s.Store.Query(ctx, generic.Collection(worklog.ActiveLogs), generic.Where(SourceField, sheet.Code))
		if err != nil {
			return nil, err
		}
		legacy, err := s.Store.CollectionGroup(ctx, worklog.LegacyLogs, generic.Where(SourceField, sheet.Code))
		if err != nil {
			return nil, fmt.Errorf("find legacy logs for sheet %s: %w", sheet.Code, err)
		}

		for _, group := range [][]generic.Document{active, legacy} {
			for _, d := range group {
				hist, err := s.Store.Query(ctx, d.Ref.Sub(worklog.History))
				if err != nil {
					return nil, err
				}
				for _, h := range hist {
					b.Delete(h.Ref)
				}
				b.Delete(d.Ref)
			}
		}
		res.LogsDeleted, res.LegacyLogsDeleted = len(active), len(legacy)
	}
	b.Delete(s.ref(sheet.ID))

	if err := s.Store.Commit(ctx, b); err != nil {
		return nil, err
	}

	if sheet.ImagePath != "" {
		if err := s.Blobs.Delete(ctx, sheet.ImagePath); err != nil {
			slog.Warn("sheet image not deleted", "sheet", sheet.Code, "path", sheet.ImagePath, "error", err)
			res.Warning = fmt.Sprintf("image could not be deleted: %v", err)
		}
	}
	return res, nil
}

func (s *Service) observe(outcome string) {
	if s.OnDelete != nil {
		s.OnDelete(outcome)
	}
}
