package worklog

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/permission"
)

// =============================================================================
// LOG SERVICE - Log lifecycle with two-phase submission
// =============================================================================

// Service owns every write to log documents outside of bulk import and
// legacy merge.
type Service struct {
	Store generic.DocStore
	Clock generic.Clock
}

func NewService(store generic.DocStore, clock generic.Clock) *Service {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &Service{Store: store, Clock: clock}
}

// SubmitRequest describes a create (LogID empty) or an edit.
type SubmitRequest struct {
	Owner    Owner
	LogID    string
	Draft    Draft
	EditorID string
	Role     permission.Role
}

// Proposal is the result of the first phase: what would happen, nothing written.
type Proposal struct {
	Decision Decision  `json:"decision"`
	Previous *LogEntry `json:"previous,omitempty"`
}

// =============================================================================
// PROPOSE / CONFIRM
// =============================================================================

// Propose reconciles a submission without writing. When the decision
// requires confirmation, the caller asks the submitter and calls Confirm
// only if they agree; declining simply means never calling Confirm.
func (s *Service) Propose(ctx context.Context, req SubmitRequest) (*Proposal, error) {
	if err := req.Draft.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.List(ctx, req.Owner)
	if err != nil {
		return nil, err
	}

	var previous *LogEntry
	if req.LogID != "" {
		for i := range existing {
			if existing[i].ID == req.LogID {
				previous = &existing[i]
				break
			}
		}
		if previous == nil {
			return nil, fmt.Errorf("log %s: %w", req.LogID, generic.ErrNotFound)
		}
	}

	d := Reconcile(existing, req.Draft, previous, req.EditorID, req.Role, s.Clock.Now())
	return &Proposal{Decision: d, Previous: previous}, nil
}

// Confirm re-runs the reconciliation against current data and writes the
// log. Edits append one history entry in the same batch.
func (s *Service) Confirm(ctx context.Context, req SubmitRequest) (*LogEntry, Decision, error) {
	p, err := s.Propose(ctx, req)
	if err != nil {
		return nil, Decision{}, err
	}
	now := s.Clock.Now()

	var entry LogEntry
	var ref generic.DocRef
	if p.Previous == nil {
		ref = req.Owner.Logs().NewDoc()
		entry = LogEntry{SubmittedAt: &now}
		if !req.Owner.Legacy {
			entry.MemberID = req.Owner.MemberID
		}
	} else {
		ref = req.Owner.LogRef(p.Previous.ID)
		entry = *p.Previous
		entry.EditedAt = &now
	}
	entry.ID = ref.ID
	entry.Date = req.Draft.Date
	entry.Activity = req.Draft.Activity
	entry.Hours = req.Draft.Hours
	entry.Status = p.Decision.Status

	b := generic.NewBatch().Set(ref, entry)
	if h := p.Decision.History; h != nil {
		seq, err := s.nextSeq(ctx, ref)
		if err != nil {
			return nil, Decision{}, err
		}
		h.Seq = seq
		b.Create(historyRef(ref, seq), h)
	}

	if err := s.Store.Commit(ctx, b); err != nil {
		return nil, Decision{}, fmt.Errorf("failed to save log: %w", err)
	}
	return &entry, p.Decision, nil
}

func historyRef(log generic.DocRef, seq int) generic.DocRef {
	return log.Sub(History).Doc(fmt.Sprintf("%06d", seq))
}

func (s *Service) nextSeq(ctx context.Context, log generic.DocRef) (int, error) {
	docs, err := s.Store.Query(ctx, log.Sub(History))
	if err != nil {
		return 0, fmt.Errorf("failed to load history: %w", err)
	}
	return len(docs) + 1, nil
}

// =============================================================================
// READS
// =============================================================================

// Get returns one of owner's logs, or nil if it doesn't exist.
func (s *Service) Get(ctx context.Context, owner Owner, id string) (*LogEntry, error) {
	doc, err := s.Store.Get(ctx, owner.LogRef(id))
	if err != nil || doc == nil {
		return nil, err
	}
	e, err := Decode(*doc)
	if err != nil {
		return nil, err
	}
	if !owner.owns(e) {
		return nil, nil
	}
	return &e, nil
}

// List returns owner's logs, newest date first.
func (s *Service) List(ctx context.Context, owner Owner) ([]LogEntry, error) {
	docs, err := s.Store.Query(ctx, owner.Logs(), owner.filters()...)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	entries, err := DecodeAll(docs)
	if err != nil {
		return nil, err
	}
	SortByDateDesc(entries)
	return entries, nil
}

// SortByDateDesc orders entries newest first, ties by ID.
func SortByDateDesc(entries []LogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.After(entries[j].Date)
		}
		return entries[i].ID < entries[j].ID
	})
}

// History returns the edit history of a log in the order edits happened.
func (s *Service) History(ctx context.Context, owner Owner, id string) ([]HistoryEntry, error) {
	docs, err := s.Store.Query(ctx, owner.LogRef(id).Sub(History))
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	out := make([]HistoryEntry, 0, len(docs))
	for _, d := range docs {
		var h HistoryEntry
		if err := d.Decode(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// ListPending returns every active log awaiting review.
func (s *Service) ListPending(ctx context.Context) ([]LogEntry, error) {
	docs, err := s.Store.Query(ctx, generic.Collection(ActiveLogs), generic.Where("status", string(StatusPending)))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending logs: %w", err)
	}
	entries, err := DecodeAll(docs)
	if err != nil {
		return nil, err
	}
	SortByDateDesc(entries)
	return entries, nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Approve marks a pending active log approved.
func (s *Service) Approve(ctx context.Context, id string) error {
	ref := generic.Collection(ActiveLogs).Doc(id)
	doc, err := s.Store.Get(ctx, ref)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("log %s: %w", id, generic.ErrNotFound)
	}
	return s.Store.Commit(ctx, generic.NewBatch().Merge(ref, generic.Fields{"status": string(StatusApproved)}))
}

// Delete removes a log and its history in one batch.
func (s *Service) Delete(ctx context.Context, owner Owner, id string) error {
	e, err := s.Get(ctx, owner, id)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("log %s: %w", id, generic.ErrNotFound)
	}

	b := generic.NewBatch()
	if err := s.addDelete(ctx, b, owner.LogRef(id)); err != nil {
		return err
	}
	return s.Store.Commit(ctx, b)
}

// Reject discards a pending log. Rejected work is not kept.
func (s *Service) Reject(ctx context.Context, id string) error {
	doc, err := s.Store.Get(ctx, generic.Collection(ActiveLogs).Doc(id))
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("log %s: %w", id, generic.ErrNotFound)
	}
	e, err := Decode(*doc)
	if err != nil {
		return err
	}
	return s.Delete(ctx, Active(e.MemberID), id)
}

func (s *Service) addDelete(ctx context.Context, b *generic.Batch, ref generic.DocRef) error {
	hist, err := s.Store.Query(ctx, ref.Sub(History))
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	for _, h := range hist {
		b.Delete(h.Ref)
	}
	b.Delete(ref)
	return nil
}

// ToggleRollover flips whether a log counts toward the next fiscal year.
func (s *Service) ToggleRollover(ctx context.Context, owner Owner, id string) (*LogEntry, error) {
	e, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("log %s: %w", id, generic.ErrNotFound)
	}
	e.ApplyToNextYear = !e.ApplyToNextYear

	b := generic.NewBatch().Merge(owner.LogRef(id), generic.Fields{"applyToNextYear": e.ApplyToNextYear})
	if err := s.Store.Commit(ctx, b); err != nil {
		return nil, err
	}
	return e, nil
}

// RemoveDuplicates deletes logs repeating an earlier log's date, activity
// and hours. The log with the lowest ID in each group is kept.
func (s *Service) RemoveDuplicates(ctx context.Context, owner Owner) (int, error) {
	docs, err := s.Store.Query(ctx, owner.Logs(), owner.filters()...)
	if err != nil {
		return 0, err
	}
	entries, err := DecodeAll(docs)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool)
	w := generic.NewChunkedWriter(s.Store, generic.MaxBatchOps)
	removed := 0
	for _, e := range entries {
		sig := e.Date.String() + "|" + e.Activity + "|" + e.Hours.String()
		if !seen[sig] {
			seen[sig] = true
			continue
		}

		b := generic.NewBatch()
		if err := s.addDelete(ctx, b, owner.LogRef(e.ID)); err != nil {
			return 0, err
		}
		if err := w.Reserve(ctx, b.Len()); err != nil {
			return 0, err
		}
		for _, op := range b.Ops() {
			w.Batch().Delete(op.Ref)
		}
		removed++
	}
	if err := w.Flush(ctx); err != nil {
		return 0, err
	}
	return removed, nil
}
