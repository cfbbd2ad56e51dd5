package members

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/permission"
	"github.com/warp/clubportal/worklog"
)

// =============================================================================
// IDENTITY MERGER - Fold legacy records into a registered member
// =============================================================================

// Identity is the authenticated principal a profile is synced for.
type Identity struct {
	UID   string
	Email string
}

// MergeResult reports what SyncProfile did.
type MergeResult struct {
	Member       *Member `json:"member"`
	Created      bool    `json:"created"`
	LegacyMerged int     `json:"legacyMerged"`
	LogsMoved    int     `json:"logsMoved"`
	HistoryMoved int     `json:"historyMoved"`
}

// Merger runs on every session establishment. A second run after a
// successful merge finds no legacy records and writes nothing.
type Merger struct {
	Store generic.DocStore
	Clock generic.Clock

	// Parallelism bounds concurrent legacy log reads.
	Parallelism int

	// OnMerge is called after a successful merge commit, if set.
	OnMerge func(MergeResult)
}

func NewMerger(store generic.DocStore, clock generic.Clock) *Merger {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &Merger{Store: store, Clock: clock, Parallelism: 4}
}

// profile fields that never travel from a legacy record
var legacyOnlyFields = []string{"legacyLogs", "legacyKey"}

type legacyBundle struct {
	doc     generic.Document
	logs    []generic.Document
	history map[string][]generic.Document
}

// SyncProfile merges every legacy record whose email matches id.Email into
// members/{id.UID}, or creates a default profile when there is nothing to
// merge and no profile yet. The merge is one atomic batch: if it would not
// fit in a single batch nothing is written.
func (m *Merger) SyncProfile(ctx context.Context, id Identity) (*MergeResult, error) {
	if id.UID == "" {
		return nil, &generic.ValidationError{Field: "uid", Reason: "must not be empty"}
	}

	var legacy []generic.Document
	if email := NormalizeEmail(id.Email); email != "" {
		var err error
		legacy, err = m.Store.Query(ctx, generic.Collection(LegacyCollection), generic.Where("email", email))
		if err != nil {
			return nil, fmt.Errorf("find legacy records: %w", err)
		}
	}

	if len(legacy) == 0 {
		return m.ensureProfile(ctx, id)
	}

	bundles, err := m.loadBundles(ctx, legacy)
	if err != nil {
		return nil, err
	}

	existing, err := m.Store.Get(ctx, MemberRef(id.UID))
	if err != nil {
		return nil, err
	}

	now := m.Clock.Now()
	result := &MergeResult{LegacyMerged: len(bundles)}
	b := generic.NewBatch()
	active := generic.Collection(worklog.ActiveLogs)

	for _, bundle := range bundles {
		for _, logDoc := range bundle.logs {
			entry, err := worklog.Decode(logDoc)
			if err != nil {
				return nil, fmt.Errorf("decode legacy log %s: %w", logDoc.Ref, err)
			}
			entry.MemberID = id.UID
			entry.Status = worklog.StatusApproved
			entry.ImportedAt = &now

			target := active.NewDoc()
			b.Set(target, entry)
			for _, h := range bundle.history[logDoc.Ref.ID] {
				b.Create(target.Sub(worklog.History).Doc(h.Ref.ID), h.Data)
				b.Delete(h.Ref)
				result.HistoryMoved++
			}
			b.Delete(logDoc.Ref)
			result.LogsMoved++
		}
		b.Delete(bundle.doc.Ref)
	}

	profile := generic.Fields{}
	if existing == nil {
		profile["role"] = string(permission.RoleMember)
		profile["membershipType"] = string(Regular)
	}
	for k, v := range bundles[0].doc.Data {
		profile[k] = v
	}
	for _, k := range legacyOnlyFields {
		delete(profile, k)
	}
	profile["email"] = id.Email
	profile["uid"] = id.UID
	b.Merge(MemberRef(id.UID), profile)

	if b.Len() > generic.MaxBatchOps {
		return nil, fmt.Errorf("merging %d legacy records needs %d writes: %w", len(bundles), b.Len(), generic.ErrBatchTooLarge)
	}
	if err := m.Store.Commit(ctx, b); err != nil {
		return nil, fmt.Errorf("commit merge: %w", err)
	}

	slog.Info("legacy records merged",
		"uid", id.UID,
		"legacy_records", result.LegacyMerged,
		"logs_moved", result.LogsMoved)

	result.Member, err = NewRepository(m.Store).Get(ctx, id.UID)
	if err != nil {
		return nil, err
	}
	if m.OnMerge != nil {
		m.OnMerge(*result)
	}
	return result, nil
}

// loadBundles reads each legacy record's logs and their history concurrently.
func (m *Merger) loadBundles(ctx context.Context, legacy []generic.Document) ([]*legacyBundle, error) {
	bundles := make([]*legacyBundle, len(legacy))
	g, gctx := errgroup.WithContext(ctx)
	if m.Parallelism > 0 {
		g.SetLimit(m.Parallelism)
	}

	for i, doc := range legacy {
		i, doc := i, doc
		g.Go(func() error {
			owner := worklog.Legacy(doc.Ref.ID)
			logs, err := m.Store.Query(gctx, owner.Logs())
			if err != nil {
				return fmt.Errorf("read logs of %s: %w", doc.Ref, err)
			}
			bundle := &legacyBundle{doc: doc, logs: logs, history: map[string][]generic.Document{}}
			for _, l := range logs {
				hist, err := m.Store.Query(gctx, l.Ref.Sub(worklog.History))
				if err != nil {
					return fmt.Errorf("read history of %s: %w", l.Ref, err)
				}
				bundle.history[l.Ref.ID] = hist
			}
			bundles[i] = bundle
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bundles, nil
}

// ensureProfile loads the member, creating the default profile if absent.
func (m *Merger) ensureProfile(ctx context.Context, id Identity) (*MergeResult, error) {
	repo := NewRepository(m.Store)
	existing, err := repo.Get(ctx, id.UID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &MergeResult{Member: existing}, nil
	}

	def := Member{
		UID:            id.UID,
		Email:          id.Email,
		FirstName:      "New",
		LastName:       "Member",
		Role:           permission.RoleMember,
		MembershipType: Regular,
	}
	err = m.Store.Commit(ctx, generic.NewBatch().Create(MemberRef(id.UID), def))
	created := err == nil
	if err != nil && !generic.IsAlreadyExists(err) {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	member, err := repo.Get(ctx, id.UID)
	if err != nil {
		return nil, err
	}
	return &MergeResult{Member: member, Created: created}, nil
}
