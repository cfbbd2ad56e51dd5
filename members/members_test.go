package members_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/generic/store"
	"github.com/warp/clubportal/members"
	"github.com/warp/clubportal/permission"
	"github.com/warp/clubportal/worklog"
)

var mergeTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMerger(st generic.DocStore) *members.Merger {
	return members.NewMerger(st, generic.FixedClock{At: mergeTime})
}

func seedLegacy(t *testing.T, st generic.DocStore, email string, logs int) {
	t.Helper()
	legacy := members.LegacyRef(email)
	b := generic.NewBatch().Set(legacy, generic.Fields{
		"email":          email,
		"firstName":      "Pat",
		"lastName":       "Smith",
		"membershipType": "Household",
		"legacyKey":      2106,
		"city":           "Springfield",
	})
	for i := 0; i < logs; i++ {
		logRef := legacy.Sub(worklog.LegacyLogs).Doc(fmt.Sprintf("L%d", i))
		b.Set(logRef, generic.Fields{
			"date":     fmt.Sprintf("2025-11-%02d", i+1),
			"activity": "Trial setup",
			"hours":    2,
			"status":   "pending",
		})
	}
	require.NoError(t, st.Commit(context.Background(), b))
}

// =============================================================================
// MERGE
// =============================================================================

func TestSyncProfile_MergesLegacyRecord(t *testing.T) {
	// GIVEN: A legacy record for pat@x.org with two logs, one with history
	// WHEN: Pat signs in for the first time as Pat@X.org
	// THEN: Logs move to the active collection approved and owned by Pat,
	//       history moves with them, and the legacy record is gone

	st := store.NewMemory()
	ctx := context.Background()
	seedLegacy(t, st, "pat@x.org", 2)
	histRef := worklog.Legacy("pat@x.org").LogRef("L0").Sub(worklog.History).Doc("000001")
	require.NoError(t, st.Commit(ctx, generic.NewBatch().Set(histRef, generic.Fields{"seq": 1, "changedBy": "admin"})))

	res, err := newMerger(st).SyncProfile(ctx, members.Identity{UID: "u1", Email: "Pat@X.org"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.LegacyMerged)
	assert.Equal(t, 2, res.LogsMoved)
	assert.Equal(t, 1, res.HistoryMoved)
	require.NotNil(t, res.Member)
	assert.Equal(t, "Pat@X.org", res.Member.Email)
	assert.Equal(t, "Smith", res.Member.LastName)
	assert.Equal(t, members.Household, res.Member.MembershipType)
	assert.Equal(t, permission.RoleMember, res.Member.Role)
	assert.Nil(t, res.Member.LegacyKey)

	logs, err := worklog.NewService(st, nil).List(ctx, worklog.Active("u1"))
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, worklog.StatusApproved, l.Status)
		require.NotNil(t, l.ImportedAt)
		assert.True(t, l.ImportedAt.Equal(mergeTime))
	}

	legacy, err := st.Get(ctx, members.LegacyRef("pat@x.org"))
	require.NoError(t, err)
	assert.Nil(t, legacy)

	leftover, err := st.Query(ctx, worklog.Legacy("pat@x.org").Logs())
	require.NoError(t, err)
	assert.Empty(t, leftover)

	moved := 0
	for _, l := range logs {
		hist, err := st.Query(ctx, worklog.Active("u1").LogRef(l.ID).Sub(worklog.History))
		require.NoError(t, err)
		moved += len(hist)
	}
	assert.Equal(t, 1, moved)
}

func TestSyncProfile_IsIdempotent(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	seedLegacy(t, st, "pat@x.org", 1)
	merger := newMerger(st)

	_, err := merger.SyncProfile(ctx, members.Identity{UID: "u1", Email: "pat@x.org"})
	require.NoError(t, err)
	commits := st.Commits()

	res, err := merger.SyncProfile(ctx, members.Identity{UID: "u1", Email: "pat@x.org"})
	require.NoError(t, err)
	assert.Equal(t, commits, st.Commits(), "second sync must not write")
	assert.Zero(t, res.LegacyMerged)
	assert.False(t, res.Created)
}

func TestSyncProfile_CreatesDefaultProfile(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	res, err := newMerger(st).SyncProfile(ctx, members.Identity{UID: "u2", Email: "new@x.org"})
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, "New", res.Member.FirstName)
	assert.Equal(t, "Member", res.Member.LastName)
	assert.Equal(t, members.Regular, res.Member.MembershipType)
	assert.Equal(t, permission.RoleMember, res.Member.Role)
}

func TestSyncProfile_EmptyEmailSkipsLegacySearch(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.Commit(ctx, generic.NewBatch().Set(members.LegacyRef("blank"), generic.Fields{"email": "", "lastName": "Nobody"})))

	res, err := newMerger(st).SyncProfile(ctx, members.Identity{UID: "u3"})
	require.NoError(t, err)
	assert.Zero(t, res.LegacyMerged)

	legacy, err := st.Get(ctx, members.LegacyRef("blank"))
	require.NoError(t, err)
	assert.NotNil(t, legacy)
}

func TestSyncProfile_OversizedMergeWritesNothing(t *testing.T) {
	// GIVEN: A legacy record with more logs than one batch can move
	// WHEN: SyncProfile runs
	// THEN: ErrBatchTooLarge, and the legacy record is untouched

	st := store.NewMemory()
	ctx := context.Background()
	seedLegacy(t, st, "big@x.org", generic.MaxBatchOps/2+1)
	before := st.Commits()

	_, err := newMerger(st).SyncProfile(ctx, members.Identity{UID: "u4", Email: "big@x.org"})
	assert.ErrorIs(t, err, generic.ErrBatchTooLarge)
	assert.Equal(t, before, st.Commits())

	legacy, err := st.Get(ctx, members.LegacyRef("big@x.org"))
	require.NoError(t, err)
	assert.NotNil(t, legacy)
}

// =============================================================================
// REPOSITORY
// =============================================================================

func TestRepository_ListHidesNamelessLegacyRows(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.Commit(ctx, generic.NewBatch().
		Set(members.MemberRef("u1"), generic.Fields{"firstName": "Zed", "lastName": "Adams", "email": "z@x.org"}).
		Set(members.LegacyRef("a@x.org"), generic.Fields{"firstName": "Amy", "lastName": "Baker"}).
		Set(members.LegacyRef("noise"), generic.Fields{"firstName": "??"})))
	repo := members.NewRepository(st)

	list, err := repo.List(ctx, members.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Adams", list[0].LastName)
	assert.Equal(t, members.Registered, list[0].Provenance)
	assert.Equal(t, members.LegacyRecord, list[1].Provenance)

	all, err := repo.List(ctx, members.ListOptions{ShowAll: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	found, err := repo.List(ctx, members.ListOptions{Search: "BAK"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Amy", found[0].FirstName)
}

func TestRepository_UpdateProfile(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.Commit(ctx, generic.NewBatch().
		Set(members.MemberRef("u1"), generic.Fields{"firstName": "Ann", "email": "ann@x.org", "role": "member"}).
		Set(members.MemberRef("u2"), generic.Fields{"firstName": "Bo", "email": "bo@x.org", "role": "member"})))
	repo := members.NewRepository(st)
	self := &permission.User{ID: "u1", Role: permission.RoleMember}
	admin := &permission.User{ID: "root", Role: permission.RoleAdmin}
	city := "Shelbyville"
	lifetime := "lifetime"
	taken := "BO@x.org"

	m, err := repo.UpdateProfile(ctx, worklog.Active("u1"), members.ProfileUpdate{City: &city}, self)
	require.NoError(t, err)
	assert.Equal(t, "Shelbyville", m.City)
	assert.Equal(t, "Ann", m.FirstName)

	_, err = repo.UpdateProfile(ctx, worklog.Active("u1"), members.ProfileUpdate{MembershipType: &lifetime}, self)
	assert.ErrorIs(t, err, generic.ErrPermissionDenied)

	_, err = repo.UpdateProfile(ctx, worklog.Active("u2"), members.ProfileUpdate{City: &city}, self)
	assert.ErrorIs(t, err, generic.ErrPermissionDenied)

	_, err = repo.UpdateProfile(ctx, worklog.Active("u1"), members.ProfileUpdate{Email: &taken}, self)
	assert.ErrorIs(t, err, generic.ErrAlreadyExists)

	m, err = repo.UpdateProfile(ctx, worklog.Active("u1"), members.ProfileUpdate{MembershipType: &lifetime}, admin)
	require.NoError(t, err)
	assert.Equal(t, members.Lifetime, m.MembershipType)

	_, err = repo.UpdateProfile(ctx, worklog.Active("ghost"), members.ProfileUpdate{City: &city}, admin)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestMember_DisplayName(t *testing.T) {
	assert.Equal(t, "Smith, Pat & Lee", members.Member{LastName: "Smith", FirstName: "Pat", FirstName2: "Lee"}.DisplayName())
	assert.Equal(t, "Smith, Pat", members.Member{LastName: "Smith", FirstName: "Pat"}.DisplayName())
}

func TestParseMembershipType(t *testing.T) {
	for in, want := range map[string]members.MembershipType{
		"":                 members.Regular,
		"Family":           members.Household,
		"Household/Family": members.Household,
		"LIFETIME":         members.Lifetime,
		"Applicant":        members.Applicant,
	} {
		got, ok := members.ParseMembershipType(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	got, ok := members.ParseMembershipType("Platinum")
	assert.False(t, ok)
	assert.Equal(t, members.Regular, got)
}
