package importer_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/generic/store"
	"github.com/warp/clubportal/importer"
	"github.com/warp/clubportal/members"
	"github.com/warp/clubportal/permission"
	"github.com/warp/clubportal/worklog"
)

var importTime = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func newImporter(st generic.DocStore) *importer.Importer {
	return importer.New(st, generic.FixedClock{At: importTime}, importer.DefaultChunkSize)
}

func importCSV(t *testing.T, im *importer.Importer, csv string) *importer.Result {
	t.Helper()
	res, err := im.ImportCSV(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	return res
}

// =============================================================================
// DETECTION
// =============================================================================

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		row  importer.Row
		want importer.Schema
	}{
		{"backup wins over key", importer.Row{"SystemID": "u1", "Key": "1", "e-mail address": "a@x.org"}, importer.SchemaMemberBackup},
		{"legacy member", importer.Row{"Key": "1", "e-mail address": ""}, importer.SchemaLegacyMember},
		{"legacy credit", importer.Row{"Key": "1", "When": "1/2/2020", "Hours": "2"}, importer.SchemaLegacyCredit},
		{"log backup", importer.Row{"LogID": "L1", "MemberEmail": "a@x.org"}, importer.SchemaLogBackup},
		{"log backup without email", importer.Row{"LogID": "L1", "MemberEmail": ""}, importer.SchemaUnknown},
		{"empty system id", importer.Row{"SystemID": " "}, importer.SchemaUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, importer.Detect(tc.row))
		})
	}
}

func TestNormalizeKey(t *testing.T) {
	key, ok := importer.NormalizeKey("2106.0")
	require.True(t, ok)
	assert.Equal(t, "2106", key)

	key, ok = importer.NormalizeKey(" 43 ")
	require.True(t, ok)
	assert.Equal(t, "43", key)

	_, ok = importer.NormalizeKey("abc")
	assert.False(t, ok)

	for _, raw := range []string{"NaN", "Inf", "-Inf", "1e30", "-1e30"} {
		_, ok = importer.NormalizeKey(raw)
		assert.False(t, ok, raw)
	}
}

func TestReadRows(t *testing.T) {
	rows, err := importer.ReadRows(strings.NewReader("\ufeff Key ,When\n2106.0,1/2/2020\n,\n7\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2106.0", rows[0].Get("Key"))
	assert.True(t, rows[1].Has("When"))
	assert.Equal(t, "", rows[1].Get("When"))
}

// =============================================================================
// LEGACY SPREADSHEETS
// =============================================================================

func TestImport_LegacyMembersThenCredits(t *testing.T) {
	// GIVEN: A legacy member file where the key was exported as "2106.0"
	// WHEN: A credits file referencing key 2106 is imported next
	// THEN: The credit lands under that legacy member; unknown keys are skipped

	st := store.NewMemory()
	ctx := context.Background()
	im := newImporter(st)

	res := importCSV(t, im, "Key,e-mail address,FirstName,LastName,Member Type,Active,St,Agility,Rally\n"+
		"2106.0, Pat@X.org ,Pat,Smith,,True,IL,True,False\n"+
		"44,,No,Email,Regular,True,IL,False,False\n")
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Skipped)

	m, err := members.NewRepository(st).GetLegacy(ctx, "pat@x.org")
	require.NoError(t, err)
	require.NotNil(t, m)
	require.NotNil(t, m.LegacyKey)
	assert.Equal(t, 2106, *m.LegacyKey)
	assert.Equal(t, members.Regular, m.MembershipType)
	assert.Equal(t, "IL", m.State)
	assert.True(t, m.Activities["agility"])
	assert.False(t, m.Activities["rally"])

	res = importCSV(t, im, "Key,When,Description,Hours\n"+
		"2106,11/15/2025,Ring steward,3\n"+
		"2106,10/01/2025,,abc\n"+
		"9999,11/15/2025,Orphan,1\n"+
		"2106,someday,Bad date,1\n")
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 2, res.BySchema[importer.SchemaLegacyCredit])

	logs, err := worklog.NewService(st, nil).List(ctx, worklog.Legacy("pat@x.org"))
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "2025-11-15", logs[0].Date.String())
	assert.Equal(t, importer.DefaultCreditActivity, logs[1].Activity)
	assert.True(t, logs[1].Hours.IsZero())
	assert.Equal(t, worklog.StatusApproved, logs[0].Status)
}

func TestImport_SkipsUnknownRows(t *testing.T) {
	res := importCSV(t, newImporter(store.NewMemory()), "Foo,Bar\n1,2\n3,4\n")
	assert.Zero(t, res.Imported)
	assert.Equal(t, 2, res.Skipped)
	require.Len(t, res.Skips, 2)
	assert.Equal(t, importer.SchemaUnknown, res.Skips[0].Schema)
}

// =============================================================================
// BACKUPS
// =============================================================================

func TestImport_MemberBackupMergesPresentColumns(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.Commit(ctx, generic.NewBatch().Set(members.MemberRef("u1"), generic.Fields{
		"firstName": "Ann", "lastName": "Lee", "city": "Springfield", "email": "ann@x.org",
	})))

	res := importCSV(t, newImporter(st), "SystemID,Status,LastName,Rally\nu1,Active,Leigh,Y\n")
	assert.Equal(t, 1, res.Imported)

	m, err := members.NewRepository(st).Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Leigh", m.LastName)
	assert.Equal(t, "Springfield", m.City, "absent columns are left untouched")
	assert.True(t, m.Activities["rally"])
}

func TestImport_MemberBackupKeepsEmailsUnique(t *testing.T) {
	// GIVEN: An existing member u2 using bob@x.org
	// WHEN: A backup with a mixed-case email for u1 and bob's address for u3 is imported
	// THEN: u1's email is stored normalized, u3 is skipped, and u2 cannot
	//       take u1's address afterwards

	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.Commit(ctx, generic.NewBatch().Set(members.MemberRef("u2"), generic.Fields{
		"firstName": "Bob", "lastName": "Ng", "email": "bob@x.org",
	})))

	res := importCSV(t, newImporter(st), "SystemID,Status,Email\n"+
		"u1,Active, Pat@X.org \n"+
		"u3,Active,BOB@x.org\n"+
		"u2,Active,Bob@X.org\n")
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Skips, 1)
	assert.Equal(t, 2, res.Skips[0].Row)
	assert.Contains(t, res.Skips[0].Reason, "u2")

	repo := members.NewRepository(st)
	m, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "pat@x.org", m.Email)

	ghost, err := repo.Get(ctx, "u3")
	require.NoError(t, err)
	assert.Nil(t, ghost)

	taken := "pat@x.org"
	_, err = repo.UpdateProfile(ctx, worklog.Active("u2"), members.ProfileUpdate{Email: &taken},
		&permission.User{ID: "u2", Role: permission.RoleMember})
	assert.ErrorIs(t, err, generic.ErrAlreadyExists)
}

func TestExportImport_RoundTripDoesNotDuplicate(t *testing.T) {
	// GIVEN: One active and one legacy member, each with a log
	// WHEN: Logs are exported and the backup imported back
	// THEN: Every row imports onto its existing document

	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.Commit(ctx, generic.NewBatch().
		Set(members.MemberRef("u1"), generic.Fields{"email": "ann@x.org", "firstName": "Ann", "lastName": "Lee", "firstName2": "Bo"}).
		Set(worklog.Active("u1").LogRef("L1"), generic.Fields{"memberId": "u1", "date": "2025-12-01", "activity": "Setup", "hours": 2.5, "status": "pending", "applyToNextYear": true}).
		Set(members.LegacyRef("old@x.org"), generic.Fields{"email": "old@x.org", "lastName": "Old", "firstName": "Al"}).
		Set(worklog.Legacy("old@x.org").LogRef("L2"), generic.Fields{"date": "2024-05-01", "activity": "Mowing", "hours": 1})))

	var buf bytes.Buffer
	n, err := importer.NewExporter(st).ExportLogs(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "LogID,Type,MemberEmail,MemberName,Date,Activity,Hours,Status,FiscalYearRollover\n"))
	assert.Contains(t, out, "L1,Active,ann@x.org,\"Lee, Ann & Bo\",2025-12-01,Setup,2.5,pending,Yes")
	assert.Contains(t, out, "L2,Legacy (Unregistered),old@x.org,\"Old, Al\",2024-05-01,Mowing,1,approved,No")
	assert.Less(t, strings.Index(out, "L1"), strings.Index(out, "L2"), "newest first")

	res := importCSV(t, newImporter(st), out)
	assert.Equal(t, 2, res.Imported)
	assert.Zero(t, res.Skipped)

	active, err := st.Query(ctx, generic.Collection(worklog.ActiveLogs))
	require.NoError(t, err)
	assert.Len(t, active, 1)
	legacy, err := st.Query(ctx, worklog.Legacy("old@x.org").Logs())
	require.NoError(t, err)
	assert.Len(t, legacy, 1)

	l, err := worklog.NewService(st, nil).Get(ctx, worklog.Active("u1"), "L1")
	require.NoError(t, err)
	assert.Equal(t, worklog.StatusPending, l.Status)
	assert.True(t, l.ApplyToNextYear)
}

func TestExportMembers(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.Commit(ctx, generic.NewBatch().
		Set(members.MemberRef("u1"), generic.Fields{"email": "ann@x.org", "firstName": "Ann", "role": "admin", "activities": map[string]any{"flyball": true}}).
		Set(members.LegacyRef("old@x.org"), generic.Fields{"email": "old@x.org", "legacyKey": 2106})))

	var buf bytes.Buffer
	n, err := importer.NewExporter(st).ExportMembers(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := importer.ReadRows(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Active", rows[0].Get("Status"))
	assert.Equal(t, "admin", rows[0].Get("Role"))
	assert.Equal(t, "Y", rows[0].Get("Flyball"))
	assert.Equal(t, "", rows[0].Get("Agility"))
	assert.Equal(t, "Unregistered", rows[1].Get("Status"))
	assert.Equal(t, "2106", rows[1].Get("LegacyKey"))
	assert.Equal(t, "member", rows[1].Get("Role"))
}

// =============================================================================
// CHUNKING
// =============================================================================

func TestImport_LargeFileIsChunked(t *testing.T) {
	// GIVEN: 1000 log backup rows for one member
	// WHEN: Imported with the default chunk size
	// THEN: Every row lands, spread over three sequential batches

	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.Commit(ctx, generic.NewBatch().Set(members.MemberRef("u1"), generic.Fields{"email": "ann@x.org"})))

	var sb strings.Builder
	sb.WriteString("LogID,Type,MemberEmail,Date,Activity,Hours,Status,FiscalYearRollover\n")
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&sb, "L%04d,Active,ann@x.org,2025-11-01,Work,1,approved,No\n", i)
	}

	res := importCSV(t, newImporter(st), sb.String())
	assert.Equal(t, 1000, res.Imported)
	assert.Equal(t, 3, res.Batches)

	logs, err := st.Query(ctx, generic.Collection(worklog.ActiveLogs))
	require.NoError(t, err)
	assert.Len(t, logs, 1000)
}

func TestClearLegacy(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	legacy := members.LegacyRef("old@x.org")
	require.NoError(t, st.Commit(ctx, generic.NewBatch().
		Set(legacy, generic.Fields{"email": "old@x.org"}).
		Set(worklog.Legacy("old@x.org").LogRef("L1"), generic.Fields{"activity": "x"}).
		Set(members.MemberRef("u1"), generic.Fields{"email": "keep@x.org"})))

	n, err := newImporter(st).ClearLegacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	docs, err := st.Query(ctx, worklog.Legacy("old@x.org").Logs())
	require.NoError(t, err)
	assert.Empty(t, docs)

	kept, err := st.Get(ctx, members.MemberRef("u1"))
	require.NoError(t, err)
	assert.NotNil(t, kept)
}
