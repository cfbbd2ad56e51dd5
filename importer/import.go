package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/members"
	"github.com/warp/clubportal/permission"
	"github.com/warp/clubportal/worklog"
)

// DefaultChunkSize stays under generic.MaxBatchOps with headroom.
const DefaultChunkSize = 450

// DefaultCreditActivity is used when a legacy credit has no description.
const DefaultCreditActivity = "Imported Work Credit"

// =============================================================================
// SCHEMA DETECTION
// =============================================================================

type Schema string

const (
	SchemaMemberBackup Schema = "member_backup"
	SchemaLegacyMember Schema = "legacy_member"
	SchemaLegacyCredit Schema = "legacy_credit"
	SchemaLogBackup    Schema = "log_backup"
	SchemaUnknown      Schema = "unknown"
)

// Detect classifies a row. The checks run in a fixed order and the first
// match wins.
func Detect(row Row) Schema {
	switch {
	case row.Get("SystemID") != "":
		return SchemaMemberBackup
	case row.Has("Key") && row.Has("e-mail address"):
		return SchemaLegacyMember
	case row.Has("Key") && (row.Has("When") || row.Has("Hours")):
		return SchemaLegacyCredit
	case row.Get("LogID") != "" && row.Get("MemberEmail") != "":
		return SchemaLogBackup
	}
	return SchemaUnknown
}

// NormalizeKey truncates a spreadsheet numeric key to its integer form, so
// "2106.0" and "2106" are the same key.
func NormalizeKey(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return "", false
	}
	return strconv.FormatInt(int64(f), 10), true
}

// =============================================================================
// RESULT
// =============================================================================

// Skip records why a row was not imported. Row is the 1-based data row.
type Skip struct {
	Row    int    `json:"row"`
	Schema Schema `json:"schema"`
	Reason string `json:"reason"`
}

// Result counts what an import did. On error the counts cover the chunks
// committed before the failure.
type Result struct {
	Imported int            `json:"imported"`
	Skipped  int            `json:"skipped"`
	Batches  int            `json:"batches"`
	BySchema map[Schema]int `json:"bySchema"`
	Skips    []Skip         `json:"skips,omitempty"`
}

// =============================================================================
// IMPORTER
// =============================================================================

type Importer struct {
	Store     generic.DocStore
	Clock     generic.Clock
	ChunkSize int

	// OnRow observes every row outcome ("imported" or "skipped").
	OnRow func(schema Schema, outcome string)
}

func New(store generic.DocStore, clock generic.Clock, chunkSize int) *Importer {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Importer{Store: store, Clock: clock, ChunkSize: chunkSize}
}

// ImportCSV parses r and imports every row.
func (im *Importer) ImportCSV(ctx context.Context, r io.Reader) (*Result, error) {
	rows, err := ReadRows(r)
	if err != nil {
		return &Result{BySchema: map[Schema]int{}}, fmt.Errorf("parse csv: %w", err)
	}
	return im.Import(ctx, rows)
}

// Import maps and writes rows. A bad row is skipped and counted; only a
// store failure stops the import.
func (im *Importer) Import(ctx context.Context, rows []Row) (*Result, error) {
	res := &Result{BySchema: map[Schema]int{}}

	refs, err := loadCrossRef(ctx, im.Store)
	if err != nil {
		return res, err
	}

	w := generic.NewChunkedWriter(im.Store, im.ChunkSize)
	var pending []Schema
	promote := func() {
		for _, s := range pending {
			res.Imported++
			res.BySchema[s]++
			im.observe(s, "imported")
		}
		pending = pending[:0]
	}

	now := im.Clock.Now()
	for i, row := range rows {
		schema := Detect(row)
		op, reason := im.mapRow(schema, row, refs, now)
		if op == nil {
			res.Skipped++
			res.Skips = append(res.Skips, Skip{Row: i + 1, Schema: schema, Reason: reason})
			im.observe(schema, "skipped")
			continue
		}

		before := w.Commits
		if err := w.Reserve(ctx, 1); err != nil {
			res.Batches = w.Commits
			return res, fmt.Errorf("import row %d: %w", i+1, err)
		}
		if w.Commits > before {
			promote()
		}
		op.apply(w.Batch())
		pending = append(pending, schema)
	}

	if err := w.Flush(ctx); err != nil {
		res.Batches = w.Commits
		return res, fmt.Errorf("import final chunk: %w", err)
	}
	promote()
	res.Batches = w.Commits

	slog.Info("import finished",
		"imported", res.Imported,
		"skipped", res.Skipped,
		"batches", res.Batches)
	return res, nil
}

func (im *Importer) observe(s Schema, outcome string) {
	if im.OnRow != nil {
		im.OnRow(s, outcome)
	}
}

// writeOp is one mapped row.
type writeOp struct {
	ref   generic.DocRef
	merge bool
	data  any
}

func (o *writeOp) apply(b *generic.Batch) {
	if o.merge {
		b.Merge(o.ref, o.data)
	} else {
		b.Set(o.ref, o.data)
	}
}

func (im *Importer) mapRow(schema Schema, row Row, refs *crossRef, now time.Time) (*writeOp, string) {
	switch schema {
	case SchemaMemberBackup:
		return mapMemberBackup(row, refs)
	case SchemaLegacyMember:
		return mapLegacyMember(row, refs, now)
	case SchemaLegacyCredit:
		return mapLegacyCredit(row, refs, now)
	case SchemaLogBackup:
		return mapLogBackup(row, refs)
	}
	return nil, "unrecognized row format"
}

// =============================================================================
// CROSS REFERENCES - Built once per import
// =============================================================================

type crossRef struct {
	legacyByKey   map[string]string
	legacyByEmail map[string]string
	activeByEmail map[string]string
}

func loadCrossRef(ctx context.Context, store generic.DocStore) (*crossRef, error) {
	refs := &crossRef{
		legacyByKey:   map[string]string{},
		legacyByEmail: map[string]string{},
		activeByEmail: map[string]string{},
	}

	legacy, err := store.Query(ctx, generic.Collection(members.LegacyCollection))
	if err != nil {
		return nil, fmt.Errorf("load legacy members: %w", err)
	}
	for _, d := range legacy {
		if key, ok := NormalizeKey(fmt.Sprint(d.Data["legacyKey"])); ok {
			refs.legacyByKey[key] = d.Ref.ID
		}
		if email, _ := d.Data["email"].(string); email != "" {
			refs.legacyByEmail[members.NormalizeEmail(email)] = d.Ref.ID
		}
	}

	active, err := store.Query(ctx, generic.Collection(members.MembersCollection))
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	for _, d := range active {
		if email, _ := d.Data["email"].(string); email != "" {
			refs.activeByEmail[members.NormalizeEmail(email)] = d.Ref.ID
		}
	}
	return refs, nil
}

// =============================================================================
// ROW MAPPERS
// =============================================================================

// backupColumns maps member backup columns to stored fields.
var backupColumns = []struct{ col, field string }{
	{"FirstName", "firstName"},
	{"LastName", "lastName"},
	{"FirstName2", "firstName2"},
	{"LastName2", "lastName2"},
	{"Email", "email"},
	{"Phone", "phone"},
	{"Cell", "cellPhone"},
	{"WorkPhone", "workPhone"},
	{"Address", "address"},
	{"City", "city"},
	{"State", "state"},
	{"Zip", "zip"},
	{"Joined", "joinedDate"},
	{"Breeds", "breeds"},
	{"Occupation", "occupation"},
	{"Interests", "interests"},
}

// mapMemberBackup merges only the columns present in the file.
func mapMemberBackup(row Row, refs *crossRef) (*writeOp, string) {
	id := row.Get("SystemID")
	legacy := row.Get("Status") != "Active"
	email := members.NormalizeEmail(row.Get("Email"))
	if !legacy && email != "" {
		if owner, ok := refs.activeByEmail[email]; ok && owner != id {
			return nil, fmt.Sprintf("email %s belongs to member %s", email, owner)
		}
	}

	f := generic.Fields{}
	for _, c := range backupColumns {
		if row.Has(c.col) {
			f[c.field] = row.Get(c.col)
		}
	}
	if row.Has("Email") {
		f["email"] = email
	}
	if row.Has("MembershipType") {
		t, _ := members.ParseMembershipType(row.Get("MembershipType"))
		f["membershipType"] = string(t)
	}
	if row.Has("Role") {
		f["role"] = string(permission.ParseRole(row.Get("Role")))
	}
	if key, ok := NormalizeKey(row.Get("LegacyKey")); ok {
		n, _ := strconv.Atoi(key)
		f["legacyKey"] = n
		if legacy {
			refs.legacyByKey[key] = id
		}
	}
	if acts := activityFlags(row, "Y"); acts != nil {
		f["activities"] = acts
	}

	coll := members.MembersCollection
	if legacy {
		coll = members.LegacyCollection
		if email != "" {
			refs.legacyByEmail[email] = id
		}
	} else if email != "" {
		refs.activeByEmail[email] = id
	}

	return &writeOp{ref: generic.Collection(coll).Doc(id), merge: true, data: f}, ""
}

// activityFlags reads the committee columns present in row; nil if none are.
func activityFlags(row Row, yes string) map[string]any {
	var acts map[string]any
	for _, name := range members.ActivityNames {
		if !row.Has(name) {
			continue
		}
		if acts == nil {
			acts = map[string]any{}
		}
		acts[members.ActivityKey(name)] = strings.EqualFold(row.Get(name), yes)
	}
	return acts
}

func mapLegacyMember(row Row, refs *crossRef, now time.Time) (*writeOp, string) {
	email := members.NormalizeEmail(row.Get("e-mail address"))
	if email == "" {
		return nil, "missing e-mail address"
	}
	key, ok := NormalizeKey(row.Get("Key"))
	if !ok {
		return nil, fmt.Sprintf("invalid key %q", row.Get("Key"))
	}
	n, _ := strconv.Atoi(key)
	mt, _ := members.ParseMembershipType(row.Get("Member Type"))

	f := generic.Fields{
		"legacyKey":      n,
		"email":          email,
		"importedAt":     now,
		"firstName":      row.Get("FirstName"),
		"lastName":       row.Get("LastName"),
		"firstName2":     row.Get("FirstName2"),
		"lastName2":      row.Get("LastName2"),
		"membershipType": string(mt),
		"isActive":       row.Get("Active") == "True",
		"address":        row.Get("Address"),
		"city":           row.Get("City"),
		"state":          row.Get("St"),
		"zip":            row.Get("Zip"),
		"phone":          row.Get("Phone"),
		"cellPhone":      row.Get("Cell Phone"),
		"workPhone":      row.Get("WorkPhone"),
		"joinedDate":     row.Get("Became Member"),
		"breeds":         row.Get("Breed"),
		"occupation":     row.Get("Occupation"),
		"interests":      row.Get("Interests"),
	}
	if acts := activityFlags(row, "True"); acts != nil {
		f["activities"] = acts
	}

	refs.legacyByKey[key] = email
	refs.legacyByEmail[email] = email
	return &writeOp{ref: members.LegacyRef(email), merge: true, data: f}, ""
}

func mapLegacyCredit(row Row, refs *crossRef, now time.Time) (*writeOp, string) {
	key, ok := NormalizeKey(row.Get("Key"))
	if !ok {
		return nil, fmt.Sprintf("invalid key %q", row.Get("Key"))
	}
	parent, ok := refs.legacyByKey[key]
	if !ok {
		return nil, fmt.Sprintf("no legacy member with key %s", key)
	}
	date, ok := generic.ParseDate(row.Get("When"))
	if !ok {
		return nil, fmt.Sprintf("unparseable date %q", row.Get("When"))
	}
	activity := row.Get("Description")
	if activity == "" {
		activity = DefaultCreditActivity
	}

	entry := worklog.LogEntry{
		Date:       date,
		Activity:   activity,
		Hours:      generic.ParseHours(row.Get("Hours")),
		Status:     worklog.StatusApproved,
		ImportedAt: &now,
	}
	return &writeOp{ref: worklog.Legacy(parent).Logs().NewDoc(), data: entry}, ""
}

func mapLogBackup(row Row, refs *crossRef) (*writeOp, string) {
	email := members.NormalizeEmail(row.Get("MemberEmail"))
	date, ok := generic.ParseDate(row.Get("Date"))
	if !ok {
		return nil, fmt.Sprintf("unparseable date %q", row.Get("Date"))
	}
	status, ok := worklog.ParseStatus(row.Get("Status"))
	if !ok {
		return nil, fmt.Sprintf("unknown status %q", row.Get("Status"))
	}

	entry := worklog.LogEntry{
		Date:            date,
		Activity:        row.Get("Activity"),
		Hours:           generic.ParseHours(row.Get("Hours")),
		Status:          status,
		ApplyToNextYear: isYes(row.Get("FiscalYearRollover")),
	}

	if strings.Contains(row.Get("Type"), "Legacy") {
		parent, ok := refs.legacyByEmail[email]
		if !ok {
			return nil, fmt.Sprintf("no legacy member with email %s", email)
		}
		return &writeOp{ref: worklog.Legacy(parent).LogRef(row.Get("LogID")), data: entry}, ""
	}

	uid, ok := refs.activeByEmail[email]
	if !ok {
		return nil, fmt.Sprintf("no member with email %s", email)
	}
	entry.MemberID = uid
	f, err := generic.ToFields(entry)
	if err != nil {
		return nil, err.Error()
	}
	return &writeOp{ref: worklog.Active(uid).LogRef(row.Get("LogID")), merge: true, data: f}, ""
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true":
		return true
	}
	return false
}
