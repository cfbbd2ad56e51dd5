package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"

	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/members"
	"github.com/warp/clubportal/worklog"
)

// Backup headers. Import reads these back, so names must not change.
var (
	MemberBackupHeader = []string{
		"SystemID", "Status", "LegacyKey", "FirstName", "LastName", "FirstName2", "LastName2",
		"Email", "Phone", "Cell", "WorkPhone", "Address", "City", "State", "Zip",
		"MembershipType", "Role", "Joined", "Breeds", "Occupation", "Interests",
		"Agility", "Obedience", "Rally", "Flyball", "Freestyle", "Conformation", "Earthdog",
	}
	LogBackupHeader = []string{
		"LogID", "Type", "MemberEmail", "MemberName", "Date", "Activity", "Hours", "Status", "FiscalYearRollover",
	}
)

const (
	statusActive       = "Active"
	statusUnregistered = "Unregistered"
	typeLegacy         = "Legacy (Unregistered)"
)

// =============================================================================
// EXPORT
// =============================================================================

type Exporter struct {
	Store generic.DocStore
}

func NewExporter(store generic.DocStore) *Exporter {
	return &Exporter{Store: store}
}

// ExportMembers writes every registered then every legacy member.
func (e *Exporter) ExportMembers(ctx context.Context, w io.Writer) (int, error) {
	var rows []Row
	for _, coll := range []string{members.MembersCollection, members.LegacyCollection} {
		docs, err := e.Store.Query(ctx, generic.Collection(coll))
		if err != nil {
			return 0, err
		}
		for _, d := range docs {
			m, err := members.Decode(d)
			if err != nil {
				return 0, fmt.Errorf("decode member %s: %w", d.Ref, err)
			}
			rows = append(rows, memberRow(m))
		}
	}
	return len(rows), WriteRows(w, MemberBackupHeader, rows)
}

func memberRow(m members.Member) Row {
	status := statusActive
	if m.Provenance == members.LegacyRecord {
		status = statusUnregistered
	}
	legacyKey := ""
	if m.LegacyKey != nil {
		legacyKey = strconv.Itoa(*m.LegacyKey)
	}
	row := Row{
		"SystemID":       m.ID,
		"Status":         status,
		"LegacyKey":      legacyKey,
		"FirstName":      m.FirstName,
		"LastName":       m.LastName,
		"FirstName2":     m.FirstName2,
		"LastName2":      m.LastName2,
		"Email":          m.Email,
		"Phone":          m.Phone,
		"Cell":           m.CellPhone,
		"WorkPhone":      m.WorkPhone,
		"Address":        m.Address,
		"City":           m.City,
		"State":          m.State,
		"Zip":            m.Zip,
		"MembershipType": string(m.MembershipType),
		"Role":           string(m.Role),
		"Joined":         m.JoinedDate,
		"Breeds":         m.Breeds,
		"Occupation":     m.Occupation,
		"Interests":      m.Interests,
	}
	for _, name := range members.ActivityNames {
		if m.Activities[members.ActivityKey(name)] {
			row[name] = "Y"
		} else {
			row[name] = ""
		}
	}
	return row
}

type logRow struct {
	date generic.Date
	row  Row
}

// ExportLogs writes active and legacy logs, newest first.
func (e *Exporter) ExportLogs(ctx context.Context, w io.Writer) (int, error) {
	var out []logRow

	active, err := e.Store.Query(ctx, generic.Collection(members.MembersCollection))
	if err != nil {
		return 0, err
	}
	byID := make(map[string]members.Member, len(active))
	for _, d := range active {
		m, err := members.Decode(d)
		if err != nil {
			return 0, fmt.Errorf("decode member %s: %w", d.Ref, err)
		}
		byID[m.ID] = m
	}

	logs, err := e.Store.Query(ctx, generic.Collection(worklog.ActiveLogs))
	if err != nil {
		return 0, err
	}
	entries, err := worklog.DecodeAll(logs)
	if err != nil {
		return 0, err
	}
	for _, l := range entries {
		email, name := "", "Unknown"
		if m, ok := byID[l.MemberID]; ok {
			email, name = m.Email, m.DisplayName()
		}
		out = append(out, logRow{l.Date, entryRow(l, statusActive, email, name)})
	}

	legacy, err := e.Store.Query(ctx, generic.Collection(members.LegacyCollection))
	if err != nil {
		return 0, err
	}
	for _, d := range legacy {
		m, err := members.Decode(d)
		if err != nil {
			return 0, fmt.Errorf("decode member %s: %w", d.Ref, err)
		}
		docs, err := e.Store.Query(ctx, m.Owner().Logs())
		if err != nil {
			return 0, err
		}
		entries, err := worklog.DecodeAll(docs)
		if err != nil {
			return 0, err
		}
		for _, l := range entries {
			out = append(out, logRow{l.Date, entryRow(l, typeLegacy, m.Email, m.DisplayName())})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].date.After(out[j].date) })
	rows := make([]Row, len(out))
	for i, r := range out {
		rows[i] = r.row
	}
	return len(rows), WriteRows(w, LogBackupHeader, rows)
}

func entryRow(l worklog.LogEntry, typ, email, name string) Row {
	rollover := "No"
	if l.ApplyToNextYear {
		rollover = "Yes"
	}
	return Row{
		"LogID":              l.ID,
		"Type":               typ,
		"MemberEmail":        email,
		"MemberName":         name,
		"Date":               l.Date.String(),
		"Activity":           l.Activity,
		"Hours":              l.Hours.String(),
		"Status":             string(l.Status),
		"FiscalYearRollover": rollover,
	}
}

// =============================================================================
// CLEAR LEGACY
// =============================================================================

// ClearLegacy deletes every legacy member with its logs and their history.
// Deletes are chunked; a member's children are deleted before the member.
func (im *Importer) ClearLegacy(ctx context.Context) (int, error) {
	legacy, err := im.Store.Query(ctx, generic.Collection(members.LegacyCollection))
	if err != nil {
		return 0, err
	}

	w := generic.NewChunkedWriter(im.Store, im.ChunkSize)
	del := func(ref generic.DocRef) error {
		if err := w.Reserve(ctx, 1); err != nil {
			return err
		}
		w.Batch().Delete(ref)
		return nil
	}

	for _, d := range legacy {
		logs, err := im.Store.Query(ctx, worklog.Legacy(d.Ref.ID).Logs())
		if err != nil {
			return 0, err
		}
		for _, l := range logs {
			hist, err := im.Store.Query(ctx, l.Ref.Sub(worklog.History))
			if err != nil {
				return 0, err
			}
			for _, h := range hist {
				if err := del(h.Ref); err != nil {
					return 0, err
				}
			}
			if err := del(l.Ref); err != nil {
				return 0, err
			}
		}
		if err := del(d.Ref); err != nil {
			return 0, err
		}
	}
	if err := w.Flush(ctx); err != nil {
		return 0, err
	}

	slog.Info("legacy data cleared", "members", len(legacy), "writes", w.Writes)
	return len(legacy), nil
}
