/*
handlers.go - HTTP API handlers for the club portal

PURPOSE:
  Exposes the portal services via REST API. Handles HTTP request/response,
  JSON serialization, permission checks, and delegates to domain packages.

ENDPOINTS:
  Auth (public):
    POST   /api/auth/signup              Create account, returns session
    POST   /api/auth/signin              Returns session
    POST   /api/auth/reset               Mail a reset token
    POST   /api/auth/reset/confirm       Set a new password with a token
  Auth (signed in):
    POST   /api/auth/signout             Revoke the bearer token

  Members:
    GET    /api/me                       Own profile and rewards
    GET    /api/members                  Directory (manage_members)
    GET    /api/members/{id}             Profile (self or manage_members)
    PUT    /api/members/{id}             Update profile
    GET    /api/members/{id}/rewards     Rewards summary
    GET    /api/members/{id}/logs        Logs, newest first
    POST   /api/members/{id}/dedupe      Remove duplicate logs (edit_any_log)

  Logs:
    POST   /api/logs/propose             Reconcile a new log without writing
    POST   /api/logs                     Confirm a new log
    PUT    /api/logs/{owner}/{id}/propose
    PUT    /api/logs/{owner}/{id}        Confirm an edit
    DELETE /api/logs/{owner}/{id}
    POST   /api/logs/{owner}/{id}/rollover
    GET    /api/logs/{owner}/{id}/history

  Review (review_logs):
    GET    /api/review/pending
    POST   /api/review/{id}/approve
    POST   /api/review/{id}/reject

  Admin:
    POST   /api/admin/import             CSV body or multipart "file"
    GET    /api/admin/export/{kind}      members | logs
    DELETE /api/admin/legacy             Clear legacy records

  Sheets:
    GET    /api/sheets                   (manage_sheets)
    POST   /api/sheets                   Multipart: date, event, image (bulk_entry)
    GET    /api/sheets/{code}
    POST   /api/sheets/{code}/entries    (bulk_entry)
    DELETE /api/sheets/{code}            Cascade delete (manage_sheets)
    GET    /blobs/{path}                 Sheet image, in-memory blob store only

OWNERS:
  {owner} and member {id} are the member UID, or LEGACY_<id> for a legacy
  record. Members may always address their own UID.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, oversized batch
  - 401: Missing, invalid or revoked credentials
  - 403: Permission denied
  - 404: Resource not found
  - 409: Conflict (duplicate account or email)
  - 500: Internal errors; missing indexes add a "guidance" field

SEE ALSO:
  - dto.go: Request/response data structures
  - middleware.go: Authentication
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/warp/clubportal/auth"
	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/importer"
	"github.com/warp/clubportal/members"
	"github.com/warp/clubportal/permission"
	"github.com/warp/clubportal/rewards"
	"github.com/warp/clubportal/sheets"
	"github.com/warp/clubportal/worklog"
)

// maxUploadBytes bounds CSV imports and sheet images.
const maxUploadBytes = 32 << 20

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    generic.DocStore
	Clock    generic.Clock
	Auth     *auth.Service
	Members  *members.Repository
	Merger   *members.Merger
	Logs     *worklog.Service
	Rewards  *rewards.Engine
	Sheets   *sheets.Service
	Importer *importer.Importer
	Exporter *importer.Exporter
	Metrics  *Metrics
}

// Options tunes NewHandler. The zero value is usable.
type Options struct {
	Clock     generic.Clock
	ChunkSize int
	Metrics   *Metrics
}

// NewHandler builds the services over one store, connects their observer
// hooks to metrics and registers the profile sync on sign-in.
func NewHandler(store generic.DocStore, authSvc *auth.Service, blobs sheets.BlobStore, opts Options) *Handler {
	clock := opts.Clock
	if clock == nil {
		clock = generic.SystemClock{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	h := &Handler{
		Store:    store,
		Clock:    clock,
		Auth:     authSvc,
		Members:  members.NewRepository(store),
		Merger:   members.NewMerger(store, clock),
		Logs:     worklog.NewService(store, clock),
		Rewards:  rewards.NewEngine(clock),
		Sheets:   sheets.NewService(store, blobs, clock),
		Importer: importer.New(store, clock, opts.ChunkSize),
		Exporter: importer.NewExporter(store),
		Metrics:  metrics,
	}

	h.Importer.OnRow = func(s importer.Schema, outcome string) {
		metrics.ImportRows.WithLabelValues(string(s), outcome).Inc()
	}
	h.Merger.OnMerge = func(members.MergeResult) {
		metrics.Merges.WithLabelValues("merged").Inc()
	}
	h.Sheets.OnDelete = func(outcome string) {
		metrics.SheetDeletes.WithLabelValues(outcome).Inc()
	}

	authSvc.OnSessionChange(func(ctx context.Context, e auth.Event) error {
		if e.Kind != auth.SignedIn {
			return nil
		}
		_, err := h.syncProfile(ctx, e.Identity)
		return err
	})
	return h
}

func (h *Handler) syncProfile(ctx context.Context, id auth.Identity) (*members.MergeResult, error) {
	res, err := h.Merger.SyncProfile(ctx, members.Identity{UID: id.UID, Email: id.Email})
	switch {
	case err != nil:
		h.Metrics.Merges.WithLabelValues("failed").Inc()
	case res.Created:
		h.Metrics.Merges.WithLabelValues("created").Inc()
	case res.LegacyMerged == 0:
		h.Metrics.Merges.WithLabelValues("unchanged").Inc()
	}
	return res, err
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// AUTH ENDPOINTS
// =============================================================================

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.Auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, "Failed to sign up", err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, "Failed to sign in", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if err := h.Auth.SignOut(r.Context(), p.Token); err != nil {
		h.fail(w, "Failed to sign out", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestReset always answers 202 so callers cannot probe for accounts.
func (h *Handler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.Auth.SendPasswordReset(r.Context(), req.Email); err != nil {
		h.fail(w, "Failed to send reset email", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req ResetConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.Auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.fail(w, "Failed to reset password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// MEMBER ENDPOINTS
// =============================================================================

// GetMe returns the caller's profile and current-year rewards.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	summary, err := h.rewardsFor(r.Context(), *p.Member)
	if err != nil {
		h.fail(w, "Failed to compute rewards", err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{Member: toMemberDTO(*p.Member), Rewards: summary})
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, permission.ManageMembers) {
		return
	}
	q := r.URL.Query()
	list, err := h.Members.List(r.Context(), members.ListOptions{
		Search:  q.Get("search"),
		ShowAll: q.Get("showAll") == "true",
	})
	if err != nil {
		h.fail(w, "Failed to list members", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTOs(list))
}

func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	m, ok := h.memberParam(w, r, permission.ManageMembers)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

// UpdateMember applies a profile update. The repository decides what the
// caller may change.
func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	var u members.ProfileUpdate
	if !decodeJSON(w, r, &u) {
		return
	}
	p := principalFrom(r.Context())
	m, err := h.Members.UpdateProfile(r.Context(), ownerParam(r, "id"), u, p.User())
	if err != nil {
		h.fail(w, "Failed to update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

func (h *Handler) GetMemberRewards(w http.ResponseWriter, r *http.Request) {
	m, ok := h.memberParam(w, r, permission.ManageMembers)
	if !ok {
		return
	}
	summary, err := h.rewardsFor(r.Context(), *m)
	if err != nil {
		h.fail(w, "Failed to compute rewards", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) ListMemberLogs(w http.ResponseWriter, r *http.Request) {
	owner := ownerParam(r, "id")
	if !canAccess(w, r, owner, permission.ReviewLogs) {
		return
	}
	logs, err := h.Logs.List(r.Context(), owner)
	if err != nil {
		h.fail(w, "Failed to list logs", err)
		return
	}
	writeJSON(w, http.StatusOK, toLogDTOs(owner, logs))
}

func (h *Handler) DedupeMemberLogs(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, permission.EditAnyLog) {
		return
	}
	n, err := h.Logs.RemoveDuplicates(r.Context(), ownerParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to remove duplicates", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

func (h *Handler) rewardsFor(ctx context.Context, m members.Member) (rewards.Summary, error) {
	logs, err := h.Logs.List(ctx, m.Owner())
	if err != nil {
		return rewards.Summary{}, err
	}
	return h.Rewards.ComputeRewards(logs, string(m.MembershipType)), nil
}

// memberParam loads the {id} member if the caller is that member or may act.
func (h *Handler) memberParam(w http.ResponseWriter, r *http.Request, action permission.Action) (*members.Member, bool) {
	owner := ownerParam(r, "id")
	if !canAccess(w, r, owner, action) {
		return nil, false
	}
	m, err := h.Members.Find(r.Context(), owner)
	if err != nil {
		h.fail(w, "Failed to load member", err)
		return nil, false
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "Member not found", nil)
		return nil, false
	}
	return m, true
}

// =============================================================================
// LOG ENDPOINTS
// =============================================================================

// ProposeLog reconciles a new log without writing it.
func (h *Handler) ProposeLog(w http.ResponseWriter, r *http.Request) {
	req, ok := h.submitRequest(w, r, "")
	if !ok {
		return
	}
	proposal, err := h.Logs.Propose(r.Context(), req)
	if err != nil {
		h.fail(w, "Failed to check log", err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

// CreateLog writes a new log. Clients call it after the submitter accepted
// the proposal's confirmation prompt, if there was one.
func (h *Handler) CreateLog(w http.ResponseWriter, r *http.Request) {
	req, ok := h.submitRequest(w, r, "")
	if !ok {
		return
	}
	h.confirm(w, r, req, http.StatusCreated)
}

func (h *Handler) ProposeLogEdit(w http.ResponseWriter, r *http.Request) {
	req, ok := h.submitRequest(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	proposal, err := h.Logs.Propose(r.Context(), req)
	if err != nil {
		h.fail(w, "Failed to check log", err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

func (h *Handler) UpdateLog(w http.ResponseWriter, r *http.Request) {
	req, ok := h.submitRequest(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	h.confirm(w, r, req, http.StatusOK)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request, req worklog.SubmitRequest, status int) {
	entry, decision, err := h.Logs.Confirm(r.Context(), req)
	if err != nil {
		h.fail(w, "Failed to save log", err)
		return
	}
	h.Metrics.LogSubmissions.WithLabelValues(string(decision.Status)).Inc()
	writeJSON(w, status, SubmitLogResponse{Log: toLogDTO(req.Owner, *entry), Decision: decision})
}

// submitRequest reads a SubmitLogRequest. For edits the owner comes from
// the path, for creates from the body, defaulting to the caller.
func (h *Handler) submitRequest(w http.ResponseWriter, r *http.Request, logID string) (worklog.SubmitRequest, bool) {
	var body SubmitLogRequest
	if !decodeJSON(w, r, &body) {
		return worklog.SubmitRequest{}, false
	}
	p := principalFrom(r.Context())

	owner := worklog.Active(p.Identity.UID)
	switch {
	case logID != "":
		owner = ownerParam(r, "owner")
	case body.Owner != "":
		owner = worklog.ParseOwner(body.Owner)
	}
	if !canAccess(w, r, owner, permission.EditAnyLog) {
		return worklog.SubmitRequest{}, false
	}

	return worklog.SubmitRequest{
		Owner:    owner,
		LogID:    logID,
		Draft:    body.Draft,
		EditorID: p.Identity.UID,
		Role:     p.Member.Role,
	}, true
}

func (h *Handler) DeleteLog(w http.ResponseWriter, r *http.Request) {
	owner := ownerParam(r, "owner")
	if !canAccess(w, r, owner, permission.EditAnyLog) {
		return
	}
	if err := h.Logs.Delete(r.Context(), owner, chi.URLParam(r, "id")); err != nil {
		h.fail(w, "Failed to delete log", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ToggleRollover(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, permission.ToggleRollover) {
		return
	}
	owner := ownerParam(r, "owner")
	entry, err := h.Logs.ToggleRollover(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to update log", err)
		return
	}
	writeJSON(w, http.StatusOK, toLogDTO(owner, *entry))
}

func (h *Handler) GetLogHistory(w http.ResponseWriter, r *http.Request) {
	owner := ownerParam(r, "owner")
	if !canAccess(w, r, owner, permission.ReviewLogs) {
		return
	}
	history, err := h.Logs.History(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to load history", err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// =============================================================================
// REVIEW ENDPOINTS
// =============================================================================

// ListPending returns the review queue with member names resolved.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, permission.ReviewLogs) {
		return
	}
	ctx := r.Context()
	pending, err := h.Logs.ListPending(ctx)
	if err != nil {
		h.fail(w, "Failed to list pending logs", err)
		return
	}

	ids := make([]string, 0, len(pending))
	for _, e := range pending {
		ids = append(ids, e.MemberID)
	}
	names, err := h.Members.DisplayNames(ctx, ids)
	if err != nil {
		h.fail(w, "Failed to resolve member names", err)
		return
	}

	out := make([]PendingLogDTO, 0, len(pending))
	for _, e := range pending {
		name := names[e.MemberID]
		if name == "" {
			name = "Unknown"
		}
		out = append(out, PendingLogDTO{LogDTO: toLogDTO(worklog.Active(e.MemberID), e), MemberName: name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ApproveLog(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, permission.ReviewLogs) {
		return
	}
	if err := h.Logs.Approve(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "Failed to approve log", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(worklog.StatusApproved)})
}

func (h *Handler) RejectLog(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, permission.ReviewLogs) {
		return
	}
	if err := h.Logs.Reject(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "Failed to reject log", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// ImportCSV accepts the CSV as the raw body or as a multipart "file" part.
// A failed import reports the counts committed before the failure.
func (h *Handler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, permission.ImportData) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		f, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "Missing file", err)
			return
		}
		defer f.Close()
		src = f
	}

	res, err := h.Importer.ImportCSV(r.Context(), src)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{
			"error":   "Import stopped",
			"details": err.Error(),
			"result":  res,
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Export streams a backup CSV. The file is built in memory first so a
// failure still gets a JSON error.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, permission.ExportData) {
		return
	}
	kind := chi.URLParam(r, "kind")

	var buf bytes.Buffer
	var err error
	switch kind {
	case "members":
		_, err = h.Exporter.ExportMembers(r.Context(), &buf)
	case "logs":
		_, err = h.Exporter.ExportLogs(r.Context(), &buf)
	default:
		writeError(w, http.StatusNotFound, "Unknown export", fmt.Errorf("%q is not members or logs", kind))
		return
	}
	if err != nil {
		h.fail(w, "Failed to export", err)
		return
	}

	filename := fmt.Sprintf("%s_backup_%s.csv", kind, generic.Today(h.Clock))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *Handler) ClearLegacy(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, permission.ImportData) {
		return
	}
	n, err := h.Importer.ClearLegacy(r.Context())
	if err != nil {
		h.fail(w, "Failed to clear legacy data", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// =============================================================================
// SHEET ENDPOINTS
// =============================================================================

func (h *Handler) ListSheets(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, permission.ManageSheets) {
		return
	}
	list, err := h.Sheets.List(r.Context())
	if err != nil {
		h.fail(w, "Failed to list sheets", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// StartSheet uploads the sheet image and creates the record.
func (h *Handler) StartSheet(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, permission.BulkEntry) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Expected a multipart form", err)
		return
	}

	date, ok := generic.ParseDate(r.FormValue("date"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid date", nil)
		return
	}
	f, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing image", err)
		return
	}
	defer f.Close()

	sheet, err := h.Sheets.Start(r.Context(), sheets.StartRequest{
		Date:        date,
		Event:       r.FormValue("event"),
		Image:       f,
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		h.fail(w, "Failed to start sheet", err)
		return
	}
	writeJSON(w, http.StatusCreated, sheet)
}

func (h *Handler) GetSheet(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, permission.BulkEntry) {
		return
	}
	sheet, ok := h.sheetParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

func (h *Handler) SubmitSheetEntries(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, permission.BulkEntry) {
		return
	}
	var req SubmitEntriesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sheet, ok := h.sheetParam(w, r)
	if !ok {
		return
	}
	res, err := h.Sheets.Submit(r.Context(), sheet.ID, req.Entries)
	if err != nil {
		h.fail(w, "Failed to submit entries", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) DeleteSheet(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, permission.ManageSheets) {
		return
	}
	res, err := h.Sheets.DeleteByCode(r.Context(), codeParam(r))
	if err != nil {
		h.fail(w, "Failed to delete sheet", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// BlobOpener is a blob store that can hand back stored bytes. The in-memory
// store implements it; S3 serves its own URLs.
type BlobOpener interface {
	Open(path string) (io.Reader, bool)
}

// ServeBlob streams a sheet image from an in-memory blob store.
func (h *Handler) ServeBlob(w http.ResponseWriter, r *http.Request) {
	blobs, ok := h.Sheets.Blobs.(BlobOpener)
	if !ok {
		writeError(w, http.StatusNotFound, "Blob not found", nil)
		return
	}
	path := chi.URLParam(r, "*")
	if s, err := url.PathUnescape(path); err == nil {
		path = s
	}
	body, ok := blobs.Open(path)
	if !ok {
		writeError(w, http.StatusNotFound, "Blob not found", nil)
		return
	}
	io.Copy(w, body)
}

// sheetParam resolves {code} as a sheet code, falling back to a document ID.
func (h *Handler) sheetParam(w http.ResponseWriter, r *http.Request) (*sheets.Sheet, bool) {
	ctx := r.Context()
	raw := codeParam(r)
	sheet, err := h.Sheets.FindByCode(ctx, raw)
	if err == nil && sheet == nil {
		sheet, err = h.Sheets.Get(ctx, raw)
	}
	if err != nil {
		h.fail(w, "Failed to load sheet", err)
		return nil, false
	}
	if sheet == nil {
		writeError(w, http.StatusNotFound, "Sheet not found", nil)
		return nil, false
	}
	return sheet, true
}

// codeParam unescapes {code}; clients send "#1234" as %231234 or just 1234.
func codeParam(r *http.Request) string {
	raw := chi.URLParam(r, "code")
	if s, err := url.PathUnescape(raw); err == nil {
		return s
	}
	return raw
}

// =============================================================================
// HELPERS
// =============================================================================

func ownerParam(r *http.Request, name string) worklog.Owner {
	return worklog.ParseOwner(chi.URLParam(r, name))
}

// canAccess lets members reach their own active records and everyone else
// through action.
func canAccess(w http.ResponseWriter, r *http.Request, owner worklog.Owner, action permission.Action) bool {
	p := principalFrom(r.Context())
	if p != nil && !owner.Legacy && owner.MemberID == p.Identity.UID {
		return true
	}
	return allow(w, r, action)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, generic.ErrInvalidCredentials), errors.Is(err, generic.ErrInvalidToken):
		return http.StatusUnauthorized
	case generic.IsAlreadyExists(err):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Missing-index failures carry
// operator guidance naming the index to declare.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	var missing *generic.MissingIndexError
	if errors.As(err, &missing) {
		guidance := fmt.Sprintf("add %s.%s to database.group_indexes and restart the server",
			missing.Group, strings.Join(missing.Fields, ","))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:    message,
			Details:  err.Error(),
			Guidance: guidance,
		})
		return
	}
	writeError(w, statusFor(err), message, err)
}
