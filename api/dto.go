/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP surface. Domain types already carry JSON tags
  for storage; DTOs add what a client needs on top (document IDs, owner
  identifiers, display names) and keep request bodies separate.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in the domain packages, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/warp/clubportal/members"
	"github.com/warp/clubportal/rewards"
	"github.com/warp/clubportal/sheets"
	"github.com/warp/clubportal/worklog"
)

// =============================================================================
// AUTH
// =============================================================================

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ResetRequest struct {
	Email string `json:"email"`
}

type ResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// =============================================================================
// MEMBERS
// =============================================================================

// MemberDTO is a profile with its document identity. ID is the owner
// identifier used by log routes: the UID, or LEGACY_<id> for legacy records.
type MemberDTO struct {
	ID          string             `json:"id"`
	Provenance  members.Provenance `json:"provenance"`
	DisplayName string             `json:"displayName"`
	members.Member
}

func toMemberDTO(m members.Member) MemberDTO {
	return MemberDTO{
		ID:          m.Owner().String(),
		Provenance:  m.Provenance,
		DisplayName: m.DisplayName(),
		Member:      m,
	}
}

func toMemberDTOs(ms []members.Member) []MemberDTO {
	out := make([]MemberDTO, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMemberDTO(m))
	}
	return out
}

// ProfileResponse is the caller's own profile with this year's rewards.
type ProfileResponse struct {
	Member  MemberDTO       `json:"member"`
	Rewards rewards.Summary `json:"rewards"`
}

// =============================================================================
// LOGS
// =============================================================================

type LogDTO struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	worklog.LogEntry
}

func toLogDTO(owner worklog.Owner, e worklog.LogEntry) LogDTO {
	return LogDTO{ID: e.ID, Owner: owner.String(), LogEntry: e}
}

func toLogDTOs(owner worklog.Owner, es []worklog.LogEntry) []LogDTO {
	out := make([]LogDTO, 0, len(es))
	for _, e := range es {
		out = append(out, toLogDTO(owner, e))
	}
	return out
}

// SubmitLogRequest creates or edits a log. Owner defaults to the caller;
// naming another owner requires edit_any_log.
type SubmitLogRequest struct {
	Owner string `json:"owner,omitempty"`
	worklog.Draft
}

type SubmitLogResponse struct {
	Log      LogDTO           `json:"log"`
	Decision worklog.Decision `json:"decision"`
}

// PendingLogDTO is a review-queue row.
type PendingLogDTO struct {
	LogDTO
	MemberName string `json:"memberName"`
}

type CountResponse struct {
	Count int `json:"count"`
}

// =============================================================================
// SHEETS
// =============================================================================

type SubmitEntriesRequest struct {
	Entries []sheets.Entry `json:"entries"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error    string `json:"error"`
	Details  any    `json:"details,omitempty"`
	Guidance string `json:"guidance,omitempty"`
}
