package members

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/permission"
	"github.com/warp/clubportal/worklog"
)

// =============================================================================
// REPOSITORY - Profile reads and updates
// =============================================================================

type Repository struct {
	Store generic.DocStore
}

func NewRepository(store generic.DocStore) *Repository {
	return &Repository{Store: store}
}

// Get returns a registered member, or (nil, nil) if there is none.
func (r *Repository) Get(ctx context.Context, uid string) (*Member, error) {
	return r.load(ctx, MemberRef(uid))
}

// GetLegacy returns a legacy record, or (nil, nil).
func (r *Repository) GetLegacy(ctx context.Context, id string) (*Member, error) {
	return r.load(ctx, LegacyRef(id))
}

// Find resolves a log owner to its member record.
func (r *Repository) Find(ctx context.Context, owner worklog.Owner) (*Member, error) {
	return r.load(ctx, profileRef(owner))
}

func profileRef(owner worklog.Owner) generic.DocRef {
	if owner.Legacy {
		return LegacyRef(owner.MemberID)
	}
	return MemberRef(owner.MemberID)
}

func (r *Repository) load(ctx context.Context, ref generic.DocRef) (*Member, error) {
	doc, err := r.Store.Get(ctx, ref)
	if err != nil || doc == nil {
		return nil, err
	}
	m, err := Decode(*doc)
	if err != nil {
		return nil, fmt.Errorf("decode member %s: %w", ref, err)
	}
	return &m, nil
}

// ListOptions filters the admin member list.
type ListOptions struct {
	// Search matches case-insensitively against names and email.
	Search string
	// ShowAll includes legacy rows with no last name, which are usually
	// spreadsheet noise.
	ShowAll bool
}

// List returns registered and legacy members sorted by last then first name.
func (r *Repository) List(ctx context.Context, opts ListOptions) ([]Member, error) {
	var out []Member
	for _, coll := range []string{MembersCollection, LegacyCollection} {
		docs, err := r.Store.Query(ctx, generic.Collection(coll))
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			m, err := Decode(d)
			if err != nil {
				return nil, fmt.Errorf("decode member %s: %w", d.Ref, err)
			}
			if m.Provenance == LegacyRecord && strings.TrimSpace(m.LastName) == "" && !opts.ShowAll {
				continue
			}
			if !matchesSearch(m, opts.Search) {
				continue
			}
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := strings.ToLower(out[i].LastName), strings.ToLower(out[j].LastName)
		if li != lj {
			return li < lj
		}
		return strings.ToLower(out[i].FirstName) < strings.ToLower(out[j].FirstName)
	})
	return out, nil
}

func matchesSearch(m Member, search string) bool {
	q := strings.ToLower(strings.TrimSpace(search))
	if q == "" {
		return true
	}
	for _, s := range []string{m.FirstName, m.LastName, m.FirstName2, m.LastName2, m.Email} {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

// DisplayNames maps active member IDs to display names. Unknown IDs are
// left out.
func (r *Repository) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if _, done := names[id]; done {
			continue
		}
		m, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if m != nil {
			names[id] = m.DisplayName()
		}
	}
	return names, nil
}

// =============================================================================
// PROFILE UPDATE
// =============================================================================

// ProfileUpdate carries the fields to change. Nil fields are untouched.
type ProfileUpdate struct {
	FirstName      *string          `json:"firstName,omitempty"`
	LastName       *string          `json:"lastName,omitempty"`
	FirstName2     *string          `json:"firstName2,omitempty"`
	LastName2      *string          `json:"lastName2,omitempty"`
	Email          *string          `json:"email,omitempty"`
	Phone          *string          `json:"phone,omitempty"`
	CellPhone      *string          `json:"cellPhone,omitempty"`
	Address        *string          `json:"address,omitempty"`
	City           *string          `json:"city,omitempty"`
	State          *string          `json:"state,omitempty"`
	Zip            *string          `json:"zip,omitempty"`
	Activities     map[string]bool  `json:"activities,omitempty"`
	MembershipType *string          `json:"membershipType,omitempty"`
	Role           *permission.Role `json:"role,omitempty"`
}

func (u ProfileUpdate) fields() generic.Fields {
	f := generic.Fields{}
	put := func(key string, v *string) {
		if v != nil {
			f[key] = strings.TrimSpace(*v)
		}
	}
	put("firstName", u.FirstName)
	put("lastName", u.LastName)
	put("firstName2", u.FirstName2)
	put("lastName2", u.LastName2)
	put("phone", u.Phone)
	put("cellPhone", u.CellPhone)
	put("address", u.Address)
	put("city", u.City)
	put("state", u.State)
	put("zip", u.Zip)
	if u.Email != nil {
		f["email"] = NormalizeEmail(*u.Email)
	}
	if len(u.Activities) > 0 {
		acts := map[string]any{}
		for k, v := range u.Activities {
			acts[ActivityKey(k)] = v
		}
		f["activities"] = acts
	}
	return f
}

// UpdateProfile applies u to the member owned by owner. Members may edit
// their own contact details; only admins may edit others, legacy records,
// roles or membership types.
func (r *Repository) UpdateProfile(ctx context.Context, owner worklog.Owner, u ProfileUpdate, actor *permission.User) (*Member, error) {
	if actor == nil {
		return nil, generic.ErrPermissionDenied
	}
	admin := actor.Role.IsAdmin()
	if !admin && (owner.Legacy || owner.MemberID != actor.ID) {
		return nil, generic.ErrPermissionDenied
	}
	if !admin && (u.Role != nil || u.MembershipType != nil) {
		return nil, fmt.Errorf("role and membership type are admin-only: %w", generic.ErrPermissionDenied)
	}

	current, err := r.Find(ctx, owner)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("member %s: %w", owner, generic.ErrNotFound)
	}

	f := u.fields()
	if u.Role != nil {
		f["role"] = string(permission.ParseRole(string(*u.Role)))
	}
	if u.MembershipType != nil {
		t, ok := ParseMembershipType(*u.MembershipType)
		if !ok {
			return nil, &generic.ValidationError{Field: "membershipType", Reason: fmt.Sprintf("unknown type %q", *u.MembershipType)}
		}
		f["membershipType"] = string(t)
	}
	if email, ok := f["email"].(string); ok && !owner.Legacy {
		if email == "" {
			return nil, &generic.ValidationError{Field: "email", Reason: "must not be empty"}
		}
		if err := r.ensureEmailFree(ctx, email, owner.MemberID); err != nil {
			return nil, err
		}
	}

	if err := r.Store.Commit(ctx, generic.NewBatch().Merge(profileRef(owner), f)); err != nil {
		return nil, err
	}
	return r.Find(ctx, owner)
}

// ensureEmailFree keeps emails unique among registered members.
func (r *Repository) ensureEmailFree(ctx context.Context, email, uid string) error {
	docs, err := r.Store.Query(ctx, generic.Collection(MembersCollection), generic.Where("email", email))
	if err != nil {
		return err
	}
	for _, d := range docs {
		if d.Ref.ID != uid {
			return fmt.Errorf("email %s: %w", email, generic.ErrAlreadyExists)
		}
	}
	return nil
}
