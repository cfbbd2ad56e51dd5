package generic_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clubportal/generic"
)

func TestParseHours(t *testing.T) {
	assert.True(t, generic.ParseHours("2.5").Equal(generic.NewHours(2.5)))
	assert.True(t, generic.ParseHours(" 3 ").Equal(generic.HoursFromInt(3)))
	assert.True(t, generic.ParseHours("").IsZero())
	assert.True(t, generic.ParseHours("abc").IsZero())
	assert.True(t, generic.ParseHours("-4").IsZero())
}

func TestHours_JSONTolerant(t *testing.T) {
	var v struct {
		Hours generic.Hours `json:"hours"`
	}

	for raw, want := range map[string]float64{
		`{"hours": 4.5}`:   4.5,
		`{"hours": "3"}`:   3,
		`{"hours": null}`:  0,
		`{"hours": "abc"}`: 0,
		`{"hours": true}`:  0,
	} {
		v.Hours = generic.Hours{}
		require.NoError(t, json.Unmarshal([]byte(raw), &v), raw)
		assert.Equal(t, want, v.Hours.Float64(), raw)
	}

	out, err := json.Marshal(struct {
		Hours generic.Hours `json:"hours"`
	}{generic.NewHours(2.5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"hours": 2.5}`, string(out))
}

func TestDate_JSON(t *testing.T) {
	var v struct {
		Date generic.Date `json:"date"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"date": "11/15/2025"}`), &v))
	assert.Equal(t, "2025-11-15", v.Date.String())

	require.NoError(t, json.Unmarshal([]byte(`{"date": "garbage"}`), &v))
	assert.True(t, v.Date.IsZero())

	require.NoError(t, json.Unmarshal([]byte(`{"date": 12}`), &v))
	assert.True(t, v.Date.IsZero())

	out, err := json.Marshal(struct {
		Date generic.Date `json:"date"`
	}{generic.NewDate(2026, 1, 2)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date": "2026-01-02"}`, string(out))
}

func TestDeepMerge(t *testing.T) {
	dst := generic.Fields{
		"name":       "Old",
		"activities": map[string]any{"agility": true, "rally": true},
	}
	src := generic.Fields{
		"activities": map[string]any{"rally": false},
		"city":       "Springfield",
	}

	got := generic.DeepMerge(dst, src)

	assert.Equal(t, "Old", got["name"])
	assert.Equal(t, "Springfield", got["city"])
	assert.Equal(t, map[string]any{"agility": true, "rally": false}, got["activities"])
}

func TestMatches(t *testing.T) {
	data := generic.Fields{"legacyKey": float64(2106), "email": "a@b.org", "nested": map[string]any{"x": "y"}, "flag": true}

	assert.True(t, generic.Matches(data, []generic.Filter{generic.Where("legacyKey", 2106)}))
	assert.True(t, generic.Matches(data, []generic.Filter{generic.Where("nested.x", "y"), generic.Where("flag", true)}))
	assert.False(t, generic.Matches(data, []generic.Filter{generic.Where("legacyKey", "2106")}))
	assert.False(t, generic.Matches(data, []generic.Filter{generic.Where("missing", "x")}))
	assert.True(t, generic.Matches(data, []generic.Filter{generic.Where("missing", nil)}))
}

func TestRefs(t *testing.T) {
	legacy := generic.Collection("legacy_members").Doc("a@b.org")
	logs := legacy.Sub("legacyLogs")

	assert.Equal(t, "legacy_members/a@b.org/legacyLogs", logs.Path)
	assert.Equal(t, "legacyLogs", logs.Name())

	parent, ok := logs.Parent()
	require.True(t, ok)
	assert.Equal(t, legacy, parent)

	_, ok = generic.Collection("members").Parent()
	assert.False(t, ok)
}

func TestBatch_Validate(t *testing.T) {
	b := generic.NewBatch()
	for i := 0; i <= generic.MaxBatchOps; i++ {
		b.Delete(generic.Collection("x").NewDoc())
	}
	assert.ErrorIs(t, b.Validate(), generic.ErrBatchTooLarge)

	bad := generic.NewBatch().Set(generic.Collection("x").Doc("1"), []int{1, 2})
	assert.Error(t, bad.Validate())
}
