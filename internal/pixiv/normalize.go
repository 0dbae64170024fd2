package pixiv

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
)

// The API's response shapes are not contractually fixed: depending on the
// endpoint and client version, the same logical field may arrive nested
// differently or be absent. Everything in this file is pure and treats every
// field access as possibly-absent, on both map-shaped (decoded JSON) and
// struct-shaped inputs.

// fieldOf looks up key on a map[string]any or, via reflection, on a struct
// (matching the json tag first, then the field name ignoring case and
// underscores). The second return is false when the field is absent or nil.
func fieldOf(obj any, key string) (any, bool) {
	if obj == nil {
		return nil, false
	}

	if m, ok := obj.(map[string]any); ok {
		v, ok := m[key]
		if !ok || v == nil {
			return nil, false
		}
		return v, true
	}

	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}

	rt := rv.Type()
	folded := strings.ReplaceAll(strings.ToLower(key), "_", "")
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
		if tag == key || strings.ToLower(f.Name) == folded {
			v := rv.Field(i)
			if v.Kind() == reflect.Pointer && v.IsNil() {
				return nil, false
			}
			return v.Interface(), true
		}
	}
	return nil, false
}

// lookup is fieldOf without the presence flag; absent fields become nil.
func lookup(obj any, key string) any {
	v, _ := fieldOf(obj, key)
	return v
}

// intValue reports whether v carries an integer value. JSON numbers decode as
// float64, so whole floats count; fractional values and non-numbers do not.
func intValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
		return 0, false
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// firstInt returns the first candidate carrying an integer value, or nil.
// An explicit upstream 0 passes through; absence never turns into 0.
func firstInt(candidates ...any) *int64 {
	for _, c := range candidates {
		if n, ok := intValue(c); ok {
			return &n
		}
	}
	return nil
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func stringPtr(obj any, key string) *string {
	if s, ok := stringValue(lookup(obj, key)); ok {
		return &s
	}
	return nil
}

func intPtr(obj any, key string) *int64 {
	if n, ok := intValue(lookup(obj, key)); ok {
		return &n
	}
	return nil
}

// UserStats are an account's follower and following counts. Nil means the
// upstream response carried no usable value, which is distinct from 0.
type UserStats struct {
	Followers *int64
	Following *int64
}

// ExtractUserStats searches the prioritized candidate locations for follower
// and following counts and returns the first integer-typed hit for each.
func ExtractUserStats(resp any) UserStats {
	user := lookup(resp, "user")
	profile := lookup(resp, "profile")
	publicity := lookup(resp, "profile_publicity")

	return UserStats{
		Followers: firstInt(
			lookup(profile, "total_follow_users"),
			lookup(user, "total_follow_users"),
			lookup(profile, "followers"),
			lookup(user, "followers"),
			lookup(publicity, "total_follow_users"),
		),
		Following: firstInt(
			lookup(user, "total_following"),
			lookup(profile, "total_following"),
			lookup(user, "following"),
			lookup(profile, "following"),
			lookup(publicity, "total_following"),
		),
	}
}

// PostMeta is the stable metadata view of one upstream post object.
type PostMeta struct {
	IllustID   int64
	CreateDate string // raw upstream timestamp, normalized by the collector
	Tags       []string
	Type       *string
	PageCount  *int
	XRestrict  *int
	Title      *string
}

// Usable reports whether the post carries the two fields without which it
// cannot be stored. Callers skip unusable posts.
func (m PostMeta) Usable() bool {
	return m.IllustID != 0 && m.CreateDate != ""
}

// ExtractPostMeta pulls the stable field set from one upstream post object.
// Only tag names are kept; all other tag sub-fields are discarded.
func ExtractPostMeta(illust any) PostMeta {
	meta := PostMeta{}

	if id, ok := intValue(lookup(illust, "id")); ok {
		meta.IllustID = id
	}
	if s, ok := stringValue(lookup(illust, "create_date")); ok {
		meta.CreateDate = s
	}

	if rawTags, ok := lookup(illust, "tags").([]any); ok {
		for _, t := range rawTags {
			if name, ok := stringValue(lookup(t, "name")); ok && name != "" {
				meta.Tags = append(meta.Tags, name)
			}
		}
	}

	meta.Type = stringPtr(illust, "type")
	meta.Title = stringPtr(illust, "title")
	if n, ok := intValue(lookup(illust, "page_count")); ok {
		v := int(n)
		meta.PageCount = &v
	}
	if n, ok := intValue(lookup(illust, "x_restrict")); ok {
		v := int(n)
		meta.XRestrict = &v
	}

	return meta
}

// PostMetrics are one post's engagement counters. Absent fields stay nil.
type PostMetrics struct {
	Bookmarks *int64
	Likes     *int64
	Views     *int64
	Comments  *int64
}

// ExtractPostMetrics pulls the engagement counters from one post-detail
// response.
func ExtractPostMetrics(resp any) PostMetrics {
	illust := lookup(resp, "illust")
	return PostMetrics{
		Bookmarks: intPtr(illust, "total_bookmarks"),
		Likes:     intPtr(illust, "like_count"),
		Views:     intPtr(illust, "total_view"),
		Comments:  intPtr(illust, "total_comments"),
	}
}

// BookmarkRate derives bookmarks/views. It is undefined (nil) when either
// counter is absent or views is not positive; zero views never divides.
func (m PostMetrics) BookmarkRate() *float64 {
	if m.Bookmarks == nil || m.Views == nil || *m.Views <= 0 {
		return nil
	}
	r := float64(*m.Bookmarks) / float64(*m.Views)
	return &r
}
