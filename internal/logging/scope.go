package logging

import (
	"log/slog"
	"slices"
	"strings"
)

// moduleKey is the attribute GetLogger attaches to every record.
const moduleKey = "module"

// scopedAttr is an attribute bound through WithAttrs, remembering the groups
// that were open at that moment.
type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

// scope is the level, bound attributes and open groups shared by the sink
// handlers in this package. It is a value type: every With call copies.
type scope struct {
	level  slog.Leveler
	attrs  []scopedAttr
	groups []string
}

func (s scope) enabled(level slog.Level) bool {
	return level >= s.level.Level()
}

func (s scope) withAttrs(attrs []slog.Attr) scope {
	if len(attrs) == 0 {
		return s
	}
	bound := slices.Clone(s.attrs)
	for _, a := range attrs {
		bound = append(bound, scopedAttr{groups: s.groups, attr: a})
	}
	s.attrs = bound
	return s
}

func (s scope) withGroup(name string) scope {
	if name == "" {
		return s
	}
	s.groups = append(slices.Clone(s.groups), name)
	return s
}

// leaves calls fn for every non-group attribute of r, bound attributes first,
// with its key prefixed by the group path joined by sep.
func (s scope) leaves(r slog.Record, sep string, fn func(key string, v slog.Value)) {
	for _, sa := range s.attrs {
		visitLeaves(sa.attr, sa.groups, sep, fn)
	}
	r.Attrs(func(a slog.Attr) bool {
		visitLeaves(a, s.groups, sep, fn)
		return true
	})
}

func visitLeaves(a slog.Attr, groups []string, sep string, fn func(key string, v slog.Value)) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := groups
		if a.Key != "" {
			inner = append(slices.Clone(groups), a.Key)
		}
		for _, ga := range a.Value.Group() {
			visitLeaves(ga, inner, sep, fn)
		}
		return
	}

	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, sep) + sep + key
	}
	fn(key, a.Value)
}

// levelName is the lowercase level used by the buffer and the API.
func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
