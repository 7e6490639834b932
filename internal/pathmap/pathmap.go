// Package pathmap implements PathMapper: translating a real
// filesystem directory path into the sequence of archive path components
// under the three mutually-exclusive rewrite modes (strip, strip-prefix,
// graft) plus the identity fallback.
package pathmap

import "strings"

// Component is one element of an archive path. FSPath is empty for
// components that have no filesystem counterpart (the graft root and graft
// prefix components, or a strip root when no prefix matched); callers must
// treat that case as "use empty Metadata" rather than stat a nonexistent
// path.
type Component struct {
	Name      string
	FSPath    string
	Synthetic bool
}

// Graft is one --graft old=new rewrite rule.
type Graft struct {
	Old, New string
}

// Mapper computes archive path components for real filesystem directories.
// The zero Mapper is the identity mapping.
type Mapper struct {
	Strip       bool
	StripPrefix string
	Grafts      []Graft

	// root-collision bookkeeping
	haveFirstRoot bool
	firstRoot     string
	rootCollision bool
}

// Sources is consulted by Strip mode: each source argument that is a
// prefix of dir is stripped from it.
type Sources = []string

// Map returns the archive path components for the real directory dir.
// sources is only consulted in Strip mode.
func (m *Mapper) Map(dir string, sources Sources) []Component {
	var comps []Component
	var rootKey string
	switch {
	case m.Strip:
		comps, rootKey = stripped(dir, sources)
	case m.StripPrefix != "":
		comps, rootKey = stripped(dir, []string{m.StripPrefix})
	case len(m.Grafts) > 0:
		comps, rootKey = grafted(m.Grafts, dir)
	default:
		comps, rootKey = identity(dir)
	}
	m.noteRoot(rootKey)
	return comps
}

// RootCollision reports whether two real filesystem roots seen so far were
// mapped to the same archive root -- i.e. stripping/grafting merged what
// were originally distinct sources into one. The archive root component
// itself (Component.Name) is always the same synthetic "" sentinel
// regardless of which real root produced it, so collision has to be
// tracked against something that actually varies by source: the matched
// strip prefix, or the matched graft rule.
func (m *Mapper) RootCollision() bool {
	return m.rootCollision
}

func (m *Mapper) noteRoot(rootKey string) {
	if !m.haveFirstRoot {
		m.haveFirstRoot = true
		m.firstRoot = rootKey
		return
	}
	if m.firstRoot != rootKey {
		m.rootCollision = true
	}
}

// identity yields components verbatim, always rooted at a synthetic ""
// sentinel. Every call maps to the same notional root (there is no
// stripping/grafting rule that could ever merge two distinct real roots),
// so its rootKey is a constant.
func identity(dir string) ([]Component, string) {
	parts := split(dir)
	comps := make([]Component, 0, len(parts)+1)
	comps = append(comps, Component{Name: "", FSPath: "/", Synthetic: false})
	cur := ""
	for _, p := range parts {
		cur += "/" + p
		comps = append(comps, Component{Name: p, FSPath: cur})
	}
	return comps, ""
}

// stripped yields the tail components of dir after removing whichever of
// prefixes is the longest matching prefix. rootKey is the matched prefix
// itself: two dirs stripped against the same prefix share an archive root
// by construction, while two different matched prefixes constitute a
// root collision.
func stripped(dir string, prefixes []string) ([]Component, string) {
	best := ""
	for _, p := range prefixes {
		p = strings.TrimRight(p, "/")
		if p == dir || strings.HasPrefix(dir, p+"/") {
			if len(p) > len(best) {
				best = p
			}
		}
	}
	tail := strings.TrimPrefix(dir, best)
	tail = strings.TrimPrefix(tail, "/")

	comps := []Component{{Name: "", FSPath: best}}
	if tail == "" {
		return comps, best
	}
	cur := best
	for _, p := range strings.Split(tail, "/") {
		cur += "/" + p
		comps = append(comps, Component{Name: p, FSPath: cur})
	}
	return comps, best
}

// grafted yields new_prefix's components (all synthetic) followed by the
// real tail of dir, for the first graft rule whose old prefix matches.
// rootKey is the matched rule's old prefix, so two different --graft
// rules that both rewrite to the same new_prefix (e.g. two sources both
// grafted to "/") are flagged as a root collision.
func grafted(grafts []Graft, dir string) ([]Component, string) {
	for _, g := range grafts {
		old := strings.TrimRight(g.Old, "/")
		if dir != old && !strings.HasPrefix(dir, old+"/") {
			continue
		}
		tail := strings.TrimPrefix(strings.TrimPrefix(dir, old), "/")

		comps := []Component{{Name: "", FSPath: "", Synthetic: true}}
		newParts := split(g.New)
		for _, p := range newParts {
			comps = append(comps, Component{Name: p, FSPath: "", Synthetic: true})
		}
		if len(comps) == 1 {
			comps[0] = Component{Name: "", FSPath: "", Synthetic: true}
		}
		if tail != "" {
			cur := old
			for _, p := range strings.Split(tail, "/") {
				cur += "/" + p
				comps = append(comps, Component{Name: p, FSPath: cur})
			}
		}
		// The archive root sentinel must always be named "", regardless of
		// what --graft's new_prefix's first segment says; its own name
		// slot is comps[0].
		comps[0].Name = ""
		return comps, g.Old
	}
	// No rule matched: behave like identity for this directory.
	return identity(dir)
}

func split(dir string) []string {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return nil
	}
	return strings.Split(dir, "/")
}
