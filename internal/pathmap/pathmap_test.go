package pathmap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-bup/bup/internal/pathmap"
)

func names(comps []pathmap.Component) []string {
	out := make([]string, len(comps))
	for i, c := range comps {
		out[i] = c.Name
	}
	return out
}

func TestIdentityMapping(t *testing.T) {
	m := &pathmap.Mapper{}
	comps := m.Map("/home/user/docs", nil)
	require.Equal(t, []string{"", "home", "user", "docs"}, names(comps))
	require.Equal(t, "/home/user/docs", comps[len(comps)-1].FSPath)
}

func TestStripRemovesSourcePrefix(t *testing.T) {
	m := &pathmap.Mapper{Strip: true}
	comps := m.Map("/home/user/docs", []string{"/home/user"})
	require.Equal(t, []string{"", "docs"}, names(comps))
}

func TestStripPathExplicitPrefix(t *testing.T) {
	m := &pathmap.Mapper{StripPrefix: "/home/user"}
	comps := m.Map("/home/user/docs/sub", nil)
	require.Equal(t, []string{"", "docs", "sub"}, names(comps))
}

func TestGraftRewritesPrefix(t *testing.T) {
	m := &pathmap.Mapper{Grafts: []pathmap.Graft{{Old: "/home/user", New: "/backup"}}}
	comps := m.Map("/home/user/docs", nil)
	require.Equal(t, []string{"", "backup", "docs"}, names(comps))
	// the synthetic "backup" component has no filesystem counterpart.
	require.Empty(t, comps[1].FSPath)
	require.Equal(t, "/home/user/docs", comps[2].FSPath)
}

func TestRootCollisionDetected(t *testing.T) {
	m := &pathmap.Mapper{Grafts: []pathmap.Graft{
		{Old: "/foo", New: "/"},
		{Old: "/bar", New: "/"},
	}}
	m.Map("/foo", nil)
	require.False(t, m.RootCollision())
	m.Map("/bar", nil)
	require.True(t, m.RootCollision())
}

func TestNoRootCollisionForSameSource(t *testing.T) {
	m := &pathmap.Mapper{}
	m.Map("/home/user", nil)
	m.Map("/home/user/docs", nil)
	require.False(t, m.RootCollision())
}
