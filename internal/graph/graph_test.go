package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/conductor/internal/config"
)

func model(components []*config.Component, groups [][]string) *config.Model {
	return &config.Model{
		Components:     components,
		ParallelGroups: groups,
		Runtime:        config.RuntimeSettings{MaxConcurrentComponents: 3},
	}
}

func comp(id string, deps ...string) *config.Component {
	return &config.Component{ID: id, Enabled: true, DependsOn: deps}
}

func TestBuildTopologicalOrder(t *testing.T) {
	// fetch -> clean -> publish, with report depending on clean too.
	g, err := Build(model([]*config.Component{
		comp("fetch"),
		comp("clean", "fetch"),
		comp("publish", "clean"),
		comp("report", "clean"),
	}, nil))
	require.NoError(t, err)

	order := g.Order()
	require.Len(t, order, 4)
	assert.Less(t, g.Position("fetch"), g.Position("clean"))
	assert.Less(t, g.Position("clean"), g.Position("publish"))
	assert.Less(t, g.Position("clean"), g.Position("report"))
}

func TestBuildBreaksTiesByDeclarationOrder(t *testing.T) {
	// Three independent components: order must match declaration exactly.
	g, err := Build(model([]*config.Component{
		comp("zeta"),
		comp("alpha"),
		comp("mike"),
	}, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mike"}, g.Order())
}

func TestBuildRejectsCycle(t *testing.T) {
	_, err := Build(model([]*config.Component{
		comp("a", "c"),
		comp("b", "a"),
		comp("c", "b"),
	}, nil))
	require.Error(t, err)
	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuildRejectsIndirectlyLinkedGroupMembers(t *testing.T) {
	// x -> mid -> y: x and y are connected through mid, so they cannot
	// share a parallel group.
	_, err := Build(model([]*config.Component{
		comp("x"),
		comp("mid", "x"),
		comp("y", "mid"),
	}, [][]string{{"x", "y"}}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connected through the graph")
}

func TestBuildAcceptsIndependentGroupMembers(t *testing.T) {
	g, err := Build(model([]*config.Component{
		comp("base"),
		comp("x", "base"),
		comp("y", "base"),
		comp("z", "x", "y"),
	}, [][]string{{"x", "y"}}))
	require.NoError(t, err)
	assert.Equal(t, 0, g.Group("x"))
	assert.Equal(t, 0, g.Group("y"))
	assert.Equal(t, -1, g.Group("base"))
}

func TestDependenciesAndDependents(t *testing.T) {
	g, err := Build(model([]*config.Component{
		comp("a"),
		comp("b", "a"),
		comp("c", "a"),
	}, nil))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a"}, g.Dependencies("b"))
	assert.ElementsMatch(t, []string{"b", "c"}, g.Dependents("a"))
	assert.Empty(t, g.Dependencies("a"))
	assert.Equal(t, 3, g.Len())
}
