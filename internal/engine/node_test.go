package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metacontract/indexer/internal/hint"
	"github.com/metacontract/indexer/internal/layout"
)

func testRoot(name, typeName string, kind layout.Kind) *Node {
	return NewRootNode(layout.Root{Name: name, Type: typeName, Slot: zeroWord}, kind)
}

func TestNodeIdentityDeterminism(t *testing.T) {
	a := testRoot("vault", "t_struct(Vault)storage", layout.KindStruct)
	b := testRoot("vault", "t_struct(Vault)storage", layout.KindStruct)
	c := testRoot("other", "t_struct(Vault)storage", layout.KindStruct)

	assert.Equal(t, a.ID, b.ID, "same derivation, same identity")
	assert.NotEqual(t, a.ID, c.ID)

	m := layout.Member{Label: "owner", Slot: "0", Type: "t_address"}
	m1 := NewMemberNode(a, m, layout.KindPrimitive, 1)
	m2 := NewMemberNode(b, m, layout.KindPrimitive, 1)
	assert.Equal(t, m1.ID, m2.ID)
	assert.NotEqual(t, a.ID, m1.ID)
}

func TestNodePaths(t *testing.T) {
	users := testRoot("users", "t_array(t_struct(User)storage)dyn_storage", layout.KindArray)
	elem := NewElementNode(users, "3", "t_struct(User)storage", layout.KindStruct, 1)
	name := NewMemberNode(elem, layout.Member{Label: "name", Slot: "0", Type: "t_string"}, layout.KindPrimitive, 2)

	assert.Equal(t, "users", users.InstancePath())
	assert.Equal(t, "users[3]", elem.InstancePath())
	assert.Equal(t, "users[3].name", name.InstancePath())

	// Element positions collapse in class paths.
	assert.Equal(t, []string{"users"}, elem.ClassPath())
	assert.Equal(t, []string{"users", "name"}, name.ClassPath())

	other := NewElementNode(users, "7", "t_struct(User)storage", layout.KindStruct, 1)
	assert.Equal(t, elem.ClassPath(), other.ClassPath())
	assert.NotEqual(t, elem.ID, other.ID)
}

func TestNodeConstraintID(t *testing.T) {
	users := testRoot("users", "t_array(t_uint256)dyn_storage", layout.KindArray)
	require.True(t, users.IsIterable())
	assert.Equal(t, hint.ConstraintID([]string{"users"}), users.ConstraintID())
}

func TestNodeMappingKeyOnElements(t *testing.T) {
	counts := testRoot("counts", "t_mapping(t_address,t_uint256)", layout.KindMapping)
	e := NewElementNode(counts, "0", "t_uint256", layout.KindPrimitive, 1)
	assert.Equal(t, "0", e.MappingKey)
	assert.Equal(t, counts.ID, e.Parent)
	assert.False(t, e.IsRoot)
}
