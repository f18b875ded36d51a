package hint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	doc := []byte(`
hints:
  users:
    from: "0"
    to: "userCount"
  users[i].friends:
    from: "0"
    to: "head(users) * 2"
`)
	cs, err := ParseConfig(doc)
	require.NoError(t, err)
	require.Len(t, cs, 2)

	// Sorted by path.
	assert.Equal(t, "users", cs[0].Path)
	assert.Equal(t, []string{"users"}, cs[0].ClassPath)
	assert.Equal(t, ConstraintID([]string{"users"}), cs[0].ID)
	_, ok := cs[0].From.(*NumberExpr)
	assert.True(t, ok)
	_, ok = cs[0].To.(*PathExpr)
	assert.True(t, ok)

	assert.Equal(t, "users[i].friends", cs[1].Path)
	assert.Equal(t, []string{"users", "friends"}, cs[1].ClassPath)
	_, ok = cs[1].To.(*BinaryExpr)
	assert.True(t, ok)
}

func TestParseConfigBadExpression(t *testing.T) {
	doc := []byte(`
hints:
  users:
    from: "0"
    to: "a +"
`)
	_, err := ParseConfig(doc)
	require.Error(t, err)
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "users", cerr.Hint)
}

func TestParseConfigBadKey(t *testing.T) {
	doc := []byte(`
hints:
  "head(users)":
    from: "0"
    to: "1"
`)
	_, err := ParseConfig(doc)
	assert.Error(t, err)
}

func TestParseConfigCollision(t *testing.T) {
	// Element positions collapse, so these two keys share a class path and
	// collide.
	doc := []byte(`
hints:
  items[i].tags:
    from: "0"
    to: "1"
  items.tags:
    from: "0"
    to: "2"
`)
	_, err := ParseConfig(doc)
	require.Error(t, err)
	var cerr *ConfigError
	assert.True(t, errors.As(err, &cerr))
}

func TestParseConfigNotYAML(t *testing.T) {
	_, err := ParseConfig([]byte(`{{nope`))
	assert.Error(t, err)
}
