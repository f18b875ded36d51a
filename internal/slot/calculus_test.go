package slot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var zeroWord = strings.Repeat("0", 64)

func TestChildSlot(t *testing.T) {
	tests := []struct {
		name     string
		parent   string
		relative string
		want     string
	}{
		{
			name:     "zero plus zero",
			parent:   zeroWord,
			relative: "0",
			want:     zeroWord,
		},
		{
			name:     "zero plus five",
			parent:   zeroWord,
			relative: "5",
			want:     Pad32(5),
		},
		{
			name:     "offset from nonzero base",
			parent:   Pad32(10),
			relative: "7",
			want:     Pad32(17),
		},
		{
			name:     "wraps modulo 2^256",
			parent:   strings.Repeat("f", 64),
			relative: "1",
			want:     zeroWord,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChildSlot(tt.parent, tt.relative)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChildSlotRejectsBadInput(t *testing.T) {
	_, err := ChildSlot("1234", "0")
	assert.Error(t, err, "short parent")

	_, err = ChildSlot(strings.Repeat("g", 64), "0")
	assert.Error(t, err, "non-hex parent")

	_, err = ChildSlot(strings.ToUpper(strings.Repeat("a", 32))+strings.Repeat("a", 32), "0")
	assert.Error(t, err, "uppercase hex")

	_, err = ChildSlot(zeroWord, "not-a-number")
	assert.Error(t, err, "bad relative slot")
}

func TestElementSlot(t *testing.T) {
	// keccak256 of 32 zero bytes: the canonical data slot of a dynamic
	// collection rooted at slot 0.
	got, err := ElementSlot(zeroWord, "")
	require.NoError(t, err)
	assert.Equal(t, "290decd9548b62a8d60345a988386fc84ba6bc95484008f6362f93160ef3e563", got)
}

func TestElementSlotKeyOrdering(t *testing.T) {
	base := Pad32(5)

	e0, err := ElementSlot(base, "0")
	require.NoError(t, err)
	e1, err := ElementSlot(base, "1")
	require.NoError(t, err)

	assert.Len(t, e0, WordLen)
	assert.NotEqual(t, e0, e1, "distinct keys map to distinct slots")

	// Deterministic across calls.
	again, err := ElementSlot(base, "0")
	require.NoError(t, err)
	assert.Equal(t, e0, again)

	// The key participates before the slot: moving a digit between key and
	// slot must change the digest.
	other, err := ElementSlot(Pad32(50), "")
	require.NoError(t, err)
	assert.NotEqual(t, e0, other)
}

func TestElementSlotRejectsBadParent(t *testing.T) {
	_, err := ElementSlot("xyz", "0")
	assert.Error(t, err)
}

func TestValidateWord(t *testing.T) {
	assert.NoError(t, ValidateWord(zeroWord))
	assert.Error(t, ValidateWord(zeroWord[:63]))
	assert.Error(t, ValidateWord(strings.Repeat("A", 64)))
	assert.Error(t, ValidateWord(strings.Repeat("z", 64)))
}

func TestPad32(t *testing.T) {
	assert.Equal(t, zeroWord, Pad32(0))
	assert.Equal(t, strings.Repeat("0", 62)+"ff", Pad32(255))
}
