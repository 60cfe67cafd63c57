package ids

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventID(t *testing.T) {
	id := NewEventID()
	require.NoError(t, ValidateULID(id))
	assert.True(t, IsULID(strings.ToLower(id)))
}

func TestNewEventID_MonotonicWithinMillisecond(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	minted := make([]string, 50)
	for i := range minted {
		minted[i] = newULID(at)
	}
	assert.True(t, sort.StringsAreSorted(minted))
	assert.NotEqual(t, minted[0], minted[1])
}

func TestIsULID(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"01HZZZZZZZZZZZZZZZZZZZZZZZ", true},
		{" 01HZZZZZZZZZZZZZZZZZZZZZZZ ", true},
		{"01HZZZZZZZZZZZZZZZZZZZZZZ", false},
		{"01HZZZZZZZZZZZZZZZZZZZZZZI", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsULID(tt.value), tt.value)
	}
	assert.ErrorIs(t, ValidateULID("nope"), ErrInvalidULID)
}

func TestValidateUserID(t *testing.T) {
	assert.NoError(t, ValidateUserID(NewUserID()))
	assert.NoError(t, ValidateUserID("3F2504E0-4F89-11D3-9A0C-0305E82C3301"))

	for _, bad := range []string{"", "user-1", "3f2504e04f8911d39a0c0305e82c3301", "{3f2504e0-4f89-11d3-9a0c-0305e82c3301}"} {
		assert.ErrorIs(t, ValidateUserID(bad), ErrInvalidUserID, bad)
	}
}
