package metadata

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListRoundTrip(t *testing.T) {
	encoded, err := encodeList([]string{"_42_e1_t1", "_42_e1_t2"})
	require.NoError(t, err)
	assert.Equal(t, `["_42_e1_t1","_42_e1_t2"]`, encoded)

	decoded, err := decodeList(encoded)
	require.NoError(t, err)
	assert.Equal(t, []string{"_42_e1_t1", "_42_e1_t2"}, decoded)

	encoded, err = encodeList(nil)
	require.NoError(t, err)
	assert.Equal(t, `[]`, encoded)
}

func TestAppendID(t *testing.T) {
	list, err := appendID(nil, "_42_e1_t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"_42_e1_t1"}, list)

	_, err = appendID(list, "_42_e1_t1")
	assert.True(t, errors.Is(err, errors.AlreadyExists))
}

func TestRemoveID(t *testing.T) {
	list, err := removeID([]string{"a", "b", "c"}, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, list)

	_, err = removeID([]string{"a"}, "missing")
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestSwapID(t *testing.T) {
	list, err := swapID([]string{"a", "b", "c"}, "b", "d")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d", "c"}, list, "swap must preserve position")

	_, err = swapID([]string{"a"}, "missing", "d")
	assert.True(t, errors.Is(err, errors.NotFound))

	_, err = swapID([]string{"a", "b"}, "a", "b")
	assert.True(t, errors.Is(err, errors.AlreadyExists))
}
