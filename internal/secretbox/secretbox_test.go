package secretbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := New("correct horse battery staple")
	require.NoError(t, err)

	sealed, err := box.Seal("rtsp-password-123")
	require.NoError(t, err)
	assert.NotEqual(t, "rtsp-password-123", sealed)

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "rtsp-password-123", plain)
}

func TestSealIsRandomized(t *testing.T) {
	box, err := New("key")
	require.NoError(t, err)

	first, err := box.Seal("value")
	require.NoError(t, err)
	second, err := box.Seal("value")
	require.NoError(t, err)

	// Fresh nonce per seal, so ciphertexts differ but both open.
	assert.NotEqual(t, first, second)

	plain, err := box.Open(second)
	require.NoError(t, err)
	assert.Equal(t, "value", plain)
}

func TestOpenWithWrongKey(t *testing.T) {
	box1, err := New("key one")
	require.NoError(t, err)
	box2, err := New("key two")
	require.NoError(t, err)

	sealed, err := box1.Seal("value")
	require.NoError(t, err)

	_, err = box2.Open(sealed)
	assert.Error(t, err)
}

func TestOpenRejectsGarbage(t *testing.T) {
	box, err := New("key")
	require.NoError(t, err)

	_, err = box.Open("not base64 at all!!!")
	assert.Error(t, err)

	_, err = box.Open("c2hvcnQ=") // valid base64, shorter than a nonce
	assert.Error(t, err)
}

func TestEmptyPassphraseRejected(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
