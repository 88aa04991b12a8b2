package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rdr(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func stubTerminal(t *testing.T, answers ...string) {
	t.Helper()
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	readPassword = func(int) ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("no more input")
		}
		next := answers[0]
		answers = answers[1:]
		return []byte(next), nil
	}
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("  hello world \n"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
	assert.Equal(t, "Name?\n> ", out.String())
}

func TestGetSimpleText_EOF(t *testing.T) {
	var out bytes.Buffer

	got, err := GetSimpleText(rdr("lastline"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)

	_, err = GetSimpleText(rdr(""), "Name?", &out)
	assert.Error(t, err)
}

func TestGetRequiredText(t *testing.T) {
	var out bytes.Buffer

	got, err := GetRequiredText(rdr("\n  \nalice\n"), "Enter nickname", &out)
	require.NoError(t, err)
	assert.Equal(t, "alice", got)
	assert.Equal(t, 3, strings.Count(out.String(), "Enter nickname"))

	_, err = GetRequiredText(rdr("\n\n\n\n"), "Enter nickname", &out)
	assert.ErrorContains(t, err, "enter nickname: no value given")
}

func TestGetPassword(t *testing.T) {
	stubTerminal(t, "secret")

	var out bytes.Buffer
	pw, err := GetPassword(&out, "Enter password")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(pw))
	assert.Equal(t, "Enter password: \n", out.String())

	_, err = GetPassword(&out, "Enter password")
	assert.Error(t, err)
}

func TestGetNewPassword(t *testing.T) {
	var out bytes.Buffer

	stubTerminal(t, "s3cret", "s3cret")
	pw, err := GetNewPassword(&out)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", string(pw))

	stubTerminal(t, "s3cret", "other")
	_, err = GetNewPassword(&out)
	assert.ErrorIs(t, err, errPasswordMismatch)

	stubTerminal(t, "s3cret")
	_, err = GetNewPassword(&out)
	assert.Error(t, err)
}

func TestWipe(t *testing.T) {
	b := []byte("secret")
	wipe(b)
	assert.Equal(t, make([]byte, 6), b)
}
