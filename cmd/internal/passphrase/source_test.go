package passphrase

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeSource(env map[string]string, tty bool, typed string, readErr error) (*Source, *int) {
	reads := 0
	s := NewSource(DefaultEnv, "Enter key file passphrase: ")
	s.lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	s.isTerminal = func(int) bool { return tty }
	s.readPassword = func(int) ([]byte, error) {
		reads++
		return []byte(typed), readErr
	}
	s.stderr = &bytes.Buffer{}
	return s, &reads
}

func TestEnvironmentTakesPrecedence(t *testing.T) {
	s, reads := fakeSource(map[string]string{DefaultEnv: "from-env"}, true, "typed", nil)
	got, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, "from-env", got)
	require.Zero(t, *reads)
}

func TestEmptyEnvironmentRejected(t *testing.T) {
	s, _ := fakeSource(map[string]string{DefaultEnv: "  "}, true, "typed", nil)
	_, err := s.Get()
	require.ErrorContains(t, err, DefaultEnv)
}

func TestPromptsOnTerminalAndCaches(t *testing.T) {
	s, reads := fakeSource(nil, true, "typed", nil)
	for i := 0; i < 2; i++ {
		got, err := s.Get()
		require.NoError(t, err)
		require.Equal(t, "typed", got)
	}
	if *reads != 1 {
		t.Fatalf("terminal read %d times, want 1", *reads)
	}
	require.Contains(t, s.stderr.(*bytes.Buffer).String(), "passphrase")
}

func TestNoTerminalRequiresEnvironment(t *testing.T) {
	s, _ := fakeSource(nil, false, "", nil)
	_, err := s.Get()
	require.ErrorContains(t, err, DefaultEnv)
}

func TestPromptRejectsBlankAndReadErrors(t *testing.T) {
	s, _ := fakeSource(nil, true, "   ", nil)
	_, err := s.Get()
	require.Error(t, err)

	s, _ = fakeSource(nil, true, "", errors.New("eof"))
	_, err = s.Get()
	require.ErrorContains(t, err, "eof")
}
