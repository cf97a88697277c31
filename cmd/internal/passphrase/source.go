// Package passphrase resolves key file passphrases for the msb binaries.
package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// DefaultEnv is the environment variable consulted before prompting.
const DefaultEnv = "MSB_KEY_PASSPHRASE"

// Source lazily resolves a key file passphrase from an environment variable
// or by prompting on the terminal. The first result is cached.
type Source struct {
	envVar string
	prompt string

	lookupEnv    func(string) (string, bool)
	isTerminal   func(int) bool
	readPassword func(int) ([]byte, error)
	stderr       io.Writer
	fd           int

	once  sync.Once
	value string
	err   error
}

// NewSource constructs a source that checks envVar before prompting with
// prompt on stderr.
func NewSource(envVar, prompt string) *Source {
	return &Source{
		envVar:       strings.TrimSpace(envVar),
		prompt:       prompt,
		lookupEnv:    os.LookupEnv,
		isTerminal:   term.IsTerminal,
		readPassword: term.ReadPassword,
		stderr:       os.Stderr,
		fd:           int(os.Stdin.Fd()),
	}
}

// Get returns the cached passphrase or resolves it on the first call.
// Whitespace-only passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := s.lookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}

	if !s.isTerminal(s.fd) {
		if s.envVar != "" {
			return "", fmt.Errorf("key file passphrase required; set %s or run interactively", s.envVar)
		}
		return "", errors.New("key file passphrase required and no terminal available")
	}

	fmt.Fprint(s.stderr, s.prompt)
	raw, err := s.readPassword(s.fd)
	fmt.Fprintln(s.stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	passphrase := string(raw)
	if strings.TrimSpace(passphrase) == "" {
		return "", errors.New("key file passphrase cannot be empty")
	}
	return passphrase, nil
}
