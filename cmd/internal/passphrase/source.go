// Package passphrase resolves keystore passphrases for the command line tools.
package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source resolves a passphrase from, in order, an environment variable, a
// file, or a terminal prompt. The first result is cached.
type Source struct {
	envVar  string
	file    string
	confirm bool
	prompt  func(label string) (string, error)

	once  sync.Once
	value string
	err   error
}

// Option configures a Source.
type Option func(*Source)

// WithFile reads the passphrase from path when the environment variable is unset.
func WithFile(path string) Option {
	return func(s *Source) { s.file = strings.TrimSpace(path) }
}

// WithConfirm asks for the prompted passphrase twice. Use it when creating keystores.
func WithConfirm() Option {
	return func(s *Source) { s.confirm = true }
}

// NewSource checks envVar before any other source.
func NewSource(envVar string, opts ...Option) *Source {
	s := &Source{envVar: strings.TrimSpace(envVar), prompt: terminalPrompt}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the passphrase. An environment value is used verbatim, a file
// value has its trailing newline stripped. Blank passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() { s.value, s.err = s.resolve() })
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	if s.file != "" {
		raw, err := os.ReadFile(s.file)
		if err != nil {
			return "", fmt.Errorf("read passphrase file: %w", err)
		}
		value := strings.TrimRight(string(raw), "\r\n")
		if strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("passphrase file %s is empty", s.file)
		}
		return value, nil
	}

	value, err := s.prompt("Keystore passphrase: ")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(value) == "" {
		return "", errors.New("keystore passphrase cannot be empty")
	}
	if s.confirm {
		again, err := s.prompt("Repeat passphrase: ")
		if err != nil {
			return "", err
		}
		if again != value {
			return "", errors.New("passphrases do not match")
		}
	}
	return value, nil
}

func terminalPrompt(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("keystore passphrase required; set the passphrase environment variable or run interactively")
	}
	fmt.Fprint(os.Stderr, label)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(raw), nil
}
