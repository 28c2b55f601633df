package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"golang.org/x/term"
)

// secret returns the value of env when set, and otherwise prompts for it.
// On a terminal the input is not echoed.
func (a *app) secret(prompt, env string) (string, error) {
	if env != "" {
		if v := a.getenv(env); v != "" {
			return v, nil
		}
	}
	if fd, ok := a.terminal(); ok {
		fmt.Fprint(a.errOut, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(a.errOut)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return a.line(prompt)
}

// newSecret is secret for a value being chosen; interactive users type it
// twice.
func (a *app) newSecret(what, env string) (string, error) {
	if v := a.getenv(env); v != "" {
		return v, nil
	}
	first, err := a.secret("New "+what+": ", "")
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", fmt.Errorf("empty %s", what)
	}
	if _, ok := a.terminal(); !ok {
		return first, nil
	}
	again, err := a.secret("Repeat "+what+": ", "")
	if err != nil {
		return "", err
	}
	if again != first {
		return "", fmt.Errorf("%s entries do not match", what)
	}
	return first, nil
}

func (a *app) line(prompt string) (string, error) {
	fmt.Fprint(a.errOut, prompt)
	s, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		if errors.Is(err, io.EOF) {
			return "", errors.New("no input")
		}
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// confirm asks a yes/no question; yes skips it.
func (a *app) confirm(question string, yes bool) bool {
	if yes {
		return true
	}
	answer, err := a.line(question + " [y/N]: ")
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func (a *app) terminal() (int, bool) {
	f, ok := a.stdin.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*()-_=+[]{}"

// genPassword draws n characters uniformly from passwordAlphabet.
func genPassword(n int) (string, error) {
	if n < 8 || n > 256 {
		return "", fmt.Errorf("generated password length must be between 8 and 256, got %d", n)
	}
	limit := big.NewInt(int64(len(passwordAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = passwordAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
