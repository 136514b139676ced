package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"cms-go/internal/cms"
)

// confirmed asks before a destructive action. --yes answers for the user;
// without a terminal and without --yes the answer is no, so the service
// reports that confirmation is required.
func confirmed(question string) cms.Confirmation {
	if assumeYes {
		return true
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}

	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// readPassphrase reads a passphrase without echo. CMS_PASSPHRASE is used
// when stdin is not a terminal. With repeat set the passphrase is asked
// for twice and must match.
func readPassphrase(prompt string, repeat bool) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if p := os.Getenv("CMS_PASSPHRASE"); p != "" {
			return p, nil
		}
		return "", fmt.Errorf("no terminal to read the passphrase from (set CMS_PASSPHRASE)")
	}

	fmt.Fprint(os.Stderr, prompt)
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if !repeat {
		return string(first), nil
	}

	fmt.Fprint(os.Stderr, "Repeat passphrase: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passphrases do not match")
	}
	return string(first), nil
}
