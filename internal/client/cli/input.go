package cli

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var errPasswordMismatch = errors.New("passwords do not match")

// GetSimpleText shows prompt on w and returns the next line from reader
// without surrounding whitespace. A final line without a newline counts.
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	fmt.Fprintf(w, "%s\n> ", prompt)

	line, err := reader.ReadString('\n')
	if errors.Is(err, io.EOF) && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetRequiredText is GetSimpleText that re-asks, up to three times, while
// the answer is blank.
func GetRequiredText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	for range 3 {
		s, err := GetSimpleText(reader, prompt, w)
		if err != nil || s != "" {
			return s, err
		}
	}
	return "", fmt.Errorf("%s: no value given", strings.ToLower(prompt))
}

// GetPassword reads a password from the terminal without echo. The caller
// owns the returned slice and should wipe it.
func GetPassword(w io.Writer, prompt string) ([]byte, error) {
	fmt.Fprintf(w, "%s: ", prompt)
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	return pw, err
}

// GetNewPassword asks twice and fails when the answers differ.
func GetNewPassword(w io.Writer) ([]byte, error) {
	first, err := GetPassword(w, "Choose password")
	if err != nil {
		return nil, err
	}
	second, err := GetPassword(w, "Repeat password")
	defer wipe(second)
	if err != nil {
		wipe(first)
		return nil, err
	}
	if subtle.ConstantTimeCompare(first, second) != 1 {
		wipe(first)
		return nil, errPasswordMismatch
	}
	return first, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
