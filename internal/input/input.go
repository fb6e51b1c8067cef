// Package input expands flag values that reference stdin or files
// (@file syntax), so JSON documents don't have to be shell-quoted inline.
package input

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// ExpandValue resolves a flag value: "-" reads the document from stdin,
// "@path" reads it from the named file, anything else is returned as-is.
func ExpandValue(value string) (string, error) {
	return expandValue(value, os.Stdin)
}

func expandValue(value string, stdin io.Reader) (string, error) {
	switch {
	case value == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	case strings.HasPrefix(value, "@"):
		path := strings.TrimPrefix(value, "@")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return value, nil
	}
}
