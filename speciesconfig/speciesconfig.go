// Package speciesconfig parses the small "name = path" config file that
// tells a host process which species indexes to load at startup.
package speciesconfig

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
)

// Parse reads name = path lines from r into a map keyed by name. Blank
// lines and lines whose first non-whitespace byte is '#' are ignored.
// A name that appears more than once is a Format error.
func Parse(r io.Reader) (map[string]string, error) {
	entries := make(map[string]string)
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		name, path, err := parseLine(line)
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("line %d", lineNum))
		}
		if _, ok := entries[name]; ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("line %d: species %q is configured more than once", lineNum, name))
		}
		entries[name] = path
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, errors.Invalid, "reading species config")
	}
	return entries, nil
}

func parseLine(line string) (name, path string, err error) {
	eq := strings.IndexByte(line, '=')
	if eq < 0 {
		return "", "", errors.E(errors.Invalid, fmt.Sprintf("malformed line %q: expected \"name = path\"", line))
	}
	name = strings.TrimSpace(line[:eq])
	path = strings.TrimSpace(line[eq+1:])
	if name == "" || path == "" {
		return "", "", errors.E(errors.Invalid, fmt.Sprintf("malformed line %q: name and path must both be non-empty", line))
	}
	return name, path, nil
}
