// CLAUDE:SUMMARY Per-request scratch workspaces under a root directory, with traversal-safe names and bounded reads.
// Package scratch manages per-request working directories.
//
// Every comparison gets its own directory, root/<request id>/, so two
// requests that upload files with the same name never see each other's
// files. Names coming from callers are cleaned and confined to the
// workspace before they touch the filesystem.
package scratch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a caller-supplied name escapes its base.
var ErrPathTraversal = errors.New("scratch: path traversal detected")

// ErrTooLarge is returned by LimitedReadAll when the input exceeds its cap.
var ErrTooLarge = errors.New("scratch: input too large")

// Root is the parent directory of all request workspaces.
type Root struct {
	dir string
}

// Open ensures dir exists and returns a Root on it. An empty dir selects a
// "docdiff" directory under the system temp dir.
func Open(dir string) (*Root, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "docdiff")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("scratch: resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("scratch: create root: %w", err)
	}
	return &Root{dir: abs}, nil
}

// Dir returns the absolute root directory.
func (r *Root) Dir() string { return r.dir }

// Session creates (or reopens) the workspace of request id.
func (r *Root) Session(id string) (*Session, error) {
	if err := ValidateIdentifier(id); err != nil {
		return nil, err
	}
	dir, err := SafePath(r.dir, id)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("scratch: create session %s: %w", id, err)
	}
	return &Session{ID: id, Dir: dir}, nil
}

// Release deletes the workspace of request id and everything in it.
func (r *Root) Release(id string) error {
	if err := ValidateIdentifier(id); err != nil {
		return err
	}
	dir, err := SafePath(r.dir, id)
	if err != nil {
		return err
	}
	if dir == r.dir {
		return ErrPathTraversal
	}
	return os.RemoveAll(dir)
}

// Session is one request's workspace.
type Session struct {
	ID  string
	Dir string
}

// Path returns the confined path of name inside the workspace, creating
// intermediate directories.
func (s *Session) Path(name string) (string, error) {
	p, err := SafePath(s.Dir, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return "", err
	}
	return p, nil
}

// Save writes data to role/<clean name> inside the workspace and returns the
// path. The write goes through a temp file and a rename so readers never see
// a partial file.
func (s *Session) Save(role, name string, data []byte) (string, error) {
	if err := ValidateIdentifier(role); err != nil {
		return "", err
	}
	p, err := s.Path(filepath.Join(role, CleanName(name)))
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return p, nil
}

// SafePath validates that joining base and userInput does not escape base.
// Returns the cleaned absolute path or ErrPathTraversal.
func SafePath(base, userInput string) (string, error) {
	if strings.Contains(userInput, "..") {
		return "", ErrPathTraversal
	}
	cleaned := filepath.Join(base, filepath.Clean("/"+userInput))
	if !strings.HasPrefix(cleaned, filepath.Clean(base)+string(filepath.Separator)) &&
		cleaned != filepath.Clean(base) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// ValidateIdentifier rejects identifiers unsuitable as a single path
// segment. Allows alphanumeric, underscore, hyphen and (not leading) dot.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("scratch: identifier must not be empty")
	}
	if len(s) > 256 {
		return fmt.Errorf("scratch: identifier too long (max 256)")
	}
	if s[0] == '.' {
		return fmt.Errorf("scratch: identifier must not start with a dot")
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("scratch: invalid character %q in identifier", r)
		}
	}
	return nil
}

// CleanName reduces an uploaded filename to a safe base name.
func CleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		if isIdentChar(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", ".")
	}
	out = strings.TrimLeft(out, ".")
	if out == "" || out == "_" {
		return "document.pdf"
	}
	return out
}

// LimitedReadAll reads at most maxBytes from r. Returns ErrTooLarge if the
// limit is exceeded.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}
