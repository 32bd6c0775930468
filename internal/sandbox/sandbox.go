// Package sandbox validates caller-supplied filesystem paths against the
// configured allowed root.
//
// Input files may be read from anywhere the process can already see; only
// output directories are confined to the allowed root, since writes are the
// risk surface. All security-relevant comparisons happen on canonical paths
// (symlinks resolved, dot segments removed), never on raw strings.
package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SupportedExtensions is the set of file extensions accepted for OCR input,
// compared case-insensitively.
var SupportedExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".gif":  true,
}

// Validation check identifiers carried by PathValidationError.
const (
	CheckAbsolute  = "absolute"
	CheckExists    = "exists"
	CheckResolve   = "resolve"
	CheckExtension = "extension"
	CheckDirectory = "directory"
	CheckWritable  = "writable"
	CheckContained = "contained"
)

// Policy confines output writes to a single directory tree.
// It is built once at startup and never mutated.
type Policy struct {
	// AllowedRoot is the canonical absolute path of the sandbox root.
	AllowedRoot string

	// AllowedRootDisplay is the root as originally configured. Containment
	// errors echo this string so they stay actionable without leaking the
	// resolved internal layout.
	AllowedRootDisplay string
}

// NewPolicy canonicalizes the configured root directory into a Policy.
func NewPolicy(configuredRoot string) (Policy, error) {
	if !filepath.IsAbs(configuredRoot) {
		return Policy{}, fmt.Errorf("allowed directory must be an absolute path: %s", configuredRoot)
	}
	resolved, err := filepath.EvalSymlinks(configuredRoot)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to resolve allowed directory %s: %w", configuredRoot, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to stat allowed directory %s: %w", configuredRoot, err)
	}
	if !info.IsDir() {
		return Policy{}, fmt.Errorf("allowed directory is not a directory: %s", configuredRoot)
	}
	return Policy{
		AllowedRoot:        resolved,
		AllowedRootDisplay: configuredRoot,
	}, nil
}

// PathValidationError reports a failed path validation check.
type PathValidationError struct {
	// Field names the validated parameter ("file_path" or "output_dir").
	Field string
	// Path is the offending path as supplied by the caller.
	Path string
	// Check identifies which validation step failed.
	Check string
	// Allowed is the display form of the sandbox root, set for containment
	// failures only.
	Allowed string
	// Err is the underlying cause, if any.
	Err error
}

func (e *PathValidationError) Error() string {
	switch e.Check {
	case CheckAbsolute:
		return fmt.Sprintf("%s must be an absolute path: %s", e.Field, e.Path)
	case CheckExists:
		return fmt.Sprintf("%s does not exist: %s", e.Field, e.Path)
	case CheckResolve:
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Path, e.Err)
	case CheckExtension:
		return fmt.Sprintf("unsupported file type: %s (supported types: %s)", e.Path, supportedList())
	case CheckDirectory:
		return fmt.Sprintf("%s is not a directory: %s", e.Field, e.Path)
	case CheckWritable:
		if e.Err != nil && !errors.Is(e.Err, fs.ErrPermission) {
			return fmt.Sprintf("failed to check writability of %s: %v", e.Path, e.Err)
		}
		return fmt.Sprintf("%s is not writable: %s", e.Field, e.Path)
	case CheckContained:
		return fmt.Sprintf("%s must be within the allowed directory: %s", e.Field, e.Allowed)
	default:
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Path)
	}
}

func (e *PathValidationError) Unwrap() error { return e.Err }

func supportedList() string {
	exts := make([]string, 0, len(SupportedExtensions))
	for ext := range SupportedExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ", ")
}

// ValidateFilePath validates and canonicalizes an OCR input file path.
//
// Checks run in order and short-circuit: absolute, exists (strict symlink
// resolution), supported extension. Input files are deliberately not checked
// against the sandbox root.
func ValidateFilePath(raw string) (string, error) {
	const field = "file_path"

	if !filepath.IsAbs(raw) {
		return "", &PathValidationError{Field: field, Path: raw, Check: CheckAbsolute}
	}

	resolved, err := filepath.EvalSymlinks(raw)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &PathValidationError{Field: field, Path: raw, Check: CheckExists, Err: err}
		}
		// Symlink loops and other resolution faults land here.
		return "", &PathValidationError{Field: field, Path: raw, Check: CheckResolve, Err: err}
	}

	if !SupportedExtensions[strings.ToLower(filepath.Ext(resolved))] {
		return "", &PathValidationError{Field: field, Path: raw, Check: CheckExtension}
	}

	return resolved, nil
}

// ValidateOutputDir validates and canonicalizes an output directory against
// the sandbox policy.
//
// Checks run in order and short-circuit: absolute, exists, is a directory,
// writable, contained in the allowed root. Later checks assume earlier ones
// hold (the writability probe requires an existing directory).
func ValidateOutputDir(raw string, policy Policy) (string, error) {
	const field = "output_dir"

	if !filepath.IsAbs(raw) {
		return "", &PathValidationError{Field: field, Path: raw, Check: CheckAbsolute}
	}

	resolved, err := filepath.EvalSymlinks(raw)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &PathValidationError{Field: field, Path: raw, Check: CheckExists, Err: err}
		}
		return "", &PathValidationError{Field: field, Path: raw, Check: CheckResolve, Err: err}
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", &PathValidationError{Field: field, Path: raw, Check: CheckResolve, Err: err}
	}
	if !info.IsDir() {
		return "", &PathValidationError{Field: field, Path: raw, Check: CheckDirectory}
	}

	if err := probeWritable(resolved); err != nil {
		return "", &PathValidationError{Field: field, Path: raw, Check: CheckWritable, Err: err}
	}

	if !contained(resolved, policy.AllowedRoot) {
		return "", &PathValidationError{
			Field:   field,
			Path:    raw,
			Check:   CheckContained,
			Allowed: policy.AllowedRootDisplay,
		}
	}

	return resolved, nil
}

// probeWritable creates and removes a process-unique temp file in dir.
// The PID in the name avoids collisions between concurrent processes sharing
// the directory. Best effort only: the directory can still become unwritable
// between the probe and the actual write.
func probeWritable(dir string) error {
	probe := filepath.Join(dir, fmt.Sprintf(".write_test_%d", os.Getpid()))
	f, err := os.Create(probe)
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(probe)
}

// contained reports whether path equals root or is a descendant of it.
// Both arguments must already be canonical; the comparison is a relative-path
// test, never a substring match.
func contained(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
