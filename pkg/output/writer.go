// Package output persists generated markdown: to the server's output
// directory for later download, and to a folder chosen by the user.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// DefaultMaxSize caps a single saved document.
const DefaultMaxSize = 2 * 1024 * 1024

var (
	ErrInvalidPath  = errors.New("invalid path")
	ErrInvalidName  = errors.New("invalid filename")
	ErrTooLarge     = errors.New("file is too large")
	ErrNotDirectory = errors.New("not a directory")
	ErrNotFound     = errors.New("file not found")
)

// Writer stores documents in one flat directory.
type Writer struct {
	dir string
}

// NewWriter creates dir if needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		dir = "output"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the directory documents are written to.
func (w *Writer) Dir() string {
	return w.dir
}

// Save writes content under filename and returns the full path.
func (w *Writer) Save(filename, content string) (string, error) {
	path, err := w.Path(filename)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", filename, err)
	}
	return path, nil
}

// Path resolves filename inside the output directory. Names that carry a
// directory component are rejected.
func (w *Writer) Path(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.Contains(filename, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}
	return filepath.Join(w.dir, filename), nil
}

// Lookup returns the path of an existing document.
func (w *Writer) Lookup(filename string) (string, error) {
	path, err := w.Path(filename)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	return path, nil
}

// SaveRequest asks for content to be written into a user folder.
type SaveRequest struct {
	FolderPath string `json:"folderPath" binding:"required"`
	Filename   string `json:"filename" binding:"required"`
	Content    string `json:"content"`
	Overwrite  bool   `json:"overwrite"`
}

// SaveResult reports what FolderSaver.Save did. An existing file without
// Overwrite is not an error: NeedsConfirmation is set and nothing is written.
type SaveResult struct {
	Success           bool   `json:"success"`
	FilePath          string `json:"filePath"`
	Filename          string `json:"filename"`
	FileExists        bool   `json:"fileExists"`
	Message           string `json:"message"`
	NeedsConfirmation bool   `json:"needsConfirmation"`
}

// FolderSaver writes into folders under a home directory.
type FolderSaver struct {
	Home    string
	MaxSize int
}

var (
	invalidPathChars = regexp.MustCompile(`[<>"|?*]`)
	unsafeNameChars  = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// caseInsensitivePaths is set where the home directory check must ignore case.
var caseInsensitivePaths = runtime.GOOS == "windows"

// ValidateFolder normalizes a user supplied folder and checks that it is
// inside the home directory.
func (s FolderSaver) ValidateFolder(folder string) (string, error) {
	if strings.TrimSpace(folder) == "" {
		return "", fmt.Errorf("%w: path must be a non-empty string", ErrInvalidPath)
	}
	p := strings.ReplaceAll(folder, `\`, "/")
	p = strings.TrimRight(p, "/")
	if strings.Contains(p, "..") {
		return "", fmt.Errorf("%w: directory traversal not allowed", ErrInvalidPath)
	}
	p = filepath.Clean(filepath.FromSlash(p))

	home := filepath.Clean(s.Home)
	lp, lh := p, home
	if caseInsensitivePaths {
		lp, lh = strings.ToLower(p), strings.ToLower(home)
	}
	if lp != lh && !strings.HasPrefix(lp, lh+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: only paths within your home directory are allowed", ErrInvalidPath)
	}
	if invalidPathChars.MatchString(p) {
		return "", fmt.Errorf("%w: contains invalid characters", ErrInvalidPath)
	}
	return p, nil
}

// SafeFilename strips directories and replaces unsafe characters.
func SafeFilename(name string) (string, error) {
	safe := unsafeNameChars.ReplaceAllString(filepath.Base(filepath.FromSlash(strings.ReplaceAll(name, `\`, "/"))), "_")
	if !strings.HasSuffix(safe, ".md") {
		return "", fmt.Errorf("%w: filename must end with .md extension", ErrInvalidName)
	}
	return safe, nil
}

// Save writes req.Content into req.FolderPath.
func (s FolderSaver) Save(req SaveRequest) (*SaveResult, error) {
	dir, err := s.ValidateFolder(req.FolderPath)
	if err != nil {
		return nil, err
	}
	name, err := SafeFilename(req.Filename)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: directory does not exist", ErrInvalidPath)
	case err != nil:
		return nil, fmt.Errorf("%w: cannot access directory", ErrInvalidPath)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	maxSize := s.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if len(req.Content) > maxSize {
		return nil, fmt.Errorf("%w (max %d bytes)", ErrTooLarge, maxSize)
	}

	path := filepath.Join(dir, name)
	_, statErr := os.Stat(path)
	exists := statErr == nil

	if exists && !req.Overwrite {
		return &SaveResult{
			FilePath:          path,
			Filename:          name,
			FileExists:        true,
			Message:           "File already exists",
			NeedsConfirmation: true,
		}, nil
	}

	if err := os.WriteFile(path, []byte(req.Content), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}

	msg := "File saved successfully"
	if exists {
		msg = "File overwritten successfully"
	}
	return &SaveResult{
		Success:    true,
		FilePath:   path,
		Filename:   name,
		FileExists: exists,
		Message:    msg,
	}, nil
}
