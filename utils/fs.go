package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"imgurfetch/internal"
)

// FileOperations provides file system utilities
type FileOperations struct{}

// NewFileOperations creates a new FileOperations instance
func NewFileOperations() *FileOperations {
	return &FileOperations{}
}

// EnsureDir creates the parent directory of path if it doesn't exist
func (f *FileOperations) EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

// FileExists checks if a file exists
func (f *FileOperations) FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// WriteFileAtomic writes data to a ".part" sibling and renames it over path,
// so readers never see a partially written file
func (f *FileOperations) WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	if err := f.EnsureDir(path); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	partPath := path + ".part"
	file, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create partial file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(partPath)
		}
	}()

	if _, err = file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to write partial file: %w", err)
	}
	if err = file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync partial file: %w", err)
	}
	if err = file.Close(); err != nil {
		return fmt.Errorf("failed to close partial file: %w", err)
	}

	if err = os.Rename(partPath, path); err != nil {
		return fmt.Errorf("failed to finalize file: %w", err)
	}
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeFilename turns a title into a file name that is safe on every platform
func SafeFilename(name, fallback string) string {
	name = unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return fallback
	}
	if len(name) > 100 {
		name = name[:100]
	}
	return name
}

// CredentialFile stores credentials as YAML with owner-only permissions
type CredentialFile struct {
	Path string
	fs   *FileOperations
}

// NewCredentialFile creates a store backed by path
func NewCredentialFile(path string) *CredentialFile {
	return &CredentialFile{Path: path, fs: NewFileOperations()}
}

var _ internal.CredentialStore = (*CredentialFile)(nil)

// Load reads the stored credentials. A missing file yields empty credentials.
func (c *CredentialFile) Load() (internal.Credentials, error) {
	var creds internal.Credentials

	data, err := os.ReadFile(c.Path)
	if os.IsNotExist(err) {
		return creds, nil
	}
	if err != nil {
		return creds, fmt.Errorf("read credentials: %w", err)
	}

	if err := yaml.Unmarshal(data, &creds); err != nil {
		return internal.Credentials{}, internal.NewValidationError("credentials_file", "failed to parse YAML").
			WithContext("file", c.Path).
			WithSuggestion("Run 'imgurfetch logout' and sign in again")
	}
	return creds, nil
}

// Save replaces the stored credentials. Saving unauthenticated credentials
// removes the file.
func (c *CredentialFile) Save(creds internal.Credentials) error {
	if !creds.IsAuthenticated() {
		if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove credentials: %w", err)
		}
		return nil
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	return c.fs.WriteFileAtomic(c.Path, data, 0o600)
}
