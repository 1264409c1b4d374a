// Package upload validates variant files before they enter the wizard.
package upload

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/pharmaguard-wizard/internal/domain"
)

// MaxSize is the largest accepted variant file
const MaxSize int64 = 50 * 1024 * 1024

// AcceptedExtensions lists the accepted file name suffixes
var AcceptedExtensions = []string{".vcf", ".vcf.gz"}

var (
	ErrInvalidExtension = domain.NewValidationError("file", "Invalid file type. Please upload a .vcf or .vcf.gz file.", nil)
	ErrFileTooLarge     = domain.NewValidationError("file", "File too large. Maximum size is 50 MB.", nil)
	ErrFileRequired     = domain.NewValidationError("file", "File is required", nil)
)

// Validate checks the name suffix and the size. The suffix test ignores case.
func Validate(name string, size int64) error {
	if name == "" {
		return ErrFileRequired
	}
	if !HasAcceptedExtension(name) {
		return ErrInvalidExtension
	}
	if size > MaxSize {
		return ErrFileTooLarge
	}
	return nil
}

// HasAcceptedExtension reports whether name ends in .vcf or .vcf.gz
func HasAcceptedExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range AcceptedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// New wraps in-memory content as a variant file
func New(name string, content []byte) (*domain.VariantFile, error) {
	if err := Validate(name, int64(len(content))); err != nil {
		return nil, err
	}
	return &domain.VariantFile{Name: name, Size: int64(len(content)), Content: content}, nil
}

// Open validates and reads the file at path. The size is checked before reading.
func Open(path string) (*domain.VariantFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat variant file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	name := filepath.Base(path)
	if err := Validate(name, info.Size()); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read variant file: %w", err)
	}
	return &domain.VariantFile{Name: name, Size: int64(len(content)), Content: content}, nil
}

// FromMultipart validates and reads an uploaded form file
func FromMultipart(header *multipart.FileHeader) (*domain.VariantFile, error) {
	if header == nil {
		return nil, ErrFileRequired
	}
	name := filepath.Base(header.Filename)
	if err := Validate(name, header.Size); err != nil {
		return nil, err
	}
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	if int64(len(content)) > MaxSize {
		return nil, ErrFileTooLarge
	}
	return &domain.VariantFile{Name: name, Size: int64(len(content)), Content: content}, nil
}

// Describe renders a file as "name (12.3 KB)"
func Describe(file *domain.VariantFile) string {
	if file == nil {
		return ""
	}
	return fmt.Sprintf("%s (%.1f KB)", file.Name, float64(file.Size)/1024)
}
