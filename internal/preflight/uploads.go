package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sys/unix"

	"boletodesk/internal/services"
)

// UploadKind distinguishes the two upload families.
type UploadKind string

const (
	UploadCollection UploadKind = "collection"
	UploadFiscal     UploadKind = "fiscal"
)

// UploadFile describes one file that passed preflight.
type UploadFile struct {
	Path  string
	Size  int64
	Pages int
}

var disableConfigDir sync.Once

// PDFConfiguration returns a pdfcpu configuration that never touches the
// user's config directory.
func PDFConfiguration() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	return model.NewDefaultConfiguration()
}

// PageCount parses the PDF at path and returns its page count.
func PageCount(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	return api.PageCount(file, PDFConfiguration())
}

func allowedExtensions(kind UploadKind) []string {
	if kind == UploadFiscal {
		return []string{".xml", ".pdf"}
	}
	return []string{".pdf"}
}

// CheckUploads validates every path for kind and returns the accepted files.
// All problems are reported together, tagged services.ErrValidation.
func CheckUploads(kind UploadKind, paths []string) ([]UploadFile, error) {
	var (
		accepted []UploadFile
		problems []error
	)
	for _, path := range paths {
		file, err := checkUpload(kind, path)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		accepted = append(accepted, file)
	}
	if len(problems) > 0 {
		return nil, services.Wrap(services.ErrValidation, "", "upload preflight", fmt.Sprintf("%d %s file(s) rejected", len(problems), kind), errors.Join(problems...))
	}
	return accepted, nil
}

func checkUpload(kind UploadKind, path string) (UploadFile, error) {
	ext := strings.ToLower(filepath.Ext(path))
	allowed := allowedExtensions(kind)
	ok := false
	for _, candidate := range allowed {
		if ext == candidate {
			ok = true
			break
		}
	}
	if !ok {
		return UploadFile{}, fmt.Errorf("%s: unsupported extension %q (want %s)", path, ext, strings.Join(allowed, ", "))
	}

	info, err := os.Stat(path)
	if err != nil {
		return UploadFile{}, fmt.Errorf("%s: %w", path, err)
	}
	if info.IsDir() {
		return UploadFile{}, fmt.Errorf("%s: is a directory", path)
	}
	if info.Size() == 0 {
		return UploadFile{}, fmt.Errorf("%s: empty file", path)
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return UploadFile{}, fmt.Errorf("%s: not readable: %w", path, err)
	}

	file := UploadFile{Path: path, Size: info.Size()}
	if ext == ".pdf" {
		pages, err := PageCount(path)
		if err != nil {
			return UploadFile{}, fmt.Errorf("%s: invalid pdf: %w", path, err)
		}
		if pages == 0 {
			return UploadFile{}, fmt.Errorf("%s: pdf has no pages", path)
		}
		file.Pages = pages
	}
	return file, nil
}
