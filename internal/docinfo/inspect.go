package docinfo

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Info describes what could be determined from the uploaded bytes.
type Info struct {
	FileType    string
	ContentType string
	PageCount   int
}

// Inspect derives descriptive metadata from an uploaded payload. Page
// counts are only available for PDFs; other types report 1 so the upload
// metadata always carries a usable value.
func Inspect(filename string, data []byte) Info {
	info := Info{
		FileType:    fileType(filename),
		ContentType: http.DetectContentType(sniffPrefix(data)),
		PageCount:   1,
	}
	if info.FileType == "pdf" {
		if n, err := pdfPageCount(data); err == nil && n > 0 {
			info.PageCount = n
		}
	}
	return info
}

func pdfPageCount(data []byte) (n int, err error) {
	// The parser panics on some malformed inputs; treat that as an
	// unparseable document rather than letting an upload crash the server.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}

func fileType(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return "bin"
	}
	return ext
}

func sniffPrefix(data []byte) []byte {
	// DetectContentType looks at no more than 512 bytes.
	if len(data) > 512 {
		return data[:512]
	}
	return data
}
