package docinfo

import (
	"strings"
	"testing"
)

func TestInspectPlainText(t *testing.T) {
	info := Inspect("notes.txt", []byte("plain text content"))
	if info.FileType != "txt" {
		t.Fatalf("expected txt, got %q", info.FileType)
	}
	if !strings.HasPrefix(info.ContentType, "text/plain") {
		t.Fatalf("expected text/plain content type, got %q", info.ContentType)
	}
	if info.PageCount != 1 {
		t.Fatalf("non-PDF should report 1 page, got %d", info.PageCount)
	}
}

func TestInspectPNGSignature(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 64)...)
	info := Inspect("scan.png", png)
	if info.FileType != "png" {
		t.Fatalf("expected png, got %q", info.FileType)
	}
	if info.ContentType != "image/png" {
		t.Fatalf("expected image/png, got %q", info.ContentType)
	}
}

func TestInspectMalformedPDFFallsBack(t *testing.T) {
	// Looks like a PDF by extension but the body is not parseable; the
	// page count must stay at the default instead of failing the upload.
	info := Inspect("broken.pdf", []byte("%PDF-1.4 truncated"))
	if info.FileType != "pdf" {
		t.Fatalf("expected pdf, got %q", info.FileType)
	}
	if info.PageCount != 1 {
		t.Fatalf("expected fallback page count 1, got %d", info.PageCount)
	}
}

func TestInspectNoExtension(t *testing.T) {
	info := Inspect("README", []byte("hello"))
	if info.FileType != "bin" {
		t.Fatalf("expected bin for extensionless name, got %q", info.FileType)
	}
}

func TestInspectEmptyPayload(t *testing.T) {
	info := Inspect("empty.txt", nil)
	if info.PageCount != 1 {
		t.Fatalf("expected 1 page, got %d", info.PageCount)
	}
	if info.ContentType == "" {
		t.Fatal("content type should never be empty")
	}
}
