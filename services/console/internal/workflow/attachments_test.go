package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func pngBytes() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

const svgDoc = `<svg xmlns="http://www.w3.org/2000/svg" width="4" height="4"><rect width="4" height="4"/></svg>`

// tiffBytes is a little-endian TIFF header followed by an empty IFD.
func tiffBytes() []byte {
	return []byte{'I', 'I', 42, 0, 8, 0, 0, 0, 0, 0, 0, 0, 0, 0}
}

// minimalPDF builds a one page document with a valid xref table.
func minimalPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestValidateAttachment(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		declared string
		data     []byte
		max      int64
		wantType string
		wantErr  error
	}{
		{name: "png", filename: "photo.png", declared: "image/png", data: pngBytes(), wantType: "image/png"},
		{name: "png by extension", filename: "photo.png", data: pngBytes(), wantType: "image/png"},
		{name: "pdf", filename: "report.pdf", declared: "application/pdf", data: minimalPDF(), wantType: "application/pdf"},
		{name: "text", filename: "notes.txt", declared: "text/plain", data: []byte("hello"), wantErr: ErrAttachmentType},
		{name: "text posing as png", filename: "photo.png", declared: "image/png", data: []byte("hello"), wantErr: ErrAttachmentType},
		{name: "pdf posing as png", filename: "photo.png", declared: "image/png", data: minimalPDF(), wantErr: ErrAttachmentType},
		{name: "tiff", filename: "scan.tif", declared: "image/tiff", data: tiffBytes(), wantType: "image/tiff"},
		{name: "svg", filename: "diagram.svg", declared: "image/svg+xml", data: []byte(svgDoc), wantType: "image/svg+xml"},
		{name: "svg by extension", filename: "diagram.svg", data: []byte(svgDoc), wantType: "image/svg+xml"},
		{name: "svg with prolog", filename: "diagram.svg", declared: "image/svg+xml", data: []byte(`<?xml version="1.0"?>` + svgDoc), wantType: "image/svg+xml"},
		{name: "text posing as svg", filename: "diagram.svg", declared: "image/svg+xml", data: []byte("hello"), wantErr: ErrAttachmentType},
		{name: "pdf posing as tiff", filename: "scan.tif", declared: "image/tiff", data: minimalPDF(), wantErr: ErrAttachmentType},
		{name: "html posing as tiff", filename: "scan.tif", declared: "image/tiff", data: []byte("<html><body>x</body></html>"), wantErr: ErrAttachmentType},
		{name: "too big", filename: "photo.png", declared: "image/png", data: pngBytes(), max: 8, wantErr: ErrAttachmentTooBig},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			att, err := ValidateAttachment(tc.filename, tc.declared, tc.data, tc.max)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if att.ContentType != tc.wantType || att.Size != len(tc.data) || att.Filename != tc.filename {
				t.Fatalf("unexpected attachment %+v", att)
			}
		})
	}
}

func TestValidateAttachmentRejectsBrokenPDF(t *testing.T) {
	data := []byte("%PDF-1.4\nthis is not really a pdf\n")
	_, err := ValidateAttachment("fake.pdf", "application/pdf", data, 0)
	if err == nil || !strings.Contains(err.Error(), "unreadable PDF") {
		t.Fatalf("expected unreadable PDF error, got %v", err)
	}
}

func TestValidateAttachmentStripsPath(t *testing.T) {
	att, err := ValidateAttachment("../../etc/photo.png", "image/png", pngBytes(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if att.Filename != "photo.png" {
		t.Fatalf("filename = %q", att.Filename)
	}
	if _, err := ValidateAttachment("photo.png", "image/png", nil, 0); err == nil {
		t.Fatalf("empty file accepted")
	}
}
