package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

const pdfContentType = "application/pdf"

// ValidateAttachment accepts images and PDF documents only. The declared type
// and the sniffed content must agree, and PDFs must parse. maxBytes <= 0
// disables the size check.
func ValidateAttachment(filename, declaredType string, data []byte, maxBytes int64) (Attachment, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "." || filename == string(filepath.Separator) || filename == "" {
		return Attachment{}, fmt.Errorf("%w: filename required", ErrAttachmentInvalid)
	}
	if len(data) == 0 {
		return Attachment{}, fmt.Errorf("%w: %s: empty file", ErrAttachmentInvalid, filename)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return Attachment{}, fmt.Errorf("%s: %w", filename, ErrAttachmentTooBig)
	}

	declared := mediaType(declaredType)
	if declared == "" || declared == "application/octet-stream" {
		declared = mediaType(mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))))
	}
	sniffed := mediaType(http.DetectContentType(data))

	switch {
	case declared == pdfContentType:
		if sniffed != pdfContentType {
			return Attachment{}, fmt.Errorf("%s: %w", filename, ErrAttachmentType)
		}
		if err := checkPDF(data); err != nil {
			return Attachment{}, fmt.Errorf("%w: %s: unreadable PDF: %v", ErrAttachmentInvalid, filename, err)
		}
	case strings.HasPrefix(declared, "image/"):
		switch {
		case strings.HasPrefix(sniffed, "image/"):
			declared = sniffed
		case !unsniffedImage(declared, sniffed, data):
			return Attachment{}, fmt.Errorf("%s: %w", filename, ErrAttachmentType)
		}
	default:
		return Attachment{}, fmt.Errorf("%s: %w", filename, ErrAttachmentType)
	}

	return Attachment{
		Filename:    filename,
		ContentType: declared,
		Size:        len(data),
		data:        data,
	}, nil
}

// sniffedImages are the image types http.DetectContentType recognises.
var sniffedImages = map[string]struct{}{
	"image/png":                {},
	"image/jpeg":               {},
	"image/gif":                {},
	"image/webp":               {},
	"image/bmp":                {},
	"image/x-icon":             {},
	"image/vnd.microsoft.icon": {},
}

// unsniffedImage accepts image formats the content sniffer has no signature
// for (TIFF, HEIC, SVG and the like). SVG must be XML text with an svg
// element; other formats must be opaque binary.
func unsniffedImage(declared, sniffed string, data []byte) bool {
	if _, ok := sniffedImages[declared]; ok {
		return false
	}
	if declared == "image/svg+xml" {
		if sniffed != "text/xml" && sniffed != "text/plain" {
			return false
		}
		return bytes.Contains(bytes.ToLower(data), []byte("<svg"))
	}
	return sniffed == "application/octet-stream"
}

func mediaType(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(v)
	}
	return mt
}

func checkPDF(data []byte) (err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	if reader.NumPage() < 1 {
		return errors.New("pdf has no pages")
	}
	return nil
}
