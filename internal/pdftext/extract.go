// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pdftext extracts page-segmented plain text from PDF documents.
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoText means the document opened but no page yielded text, which is
// typical of scanned, image-only PDFs.
var ErrNoText = errors.New("no extractable text")

// pageSource is the per-page view of a parsed document.
type pageSource interface {
	NumPage() int
	PageText(n int) (string, error)
}

// Extractor converts PDF bytes to text.
type Extractor struct{}

// Extract returns the text of every page that yields any, in page order,
// each block prefixed by a "--- Page N ---" marker and separated by a blank
// line. A page that fails is skipped. It returns ErrNoText when zero pages
// yield text, and another error when the document cannot be parsed at all.
// It never panics.
func (Extractor) Extract(data []byte, filename string) (string, error) {
	src, err := open(data)
	if err != nil {
		slog.Error("error processing PDF", "filename", filename, "error", err)
		return "", fmt.Errorf("open pdf %s: %w", filename, err)
	}
	return extractPages(src, filename)
}

func extractPages(src pageSource, filename string) (string, error) {
	n := src.NumPage()
	slog.Info("processing PDF", "filename", filename, "pages", n)

	var blocks []string
	for i := 1; i <= n; i++ {
		text, err := pageText(src, i)
		if err != nil {
			slog.Warn("error extracting page", "filename", filename, "page", i, "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			slog.Debug("no text found on page", "filename", filename, "page", i)
			continue
		}
		blocks = append(blocks, fmt.Sprintf("--- Page %d ---\n%s", i, text))
	}

	if len(blocks) == 0 {
		slog.Warn("no text could be extracted", "filename", filename)
		return "", ErrNoText
	}

	full := strings.Join(blocks, "\n\n")
	slog.Info("extracted PDF text", "filename", filename, "chars", len(full))
	return full, nil
}

// pageText isolates a single page so a parser panic only loses that page.
func pageText(src pageSource, n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic extracting page %d: %v", n, r)
		}
	}()
	return src.PageText(n)
}

// reader adapts *pdf.Reader to pageSource.
type reader struct {
	r *pdf.Reader
}

func open(data []byte) (src pageSource, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	if len(data) == 0 {
		return nil, errors.New("empty document")
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return &reader{r: r}, nil
}

func (r *reader) NumPage() int { return r.r.NumPage() }

func (r *reader) PageText(n int) (string, error) {
	p := r.r.Page(n)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}
