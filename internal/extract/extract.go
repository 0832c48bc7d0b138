// Package extract turns source documents into plain text for the drafter.
// It wraps go-fitz (MuPDF) page iteration behind the pipeline's
// extract-text contract: plain text out, or an extraction error.
package extract

import (
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"courseforge/internal/apperr"
	"courseforge/internal/course"
)

// Text extracts the text of the document at path.
func Text(path string) (course.SourceText, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return course.SourceText{}, apperr.Wrap(apperr.KindExtraction, "open document", err)
	}
	defer doc.Close()

	return collect(doc, path)
}

// TextFromBytes extracts the text of an in-memory document. filename is
// carried through for reporting only.
func TextFromBytes(data []byte, filename string) (course.SourceText, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return course.SourceText{}, apperr.Wrap(apperr.KindExtraction, "open document", err)
	}
	defer doc.Close()

	return collect(doc, filename)
}

func collect(doc *fitz.Document, filename string) (course.SourceText, error) {
	pages := doc.NumPage()
	if pages == 0 {
		return course.SourceText{}, apperr.New(apperr.KindExtraction, "document has no pages")
	}

	var b strings.Builder
	for i := 0; i < pages; i++ {
		text, err := doc.Text(i)
		if err != nil {
			// A single unreadable page doesn't sink the document.
			log.Warn().Err(err).Int("page", i).Str("file", filename).Msg("Failed to extract page text")
			continue
		}
		b.WriteString(text)
	}

	content := strings.TrimSpace(b.String())
	if content == "" {
		return course.SourceText{}, apperr.New(apperr.KindExtraction, "no text could be extracted from the document")
	}

	log.Info().
		Str("file", filename).
		Int("pages", pages).
		Int("textLength", len(content)).
		Msg("Document text extracted")

	return course.NewSourceText(content, filename), nil
}
