package infrastructure

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"go.uber.org/zap"
)

// FileExtractor converts uploaded documents to plain text, dispatching on
// the file extension. Unsupported or unparseable content yields an absent
// result, never an error; errors are reserved for I/O failure.
type FileExtractor struct {
	log *zap.Logger
}

func NewFileExtractor(log *zap.Logger) *FileExtractor {
	return &FileExtractor{log: log.With(zap.String("component", "extractor"))}
}

// ExtractText reads the file at path and returns its text content. The empty
// string with a nil error means "no extractable text".
func (e *FileExtractor) ExtractText(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
		return e.extractPDF(path, data), nil
	case ".docx":
		return e.extractDocx(path), nil
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
		return string(data), nil
	default:
		e.log.Warn("unsupported file type, skipping extraction", zap.String("file", filepath.Base(path)))
		return "", nil
	}
}

func (e *FileExtractor) extractPDF(path string, data []byte) string {
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		e.log.Warn("unreadable pdf", zap.String("file", filepath.Base(path)), zap.Error(err))
		return ""
	}

	numPages, err := reader.GetNumPages()
	if err != nil || numPages == 0 {
		e.log.Warn("pdf has no readable pages", zap.String("file", filepath.Base(path)), zap.Error(err))
		return ""
	}

	var builder strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			e.log.Warn("skipping pdf page", zap.Int("page", i), zap.Error(err))
			continue
		}

		ex, err := extractor.New(page)
		if err != nil {
			e.log.Warn("skipping pdf page", zap.Int("page", i), zap.Error(err))
			continue
		}

		pageText, err := ex.ExtractText()
		if err != nil {
			e.log.Warn("skipping pdf page", zap.Int("page", i), zap.Error(err))
			continue
		}

		if pageText != "" {
			builder.WriteString(pageText)
			builder.WriteString("\n\n")
		}
	}

	return strings.TrimSpace(builder.String())
}

func (e *FileExtractor) extractDocx(path string) string {
	reader, err := docx.ReadDocxFile(path)
	if err != nil {
		e.log.Warn("unreadable docx", zap.String("file", filepath.Base(path)), zap.Error(err))
		return ""
	}
	defer reader.Close()

	return strings.TrimSpace(flattenDocxXML(reader.Editable().GetContent()))
}

// flattenDocxXML strips the WordprocessingML markup from document.xml,
// keeping paragraph breaks as newlines.
func flattenDocxXML(content string) string {
	content = strings.ReplaceAll(content, "</w:p>", "\n")

	var builder strings.Builder
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			builder.WriteRune(r)
		}
	}

	text := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
	).Replace(builder.String())

	return strings.TrimSpace(text)
}
