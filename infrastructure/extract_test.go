package infrastructure

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExtractTextPlainFiles(t *testing.T) {
	e := NewFileExtractor(zap.NewNop())
	dir := t.TempDir()

	txt := filepath.Join(dir, "cv.txt")
	require.NoError(t, os.WriteFile(txt, []byte("plain cv text"), 0o644))

	md := filepath.Join(dir, "report.md")
	require.NoError(t, os.WriteFile(md, []byte("# Report\nbody"), 0o644))

	out, err := e.ExtractText(txt)
	require.NoError(t, err)
	assert.Equal(t, "plain cv text", out)

	out, err = e.ExtractText(md)
	require.NoError(t, err)
	assert.Equal(t, "# Report\nbody", out)
}

func TestExtractTextUnsupportedFormatIsAbsentNotError(t *testing.T) {
	e := NewFileExtractor(zap.NewNop())
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 0x50, 0x4e, 0x47}, 0o644))

	out, err := e.ExtractText(path)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestExtractTextMissingFileIsIOError(t *testing.T) {
	e := NewFileExtractor(zap.NewNop())

	_, err := e.ExtractText(filepath.Join(t.TempDir(), "gone.txt"))
	assert.Error(t, err)
}

func TestExtractTextCorruptPDFIsAbsentNotError(t *testing.T) {
	e := NewFileExtractor(zap.NewNop())
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not really a pdf"), 0o644))

	out, err := e.ExtractText(path)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFlattenDocxXML(t *testing.T) {
	content := `<w:document><w:body>` +
		`<w:p><w:r><w:t>First line</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Fish &amp; chips</w:t></w:r></w:p>` +
		`</w:body></w:document>`

	assert.Equal(t, "First line\nFish & chips", flattenDocxXML(content))
}
