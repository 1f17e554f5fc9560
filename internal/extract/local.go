package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// LocalPDF extracts plain text from a PDF on the local filesystem. It exists
// for offline development and tests; production extraction goes through the
// external service, which also handles scanned documents.
type LocalPDF struct{}

// ExtractFile returns the plain text of the PDF at path.
func (LocalPDF) ExtractFile(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", path, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("reading extracted text from %s: %w", path, err)
	}
	return buf.String(), nil
}
