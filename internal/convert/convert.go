package convert

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Converter normalizes uploaded artifacts into print-ready PDFs and merges
// several of them into one document.
type Converter struct {
	// SofficePath is the LibreOffice binary invoked for DOCX conversion.
	SofficePath string
}

func New() *Converter {
	return &Converter{SofficePath: "soffice"}
}

// ToPDF returns the path of a PDF rendition of the given file. PDFs pass
// through untouched; JPEGs are wrapped into a single-page PDF; DOCX files go
// through LibreOffice headless.
func (c *Converter) ToPDF(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return path, nil
	case ".jpg", ".jpeg":
		return c.imageToPDF(path)
	case ".docx":
		return c.docxToPDF(ctx, path)
	default:
		return "", fmt.Errorf("cannot convert %s to pdf", filepath.Ext(path))
	}
}

func (c *Converter) imageToPDF(path string) (string, error) {
	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".pdf"
	if err := api.ImportImagesFile([]string{path}, out, nil, nil); err != nil {
		return "", fmt.Errorf("failed to convert image to pdf: %w", err)
	}
	return out, nil
}

func (c *Converter) docxToPDF(ctx context.Context, path string) (string, error) {
	outDir := filepath.Dir(path)
	cmd := exec.CommandContext(ctx, c.SofficePath, "--headless", "--convert-to", "pdf", "--outdir", outDir, path)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("libreoffice conversion failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".pdf"
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("libreoffice produced no output for %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// Merge concatenates the inputs, in order, into a single PDF at outPath.
// Non-PDF inputs are converted first; page content is preserved as-is.
func (c *Converter) Merge(ctx context.Context, inputs []string, outPath string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("nothing to merge")
	}

	pdfs := make([]string, 0, len(inputs))
	for _, in := range inputs {
		pdf, err := c.ToPDF(ctx, in)
		if err != nil {
			return fmt.Errorf("failed to prepare %s for merge: %w", filepath.Base(in), err)
		}
		pdfs = append(pdfs, pdf)
	}

	if err := api.MergeCreateFile(pdfs, outPath, false, nil); err != nil {
		return fmt.Errorf("failed to merge %d files: %w", len(pdfs), err)
	}

	log.Printf("[convert] merged %d files into %s", len(pdfs), filepath.Base(outPath))
	return nil
}
