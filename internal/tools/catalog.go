package tools

import (
	"fmt"

	"github.com/local/blinkpdf/internal/filetype"
)

// Category groups tools on the dashboard and in /api/tools.
type Category string

const (
	CategoryOrganize Category = "organize"
	CategoryOptimize Category = "optimize"
	CategoryConvert  Category = "convert"
	CategoryEdit     Category = "edit"
	CategorySecurity Category = "security"
	CategoryAI       Category = "ai"
)

// Tool describes one entry of the suite.
type Tool struct {
	Slug        string          `json:"slug"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    Category        `json:"category"`
	Accepts     []filetype.Kind `json:"accepts"`
	MinFiles    int             `json:"min_files"`
	MaxFiles    int             `json:"max_files"`
	AI          bool            `json:"ai"`
	// Suffix is appended to the upload's base name for the download name,
	// e.g. report.pdf -> report_merged.pdf.
	Suffix string `json:"-"`
}

var pdfOnly = []filetype.Kind{filetype.KindPDF}

var catalog = []Tool{
	// organize
	{Slug: "merge-pdf", Title: "Merge PDF", Description: "Combine multiple PDFs into a single document", Category: CategoryOrganize, Accepts: pdfOnly, MinFiles: 2, MaxFiles: 20, Suffix: "merged"},
	{Slug: "split-pdf", Title: "Split PDF", Description: "Extract a page range into a new PDF or split into parts", Category: CategoryOrganize, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "split"},
	{Slug: "remove-pages", Title: "Remove Pages", Description: "Delete selected pages from a PDF", Category: CategoryOrganize, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "removed"},
	{Slug: "extract-pages", Title: "Extract Pages", Description: "Keep only the selected pages", Category: CategoryOrganize, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "extracted"},
	{Slug: "organize-pdf", Title: "Organize PDF", Description: "Reorder and drop pages in one pass", Category: CategoryOrganize, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "organized"},
	{Slug: "rotate-pdf", Title: "Rotate PDF", Description: "Rotate all or selected pages", Category: CategoryOrganize, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "rotated"},

	// optimize
	{Slug: "compress-pdf", Title: "Compress PDF", Description: "Shrink file size with selectable quality levels", Category: CategoryOptimize, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "compressed"},
	{Slug: "optimize-pdf", Title: "Optimize PDF", Description: "Rewrite the document structure without quality loss", Category: CategoryOptimize, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "optimized"},
	{Slug: "repair-pdf", Title: "Repair PDF", Description: "Recover damaged or malformed PDFs", Category: CategoryOptimize, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "repaired"},
	{Slug: "flatten-pdf", Title: "Flatten PDF", Description: "Rasterize pages so forms and annotations become fixed content", Category: CategoryOptimize, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "flattened"},
	{Slug: "crop-pdf", Title: "Crop PDF", Description: "Trim empty margins around the page content", Category: CategoryOptimize, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "cropped"},
	{Slug: "resize-pdf", Title: "Resize PDF", Description: "Scale page dimensions by a factor", Category: CategoryOptimize, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "resized"},
	{Slug: "deskew-pdf", Title: "Deskew PDF", Description: "Straighten crooked scans", Category: CategoryOptimize, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "deskewed"},
	{Slug: "background-remover", Title: "Background Remover", Description: "Clean scan backgrounds with grayscale and contrast boost", Category: CategoryOptimize, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "cleaned"},
	{Slug: "ocr-pdf", Title: "OCR PDF", Description: "Make scanned PDFs searchable", Category: CategoryOptimize, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "ocr"},

	// edit
	{Slug: "watermark-pdf", Title: "Watermark PDF", Description: "Stamp text over every page", Category: CategoryEdit, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "watermarked"},
	{Slug: "number-pdf", Title: "Number Pages", Description: "Add page numbers at a chosen position", Category: CategoryEdit, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "numbered"},
	{Slug: "sign-pdf", Title: "Sign PDF", Description: "Place a signature image on selected pages", Category: CategoryEdit, Accepts: []filetype.Kind{filetype.KindPDF, filetype.KindImage}, MinFiles: 2, MaxFiles: 2, Suffix: "signed"},
	{Slug: "annotate-pdf", Title: "Annotate PDF", Description: "Highlight every occurrence of a search term", Category: CategoryEdit, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "annotated"},
	{Slug: "redact-pdf", Title: "Redact PDF", Description: "Black out every occurrence of a search term", Category: CategoryEdit, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "redacted"},
	{Slug: "metadata-editor", Title: "Edit Metadata", Description: "Set document title, author, subject and keywords", Category: CategoryEdit, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "metadata"},
	{Slug: "fill-forms", Title: "Fill Forms", Description: "Fill form fields from a JSON map", Category: CategoryEdit, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "filled"},
	{Slug: "extract-text", Title: "Extract Text", Description: "Pull all text into a plain text file", Category: CategoryEdit, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "text"},
	{Slug: "extract-images", Title: "Extract Images", Description: "Export all embedded images as a ZIP", Category: CategoryEdit, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "images"},

	// security
	{Slug: "protect-pdf", Title: "Protect PDF", Description: "Encrypt with a password", Category: CategorySecurity, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "protected"},
	{Slug: "unlock-pdf", Title: "Unlock PDF", Description: "Remove password protection", Category: CategorySecurity, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "unlocked"},

	// convert
	{Slug: "pdf-to-jpg", Title: "PDF to JPG", Description: "Render pages as JPEG images", Category: CategoryConvert, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "images"},
	{Slug: "jpg-to-pdf", Title: "JPG to PDF", Description: "Build a PDF from images", Category: CategoryConvert, Accepts: []filetype.Kind{filetype.KindImage}, MinFiles: 1, MaxFiles: 50, Suffix: "converted"},
	{Slug: "pdf-to-word", Title: "PDF to Word", Description: "Convert to an editable DOCX", Category: CategoryConvert, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "converted"},
	{Slug: "word-to-pdf", Title: "Word to PDF", Description: "Convert Word documents to PDF", Category: CategoryConvert, Accepts: []filetype.Kind{filetype.KindWord}, MinFiles: 1, MaxFiles: 1, Suffix: "converted"},
	{Slug: "pdf-to-excel", Title: "PDF to Excel", Description: "Export extracted rows into XLSX", Category: CategoryConvert, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "converted"},
	{Slug: "excel-to-pdf", Title: "Excel to PDF", Description: "Convert spreadsheets to PDF", Category: CategoryConvert, Accepts: []filetype.Kind{filetype.KindExcel}, MinFiles: 1, MaxFiles: 1, Suffix: "converted"},
	{Slug: "pdf-to-ppt", Title: "PDF to PowerPoint", Description: "Convert to an editable PPTX", Category: CategoryConvert, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, Suffix: "converted"},
	{Slug: "ppt-to-pdf", Title: "PowerPoint to PDF", Description: "Convert presentations to PDF", Category: CategoryConvert, Accepts: []filetype.Kind{filetype.KindPPT}, MinFiles: 1, MaxFiles: 1, Suffix: "converted"},

	// ai
	{Slug: "ai-summarizer", Title: "AI Summarizer", Description: "Summarize the document", Category: CategoryAI, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, AI: true, Suffix: "summary"},
	{Slug: "ai-translator", Title: "AI Translator", Description: "Translate the document to another language", Category: CategoryAI, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, AI: true, Suffix: "translated"},
	{Slug: "ai-chat", Title: "Chat with PDF", Description: "Ask a question about the document", Category: CategoryAI, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, AI: true, Suffix: "answer"},
	{Slug: "ai-table-extract", Title: "AI Table Extract", Description: "Pull tables out as CSV", Category: CategoryAI, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, AI: true, Suffix: "tables"},
	{Slug: "ai-editor", Title: "AI Editor", Description: "Rewrite the document text from instructions", Category: CategoryAI, Accepts: pdfOnly, MinFiles: 1, MaxFiles: 1, AI: true, Suffix: "edited"},
}

var bySlug = func() map[string]*Tool {
	m := make(map[string]*Tool, len(catalog))
	for i := range catalog {
		m[catalog[i].Slug] = &catalog[i]
	}
	return m
}()

// Catalog returns all tools in display order.
func Catalog() []Tool { return catalog }

// BySlug looks a tool up; error for unknown slugs.
func BySlug(slug string) (*Tool, error) {
	if t, ok := bySlug[slug]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("unknown tool: %q", slug)
}

// DownloadName derives the result file name from the first upload's base
// name, the tool suffix and the output extension.
func (t *Tool) DownloadName(base, ext string) string {
	if base == "" {
		base = "document"
	}
	return fmt.Sprintf("%s_%s%s", base, t.Suffix, ext)
}
