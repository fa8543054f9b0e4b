package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is the coarse input class tools declare they accept.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindImage   Kind = "image"
	KindWord    Kind = "word"
	KindExcel   Kind = "excel"
	KindPPT     Kind = "ppt"
	KindText    Kind = "text"
	KindJSON    Kind = "json"
	KindUnknown Kind = "unknown"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type using magic bytes, not filename
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}

	mimeType := mtype.String()
	extension := mtype.Extension()

	log.Debug().Str("mime", mimeType).Str("ext", extension).Str("file", filePath).Msg("detected file type")

	// Special handling for ZIP-based Office formats
	// Modern Office formats are ZIP containers with specific structure
	if mimeType == "application/zip" || strings.Contains(mimeType, "application/x-zip") {
		ext := strings.ToLower(filepath.Ext(filePath))
		log.Debug().Str("zip_ext", ext).Msg("ZIP detected, checking extension")

		switch ext {
		case ".docx":
			mimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
			extension = ".docx"
		case ".xlsx":
			mimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
			extension = ".xlsx"
		case ".pptx":
			mimeType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
			extension = ".pptx"
		case ".odt":
			mimeType = "application/vnd.oasis.opendocument.text"
			extension = ".odt"
		case ".ods":
			mimeType = "application/vnd.oasis.opendocument.spreadsheet"
			extension = ".ods"
		case ".odp":
			mimeType = "application/vnd.oasis.opendocument.presentation"
			extension = ".odp"
		default:
			log.Warn().Str("ext", ext).Msg("ZIP file with unrecognized extension")
		}

		if mimeType != "application/zip" {
			log.Debug().Str("original", mtype.String()).Str("override", mimeType).Msg("overriding ZIP detection based on extension")
		}
	}

	// Special handling for OLE/CFB-based Office formats (legacy .doc, .xls, .ppt)
	if mimeType == "application/x-ole-storage" || mimeType == "application/x-cfb" {
		ext := strings.ToLower(filepath.Ext(filePath))
		log.Debug().Str("ole_ext", ext).Msg("OLE storage detected, checking extension")

		switch ext {
		case ".doc":
			mimeType = "application/msword"
			extension = ".doc"
		case ".xls":
			mimeType = "application/vnd.ms-excel"
			extension = ".xls"
		case ".ppt":
			mimeType = "application/vnd.ms-powerpoint"
			extension = ".ppt"
		default:
			log.Warn().Str("ext", ext).Msg("OLE storage with unrecognized extension")
		}

		if mimeType != "application/x-ole-storage" && mimeType != "application/x-cfb" {
			log.Debug().Str("original", mtype.String()).Str("override", mimeType).Msg("overriding OLE detection based on extension")
		}
	}

	info := &FileTypeInfo{
		MIMEType:  mimeType,
		Extension: extension,
	}

	d.classify(info)

	return info, nil
}

// classify maps the MIME type onto the tool input kinds.
func (d *Detector) classify(info *FileTypeInfo) {
	mimeType := info.MIMEType

	switch {
	case mimeType == "application/pdf":
		info.Kind = KindPDF
		info.Supported = true
		info.Description = "PDF document"

	case mimeType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		mimeType == "application/msword",
		mimeType == "application/vnd.oasis.opendocument.text",
		mimeType == "application/rtf":
		info.Kind = KindWord
		info.Supported = true
		info.Description = "Word processing document"

	case mimeType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		mimeType == "application/vnd.ms-excel",
		mimeType == "application/vnd.oasis.opendocument.spreadsheet",
		mimeType == "text/csv":
		info.Kind = KindExcel
		info.Supported = true
		info.Description = "Spreadsheet"

	case mimeType == "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		mimeType == "application/vnd.ms-powerpoint",
		mimeType == "application/vnd.oasis.opendocument.presentation":
		info.Kind = KindPPT
		info.Supported = true
		info.Description = "Presentation"

	case strings.HasPrefix(mimeType, "image/"):
		info.Kind = KindImage
		info.Supported = true
		info.Description = "Image file"

	case mimeType == "application/json":
		info.Kind = KindJSON
		info.Supported = true
		info.Description = "JSON document"

	case strings.HasPrefix(mimeType, "text/"):
		info.Kind = KindText
		info.Supported = true
		info.Description = "Plain text file"

	default:
		info.Kind = KindUnknown
		info.Supported = false
		info.Description = fmt.Sprintf("Unsupported file type: %s", mimeType)
	}
}

// Accepts reports whether the detected kind is one of the accepted kinds.
func Accepts(kind Kind, accepted []Kind) bool {
	for _, k := range accepted {
		if k == kind {
			return true
		}
	}
	return false
}

// mimeByExt mirrors the download MIME table results are served with.
var mimeByExt = map[string]string{
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".json": "application/json",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// MIMEForName returns the MIME type a result file is served with, based on
// its extension. Unknown extensions fall back to octet-stream.
func MIMEForName(name string) string {
	if m, ok := mimeByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return m
	}
	return "application/octet-stream"
}
