package domain

import (
	"path/filepath"
	"strings"
)

var extMIME = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".zip":  "application/zip",
}

// MIMEForName maps a file name to a MIME type by extension. ok is false for
// extensions outside the known media set.
func MIMEForName(name string) (mime string, ok bool) {
	mime, ok = extMIME[strings.ToLower(filepath.Ext(name))]
	return mime, ok
}

// KindForMIME derives the content kind from a MIME type.
func KindForMIME(mime string) ContentKind {
	switch {
	case strings.HasPrefix(mime, "video/"):
		return ContentVideo
	case strings.HasPrefix(mime, "image/"):
		return ContentImage
	default:
		return ContentBinary
	}
}

// KindForName derives the content kind from a file extension.
func KindForName(name string) ContentKind {
	mime, ok := MIMEForName(name)
	if !ok {
		return ContentBinary
	}
	return KindForMIME(mime)
}

// IsMediaFile reports whether name carries one of the recognized media
// extensions. Partial downloads and sidecar files are not media.
func IsMediaFile(name string) bool {
	mime, ok := MIMEForName(name)
	return ok && mime != "application/zip"
}
