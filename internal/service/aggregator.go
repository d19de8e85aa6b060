package service

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"mediagate/internal/core/domain"
)

var unsafeLabelChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Aggregator turns the files of one attempt into a single deliverable.
type Aggregator struct {
	logger *log.Logger
	now    func() time.Time
}

// NewAggregator creates an Aggregator.
func NewAggregator(logger *log.Logger) *Aggregator {
	return &Aggregator{logger: logger, now: time.Now}
}

// Aggregate drops files larger than limit, then returns the only remaining
// file as-is or packs several into a ZIP archive written to outDir.
func (a *Aggregator) Aggregate(files []domain.LocalFile, limit int64, label, outDir string) (*domain.Artifact, error) {
	if len(files) == 0 {
		return nil, domain.UnsupportedFormat("no valid files", nil)
	}

	var valid []domain.LocalFile
	for _, f := range files {
		if limit > 0 && f.Size > limit {
			a.logger.Printf("Dropping %s: %d bytes exceeds limit of %d", f.Name, f.Size, limit)
			continue
		}
		valid = append(valid, f)
	}
	if len(valid) == 0 {
		return nil, domain.TooLarge("no valid files", nil)
	}

	if len(valid) == 1 {
		return a.single(valid[0], label), nil
	}
	return a.archive(valid, limit, label, outDir)
}

func (a *Aggregator) single(f domain.LocalFile, label string) *domain.Artifact {
	ext := strings.ToLower(filepath.Ext(f.Name))
	mime, ok := domain.MIMEForName(f.Name)
	if !ok {
		mime = sniff(f.Path)
		if ext == "" {
			if m := mimetype.Lookup(mime); m != nil {
				ext = m.Extension()
			}
		}
	}
	name := f.Name
	if label != "" {
		name = sanitizeLabel(label) + ext
	}
	return &domain.Artifact{
		Name: name,
		MIME: mime,
		Kind: domain.KindForMIME(mime),
		Size: f.Size,
		Path: f.Path,
	}
}

func (a *Aggregator) archive(files []domain.LocalFile, limit int64, label, outDir string) (*domain.Artifact, error) {
	ts := a.now()
	name := fmt.Sprintf("%s_%s_%s.zip", sanitizeLabel(label), ts.Format("20060102T150405"), uuid.NewString()[:8])
	path := filepath.Join(outDir, name)

	out, err := os.Create(path)
	if err != nil {
		return nil, domain.StorageFailure("could not create archive", err)
	}
	entries, err := writeArchive(out, files, ts)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, domain.StorageFailure("could not write archive", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, domain.StorageFailure("could not stat archive", err)
	}
	if limit > 0 && info.Size() > limit {
		os.Remove(path)
		return nil, domain.TooLarge(fmt.Sprintf("archive of %d items exceeds the size limit", len(files)), nil)
	}
	a.logger.Printf("Packed %d items into %s (%d bytes)", len(files), name, info.Size())

	return &domain.Artifact{
		Name:    name,
		MIME:    "application/zip",
		Kind:    domain.ContentBinary,
		Archive: true,
		Entries: entries,
		Size:    info.Size(),
		Path:    path,
	}, nil
}

func writeArchive(w io.Writer, files []domain.LocalFile, modified time.Time) ([]string, error) {
	zw := zip.NewWriter(w)
	entries := make([]string, 0, len(files))
	for i, f := range files {
		entry := fmt.Sprintf("item-%02d%s", i+1, strings.ToLower(filepath.Ext(f.Name)))
		hdr := &zip.FileHeader{Name: entry, Method: zip.Deflate, Modified: modified}
		dst, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, err
		}
		src, err := os.Open(f.Path)
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, zw.Close()
}

func sniff(path string) string {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return m.String()
}

func sanitizeLabel(label string) string {
	s := strings.Trim(unsafeLabelChars.ReplaceAllString(strings.TrimSpace(label), "_"), "._-")
	if len(s) > 64 {
		s = s[:64]
	}
	if s == "" {
		return "media"
	}
	return s
}
