// Package youtube is an extraction engine for YouTube URLs that talks to
// YouTube directly instead of shelling out. Only progressive formats
// (audio and video in one stream) are offered, since nothing here muxes.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"

	"mediagate/internal/core/domain"
	"mediagate/internal/core/ports"
)

var hosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// Handles reports whether rawURL points at a YouTube host.
func Handles(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return hosts[strings.ToLower(u.Hostname())]
}

// Engine implements ports.Engine with kkdai/youtube.
type Engine struct {
	client youtube.Client
	logger *log.Logger
}

// New creates an Engine. httpClient may be nil.
func New(httpClient *http.Client, logger *log.Logger) *Engine {
	return &Engine{
		client: youtube.Client{HTTPClient: httpClient},
		logger: logger,
	}
}

// Extract fetches video metadata.
func (e *Engine) Extract(ctx context.Context, rawURL string, opts ports.EngineOptions) (*domain.ExtractionResult, error) {
	video, err := e.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		return nil, mapError(ctx, err)
	}
	return toResult(video), nil
}

// Fetch downloads one progressive stream into dest.
func (e *Engine) Fetch(ctx context.Context, rawURL string, opts ports.EngineOptions, dest string) ([]domain.LocalFile, error) {
	video, err := e.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		return nil, mapError(ctx, err)
	}

	format, err := selectFormat(video.Formats, opts)
	if err != nil {
		return nil, err
	}
	e.logger.Printf("youtube: %s itag=%d %s", video.ID, format.ItagNo, format.QualityLabel)

	stream, _, err := e.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, mapError(ctx, err)
	}
	defer stream.Close()

	name := fmt.Sprintf("001-%s%s", video.ID, extFor(format.MimeType))
	path := filepath.Join(dest, name)
	file, err := os.Create(path)
	if err != nil {
		return nil, domain.StorageFailure("could not write to the download workspace", err)
	}
	n, err := io.Copy(file, stream)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, mapError(ctx, ctx.Err())
		}
		return nil, domain.ExtractionFailure("the stream ended unexpectedly", err)
	}

	return []domain.LocalFile{{
		Name:     name,
		Path:     path,
		Size:     n,
		Kind:     domain.KindForName(name),
		Position: 1,
	}}, nil
}

// selectFormat picks a progressive format honouring the options. A numeric
// Format is an itag; "worst" picks the smallest; anything else the largest
// within MaxHeight and MaxBytes.
func selectFormat(formats youtube.FormatList, opts ports.EngineOptions) (*youtube.Format, error) {
	var candidates []youtube.Format
	for _, f := range formats.WithAudioChannels() {
		if strings.HasPrefix(f.MimeType, "video/") {
			candidates = append(candidates, f)
		}
	}

	if itag, err := strconv.Atoi(opts.Format); err == nil {
		for i := range candidates {
			if candidates[i].ItagNo == itag {
				return &candidates[i], nil
			}
		}
		return nil, domain.UnsupportedFormat(fmt.Sprintf("format %d is not available", itag), nil)
	}
	switch opts.Format {
	case "", "best", "worst":
	default:
		return nil, domain.UnsupportedFormat(fmt.Sprintf("format %q is not supported for this source", opts.Format), nil)
	}

	var eligible []youtube.Format
	for _, f := range candidates {
		if opts.MaxHeight > 0 && f.Height > opts.MaxHeight {
			continue
		}
		if opts.MaxBytes > 0 && f.ContentLength > opts.MaxBytes {
			continue
		}
		eligible = append(eligible, f)
	}
	if len(eligible) == 0 {
		return nil, domain.UnsupportedFormat("no format matches the requested constraints", nil)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Height != eligible[j].Height {
			return eligible[i].Height > eligible[j].Height
		}
		return eligible[i].Bitrate > eligible[j].Bitrate
	})
	if opts.Format == "worst" {
		return &eligible[len(eligible)-1], nil
	}
	return &eligible[0], nil
}

func toResult(v *youtube.Video) *domain.ExtractionResult {
	res := &domain.ExtractionResult{
		ID:          v.ID,
		Title:       v.Title,
		Uploader:    v.Author,
		Description: v.Description,
		Duration:    v.Duration.Seconds(),
		ItemCount:   1,
	}
	if !v.PublishDate.IsZero() {
		res.UploadDate = v.PublishDate.Format("2006-01-02")
	}
	var width, height int
	if n := len(v.Thumbnails); n > 0 {
		res.Thumbnail = v.Thumbnails[n-1].URL
	}
	for _, f := range v.Formats {
		if f.Height > height {
			width, height = f.Width, f.Height
		}
	}
	res.Items = []domain.MediaItem{{
		ID:        v.ID,
		Title:     v.Title,
		Thumbnail: res.Thumbnail,
		Duration:  res.Duration,
		Width:     width,
		Height:    height,
		URL:       "https://www.youtube.com/watch?v=" + v.ID,
		Position:  1,
		IsVideo:   true,
		Ext:       "mp4",
	}}
	return res
}

func extFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "video/webm"):
		return ".webm"
	case strings.HasPrefix(mimeType, "video/3gpp"):
		return ".3gp"
	default:
		return ".mp4"
	}
}

func mapError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return domain.Timeout("the source timed out", ctxErr)
		}
		return domain.ExtractionFailure("extraction was cancelled", ctxErr)
	}

	var status youtube.ErrUnexpectedStatusCode
	var playability *youtube.ErrPlayabiltyStatus
	switch {
	case errors.Is(err, youtube.ErrVideoPrivate), errors.Is(err, youtube.ErrLoginRequired):
		return domain.AuthRequired("the source requires authentication", err)
	case errors.Is(err, youtube.ErrInvalidCharactersInVideoID), errors.Is(err, youtube.ErrVideoIDMinLength):
		return domain.InvalidInput("the URL does not contain a valid video id", err)
	case errors.Is(err, youtube.ErrNotPlayableInEmbed):
		return domain.UnsupportedFormat("the source cannot be played outside YouTube", err)
	case errors.As(err, &playability):
		if playability.Status == "LOGIN_REQUIRED" {
			return domain.AuthRequired("the source requires authentication", err)
		}
		return domain.NotFound("the source is unavailable", err)
	case errors.As(err, &status):
		switch int(status) {
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.AuthRequired("access to the source was denied", err)
		case http.StatusNotFound:
			return domain.NotFound("the source could not be found", err)
		case http.StatusTooManyRequests:
			return domain.RateLimited("the source is rate limiting requests", err)
		}
	}
	return domain.ExtractionFailure("the extraction engine failed", err)
}
