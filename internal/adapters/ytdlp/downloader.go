// Package ytdlp drives the yt-dlp binary as the media extraction engine.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"mediagate/internal/core/domain"
	"mediagate/internal/core/ports"
)

// outputTemplate numbers files by playlist position so directory order
// matches the source order.
const outputTemplate = "%(playlist_index|1)03d-%(id)s.%(ext)s"

// Engine implements ports.Engine with the local yt-dlp binary.
type Engine struct {
	binaryPath string
	logger     *log.Logger
}

// New creates an Engine. An empty binaryPath means "yt-dlp" from PATH.
func New(binaryPath string, logger *log.Logger) *Engine {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}
	return &Engine{binaryPath: binaryPath, logger: logger}
}

// Extract runs yt-dlp in JSON dump mode and maps the result.
func (e *Engine) Extract(ctx context.Context, url string, opts ports.EngineOptions) (*domain.ExtractionResult, error) {
	stdout, err := e.run(ctx, extractArgs(url, opts))
	if err != nil {
		return nil, err
	}
	return parseInfo(stdout)
}

// Fetch downloads into dest and returns the media files found there.
func (e *Engine) Fetch(ctx context.Context, url string, opts ports.EngineOptions, dest string) ([]domain.LocalFile, error) {
	if _, err := e.run(ctx, fetchArgs(url, opts, dest)); err != nil {
		return nil, err
	}
	files, err := collectFiles(dest)
	if err != nil {
		return nil, domain.StorageFailure("could not read the download workspace", err)
	}
	return files, nil
}

func (e *Engine) run(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.binaryPath, args...)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err := cmd.Run()
	if err == nil {
		return out.Bytes(), nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, domain.Timeout(fmt.Sprintf("extraction timed out after %s", time.Since(start).Round(time.Second)), ctxErr)
		}
		return nil, domain.ExtractionFailure("extraction was cancelled", ctxErr)
	}

	var execErr *exec.Error
	if errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ExtractionFailure("the extraction engine is not installed", err)
	}

	e.logger.Printf("yt-dlp exited with %v: %s", err, lastLine(stderr.String()))
	return nil, classify(stderr.String(), err)
}

func commonArgs(opts ports.EngineOptions) []string {
	args := []string{"--no-warnings", "--no-progress", "--ignore-config"}
	if opts.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(int(opts.SocketTimeout.Seconds())))
	}
	if opts.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(opts.Retries), "--fragment-retries", strconv.Itoa(opts.Retries))
	}
	if opts.CookieFile != "" {
		args = append(args, "--cookies", opts.CookieFile)
	}
	if opts.ItemIndex > 0 {
		args = append(args, "--playlist-items", strconv.Itoa(opts.ItemIndex))
	}
	keys := make([]string, 0, len(opts.Headers))
	for k := range opts.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--add-header", k+":"+opts.Headers[k])
	}
	return args
}

func extractArgs(url string, opts ports.EngineOptions) []string {
	args := append([]string{"-J"}, commonArgs(opts)...)
	return append(args, "--", url)
}

func fetchArgs(url string, opts ports.EngineOptions, dest string) []string {
	args := []string{
		"-f", formatSelector(opts),
		"-o", filepath.Join(dest, outputTemplate),
		"--merge-output-format", "mp4",
		"--restrict-filenames",
		"--no-mtime",
	}
	if opts.MaxBytes > 0 {
		args = append(args, "--max-filesize", strconv.FormatInt(opts.MaxBytes, 10))
	}
	args = append(args, commonArgs(opts)...)
	return append(args, "--", url)
}

// formatSelector turns the engine-neutral options into a yt-dlp -f value.
// "best" and "" honour MaxHeight and MaxBytes; "worst" is passed through;
// anything else is treated as a raw selector.
func formatSelector(opts ports.EngineOptions) string {
	switch opts.Format {
	case "", "best":
	case "worst":
		return "worst"
	default:
		return opts.Format
	}

	var filter string
	if opts.MaxHeight > 0 {
		filter += fmt.Sprintf("[height<=%d]", opts.MaxHeight)
	}
	if opts.MaxBytes > 0 {
		filter += fmt.Sprintf("[filesize<?%d]", opts.MaxBytes)
	}
	if filter == "" {
		return "bestvideo+bestaudio/best"
	}
	return fmt.Sprintf("bestvideo%s+bestaudio/best%s", filter, filter)
}

// collectFiles lists media files in dir, sorted by name.
func collectFiles(dir string) ([]domain.LocalFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []domain.LocalFile
	for _, entry := range entries {
		if entry.IsDir() || !domain.IsMediaFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		if info.Size() == 0 {
			continue
		}
		files = append(files, domain.LocalFile{
			Name: entry.Name(),
			Path: filepath.Join(dir, entry.Name()),
			Size: info.Size(),
			Kind: domain.KindForName(entry.Name()),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	for i := range files {
		files[i].Position = i + 1
	}
	return files, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
