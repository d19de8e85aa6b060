package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ContentKind classifies a produced file.
type ContentKind string

const (
	ContentVideo  ContentKind = "video"
	ContentImage  ContentKind = "image"
	ContentBinary ContentKind = "binary"
)

// MediaRequest is a single extraction request as accepted from a caller.
type MediaRequest struct {
	URL       string `json:"url"`
	ItemIndex int    `json:"itemIndex,omitempty"` // 1-based, 0 means "all items"
	Format    string `json:"format,omitempty"`
}

var formatHintPattern = regexp.MustCompile(`^[A-Za-z0-9_+\-\[\]<>=/.:*|!?]{1,96}$`)

// Validate checks the request before any I/O happens.
func (r MediaRequest) Validate() error {
	raw := strings.TrimSpace(r.URL)
	if raw == "" {
		return InvalidInput("URL required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return InvalidInput("malformed URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return InvalidInput(fmt.Sprintf("unsupported URL scheme %q", u.Scheme), nil)
	}
	if u.Host == "" {
		return InvalidInput("URL has no host", nil)
	}
	if r.ItemIndex < 0 {
		return InvalidInput("itemIndex must be 1 or greater", nil)
	}
	if r.Format != "" && !formatHintPattern.MatchString(r.Format) {
		return InvalidInput("format contains unsupported characters", nil)
	}
	return nil
}

// MediaItem is one downloadable entry reported by the extraction engine.
type MediaItem struct {
	ID        string  `json:"id"`
	Title     string  `json:"title,omitempty"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	URL       string  `json:"url,omitempty"`
	Position  int     `json:"position"`
	IsVideo   bool    `json:"isVideo"`
	Ext       string  `json:"ext,omitempty"`
}

// ExtractionResult is the metadata view of a source URL.
type ExtractionResult struct {
	ID           string      `json:"id,omitempty"`
	Title        string      `json:"title"`
	Uploader     string      `json:"uploader"`
	UploadDate   string      `json:"uploadDate,omitempty"`
	Thumbnail    string      `json:"thumbnail,omitempty"`
	LikeCount    int64       `json:"likeCount"`
	CommentCount int64       `json:"commentCount"`
	Description  string      `json:"description,omitempty"`
	Duration     float64     `json:"duration"`
	IsMultiItem  bool        `json:"isMultiItem"`
	ItemCount    int         `json:"itemCount"`
	Items        []MediaItem `json:"items,omitempty"`
}

// Label returns a human-readable identifier for naming output files.
func (r *ExtractionResult) Label() string {
	if r == nil {
		return ""
	}
	if r.Uploader != "" {
		return r.Uploader
	}
	return r.Title
}

// LocalFile is a file fetched by the engine into a workspace.
type LocalFile struct {
	Name     string      `json:"name"`
	Path     string      `json:"-"`
	Size     int64       `json:"size"`
	Kind     ContentKind `json:"kind"`
	Position int         `json:"position"`
}

// Artifact is the deliverable handed back to a caller: a single file or an archive.
type Artifact struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	MIME      string      `json:"mime"`
	Kind      ContentKind `json:"kind"`
	Archive   bool        `json:"archive"`
	Entries   []string    `json:"entries,omitempty"`
	Size      int64       `json:"size"`
	CreatedAt time.Time   `json:"createdAt"`
	Path      string      `json:"-"` // source on disk while still inside a workspace
}

// CredentialSet is the outcome of credential discovery.
type CredentialSet struct {
	Candidates []string  `json:"candidates"`
	Path       string    `json:"path,omitempty"`
	Source     string    `json:"source,omitempty"` // "file" or "secrets"
	Staged     bool      `json:"staged"`
	Valid      bool      `json:"valid"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

// Secret is a named cookie value supplied through process configuration.
type Secret struct {
	Name  string
	Value string
}

// StoreStats summarizes an artifact store.
type StoreStats struct {
	Count      int   `json:"count"`
	TotalBytes int64 `json:"totalBytes"`
}

// Event types and statuses recorded for every request outcome.
const (
	EventInfo     = "info"
	EventDownload = "download"

	StatusOK    = "ok"
	StatusError = "error"
)

// Event is an audit record of one info or download request.
type Event struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	URL        string        `json:"url"`
	Client     string        `json:"client"`
	Status     string        `json:"status"`
	ErrorKind  string        `json:"errorKind,omitempty"`
	ArtifactID string        `json:"artifactId,omitempty"`
	Size       int64         `json:"size,omitempty"`
	Items      int           `json:"items,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
	At         time.Time     `json:"at"`
}
