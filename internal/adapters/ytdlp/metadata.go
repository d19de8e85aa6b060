package ytdlp

import (
	"encoding/json"

	"mediagate/internal/core/domain"
)

// info is the subset of yt-dlp's -J output we read.
type info struct {
	Type         string  `json:"_type"`
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Uploader     string  `json:"uploader"`
	UploaderID   string  `json:"uploader_id"`
	Channel      string  `json:"channel"`
	UploadDate   string  `json:"upload_date"`
	Thumbnail    string  `json:"thumbnail"`
	LikeCount    int64   `json:"like_count"`
	CommentCount int64   `json:"comment_count"`
	Description  string  `json:"description"`
	Duration     float64 `json:"duration"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	URL          string  `json:"url"`
	WebpageURL   string  `json:"webpage_url"`
	Ext          string  `json:"ext"`
	VCodec       string  `json:"vcodec"`
	Entries      []*info `json:"entries"`
}

func parseInfo(data []byte) (*domain.ExtractionResult, error) {
	var raw info
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.ExtractionFailure("the extraction engine returned unreadable metadata", err)
	}

	res := &domain.ExtractionResult{
		ID:           raw.ID,
		Title:        raw.Title,
		Uploader:     firstNonEmpty(raw.Uploader, raw.Channel, raw.UploaderID),
		UploadDate:   formatDate(raw.UploadDate),
		Thumbnail:    raw.Thumbnail,
		LikeCount:    raw.LikeCount,
		CommentCount: raw.CommentCount,
		Description:  raw.Description,
		Duration:     raw.Duration,
	}

	if raw.Type != "playlist" && raw.Type != "multi_video" {
		res.ItemCount = 1
		res.Items = []domain.MediaItem{toItem(&raw, 1)}
		return res, nil
	}

	for _, entry := range raw.Entries {
		if entry == nil {
			continue // unavailable entry
		}
		res.Items = append(res.Items, toItem(entry, len(res.Items)+1))
	}
	res.ItemCount = len(res.Items)
	res.IsMultiItem = res.ItemCount > 1
	if res.Thumbnail == "" && len(res.Items) > 0 {
		res.Thumbnail = res.Items[0].Thumbnail
	}
	if res.Uploader == "" && len(raw.Entries) > 0 && raw.Entries[0] != nil {
		first := raw.Entries[0]
		res.Uploader = firstNonEmpty(first.Uploader, first.Channel, first.UploaderID)
	}
	return res, nil
}

func toItem(i *info, position int) domain.MediaItem {
	isVideo := i.VCodec != "" && i.VCodec != "none"
	if i.VCodec == "" {
		isVideo = domain.KindForName("x."+i.Ext) == domain.ContentVideo
	}
	return domain.MediaItem{
		ID:        i.ID,
		Title:     i.Title,
		Thumbnail: i.Thumbnail,
		Duration:  i.Duration,
		Width:     i.Width,
		Height:    i.Height,
		URL:       firstNonEmpty(i.WebpageURL, i.URL),
		Position:  position,
		IsVideo:   isVideo,
		Ext:       i.Ext,
	}
}

// formatDate turns YYYYMMDD into YYYY-MM-DD; other shapes pass through.
func formatDate(s string) string {
	if len(s) != 8 {
		return s
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return s
		}
	}
	return s[:4] + "-" + s[4:6] + "-" + s[6:]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
