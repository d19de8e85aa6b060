package ytdlp

import (
	"errors"
	"strings"

	"mediagate/internal/core/domain"
)

// marker maps a fragment of yt-dlp's stderr to an error kind. The first
// matching marker wins, so more specific fragments come first.
type marker struct {
	fragment string
	kind     domain.ErrorKind
	message  string
}

var markers = []marker{
	{"requested format is not available", domain.KindUnsupportedFormat, "the requested format is not available"},
	{"no video formats found", domain.KindUnsupportedFormat, "the source has no downloadable media"},
	{"there is no video in this post", domain.KindUnsupportedFormat, "the source has no downloadable media"},
	{"unsupported url", domain.KindInvalidInput, "the URL is not supported"},

	{"sign in to confirm", domain.KindAuthRequired, "the source requires authentication"},
	{"login required", domain.KindAuthRequired, "the source requires authentication"},
	{"login_required", domain.KindAuthRequired, "the source requires authentication"},
	{"private video", domain.KindAuthRequired, "the source is private"},
	{"this account is private", domain.KindAuthRequired, "the source is private"},
	{"use --cookies", domain.KindAuthRequired, "the source requires authentication"},
	{"http error 401", domain.KindAuthRequired, "the source requires authentication"},
	{"http error 403", domain.KindAuthRequired, "access to the source was denied"},

	{"http error 429", domain.KindRateLimited, "the source is rate limiting requests"},
	{"too many requests", domain.KindRateLimited, "the source is rate limiting requests"},
	{"rate-limit reached", domain.KindRateLimited, "the source is rate limiting requests"},

	{"http error 404", domain.KindNotFound, "the source could not be found"},
	{"video unavailable", domain.KindNotFound, "the source is unavailable"},
	{"has been removed", domain.KindNotFound, "the source has been removed"},
	{"does not exist", domain.KindNotFound, "the source could not be found"},

	{"timed out", domain.KindTimeout, "the source timed out"},
	{"no space left on device", domain.KindStorageFailure, "the server ran out of disk space"},
}

// classify maps a failed run to a tagged error.
func classify(stderr string, runErr error) error {
	lower := strings.ToLower(stderr)
	cause := errors.New(lastLine(stderr))
	if runErr != nil {
		cause = errors.Join(runErr, cause)
	}
	for _, m := range markers {
		if strings.Contains(lower, m.fragment) {
			return domain.NewError(m.kind, m.message, cause)
		}
	}
	return domain.ExtractionFailure("the extraction engine failed", cause)
}
