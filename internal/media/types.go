// Package media defines shared types for the nomark application.
package media

import (
	"fmt"
	"time"
)

// ContentType represents whether a post is a video or a photo slideshow.
type ContentType int

const (
	Video ContentType = iota
	Photo
)

func (c ContentType) String() string {
	switch c {
	case Video:
		return "video"
	case Photo:
		return "photo"
	default:
		return "unknown"
	}
}

// ParseContentType maps the path segment of a post URL to a ContentType.
func ParseContentType(s string) (ContentType, error) {
	switch s {
	case "video":
		return Video, nil
	case "photo":
		return Photo, nil
	default:
		return Video, fmt.Errorf("unknown content type %q", s)
	}
}

// VideoReference identifies a single post on the platform.
// It is built once per request and never modified afterwards.
type VideoReference struct {
	RawURL       string      // URL after short-link resolution
	AuthorHandle string      // e.g. "@someuser"
	ContentID    string      // numeric post ID
	ContentType  ContentType // Video or Photo
}

// SuggestedFilename returns the attachment filename for the post.
func (r VideoReference) SuggestedFilename() string {
	return "tiktok_" + r.ContentID + ".mp4"
}

// MP4 is the media type announced for every download.
const MP4 = "video/mp4"

// ProviderResult is a downloaded video produced by exactly one provider.
type ProviderResult struct {
	Body              []byte // full video bytes
	SuggestedFilename string // tiktok_<id>.mp4
	MediaType         string // always MP4
	Provider          string // name of the backend that produced it
}

// HistoryEntry represents a single completed fetch.
type HistoryEntry struct {
	ContentID string
	Handle    string
	URL       string
	Provider  string
	Path      string // where the file was written
	Size      int64
	FetchedAt time.Time
}
