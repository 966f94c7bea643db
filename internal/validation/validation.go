// Package validation checks identifiers accepted from configuration and
// HTTP requests.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	videoIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	// Playlist IDs vary in length by kind (PL, UU, OL, FL...).
	playlistIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{2,64}$`)
)

// IsValidVideoID reports whether id looks like a YouTube video ID.
func IsValidVideoID(id string) bool {
	return videoIDRegex.MatchString(id)
}

// IsValidPlaylistID reports whether id looks like a YouTube playlist ID.
func IsValidPlaylistID(id string) bool {
	return playlistIDRegex.MatchString(id)
}

// ValidateVideoID trims id and returns it, or an error when it is empty or
// malformed.
func ValidateVideoID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("videoId is required")
	}
	if !IsValidVideoID(id) {
		return "", fmt.Errorf("invalid video ID format: %s", id)
	}
	return id, nil
}

// SplitPlaylistIDs flattens repeated and comma-separated playlist filter
// values into a de-duplicated list, keeping first-seen order.
func SplitPlaylistIDs(values []string) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0, len(values))

	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			ids = append(ids, part)
		}
	}

	return ids
}
