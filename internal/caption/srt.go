// Package caption renders transcription segments as SubRip (.srt) text.
package caption

import (
	"fmt"
	"io"
	"math"
	"strings"

	"transcription-service/internal/entity"
)

// FormatTimestamp renders seconds as HH:MM:SS,mmm.
func FormatTimestamp(sec float64) string {
	if sec < 0 || math.IsNaN(sec) {
		sec = 0
	}
	ms := int64(math.Round(sec * 1000))
	h := ms / 3_600_000
	ms %= 3_600_000
	m := ms / 60_000
	ms %= 60_000
	s := ms / 1000
	ms %= 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// Render builds the caption document. Blocks are numbered from 1 in slice
// order regardless of the segments' own indices.
func Render(segments []entity.Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1,
			FormatTimestamp(seg.Start),
			FormatTimestamp(seg.End),
			strings.TrimSpace(seg.Text),
		)
	}
	return b.String()
}

func Write(w io.Writer, segments []entity.Segment) error {
	_, err := io.WriteString(w, Render(segments))
	return err
}
