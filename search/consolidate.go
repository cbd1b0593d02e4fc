package search

import (
	"sort"
	"strconv"
	"strings"

	"videoqa/core"
)

const (
	// mergeBuffer is the maximum gap, in seconds, between two segments
	// of the same video that still merge into one display window.
	mergeBuffer = 5.0

	// defaultWindow is the assumed segment length when a hit carries no
	// end time.
	defaultWindow = 10.0

	// maxDisplaySegments caps how many consolidated windows a response
	// shows.
	maxDisplaySegments = 4
)

// ParseTimestamp converts a timecode to seconds. It accepts H:MM:SS,
// MM:SS, either with a fractional part, or a bare number of seconds.
func ParseTimestamp(ts string) (float64, error) {
	ts = strings.TrimSpace(ts)
	parts := strings.Split(ts, ":")
	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, &core.ValidationError{Field: "timestamp", Reason: "unparseable timecode " + strconv.Quote(ts)}
		}
		total = total*60 + v
	}
	return total, nil
}

// Consolidate merges segments of the same video whose time windows
// overlap or sit within mergeBuffer seconds of each other, then returns
// the top windows by score. Segments with unparseable start times are
// dropped.
func Consolidate(segments []core.VideoSegment) []core.MergedSegment {
	byVideo := make(map[string][]core.MergedSegment)
	for _, seg := range segments {
		start, err := ParseTimestamp(seg.Timestamp.Start)
		if err != nil {
			continue
		}
		end := start + defaultWindow
		if seg.Timestamp.End != "" {
			if e, err := ParseTimestamp(seg.Timestamp.End); err == nil {
				end = e
			}
		}
		byVideo[seg.Video] = append(byVideo[seg.Video], core.MergedSegment{
			Video: seg.Video,
			Start: start,
			End:   end,
			Text:  seg.Text,
			Score: seg.Score,
		})
	}

	var merged []core.MergedSegment
	for _, group := range byVideo {
		sort.Slice(group, func(i, j int) bool { return group[i].Start < group[j].Start })
		cur := group[0]
		for _, next := range group[1:] {
			if next.Start <= cur.End+mergeBuffer {
				if next.End > cur.End {
					cur.End = next.End
				}
				if !strings.Contains(cur.Text, next.Text) {
					cur.Text = cur.Text + " " + next.Text
				}
				if next.Score > cur.Score {
					cur.Score = next.Score
				}
				continue
			}
			merged = append(merged, cur)
			cur = next
		}
		merged = append(merged, cur)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > maxDisplaySegments {
		merged = merged[:maxDisplaySegments]
	}
	return merged
}
