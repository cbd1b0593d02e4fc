package transcript

import (
	"bufio"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"videoqa/core"
)

// timingRe matches a cue timing line "start --> end". Both VTT dot
// and SRT comma decimals are accepted; trailing cue settings after the
// end timestamp are ignored.
var timingRe = regexp.MustCompile(`^((?:\d{1,2}:)?\d{1,2}:\d{2}[.,]\d{1,3})\s*-->\s*((?:\d{1,2}:)?\d{1,2}:\d{2}[.,]\d{1,3})`)

// cueIDRe matches standalone numeric cue identifiers.
var cueIDRe = regexp.MustCompile(`^\d+$`)

// ParseCaptions reads a caption-track file and returns its cues as
// ordered transcript segments. Cue text is collapsed to single-space
// separated tokens. Malformed or empty cues are skipped; a file that
// cannot be opened or contains no timing cues fails with a ParseError.
func ParseCaptions(path string, logger *slog.Logger) ([]core.TranscriptSegment, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &core.ParseError{Path: path, Reason: "cannot open caption file", Cause: err}
	}
	defer f.Close()

	var segments []core.TranscriptSegment
	var start, end string
	var text []string
	inCue := false

	flush := func() {
		if inCue {
			cue := normalizeWhitespace(strings.Join(text, " "))
			if cue == "" {
				logger.Warn("skipping empty caption cue", "path", path, "start", start)
			} else {
				segments = append(segments, core.TranscriptSegment{Text: cue, Start: start, End: end})
			}
		}
		inCue = false
		text = text[:0]
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			flush()
		case strings.HasPrefix(trimmed, "WEBVTT"), strings.HasPrefix(trimmed, "NOTE"):
			// header / comment block introducers
		case timingRe.MatchString(trimmed):
			flush()
			m := timingRe.FindStringSubmatch(trimmed)
			start = normalizeTimecode(m[1])
			end = normalizeTimecode(m[2])
			inCue = true
		case cueIDRe.MatchString(trimmed) && !inCue:
			// SRT sequence number before a timing line
		case inCue:
			text = append(text, trimmed)
		default:
			// stray text outside any cue: malformed, skip
			logger.Warn("skipping text outside caption cue", "path", path, "line", trimmed)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, &core.ParseError{Path: path, Reason: "read caption file", Cause: err}
	}
	if len(segments) == 0 {
		return nil, &core.ParseError{Path: path, Reason: "no timing cues found"}
	}
	return segments, nil
}

// normalizeWhitespace collapses internal runs of whitespace to single
// spaces and trims the ends.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeTimecode maps SRT comma decimals and short forms onto the
// canonical HH:MM:SS.mmm shape so dedup keys are stable across caption
// flavors.
func normalizeTimecode(ts string) string {
	ts = strings.ReplaceAll(ts, ",", ".")
	colons := strings.Count(ts, ":")
	if colons == 1 {
		ts = "00:" + ts
	}
	parts := strings.SplitN(ts, ":", 2)
	if len(parts[0]) == 1 {
		ts = "0" + ts
	}
	if i := strings.LastIndex(ts, "."); i >= 0 {
		for len(ts)-i-1 < 3 {
			ts += "0"
		}
	} else {
		ts += ".000"
	}
	return ts
}
