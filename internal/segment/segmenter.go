// Package segment splits extracted document text into bounded-size speakable
// units for per-unit speech synthesis.
package segment

import "strings"

// LineBreakMarker is the explicit token emitted for empty lines so that
// paragraph pauses survive segmentation instead of being dropped.
const LineBreakMarker = "\n"

const separator = " "

// Split accumulates lines of text into units of at most maxChars characters.
// A unit boundary only ever occurs between lines; a single line longer than
// maxChars is emitted whole as its own oversized unit rather than truncated.
// Empty lines are preserved as LineBreakMarker entries inside units. Empty
// input yields no units.
func Split(text string, maxChars int) []string {
	if text == "" {
		return nil
	}

	// A trailing newline terminates the last line, it does not start a new
	// empty one.
	text = strings.TrimSuffix(text, "\n")

	var (
		units []string
		buf   []string
		count int
	)

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			line = LineBreakMarker
		}

		// The joining separator counts against the budget so emitted
		// units never exceed it unless a single line already does.
		cost := len(line)
		if len(buf) > 0 {
			cost += len(separator)
		}

		if count+cost > maxChars && len(buf) > 0 {
			units = append(units, strings.Join(buf, separator))
			buf = nil
			count = 0
			cost = len(line)
		}

		buf = append(buf, line)
		count += cost
	}

	if len(buf) > 0 {
		units = append(units, strings.Join(buf, separator))
	}

	return units
}
