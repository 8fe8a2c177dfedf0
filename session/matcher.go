package session

import "strings"

// matches reports whether topic satisfies filter using the standard MQTT
// wildcard rules: '+' matches exactly one level, '#' (only legal as the
// final level) matches that level and everything below it.
//
// spec.md §1 treats per-session subscription matching as an opaque external
// collaborator; this core still needs a working implementation to drive the
// end-to-end scenarios in spec.md §8, so a small standalone matcher lives
// here rather than depending on a library — no example repo in the corpus
// exposes topic matching as an importable package on its own (the teacher's
// topic.Tree lives in an upstream module this repo does not otherwise
// depend on), so this is recorded in DESIGN.md as an intentional
// standard-library fallback.
func matches(filter, topic string) bool {
	if filter == topic {
		return true
	}

	fLevels := strings.Split(filter, "/")
	tLevels := strings.Split(topic, "/")

	for i, f := range fLevels {
		if f == "#" {
			return true
		}

		if i >= len(tLevels) {
			return false
		}

		if f == "+" {
			continue
		}

		if f != tLevels[i] {
			return false
		}
	}

	return len(fLevels) == len(tLevels)
}
