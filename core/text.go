package core

import (
	"fmt"
	"strings"
)

// ComposeText builds the text an artifact is embedded from.
func ComposeText(a *Artifact) string {
	var b strings.Builder
	line := func(label, value string) {
		if value == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
	}
	tags := strings.Join(a.Tags, ", ")

	switch a.Kind {
	case KindTask:
		t := a.Task
		line("Task", t.Action)
		line("Description", t.Description)
		line("Priority", t.Priority.String())
		line("Status", t.Status.String())
		line("Tags", tags)
		if t.Assignee != nil {
			line("Assignee", t.Assignee.String())
		}
		if t.Progress > 0 {
			line("Progress", fmt.Sprintf("%d%%", t.Progress))
		}
	case KindMemory:
		m := a.Memory
		line("Memory", m.Moment)
		line("Meaning", m.Meaning)
		line("Reason", m.Reason)
		line("Importance", m.Importance.String())
		line("Term", m.Term.String())
		memType := m.Type.String()
		if m.Type == MemoryEmotional && m.Emotion != "" {
			memType += " (" + m.Emotion + ")"
		}
		line("Type", memType)
		line("Tags", tags)
	case KindIdea:
		i := a.Idea
		line("Idea", i.Body)
		line("Importance", i.Importance.String())
		line("Share Level", i.Share.String())
		line("Tags", tags)
		line("Context", i.Context)
	case KindCodeChunk:
		c := a.Chunk
		line("Code ("+c.Level.String()+")", c.Code)
		line("Tests", c.Tests)
		line("Tags", tags)
	}
	return b.String()
}

// NormalizeTags trims tags, drops empties and keeps the first occurrence of
// each distinct tag.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// FirstLine returns the first line of s cut to at most n runes.
func FirstLine(s string, n int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return Truncate(s, n)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
