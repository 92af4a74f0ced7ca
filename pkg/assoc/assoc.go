// Package assoc decides which documents a message refers to and what to
// call conversations created on the user's behalf.
package assoc

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arifwid/docuchat/pkg/gateway"
)

// DetectMentions returns the ids of documents whose filename appears,
// case-insensitively, anywhere in the message. The match is plain substring
// containment: a short filename like "a.txt" will match more messages than
// the user meant, and that is the accepted trade-off, not a bug to fix with
// tokenization.
func DetectMentions(message string, docs []gateway.Document) []string {
	lower := strings.ToLower(message)
	var ids []string
	for _, d := range docs {
		if d.Filename == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(d.Filename)) {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

var adoptionKeywords = []string{"analyze", "uploaded", "document"}

// WantsAdoption reports whether the message asks about documents in general
// terms ("analyze what I uploaded") rather than naming one.
func WantsAdoption(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range adoptionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Unassociated returns the ids of documents no conversation references.
func Unassociated(docs []gateway.Document, conversations []gateway.Conversation) []string {
	linked := make(map[string]struct{})
	for _, c := range conversations {
		for _, id := range c.DocIDs {
			linked[id] = struct{}{}
		}
	}
	var ids []string
	for _, d := range docs {
		if _, ok := linked[d.ID]; !ok {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// MergeIDs unions two id lists, preserving first-seen order.
func MergeIDs(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, id := range existing {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range incoming {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// RemoveID returns ids without the given id, preserving order.
func RemoveID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

var docCountTitle = regexp.MustCompile(`^\d+ Documents?$`)

// IsGenericTitle reports whether a conversation still carries an
// auto-generated name and is therefore safe to rename from the first
// message. User-chosen names are never rewritten.
func IsGenericTitle(title string) bool {
	switch {
	case title == "New Chat":
		return true
	case strings.HasPrefix(title, "Document: "):
		return true
	case strings.HasSuffix(title, "Documents"):
		return true
	case docCountTitle.MatchString(title):
		return true
	}
	return false
}

// TitleFromMessage derives a short conversation title from the first
// message: the first three words, ellipsized when truncated.
func TitleFromMessage(message string) string {
	words := strings.Fields(message)
	if len(words) == 0 {
		return "New Chat"
	}
	if len(words) <= 3 {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:3], " ") + "..."
}

// TitleForUpload names a conversation created to hold uploaded files.
func TitleForUpload(filenames []string) string {
	if len(filenames) == 1 {
		return "Document: " + filenames[0]
	}
	return fmt.Sprintf("%d Documents", len(filenames))
}
