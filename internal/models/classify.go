package models

import (
	"regexp"
	"strings"
)

// DefaultFileCaption is used when a file is shared without a caption.
const DefaultFileCaption = "Shared a file"

var linkPattern = regexp.MustCompile(`(?i)^(https?://)?([\w-]+\.)+[\w-]+(/[\w- ./?%&=]*)?$`)

// MessageTypeForMIME maps a MIME type onto the message type used to render it.
// Unknown or empty types fall back to TEXT.
func MessageTypeForMIME(mimeType string) MessageType {
	t := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case t == "":
		return MessageTypeText
	case strings.HasPrefix(t, "image/"):
		return MessageTypeImage
	case t == "application/pdf":
		return MessageTypePDF
	case strings.Contains(t, "word"):
		return MessageTypeDocument
	// OOXML spreadsheet and slide types contain "officedocument", so they are
	// matched before the generic document rule.
	case strings.Contains(t, "excel") || strings.Contains(t, "spreadsheet"):
		return MessageTypeExcel
	case strings.Contains(t, "powerpoint") || strings.Contains(t, "presentation"):
		return MessageTypePowerPoint
	case strings.Contains(t, "document"):
		return MessageTypeDocument
	}
	return MessageTypeText
}

// LooksLikeLink reports whether a text message consists of a single URL.
func LooksLikeLink(content string) bool {
	c := strings.TrimSpace(content)
	if c == "" {
		return false
	}
	return linkPattern.MatchString(c) ||
		strings.HasPrefix(c, "http://") ||
		strings.HasPrefix(c, "https://") ||
		strings.HasPrefix(c, "www.")
}
