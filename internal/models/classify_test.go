package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageTypeForMIME(t *testing.T) {
	cases := []struct {
		mime string
		want MessageType
	}{
		{"image/png", MessageTypeImage},
		{"IMAGE/JPEG", MessageTypeImage},
		{"application/pdf", MessageTypePDF},
		{"application/msword", MessageTypeDocument},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", MessageTypeDocument},
		{"application/vnd.oasis.opendocument.text", MessageTypeDocument},
		{"application/vnd.ms-excel", MessageTypeExcel},
		{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", MessageTypeExcel},
		{"application/vnd.ms-powerpoint", MessageTypePowerPoint},
		{"application/vnd.openxmlformats-officedocument.presentationml.presentation", MessageTypePowerPoint},
		{"application/zip", MessageTypeText},
		{"", MessageTypeText},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MessageTypeForMIME(tc.mime), tc.mime)
	}
}

func TestLooksLikeLink(t *testing.T) {
	assert.True(t, LooksLikeLink("https://example.com/notes?id=3"))
	assert.True(t, LooksLikeLink("  www.example.com "))
	assert.True(t, LooksLikeLink("example.org/path"))
	assert.False(t, LooksLikeLink("see you at 5"))
	assert.False(t, LooksLikeLink("   "))
}

func TestMessageTypeIsFile(t *testing.T) {
	assert.True(t, MessageTypePDF.IsFile())
	assert.False(t, MessageTypeLink.IsFile())
	assert.False(t, MessageTypeText.IsFile())
	assert.True(t, MessageTypeLink.Valid())
	assert.False(t, MessageType("VIDEO").Valid())
}
