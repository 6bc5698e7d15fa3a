package attachments

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studygroup-chat/internal/apiclient"
	"studygroup-chat/internal/models"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func newTestTransfer(t *testing.T, dir string, handler http.HandlerFunc) (*Transfer, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	api, err := apiclient.New(srv.URL+"/api", apiclient.StaticToken("tok"))
	require.NoError(t, err)
	return New(api, dir), srv.URL
}

func TestUploadSendsMultipartAndDetectsType(t *testing.T) {
	var (
		gotPath, gotCaption, gotFileName, gotPartType string
		gotBytes                                      []byte
	)
	transfer, _ := newTestTransfer(t, "", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		gotBytes, _ = io.ReadAll(file)
		gotFileName = header.Filename
		gotPartType = header.Header.Get("Content-Type")
		gotCaption = r.FormValue("caption")

		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":  "File uploaded successfully",
			"fileUrl":  "/api/files/abc",
			"fileName": header.Filename,
			"fileType": gotPartType,
			"fileSize": header.Size,
			"caption":  gotCaption,
		})
	})

	desc, err := transfer.Upload(context.Background(), 42, "pixel.png", bytes.NewReader(pngHeader), Metadata{Caption: "look"})
	require.NoError(t, err)

	assert.Equal(t, "/api/chat/42/upload", gotPath)
	assert.Equal(t, "pixel.png", gotFileName)
	assert.Equal(t, "image/png", gotPartType)
	assert.Equal(t, "look", gotCaption)
	assert.Equal(t, pngHeader, gotBytes)

	assert.Equal(t, "/api/files/abc", desc.FileURL)
	assert.Equal(t, "image/png", desc.FileType)
	assert.Equal(t, int64(len(pngHeader)), desc.FileSize)
	assert.Equal(t, models.MessageTypeImage, Announcement(desc, 3).Type)
}

func TestUploadKeepsExplicitContentType(t *testing.T) {
	var gotPartType string
	transfer, _ := newTestTransfer(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		gotPartType = header.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`{"fileUrl":"/api/files/x","fileName":"notes.pdf","fileSize":4}`))
	})

	desc, err := transfer.Upload(context.Background(), 1, "notes.pdf", strings.NewReader("%PDF"), Metadata{ContentType: "application/pdf"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", gotPartType)
	assert.Equal(t, "application/pdf", desc.FileType)
}

func TestUploadRejectsEmptyAndOversizedFiles(t *testing.T) {
	calls := 0
	transfer, _ := newTestTransfer(t, "", func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	_, err := transfer.Upload(context.Background(), 1, "empty.txt", strings.NewReader(""), Metadata{})
	assert.ErrorIs(t, err, ErrEmptyFile)

	big := bytes.Repeat([]byte("a"), MaxUploadSize+1)
	_, err = transfer.Upload(context.Background(), 1, "big.txt", bytes.NewReader(big), Metadata{})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	assert.Zero(t, calls)
}

func TestUploadReportsServerError(t *testing.T) {
	transfer, _ := newTestTransfer(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"You are not a member of this group"}`))
	})

	_, err := transfer.Upload(context.Background(), 1, "a.txt", strings.NewReader("hello"), Metadata{})
	require.Error(t, err)
	assert.True(t, apiclient.IsStatus(err, http.StatusBadRequest))
}

func TestDownloadSavesWithoutOverwriting(t *testing.T) {
	dir := t.TempDir()
	var gotAuth string
	transfer, base := newTestTransfer(t, dir, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("payload"))
	})

	data, path, err := transfer.Download(context.Background(), base+"/api/files/abc", "../notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, filepath.Join(dir, "notes.txt"), path)

	_, second, err := transfer.Download(context.Background(), "/api/files/abc", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "notes (1).txt"), second)

	saved, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(saved))
}

func TestDownloadFailureIsReturned(t *testing.T) {
	dir := t.TempDir()
	transfer, _ := newTestTransfer(t, dir, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, _, err := transfer.Download(context.Background(), "/api/files/missing", "x.txt")
	require.Error(t, err)
	assert.True(t, apiclient.IsStatus(err, http.StatusNotFound))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestShareLinkReturnsStoredMessage(t *testing.T) {
	var body models.ShareLinkRequest
	transfer, _ := newTestTransfer(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/9/share-link", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"message":"Link shared successfully","chatMessage":{"id":5,"type":"LINK","content":"https://go.dev","fileName":"Go"}}`))
	})

	msg, err := transfer.ShareLink(context.Background(), 9, "https://go.dev", "Go")
	require.NoError(t, err)
	assert.Equal(t, models.ShareLinkRequest{URL: "https://go.dev", Title: "Go"}, body)
	assert.Equal(t, models.MessageTypeLink, msg.Type)
	assert.Equal(t, int64(5), msg.ID)
}

func TestPublishAnnouncesThroughREST(t *testing.T) {
	var body models.FileUploadRequest
	transfer, _ := newTestTransfer(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/4/upload-file", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"chatMessage":{"id":8,"type":"PDF","content":"Shared a file"}}`))
	})

	msg, err := transfer.Publish(context.Background(), 4, models.FileDescriptor{FileURL: "/api/files/f", FileName: "a.pdf", FileType: "application/pdf", FileSize: 10})
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", body.FileName)
	assert.Equal(t, models.MessageTypePDF, msg.Type)
}

func TestAnnouncement(t *testing.T) {
	cases := []struct {
		name     string
		desc     models.FileDescriptor
		wantType models.MessageType
		wantText string
	}{
		{"image with caption", models.FileDescriptor{FileType: "image/jpeg", Caption: "whiteboard"}, models.MessageTypeImage, "whiteboard"},
		{"pdf default caption", models.FileDescriptor{FileType: "application/pdf"}, models.MessageTypePDF, "Shared a file"},
		{"word", models.FileDescriptor{FileType: "application/msword", Caption: "  "}, models.MessageTypeDocument, "Shared a file"},
		{"spreadsheet", models.FileDescriptor{FileType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"}, models.MessageTypeExcel, "Shared a file"},
		{"slides", models.FileDescriptor{FileType: "application/vnd.ms-powerpoint"}, models.MessageTypePowerPoint, "Shared a file"},
		{"unknown", models.FileDescriptor{FileType: "application/zip"}, models.MessageTypeText, "Shared a file"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.desc.FileURL = "/api/files/1"
			tc.desc.FileName = "f"
			tc.desc.FileSize = 12
			req := Announcement(tc.desc, 7)
			assert.Equal(t, tc.wantType, req.Type)
			assert.Equal(t, tc.wantText, req.Content)
			assert.Equal(t, int64(7), req.SenderID)
			assert.Equal(t, "/api/files/1", req.FileURL)
			assert.Equal(t, tc.desc.FileType, req.FileType)
			assert.Equal(t, int64(12), req.FileSize)
		})
	}
}
