// Package attachments moves chat files between the client and the REST API.
package attachments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"studygroup-chat/internal/apiclient"
	"studygroup-chat/internal/models"
)

// MaxUploadSize is the largest file the API accepts.
const MaxUploadSize = 10 << 20

var (
	ErrEmptyFile    = errors.New("file is empty")
	ErrFileTooLarge = errors.New("file size must be less than 10MB")
)

// Metadata describes an upload. An empty ContentType is detected from the content.
type Metadata struct {
	ContentType string
	Caption     string
}

// Transfer uploads, downloads and shares files for group chats.
type Transfer struct {
	api         *apiclient.Client
	downloadDir string
}

func New(api *apiclient.Client, downloadDir string) *Transfer {
	return &Transfer{api: api, downloadDir: downloadDir}
}

// Upload stores a file with the API and returns its descriptor. The file is not announced
// to the group; see Announcement and Publish.
func (t *Transfer) Upload(ctx context.Context, groupID int64, fileName string, content io.Reader, meta Metadata) (models.FileDescriptor, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxUploadSize+1))
	if err != nil {
		return models.FileDescriptor{}, fmt.Errorf("read %s: %w", fileName, err)
	}
	switch {
	case len(data) == 0:
		return models.FileDescriptor{}, ErrEmptyFile
	case len(data) > MaxUploadSize:
		return models.FileDescriptor{}, ErrFileTooLarge
	}

	contentType := strings.TrimSpace(meta.ContentType)
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	body, formType, err := multipartBody(fileName, contentType, data, meta.Caption)
	if err != nil {
		return models.FileDescriptor{}, err
	}
	req, err := t.api.NewRequest(ctx, http.MethodPost, fmt.Sprintf("chat/%d/upload", groupID), body)
	if err != nil {
		return models.FileDescriptor{}, err
	}
	req.Header.Set("Content-Type", formType)

	var desc models.FileDescriptor
	if err := t.api.Do(req, &desc); err != nil {
		log.Printf("attachments: upload failed group_id=%d file=%s err=%v", groupID, fileName, err)
		return models.FileDescriptor{}, fmt.Errorf("upload %s: %w", fileName, err)
	}
	if desc.FileType == "" {
		desc.FileType = contentType
	}
	if desc.Caption == "" {
		desc.Caption = meta.Caption
	}
	return desc, nil
}

func multipartBody(fileName, contentType string, data []byte, caption string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": fileName,
	}))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("build upload form: %w", err)
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return nil, "", fmt.Errorf("build upload form: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("build upload form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// Download fetches fileURL with the caller's credential and saves it under the download
// directory. It returns the bytes and the saved path; the path is empty when no download
// directory is configured.
func (t *Transfer) Download(ctx context.Context, fileURL, fileName string) ([]byte, string, error) {
	data, err := t.api.Fetch(ctx, fileURL)
	if err != nil {
		log.Printf("attachments: download failed url=%s err=%v", fileURL, err)
		return nil, "", fmt.Errorf("download %s: %w", fileName, err)
	}
	if t.downloadDir == "" {
		return data, "", nil
	}

	if err := os.MkdirAll(t.downloadDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create download dir: %w", err)
	}
	path, err := uniquePath(t.downloadDir, safeName(fileName))
	if err != nil {
		return nil, "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, "", fmt.Errorf("save %s: %w", fileName, err)
	}
	return data, path, nil
}

type chatMessageResponse struct {
	Message     string             `json:"message"`
	ChatMessage models.ChatMessage `json:"chatMessage"`
}

// ShareLink posts a link message to the group. The server broadcasts it to subscribers.
func (t *Transfer) ShareLink(ctx context.Context, groupID int64, link, title string) (models.ChatMessage, error) {
	var resp chatMessageResponse
	req := models.ShareLinkRequest{URL: link, Title: title}
	if err := t.api.DoJSON(ctx, http.MethodPost, fmt.Sprintf("chat/%d/share-link", groupID), req, &resp); err != nil {
		return models.ChatMessage{}, fmt.Errorf("share link: %w", err)
	}
	return resp.ChatMessage, nil
}

// Publish announces an uploaded file through the REST API instead of the broker.
func (t *Transfer) Publish(ctx context.Context, groupID int64, desc models.FileDescriptor) (models.ChatMessage, error) {
	var resp chatMessageResponse
	req := models.FileUploadRequest{
		FileURL:  desc.FileURL,
		FileName: desc.FileName,
		FileType: desc.FileType,
		FileSize: desc.FileSize,
		Caption:  desc.Caption,
	}
	if err := t.api.DoJSON(ctx, http.MethodPost, fmt.Sprintf("chat/%d/upload-file", groupID), req, &resp); err != nil {
		return models.ChatMessage{}, fmt.Errorf("publish file: %w", err)
	}
	return resp.ChatMessage, nil
}

// Announcement builds the chat payload announcing an uploaded file.
func Announcement(desc models.FileDescriptor, senderID int64) models.SendRequest {
	content := strings.TrimSpace(desc.Caption)
	if content == "" {
		content = models.DefaultFileCaption
	}
	return models.SendRequest{
		SenderID: senderID,
		Content:  content,
		Type:     models.MessageTypeForMIME(desc.FileType),
		FileURL:  desc.FileURL,
		FileName: desc.FileName,
		FileType: desc.FileType,
		FileSize: desc.FileSize,
	}
}

func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "download"
	}
	return name
}

func uniquePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	path := filepath.Join(dir, name)
	for i := 1; ; i++ {
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		path = filepath.Join(dir, stem+" ("+strconv.Itoa(i)+")"+ext)
	}
}
