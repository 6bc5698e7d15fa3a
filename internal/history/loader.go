// Package history loads a group's message backlog and keeps the per-view timeline.
package history

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"studygroup-chat/internal/models"
)

const (
	DefaultPage     = 0
	DefaultPageSize = 50
)

// Requester performs an authenticated JSON call. *apiclient.Client satisfies it.
type Requester interface {
	DoJSON(ctx context.Context, method, ref string, in, out any) error
}

// Loader fetches message history over REST.
type Loader struct {
	api Requester
}

func NewLoader(api Requester) *Loader {
	return &Loader{api: api}
}

type historyResponse struct {
	Message  string               `json:"message"`
	Messages []models.ChatMessage `json:"messages"`
}

// FetchHistory returns one page of the group's messages, oldest first. The server pages
// newest first, so page 0 holds the most recent messages. Negative page and non-positive
// size fall back to the defaults.
func (l *Loader) FetchHistory(ctx context.Context, groupID int64, page, size int) ([]models.ChatMessage, error) {
	if page < 0 {
		page = DefaultPage
	}
	if size <= 0 {
		size = DefaultPageSize
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	ref := fmt.Sprintf("chat/%d/messages?%s", groupID, q.Encode())

	var resp historyResponse
	if err := l.api.DoJSON(ctx, http.MethodGet, ref, nil, &resp); err != nil {
		log.Printf("history: fetch failed group_id=%d page=%d err=%v", groupID, page, err)
		return nil, fmt.Errorf("fetch history for group %d: %w", groupID, err)
	}

	msgs := resp.Messages
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	return msgs, nil
}
