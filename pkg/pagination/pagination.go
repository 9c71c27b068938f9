package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidPageToken is returned when a page token cannot be decoded.
var ErrInvalidPageToken = errors.New("invalid_page_token")

// Cursor is the decoded form of an opaque page token.
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// PageInfo describes how to fetch the page after the current one.
type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return &Cursor{}, nil
	}

	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrInvalidPageToken
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, ErrInvalidPageToken
	}
	if cursor.Offset < 0 {
		return nil, ErrInvalidPageToken
	}

	return &cursor, nil
}

// BuildOffsetPageInfo slices data into one page starting at offset and reports
// whether more records follow.
func BuildOffsetPageInfo[T any](data []T, offset, limit int) ([]T, PageInfo, error) {
	if offset >= len(data) || limit <= 0 {
		return []T{}, PageInfo{HasMore: false}, nil
	}

	end := offset + limit
	if end >= len(data) {
		return data[offset:], PageInfo{HasMore: false}, nil
	}

	token, err := EncodeCursor(Cursor{Offset: end})
	if err != nil {
		return nil, PageInfo{}, err
	}
	return data[offset:end], PageInfo{NextPageToken: token, HasMore: true}, nil
}
