package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/safar/go-tienda/internal/models"
)

const MaxPageSize = 100

type OffsetPage struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

func NewOffsetPage(total int64, page, limit int) OffsetPage {
	totalPages := int(total) / limit
	if int(total)%limit > 0 {
		totalPages++
	}

	return OffsetPage{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}
}

type CursorPage struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// OrderCursor points at the last order of a page listed newest first.
type OrderCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

func EncodeCursor(cursor OrderCursor) string {
	data, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor returns nil for an empty cursor, meaning the first page.
func DecodeCursor(encoded string) (*OrderCursor, error) {
	if encoded == "" {
		return nil, nil
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	var cursor OrderCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	if cursor.ID == "" || cursor.CreatedAt.IsZero() {
		return nil, fmt.Errorf("decode cursor: incomplete cursor")
	}
	return &cursor, nil
}

// TrimCursorPage cuts orders fetched with a limit of limit+1 down to limit
// and describes the next page.
func TrimCursorPage(orders []models.Order, limit int) ([]models.Order, CursorPage) {
	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var page CursorPage
	page.HasMore = hasMore
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		page.NextCursor = EncodeCursor(OrderCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return orders, page
}
