package models

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_core/utils"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type PageInfo struct {
	StartCursor string `json:"startCursor"`
	EndCursor   string `json:"endCursor"`
	HasNextPage *bool  `json:"hasNextPage,omitempty"`
}

// CompositeCursor is a row paged by (date, id), newest first.
type CompositeCursor interface {
	GetCursorTime() time.Time
	GetId() int
}

type Edge[N CompositeCursor] struct {
	Node   *N     `json:"node"`
	Cursor string `json:"cursor"`
}

type Connection[N CompositeCursor] struct {
	Edges    []Edge[N] `json:"edges"`
	PageInfo *PageInfo `json:"pageInfo"`
}

func DecodeCompositeCursor(cursor *string) (time.Time, int, error) {
	if cursor == nil || *cursor == "" {
		return time.Time{}, 0, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(*cursor)
	if err != nil {
		return time.Time{}, 0, err
	}
	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return time.Time{}, 0, fmt.Errorf("malformed cursor")
	}
	at, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, 0, err
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, 0, err
	}
	return at, id, nil
}

func EncodeCompositeCursor(at time.Time, id int) string {
	cursor := fmt.Sprintf("%s|%d", at.UTC().Format(time.RFC3339Nano), id)
	return base64.RawURLEncoding.EncodeToString([]byte(cursor))
}

// FetchPageCompositeCursor pages dbCtx newest first by cursorColumn then id, starting after the given cursor.
func FetchPageCompositeCursor[T CompositeCursor](dbCtx *gorm.DB, limit int, after *string, cursorColumn string) (*Connection[T], error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	at, cursorId, err := DecodeCompositeCursor(after)
	if err != nil {
		return nil, &ValidationError{Field: "after", Message: "invalid cursor"}
	}

	dbCtx = dbCtx.Order(cursorColumn + " DESC, id DESC")
	if cursorId > 0 {
		dbCtx = dbCtx.Where(
			// [1] = column
			fmt.Sprintf("%[1]s < ? OR (%[1]s = ? AND id < ?)", cursorColumn),
			at, at, cursorId)
	}

	nodes := make([]*T, 0)
	if err := dbCtx.Limit(limit + 1).Find(&nodes).Error; err != nil {
		return nil, err
	}

	hasNextPage := len(nodes) > limit
	if hasNextPage {
		nodes = nodes[:limit]
	}
	edges := make([]Edge[T], 0, len(nodes))
	for _, node := range nodes {
		edges = append(edges, Edge[T]{
			Node:   node,
			Cursor: EncodeCompositeCursor((*node).GetCursorTime(), (*node).GetId()),
		})
	}

	pageInfo := PageInfo{HasNextPage: utils.NewFalse()}
	if len(edges) > 0 {
		pageInfo = PageInfo{
			StartCursor: edges[0].Cursor,
			EndCursor:   edges[len(edges)-1].Cursor,
			HasNextPage: &hasNextPage,
		}
	}
	return &Connection[T]{Edges: edges, PageInfo: &pageInfo}, nil
}
