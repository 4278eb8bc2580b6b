// internal/core/query_params.go
package core

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Default and limit constants for pagination
const (
	DefaultLimit = 50
	MaxLimit     = 500
	DefaultOrder = "asc"
)

// ListQueryOptions holds parsed query parameters for list endpoints
type ListQueryOptions struct {
	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string
	SortOrder string // "asc" or "desc"
}

// DefaultListQueryOptions returns the options used when no query parameters are given.
func DefaultListQueryOptions() *ListQueryOptions {
	return &ListQueryOptions{Limit: DefaultLimit, SortOrder: DefaultOrder}
}

// ParseListQueryOptions extracts pagination and sorting options from query parameters.
// Returns the parsed options and any validation error.
func ParseListQueryOptions(queryParams url.Values) (*ListQueryOptions, error) {
	opts := DefaultListQueryOptions()

	// Parse limit
	if limitStr := queryParams.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, fmt.Errorf("invalid 'limit' parameter: must be an integer")
		}
		if limit < 1 {
			return nil, fmt.Errorf("invalid 'limit' parameter: must be at least 1")
		}
		if limit > MaxLimit {
			return nil, fmt.Errorf("invalid 'limit' parameter: maximum is %d", MaxLimit)
		}
		opts.Limit = limit
	}

	// Parse offset
	if offsetStr := queryParams.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, fmt.Errorf("invalid 'offset' parameter: must be an integer")
		}
		if offset < 0 {
			return nil, fmt.Errorf("invalid 'offset' parameter: must be non-negative")
		}
		opts.Offset = offset
	}

	// Parse sort column
	if sortBy := queryParams.Get("sort"); sortBy != "" {
		if !IsValidIdentifier(sortBy) {
			return nil, fmt.Errorf("invalid 'sort' parameter: '%s' is not a valid column name", sortBy)
		}
		opts.SortBy = sortBy
	}

	// Parse sort order
	if order := queryParams.Get("order"); order != "" {
		lowerOrder := strings.ToLower(order)
		if lowerOrder != "asc" && lowerOrder != "desc" {
			return nil, fmt.Errorf("invalid 'order' parameter: must be 'asc' or 'desc'")
		}
		opts.SortOrder = lowerOrder
	}

	return opts, nil
}
