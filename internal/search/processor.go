package search

import (
	"strings"

	"github.com/hyperjump/retriever/internal/models"
)

// ProcessQuery collapses whitespace in the query text, then validates the request and applies
// default sizes.
func ProcessQuery(req *models.QueryRequest, limits models.QueryLimits) error {
	req.Query = strings.Join(strings.Fields(req.Query), " ")
	return req.Normalize(limits)
}
