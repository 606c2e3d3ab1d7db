package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dbradf/evg-patch-history/pkg/cache"
	"github.com/dbradf/evg-patch-history/pkg/pagination"
	"github.com/dbradf/evg-patch-history/pkg/patch"
)

const patchQuery = `query PatchQuery($id: String!) {
  patch(id: $id) {
    id
    description
    author
    alias
    variantsTasks {
      name
      tasks
    }
  }
}`

// apiPatch is an element of the REST patch listing.
type apiPatch struct {
	PatchID     string    `json:"patch_id"`
	Author      string    `json:"author"`
	CreateTime  time.Time `json:"create_time"`
	Description string    `json:"description"`
}

type graphqlRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type patchQueryResponse struct {
	Data *struct {
		Patch *apiPatchDetail `json:"patch"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

type apiPatchDetail struct {
	ID            string                `json:"id"`
	Description   string                `json:"description"`
	Author        string                `json:"author"`
	Alias         *string               `json:"alias"`
	VariantsTasks []*patch.VariantTasks `json:"variantsTasks"`
}

// toDetail drops the null variant entries the API may return.
func (p *apiPatchDetail) toDetail() *patch.Detail {
	detail := &patch.Detail{
		ID:          p.ID,
		Description: p.Description,
		Author:      p.Author,
		Alias:       p.Alias,
		Variants:    make([]patch.VariantTasks, 0, len(p.VariantsTasks)),
	}
	for _, vt := range p.VariantsTasks {
		if vt == nil {
			continue
		}
		detail.Variants = append(detail.Variants, *vt)
	}
	return detail
}

// StreamPatches lists the patches of a project, newest first. Pages are
// requested lazily as the sequence is consumed; a failed page ends the
// sequence with its error.
func (c *Client) StreamPatches(ctx context.Context, projectID string) iter.Seq2[patch.Summary, error] {
	first := fmt.Sprintf("%s/projects/%s/patches?limit=%s",
		c.restBase, url.PathEscape(projectID), strconv.Itoa(c.config.PageLimit))

	walker := pagination.NewWalker[patch.Summary](
		pagination.PageFetcherFunc[patch.Summary](c.fetchPatchPage),
		pagination.DefaultConfig(),
	)
	return walker.Items(ctx, first)
}

func (c *Client) fetchPatchPage(ctx context.Context, pageURL string) (pagination.Page[patch.Summary], error) {
	resp, err := c.do(ctx, "project_patches", http.MethodGet, pageURL, nil)
	if err != nil {
		return pagination.Page[patch.Summary]{}, err
	}

	var raw []apiPatch
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return pagination.Page[patch.Summary]{}, fmt.Errorf("decode patch page: %w", err)
	}

	page := pagination.Page[patch.Summary]{
		Items: make([]patch.Summary, 0, len(raw)),
	}
	for _, p := range raw {
		page.Items = append(page.Items, patch.Summary{
			ID:          p.PatchID,
			Author:      p.Author,
			CreatedAt:   p.CreateTime,
			Description: p.Description,
		})
	}

	if next := pagination.NextLink(resp.Header); next != "" {
		page.Next, err = resolveLink(pageURL, next)
		if err != nil {
			return pagination.Page[patch.Summary]{}, err
		}
	}
	return page, nil
}

// resolveLink resolves a possibly relative next link against the page
// it came from.
func resolveLink(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse next link %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

// FetchPatch resolves one patch through the GraphQL API. It returns
// ErrPatchNotFound when the query succeeds without a patch, and a
// *GraphQLError when the response carries errors.
func (c *Client) FetchPatch(ctx context.Context, patchID string) (*patch.Detail, error) {
	key := cache.Key{
		Operation: "PatchQuery",
		Params:    map[string]string{"id": patchID},
	}

	if detail, ok := c.cachedDetail(ctx, key); ok {
		return detail, nil
	}

	body, err := json.Marshal(graphqlRequest{
		Query:         patchQuery,
		OperationName: "PatchQuery",
		Variables:     map[string]any{"id": patchID},
	})
	if err != nil {
		return nil, fmt.Errorf("encode patch query: %w", err)
	}

	resp, err := c.do(ctx, "graphql_patch", http.MethodPost, c.graphqlURL, body)
	if err != nil {
		return nil, fmt.Errorf("fetch patch %s: %w", patchID, err)
	}

	var decoded patchQueryResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, fmt.Errorf("decode patch %s: %w", patchID, err)
	}

	if len(decoded.Errors) > 0 {
		gqlErr := &GraphQLError{}
		for _, e := range decoded.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		return nil, fmt.Errorf("fetch patch %s: %w", patchID, gqlErr)
	}

	if decoded.Data == nil || decoded.Data.Patch == nil {
		return nil, fmt.Errorf("%w: %s", ErrPatchNotFound, patchID)
	}

	detail := decoded.Data.Patch.toDetail()
	c.storeDetail(ctx, key, detail)
	return detail, nil
}

func (c *Client) cachedDetail(ctx context.Context, key cache.Key) (*patch.Detail, bool) {
	if c.cache == nil {
		return nil, false
	}

	detail, err := cache.Load[patch.Detail](ctx, c.cache, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
		}
		return nil, false
	}

	c.logger.Debug().Str("key", key.String()).Msg("Cache hit")
	return &detail, true
}

func (c *Client) storeDetail(ctx context.Context, key cache.Key, detail *patch.Detail) {
	if c.cache == nil {
		return
	}

	if err := cache.Store(ctx, c.cache, key, detail, c.config.CacheTTL); err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache patch")
		return
	}

	c.logger.Debug().
		Str("key", key.String()).
		Dur("ttl", c.config.CacheTTL).
		Msg("Cached patch")
}
