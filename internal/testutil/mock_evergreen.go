// Package testutil provides a mock Evergreen server for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

const (
	// PatchesPathPrefix is the REST project route prefix.
	PatchesPathPrefix = "/api/rest/v2/projects/"

	// GraphQLPath is the GraphQL route.
	GraphQLPath = "/graphql/query"
)

// MockPatch is a patch known to the mock server.
type MockPatch struct {
	ID          string
	Author      string
	Description string
	CreateTime  time.Time
	Alias       *string

	// Variants maps to variantsTasks; a nil entry is served as JSON null.
	Variants []*MockVariant
}

// MockVariant is one build variant of a MockPatch.
type MockVariant struct {
	Name  string
	Tasks []string
}

// MockEvergreen is a configurable mock of the Evergreen REST listing and
// GraphQL patch query. The API host is URL()+"/api" and the UI host is
// URL().
type MockEvergreen struct {
	server *httptest.Server

	mu sync.Mutex

	// Patches per project, newest first.
	projects map[string][]MockPatch

	// pageFailures makes the next n listing requests return status.
	pageFailures int
	pageStatus   int

	// detailFailures makes every lookup of an id return status.
	detailFailures map[string]int

	// graphqlErrors makes lookups of an id return a GraphQL error.
	graphqlErrors map[string]string

	// RelativeLinks serves next links as paths rather than absolute URLs.
	RelativeLinks bool

	pageRequests   int
	detailRequests map[string]int
	lastHeader     http.Header
}

// NewMockEvergreen starts a mock Evergreen server.
func NewMockEvergreen() *MockEvergreen {
	m := &MockEvergreen{
		projects:       make(map[string][]MockPatch),
		detailFailures: make(map[string]int),
		graphqlErrors:  make(map[string]string),
		detailRequests: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/rest/v2/projects/{project}/patches", m.handlePatches)
	mux.HandleFunc("POST "+GraphQLPath, m.handleGraphQL)
	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the UI host of the mock server.
func (m *MockEvergreen) URL() string {
	return m.server.URL
}

// APIURL returns the API host of the mock server.
func (m *MockEvergreen) APIURL() string {
	return m.server.URL + "/api"
}

// Close shuts down the mock server.
func (m *MockEvergreen) Close() {
	m.server.Close()
}

// AddPatches appends patches to a project listing. Patches must be
// added newest first.
func (m *MockEvergreen) AddPatches(project string, patches ...MockPatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[project] = append(m.projects[project], patches...)
}

// FailPages makes the next n listing requests fail with status.
func (m *MockEvergreen) FailPages(n, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageFailures = n
	m.pageStatus = status
}

// FailDetail makes every lookup of id fail with status.
func (m *MockEvergreen) FailDetail(id string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detailFailures[id] = status
}

// GraphQLErrorFor makes every lookup of id return a GraphQL error.
func (m *MockEvergreen) GraphQLErrorFor(id, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graphqlErrors[id] = message
}

// PageRequests returns the number of listing requests served.
func (m *MockEvergreen) PageRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageRequests
}

// DetailRequests returns the number of lookups made for id.
func (m *MockEvergreen) DetailRequests(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detailRequests[id]
}

// LastHeader returns the headers of the most recent request.
func (m *MockEvergreen) LastHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader
}

type restPatch struct {
	PatchID     string    `json:"patch_id"`
	Author      string    `json:"author"`
	CreateTime  time.Time `json:"create_time"`
	Description string    `json:"description"`
}

func (m *MockEvergreen) handlePatches(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.pageRequests++
	m.lastHeader = r.Header.Clone()
	if m.pageFailures > 0 {
		m.pageFailures--
		status := m.pageStatus
		m.mu.Unlock()
		http.Error(w, `{"error":"injected failure"}`, status)
		return
	}
	patches := m.projects[r.PathValue("project")]
	relative := m.RelativeLinks
	m.mu.Unlock()

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = 100
	}
	start, _ := strconv.Atoi(r.URL.Query().Get("start"))
	if start > len(patches) {
		start = len(patches)
	}
	end := min(start+limit, len(patches))

	page := make([]restPatch, 0, end-start)
	for _, p := range patches[start:end] {
		page = append(page, restPatch{
			PatchID:     p.ID,
			Author:      p.Author,
			CreateTime:  p.CreateTime,
			Description: p.Description,
		})
	}

	if end < len(patches) {
		next := fmt.Sprintf("%s?limit=%d&start=%d", r.URL.Path, limit, end)
		if !relative {
			next = m.server.URL + next
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, next))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(page)
}

type graphqlPatch struct {
	ID            string          `json:"id"`
	Description   string          `json:"description"`
	Author        string          `json:"author"`
	Alias         *string         `json:"alias"`
	VariantsTasks []*graphqlTasks `json:"variantsTasks"`
}

type graphqlTasks struct {
	Name  string   `json:"name"`
	Tasks []string `json:"tasks"`
}

func (m *MockEvergreen) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Variables struct {
			ID string `json:"id"`
		} `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	id := req.Variables.ID

	m.mu.Lock()
	m.detailRequests[id]++
	m.lastHeader = r.Header.Clone()
	status, failing := m.detailFailures[id]
	gqlErr, hasErr := m.graphqlErrors[id]
	var found *MockPatch
	for _, patches := range m.projects {
		for i := range patches {
			if patches[i].ID == id {
				found = &patches[i]
			}
		}
	}
	m.mu.Unlock()

	if failing {
		http.Error(w, `{"error":"injected failure"}`, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if hasErr {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":   map[string]any{"patch": nil},
			"errors": []map[string]string{{"message": gqlErr}},
		})
		return
	}

	if found == nil {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"patch": nil},
		})
		return
	}

	out := graphqlPatch{
		ID:          found.ID,
		Description: found.Description,
		Author:      found.Author,
		Alias:       found.Alias,
	}
	for _, v := range found.Variants {
		if v == nil {
			out.VariantsTasks = append(out.VariantsTasks, nil)
			continue
		}
		out.VariantsTasks = append(out.VariantsTasks, &graphqlTasks{Name: v.Name, Tasks: v.Tasks})
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{"patch": out},
	})
}

// Alias returns a pointer to s.
func Alias(s string) *string {
	return &s
}
