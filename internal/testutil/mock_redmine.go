// Package testutil provides an in-process Redmine server for tests.
package testutil

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
)

// Server-side paging limits of a stock Redmine.
const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// MockResponse is a canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// collection holds the records of one collection in insertion order.
type collection struct {
	item    string
	records []*etree.Element
	nextID  int64
}

// MockRedmine serves the Redmine XML API from memory:
//
//	GET    /<collection>.xml?offset=&limit=   paged list
//	POST   /<collection>.xml                  create, 201 with the stored record
//	GET    /<collection>/<id>.xml             read, 404 when missing
//	PUT    /<collection>/<id>.xml             update, 204
//	DELETE /<collection>/<id>.xml             delete, 204
type MockRedmine struct {
	server *httptest.Server

	mu          sync.RWMutex
	handlers    map[string]http.HandlerFunc
	collections map[string]*collection
	queued      []MockResponse
	apiKey      string
	oversize    bool

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
	requests          []string
}

// NewMockRedmine starts a mock server with empty projects, issues and users.
func NewMockRedmine() *MockRedmine {
	m := &MockRedmine{
		handlers: make(map[string]http.HandlerFunc),
		collections: map[string]*collection{
			"projects": {item: "project", nextID: 1},
			"issues":   {item: "issue", nextID: 1},
			"users":    {item: "user", nextID: 1},
		},
	}

	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the mock server URL.
func (m *MockRedmine) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockRedmine) Close() {
	m.server.Close()
}

// Reset clears tracking counters and queued responses.
func (m *MockRedmine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.requests = nil
	m.queued = nil
}

// RequireAPIKey makes every request without this X-Redmine-API-Key fail with 401.
func (m *MockRedmine) RequireAPIKey(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKey = key
}

// SetOversize makes list responses return one record more than requested,
// a protocol violation.
func (m *MockRedmine) SetOversize(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.oversize = on
}

// SetHandler overrides the handling of one exact path.
func (m *MockRedmine) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse overrides one exact path with a canned response.
func (m *MockRedmine) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, resp.write)
}

// FailNext answers the next n requests with resp, whatever their path.
func (m *MockRedmine) FailNext(n int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.queued = append(m.queued, resp)
	}
}

// Seed stores raw XML records, e.g. `<issue><id>3</id>...</issue>`. Records
// without an id get the next free one.
func (m *MockRedmine) Seed(collectionName string, records ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collectionName]
	if !ok {
		return fmt.Errorf("unknown collection %q", collectionName)
	}

	for _, raw := range records {
		doc := etree.NewDocument()
		if err := doc.ReadFromString(raw); err != nil {
			return fmt.Errorf("parse seed record: %w", err)
		}
		el := doc.Root()
		if el == nil || el.Tag != c.item {
			return fmt.Errorf("seed record for %s must be <%s>", collectionName, c.item)
		}
		c.store(el.Copy())
	}
	return nil
}

// SeedN stores n generated records numbered 1..n.
func (m *MockRedmine) SeedN(collectionName string, n int) error {
	records := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		switch collectionName {
		case "projects":
			records = append(records, fmt.Sprintf(
				`<project><id>%d</id><name>Project %d</name><identifier>project-%d</identifier></project>`, i, i, i))
		case "issues":
			records = append(records, fmt.Sprintf(
				`<issue><id>%d</id><project id="1" name="Project 1"/><tracker id="1" name="Bug"/><status id="1" name="New"/><priority id="4" name="Normal"/><subject>Issue %d</subject></issue>`, i, i))
		case "users":
			records = append(records, fmt.Sprintf(
				`<user><id>%d</id><login>user%d</login><firstname>User</firstname><lastname>%d</lastname><mail>user%d@example.com</mail></user>`, i, i, i, i))
		default:
			return fmt.Errorf("unknown collection %q", collectionName)
		}
	}
	return m.Seed(collectionName, records...)
}

// Count returns the number of stored records of a collection.
func (m *MockRedmine) Count(collectionName string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[collectionName]; ok {
		return len(c.records)
	}
	return 0
}

// Record returns the stored XML of one record, or "" when missing.
func (m *MockRedmine) Record(collectionName string, id int64) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collectionName]
	if !ok {
		return ""
	}
	if i := c.index(id); i >= 0 {
		doc := etree.NewDocument()
		doc.SetRoot(c.records[i].Copy())
		s, _ := doc.WriteToString()
		return s
	}
	return ""
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockRedmine) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockRedmine) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// Requests returns "METHOD /path?query" for every request received.
func (m *MockRedmine) Requests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.requests...)
}

func (m *MockRedmine) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	m.LastRequestHeader = r.Header.Clone()
	m.requests = append(m.requests, r.Method+" "+r.URL.RequestURI())
	if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
		m.ConditionalCount++
	}

	var queued *MockResponse
	if len(m.queued) > 0 {
		queued = &m.queued[0]
		m.queued = m.queued[1:]
	}
	handler, overridden := m.handlers[r.URL.Path]
	apiKey := m.apiKey
	m.mu.Unlock()

	switch {
	case queued != nil:
		queued.write(w, r)
	case apiKey != "" && r.Header.Get("X-Redmine-API-Key") != apiKey:
		w.WriteHeader(http.StatusUnauthorized)
	case overridden:
		handler(w, r)
	default:
		m.route(w, r)
	}
}

func (m *MockRedmine) route(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".xml")
	name, idPart, hasID := strings.Cut(path, "/")

	m.mu.RLock()
	_, known := m.collections[name]
	m.mu.RUnlock()
	if !known || !strings.HasSuffix(r.URL.Path, ".xml") {
		http.NotFound(w, r)
		return
	}

	if !hasID {
		switch r.Method {
		case http.MethodGet:
			m.list(w, r, name)
		case http.MethodPost:
			m.create(w, r, name)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		m.show(w, r, name, id)
	case http.MethodPut:
		m.update(w, r, name, id)
	case http.MethodDelete:
		m.delete(w, name, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (m *MockRedmine) list(w http.ResponseWriter, r *http.Request, name string) {
	q := r.URL.Query()
	offset, _ := strconv.ParseInt(q.Get("offset"), 10, 64)
	if offset < 0 {
		offset = 0
	}
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	m.mu.RLock()
	c := m.collections[name]
	matched := make([]*etree.Element, 0, len(c.records))
	for _, rec := range c.records {
		if matchesFilters(rec, q) {
			matched = append(matched, rec)
		}
	}
	oversize := m.oversize
	m.mu.RUnlock()

	n := limit
	if oversize {
		n++
	}
	total := int64(len(matched))
	start := min(offset, total)
	end := min(start+int64(n), total)

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(name)
	root.CreateAttr("total_count", strconv.FormatInt(total, 10))
	root.CreateAttr("offset", strconv.FormatInt(offset, 10))
	root.CreateAttr("limit", strconv.Itoa(limit))
	root.CreateAttr("type", "array")
	for _, rec := range matched[start:end] {
		root.AddChild(rec.Copy())
	}

	writeDocument(w, r, http.StatusOK, doc)
}

func (m *MockRedmine) show(w http.ResponseWriter, r *http.Request, name string, id int64) {
	m.mu.RLock()
	c := m.collections[name]
	i := c.index(id)
	var rec *etree.Element
	if i >= 0 {
		rec = c.records[i].Copy()
	}
	m.mu.RUnlock()

	if rec == nil {
		http.NotFound(w, r)
		return
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.SetRoot(rec)
	writeDocument(w, r, http.StatusOK, doc)
}

func (m *MockRedmine) create(w http.ResponseWriter, r *http.Request, name string) {
	el, ok := m.readRecord(w, r, name)
	if !ok {
		return
	}

	m.mu.Lock()
	stored := m.collections[name].store(el)
	out := stored.Copy()
	m.mu.Unlock()

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.SetRoot(out)
	writeDocument(w, nil, http.StatusCreated, doc)
}

func (m *MockRedmine) update(w http.ResponseWriter, r *http.Request, name string, id int64) {
	m.mu.RLock()
	exists := m.collections[name].index(id) >= 0
	m.mu.RUnlock()
	if !exists {
		http.NotFound(w, r)
		return
	}

	el, ok := m.readRecord(w, r, name)
	if !ok {
		return
	}

	m.mu.Lock()
	c := m.collections[name]
	if i := c.index(id); i >= 0 {
		current := c.records[i]
		for _, child := range el.ChildElements() {
			if prev := current.SelectElement(child.Tag); prev != nil {
				current.RemoveChild(prev)
			}
			current.AddChild(child.Copy())
		}
	}
	m.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (m *MockRedmine) delete(w http.ResponseWriter, name string, id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collections[name]
	i := c.index(id)
	if i < 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	c.records = append(c.records[:i], c.records[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

// readRecord parses a request body, turns write-format *_id fields into
// references and answers 422 when required fields are blank.
func (m *MockRedmine) readRecord(w http.ResponseWriter, r *http.Request, name string) (*etree.Element, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil || doc.Root() == nil {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}

	m.mu.RLock()
	item := m.collections[name].item
	m.mu.RUnlock()

	el := doc.Root()
	if el.Tag != item {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	normalizeReferences(el)

	var problems []string
	for _, field := range requiredFields[name] {
		if r.Method == http.MethodPut && el.SelectElement(field) == nil {
			continue
		}
		if child := el.SelectElement(field); child == nil || strings.TrimSpace(child.Text()) == "" && len(child.Attr) == 0 {
			problems = append(problems, fieldLabel(field)+" cannot be blank")
		}
	}
	if len(problems) > 0 {
		errDoc := etree.NewDocument()
		errDoc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
		root := errDoc.CreateElement("errors")
		root.CreateAttr("type", "array")
		for _, p := range problems {
			root.CreateElement("error").SetText(p)
		}
		writeDocument(w, nil, http.StatusUnprocessableEntity, errDoc)
		return nil, false
	}

	return el.Copy(), true
}

var requiredFields = map[string][]string{
	"projects": {"name", "identifier"},
	"issues":   {"project", "subject"},
	"users":    {"login", "firstname"},
}

func fieldLabel(field string) string {
	if field == "firstname" {
		return "First name"
	}
	return strings.ToUpper(field[:1]) + field[1:]
}

// normalizeReferences rewrites <project_id>1</project_id> as
// <project id="1"/>, which is how Redmine echoes references back.
func normalizeReferences(el *etree.Element) {
	for _, child := range el.ChildElements() {
		if !strings.HasSuffix(child.Tag, "_id") || child.Tag == "auth_source_id" {
			continue
		}
		ref := strings.TrimSuffix(child.Tag, "_id")
		if ref == "parent_issue" {
			ref = "parent"
		}
		id := strings.TrimSpace(child.Text())
		el.RemoveChild(child)
		el.CreateElement(ref).CreateAttr("id", id)
	}
}

// matchesFilters applies equality filters such as project_id=1 against a
// reference attribute or child text. Paging and presentation parameters
// and Redmine's wildcard status values are ignored.
func matchesFilters(rec *etree.Element, q map[string][]string) bool {
	for name, values := range q {
		if len(values) == 0 {
			continue
		}
		switch name {
		case "offset", "limit", "include", "sort", "key":
			continue
		}
		want := values[0]
		if want == "*" || want == "open" || want == "closed" {
			continue
		}

		if ref := rec.SelectElement(strings.TrimSuffix(name, "_id")); ref != nil && ref.SelectAttrValue("id", "") != "" {
			if ref.SelectAttrValue("id", "") != want {
				return false
			}
			continue
		}
		if child := rec.SelectElement(name); child != nil {
			if strings.TrimSpace(child.Text()) != want {
				return false
			}
			continue
		}
		return false
	}
	return true
}

func (c *collection) index(id int64) int {
	want := strconv.FormatInt(id, 10)
	for i, rec := range c.records {
		if idEl := rec.SelectElement("id"); idEl != nil && strings.TrimSpace(idEl.Text()) == want {
			return i
		}
	}
	return -1
}

// store appends a record, assigning the next id when it has none.
func (c *collection) store(el *etree.Element) *etree.Element {
	idEl := el.SelectElement("id")
	if idEl == nil {
		idEl = etree.NewElement("id")
		el.InsertChildAt(0, idEl)
		idEl.SetText(strconv.FormatInt(c.nextID, 10))
	}
	if id, err := strconv.ParseInt(strings.TrimSpace(idEl.Text()), 10, 64); err == nil && id >= c.nextID {
		c.nextID = id + 1
	}
	c.records = append(c.records, el)
	sort.SliceStable(c.records, func(i, j int) bool {
		return recordID(c.records[i]) < recordID(c.records[j])
	})
	return el
}

func recordID(el *etree.Element) int64 {
	if idEl := el.SelectElement("id"); idEl != nil {
		id, _ := strconv.ParseInt(strings.TrimSpace(idEl.Text()), 10, 64)
		return id
	}
	return 0
}

// writeDocument writes an XML document with an ETag. When r carries a
// matching If-None-Match the response is 304 without a body.
func writeDocument(w http.ResponseWriter, r *http.Request, status int, doc *etree.Document) {
	body, err := doc.WriteToBytes()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "max-age=0, private, must-revalidate")

	if r != nil && status == http.StatusOK && r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (resp MockResponse) write(w http.ResponseWriter, _ *http.Request) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// ListBody renders a collection response with an arbitrary declared total,
// for handlers that need to misbehave.
func ListBody(collectionName string, total, offset int64, limit int, records ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?><%s total_count="%d" offset="%d" limit="%d" type="array">`,
		collectionName, total, offset, limit)
	for _, rec := range records {
		b.WriteString(rec)
	}
	fmt.Fprintf(&b, "</%s>", collectionName)
	return b.String()
}

// NewThrottledResponse is a 429 asking the client to wait the given seconds.
func NewThrottledResponse(seconds int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Headers:    map[string]string{"Retry-After": strconv.Itoa(seconds)},
	}
}

// NewServerErrorResponse is a 500 with an HTML body, as Rails renders it.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       "<html><body><h1>Internal error</h1></body></html>",
		Headers:    map[string]string{"Content-Type": "text/html"},
	}
}
