package testkit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/tidwall/gjson"
	"github.com/xuri/excelize/v2"
)

// Fake Graph operations that can be made to fail with FailNext
const (
	OpToken         = "token"
	OpResolve       = "resolve"
	OpCreateFolder  = "folder.create"
	OpPutContent    = "content.put"
	OpGetContent    = "content.get"
	OpUploadSession = "upload.session"
	OpUploadChunk   = "upload.chunk"
	OpAddWorksheet  = "worksheets.add"
	OpAddTable      = "tables.add"
	OpAddRow        = "rows.add"
)

// GraphCounts tallies the objects a FakeGraph has created
type GraphCounts struct {
	Tokens         int
	Folders        int
	Workbooks      int
	Sheets         int
	Tables         int
	Rows           int
	UploadSessions int
	Downloads      int
}

type fakeItem struct {
	id      string
	path    string
	folder  bool
	content []byte
	sheets  []string
	tables  []*fakeTable
	cells   map[string][][]interface{}
}

type fakeTable struct {
	id      string
	name    string
	sheet   string
	address string
	rows    [][]interface{}
}

type fakeSession struct {
	path     string
	size     int64
	received []byte
}

// FakeGraph is an in-memory stand-in for the token endpoint and the drive,
// upload-session and workbook APIs of a single user.
type FakeGraph struct {
	Server *httptest.Server
	User   string

	mu       sync.Mutex
	items    map[string]*fakeItem
	byID     map[string]*fakeItem
	sessions map[string]*fakeSession
	failures map[string][]int
	hooks    map[string]func()
	counts   GraphCounts
	nextID   int
}

// NewFakeGraph starts a fake whose drive holds only the root folder
func NewFakeGraph(t testing.TB) *FakeGraph {
	t.Helper()
	g := &FakeGraph{
		User:     "relay@example.com",
		items:    map[string]*fakeItem{"": {id: "root", folder: true}},
		byID:     map[string]*fakeItem{},
		sessions: map[string]*fakeSession{},
		failures: map[string][]int{},
		hooks:    map[string]func(){},
	}
	g.Server = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.Server.Close)
	return g
}

// URL is the base address to use as both Graph base URL and authority
func (g *FakeGraph) URL() string {
	return g.Server.URL
}

// FailNext makes the next len(statuses) calls of op answer with statuses
func (g *FakeGraph) FailNext(op string, statuses ...int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = append(g.failures[op], statuses...)
}

// OnCall runs fn, without the fake's lock held, each time op is served
func (g *FakeGraph) OnCall(op string, fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks[op] = fn
}

// Counts returns a snapshot of the creation counters
func (g *FakeGraph) Counts() GraphCounts {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts
}

// Content returns the bytes stored at path, or nil
func (g *FakeGraph) Content(path string) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	if item, ok := g.items[path]; ok && !item.folder {
		return append([]byte(nil), item.content...)
	}
	return nil
}

// PutFile stores a file at path, creating parent folders
func (g *FakeGraph) PutFile(path string, content []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureParents(path)
	g.storeFile(path, content)
}

// Exists reports whether an item exists at path
func (g *FakeGraph) Exists(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.items[path]
	return ok
}

// Sheets lists the worksheet names of the workbook at path
func (g *FakeGraph) Sheets(path string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if item, ok := g.items[path]; ok {
		return append([]string(nil), item.sheets...)
	}
	return nil
}

// AddSheet adds a sheet with a header row to the workbook at path, as another
// writer would
func (g *FakeGraph) AddSheet(path, name, address string, header []interface{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if item, ok := g.items[path]; ok {
		item.sheets = append(item.sheets, name)
		item.cells[name+"!"+address] = [][]interface{}{header}
	}
}

// TableRows returns the rows appended to the named table of the workbook at path
func (g *FakeGraph) TableRows(path, table string) [][]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	item, ok := g.items[path]
	if !ok {
		return nil
	}
	for _, t := range item.tables {
		if t.name == table {
			return append([][]interface{}(nil), t.rows...)
		}
	}
	return nil
}

// Cells returns the values last written to a sheet range
func (g *FakeGraph) Cells(path, sheet, address string) [][]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if item, ok := g.items[path]; ok {
		return item.cells[sheet+"!"+address]
	}
	return nil
}

func (g *FakeGraph) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	p := r.URL.Path
	drivePrefix := "/users/" + g.User + "/drive/"

	switch {
	case strings.HasSuffix(p, "/oauth2/v2.0/token"):
		g.handle(w, OpToken, func() (int, interface{}) {
			g.counts.Tokens++
			return http.StatusOK, map[string]interface{}{
				"access_token": fmt.Sprintf("fake-token-%d", g.counts.Tokens),
				"expires_in":   3600,
			}
		})
	case strings.HasPrefix(p, "/upload/"):
		g.handle(w, OpUploadChunk, func() (int, interface{}) {
			return g.uploadChunk(strings.TrimPrefix(p, "/upload/"), r.Header.Get("Content-Range"), body)
		})
	case strings.HasPrefix(p, drivePrefix+"items/"):
		g.serveWorkbook(w, r.Method, strings.TrimPrefix(p, drivePrefix+"items/"), body)
	case strings.HasPrefix(p, drivePrefix+"root"):
		g.serveDrive(w, r.Method, strings.TrimPrefix(p, drivePrefix+"root"), body)
	default:
		writeGraphError(w, http.StatusBadRequest, "invalidRequest", "unknown route "+p)
	}
}

func (g *FakeGraph) serveDrive(w http.ResponseWriter, method, rest string, body []byte) {
	path, op := "", rest
	if strings.HasPrefix(rest, ":/") {
		inner := strings.TrimPrefix(rest, ":/")
		i := strings.LastIndex(inner, ":")
		if i < 0 {
			writeGraphError(w, http.StatusBadRequest, "invalidRequest", "unterminated path")
			return
		}
		path, op = inner[:i], inner[i+1:]
	}

	switch {
	case op == "" && method == http.MethodGet:
		g.handle(w, OpResolve, func() (int, interface{}) {
			item, ok := g.items[path]
			if !ok {
				return http.StatusNotFound, graphError("itemNotFound", "The resource could not be found.")
			}
			return http.StatusOK, itemJSON(item)
		})
	case op == "/children" && method == http.MethodPost:
		g.handle(w, OpCreateFolder, func() (int, interface{}) {
			if _, ok := g.items[path]; !ok {
				return http.StatusNotFound, graphError("itemNotFound", "parent missing")
			}
			full := joinFakePath(path, gjson.GetBytes(body, "name").String())
			if _, exists := g.items[full]; exists {
				return http.StatusConflict, graphError("nameAlreadyExists", "exists")
			}
			item := g.newItem(full)
			item.folder = true
			g.counts.Folders++
			return http.StatusCreated, itemJSON(item)
		})
	case op == "/content" && method == http.MethodPut:
		g.handle(w, OpPutContent, func() (int, interface{}) {
			if !g.parentExists(path) {
				return http.StatusNotFound, graphError("itemNotFound", "parent missing")
			}
			_, existed := g.items[path]
			item := g.storeFile(path, body)
			if !existed {
				g.counts.Workbooks++
				return http.StatusCreated, itemJSON(item)
			}
			return http.StatusOK, itemJSON(item)
		})
	case op == "/content" && method == http.MethodGet:
		g.handle(w, OpGetContent, func() (int, interface{}) {
			item, ok := g.items[path]
			if !ok || item.folder {
				return http.StatusNotFound, graphError("itemNotFound", "missing")
			}
			g.counts.Downloads++
			return http.StatusOK, append([]byte(nil), item.content...)
		})
	case op == "/createUploadSession" && method == http.MethodPost:
		g.handle(w, OpUploadSession, func() (int, interface{}) {
			if !g.parentExists(path) {
				return http.StatusNotFound, graphError("itemNotFound", "parent missing")
			}
			g.counts.UploadSessions++
			id := strconv.Itoa(g.counts.UploadSessions)
			g.sessions[id] = &fakeSession{path: path}
			return http.StatusOK, map[string]interface{}{
				"uploadUrl": g.Server.URL + "/upload/" + id + "?tempauth=x",
			}
		})
	default:
		writeGraphError(w, http.StatusBadRequest, "invalidRequest", method+" "+rest)
	}
}

func (g *FakeGraph) serveWorkbook(w http.ResponseWriter, method, rest string, body []byte) {
	parts := strings.SplitN(rest, "/workbook/", 2)
	if len(parts) != 2 {
		writeGraphError(w, http.StatusBadRequest, "invalidRequest", rest)
		return
	}
	itemID, call := parts[0], parts[1]

	g.mu.Lock()
	item, ok := g.byID[itemID]
	g.mu.Unlock()
	if !ok {
		writeGraphError(w, http.StatusNotFound, "itemNotFound", itemID)
		return
	}

	switch {
	case call == "worksheets" && method == http.MethodGet:
		g.handle(w, "", func() (int, interface{}) {
			values := []interface{}{}
			for i, s := range item.sheets {
				values = append(values, map[string]interface{}{"id": "{S" + strconv.Itoa(i) + "}", "name": s, "position": i})
			}
			return http.StatusOK, map[string]interface{}{"value": values}
		})
	case call == "worksheets/add" && method == http.MethodPost:
		g.handle(w, OpAddWorksheet, func() (int, interface{}) {
			name := gjson.GetBytes(body, "name").String()
			for _, s := range item.sheets {
				if strings.EqualFold(s, name) {
					return http.StatusConflict, graphError("ItemAlreadyExists", "sheet exists")
				}
			}
			item.sheets = append(item.sheets, name)
			g.counts.Sheets++
			return http.StatusCreated, map[string]interface{}{"name": name}
		})
	case call == "tables" && method == http.MethodGet:
		g.handle(w, "", func() (int, interface{}) {
			values := []interface{}{}
			for _, t := range item.tables {
				values = append(values, map[string]interface{}{"id": t.id, "name": t.name})
			}
			return http.StatusOK, map[string]interface{}{"value": values}
		})
	case strings.HasPrefix(call, "worksheets('") && strings.HasSuffix(call, "')/tables/add"):
		g.handle(w, OpAddTable, func() (int, interface{}) {
			sheet := strings.ReplaceAll(strings.TrimSuffix(strings.TrimPrefix(call, "worksheets('"), "')/tables/add"), "''", "'")
			if !contains(item.sheets, sheet) {
				return http.StatusNotFound, graphError("ItemNotFound", "sheet "+sheet)
			}
			g.nextID++
			t := &fakeTable{
				id:      "{T" + strconv.Itoa(g.nextID) + "}",
				name:    "Table" + strconv.Itoa(len(item.tables)+1),
				sheet:   sheet,
				address: gjson.GetBytes(body, "address").String(),
			}
			item.tables = append(item.tables, t)
			g.counts.Tables++
			return http.StatusCreated, map[string]interface{}{"id": t.id, "name": t.name}
		})
	case strings.HasPrefix(call, "worksheets('") && strings.Contains(call, "')/range(address='") && method == http.MethodPatch:
		g.handle(w, "", func() (int, interface{}) {
			sheet := strings.ReplaceAll(call[len("worksheets('"):strings.Index(call, "')/range(")], "''", "'")
			addr := strings.TrimSuffix(call[strings.Index(call, "address='")+len("address='"):], "')")
			var payload struct {
				Values [][]interface{} `json:"values"`
			}
			_ = json.Unmarshal(body, &payload)
			item.cells[sheet+"!"+addr] = payload.Values
			return http.StatusOK, map[string]interface{}{"address": sheet + "!" + addr}
		})
	case strings.HasPrefix(call, "tables/") && strings.HasSuffix(call, "/rows/add"):
		g.handle(w, OpAddRow, func() (int, interface{}) {
			ref := strings.TrimSuffix(strings.TrimPrefix(call, "tables/"), "/rows/add")
			t := findTable(item, ref)
			if t == nil {
				return http.StatusNotFound, graphError("ItemNotFound", "table "+ref)
			}
			var payload struct {
				Values [][]interface{} `json:"values"`
			}
			_ = json.Unmarshal(body, &payload)
			t.rows = append(t.rows, payload.Values...)
			g.counts.Rows += len(payload.Values)
			return http.StatusCreated, map[string]interface{}{"index": len(t.rows) - 1}
		})
	case strings.HasPrefix(call, "tables/") && method == http.MethodPatch:
		g.handle(w, "", func() (int, interface{}) {
			t := findTable(item, strings.TrimPrefix(call, "tables/"))
			if t == nil {
				return http.StatusNotFound, graphError("ItemNotFound", call)
			}
			t.name = gjson.GetBytes(body, "name").String()
			return http.StatusOK, map[string]interface{}{"id": t.id, "name": t.name}
		})
	default:
		writeGraphError(w, http.StatusBadRequest, "invalidRequest", method+" "+call)
	}
}

func (g *FakeGraph) uploadChunk(id, contentRange string, body []byte) (int, interface{}) {
	s, ok := g.sessions[id]
	if !ok {
		return http.StatusNotFound, graphError("itemNotFound", "session expired")
	}
	var start, end, total int64
	if _, err := fmt.Sscanf(contentRange, "bytes %d-%d/%d", &start, &end, &total); err != nil {
		return http.StatusBadRequest, graphError("invalidRange", contentRange)
	}
	if start != int64(len(s.received)) || end-start+1 != int64(len(body)) {
		return http.StatusRequestedRangeNotSatisfiable, graphError("invalidRange", contentRange)
	}
	s.size = total
	s.received = append(s.received, body...)
	if int64(len(s.received)) < total {
		return http.StatusAccepted, map[string]interface{}{
			"nextExpectedRanges": []string{fmt.Sprintf("%d-", len(s.received))},
		}
	}
	delete(g.sessions, id)
	_, existed := g.items[s.path]
	item := g.storeFile(s.path, s.received)
	if !existed {
		g.counts.Workbooks++
		return http.StatusCreated, itemJSON(item)
	}
	return http.StatusOK, itemJSON(item)
}

// handle serves one call: an injected failure when queued, otherwise fn
// under the fake's lock.
func (g *FakeGraph) handle(w http.ResponseWriter, op string, fn func() (int, interface{})) {
	g.mu.Lock()
	hook := g.hooks[op]
	g.mu.Unlock()
	if hook != nil {
		hook()
	}

	g.mu.Lock()
	if queue := g.failures[op]; op != "" && len(queue) > 0 {
		status := queue[0]
		g.failures[op] = queue[1:]
		g.mu.Unlock()
		writeGraphError(w, status, "injectedFailure", op)
		return
	}
	status, payload := fn()
	g.mu.Unlock()

	if raw, ok := payload.([]byte); ok {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(status)
		_, _ = w.Write(raw)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (g *FakeGraph) newItem(path string) *fakeItem {
	g.nextID++
	item := &fakeItem{id: "ITEM" + strconv.Itoa(g.nextID), path: path, cells: map[string][][]interface{}{}}
	g.items[path] = item
	g.byID[item.id] = item
	return item
}

// storeFile creates or replaces a file. A new workbook starts with the first
// sheet of the uploaded bytes.
func (g *FakeGraph) storeFile(path string, content []byte) *fakeItem {
	item, ok := g.items[path]
	if !ok {
		item = g.newItem(path)
		item.sheets = []string{firstSheetName(content)}
	}
	item.content = append([]byte(nil), content...)
	return item
}

func (g *FakeGraph) ensureParents(path string) {
	parts := strings.Split(path, "/")
	current := ""
	for _, part := range parts[:len(parts)-1] {
		current = joinFakePath(current, part)
		if _, ok := g.items[current]; !ok {
			g.newItem(current).folder = true
		}
	}
}

func (g *FakeGraph) parentExists(path string) bool {
	parent := ""
	if i := strings.LastIndex(path, "/"); i >= 0 {
		parent = path[:i]
	}
	item, ok := g.items[parent]
	return ok && item.folder
}

func firstSheetName(content []byte) string {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "Sheet1"
	}
	defer f.Close()
	if sheets := f.GetSheetList(); len(sheets) > 0 {
		return sheets[0]
	}
	return "Sheet1"
}

func findTable(item *fakeItem, ref string) *fakeTable {
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}
	for _, t := range item.tables {
		if t.id == ref || t.name == ref {
			return t
		}
	}
	return nil
}

func itemJSON(item *fakeItem) map[string]interface{} {
	out := map[string]interface{}{
		"id":     item.id,
		"name":   item.path[strings.LastIndex(item.path, "/")+1:],
		"webUrl": "https://fake.sharepoint/" + item.path,
		"size":   len(item.content),
		"eTag":   fmt.Sprintf("\"%s,%d\"", item.id, len(item.content)),
	}
	if item.folder {
		out["folder"] = map[string]interface{}{}
	}
	return out
}

func graphError(code, message string) map[string]interface{} {
	return map[string]interface{}{"error": map[string]interface{}{"code": code, "message": message}}
}

func writeGraphError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(graphError(code, message))
}

func joinFakePath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
