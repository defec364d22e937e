package api

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"todo-api/domain"
	"todo-api/storage"
)

type errorResponse struct {
	Error struct {
		Code    ErrorCode              `json:"code"`
		Message string                 `json:"message"`
		Details sonic.NoCopyRawMessage `json:"details"`
	} `json:"error"`
	RequestID string `json:"requestId"`
}

type testServer struct {
	e         *echo.Echo
	store     *storage.Store
	readiness *Readiness
	hook      *test.Hook
}

func newTestServer(t *testing.T, opts ...storage.Option) *testServer {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	store := storage.New(opts...)
	e := echo.New()
	readiness := Register(e, store, nil, logger)
	return &testServer{e: e, store: store, readiness: readiness, hook: hook}
}

func (s *testServer) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := sonic.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code ErrorCode) errorResponse {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d got %d: %s", status, rec.Code, rec.Body.String())
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Error.Code != code {
		t.Fatalf("expected code %s got %s", code, resp.Error.Code)
	}
	if resp.RequestID == "" {
		t.Fatal("expected requestId in error body")
	}
	return resp
}

func fieldErrors(t *testing.T, resp errorResponse) []FieldError {
	t.Helper()
	var details []FieldError
	if err := sonic.Unmarshal(resp.Error.Details, &details); err != nil {
		t.Fatalf("details are not field errors: %s", resp.Error.Details)
	}
	return details
}

func hasField(details []FieldError, path string) bool {
	for _, d := range details {
		if d.Path == path {
			return true
		}
	}
	return false
}

func TestTodoLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/v1/todos", `{"text":"  buy milk "}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[domain.Todo](t, rec)
	if created.Text != "buy milk" || created.Done {
		t.Fatalf("unexpected created todo: %#v", created)
	}
	if created.CreatedAt == "" || created.CreatedAt != created.UpdatedAt {
		t.Fatalf("unexpected timestamps: %#v", created)
	}
	path := "/v1/todos/" + strconv.FormatInt(created.ID, 10)

	rec = s.do(http.MethodGet, path, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if fetched := decodeBody[domain.Todo](t, rec); fetched != created {
		t.Fatalf("round trip mismatch: %#v vs %#v", fetched, created)
	}

	rec = s.do(http.MethodPatch, path, `{"done":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	patched := decodeBody[domain.Todo](t, rec)
	if !patched.Done || patched.Text != "buy milk" || patched.CreatedAt != created.CreatedAt {
		t.Fatalf("unexpected patched todo: %#v", patched)
	}
	if patched.UpdatedAt < created.UpdatedAt {
		t.Fatalf("updatedAt went backwards: %s < %s", patched.UpdatedAt, created.UpdatedAt)
	}

	rec = s.do(http.MethodDelete, path, "")
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Fatalf("expected empty 204 got %d: %q", rec.Code, rec.Body.String())
	}

	expectError(t, s.do(http.MethodGet, path, ""), http.StatusNotFound, CodeNotFound)
	expectError(t, s.do(http.MethodDelete, path, ""), http.StatusNotFound, CodeNotFound)
	expectError(t, s.do(http.MethodGet, path, ""), http.StatusNotFound, CodeNotFound)
}

func TestSeededStoreAssignsNextID(t *testing.T) {
	s := newTestServer(t, storage.WithSeed("seed"))

	rec := s.do(http.MethodPost, "/v1/todos", `{"text":"next"}`)
	if got := decodeBody[domain.Todo](t, rec).ID; got != 2 {
		t.Fatalf("expected id 2 after seed, got %d", got)
	}
}

func TestCreateValidation(t *testing.T) {
	tests := map[string]struct {
		body string
		path string
	}{
		"missing text":    {body: `{}`, path: "text"},
		"empty text":      {body: `{"text":""}`, path: "text"},
		"whitespace text": {body: `{"text":"   "}`, path: "text"},
		"too long":        {body: `{"text":"` + strings.Repeat("a", 201) + `"}`, path: "text"},
		"number text":     {body: `{"text":5}`, path: "text"},
		"null text":       {body: `{"text":null}`, path: "text"},
		"invalid json":    {body: `{"text":`, path: "body"},
		"array body":      {body: `[{"text":"a"}]`, path: "body"},
		"null body":       {body: `null`, path: "body"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(t)
			resp := expectError(t, s.do(http.MethodPost, "/v1/todos", tc.body), http.StatusBadRequest, CodeValidation)
			if details := fieldErrors(t, resp); !hasField(details, tc.path) {
				t.Fatalf("expected detail for %q, got %#v", tc.path, details)
			}
			if total := s.store.Stats().Total; total != 0 {
				t.Fatalf("expected nothing created, got %d", total)
			}
		})
	}
}

func TestCreateEmptyBody(t *testing.T) {
	s := newTestServer(t)
	expectError(t, s.do(http.MethodPost, "/v1/todos", ""), http.StatusBadRequest, CodeValidation)
}

func TestCreateAcceptsMaxLengthAfterTrim(t *testing.T) {
	s := newTestServer(t)
	text := strings.Repeat("é", 200)

	rec := s.do(http.MethodPost, "/v1/todos", `{"text":"  `+text+`  ","extra":"ignored"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[domain.Todo](t, rec).Text; got != text {
		t.Fatalf("unexpected text length %d", len([]rune(got)))
	}
}

func TestBulkCreate(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/v1/todos/bulk", `{"items":[{"text":"a"},{"text":"b"}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[bulkResponse](t, rec)
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Items))
	}
	a, b := resp.Items[0], resp.Items[1]
	if a.Text != "a" || b.Text != "b" {
		t.Fatalf("unexpected order: %#v", resp.Items)
	}
	if b.ID != a.ID+1 {
		t.Fatalf("expected consecutive ids, got %d and %d", a.ID, b.ID)
	}
	if a.CreatedAt != b.CreatedAt {
		t.Fatalf("expected shared createdAt, got %s and %s", a.CreatedAt, b.CreatedAt)
	}
}

func TestBulkCreateRejectsWholeBatch(t *testing.T) {
	s := newTestServer(t)

	resp := expectError(t, s.do(http.MethodPost, "/v1/todos/bulk", `{"items":[{"text":"a"},{"text":"  "},"nope"]}`),
		http.StatusBadRequest, CodeValidation)
	details := fieldErrors(t, resp)
	if !hasField(details, "items.1.text") || !hasField(details, "items.2") {
		t.Fatalf("unexpected details: %#v", details)
	}
	if total := s.store.Stats().Total; total != 0 {
		t.Fatalf("expected no partial creation, got %d todos", total)
	}
}

func TestBulkCreateItemCountBounds(t *testing.T) {
	many := make([]string, 101)
	for i := range many {
		many[i] = `{"text":"x"}`
	}
	tests := map[string]string{
		"missing":  `{}`,
		"empty":    `{"items":[]}`,
		"too many": `{"items":[` + strings.Join(many, ",") + `]}`,
		"object":   `{"items":{"text":"a"}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(t)
			resp := expectError(t, s.do(http.MethodPost, "/v1/todos/bulk", body), http.StatusBadRequest, CodeValidation)
			if !hasField(fieldErrors(t, resp), "items") {
				t.Fatalf("expected items detail, got %s", resp.Error.Details)
			}
		})
	}

	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/v1/todos/bulk", `{"items":[`+strings.Join(many[:100], ",")+`]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 100 items to be accepted, got %d", rec.Code)
	}
}

func TestReplace(t *testing.T) {
	s := newTestServer(t)
	created := s.store.Create("old")
	path := "/v1/todos/" + strconv.FormatInt(created.ID, 10)

	resp := expectError(t, s.do(http.MethodPut, path, `{"text":"new"}`), http.StatusBadRequest, CodeValidation)
	if !hasField(fieldErrors(t, resp), "done") {
		t.Fatalf("expected done detail, got %s", resp.Error.Details)
	}
	expectError(t, s.do(http.MethodPut, path, `{"text":"new","done":"yes"}`), http.StatusBadRequest, CodeValidation)

	rec := s.do(http.MethodPut, path, `{"text":" new ","done":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	replaced := decodeBody[domain.Todo](t, rec)
	if replaced.ID != created.ID || replaced.Text != "new" || !replaced.Done || replaced.CreatedAt != created.CreatedAt {
		t.Fatalf("unexpected replaced todo: %#v", replaced)
	}

	expectError(t, s.do(http.MethodPut, "/v1/todos/999", `{"text":"x","done":false}`), http.StatusNotFound, CodeNotFound)
}

func TestPatchValidation(t *testing.T) {
	s := newTestServer(t)
	created := s.store.Create("keep")
	path := "/v1/todos/" + strconv.FormatInt(created.ID, 10)

	resp := expectError(t, s.do(http.MethodPatch, path, `{}`), http.StatusBadRequest, CodeValidation)
	if !strings.Contains(string(resp.Error.Details), "At least one field required") {
		t.Fatalf("unexpected details: %s", resp.Error.Details)
	}
	expectError(t, s.do(http.MethodPatch, path, `{"text":""}`), http.StatusBadRequest, CodeValidation)
	expectError(t, s.do(http.MethodPatch, path, `{"done":null}`), http.StatusBadRequest, CodeValidation)
	expectError(t, s.do(http.MethodPatch, "/v1/todos/999", `{"done":true}`), http.StatusNotFound, CodeNotFound)

	if got, _ := s.store.Get(created.ID); got != created {
		t.Fatalf("expected rejected patches to leave todo untouched, got %#v", got)
	}

	rec := s.do(http.MethodPatch, path, `{"text":"changed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if got := decodeBody[domain.Todo](t, rec); got.Text != "changed" || got.Done {
		t.Fatalf("unexpected patched todo: %#v", got)
	}
}

func TestMalformedID(t *testing.T) {
	s := newTestServer(t)
	for _, id := range []string{"abc", "0", "-1", "1.5"} {
		resp := expectError(t, s.do(http.MethodGet, "/v1/todos/"+id, ""), http.StatusBadRequest, CodeValidation)
		if !hasField(fieldErrors(t, resp), "id") {
			t.Fatalf("expected id detail for %q, got %s", id, resp.Error.Details)
		}
	}
}

func TestListDoneFilter(t *testing.T) {
	s := newTestServer(t)
	for i, done := range []bool{true, false, true} {
		todo := s.store.Create("todo " + strconv.Itoa(i))
		d := done
		if _, err := s.store.Patch(todo.ID, nil, &d); err != nil {
			t.Fatalf("patch: %v", err)
		}
	}

	rec := s.do(http.MethodGet, "/v1/todos?done=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	page := decodeBody[domain.Page](t, rec)
	if len(page.Items) != 2 || page.Meta.Total != 2 {
		t.Fatalf("expected 2 done todos, got %#v", page)
	}
	for _, item := range page.Items {
		if !item.Done {
			t.Fatalf("unexpected pending todo in result: %#v", item)
		}
	}

	resp := expectError(t, s.do(http.MethodGet, "/v1/todos?done=maybe", ""), http.StatusBadRequest, CodeValidation)
	if !hasField(fieldErrors(t, resp), "done") {
		t.Fatalf("expected done detail, got %s", resp.Error.Details)
	}
}

func TestListPagination(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 5; i++ {
		s.store.Create("todo " + strconv.Itoa(i))
	}

	page := decodeBody[domain.Page](t, s.do(http.MethodGet, "/v1/todos?limit=2&offset=4", ""))
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(page.Items))
	}
	want := domain.PageMeta{Total: 5, Limit: 2, Offset: 4, HasNext: false, HasPrev: true}
	if page.Meta != want {
		t.Fatalf("unexpected meta: %#v", page.Meta)
	}

	page = decodeBody[domain.Page](t, s.do(http.MethodGet, "/v1/todos?limit=500&offset=-3", ""))
	if page.Meta.Limit != domain.MaxLimit || page.Meta.Offset != 0 || len(page.Items) != 5 {
		t.Fatalf("expected clamped limit/offset, got %#v", page.Meta)
	}

	page = decodeBody[domain.Page](t, s.do(http.MethodGet, "/v1/todos", ""))
	if page.Meta.Limit != domain.DefaultLimit || page.Meta.HasNext || page.Meta.HasPrev {
		t.Fatalf("unexpected default meta: %#v", page.Meta)
	}

	expectError(t, s.do(http.MethodGet, "/v1/todos?limit=abc", ""), http.StatusBadRequest, CodeValidation)
	expectError(t, s.do(http.MethodGet, "/v1/todos?offset=1e3", ""), http.StatusBadRequest, CodeValidation)
}

func TestListSearchAndSort(t *testing.T) {
	s := newTestServer(t)
	s.store.BulkCreate([]string{"Buy milk", "walk dog", "milkshake"})

	page := decodeBody[domain.Page](t, s.do(http.MethodGet, "/v1/todos?q=MILK&sort=id&order=desc", ""))
	if len(page.Items) != 2 || page.Items[0].Text != "milkshake" || page.Items[1].Text != "Buy milk" {
		t.Fatalf("unexpected search result: %#v", page.Items)
	}

	page = decodeBody[domain.Page](t, s.do(http.MethodGet, "/v1/todos?sort=bogus&order=sideways", ""))
	for i, item := range page.Items {
		if item.ID != int64(i+1) {
			t.Fatalf("expected fallback to id asc, got %#v", page.Items)
		}
	}
}

func TestReadsDoNotMutate(t *testing.T) {
	s := newTestServer(t)
	s.store.BulkCreate([]string{"a", "b"})

	first := s.do(http.MethodGet, "/v1/todos?sort=createdAt&order=desc", "").Body.String()
	stats := s.do(http.MethodGet, "/v1/todos/stats", "").Body.String()
	s.do(http.MethodGet, "/v1/todos/1", "")

	if again := s.do(http.MethodGet, "/v1/todos?sort=createdAt&order=desc", "").Body.String(); again != first {
		t.Fatalf("listing changed between reads:\n%s\n%s", first, again)
	}
	if again := s.do(http.MethodGet, "/v1/todos/stats", "").Body.String(); again != stats {
		t.Fatalf("stats changed between reads:\n%s\n%s", stats, again)
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(t)
	s.store.BulkCreate([]string{"a", "b", "c"})
	done := true
	if _, err := s.store.Patch(1, nil, &done); err != nil {
		t.Fatalf("patch: %v", err)
	}

	rec := s.do(http.MethodGet, "/v1/todos/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if got := decodeBody[domain.Stats](t, rec); got != (domain.Stats{Total: 3, Done: 1, Pending: 2}) {
		t.Fatalf("unexpected stats: %#v", got)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/v1/todos/42", "", echo.HeaderXRequestID, "req-123")
	if got := rec.Header().Get(echo.HeaderXRequestID); got != "req-123" {
		t.Fatalf("expected inbound request id to be echoed, got %q", got)
	}
	if resp := expectError(t, rec, http.StatusNotFound, CodeNotFound); resp.RequestID != "req-123" {
		t.Fatalf("expected request id in body, got %q", resp.RequestID)
	}

	rec = s.do(http.MethodGet, "/healthz", "")
	generated := rec.Header().Get(echo.HeaderXRequestID)
	if _, err := uuid.Parse(generated); err != nil {
		t.Fatalf("expected generated uuid request id, got %q", generated)
	}
}

func TestUnmatchedRoute(t *testing.T) {
	s := newTestServer(t)

	resp := expectError(t, s.do(http.MethodGet, "/v2/nothing", ""), http.StatusNotFound, CodeNotFound)
	if !strings.Contains(resp.Error.Message, "/v2/nothing") {
		t.Fatalf("unexpected message: %s", resp.Error.Message)
	}
	expectError(t, s.do(http.MethodPost, "/healthz", ""), http.StatusNotFound, CodeNotFound)
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz: %d %q", rec.Code, rec.Body.String())
	}
	if rec := s.do(http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK || rec.Body.String() != "ready" {
		t.Fatalf("unexpected readyz: %d %q", rec.Code, rec.Body.String())
	}
	s.readiness.SetReady(false)
	if rec := s.do(http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while not ready, got %d", rec.Code)
	}
}

func TestOpenAPIDocument(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/v1/openapi.json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	doc := decodeBody[map[string]any](t, rec)
	if doc["openapi"] != "3.0.3" {
		t.Fatalf("unexpected openapi version: %v", doc["openapi"])
	}
	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		t.Fatalf("missing paths: %#v", doc)
	}
	for _, p := range []string{"/v1/todos", "/v1/todos/stats", "/v1/todos/bulk", "/v1/todos/{id}", "/healthz", "/readyz"} {
		if _, ok := paths[p]; !ok {
			t.Fatalf("missing path %s", p)
		}
	}
}

type panickingStore struct {
	*storage.Store
}

func (panickingStore) Stats() domain.Stats {
	panic("boom")
}

func TestPanicBecomesInternalError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	e := echo.New()
	Register(e, panickingStore{Store: storage.New()}, nil, logger)

	req := httptest.NewRequest(http.MethodGet, "/v1/todos/stats", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	resp := expectError(t, rec, http.StatusInternalServerError, CodeInternal)
	if strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("internal detail leaked to caller: %s", rec.Body.String())
	}
	if resp.Error.Message != "Internal server error" {
		t.Fatalf("unexpected message: %s", resp.Error.Message)
	}

	var sawPanic, sawFailure bool
	for _, entry := range hook.AllEntries() {
		switch entry.Message {
		case "request.panic":
			sawPanic = entry.Data["request_id"] == resp.RequestID
		case "request.failed":
			sawFailure = strings.Contains(entry.Data["error"].(string), "boom")
		}
	}
	if !sawPanic || !sawFailure {
		t.Fatalf("expected panic and failure log entries, got %d entries", len(hook.AllEntries()))
	}
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestGzipRequestBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/todos", bytes.NewReader(gzipBytes(t, `{"text":"zipped"}`)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[domain.Todo](t, rec).Text; got != "zipped" {
		t.Fatalf("unexpected text: %q", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/todos", strings.NewReader("not gzip"))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	expectError(t, rec, http.StatusBadRequest, CodeValidation)
}

func TestBodyTooLarge(t *testing.T) {
	s := newTestServer(t)
	body := `{"text":"a","pad":"` + strings.Repeat("x", maxBodySize) + `"}`

	resp := expectError(t, s.do(http.MethodPost, "/v1/todos", body), http.StatusBadRequest, CodeValidation)
	if !hasField(fieldErrors(t, resp), "body") {
		t.Fatalf("expected body detail, got %s", resp.Error.Details)
	}
}

func newCORSServer(t *testing.T) *echo.Echo {
	t.Helper()
	logger, _ := test.NewNullLogger()
	e := echo.New()
	Register(e, storage.New(), nil, logger, WithCORS("https://app.example"))
	return e
}

func TestCORSPreflightCarriesRequestID(t *testing.T) {
	e := newCORSServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/todos", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatalf("expected request id on preflight response")
	}
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "https://app.example" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestOptionsToUnknownPathIsNotFound(t *testing.T) {
	e := newCORSServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/nope", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	resp := expectError(t, rec, http.StatusNotFound, CodeNotFound)
	if resp.RequestID == "" || resp.RequestID != rec.Header().Get(echo.HeaderXRequestID) {
		t.Fatalf("request id mismatch: body %q header %q", resp.RequestID, rec.Header().Get(echo.HeaderXRequestID))
	}
}

func TestCreateRejectsInvalidUTF8(t *testing.T) {
	s := newTestServer(t)

	resp := expectError(t, s.do(http.MethodPost, "/v1/todos", "{\"text\":\"a\xffb\"}"), http.StatusBadRequest, CodeValidation)
	if !hasField(fieldErrors(t, resp), "text") {
		t.Fatalf("expected text detail, got %s", resp.Error.Details)
	}
	if got := s.store.Stats().Total; got != 0 {
		t.Fatalf("expected nothing stored, got %d", got)
	}
}

func TestCreateAndGetEncodeTextIdentically(t *testing.T) {
	s := newTestServer(t)

	created := s.do(http.MethodPost, "/v1/todos", `{"text":"<b>&"}`)
	if created.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", created.Code, created.Body.String())
	}
	fetched := s.do(http.MethodGet, "/v1/todos/1", "")
	if fetched.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", fetched.Code, fetched.Body.String())
	}

	const want = `"text":"\u003cb\u003e\u0026"`
	for name, body := range map[string]string{"create": created.Body.String(), "get": fetched.Body.String()} {
		if !strings.Contains(body, want) {
			t.Fatalf("%s body %s does not contain %s", name, body, want)
		}
	}
	if got := decodeBody[domain.Todo](t, fetched).Text; got != "<b>&" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestGzipBodyInflatingPastLimit(t *testing.T) {
	s := newTestServer(t)
	body := `{"text":"a","pad":"` + strings.Repeat("x", maxBodySize) + `"}`

	req := httptest.NewRequest(http.MethodPost, "/v1/todos", bytes.NewReader(gzipBytes(t, body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	resp := expectError(t, rec, http.StatusBadRequest, CodeValidation)
	if !hasField(fieldErrors(t, resp), "body") {
		t.Fatalf("expected body detail, got %s", resp.Error.Details)
	}
}
