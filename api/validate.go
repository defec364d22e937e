package api

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"todo-api/domain"
)

type jsonObject map[string]sonic.NoCopyRawMessage

var jsonNull = []byte("null")

// decodeObject reads a size-capped JSON object body. Unknown keys are kept
// and simply never looked at.
func decodeObject(c echo.Context) (jsonObject, error) {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize+1))
	if err != nil {
		var he *echo.HTTPError
		var apiErr *APIError
		if errors.As(err, &he) || errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, NewValidationError(FieldError{Path: "body", Message: "Unreadable request body"})
	}
	if len(data) > maxBodySize {
		return nil, NewValidationError(FieldError{Path: "body", Message: "Request body too large"})
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, NewValidationError(FieldError{Path: "body", Message: "Required"})
	}
	return parseObject(data, "body")
}

func parseObject(data []byte, path string) (jsonObject, error) {
	if !sonic.Valid(data) {
		return nil, NewValidationError(FieldError{Path: path, Message: "Invalid JSON"})
	}
	var obj jsonObject
	if err := sonic.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil, NewValidationError(FieldError{Path: path, Message: "Expected object"})
	}
	return obj, nil
}

func isNull(raw []byte) bool {
	return bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// textField reads and normalises a text value. ok is false when the field
// is absent or invalid; invalid values append to errs.
func textField(obj jsonObject, prefix string, required bool, errs *[]FieldError) (string, bool) {
	path := joinPath(prefix, "text")
	raw, present := obj["text"]
	if !present {
		if required {
			*errs = append(*errs, FieldError{Path: path, Message: "Required"})
		}
		return "", false
	}
	var s string
	if isNull(raw) || sonic.Unmarshal(raw, &s) != nil {
		*errs = append(*errs, FieldError{Path: path, Message: "Expected string"})
		return "", false
	}
	s = strings.TrimSpace(s)
	switch {
	case !utf8.ValidString(s):
		*errs = append(*errs, FieldError{Path: path, Message: "Text must be valid UTF-8"})
		return "", false
	case s == "":
		*errs = append(*errs, FieldError{Path: path, Message: "Text must not be empty"})
		return "", false
	case utf8.RuneCountInString(s) > domain.MaxTextLength:
		*errs = append(*errs, FieldError{Path: path, Message: "Text must be at most " + strconv.Itoa(domain.MaxTextLength) + " characters"})
		return "", false
	}
	return s, true
}

func doneField(obj jsonObject, required bool, errs *[]FieldError) (bool, bool) {
	raw, present := obj["done"]
	if !present {
		if required {
			*errs = append(*errs, FieldError{Path: "done", Message: "Required"})
		}
		return false, false
	}
	var b bool
	if isNull(raw) || sonic.Unmarshal(raw, &b) != nil {
		*errs = append(*errs, FieldError{Path: "done", Message: "Expected boolean"})
		return false, false
	}
	return b, true
}

func parseCreate(obj jsonObject) (string, error) {
	var errs []FieldError
	text, _ := textField(obj, "", true, &errs)
	if len(errs) > 0 {
		return "", NewValidationError(errs...)
	}
	return text, nil
}

// parseBulk validates every item before returning, so a single bad item
// rejects the whole batch.
func parseBulk(obj jsonObject) ([]string, error) {
	raw, present := obj["items"]
	if !present {
		return nil, NewValidationError(FieldError{Path: "items", Message: "Required"})
	}
	var items []sonic.NoCopyRawMessage
	if isNull(raw) || sonic.Unmarshal(raw, &items) != nil {
		return nil, NewValidationError(FieldError{Path: "items", Message: "Expected array"})
	}
	switch {
	case len(items) == 0:
		return nil, NewValidationError(FieldError{Path: "items", Message: "Must contain at least 1 item"})
	case len(items) > domain.MaxBulkItems:
		return nil, NewValidationError(FieldError{Path: "items", Message: "Must contain at most " + strconv.Itoa(domain.MaxBulkItems) + " items"})
	}

	var errs []FieldError
	texts := make([]string, 0, len(items))
	for i, item := range items {
		prefix := "items." + strconv.Itoa(i)
		var itemObj jsonObject
		if isNull(item) || sonic.Unmarshal(item, &itemObj) != nil || itemObj == nil {
			errs = append(errs, FieldError{Path: prefix, Message: "Expected object"})
			continue
		}
		if text, ok := textField(itemObj, prefix, true, &errs); ok {
			texts = append(texts, text)
		}
	}
	if len(errs) > 0 {
		return nil, NewValidationError(errs...)
	}
	return texts, nil
}

func parseReplace(obj jsonObject) (string, bool, error) {
	var errs []FieldError
	text, _ := textField(obj, "", true, &errs)
	done, _ := doneField(obj, true, &errs)
	if len(errs) > 0 {
		return "", false, NewValidationError(errs...)
	}
	return text, done, nil
}

func parsePatch(obj jsonObject) (*string, *bool, error) {
	var errs []FieldError
	_, hasText := obj["text"]
	_, hasDone := obj["done"]
	if !hasText && !hasDone {
		return nil, nil, NewValidationError(FieldError{Path: "body", Message: "At least one field required"})
	}
	var textPtr *string
	var donePtr *bool
	if text, ok := textField(obj, "", false, &errs); ok {
		textPtr = &text
	}
	if done, ok := doneField(obj, false, &errs); ok {
		donePtr = &done
	}
	if len(errs) > 0 {
		return nil, nil, NewValidationError(errs...)
	}
	return textPtr, donePtr, nil
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, NewValidationError(FieldError{Path: "id", Message: "Expected positive integer"})
	}
	return id, nil
}

// parseListQuery applies defaults and clamping. An unrecognised sort key
// or order silently falls back, while a bad done literal is rejected.
func parseListQuery(c echo.Context) (domain.ListQuery, error) {
	q := domain.DefaultListQuery()
	var errs []FieldError

	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, FieldError{Path: "limit", Message: "Expected integer"})
		} else {
			q.Limit = domain.ClampLimit(n)
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, FieldError{Path: "offset", Message: "Expected integer"})
		} else {
			q.Offset = domain.ClampOffset(n)
		}
	}
	switch v := c.QueryParam("done"); v {
	case "":
	case "true", "false":
		done := v == "true"
		q.Done = &done
	default:
		errs = append(errs, FieldError{Path: "done", Message: `Expected "true" or "false"`})
	}
	q.Q = c.QueryParam("q")
	q.Sort = domain.ParseSortKey(c.QueryParam("sort"))
	q.Order = domain.ParseSortOrder(c.QueryParam("order"))

	if len(errs) > 0 {
		return domain.ListQuery{}, NewValidationError(errs...)
	}
	return q, nil
}
