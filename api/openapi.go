package api

import (
	"sync"

	"github.com/bytedance/sonic"

	"todo-api/domain"
)

type obj = map[string]any

func ref(name string) obj {
	return obj{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema obj) obj {
	return obj{"application/json": obj{"schema": schema}}
}

func errorContent(desc string) obj {
	return obj{"description": desc, "content": jsonContent(ref("ErrorEnvelope"))}
}

func idParam() obj {
	return obj{"name": "id", "in": "path", "required": true, "schema": obj{"type": "integer", "minimum": 1}}
}

func queryParam(name string, schema obj) obj {
	return obj{"name": name, "in": "query", "required": false, "schema": schema}
}

func textSchema() obj {
	return obj{"type": "string", "minLength": 1, "maxLength": domain.MaxTextLength}
}

func buildOpenAPIDocument() obj {
	todoResp := obj{"description": "Todo", "content": jsonContent(ref("Todo"))}
	return obj{
		"openapi": "3.0.3",
		"info": obj{
			"title":   "Todo API",
			"version": "1.0.0",
		},
		"paths": obj{
			"/v1/todos": obj{
				"get": obj{
					"summary": "List todos",
					"parameters": []obj{
						queryParam("limit", obj{"type": "integer", "minimum": 0, "maximum": domain.MaxLimit, "default": domain.DefaultLimit}),
						queryParam("offset", obj{"type": "integer", "minimum": 0, "default": 0}),
						queryParam("q", obj{"type": "string"}),
						queryParam("done", obj{"type": "string", "enum": []string{"true", "false"}}),
						queryParam("sort", obj{"type": "string", "enum": []string{"id", "createdAt", "updatedAt"}, "default": "id"}),
						queryParam("order", obj{"type": "string", "enum": []string{"asc", "desc"}, "default": "asc"}),
					},
					"responses": obj{
						"200": obj{"description": "Page of todos", "content": jsonContent(ref("TodoPage"))},
						"400": errorContent("Invalid query"),
					},
				},
				"post": obj{
					"summary":     "Create a todo",
					"parameters":  []obj{{"name": HeaderIdempotencyKey, "in": "header", "required": false, "schema": obj{"type": "string"}}},
					"requestBody": obj{"required": true, "content": jsonContent(ref("CreateTodo"))},
					"responses": obj{
						"201": todoResp,
						"400": errorContent("Invalid body"),
					},
				},
			},
			"/v1/todos/stats": obj{
				"get": obj{
					"summary":   "Todo counts",
					"responses": obj{"200": obj{"description": "Counts", "content": jsonContent(ref("Stats"))}},
				},
			},
			"/v1/todos/bulk": obj{
				"post": obj{
					"summary":    "Create up to 100 todos",
					"parameters": []obj{{"name": HeaderIdempotencyKey, "in": "header", "required": false, "schema": obj{"type": "string"}}},
					"requestBody": obj{"required": true, "content": jsonContent(obj{
						"type":       "object",
						"required":   []string{"items"},
						"properties": obj{"items": obj{"type": "array", "minItems": 1, "maxItems": domain.MaxBulkItems, "items": ref("CreateTodo")}},
					})},
					"responses": obj{
						"201": obj{"description": "Created todos", "content": jsonContent(obj{
							"type":       "object",
							"properties": obj{"items": obj{"type": "array", "items": ref("Todo")}},
						})},
						"400": errorContent("Invalid body"),
					},
				},
			},
			"/v1/todos/{id}": obj{
				"parameters": []obj{idParam()},
				"get": obj{
					"summary":   "Get a todo",
					"responses": obj{"200": todoResp, "400": errorContent("Invalid id"), "404": errorContent("Not found")},
				},
				"put": obj{
					"summary":     "Replace a todo",
					"requestBody": obj{"required": true, "content": jsonContent(ref("ReplaceTodo"))},
					"responses":   obj{"200": todoResp, "400": errorContent("Invalid body"), "404": errorContent("Not found")},
				},
				"patch": obj{
					"summary":     "Update some fields of a todo",
					"requestBody": obj{"required": true, "content": jsonContent(ref("PatchTodo"))},
					"responses":   obj{"200": todoResp, "400": errorContent("Invalid body"), "404": errorContent("Not found")},
				},
				"delete": obj{
					"summary":   "Delete a todo",
					"responses": obj{"204": obj{"description": "Deleted"}, "400": errorContent("Invalid id"), "404": errorContent("Not found")},
				},
			},
			"/healthz": obj{"get": obj{"summary": "Liveness", "responses": obj{"200": obj{"description": "ok"}}}},
			"/readyz":  obj{"get": obj{"summary": "Readiness", "responses": obj{"200": obj{"description": "ready"}, "503": obj{"description": "not ready"}}}},
		},
		"components": obj{
			"schemas": obj{
				"Todo": obj{
					"type":     "object",
					"required": []string{"id", "text", "done", "createdAt", "updatedAt"},
					"properties": obj{
						"id":        obj{"type": "integer"},
						"text":      textSchema(),
						"done":      obj{"type": "boolean"},
						"createdAt": obj{"type": "string", "format": "date-time"},
						"updatedAt": obj{"type": "string", "format": "date-time"},
					},
				},
				"CreateTodo": obj{
					"type":       "object",
					"required":   []string{"text"},
					"properties": obj{"text": textSchema()},
				},
				"ReplaceTodo": obj{
					"type":       "object",
					"required":   []string{"text", "done"},
					"properties": obj{"text": textSchema(), "done": obj{"type": "boolean"}},
				},
				"PatchTodo": obj{
					"type":          "object",
					"minProperties": 1,
					"properties":    obj{"text": textSchema(), "done": obj{"type": "boolean"}},
				},
				"TodoPage": obj{
					"type": "object",
					"properties": obj{
						"items": obj{"type": "array", "items": ref("Todo")},
						"meta": obj{
							"type": "object",
							"properties": obj{
								"total":   obj{"type": "integer"},
								"limit":   obj{"type": "integer"},
								"offset":  obj{"type": "integer"},
								"hasNext": obj{"type": "boolean"},
								"hasPrev": obj{"type": "boolean"},
							},
						},
					},
				},
				"Stats": obj{
					"type": "object",
					"properties": obj{
						"total":   obj{"type": "integer"},
						"done":    obj{"type": "integer"},
						"pending": obj{"type": "integer"},
					},
				},
				"ErrorEnvelope": obj{
					"type": "object",
					"properties": obj{
						"error": obj{
							"type": "object",
							"properties": obj{
								"code":    obj{"type": "string", "enum": []string{string(CodeValidation), string(CodeNotFound), string(CodeInternal)}},
								"message": obj{"type": "string"},
								"details": obj{},
							},
						},
						"requestId": obj{"type": "string"},
					},
				},
			},
		},
	}
}

var openAPIDocument = sync.OnceValues(func() ([]byte, error) {
	return sonic.Marshal(buildOpenAPIDocument())
})
