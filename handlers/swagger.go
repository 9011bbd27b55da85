package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers the OpenAPI endpoints for the document API.
// - GET /swagger/index.html  -> Swagger UI page loading the JSON below
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(r gin.IRoutes) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>docservice - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "docservice", "version": "v0.1.0" },
  "components": {
    "schemas": {
      "Document": {
        "type": "object",
        "properties": {
          "id": {"type":"integer"},
          "fileName": {"type":"string"},
          "blobKey": {"type":"string"},
          "fileUrl": {"type":"string"},
          "uploaderId": {"type":"integer"},
          "uploadedAt": {"type":"string","nullable":true},
          "updatedAt": {"type":"string","nullable":true},
          "result": {"type":"object","nullable":true},
          "status": {"type":"string","enum":["processing","completed","failed"]},
          "revision": {"type":"integer"}
        }
      }
    }
  },
  "paths": {
    "/documents/register": {
      "post": {
        "summary": "Upload a file and register it for analysis",
        "requestBody": { "content": { "multipart/form-data": { "schema": {"type":"object","properties":{"file":{"type":"string","format":"binary"}}}}}},
        "responses": { "201": { "description": "document registered as processing" }, "404": { "description": "Upload Failed" } }
      }
    },
    "/documents/list": {
      "get": { "summary": "List documents ordered by id", "responses": { "200": { "description": "array of documents" } } }
    },
    "/documents/{id}": {
      "get": {
        "summary": "Get one document",
        "parameters": [{"name":"id","in":"path","required":true,"schema":{"type":"integer"}}],
        "responses": { "200": { "description": "document" }, "404": { "description": "Document not found" } }
      }
    },
    "/documents/{id}/result": {
      "patch": {
        "summary": "Record an analysis result (analyzer callback)",
        "parameters": [{"name":"id","in":"path","required":true,"schema":{"type":"integer"}}],
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["result"],"properties":{"result":{"type":"object"},"status":{"type":"string","enum":["completed","failed"]},"revision":{"type":"integer"}}}}}},
        "responses": { "200": { "description": "updated document" }, "400": { "description": "invalid status or body" }, "401": { "description": "missing or invalid callback token" }, "404": { "description": "Document not found" }, "409": { "description": "revision conflict" } }
      }
    },
    "/health": { "get": { "summary": "Liveness", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness of storage and Redis", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
