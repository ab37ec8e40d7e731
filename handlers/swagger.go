package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the collaboration service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>diagramsync API</title>
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

// Minimal OpenAPI document describing the REST surface and the /ws endpoint.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "diagramsync", "version": "v0.1.0" },
  "components": { "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } } },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/documents": {
      "post": { "summary": "Create a diagram owned by the caller", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"name":{"type":"string"},"type":{"type":"string","enum":["Class","Sequence","Flowchart","ER","Use Case","Activity"]}}}}}}, "responses": { "201": { "description": "created document" }, "400": { "description": "invalid name or type" } } },
      "get": { "summary": "List diagrams the caller owns or collaborates on, newest first", "responses": { "200": { "description": "documents" } } }
    },
    "/documents/{id}": {
      "get": { "summary": "Get a diagram", "responses": { "200": { "description": "document" }, "403": { "description": "not a collaborator" }, "404": { "description": "not found" } } },
      "put": { "summary": "Replace diagram content and broadcast it to live sessions", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"content":{"type":"string"}}}}}}, "responses": { "200": { "description": "updated document" }, "403": { "description": "not a collaborator" }, "503": { "description": "document store unavailable" } } }
    },
    "/documents/{id}/collaborators": {
      "post": { "summary": "Share a diagram (owner only)", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"userId":{"type":"string"}}}}}}, "responses": { "200": { "description": "updated document" }, "403": { "description": "not the owner" } } }
    },
    "/documents/{id}/archive": {
      "post": { "summary": "Store a snapshot in object storage", "responses": { "200": { "description": "presigned download url" }, "501": { "description": "archive storage not configured" } } }
    },
    "/ws": {
      "get": { "summary": "Persistent collaboration connection (WebSocket). Credential via Authorization header, ?token= or a first auth message.", "responses": { "101": { "description": "switching protocols" }, "401": { "description": "invalid credential" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Revoke the caller's token and close its live sessions", "responses": { "200": { "description": "logged out" } } }
    },
    "/api/v1/me": {
      "get": { "summary": "Get user info", "responses": { "200": { "description": "user profile" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
