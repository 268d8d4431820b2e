package handler

import (
	_ "embed"
	"net/http"
)

//go:embed docs/openapi.json
var openAPISpec []byte

const docsPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>STX20 API</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>SwaggerUIBundle({url: "/api/docs/openapi.json", dom_id: "#ui"});</script>
</body>
</html>
`

// Docs serves a Swagger UI page for the embedded OpenAPI document.
// GET /api/docs
func Docs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(docsPage))
}

// OpenAPI serves the OpenAPI document.
// GET /api/docs/openapi.json
func OpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(openAPISpec)
}
