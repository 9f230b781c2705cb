package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/swaggo/swag"
)

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/dtf/daily": {
            "get": {
                "produces": ["application/json"],
                "tags": ["dtf"],
                "summary": "Daily DTF series",
                "parameters": [
                    {"type": "string", "description": "First date (yyyy-MM-dd)", "name": "start", "in": "query"},
                    {"type": "string", "description": "Last date (yyyy-MM-dd)", "name": "end", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.SeriesResponse"}},
                    "502": {"description": "Bad Gateway"},
                    "504": {"description": "Gateway Timeout"}
                }
            }
        },
        "/dtf/weekly": {
            "get": {
                "produces": ["application/json"],
                "tags": ["dtf"],
                "summary": "Weekly DTF series",
                "parameters": [
                    {"type": "string", "description": "First date (yyyy-MM-dd)", "name": "start", "in": "query"},
                    {"type": "string", "description": "Last date (yyyy-MM-dd)", "name": "end", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.SeriesResponse"}}
                }
            }
        },
        "/dtf/reprocess": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["flows"],
                "summary": "Reprocess a flow",
                "parameters": [
                    {"description": "Capture date and/or flow id", "name": "request", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/api.ReprocessRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/api.ReprocessResponse"}},
                    "400": {"description": "Bad Request"},
                    "404": {"description": "Not Found"},
                    "503": {"description": "Service Unavailable"}
                }
            }
        },
        "/flows/incomplete": {
            "get": {
                "produces": ["application/json"],
                "tags": ["flows"],
                "summary": "Failed or incomplete flows",
                "parameters": [
                    {"type": "integer", "description": "Maximum rows", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.FlowsResponse"}}
                }
            }
        },
        "/flows/{flowId}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["flows"],
                "summary": "Processing state of a flow",
                "parameters": [
                    {"type": "string", "description": "Flow id", "name": "flowId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        }
    },
    "definitions": {
        "api.ObservationResponse": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "value": {"type": "number"}
            }
        },
        "api.SeriesResponse": {
            "type": "object",
            "properties": {
                "series": {"type": "string"},
                "start": {"type": "string"},
                "end": {"type": "string"},
                "count": {"type": "integer"},
                "data": {"type": "array", "items": {"$ref": "#/definitions/api.ObservationResponse"}}
            }
        },
        "api.ReprocessRequest": {
            "type": "object",
            "properties": {
                "capture_date": {"type": "string"},
                "flow_id": {"type": "string"}
            }
        },
        "api.ReprocessResponse": {
            "type": "object",
            "properties": {
                "flowId": {"type": "string"},
                "captureDate": {"type": "string"}
            }
        },
        "api.FlowsResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "flows": {"type": "array", "items": {"type": "object"}}
            }
        }
    }
}`

// SwaggerInfo describes the operations API served under /swagger.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "DTF Capture Service API",
	Description:      "Live DTF series queries and capture flow operations",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// RegisterDocs serves the Swagger UI and doc.json.
func RegisterDocs(router gin.IRouter) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
