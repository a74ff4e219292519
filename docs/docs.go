// Package docs holds the swagger document served under /swagger.
package docs

import "github.com/swaggo/swag"

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
    "tags": [
        {"name": "complaints", "description": "Submission, lifecycle and assignment"},
        {"name": "departments", "description": "Department registry and per-department stats"},
        {"name": "metrics", "description": "Dashboard aggregates"}
    ],
    "securityDefinitions": {
        "AdminKey": {"type": "apiKey", "name": "X-Admin-Key", "in": "header"}
    },
    "paths": {}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "CivicDesk Backend",
	Description:      "Citizen complaint intake, department assignment, lifecycle tracking and dashboard metrics",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
