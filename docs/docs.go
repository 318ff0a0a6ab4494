// Package docs is generated by swag from the handler annotations. Regenerate with
// `swag init -g cmd/server/main.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Login",
                "parameters": [
                    {"description": "credentials", "name": "login", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.AuthResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/auth/register": {
            "post": {
                "description": "Creates an account and returns an access token.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Register",
                "parameters": [
                    {"description": "account", "name": "user", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.AuthResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/tasks": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Managers see every task, users only the ones assigned to them.",
                "produces": ["application/json"],
                "tags": ["Tasks"],
                "summary": "List tasks",
                "parameters": [
                    {"type": "integer", "description": "page (default 1)", "name": "page", "in": "query"},
                    {"type": "integer", "description": "page size (default 10, max 100)", "name": "limit", "in": "query"},
                    {"type": "string", "description": "createdAt|updatedAt|dueDate|priority|status|title (priority and status sort by rank)", "name": "sort", "in": "query"},
                    {"type": "string", "description": "asc|desc", "name": "order", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.TaskPage"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Tasks"],
                "summary": "Create a task",
                "parameters": [
                    {"description": "task", "name": "task", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.createTaskRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.Task"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "403": {"description": "Forbidden", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/tasks/logs": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Tasks"],
                "summary": "Audit log, newest first",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.AuditLogEntry"}}}
                }
            }
        },
        "/tasks/logs/report.pdf": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/pdf"],
                "tags": ["Tasks"],
                "summary": "Audit log as PDF",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}}
                }
            }
        },
        "/tasks/users": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Tasks"],
                "summary": "List users",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.User"}}}
                }
            }
        },
        "/tasks/{id}": {
            "put": {
                "security": [{"BearerAuth": []}],
                "description": "Users may only change the status of tasks assigned to them; other fields are ignored.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Tasks"],
                "summary": "Update a task",
                "parameters": [
                    {"type": "string", "description": "task id", "name": "id", "in": "path", "required": true},
                    {"description": "fields to change", "name": "task", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.updateTaskRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Task"}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Tasks"],
                "summary": "Delete a task",
                "parameters": [
                    {"type": "string", "description": "task id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "403": {"description": "Forbidden", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "handlers.createTaskRequest": {
            "type": "object",
            "properties": {
                "assignedTo": {"type": "string"},
                "description": {"type": "string"},
                "dueDate": {"type": "string"},
                "priority": {"$ref": "#/definitions/models.TaskPriority"},
                "status": {"$ref": "#/definitions/models.TaskStatus"},
                "title": {"type": "string"}
            }
        },
        "handlers.updateTaskRequest": {
            "type": "object",
            "properties": {
                "assignedTo": {"type": "string"},
                "description": {"type": "string"},
                "dueDate": {"type": "string"},
                "priority": {"$ref": "#/definitions/models.TaskPriority"},
                "status": {"$ref": "#/definitions/models.TaskStatus"},
                "title": {"type": "string"}
            }
        },
        "models.AuditLogEntry": {
            "type": "object",
            "properties": {
                "action": {"type": "string"},
                "actor": {"$ref": "#/definitions/models.UserRef"},
                "actorId": {"type": "string"},
                "details": {"type": "string"},
                "id": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        },
        "models.AuthResponse": {
            "type": "object",
            "properties": {
                "token": {"type": "string"},
                "user": {"$ref": "#/definitions/models.User"}
            }
        },
        "models.LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "models.RegisterRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "name": {"type": "string"},
                "password": {"type": "string"},
                "role": {"$ref": "#/definitions/models.Role"}
            }
        },
        "models.Role": {
            "type": "string",
            "enum": ["manager", "user"]
        },
        "models.Task": {
            "type": "object",
            "properties": {
                "assignedTo": {"$ref": "#/definitions/models.UserRef"},
                "createdAt": {"type": "string"},
                "createdBy": {"type": "string"},
                "description": {"type": "string"},
                "dueDate": {"type": "string"},
                "id": {"type": "string"},
                "priority": {"$ref": "#/definitions/models.TaskPriority"},
                "status": {"$ref": "#/definitions/models.TaskStatus"},
                "title": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "models.TaskPage": {
            "type": "object",
            "properties": {
                "currentPage": {"type": "integer"},
                "tasks": {"type": "array", "items": {"$ref": "#/definitions/models.Task"}},
                "totalPages": {"type": "integer"},
                "totalTasks": {"type": "integer"}
            }
        },
        "models.TaskPriority": {
            "type": "string",
            "enum": ["Low", "Medium", "High"]
        },
        "models.TaskStatus": {
            "type": "string",
            "enum": ["Pending", "In Progress", "Completed"]
        },
        "models.User": {
            "type": "object",
            "properties": {
                "createdAt": {"type": "string"},
                "email": {"type": "string"},
                "id": {"type": "string"},
                "name": {"type": "string"},
                "role": {"$ref": "#/definitions/models.Role"}
            }
        },
        "models.UserRef": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "id": {"type": "string"},
                "name": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "teamboard API",
	Description:      "Team task board with live updates over websocket.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
