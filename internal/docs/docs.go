// Package docs registra la definición OpenAPI que sirve /swagger/*.
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
    "paths": {
        "/health": {
            "get": {"tags": ["ops"], "summary": "Liveness", "responses": {"200": {"description": "ok"}}}
        },
        "/session": {
            "get": {
                "tags": ["session"], "summary": "Sesión actual del store", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/router.sessionResponse"}}, "401": {"description": "Unauthorized"}}
            },
            "post": {
                "tags": ["session"], "summary": "Carga el store para el usuario autenticado", "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/router.sessionResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/router.errorResponse"}}
                }
            }
        },
        "/session/refresh": {
            "post": {"tags": ["session"], "summary": "Recarga para el viewer actual", "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}}
        },
        "/entities/{type}": {
            "get": {
                "tags": ["entities"], "summary": "Lista records de un tipo", "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Entity type (CanineProfile o canine_profiles)", "name": "type", "in": "path", "required": true},
                    {"type": "string", "description": "Campo FK", "name": "fk", "in": "query"},
                    {"type": "string", "description": "Valor de la FK", "name": "value", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Unknown entity type"}}
            },
            "post": {
                "tags": ["entities"], "summary": "Crea un record", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"type": "string", "description": "Entity type", "name": "type", "in": "path", "required": true}],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/router.errorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/router.errorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/router.errorResponse"}}
                }
            }
        },
        "/entities/{type}/{id}": {
            "get": {
                "tags": ["entities"], "summary": "Record por id",
                "parameters": [
                    {"type": "string", "name": "type", "in": "path", "required": true},
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            },
            "patch": {
                "tags": ["entities"], "summary": "Patch parcial; null limpia un campo opcional",
                "parameters": [
                    {"type": "string", "name": "type", "in": "path", "required": true},
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "502": {"description": "Bad Gateway"}}
            },
            "delete": {
                "tags": ["entities"], "summary": "Borra el record y sus dependientes",
                "parameters": [
                    {"type": "string", "name": "type", "in": "path", "required": true},
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"204": {"description": "No Content"}, "404": {"description": "Not Found"}, "502": {"description": "Bad Gateway"}}
            }
        },
        "/entities/{type}/{id}/children/{childType}": {
            "get": {
                "tags": ["entities"], "summary": "Hijos de un record",
                "parameters": [
                    {"type": "string", "name": "type", "in": "path", "required": true},
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "childType", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/contacts/emergency": {
            "get": {"tags": ["contacts"], "summary": "Contactos de emergencia", "responses": {"200": {"description": "OK"}}}
        },
        "/contacts/regular": {
            "get": {"tags": ["contacts"], "summary": "Contactos regulares", "responses": {"200": {"description": "OK"}}}
        },
        "/canines/{canineID}/appointments": {
            "get": {
                "tags": ["appointments"], "summary": "Turnos de un canine",
                "parameters": [
                    {"type": "string", "name": "canineID", "in": "path", "required": true},
                    {"type": "boolean", "name": "upcoming", "in": "query"},
                    {"type": "string", "enum": ["Scheduled", "Completed", "Cancelled"], "name": "status", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/media/upload": {
            "post": {
                "tags": ["media"], "summary": "Sube una foto/video y crea el MediaItem", "consumes": ["multipart/form-data"],
                "parameters": [
                    {"type": "string", "name": "canineId", "in": "formData", "required": true},
                    {"type": "string", "enum": ["photo", "video"], "name": "type", "in": "formData", "required": true},
                    {"type": "string", "name": "caption", "in": "formData"},
                    {"type": "file", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {"201": {"description": "Created"}, "501": {"description": "Storage not configured"}}
            }
        }
    },
    "definitions": {
        "router.errorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}, "entity": {"type": "string"}, "field": {"type": "string"}}
        },
        "router.sessionResponse": {
            "type": "object",
            "properties": {
                "viewer": {"type": "object", "properties": {"userId": {"type": "string"}, "role": {"type": "string", "enum": ["Admin", "PetOwner", "Vet", "DogWalker"]}}},
                "seedBacked": {"type": "boolean"},
                "loadedAt": {"type": "string", "format": "date-time"},
                "counts": {"type": "object", "additionalProperties": {"type": "integer"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Pet Health Sync API",
	Description:      "Store de entidades de salud de mascotas sincronizado contra el backend remoto.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
