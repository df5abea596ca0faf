// Package docs registers the OpenAPI document served at /swagger/doc.json.
// Regenerate with: swag init -g cmd/server/main.go
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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.healthResp"}}
                }
            }
        },
        "/transcribe": {
            "post": {
                "description": "Stores the upload and starts a background job. Poll /task/{id} for progress and subtitles.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["transcription"],
                "summary": "Submit audio for transcription",
                "parameters": [
                    {"type": "file", "description": "audio file (mp3, wav, m4a, ogg, flac)", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "language hint, e.g. en; empty or auto to detect", "name": "language", "in": "formData"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/httptransport.createTaskResp"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httptransport.apiError"}}
                }
            }
        },
        "/transcribe/srt": {
            "post": {
                "description": "Like /transcribe, but the completed task is delivered once as an .srt download.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["transcription"],
                "summary": "Submit audio for SRT generation",
                "parameters": [
                    {"type": "file", "description": "audio file (mp3, wav, m4a, ogg, flac)", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "language hint", "name": "language", "in": "formData"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/httptransport.createTaskResp"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httptransport.apiError"}}
                }
            }
        },
        "/transcribe/sync": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["transcription"],
                "summary": "Transcribe audio and wait for the result",
                "parameters": [
                    {"type": "file", "description": "audio file", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "language hint", "name": "language", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.syncResp"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.syncResp"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httptransport.syncResp"}}
                }
            }
        },
        "/task/{id}": {
            "get": {
                "description": "Returns status, progress and partial subtitles. A completed inline task returns its subtitles once and is then removed; a completed SRT task streams the file.",
                "produces": ["application/json", "application/x-subrip"],
                "tags": ["transcription"],
                "summary": "Poll a task",
                "parameters": [
                    {"type": "string", "description": "task id (uuid)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.taskResp"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "504": {"description": "Gateway Timeout", "schema": {"$ref": "#/definitions/httptransport.apiError"}}
                }
            }
        },
        "/history": {
            "get": {
                "produces": ["application/json"],
                "tags": ["history"],
                "summary": "Recent finished tasks",
                "parameters": [
                    {"type": "integer", "description": "max entries (default 50)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/entity.HistoryEntry"}}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/httptransport.apiError"}}
                }
            }
        },
        "/history/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["history"],
                "summary": "Finished task by id",
                "parameters": [
                    {"type": "string", "description": "task id (uuid)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/entity.HistoryEntry"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/httptransport.apiError"}}
                }
            }
        }
    },
    "definitions": {
        "entity.Segment": {
            "type": "object",
            "properties": {
                "index": {"type": "integer"},
                "start": {"type": "number"},
                "end": {"type": "number"},
                "content": {"type": "string"}
            }
        },
        "entity.HistoryEntry": {
            "type": "object",
            "properties": {
                "job_id": {"type": "string"},
                "kind": {"type": "string"},
                "status": {"type": "string"},
                "filename": {"type": "string"},
                "language": {"type": "string"},
                "segments": {"type": "integer"},
                "error": {"type": "string"},
                "created_at": {"type": "string"},
                "finished_at": {"type": "string"}
            }
        },
        "httptransport.apiError": {
            "type": "object",
            "properties": {"message": {"type": "string"}}
        },
        "httptransport.healthResp": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "model_loaded": {"type": "boolean"},
                "active_jobs": {"type": "integer"}
            }
        },
        "httptransport.createTaskResp": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "task_id": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "httptransport.taskResp": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "task_id": {"type": "string"},
                "subtitles": {"type": "array", "items": {"$ref": "#/definitions/entity.Segment"}},
                "partial_subtitles": {"type": "array", "items": {"$ref": "#/definitions/entity.Segment"}},
                "progress": {"type": "number"},
                "language": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "httptransport.syncResp": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "subtitles": {"type": "array", "items": {"$ref": "#/definitions/entity.Segment"}},
                "language": {"type": "string"},
                "error": {"type": "string"}
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
	Title:            "Transcription Service API",
	Description:      "Asynchronous speech-to-text with polling, progress and SRT delivery.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
