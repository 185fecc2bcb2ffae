// Package docs registers the live poll API description served under /swagger/.
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
                "tags": ["ops"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/polls": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["polls"],
                "summary": "Create a poll with its options",
                "parameters": [
                    {
                        "in": "body",
                        "name": "request",
                        "required": true,
                        "schema": {"$ref": "#/definitions/CreatePollRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/CreatePollResponse"}},
                    "400": {"description": "Invalid poll", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "503": {"description": "Store unavailable", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/polls/{pollId}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["polls"],
                "summary": "Read a poll with current option scores",
                "parameters": [
                    {"in": "path", "name": "pollId", "type": "string", "format": "uuid", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/PollResponse"}},
                    "400": {"description": "Malformed id or unknown poll", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "503": {"description": "Store unavailable", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/polls/{pollId}/vote": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["votes"],
                "summary": "Cast or change the session's vote",
                "description": "Reads the sessionId cookie or mints a new one.",
                "parameters": [
                    {"in": "path", "name": "pollId", "type": "string", "format": "uuid", "required": true},
                    {
                        "in": "body",
                        "name": "request",
                        "required": true,
                        "schema": {"$ref": "#/definitions/VoteRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Vote recorded", "schema": {"$ref": "#/definitions/VoteResponse"}},
                    "400": {"description": "Invalid vote", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "401": {"description": "Already voted for this option", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "409": {"description": "Concurrent vote conflict", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "503": {"description": "Store unavailable", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/polls/{pollId}/result": {
            "get": {
                "tags": ["votes"],
                "summary": "Websocket stream of score updates",
                "description": "Upgrades to a websocket. Each text frame is a VoteUpdateMessage.",
                "parameters": [
                    {"in": "path", "name": "pollId", "type": "string", "format": "uuid", "required": true}
                ],
                "responses": {
                    "101": {"description": "Switching protocols", "schema": {"$ref": "#/definitions/VoteUpdateMessage"}},
                    "400": {"description": "Malformed id", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "CreatePollRequest": {
            "type": "object",
            "required": ["title", "options"],
            "properties": {
                "title": {"type": "string"},
                "options": {"type": "array", "minItems": 2, "items": {"type": "string"}}
            }
        },
        "CreatePollResponse": {
            "type": "object",
            "properties": {
                "pollId": {"type": "string", "format": "uuid"}
            }
        },
        "OptionResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "format": "uuid"},
                "title": {"type": "string"},
                "score": {"type": "integer", "format": "int64"}
            }
        },
        "PollResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "format": "uuid"},
                "createdAt": {"type": "string", "format": "date-time"},
                "title": {"type": "string"},
                "options": {"type": "array", "items": {"$ref": "#/definitions/OptionResponse"}}
            }
        },
        "VoteRequest": {
            "type": "object",
            "required": ["pollOptionId"],
            "properties": {
                "pollOptionId": {"type": "string", "format": "uuid"}
            }
        },
        "VoteResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"}
            }
        },
        "VoteUpdateMessage": {
            "type": "object",
            "properties": {
                "pollOptionId": {"type": "string", "format": "uuid"},
                "vote": {"type": "integer", "format": "int64"}
            }
        },
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Live Poll API",
	Description:      "Create polls, vote once per session and follow results live.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
