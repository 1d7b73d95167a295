package httpapi

import (
	"net/http"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/httpjson"
)

func jsonBody(schemaRef, description string) map[string]any {
	return map[string]any{
		"description": description,
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"$ref": schemaRef},
			},
		},
	}
}

func str(enum ...any) map[string]any {
	s := map[string]any{"type": "string"}
	if len(enum) > 0 {
		s["enum"] = enum
	}
	return s
}

func openAPIDocument() map[string]any {
	jsonOK := func(ref string) map[string]any { return jsonBody(ref, "OK") }
	jsonErr := jsonBody("#/components/schemas/Error", "Error")
	classifiedErr := jsonBody("#/components/schemas/ClassifiedErrorResponse", "Classified error")
	number := map[string]any{"type": "number", "format": "double"}
	integer := map[string]any{"type": "integer"}

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "Prediction Runner API",
			"version": "v1",
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"OpenAPIDocument": map[string]any{"type": "object", "additionalProperties": true},
				"Error": map[string]any{
					"type":       "object",
					"properties": map[string]any{"error": str()},
					"required":   []any{"error"},
				},
				"ClassifiedError": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"kind":            str("transport", "http", "remote_job", "protocol"),
						"transportStatus": map[string]any{"type": "integer", "description": "0 = pas de réponse HTTP"},
						"message":         str(),
						"errorCode":       str("rate_limit_exceeded", "budget_exceeded", "queue_full", "request_in_progress"),
						"detail":          str(),
					},
					"required": []any{"kind", "transportStatus", "message"},
				},
				"ClassifiedErrorResponse": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error":      str(),
						"classified": map[string]any{"$ref": "#/components/schemas/ClassifiedError"},
					},
				},
				"Result": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"request_id": str(),
						"status":     str("success", "error"),
						"prediction": map[string]any{"type": "number", "nullable": true},
						"agent_predictions": map[string]any{"type": "array", "items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"miner_uid":  integer,
								"rank":       integer,
								"version_id": str(),
								"prediction": number,
								"reasoning":  map[string]any{"type": "string", "nullable": true},
								"cost":       number,
							},
						}},
						"failures": map[string]any{"type": "array", "items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"miner_uid":  integer,
								"rank":       integer,
								"error":      str(),
								"error_type": str("timeout", "container_error", "invalid_output", "agent_error", "budget_exceeded", "queue_full"),
							},
						}},
						"total_cost": number,
						"error":      str(),
					},
				},
				"Agent": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"miner_uid": integer,
						"rank":      integer,
						"weight":    number,
						"avg_brier": number,
						"accuracy":  number,
					},
				},
				"Snapshot": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"submissionId": str(),
						"state":        str("idle", "submitting", "polling", "completed", "failed", "cancelled"),
						"job": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"jobId":  str(),
								"status": str("pending", "running", "completed", "failed"),
							},
						},
						"result":         map[string]any{"$ref": "#/components/schemas/Result"},
						"error":          map[string]any{"$ref": "#/components/schemas/ClassifiedError"},
						"elapsedSeconds": integer,
						"progress":       number,
					},
					"required": []any{"state", "elapsedSeconds", "progress"},
				},
				"CreateSubmissionRequest": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"payload":        map[string]any{"type": "object", "additionalProperties": true, "description": "Transmis tel quel au service distant."},
						"mode":           str("champion", "council", "selected"),
						"targetId":       map[string]any{"type": "string", "description": "miner_uid, requis pour le mode selected."},
						"skipQuotaCheck": map[string]any{"type": "boolean"},
					},
					"required":             []any{"payload"},
					"additionalProperties": false,
				},
				"Quota": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"status":             str(),
						"requests_used":      integer,
						"requests_limit":     integer,
						"requests_remaining": integer,
						"exhausted":          map[string]any{"type": "boolean"},
						"classified":         map[string]any{"$ref": "#/components/schemas/ClassifiedError"},
					},
				},
				"Settings": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"pollIntervalMs":       map[string]any{"type": "integer", "minimum": 250},
						"estimatedDurationSec": map[string]any{"type": "integer", "minimum": 1},
						"progressCap":          map[string]any{"type": "number", "exclusiveMinimum": 0, "maximum": 1},
						"defaultMode":          str("champion", "council", "selected"),
						"defaultTarget":        str(),
					},
					"additionalProperties": false,
				},
			},
		},
		"paths": map[string]any{
			"/api/v1/health": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/v1/version": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/v1/openapi.json": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": jsonOK("#/components/schemas/OpenAPIDocument")}},
			},
			"/api/v1/events": map[string]any{
				"get": map[string]any{
					"parameters": []any{map[string]any{
						"name": "topic", "in": "query", "required": false,
						"schema": map[string]any{"type": "array", "items": str()},
					}},
					"responses": map[string]any{"200": map[string]any{"description": "SSE"}},
				},
			},
			"/api/v1/state": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": jsonOK("#/components/schemas/Snapshot")}},
			},
			"/api/v1/submissions": map[string]any{
				"post": map[string]any{
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{"$ref": "#/components/schemas/CreateSubmissionRequest"},
							},
						},
					},
					"responses": map[string]any{
						"202": jsonOK("#/components/schemas/Snapshot"),
						"400": jsonErr,
						"409": jsonErr,
						"429": classifiedErr,
						"500": jsonErr,
					},
				},
			},
			"/api/v1/reset": map[string]any{
				"post": map[string]any{"responses": map[string]any{"200": jsonOK("#/components/schemas/Snapshot")}},
			},
			"/api/v1/quota": map[string]any{
				"get": map[string]any{
					"parameters": []any{map[string]any{
						"name": "mode", "in": "query", "required": false,
						"schema": str("champion", "council", "selected"),
					}},
					"responses": map[string]any{
						"200": jsonOK("#/components/schemas/Quota"),
						"502": classifiedErr,
					},
				},
			},
			"/api/v1/agents": map[string]any{
				"get": map[string]any{
					"responses": map[string]any{
						"200": map[string]any{
							"description": "OK",
							"content": map[string]any{"application/json": map[string]any{"schema": map[string]any{
								"type":       "object",
								"properties": map[string]any{"agents": map[string]any{"type": "array", "items": map[string]any{"$ref": "#/components/schemas/Agent"}}},
							}}},
						},
						"502": classifiedErr,
					},
				},
			},
			"/api/v1/settings": map[string]any{
				"get": map[string]any{
					"responses": map[string]any{
						"200": jsonOK("#/components/schemas/Settings"),
						"500": jsonErr,
					},
				},
				"put": map[string]any{
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{"$ref": "#/components/schemas/Settings"},
							},
						},
					},
					"responses": map[string]any{
						"200": jsonOK("#/components/schemas/Settings"),
						"400": jsonErr,
						"500": jsonErr,
					},
				},
			},
		},
	}
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, openAPIDocument())
}
