// Package docs holds the OpenAPI description served at /swagger
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
                    "200": {"description": "OK"},
                    "503": {"description": "Database unavailable"}
                }
            }
        },
        "/farmers": {
            "get": {
                "produces": ["application/json"],
                "tags": ["farmers"],
                "summary": "List farmers with their latest score",
                "parameters": [
                    {"type": "integer", "default": 0, "description": "Farmers to skip", "name": "skip", "in": "query"},
                    {"type": "integer", "default": 100, "description": "Maximum farmers", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/types.FarmerResponse"}}},
                    "400": {"description": "Invalid input"}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["farmers"],
                "summary": "Register a farmer",
                "parameters": [
                    {"description": "Farmer", "name": "farmer", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.FarmerCreate"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/types.FarmerResponse"}},
                    "400": {"description": "Invalid input"}
                }
            }
        },
        "/farmers/{farmer_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["farmers"],
                "summary": "Get a farmer",
                "parameters": [
                    {"type": "string", "description": "Farmer ID", "name": "farmer_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.FarmerResponse"}},
                    "404": {"description": "Not found"}
                }
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["farmers"],
                "summary": "Erase a farmer and their scores",
                "parameters": [
                    {"type": "string", "description": "Farmer ID", "name": "farmer_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.DeleteResponse"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/score": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["scoring"],
                "summary": "Score a registered farmer",
                "parameters": [
                    {"description": "Score request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.ScoreRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ScoreResponse"}},
                    "403": {"description": "Consent not given"},
                    "404": {"description": "Farmer not found"}
                }
            }
        },
        "/score/preview": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["scoring"],
                "summary": "Score raw features without persisting",
                "parameters": [
                    {"description": "Features", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.PreviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/score/{farmer_id}/history": {
            "get": {
                "produces": ["application/json"],
                "tags": ["scoring"],
                "summary": "Score history, newest first",
                "parameters": [
                    {"type": "string", "description": "Farmer ID", "name": "farmer_id", "in": "path", "required": true},
                    {"type": "integer", "description": "Maximum records (default 10)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ScoreHistoryResponse"}},
                    "400": {"description": "Invalid limit"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/score/batch": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["scoring"],
                "summary": "Submit a batch scoring job",
                "parameters": [
                    {"description": "Farmer IDs", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.BatchScoreRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.BatchScoreResponse"}},
                    "400": {"description": "Invalid input"},
                    "429": {"description": "Rate limited"}
                }
            }
        },
        "/jobs/{job_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["scoring"],
                "summary": "Batch job status",
                "parameters": [
                    {"type": "string", "description": "Job ID", "name": "job_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            }
        }
    },
    "definitions": {
        "scoring.RawFeatures": {
            "type": "object",
            "properties": {
                "land_area": {"type": "number"},
                "crop_type": {"type": "string"},
                "last_year_yield_est": {"type": "number"},
                "ndvi_mean": {"type": "number"},
                "ndvi_trend": {"type": "number"},
                "rainfall_anomaly_3mo": {"type": "number"},
                "past_kcc_defaults": {"type": "number"},
                "upi_txn_freq": {"type": "number"},
                "market_price_volatility": {"type": "number"},
                "fpo_membership_flag": {"type": "number"},
                "distance_to_mandi_km": {"type": "number"}
            }
        },
        "scoring.Driver": {
            "type": "object",
            "properties": {
                "feature": {"type": "string"},
                "impact": {"type": "number"},
                "explanation": {"type": "string"}
            }
        },
        "types.FarmerCreate": {
            "type": "object",
            "required": ["farmer_id", "name", "mobile"],
            "properties": {
                "farmer_id": {"type": "string"},
                "name": {"type": "string"},
                "mobile": {"type": "string"},
                "state": {"type": "string"},
                "district": {"type": "string"},
                "village": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "features": {"$ref": "#/definitions/scoring.RawFeatures"},
                "consent_given": {"type": "boolean"}
            }
        },
        "types.FarmerResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "farmer_id": {"type": "string"},
                "name": {"type": "string"},
                "consent_given": {"type": "boolean"},
                "features": {"$ref": "#/definitions/scoring.RawFeatures"},
                "latest_score": {"type": "number"}
            }
        },
        "types.ScoreRequest": {
            "type": "object",
            "required": ["farmer_id"],
            "properties": {
                "farmer_id": {"type": "string"},
                "features": {"$ref": "#/definitions/scoring.RawFeatures"},
                "policy": {"type": "string", "enum": ["deterministic_only", "prefer_model"]}
            }
        },
        "types.PreviewRequest": {
            "type": "object",
            "properties": {
                "features": {"$ref": "#/definitions/scoring.RawFeatures"},
                "policy": {"type": "string", "enum": ["deterministic_only", "prefer_model"]}
            }
        },
        "types.ScoreResponse": {
            "type": "object",
            "properties": {
                "farmer_id": {"type": "string"},
                "score": {"type": "number"},
                "score_band": {"type": "string", "enum": ["low", "medium", "high"]},
                "drivers": {"type": "array", "items": {"$ref": "#/definitions/scoring.Driver"}},
                "model_type": {"type": "string", "enum": ["ml", "deterministic"]},
                "model_version": {"type": "string"},
                "computed_at": {"type": "string"}
            }
        },
        "types.ScoreHistoryResponse": {
            "type": "object",
            "properties": {
                "farmer_id": {"type": "string"},
                "scores": {"type": "array", "items": {"$ref": "#/definitions/types.ScoreResponse"}}
            }
        },
        "types.BatchScoreRequest": {
            "type": "object",
            "required": ["farmer_ids"],
            "properties": {
                "farmer_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "types.BatchScoreResponse": {
            "type": "object",
            "properties": {
                "job_id": {"type": "string"},
                "status": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "types.DeleteResponse": {
            "type": "object",
            "properties": {
                "farmer_id": {"type": "string"},
                "scores_deleted": {"type": "integer"},
                "message": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Farmer Credit Score API",
	Description:      "Explainable credit scores for farmers, with a learned model and a deterministic fallback.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
