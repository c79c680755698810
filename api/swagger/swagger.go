package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "ClassSync API",
        "description": "School administration API with substitute-teacher assignment",
        "version": "1.0.0"
    },
    "basePath": "/api",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login, refresh and session management"},
        {"name": "Teachers", "description": "Teacher roster management"},
        {"name": "Students", "description": "Student roster management"},
        {"name": "Schedules", "description": "Recurring weekly schedule slots"},
        {"name": "Substitutions", "description": "Leave expansion and substitute assignment"},
        {"name": "Notifications", "description": "In-app notification inbox"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers": {
            "get": {
                "tags": ["Teachers"],
                "summary": "List teachers",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Teachers"],
                "summary": "Create teacher",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateUserRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already used"}
                }
            }
        },
        "/teachers/{id}": {
            "get": {
                "tags": ["Teachers"],
                "summary": "Get teacher detail with schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Teachers"],
                "summary": "Update teacher",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateUserRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Teachers"],
                "summary": "Delete teacher and their schedule slots",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/school": {
            "get": {
                "tags": ["School"],
                "summary": "School timetable settings",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["School"],
                "summary": "Update school timetable settings",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateTimetableRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Existing slots use periods beyond the new count"}
                }
            }
        },
        "/schedules": {
            "get": {
                "tags": ["Schedules"],
                "summary": "List schedule slots",
                "parameters": [
                    {"name": "teacher_id", "in": "query", "type": "string"},
                    {"name": "weekday", "in": "query", "type": "integer"},
                    {"name": "class_section", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Schedules"],
                "summary": "Create schedule slot",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateScheduleSlotRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Teacher already has a class at that weekday and period"}
                }
            }
        },
        "/substitutions/generate": {
            "post": {
                "tags": ["Substitutions"],
                "summary": "Expand an approved leave into substitution assignments",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateSubstitutionsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/GenerateSubstitutionsResponse"}},
                    "400": {"description": "Required fields missing"},
                    "500": {"description": "Unexpected failure"}
                }
            }
        },
        "/substitutions/override": {
            "post": {
                "tags": ["Substitutions"],
                "summary": "Reassign an existing substitution",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OverrideSubstitutionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Required fields missing"},
                    "404": {"description": "Substitution not found"}
                }
            }
        },
        "/substitutions/mine": {
            "get": {
                "tags": ["Substitutions"],
                "summary": "Upcoming substitutions assigned to the current teacher",
                "parameters": [
                    {"name": "from", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/substitutions": {
            "get": {
                "tags": ["Substitutions"],
                "summary": "Substitution history for the school",
                "parameters": [
                    {"name": "teacher_id", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/substitutions/export": {
            "get": {
                "tags": ["Substitutions"],
                "summary": "Export substitution history as CSV or PDF",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Binary export"}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List the caller's notifications",
                "parameters": [
                    {"name": "unread", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications/unread-count": {
            "get": {
                "tags": ["Notifications"],
                "summary": "Unread notification count",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "CreateUserRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "full_name": {"type": "string"},
                "class_section": {"type": "string"},
                "roll_number": {"type": "string"}
            },
            "required": ["email", "password", "full_name"]
        },
        "UpdateUserRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "full_name": {"type": "string"},
                "class_section": {"type": "string"},
                "roll_number": {"type": "string"},
                "active": {"type": "boolean"}
            },
            "required": ["email", "full_name"]
        },
        "CreateScheduleSlotRequest": {
            "type": "object",
            "properties": {
                "teacher_id": {"type": "string"},
                "weekday": {"type": "integer", "minimum": 0, "maximum": 6},
                "period_index": {"type": "integer", "minimum": 0},
                "subject": {"type": "string"},
                "class_section": {"type": "string"},
                "room": {"type": "string"}
            },
            "required": ["teacher_id", "weekday", "period_index", "subject", "class_section"]
        },
        "GenerateSubstitutionsRequest": {
            "type": "object",
            "properties": {
                "leaveRequestId": {"type": "string"},
                "teacherId": {"type": "string"},
                "fromDate": {"type": "string", "format": "date"},
                "toDate": {"type": "string", "format": "date"},
                "schoolId": {"type": "string"}
            },
            "required": ["teacherId", "fromDate", "toDate", "schoolId"]
        },
        "GenerateSubstitutionsResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "substitutions": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/GeneratedSubstitution"}
                },
                "conflicts": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/ReportedConflict"}
                },
                "message": {"type": "string"}
            }
        },
        "GeneratedSubstitution": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "originalTeacher": {"type": "string"},
                "substitute": {"type": "string"},
                "subject": {"type": "string"},
                "classSection": {"type": "string"},
                "date": {"type": "string", "format": "date"},
                "period": {"type": "integer"}
            }
        },
        "ReportedConflict": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "date": {"type": "string", "format": "date"},
                "period": {"type": "integer"},
                "subject": {"type": "string"},
                "classSection": {"type": "string"}
            }
        },
        "UpdateTimetableRequest": {
            "type": "object",
            "properties": {
                "period_count": {"type": "integer", "minimum": 1, "maximum": 16},
                "period_duration_minutes": {"type": "integer", "minimum": 20, "maximum": 120},
                "start_hour": {"type": "integer", "minimum": 0, "maximum": 23},
                "start_minute": {"type": "integer", "minimum": 0, "maximum": 59}
            },
            "required": ["period_count", "period_duration_minutes"]
        },
        "OverrideSubstitutionRequest": {
            "type": "object",
            "properties": {
                "substitutionId": {"type": "string"},
                "newSubstituteId": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["substitutionId", "newSubstituteId"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
