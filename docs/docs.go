// Package docs registers the API description served under /swagger.
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
        "/api/cart": {
            "get": {
                "produces": ["application/json"],
                "tags": ["cart"],
                "summary": "Current cart",
                "parameters": [
                    {"type": "string", "description": "normal or buy_now", "name": "mode", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/gateway.envelope"}}}
            }
        },
        "/api/cart/items": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["cart"],
                "summary": "Add a product to the cart",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/gateway.envelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/gateway.envelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/gateway.envelope"}}
                }
            }
        },
        "/api/cart/discount": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["cart"],
                "summary": "Apply a discount code",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/gateway.envelope"}},
                    "400": {"description": "INVALID_CODE or EXPIRED_CODE", "schema": {"$ref": "#/definitions/gateway.envelope"}}
                }
            }
        },
        "/api/checkout": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["checkout"],
                "summary": "Place an order from the cart",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/gateway.envelope"}},
                    "400": {"description": "VALIDATION_FAILED or EMPTY_CART", "schema": {"$ref": "#/definitions/gateway.envelope"}},
                    "409": {"description": "STOCK_CONFLICT, CART_CHANGED or PAYMENT_UNAVAILABLE", "schema": {"$ref": "#/definitions/gateway.envelope"}}
                }
            }
        },
        "/api/orders/{id}": {
            "get": {
                "description": "Signed-in users may use their order number or id; guests need the order id.",
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Look up an order",
                "parameters": [
                    {"type": "string", "description": "order id or number", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/gateway.envelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/gateway.envelope"}}
                }
            }
        },
        "/api/products": {
            "get": {
                "produces": ["application/json"],
                "tags": ["catalog"],
                "summary": "Active products",
                "parameters": [
                    {"type": "string", "description": "name or SKU", "name": "search", "in": "query"},
                    {"type": "integer", "description": "page number", "name": "page", "in": "query"},
                    {"type": "integer", "description": "page size", "name": "pageSize", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/gateway.envelope"}}}
            }
        },
        "/api/support/messages": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["support"],
                "summary": "Contact the shop",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/gateway.envelope"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/gateway.envelope"}}
                }
            }
        },
        "/api/uploads": {
            "post": {
                "description": "Every image is re-encoded as JPEG and stored under the requested folder.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["uploads"],
                "summary": "Upload images",
                "parameters": [
                    {"type": "file", "description": "images", "name": "files[]", "in": "formData", "required": true},
                    {"type": "string", "description": "products, variants, categories, avatars or misc", "name": "folder", "in": "formData"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/gateway.envelope"}},
                    "400": {"description": "UPLOAD_FAILED", "schema": {"$ref": "#/definitions/gateway.envelope"}}
                }
            }
        },
        "/api/worker/emails/drain": {
            "post": {
                "produces": ["application/json"],
                "tags": ["worker"],
                "summary": "Deliver pending notifications now",
                "parameters": [
                    {"type": "string", "description": "worker token", "name": "X-Worker-Token", "in": "header", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/gateway.envelope"}}}
            }
        }
    },
    "definitions": {
        "gateway.envelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {},
                "error": {"$ref": "#/definitions/gateway.errorBody"}
            }
        },
        "gateway.errorBody": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "code": {"type": "string"},
                "fields": {"type": "object", "additionalProperties": {"type": "string"}}
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
	Title:            "Storefront API",
	Description:      "Cart, checkout, orders and shop administration.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
