// Package docs holds the OpenAPI description served under /swagger. It
// follows the handler annotations; `swag init -g cmd/server/main.go -o docs`
// rewrites it from them.
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
        "/orders": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Place an order",
                "description": "Prices the cart and applies coupons. Stock is not touched until the order is paid.",
                "parameters": [
                    {"description": "Cart", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/order.CreateOrderRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/orders/{orderId}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Get an order",
                "parameters": [
                    {"type": "string", "description": "Order ID", "name": "orderId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/payments": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "Ready a payment",
                "description": "Creates a READY payment. Settlement continues asynchronously after the request commits.",
                "parameters": [
                    {"description": "Payment", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/payment.ReadyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/callback/payments/{orderId}": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["callbacks"],
                "summary": "Gateway settlement callback",
                "description": "Applied only when the gateway confirms the transaction. Repeats and PENDING notices answer 200.",
                "parameters": [
                    {"type": "string", "description": "Order ID", "name": "orderId", "in": "path", "required": true},
                    {"description": "Callback", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/payment.CallbackRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        }
    },
    "definitions": {
        "dto.ErrorInfo": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "request_id": {"type": "string"}
            }
        },
        "dto.Response": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {},
                "error": {"$ref": "#/definitions/dto.ErrorInfo"}
            }
        },
        "order.CartItem": {
            "type": "object",
            "required": ["optionId", "quantity"],
            "properties": {
                "optionId": {"type": "string"},
                "quantity": {"type": "integer"}
            }
        },
        "order.CreateOrderRequest": {
            "type": "object",
            "required": ["products"],
            "properties": {
                "products": {"type": "array", "items": {"$ref": "#/definitions/order.CartItem"}},
                "userCouponIds": {"type": "array", "items": {"type": "string"}}
            }
        },
        "payment.ReadyRequest": {
            "type": "object",
            "required": ["orderId", "paymentMethod"],
            "properties": {
                "orderId": {"type": "string"},
                "paymentMethod": {"type": "string", "enum": ["POINT", "CARD"]},
                "cardType": {"type": "string", "enum": ["SAMSUNG", "KB", "HYUNDAI"]},
                "cardNumber": {"type": "string", "example": "1234-5678-9814-1451"}
            }
        },
        "payment.CallbackRequest": {
            "type": "object",
            "required": ["transactionKey", "status"],
            "properties": {
                "transactionKey": {"type": "string"},
                "orderId": {"type": "string"},
                "cardType": {"type": "string"},
                "cardNo": {"type": "string"},
                "amount": {"type": "number"},
                "status": {"type": "string", "enum": ["SUCCESS", "FAILED", "PENDING"]},
                "reason": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Bearer token authentication. Format: \"Bearer {token}\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Fulfillment API",
	Description:      "Orders, payments and the payment gateway callback.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
