// Package docs registers the OpenAPI document served under /swagger.
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
    "securityDefinitions": {
        "Bearer": {"type": "apiKey", "name": "Authorization", "in": "header"},
        "ApiKey": {"type": "apiKey", "name": "X-API-KEY", "in": "header"}
    },
    "paths": {
        "/delivery/areas": {
            "get": {"tags": ["delivery"], "summary": "List active delivery areas", "responses": {"200": {"description": "OK"}}}
        },
        "/delivery/calculate-fee": {
            "post": {
                "tags": ["delivery"], "summary": "Quote the delivery fee for an area and order value",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/FeeRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid input"}}
            }
        },
        "/cart": {
            "get": {"tags": ["cart"], "summary": "Get the caller's cart", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}},
            "delete": {"tags": ["cart"], "summary": "Empty the cart", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/cart/items": {
            "post": {
                "tags": ["cart"], "summary": "Add a drug to the cart", "security": [{"Bearer": []}],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/AddItemRequest"}}],
                "responses": {"201": {"description": "Created"}, "409": {"description": "Unavailable or insufficient stock"}}
            }
        },
        "/cart/checkout": {
            "post": {
                "tags": ["cart"], "summary": "Turn the cart into an order", "security": [{"Bearer": []}],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/DeliveryRequest"}}],
                "responses": {"201": {"description": "Created"}, "409": {"description": "Stock conflict"}}
            }
        },
        "/orders": {
            "get": {"tags": ["orders"], "summary": "List the caller's orders", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}},
            "post": {
                "tags": ["orders"], "summary": "Place an order from an item list", "security": [{"Bearer": []}],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/CreateOrderRequest"}}],
                "responses": {"201": {"description": "Created"}, "409": {"description": "Stock conflict"}}
            }
        },
        "/orders/{id}/cancel": {
            "post": {"tags": ["orders"], "summary": "Cancel an order and restock", "security": [{"Bearer": []}],
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Invalid transition"}}}
        },
        "/payments/initialize": {
            "post": {
                "tags": ["payments"], "summary": "Start a gateway checkout for an order", "security": [{"Bearer": []}],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/InitializeRequest"}}],
                "responses": {"201": {"description": "Created"}, "409": {"description": "Already paid"}, "502": {"description": "Gateway error"}}
            }
        },
        "/payments/verify": {
            "post": {
                "tags": ["payments"], "summary": "Reconcile a payment with the gateway", "security": [{"Bearer": []}],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/VerifyRequest"}}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/payments/webhook/paystack": {
            "post": {"tags": ["payments"], "summary": "Paystack event webhook", "responses": {"200": {"description": "Acknowledged"}}}
        },
        "/admin/inventory": {
            "get": {"tags": ["admin"], "summary": "List drugs", "security": [{"Bearer": []}, {"ApiKey": []}], "responses": {"200": {"description": "OK"}}},
            "post": {
                "tags": ["admin"], "summary": "Register a drug", "security": [{"Bearer": []}, {"ApiKey": []}],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/CreateDrugRequest"}}],
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/admin/orders/{id}/status": {
            "put": {
                "tags": ["admin"], "summary": "Move an order through the status machine", "security": [{"Bearer": []}, {"ApiKey": []}],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateStatusRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Invalid transition"}}
            }
        }
    },
    "definitions": {
        "FeeRequest": {"type": "object", "properties": {"area": {"type": "string"}, "order_value": {"type": "string"}}},
        "AddItemRequest": {"type": "object", "properties": {"drug_id": {"type": "string"}, "quantity": {"type": "integer"}}},
        "DeliveryRequest": {"type": "object", "properties": {
            "phone_number": {"type": "string"}, "delivery_notes": {"type": "string"}, "delivery_area": {"type": "string"},
            "delivery_address": {"type": "string"}, "delivery_landmark": {"type": "string"}}},
        "CreateOrderRequest": {"type": "object", "properties": {
            "items": {"type": "array", "items": {"$ref": "#/definitions/AddItemRequest"}},
            "phone_number": {"type": "string"}, "delivery_area": {"type": "string"}, "delivery_address": {"type": "string"}}},
        "InitializeRequest": {"type": "object", "properties": {"order_id": {"type": "string"}}},
        "VerifyRequest": {"type": "object", "properties": {"reference": {"type": "string"}}},
        "CreateDrugRequest": {"type": "object", "properties": {
            "name": {"type": "string"}, "slug": {"type": "string"}, "description": {"type": "string"},
            "price": {"type": "string"}, "stock": {"type": "integer"}}},
        "UpdateStatusRequest": {"type": "object", "properties": {"status": {"type": "string", "enum": ["placed", "delivering", "delivered", "cancelled"]}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "HealthNet Pharmacy API",
	Description:      "Inventory, cart, order, payment and delivery endpoints of the HealthNet e-pharmacy.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
