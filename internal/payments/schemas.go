// internal/payments/schemas.go
package payments

// Webhook payload schemas. Validation runs after signature verification;
// a signed but malformed payload is a provider-side contract break and is
// rejected before any field is read.

const stripeEventSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["id", "type", "data"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"type": {"type": "string", "minLength": 1},
		"data": {
			"type": "object",
			"required": ["object"],
			"properties": {
				"object": {
					"type": "object",
					"required": ["id"],
					"properties": {
						"id": {"type": "string", "minLength": 1},
						"amount": {"type": "integer"},
						"currency": {"type": "string"},
						"metadata": {"type": "object"}
					}
				}
			}
		}
	}
}`

const razorpayEventSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["event", "payload"],
	"properties": {
		"event": {"type": "string", "minLength": 1},
		"payload": {
			"type": "object",
			"required": ["payment"],
			"properties": {
				"payment": {
					"type": "object",
					"required": ["entity"],
					"properties": {
						"entity": {
							"type": "object",
							"required": ["id"],
							"properties": {
								"id": {"type": "string", "minLength": 1},
								"amount": {"type": "integer"},
								"currency": {"type": "string"},
								"notes": {"type": "object"}
							}
						}
					}
				}
			}
		}
	}
}`
