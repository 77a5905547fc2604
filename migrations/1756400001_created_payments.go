package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "pbc_payments0001",
			"name": "payments",
			"type": "base",
			"system": false,
			"fields": [
				{
					"id": "text_payment_id",
					"name": "payment_id",
					"type": "text",
					"required": true,
					"presentable": true,
					"system": false
				},
				{
					"id": "text_booking_id",
					"name": "booking_id",
					"type": "text",
					"required": false,
					"presentable": false,
					"system": false
				},
				{
					"id": "text_user_id",
					"name": "user_id",
					"type": "text",
					"required": true,
					"presentable": false,
					"system": false
				},
				{
					"id": "number_amount",
					"name": "amount_minor",
					"type": "number",
					"required": false,
					"presentable": false,
					"system": false,
					"min": 0,
					"onlyInt": true
				},
				{
					"id": "text_currency",
					"name": "currency",
					"type": "text",
					"required": false,
					"presentable": false,
					"system": false
				},
				{
					"id": "select_flow_state",
					"name": "flow_state",
					"type": "select",
					"required": true,
					"presentable": false,
					"system": false,
					"maxSelect": 1,
					"values": [
						"succeeded",
						"pending",
						"failed"
					]
				},
				{
					"id": "text_provider",
					"name": "provider",
					"type": "text",
					"required": false,
					"presentable": false,
					"system": false
				}
			],
			"indexes": [
				"CREATE INDEX idx_payments_payment_id ON payments (payment_id)",
				"CREATE INDEX idx_payments_user_id ON payments (user_id)"
			],
			"listRule": null,
			"viewRule": null,
			"createRule": null,
			"updateRule": null,
			"deleteRule": null
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("pbc_payments0001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
