package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "pbc_credits0001",
			"name": "credits",
			"type": "base",
			"system": false,
			"fields": [
				{
					"id": "text_credit_id",
					"name": "credit_id",
					"type": "text",
					"required": true,
					"presentable": true,
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
					"id": "select_status",
					"name": "status",
					"type": "select",
					"required": true,
					"presentable": false,
					"system": false,
					"maxSelect": 1,
					"values": [
						"ACTIVE",
						"EXPIRED",
						"EXHAUSTED",
						"FROZEN"
					]
				},
				{
					"id": "text_event_type",
					"name": "eligible_event_type",
					"type": "text",
					"required": true,
					"presentable": false,
					"system": false
				},
				{
					"id": "number_units",
					"name": "remaining_units",
					"type": "number",
					"required": false,
					"presentable": false,
					"system": false,
					"min": 0,
					"onlyInt": true
				},
				{
					"id": "date_expires",
					"name": "expires_at",
					"type": "date",
					"required": false,
					"presentable": false,
					"system": false
				}
			],
			"indexes": [
				"CREATE UNIQUE INDEX idx_credits_credit_id ON credits (credit_id)",
				"CREATE INDEX idx_credits_user_id ON credits (user_id)"
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
		collection, err := app.FindCollectionByNameOrId("pbc_credits0001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
