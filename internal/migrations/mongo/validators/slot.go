package validators

import "go.mongodb.org/mongo-driver/bson"

// SlotValidator also enforces that a locked slot names its booking.
var SlotValidator = bson.M{
	"$and": bson.A{
		bson.M{"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": []string{
				"provider_id",
				"start_time",
				"end_time",
				"locked",
				"created_at",
			},
			"additionalProperties": true,

			"properties": bson.M{
				"provider_id": bson.M{
					"bsonType":  "string",
					"minLength": 24,
					"maxLength": 24,
				},
				"start_time": bson.M{"bsonType": "date"},
				"end_time":   bson.M{"bsonType": "date"},
				"locked":     bson.M{"bsonType": "bool"},
				"booking_id": bson.M{"bsonType": "string"},
				"created_at": bson.M{"bsonType": "date"},
			},
		}},
		bson.M{"$or": bson.A{
			bson.M{"locked": false, "booking_id": bson.M{"$exists": false}},
			bson.M{"locked": true, "booking_id": bson.M{"$type": "string"}},
		}},
	},
}

var ProviderValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"display_name",
			"email",
			"time_zone",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"display_name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},
			"email":     bson.M{"bsonType": "string"},
			"time_zone": bson.M{"bsonType": "string"},
			"calendar_feeds": bson.M{
				"bsonType": "array",
				"maxItems": 10,
				"items":    bson.M{"bsonType": "string"},
			},
			"hourly_rate_cents": bson.M{
				"bsonType": "long",
				"minimum":  0,
			},
			"created_at": bson.M{"bsonType": "date"},
		},
	},
}
