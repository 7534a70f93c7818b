package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	stopType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Stop",
		Fields: graphql.Fields{
			"id":              &graphql.Field{Type: graphql.String},
			"route_id":        &graphql.Field{Type: graphql.String},
			"sequence_number": &graphql.Field{Type: graphql.Int},
			"name":            &graphql.Field{Type: graphql.String},
			"location":        &graphql.Field{Type: geoPointType},
			"state":           &graphql.Field{Type: graphql.String},
			"quantity":        &graphql.Field{Type: graphql.Float},
		},
	})

	routeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Route",
		Fields: graphql.Fields{
			"id":                 &graphql.Field{Type: graphql.String},
			"name":               &graphql.Field{Type: graphql.String},
			"status":             &graphql.Field{Type: graphql.String},
			"vehicle_id":         &graphql.Field{Type: graphql.String},
			"driver_id":          &graphql.Field{Type: graphql.String},
			"total_distance_km":  &graphql.Field{Type: graphql.Float},
			"total_duration_min": &graphql.Field{Type: graphql.Float},
			"metrics_stale":      &graphql.Field{Type: graphql.Boolean},
			"version":            &graphql.Field{Type: graphql.Int},
			"stops":              &graphql.Field{Type: graphql.NewList(stopType)},
		},
	})

	positionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Position",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"vehicle_id": &graphql.Field{Type: graphql.String},
			"route_id":   &graphql.Field{Type: graphql.String},
			"location":   &graphql.Field{Type: geoPointType},
			"speed":      &graphql.Field{Type: graphql.Float},
			"heading":    &graphql.Field{Type: graphql.Float},
		},
	})

	progressType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RouteProgress",
		Fields: graphql.Fields{
			"route_id":            &graphql.Field{Type: graphql.String},
			"status":              &graphql.Field{Type: graphql.String},
			"completed_stops":     &graphql.Field{Type: graphql.Int},
			"pending_stops":       &graphql.Field{Type: graphql.Int},
			"next_stop":           &graphql.Field{Type: stopType},
			"distance_to_next_km": &graphql.Field{Type: graphql.Float},
			"metrics_stale":       &graphql.Field{Type: graphql.Boolean},
		},
	})

	eventType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeofenceEvent",
		Fields: graphql.Fields{
			"id":                   &graphql.Field{Type: graphql.String},
			"route_id":             &graphql.Field{Type: graphql.String},
			"stop_id":              &graphql.Field{Type: graphql.String},
			"vehicle_id":           &graphql.Field{Type: graphql.String},
			"type":                 &graphql.Field{Type: graphql.String},
			"distance_to_target_m": &graphql.Field{Type: graphql.Float},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"routes": &graphql.Field{
				Type:        graphql.NewList(routeType),
				Description: "List all delivery routes",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Routes.List(p.Context)
				},
			},
			"route": &graphql.Field{
				Type:        routeType,
				Description: "Get a route by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					return deps.Routes.GetByID(p.Context, id)
				},
			},
			"routeProgress": &graphql.Field{
				Type:        progressType,
				Description: "Derived progress view of a route",
				Args: graphql.FieldConfigArgument{
					"route_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					routeID := p.Args["route_id"].(string)
					return deps.Progress.Progress(p.Context, routeID)
				},
			},
			"latestPosition": &graphql.Field{
				Type:        positionType,
				Description: "Most recent GPS reading for a vehicle",
				Args: graphql.FieldConfigArgument{
					"vehicle_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					vehicleID := p.Args["vehicle_id"].(string)
					return deps.Positions.LatestByVehicle(p.Context, vehicleID)
				},
			},
			"routeEvents": &graphql.Field{
				Type:        graphql.NewList(eventType),
				Description: "Geofence events recorded against a route",
				Args: graphql.FieldConfigArgument{
					"route_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"limit":    &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					routeID := p.Args["route_id"].(string)
					limit := p.Args["limit"].(int)
					return deps.Events.ListByRoute(p.Context, routeID, limit)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
