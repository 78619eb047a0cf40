// Package openapi builds the OpenAPI 3.1 document served at /openapi.json.
package openapi

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// Security scheme names.
const (
	SchemeAPIKey = "apiKey"
	SchemeBearer = "bearerAuth"
)

// Generate returns the document describing every HTTP route.
func Generate(baseURL, version string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "WeatherHub API",
			Description: "Historical weather data with quota-metered API keys and admin management.",
			Version:     version,
		},
	}
	if baseURL != "" {
		doc.Servers = openapi3.Servers{{URL: baseURL}}
	}

	comps := openapi3.NewComponents()
	comps.Schemas = openapi3.Schemas{}
	comps.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &comps

	doc.Components.SecuritySchemes[SchemeAPIKey] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-API-KEY",
		},
	}
	doc.Components.SecuritySchemes[SchemeBearer] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}

	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
							"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
						},
					},
				},
			},
		},
	}
	for _, c := range components {
		doc.Components.Schemas[c.Name] = c.schema()
	}

	doc.Paths = openapi3.NewPaths()
	addSystemPaths(doc)
	addAuthPaths(doc)
	addAdminPaths(doc)
	addAgentPaths(doc)
	addWeatherPaths(doc)
	return doc
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func objectSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
}

func arrayOf(item *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: item}}
}

// listOf wraps item in the resource/meta list envelope.
func listOf(item *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"resource": arrayOf(item),
				"meta":     metaSchema(),
			},
		},
	}
}

func secured(op *openapi3.Operation, scheme string) *openapi3.Operation {
	op.Security = &openapi3.SecurityRequirements{{scheme: {}}}
	return op
}

func jsonBody(desc string, schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Description: desc,
			Required:    true,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	}
}

func operation(tag, id, summary string, responses *openapi3.Responses) *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{tag},
		Summary:     summary,
		OperationID: id,
		Responses:   responses,
	}
}

// ─── Paths ──────────────────────────────────────────────────────────────────

func addSystemPaths(doc *openapi3.T) {
	doc.Paths.Set("/healthz", &openapi3.PathItem{
		Get: operation("system", "health", "Liveness probe", newResponses("200", "Service is alive", objectSchema())),
	})
	doc.Paths.Set("/readyz", &openapi3.PathItem{
		Get: operation("system", "ready", "Readiness probe (database reachable)", newResponses("200", "Service is ready", objectSchema())),
	})
	doc.Paths.Set("/mcp/tools", &openapi3.PathItem{
		Get: operation("system", "list_tools", "List data and analysis tools", newResponses("200", "Tool catalogue", objectSchema())),
	})
}

func addAuthPaths(doc *openapi3.T) {
	register := operation("auth", "register", "Register a user account", newResponses("201", "Created user", ref("User")))
	register.RequestBody = jsonBody("Username and password", ref("Credentials"))
	doc.Paths.Set("/auth/register", &openapi3.PathItem{Post: register})

	login := operation("auth", "login", "Exchange credentials for a bearer token", newResponses("200", "Session token", ref("Token")))
	login.RequestBody = &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Description: "Username and password as JSON or an OAuth2 password form",
			Required:    true,
			Content: openapi3.Content{
				"application/json":                  &openapi3.MediaType{Schema: ref("Credentials")},
				"application/x-www-form-urlencoded": &openapi3.MediaType{Schema: ref("Credentials")},
			},
		},
	}
	doc.Paths.Set("/auth/login", &openapi3.PathItem{Post: login})

	doc.Paths.Set("/auth/me", &openapi3.PathItem{
		Get: secured(operation("auth", "me", "Current user", newResponses("200", "Authenticated user", ref("User"))), SchemeBearer),
	})
}

func addAdminPaths(doc *openapi3.T) {
	listUsers := secured(operation("admin", "list_users", "List users", newResponses("200", "Users", listOf(ref("User")))), SchemeBearer)
	listUsers.Parameters = pagingParameters()
	createUser := secured(operation("admin", "create_user", "Create a user with any role", newResponses("201", "Created user", ref("User"))), SchemeBearer)
	createUser.RequestBody = jsonBody("Username, password and role", objectSchema())
	doc.Paths.Set("/admin/users", &openapi3.PathItem{Get: listUsers, Post: createUser})

	updateUser := secured(operation("admin", "update_user", "Change password or active flag", newResponses("200", "Updated user", ref("User"))), SchemeBearer)
	updateUser.RequestBody = jsonBody("Fields to change", objectSchema())
	doc.Paths.Set("/admin/users/{id}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{idParameter("id")},
		Get:        secured(operation("admin", "get_user", "Get a user", newResponses("200", "User", ref("User"))), SchemeBearer),
		Patch:      updateUser,
		Delete:     secured(operation("admin", "delete_user", "Delete a user and their keys", newResponses("200", "Deleted", ref("Message"))), SchemeBearer),
	})

	listKeys := secured(operation("admin", "list_api_keys", "List API keys", newResponses("200", "API keys", listOf(ref("APIKey")))), SchemeBearer)
	listKeys.Parameters = append(pagingParameters(), &openapi3.ParameterRef{
		Value: openapi3.NewQueryParameter("user_id").
			WithDescription("Only keys owned by this user.").
			WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}),
	})
	createKey := secured(operation("admin", "create_api_key", "Issue an API key", newResponses("201", "Created key including the full access_key", ref("APIKey"))), SchemeBearer)
	createKey.RequestBody = jsonBody("user_id, quota and description", objectSchema())
	doc.Paths.Set("/admin/api-keys", &openapi3.PathItem{Get: listKeys, Post: createKey})

	updateKey := secured(operation("admin", "update_api_key", "Set quota or active flag", newResponses("200", "Updated key", ref("APIKey"))), SchemeBearer)
	updateKey.RequestBody = jsonBody("Fields to change", objectSchema())
	doc.Paths.Set("/admin/api-keys/{id}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{idParameter("id")},
		Patch:      updateKey,
		Delete:     secured(operation("admin", "delete_api_key", "Delete an API key", newResponses("200", "Deleted", ref("Message"))), SchemeBearer),
	})
}

func addAgentPaths(doc *openapi3.T) {
	createCfg := secured(operation("agent", "create_config", "Create a setting", newResponses("201", "Created setting", ref("Setting"))), SchemeBearer)
	createCfg.RequestBody = jsonBody("key, value and description", objectSchema())
	doc.Paths.Set("/agent/configs", &openapi3.PathItem{
		Get:  secured(operation("agent", "list_configs", "List settings", newResponses("200", "Settings", listOf(ref("Setting")))), SchemeBearer),
		Post: createCfg,
	})

	keyParam := &openapi3.ParameterRef{Value: openapi3.NewPathParameter("key").WithSchema(openapi3.NewStringSchema())}
	updateCfg := secured(operation("agent", "update_config", "Update a setting", newResponses("200", "Updated setting", ref("Setting"))), SchemeBearer)
	updateCfg.RequestBody = jsonBody("value and optional description", objectSchema())
	doc.Paths.Set("/agent/configs/{key}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{keyParam},
		Get:        secured(operation("agent", "get_config", "Get a setting", newResponses("200", "Setting", ref("Setting"))), SchemeBearer),
		Put:        updateCfg,
		Delete:     secured(operation("agent", "delete_config", "Delete a setting", newResponses("200", "Deleted", ref("Message"))), SchemeBearer),
	})

	trigger := secured(operation("agent", "trigger_crawler", "Crawl a city and date range into the store", newResponses("200", "Crawl result", objectSchema())), SchemeBearer)
	trigger.RequestBody = jsonBody("city, start_date and end_date", objectSchema())
	doc.Paths.Set("/agent/trigger-crawler", &openapi3.PathItem{Post: trigger})
}

func addWeatherPaths(doc *openapi3.T) {
	data := secured(operation("weather", "weather_data", "Query weather records, newest first",
		newResponses("200", "Weather records", arrayOf(ref("WeatherRecord")))), SchemeAPIKey)
	data.Description = "Each call consumes one unit of the key's quota. Malformed dates are ignored."
	data.Parameters = openapi3.Parameters{
		queryParameter("city", "City name or pinyin.", openapi3.NewStringSchema()),
		queryParameter("start_date", "Inclusive start date (YYYY-MM-DD).", openapi3.NewStringSchema().WithFormat("date")),
		queryParameter("end_date", "Inclusive end date (YYYY-MM-DD).", openapi3.NewStringSchema().WithFormat("date")),
		queryParameter("limit", "Number of records, 1-1000.", openapi3.NewIntegerSchema().WithMin(1).WithMax(1000).WithDefault(100)),
	}
	addQuotaResponse(data.Responses)
	doc.Paths.Set("/weather/data", &openapi3.PathItem{Get: data})

	stats := secured(operation("weather", "weather_stats", "Data set summary and remaining quota",
		newResponses("200", "Statistics", objectSchema())), SchemeAPIKey)
	addQuotaResponse(stats.Responses)
	doc.Paths.Set("/weather/stats", &openapi3.PathItem{Get: stats})
}

// ─── Parameter Builders ─────────────────────────────────────────────────────

func pagingParameters() openapi3.Parameters {
	return openapi3.Parameters{
		queryParameter("skip", "Number of records to skip.", openapi3.NewIntegerSchema().WithMin(0).WithDefault(0)),
		queryParameter("limit", "Maximum records to return (1-1000).", openapi3.NewIntegerSchema().WithMin(1).WithMax(1000).WithDefault(100)),
	}
}

func queryParameter(name, desc string, schema *openapi3.Schema) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: openapi3.NewQueryParameter(name).WithDescription(desc).WithSchema(schema)}
}

func idParameter(name string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: openapi3.NewPathParameter(name).
			WithDescription(fmt.Sprintf("Numeric %s.", name)).
			WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}),
	}
}

// ─── Response Helpers ───────────────────────────────────────────────────────

func errorResponse(desc string) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &desc,
			Content:     openapi3.NewContentWithJSONSchemaRef(ref("ErrorResponse")),
		},
	}
}

// newResponses builds a Responses map with a success response and standard error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	responses.Set("400", errorResponse("Bad request"))
	responses.Set("401", errorResponse("Unauthorized"))
	responses.Set("403", errorResponse("Forbidden"))
	responses.Set("404", errorResponse("Not found"))
	responses.Set("500", errorResponse("Internal server error"))
	return responses
}

func addQuotaResponse(r *openapi3.Responses) {
	r.Set("429", errorResponse("API key quota exhausted or rate limited"))
}

// metaSchema returns the schema for the "meta" field in list responses.
func metaSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"count": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:        &openapi3.Types{"integer"},
						Format:      "int64",
						Description: "Number of records in this page.",
					},
				},
				"limit": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:        &openapi3.Types{"integer"},
						Format:      "int32",
						Description: "Maximum records returned per page.",
					},
				},
				"offset": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:        &openapi3.Types{"integer"},
						Format:      "int32",
						Description: "Number of records skipped.",
					},
				},
			},
		},
	}
}
