package openapi

import "github.com/getkin/kin-openapi/openapi3"

// TypeMapping is an OpenAPI type/format pair.
type TypeMapping struct {
	Type   string // OpenAPI type: string, integer, number, boolean, object, array
	Format string // OpenAPI format: int64, double, date, date-time, etc.
}

var (
	tInt64    = TypeMapping{"integer", "int64"}
	tNumber   = TypeMapping{"number", "double"}
	tString   = TypeMapping{"string", ""}
	tBool     = TypeMapping{"boolean", ""}
	tDate     = TypeMapping{"string", "date"}
	tDateTime = TypeMapping{"string", "date-time"}
)

// field is one property of a component schema.
type field struct {
	Name     string
	Type     TypeMapping
	Nullable bool
	Desc     string
}

// component describes a response or request object.
type component struct {
	Name     string
	Fields   []field
	Required []string
}

var components = []component{
	{
		Name: "User",
		Fields: []field{
			{Name: "id", Type: tInt64},
			{Name: "username", Type: tString},
			{Name: "role", Type: tString, Desc: "admin or user"},
			{Name: "is_active", Type: tBool},
			{Name: "created_at", Type: tDateTime},
			{Name: "updated_at", Type: tDateTime},
		},
	},
	{
		Name: "APIKey",
		Fields: []field{
			{Name: "id", Type: tInt64},
			{Name: "user_id", Type: tInt64},
			{Name: "key_prefix", Type: tString, Desc: "Identifying prefix of the key; the full key is never returned after creation."},
			{Name: "access_key", Type: tString, Desc: "Full key, present only in the creation response."},
			{Name: "remaining_quota", Type: tInt64},
			{Name: "is_active", Type: tBool},
			{Name: "description", Type: tString},
			{Name: "created_at", Type: tDateTime},
			{Name: "last_used_at", Type: tDateTime, Nullable: true},
		},
	},
	{
		Name: "Setting",
		Fields: []field{
			{Name: "id", Type: tInt64},
			{Name: "key", Type: tString},
			{Name: "value", Type: tString},
			{Name: "description", Type: tString},
			{Name: "created_at", Type: tDateTime},
			{Name: "updated_at", Type: tDateTime},
		},
	},
	{
		Name: "WeatherRecord",
		Fields: []field{
			{Name: "city", Type: tString},
			{Name: "date", Type: tDate},
			{Name: "weather_condition", Type: tString},
			{Name: "temp_min", Type: tNumber, Nullable: true},
			{Name: "temp_max", Type: tNumber, Nullable: true},
			{Name: "wind_info", Type: tString},
		},
	},
	{
		Name: "Token",
		Fields: []field{
			{Name: "access_token", Type: tString},
			{Name: "token_type", Type: tString},
			{Name: "expires_in", Type: tInt64, Desc: "Seconds until the token expires."},
		},
	},
	{
		Name: "Credentials",
		Fields: []field{
			{Name: "username", Type: tString},
			{Name: "password", Type: tString},
		},
		Required: []string{"username", "password"},
	},
	{
		Name: "Message",
		Fields: []field{
			{Name: "message", Type: tString},
			{Name: "detail", Type: tString},
		},
	},
}

// typeSchema converts a TypeMapping into an OpenAPI schema.
func typeSchema(m TypeMapping, nullable bool) *openapi3.Schema {
	s := &openapi3.Schema{Type: &openapi3.Types{m.Type}}
	if nullable {
		s.Type = &openapi3.Types{m.Type, "null"}
	}
	if m.Format != "" {
		s.Format = m.Format
	}
	return s
}

func (c component) schema() *openapi3.SchemaRef {
	props := openapi3.Schemas{}
	for _, f := range c.Fields {
		s := typeSchema(f.Type, f.Nullable)
		s.Description = f.Desc
		props[f.Name] = &openapi3.SchemaRef{Value: s}
	}
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
		Required:   c.Required,
	}}
}
