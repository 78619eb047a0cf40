package openapi

import (
	"encoding/json"
	"testing"
)

func TestGenerateCoversRoutes(t *testing.T) {
	doc := Generate("http://localhost:8000", "1.2.3")

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("openapi = %q, want 3.1.0", doc.OpenAPI)
	}
	if doc.Info.Version != "1.2.3" {
		t.Errorf("version = %q", doc.Info.Version)
	}

	paths := []string{
		"/healthz", "/readyz", "/mcp/tools",
		"/auth/register", "/auth/login", "/auth/me",
		"/admin/users", "/admin/users/{id}",
		"/admin/api-keys", "/admin/api-keys/{id}",
		"/agent/configs", "/agent/configs/{key}", "/agent/trigger-crawler",
		"/weather/data", "/weather/stats",
	}
	for _, p := range paths {
		if doc.Paths.Value(p) == nil {
			t.Errorf("missing path %s", p)
		}
	}
	if got := doc.Paths.Len(); got != len(paths) {
		t.Errorf("got %d paths, want %d", got, len(paths))
	}
}

func TestGenerateSecurity(t *testing.T) {
	doc := Generate("", "dev")

	if len(doc.Servers) != 0 {
		t.Errorf("servers = %v, want none without a base URL", doc.Servers)
	}

	apiKey := doc.Components.SecuritySchemes[SchemeAPIKey]
	if apiKey == nil || apiKey.Value.Name != "X-API-KEY" || apiKey.Value.In != "header" {
		t.Fatalf("apiKey scheme = %+v", apiKey)
	}

	data := doc.Paths.Value("/weather/data").Get
	if data.Security == nil || len(*data.Security) != 1 {
		t.Fatalf("weather data security = %v", data.Security)
	}
	if _, ok := (*data.Security)[0][SchemeAPIKey]; !ok {
		t.Error("weather data should require the api key scheme")
	}
	if data.Responses.Value("429") == nil {
		t.Error("weather data should document 429")
	}

	me := doc.Paths.Value("/auth/me").Get
	if _, ok := (*me.Security)[0][SchemeBearer]; !ok {
		t.Error("/auth/me should require a bearer token")
	}

	if doc.Paths.Value("/auth/login").Post.Security != nil {
		t.Error("login must not require authentication")
	}
}

func TestGenerateComponents(t *testing.T) {
	doc := Generate("", "dev")

	for _, name := range []string{"ErrorResponse", "User", "APIKey", "Setting", "WeatherRecord", "Token", "Credentials", "Message"} {
		if doc.Components.Schemas[name] == nil {
			t.Errorf("missing component %s", name)
		}
	}

	user := doc.Components.Schemas["User"].Value
	if _, ok := user.Properties["password_hash"]; ok {
		t.Error("User schema must not expose password_hash")
	}
	temp := doc.Components.Schemas["WeatherRecord"].Value.Properties["temp_min"].Value
	if !temp.Type.Includes("null") || !temp.Type.Includes("number") {
		t.Errorf("temp_min type = %v, want nullable number", temp.Type)
	}

	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := m["paths"].(map[string]interface{}); !ok {
		t.Error("marshalled document has no paths object")
	}
}
