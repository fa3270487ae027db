package dispatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_full_document(t *testing.T) {
	t.Parallel()

	c, err := ParseConfig([]byte(`
name: orders
base_path: /api/v2
secret: hunter2
realm: orders
challenge: Bearer
token_location: header
token_header: X-Api-Token
`))
	require.NoError(t, err)

	assert.Equal(t, "orders", c.Name)
	assert.Equal(t, "/api/v2", c.BasePath)
	assert.Equal(t, "header", c.TokenLocation)
	assert.Equal(t, "X-Api-Token", c.TokenHeader)
}

func TestParseConfig_defaults_to_bearer_location(t *testing.T) {
	t.Parallel()

	c, err := ParseConfig([]byte("name: orders\n"))
	require.NoError(t, err)
	assert.Equal(t, TokenBearer, tokenLocations[c.TokenLocation])
}

func TestParseConfig_rejects_missing_name(t *testing.T) {
	t.Parallel()

	_, err := ParseConfig([]byte("base_path: /api\n"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "name is required")
}

func TestParseConfig_rejects_unknown_token_location(t *testing.T) {
	t.Parallel()

	_, err := ParseConfig([]byte("name: orders\ntoken_location: query\n"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown token_location")
}

func TestParseConfig_header_location_requires_header_name(t *testing.T) {
	t.Parallel()

	_, err := ParseConfig([]byte("name: orders\ntoken_location: header\n"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "requires token_header")
}

func TestParseConfig_rejects_malformed_yaml(t *testing.T) {
	t.Parallel()

	_, err := ParseConfig([]byte("name: [unclosed"))
	require.Error(t, err)
}

func TestConfig_options_apply_to_application(t *testing.T) {
	t.Parallel()

	c := &Config{
		Name:          "orders",
		BasePath:      "/api",
		Secret:        "hunter2",
		Realm:         "orders",
		TokenLocation: "cookie",
	}
	require.NoError(t, c.Validate())

	app := NewApplication(c.Options()...)
	assert.Equal(t, "orders", app.name)
	assert.Equal(t, "/api", app.basePath)
	assert.Equal(t, []byte("hunter2"), app.secret)
	assert.Equal(t, "orders", app.realm)
	assert.Equal(t, TokenCookie, app.tokenLoc)
}

func TestLoadConfig_reads_file(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: orders\n"), 0o600))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "orders", c.Name)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
