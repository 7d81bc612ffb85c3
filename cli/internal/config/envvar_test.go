package config

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseEnvVar_RequiredVariable(t *testing.T) {
	ref, err := ParseEnvVar("${REDIS_ADDR}")
	if err != nil {
		t.Fatalf("ParseEnvVar failed: %v", err)
	}

	if ref.IsLiteral {
		t.Error("Expected IsLiteral=false for env var")
	}

	if ref.VarName != "REDIS_ADDR" {
		t.Errorf("Expected VarName='REDIS_ADDR', got '%s'", ref.VarName)
	}

	if ref.HasDefault {
		t.Error("Expected HasDefault=false for required variable")
	}
}

func TestParseEnvVar_WithDefault(t *testing.T) {
	ref, err := ParseEnvVar("${REDIS_ADDR:localhost:6379}")
	if err != nil {
		t.Fatalf("ParseEnvVar failed: %v", err)
	}

	if !ref.HasDefault {
		t.Error("Expected HasDefault=true")
	}

	if ref.DefaultValue != "localhost:6379" {
		t.Errorf("Expected DefaultValue='localhost:6379', got '%s'", ref.DefaultValue)
	}
}

func TestParseEnvVar_WithEmptyDefault(t *testing.T) {
	ref, err := ParseEnvVar("${API_KEY:}")
	if err != nil {
		t.Fatalf("ParseEnvVar failed: %v", err)
	}

	if !ref.HasDefault {
		t.Error("Expected HasDefault=true even for empty default")
	}

	if ref.DefaultValue != "" {
		t.Errorf("Expected empty DefaultValue, got '%s'", ref.DefaultValue)
	}
}

func TestParseEnvVar_DefaultWithSpecialChars(t *testing.T) {
	tests := []struct {
		input           string
		expectedVar     string
		expectedDefault string
	}{
		{"${DB_URL:postgres://localhost:5432/db}", "DB_URL", "postgres://localhost:5432/db"},
		{"${REDIS_ADDR:127.0.0.1:6379}", "REDIS_ADDR", "127.0.0.1:6379"},
		{"${MESSAGE:Hello, World!}", "MESSAGE", "Hello, World!"},
		{"${MY_VAR_123:x}", "MY_VAR_123", "x"},
		{"${_PRIVATE:y}", "_PRIVATE", "y"},
	}

	for _, test := range tests {
		ref, err := ParseEnvVar(test.input)
		if err != nil {
			t.Errorf("ParseEnvVar(%q) failed: %v", test.input, err)
			continue
		}

		if ref.VarName != test.expectedVar {
			t.Errorf("ParseEnvVar(%q): expected VarName=%q, got %q",
				test.input, test.expectedVar, ref.VarName)
		}

		if ref.DefaultValue != test.expectedDefault {
			t.Errorf("ParseEnvVar(%q): expected DefaultValue=%q, got %q",
				test.input, test.expectedDefault, ref.DefaultValue)
		}
	}
}

func TestParseEnvVar_Literal(t *testing.T) {
	tests := []string{
		"localhost:6379",
		"",
		"$VAR",     // Missing braces
		"VAR}",     // Missing opening brace
		"a ${VAR}", // Reference must be the whole value
	}

	for _, test := range tests {
		ref, err := ParseEnvVar(test)
		if err != nil {
			t.Errorf("ParseEnvVar(%q) should not error, got: %v", test, err)
			continue
		}

		if !ref.IsLiteral {
			t.Errorf("ParseEnvVar(%q) should treat as literal, got IsLiteral=false", test)
		}

		if ref.LiteralValue != test {
			t.Errorf("ParseEnvVar(%q) should preserve value as literal, got %q", test, ref.LiteralValue)
		}
	}
}

func TestParseEnvVar_InvalidReference(t *testing.T) {
	tests := []string{
		"${lowercase}", // Lowercase not allowed
		"${123VAR}",    // Can't start with number
		"${VAR-NAME}",  // Hyphen not allowed
		"${VAR NAME}",  // Space not allowed
		"${VAR",        // Missing closing brace
		"${}",          // Empty variable name
	}

	for _, test := range tests {
		if _, err := ParseEnvVar(test); err == nil {
			t.Errorf("ParseEnvVar(%q) should return an error", test)
		}
	}
}

func TestEnvVarRef_Value(t *testing.T) {
	t.Setenv("LOWFLOW_TEST_SET", "from-env")

	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"literal", "literal", false},
		{"${LOWFLOW_TEST_SET}", "from-env", false},
		{"${LOWFLOW_TEST_SET:fallback}", "from-env", false},
		{"${LOWFLOW_TEST_UNSET:fallback}", "fallback", false},
		{"${LOWFLOW_TEST_UNSET}", "", true},
	}

	for _, test := range tests {
		ref, err := ParseEnvVar(test.input)
		if err != nil {
			t.Fatalf("ParseEnvVar(%q) failed: %v", test.input, err)
		}
		got, err := ref.Value()
		if (err != nil) != test.wantErr {
			t.Errorf("Value(%q): error = %v, wantErr %v", test.input, err, test.wantErr)
			continue
		}
		if got != test.expected {
			t.Errorf("Value(%q) = %q, expected %q", test.input, got, test.expected)
		}
	}
}

func TestExpandNode(t *testing.T) {
	t.Setenv("LOWFLOW_TEST_PORT", "9090")
	t.Setenv("LOWFLOW_TEST_DEBUG", "true")

	src := `
server:
  port: ${LOWFLOW_TEST_PORT}
  debug: ${LOWFLOW_TEST_DEBUG}
hosts:
  - ${LOWFLOW_TEST_HOST:db.local}
  - literal
`
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if err := expandNode(&doc); err != nil {
		t.Fatalf("expandNode failed: %v", err)
	}

	var out struct {
		Server struct {
			Port  int  `yaml:"port"`
			Debug bool `yaml:"debug"`
		} `yaml:"server"`
		Hosts []string `yaml:"hosts"`
	}
	if err := doc.Decode(&out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if out.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", out.Server.Port)
	}
	if !out.Server.Debug {
		t.Error("Expected debug=true")
	}
	if len(out.Hosts) != 2 || out.Hosts[0] != "db.local" || out.Hosts[1] != "literal" {
		t.Errorf("Unexpected hosts: %v", out.Hosts)
	}
}

func TestExpandNode_MissingVariable(t *testing.T) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte("store:\n  token: ${LOWFLOW_TEST_MISSING}\n"), &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	err := expandNode(&doc)
	if err == nil {
		t.Fatal("Expected an error for a missing variable")
	}
	if !strings.Contains(err.Error(), "store: token:") {
		t.Errorf("Expected the error to name the key path, got %v", err)
	}
}
