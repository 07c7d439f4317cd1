package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeep(t *testing.T) {
	server := []string{"a", "d", "l"}

	tests := []struct {
		name  string
		args  []string
		names []string
		want  []string
	}{
		{"separate value", []string{"-a", ":8080", "-x", "1"}, server, []string{"-a", ":8080"}},
		{"equals form", []string{"-d=postgres://db", "-c", "vault.yaml"}, server, []string{"-d=postgres://db"}},
		{"double dash is the same flag", []string{"--l", "debug", "--a=:9000"}, server, []string{"--l", "debug", "--a=:9000"}},
		{"names may carry dashes", []string{"-a", ":1"}, []string{"-a"}, []string{"-a", ":1"}},
		{"boolean style flag at the end", []string{"-x", "1", "-l"}, server, []string{"-l"}},
		{"next flag is not a value", []string{"-a", "-d", "dsn"}, server, []string{"-a", "-d", "dsn"}},
		{"equals value may start with a dash", []string{"-l=-1"}, server, []string{"-l=-1"}},
		{"positional arguments dropped", []string{"migrate", "-a", ":1", "extra"}, server, []string{"-a", ":1"}},
		{"stops at terminator", []string{"-a", ":1", "--", "-d", "dsn"}, server, []string{"-a", ":1"}},
		{"repeats kept in order", []string{"-l", "info", "-l", "warn"}, server, []string{"-l", "info", "-l", "warn"}},
		{"bare dash ignored", []string{"-", "-a", ":1"}, server, []string{"-a", ":1"}},
		{"nothing owned", []string{"-x", "1"}, server, []string{}},
		{"nil args", nil, server, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Keep(tt.args, tt.names...))
		})
	}
}

func TestFlagName(t *testing.T) {
	tests := []struct {
		arg      string
		name     string
		hasValue bool
		ok       bool
	}{
		{"-a", "a", false, true},
		{"--config", "config", false, true},
		{"--config=x.yaml", "config", true, true},
		{"-c=", "c", true, true},
		{"vault.yaml", "", false, false},
		{"-", "", false, false},
		{"--", "", false, false},
		{"-=x", "", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			name, hasValue, ok := flagName(tt.arg)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.name, name)
				assert.Equal(t, tt.hasValue, hasValue)
			}
		})
	}
}

func TestConfigFile(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"short", []string{"-a", ":1", "-c", "vault.yaml"}, "vault.yaml"},
		{"long", []string{"-config", "/etc/vault.yaml"}, "/etc/vault.yaml"},
		{"long with equals", []string{"--config=/etc/vault.yaml", "-d", "dsn"}, "/etc/vault.yaml"},
		{"last wins", []string{"-c", "one.yaml", "-config", "two.yaml"}, "two.yaml"},
		{"missing value", []string{"-c"}, ""},
		{"absent", []string{"-a", ":1"}, ""},
		{"nil args", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfigFile(tt.args))
		})
	}
}
