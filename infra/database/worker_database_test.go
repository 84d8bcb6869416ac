package database

import "testing"

func TestSimpleProtocolURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no query", "postgres://u:p@db:5432/crm", "postgres://u:p@db:5432/crm?default_query_exec_mode=simple_protocol"},
		{"existing query", "postgres://db/crm?sslmode=disable", "postgres://db/crm?sslmode=disable&default_query_exec_mode=simple_protocol"},
		{"already set", "postgres://db/crm?default_query_exec_mode=exec", "postgres://db/crm?default_query_exec_mode=exec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SimpleProtocolURL(tt.in); got != tt.want {
				t.Errorf("SimpleProtocolURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDefaultPostgresConfigEnv(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "7")
	if got := DefaultPostgresConfig().MaxOpenConns; got != 7 {
		t.Errorf("MaxOpenConns = %d, want 7", got)
	}

	t.Setenv("DB_MAX_CONNS", "bogus")
	if got := DefaultPostgresConfig().MaxOpenConns; got != 25 {
		t.Errorf("MaxOpenConns = %d, want 25", got)
	}
}
