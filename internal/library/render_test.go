package library

import (
	"reflect"
	"testing"
)

func TestPlaceholders(t *testing.T) {
	sql := "SELECT * FROM t WHERE a = '{{start}}' AND b < '{{ end }}' OR a = '{{start}}'"
	got := Placeholders(sql)
	if want := []string{"start", "end"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Placeholders() = %v, want %v", got, want)
	}
	if got := Placeholders("SELECT 1"); len(got) != 0 {
		t.Errorf("expected none, got %v", got)
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name       string
		sql        string
		values     map[string]string
		want       string
		unresolved []string
	}{
		{
			name:       "all resolved",
			sql:        "WHERE brand = '{{brand}}' AND n > {{ n }}",
			values:     map[string]string{"brand": "acme", "n": "5"},
			want:       "WHERE brand = 'acme' AND n > 5",
			unresolved: []string{},
		},
		{
			name:       "datetime normalized",
			sql:        "WHERE ts >= '{{from}}'",
			values:     map[string]string{"from": "2024-01-02T10:30"},
			want:       "WHERE ts >= '2024-01-02 10:30:00'",
			unresolved: []string{},
		},
		{
			name:       "missing value kept",
			sql:        "WHERE a = '{{a}}' AND b = '{{b}}' AND c = '{{b}}'",
			values:     map[string]string{"a": "1"},
			want:       "WHERE a = '1' AND b = '{{b}}' AND c = '{{b}}'",
			unresolved: []string{"b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, unresolved := Render(tt.sql, tt.values)
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
			if !reflect.DeepEqual(unresolved, tt.unresolved) {
				t.Errorf("unresolved = %v, want %v", unresolved, tt.unresolved)
			}
		})
	}
}

func TestNormalizeDateTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-01-02T10:30", "2024-01-02 10:30:00"},
		{"2024-01-02 10-30-15", "2024-01-02 10:30:15"},
		{"2024-01-02 10:30", "2024-01-02 10:30:00"},
		{"2024-01-02", "2024-01-02"},
		{"Tokyo", "Tokyo"},
		{"", ""},
		{"42", "42"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeDateTime(tt.in); got != tt.want {
				t.Errorf("NormalizeDateTime(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
