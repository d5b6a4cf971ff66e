package constants

import "testing"

func TestBackend_Valid(t *testing.T) {
	tests := []struct {
		name    string
		backend Backend
		want    bool
	}{
		{
			name:    "memory is valid",
			backend: BackendMemory,
			want:    true,
		},
		{
			name:    "sqlite is valid",
			backend: BackendSQLite,
			want:    true,
		},
		{
			name:    "empty string is invalid",
			backend: Backend(""),
			want:    false,
		},
		{
			name:    "SQLITE uppercase is invalid",
			backend: Backend("SQLITE"),
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.backend.Valid(); got != tt.want {
				t.Errorf("Backend.Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackend_String(t *testing.T) {
	if got := BackendSQLite.String(); got != "sqlite" {
		t.Errorf("Backend.String() = %v, want sqlite", got)
	}
}
