package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		name    string
		version int
		wantErr string
	}{
		{name: "current", version: CurrentVersion},
		{name: "unset", version: 0},
		{name: "negative", version: -1, wantErr: "unsupported"},
		{name: "newer", version: CurrentVersion + 1, wantErr: "newer than this build"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVersion(tt.version)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateVersion(%d) = %v, want nil", tt.version, err)
				}
				return
			}
			var ve *VersionError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *VersionError, got %T", err)
			}
			if ve.Current != CurrentVersion {
				t.Errorf("Current = %d, want %d", ve.Current, CurrentVersion)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestVersionError_Nil(t *testing.T) {
	var ve *VersionError
	if ve.Error() != "" {
		t.Fatal("nil VersionError should render empty")
	}
}
