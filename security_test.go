// security_test.go: Tests for path validation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"strings"
	"testing"
)

func TestValidateSecurePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"resource", "/src/demo/src/main/resources/application.properties", false},
		{"relative", "config/application.yml", false},
		{"dots in name", "/src/a..b/application.yml", false},
		{"empty", "", true},
		{"traversal", "/src/../../etc/hosts", true},
		{"windows traversal", `C:\src\..\secret`, true},
		{"encoded traversal", "/src/%2e%2e/secret", true},
		{"null byte", "/src/app\x00.yml", true},
		{"control character", "/src/app\n.yml", true},
		{"system file", "/etc/passwd", true},
		{"shadow", "/etc/shadow", true},
		{"proc", "/proc/self/environ", true},
		{"sys root", "/sys", true},
		{"device", "/dev/null", true},
		{"double slash device", "//dev//null", true},
		{"windows system", `C:\Windows\System32\drivers\etc\hosts`, true},
		{"project under dev", "/home/alice/dev/shop/src/main/resources/application.properties", false},
		{"project under proc", "/work/proc/app/application.yml", false},
		{"relative dev", "dev/application.yml", false},
		{"devtools dir", "/devtools/application.yml", false},
		{"device name", "/src/CON.properties", true},
		{"too long", "/" + strings.Repeat("a", 5000), true},
		{"too deep", strings.Repeat("/a", 200), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSecurePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSecurePath(%q) = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil && GetValidationErrorCode(err) != ErrCodeUnsafePath {
				t.Errorf("unexpected code for %v", err)
			}
		})
	}
}

func TestUnderRoot(t *testing.T) {
	tests := []struct {
		path, root string
		want       bool
	}{
		{"/proj/main/application.yml", "/proj/main", true},
		{"/proj/main", "/proj/main/", true},
		{"/proj/main/config/application.yml", "/proj", true},
		{"/proj/mainx/application.yml", "/proj/main", false},
		{"/other/application.yml", "/proj", false},
		{"/proj/a.yml", "", false},
	}
	for _, tt := range tests {
		if got := underRoot(tt.path, tt.root); got != tt.want {
			t.Errorf("underRoot(%q, %q) = %v, want %v", tt.path, tt.root, got, tt.want)
		}
	}
}
