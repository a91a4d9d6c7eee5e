package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTemplateValidates(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("org-1")))
	if err != nil {
		t.Fatalf("default template invalid: %v", err)
	}
	if cfg.Org.ID != "org-1" {
		t.Fatalf("org id = %q, want org-1", cfg.Org.ID)
	}
	if cfg.Leave.Allowances["paid"] != 18 {
		t.Fatalf("paid allowance = %d, want 18", cfg.Leave.Allowances["paid"])
	}
	if cfg.Notifications.Buffer != 64 {
		t.Fatalf("notification buffer = %d, want 64", cfg.Notifications.Buffer)
	}
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing org id", "org:\n  name: x\nleave:\n  allowances:\n    paid: 1\n    sick: 1\n    casual: 1\nattendance:\n  work_modes: [office]\n"},
		{"missing leave type", "org:\n  id: o\nleave:\n  allowances:\n    paid: 1\n    sick: 1\nattendance:\n  work_modes: [office]\n"},
		{"negative allowance", "org:\n  id: o\nleave:\n  allowances:\n    paid: -1\n    sick: 1\n    casual: 1\nattendance:\n  work_modes: [office]\n"},
		{"unknown leave type", "org:\n  id: o\nleave:\n  allowances:\n    paid: 1\n    sick: 1\n    casual: 1\n    sabbatical: 30\nattendance:\n  work_modes: [office]\n"},
		{"no work modes", "org:\n  id: o\nleave:\n  allowances:\n    paid: 1\n    sick: 1\n    casual: 1\n"},
		{"unknown work mode", "org:\n  id: o\nleave:\n  allowances:\n    paid: 1\n    sick: 1\n    casual: 1\nattendance:\n  work_modes: [hybrid]\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromYAML([]byte(tc.yaml)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for missing config")
	}
	if cfg, err := LoadOptional(dir); err != nil || cfg != nil {
		t.Fatalf("LoadOptional on empty workspace = (%v, %v), want (nil, nil)", cfg, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "teamline.yml"), []byte(GenerateDefault("org-2")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Org.ID != "org-2" {
		t.Fatalf("org id = %q, want org-2", cfg.Org.ID)
	}
}
