package config

import (
	"testing"

	"github.com/xplshn/bright/pkg/cli"
	"github.com/xplshn/bright/pkg/control"
)

func TestProfiles(t *testing.T) {
	tests := []struct {
		profile     string
		strictVars  bool
		strictArity bool
		jsAlias     bool
		cleanup     control.Policy
	}{
		{"strict", true, true, false, control.KeepFirst},
		{"loose", false, false, true, control.KeepFirst},
		{"legacy", true, true, true, control.Overwrite},
	}
	for _, tc := range tests {
		cfg := NewConfig()
		if err := cfg.ApplyProfile(tc.profile); err != nil {
			t.Fatalf("%s: %v", tc.profile, err)
		}
		if got := cfg.IsFeatureEnabled(FeatStrictVars); got != tc.strictVars {
			t.Errorf("%s: strict-vars = %v", tc.profile, got)
		}
		if got := cfg.IsFeatureEnabled(FeatStrictArity); got != tc.strictArity {
			t.Errorf("%s: strict-arity = %v", tc.profile, got)
		}
		if got := cfg.IsFeatureEnabled(FeatJSAlias); got != tc.jsAlias {
			t.Errorf("%s: js-alias = %v", tc.profile, got)
		}
		if cfg.Cleanup != tc.cleanup {
			t.Errorf("%s: cleanup = %v", tc.profile, cfg.Cleanup)
		}
	}
	if err := NewConfig().ApplyProfile("fast"); err == nil {
		t.Error("unknown profile accepted")
	}
}

func TestDirectiveFlags(t *testing.T) {
	cfg := NewConfig()
	cfg.ProcessDirectiveFlags("-Wno-extra -Wall -Fno-strict-vars -Fjs-alias -Wunknown")
	for i := Warning(0); i < WarnCount; i++ {
		want := i != WarnExtra
		if got := cfg.IsWarningEnabled(i); got != want {
			t.Errorf("warning %s = %v; want %v", cfg.Warnings[i].Name, got, want)
		}
	}
	if cfg.IsFeatureEnabled(FeatStrictVars) || !cfg.IsFeatureEnabled(FeatJSAlias) {
		t.Error("feature flags were not applied")
	}
}

func TestCloneAndFingerprint(t *testing.T) {
	cfg := NewConfig()
	cfg.IncludePaths = []string{"lib"}
	clone := cfg.Clone()
	if clone.Fingerprint() != cfg.Fingerprint() {
		t.Error("clone has a different fingerprint")
	}

	clone.SetWarning(WarnImplicitDecl, true)
	clone.IncludePaths[0] = "other"
	if cfg.IsWarningEnabled(WarnImplicitDecl) || cfg.IncludePaths[0] != "lib" {
		t.Error("changing the clone changed the original")
	}
	if clone.Fingerprint() == cfg.Fingerprint() {
		t.Error("fingerprint ignores warnings")
	}

	clone = cfg.Clone()
	clone.Cleanup = control.Join
	if clone.Fingerprint() != cfg.Fingerprint() {
		t.Error("fingerprint depends on the cleanup policy")
	}
}

func TestFlagGroups(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.ApplyProfile("loose"); err != nil {
		t.Fatal(err)
	}
	fs := cli.NewFlagSet("bright")
	warnings, features := cfg.SetupFlagGroups(fs)
	if err := fs.Parse([]string{"-Fstrict-vars", "-Wno-cond-assign", "script.bright"}); err != nil {
		t.Fatal(err)
	}
	cfg.ApplyFlagGroups(warnings, features)

	if !cfg.IsFeatureEnabled(FeatStrictVars) {
		t.Error("-Fstrict-vars did not override the profile")
	}
	if cfg.IsFeatureEnabled(FeatStrictArity) {
		t.Error("a flag that was not given changed strict-arity")
	}
	if cfg.IsWarningEnabled(WarnCondAssign) {
		t.Error("-Wno-cond-assign was not applied")
	}
	if args := fs.Args(); len(args) != 1 || args[0] != "script.bright" {
		t.Errorf("Args = %v", args)
	}
}
