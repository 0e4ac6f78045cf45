package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xplshn/bright/pkg/cli"
	"github.com/xplshn/bright/pkg/control"
)

type Feature int

const (
	FeatStrictArity Feature = iota
	FeatStrictVars
	FeatNativeBlock
	FeatJSAlias
	FeatLineInfo
	FeatCount
)

type Warning int

const (
	WarnShadowArg Warning = iota
	WarnUnreachableCode
	WarnImplicitDecl
	WarnCondAssign
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features     map[Feature]Info
	Warnings     map[Warning]Info
	FeatureMap   map[string]Feature
	WarningMap   map[string]Warning
	ProfileName  string
	Cleanup      control.Policy
	AwaitTimeout time.Duration
	IncludePaths []string
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
		Cleanup:    control.KeepFirst,
	}

	features := map[Feature]Info{
		FeatStrictArity: {"strict-arity", true, "Report a call with fewer arguments than declared through its completion."},
		FeatStrictVars:  {"strict-vars", true, "Treat reads and writes of undeclared names as errors."},
		FeatNativeBlock: {"native-block", true, "Allow `native { ... }` host-code blocks."},
		FeatJSAlias:     {"js-alias", false, "Accept `javascript { ... }` as an alias for `native`."},
		FeatLineInfo:    {"line-info", true, "Attach the source line to runtime errors."},
	}

	warnings := map[Warning]Info{
		WarnShadowArg:       {"shadow-arg", true, "Warn when `var` redeclares an argument."},
		WarnUnreachableCode: {"unreachable-code", true, "Warn about statements after return, throw, break or continue."},
		WarnImplicitDecl:    {"implicit-decl", false, "Warn when `let` declares a name that was never declared with `var`."},
		WarnCondAssign:      {"cond-assign", true, "Warn when `=` in an if or loop condition is read as `==`."},
		WarnExtra:           {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// Clone returns an independent copy, so a compile can adjust settings locally.
func (c *Config) Clone() *Config {
	n := *c
	n.Features = make(map[Feature]Info, len(c.Features))
	n.Warnings = make(map[Warning]Info, len(c.Warnings))
	for k, v := range c.Features {
		n.Features[k] = v
	}
	for k, v := range c.Warnings {
		n.Warnings[k] = v
	}
	n.IncludePaths = append([]string(nil), c.IncludePaths...)
	return &n
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// WarningByName is used by the parser, which reports warnings by flag name.
func (c *Config) WarningByName(name string) (Warning, bool) {
	w, ok := c.WarningMap[name]
	return w, ok
}

func (c *Config) ApplyProfile(name string) error {
	c.ProfileName = name
	switch name {
	case "strict":
		c.SetFeature(FeatStrictArity, true)
		c.SetFeature(FeatStrictVars, true)
		c.SetFeature(FeatJSAlias, false)
		c.SetWarning(WarnImplicitDecl, true)
		c.Cleanup = control.KeepFirst
	case "loose":
		c.SetFeature(FeatStrictArity, false)
		c.SetFeature(FeatStrictVars, false)
		c.SetFeature(FeatJSAlias, true)
		c.SetWarning(WarnImplicitDecl, false)
		c.SetWarning(WarnShadowArg, false)
	case "legacy":
		// the behavior of the first releases: arguments are checked, cleanup failures
		// replace the error in flight and `javascript` blocks are accepted
		c.SetFeature(FeatStrictArity, true)
		c.SetFeature(FeatStrictVars, true)
		c.SetFeature(FeatJSAlias, true)
		c.Cleanup = control.Overwrite
	default:
		return fmt.Errorf("unsupported profile '%s'. Supported: 'strict', 'loose', 'legacy'", name)
	}
	return nil
}

// Fingerprint is a stable summary of every setting that changes how source compiles.
func (c *Config) Fingerprint() string {
	var parts []string
	for i := Feature(0); i < FeatCount; i++ {
		if c.IsFeatureEnabled(i) {
			parts = append(parts, "F"+c.Features[i].Name)
		}
	}
	for i := Warning(0); i < WarnCount; i++ {
		if c.IsWarningEnabled(i) {
			parts = append(parts, "W"+c.Warnings[i].Name)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else {
		if f, ok := c.FeatureMap[name]; ok {
			c.SetFeature(f, enable)
		}
	}
}

// ProcessDirectiveFlags applies a space separated list such as "-Wall -Fno-strict-vars".
// -Wall and -Wno-all go first so individual flags can refine them.
func (c *Config) ProcessDirectiveFlags(flagStr string) {
	fields := strings.Fields(flagStr)
	for _, flag := range fields {
		if flag == "-Wall" || flag == "-Wno-all" {
			c.applyFlag(flag)
		}
	}
	for _, flag := range fields {
		if flag != "-Wall" && flag != "-Wno-all" {
			c.applyFlag(flag)
		}
	}
}

// SetupFlagGroups registers -W<name>/-Wno-<name> and -F<name>/-Fno-<name> on fs. The
// returned entries are indexed by Warning and Feature and only record what was given
// on the command line; see ApplyFlagGroups.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) (warningFlags, featureFlags []cli.FlagGroupEntry) {
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		warningFlags = append(warningFlags, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description, Enabled: new(bool), Disabled: new(bool),
		})
	}
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		featureFlags = append(featureFlags, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description, Enabled: new(bool), Disabled: new(bool),
		})
	}
	fs.AddFlagGroup("Warning Flags", "Enable or disable specific warnings", "warning flag", "Available Warning Flags:", warningFlags)
	fs.AddFlagGroup("Feature Flags", "Enable or disable specific features", "feature flag", "Available feature flags:", featureFlags)
	return warningFlags, featureFlags
}

// ApplyFlagGroups copies flags given on the command line into the config, overriding
// the profile.
func (c *Config) ApplyFlagGroups(warningFlags, featureFlags []cli.FlagGroupEntry) {
	for i, entry := range warningFlags {
		if *entry.Enabled {
			c.SetWarning(Warning(i), true)
		}
		if *entry.Disabled {
			c.SetWarning(Warning(i), false)
		}
	}
	for i, entry := range featureFlags {
		if *entry.Enabled {
			c.SetFeature(Feature(i), true)
		}
		if *entry.Disabled {
			c.SetFeature(Feature(i), false)
		}
	}
}
