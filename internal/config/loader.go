package config

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"grimm.is/topoctl/internal/reconcile"
	"grimm.is/topoctl/internal/topology"
)

// maxSourceSize bounds topology files fetched over HTTP.
const maxSourceSize = 4 << 20

// LoadOptions controls how topology files are loaded
type LoadOptions struct {
	// Variables set var.<name> values, overriding declared defaults.
	Variables map[string]string

	// HTTPClient fetches http(s) sources. Nil uses a client with a 30s
	// timeout.
	HTTPClient *http.Client
}

// DefaultLoadOptions returns the options used when none are given
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{}
}

// Settings are the engine settings resolved from a settings block.
type Settings struct {
	Policy reconcile.Policy
	Retry  reconcile.RetryConfig
}

// DefaultSettings returns the settings of a file without a settings block.
func DefaultSettings() Settings {
	return Settings{
		Policy: reconcile.PolicyReject,
		Retry:  reconcile.DefaultRetryConfig(),
	}
}

// LoadResult contains the loaded file and what was derived from it
type LoadResult struct {
	Source       string
	Version      SchemaVersion
	Config       *Config
	Declarations topology.Declarations
	Settings     Settings
	Warnings     []string
}

// LoadFile loads a topology file from a path or an http(s) URL.
func LoadFile(source string, opts LoadOptions) (*LoadResult, error) {
	data, err := readSource(source, opts)
	if err != nil {
		return nil, err
	}
	return Load(data, source, opts)
}

// Load parses a topology file. filename selects the syntax: ".json" is
// HCL's JSON syntax, ".hcl" is native syntax, anything else tries native
// syntax first and falls back to JSON.
func Load(data []byte, filename string, opts LoadOptions) (*LoadResult, error) {
	file, err := parse(data, filename)
	if err != nil {
		return nil, err
	}

	// First pass: schema version and variable declarations only.
	var header struct {
		SchemaVersion string     `hcl:"schema_version,optional"`
		Variables     []Variable `hcl:"variable,block"`
		Remain        hcl.Body   `hcl:",remain"`
	}
	if diags := gohcl.DecodeBody(file.Body, nil, &header); diags.HasErrors() {
		return nil, fmt.Errorf("HCL decode error: %s", diags.Error())
	}

	version, err := ParseVersion(header.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid schema version: %w", err)
	}
	if !IsSupportedVersion(version) {
		return nil, fmt.Errorf("unsupported topology schema version %s (current: %s)", version, CurrentSchemaVersion)
	}

	evalCtx, warnings, err := evalContext(header.Variables, opts.Variables)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, evalCtx, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("HCL decode error: %s", diags.Error())
	}

	decls, err := cfg.Declarations()
	if err != nil {
		return nil, err
	}
	settings, err := cfg.Settings.resolve()
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}

	return &LoadResult{
		Source:       filename,
		Version:      version,
		Config:       &cfg,
		Declarations: decls,
		Settings:     settings,
		Warnings:     warnings,
	}, nil
}

func parse(data []byte, filename string) (*hcl.File, error) {
	parser := hclparse.NewParser()

	switch strings.ToLower(path.Ext(sourcePath(filename))) {
	case ".json":
		file, diags := parser.ParseJSON(data, filename)
		if diags.HasErrors() {
			return nil, fmt.Errorf("JSON parse error: %s", diags.Error())
		}
		return file, nil
	case ".hcl":
		file, diags := parser.ParseHCL(data, filename)
		if diags.HasErrors() {
			return nil, fmt.Errorf("HCL parse error: %s", diags.Error())
		}
		return file, nil
	}

	// Try HCL first, fall back to JSON
	file, diags := parser.ParseHCL(data, filename)
	if !diags.HasErrors() {
		return file, nil
	}
	if jsonFile, jsonDiags := parser.ParseJSON(data, filename); !jsonDiags.HasErrors() {
		return jsonFile, nil
	}
	return nil, fmt.Errorf("HCL parse error: %s", diags.Error())
}

// evalContext exposes variables as var.<name>. Values set by the caller
// override defaults; setting an undeclared variable is allowed but warned
// about.
func evalContext(declared []Variable, set map[string]string) (*hcl.EvalContext, []string, error) {
	vals := make(map[string]cty.Value, len(declared)+len(set))
	var warnings []string

	known := make(map[string]bool, len(declared))
	for _, v := range declared {
		if known[v.Name] {
			return nil, nil, fmt.Errorf("variable %q declared twice", v.Name)
		}
		known[v.Name] = true
		if val, ok := set[v.Name]; ok {
			vals[v.Name] = cty.StringVal(val)
			continue
		}
		if v.Default == nil {
			return nil, nil, fmt.Errorf("variable %q has no default and was not set", v.Name)
		}
		vals[v.Name] = cty.StringVal(*v.Default)
	}

	for name, val := range set {
		if !known[name] {
			vals[name] = cty.StringVal(val)
			warnings = append(warnings, fmt.Sprintf("variable %q is set but not declared", name))
		}
	}
	slices.Sort(warnings)

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": cty.ObjectVal(vals)},
	}, warnings, nil
}

func (s *SettingsBlock) resolve() (Settings, error) {
	out := DefaultSettings()
	if s == nil {
		return out, nil
	}

	policy, err := reconcile.ParsePolicy(s.DivergedPolicy)
	if err != nil {
		return out, err
	}
	out.Policy = policy

	r := s.Retry
	if r == nil {
		return out, nil
	}
	if r.Attempts < 0 {
		return out, fmt.Errorf("retry attempts must not be negative, got %d", r.Attempts)
	}
	if r.Attempts > 0 {
		out.Retry.MaxAttempts = r.Attempts
	}
	if out.Retry.InitialDelay, err = duration("initial_delay", r.InitialDelay, out.Retry.InitialDelay); err != nil {
		return out, err
	}
	if out.Retry.MaxDelay, err = duration("max_delay", r.MaxDelay, out.Retry.MaxDelay); err != nil {
		return out, err
	}
	if out.Retry.InitialDelay > out.Retry.MaxDelay {
		return out, fmt.Errorf("retry initial_delay %s exceeds max_delay %s", out.Retry.InitialDelay, out.Retry.MaxDelay)
	}
	return out, nil
}

func duration(name, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("retry %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("retry %s must be positive, got %s", name, s)
	}
	return d, nil
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// sourcePath returns the path part of a URL source, or source itself.
func sourcePath(source string) string {
	if !isURL(source) {
		return source
	}
	if u, err := url.Parse(source); err == nil {
		return u.Path
	}
	return source
}

func readSource(source string, opts LoadOptions) ([]byte, error) {
	if !isURL(source) {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read topology file: %w", err)
		}
		return data, nil
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Get(source)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch topology: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch topology %s: %s", source, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read topology %s: %w", source, err)
	}
	if len(data) > maxSourceSize {
		return nil, fmt.Errorf("topology %s exceeds %d bytes", source, maxSourceSize)
	}
	return data, nil
}
