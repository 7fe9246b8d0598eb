// Copyright © 2017 Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config is the process-wide, read-mostly snapshot . It is
// built once at startup by LoadConfig and handed to workers as a shared
// immutable reference -- exactly the "ambient mutable global becomes an
// explicit Context" re-architecture this module follows.
type Config struct {
	APIProtocol string
	APIHost     string
	APIPort     string
	AuthToken   string
	CACertPath  string // "NOVERIFY" disables peer verification
	Project     string
	JobID       string
	WorkspaceID string
	UserAgent   string
	Verbose     bool
}

// BaseURL renders the configured API protocol/host/port into a URL prefix.
func (c Config) BaseURL() string {
	if c.APIPort != "" {
		return fmt.Sprintf("%s://%s:%s", c.APIProtocol, c.APIHost, c.APIPort)
	}
	return fmt.Sprintf("%s://%s", c.APIProtocol, c.APIHost)
}

const (
	defaultAPIProtocol = "https"
	defaultAPIHost     = "api.dnanexus.com"
)

// legacyConfigFileName is the shell-export config file predating the JSON
// one; still honored for backward compatibility.
const legacyConfigFileName = "environment"
const jsonConfigFileName = "environment.json"

// LoadConfig composes the five config layers, in precedence
// order: explicit command-line value (highest) -> environment variable ->
// JSON config file -> legacy shell-export config file -> built-in default
// (lowest). cliOverrides should only contain keys the user actually passed
// on the command line; zero-value entries are treated as "not set".
func LoadConfig(configDir string, cliOverrides map[string]string) (Config, []string) {
	var warnings []string
	cfg := Config{
		APIProtocol: defaultAPIProtocol,
		APIHost:     defaultAPIHost,
	}

	// Layer 4 (lowest, already applied above): built-in defaults.

	// Layer 3: legacy shell-export config file.
	if configDir != "" {
		legacyPath := filepath.Join(configDir, legacyConfigFileName)
		if kv, err := parseShellExportFile(legacyPath); err != nil {
			if !os.IsNotExist(err) {
				warnings = append(warnings, fmt.Sprintf("legacy config file %s: %v (treated as not present)", legacyPath, err))
			}
		} else {
			applyEnvStyleKeys(&cfg, kv)
		}
	}

	// Layer 2: JSON config file, read through viper so odd encodings /
	// comments-as-errors degrade the same way ("failures
	// to parse ... are logged and treated as not present").
	if configDir != "" {
		jsonPath := filepath.Join(configDir, jsonConfigFileName)
		v := viper.New()
		v.SetConfigFile(jsonPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				warnings = append(warnings, fmt.Sprintf("config file %s: %v (treated as not present)", jsonPath, err))
			}
		} else {
			kv := map[string]string{}
			for _, key := range v.AllKeys() {
				kv[strings.ToUpper(key)] = v.GetString(key)
			}
			applyEnvStyleKeys(&cfg, kv)
		}
	}

	// Layer 1: environment variables.
	applyEnvStyleKeys(&cfg, envAsMap())

	// Layer 0 (highest): explicit CLI values.
	applyEnvStyleKeys(&cfg, cliOverrides)

	return cfg, warnings
}

func envAsMap() map[string]string {
	m := map[string]string{}
	for _, name := range []string{
		"DX_APISERVER_PROTOCOL", "DX_APISERVER_HOST", "DX_APISERVER_PORT",
		"DX_SECURITY_CONTEXT", "DX_PROJECT_CONTEXT_ID", "DX_JOB_ID", "DX_WORKSPACE_ID",
		"DX_CA_CERT", "DX_USER_AGENT",
	} {
		if v := os.Getenv(name); v != "" {
			m[name] = v
		}
	}
	return m
}

// applyEnvStyleKeys maps a flat KEY=VALUE set (from env, JSON config, or
// the legacy shell-export file) onto Config fields, only overwriting a
// field when the corresponding key is present -- this is what gives later
// layers the ability to override earlier ones field-by-field rather than
// wholesale.
func applyEnvStyleKeys(cfg *Config, kv map[string]string) {
	if v, ok := kv["DX_APISERVER_PROTOCOL"]; ok && v != "" {
		cfg.APIProtocol = v
	}
	if v, ok := kv["DX_APISERVER_HOST"]; ok && v != "" {
		cfg.APIHost = v
	}
	if v, ok := kv["DX_APISERVER_PORT"]; ok && v != "" {
		cfg.APIPort = v
	}
	if v, ok := kv["DX_CA_CERT"]; ok && v != "" {
		cfg.CACertPath = v
	}
	if v, ok := kv["DX_PROJECT_CONTEXT_ID"]; ok && v != "" {
		cfg.Project = v
	}
	if v, ok := kv["DX_JOB_ID"]; ok && v != "" {
		cfg.JobID = v
	}
	if v, ok := kv["DX_WORKSPACE_ID"]; ok && v != "" {
		cfg.WorkspaceID = v
	}
	if v, ok := kv["DX_USER_AGENT"]; ok && v != "" {
		cfg.UserAgent = v
	}
	if v, ok := kv["DX_SECURITY_CONTEXT"]; ok && v != "" {
		if tok, err := parseSecurityContext(v); err == nil {
			cfg.AuthToken = tok
		}
	}
	if v, ok := kv["DX_VERBOSE"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Verbose = b
		}
	}
}

// parseSecurityContext decodes the JSON security context blob
// ({"auth_token_type": "Bearer", "auth_token": "..."}) on disk.
func parseSecurityContext(blob string) (string, error) {
	var sc struct {
		AuthTokenType string `json:"auth_token_type"`
		AuthToken     string `json:"auth_token"`
	}
	if err := jsonUnmarshal([]byte(blob), &sc); err != nil {
		return "", err
	}
	if sc.AuthTokenType == "" {
		sc.AuthTokenType = "Bearer"
	}
	return sc.AuthTokenType + " " + sc.AuthToken, nil
}

// parseShellExportFile parses a file of `export KEY=VALUE` / `KEY=VALUE`
// lines. No pack library parses this legacy shell-export grammar, so it is
// hand-rolled; it is a narrow, single-purpose scanner, not a general shell
// parser.
func parseShellExportFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	kv := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		kv[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return kv, nil
}
