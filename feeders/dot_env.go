package feeders

import (
	"bufio"
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

// DotEnvFeeder reads KEY=VALUE pairs from a .env file and feeds them like
// EnvFeeder. Variables set in the process environment take precedence over
// the file; the file never modifies the process environment.
type DotEnvFeeder struct {
	Path   string
	Prefix string
}

// NewDotEnvFeeder creates a new DotEnvFeeder that reads from the specified .env file
func NewDotEnvFeeder(filePath, prefix string) *DotEnvFeeder {
	return &DotEnvFeeder{Path: filePath, Prefix: prefix}
}

// Feed reads the .env file and populates the provided structure
func (f *DotEnvFeeder) Feed(target any) error {
	vars, err := ParseDotEnv(f.Path)
	if err != nil {
		return fmt.Errorf("failed to parse .env file: %w", err)
	}
	maps.Copy(vars, env.ToMap(os.Environ()))
	return (&EnvFeeder{Prefix: f.Prefix, Environment: vars}).Feed(target)
}

// ParseDotEnv parses a .env file. Blank lines and # comments are skipped, an
// optional "export " prefix is ignored and matching quotes around values are
// removed.
func ParseDotEnv(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, err := parseEnvLine(line, lineNum)
		if err != nil {
			return nil, err
		}
		vars[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}
	return vars, nil
}

func parseEnvLine(line string, lineNum int) (string, string, error) {
	line = strings.TrimPrefix(line, "export ")
	idx := strings.Index(line, "=")
	if idx <= 0 {
		return "", "", fmt.Errorf("%w at line %d: %s", ErrDotEnvInvalidLineFormat, lineNum, line)
	}
	key := strings.TrimSpace(line[:idx])
	value := strings.TrimSpace(line[idx+1:])
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return key, value, nil
}
