package utils

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadYAML decodes the YAML file at path into out. Unknown keys are an error
// so that typos in config files do not go unnoticed.
func LoadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return nil
}

// ParseFloats parses a comma or space separated list such as "1,0" or "1 0".
func ParseFloats(s string) ([]float64, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(parts) == 0 {
		return nil, errors.Errorf("empty list %q", s)
	}
	values := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "element %d of %q", i, s)
		}
		values[i] = v
	}
	return values, nil
}
