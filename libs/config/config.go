package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

func String(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func RequiredString(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func Port(key, fallback string) (string, error) {
	v := String(key, fallback)
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return v, nil
}

// Int returns a positive integer from env, or fallback when unset or invalid.
func Int(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func Duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func Bool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Load fills dst from environment variables using envconfig struct tags
// (`envconfig:"NAME" default:"x" required:"true"`). A required string field
// set to blank is rejected as if it were unset.
func Load(prefix string, dst any) error {
	if err := envconfig.Process(prefix, dst); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := checkRequired(reflect.ValueOf(dst)); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return nil
}

func checkRequired(v reflect.Value) error {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Struct {
			if err := checkRequired(fv); err != nil {
				return err
			}
			continue
		}
		if f.Tag.Get("required") != "true" || fv.Kind() != reflect.String {
			continue
		}
		if strings.TrimSpace(fv.String()) == "" {
			name := f.Tag.Get("envconfig")
			if name == "" {
				name = f.Name
			}
			return fmt.Errorf("required key %s is empty", name)
		}
	}
	return nil
}
