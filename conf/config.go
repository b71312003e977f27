package conf

/*
   conf wraps viper for the PAW app. Configuration is sourced from an env-format
   file when one is present (local development) and falls back to process
   environment variables otherwise (deployed environments).

   Assumptions:
   1. The configuration file is an env file named local.env
   2. The configuration, once loaded, stays immutable for the uptime of the
   application (tests are the exception, via SetEnv/UnsetEnv)
*/

import (
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// An instance of the viper struct containing the conf information. Only made
// accessible through public functions GetEnv, SetEnv, etc.
var envVars viper.Viper

const (
	configgood    uint8 = 0
	configbad     uint8 = 1
	noconfigfound uint8 = 2
)

var state uint8 = configgood

func setup(dir string) *viper.Viper {
	var v = viper.New()
	v.SetConfigName("local")
	v.SetConfigType("env")
	v.AddConfigPath(dir)
	// Viper is lazy, do the read and parse of the config file now
	if err := v.ReadInConfig(); err != nil {
		state = configbad
	}
	return v
}

func init() {
	// Possible config file locations: local dev and a deployed override path.
	var locations = []string{
		"./shared_files/decrypted",
		"/etc/paw",
	}

	if success, loc := findEnv(locations); success {
		envVars = *setup(loc)
	} else {
		state = noconfigfound
	}
}

// findEnv walks the candidate locations and returns the first one containing
// a local.env file.
func findEnv(locations []string) (bool, string) {
	for _, loc := range locations {
		if _, err := os.Stat(loc + "/local.env"); err == nil {
			return true, loc
		}
	}
	return false, ""
}

// GetEnv retrieves the value stored in conf. If it does not exist, the
// process environment is consulted; "" is returned when neither has it.
func GetEnv(key string) string {
	if state == configgood {
		var value = envVars.GetString(key)
		if value == "" {
			// Copy the process env var over to conf to prevent additional OS
			// calls. Both must be cleared when UnsetEnv is called.
			if v, ok := os.LookupEnv(key); ok {
				test := &testing.T{}
				_ = SetEnv(test, key, v)
				value = v
			}
		}
		return value
	}

	return os.Getenv(key)
}

// LookupEnv augments os.LookupEnv to look in the conf struct first.
func LookupEnv(key string) (string, bool) {
	if state == configgood {
		if value := envVars.Get(key); value != nil && value != "" {
			return value.(string), true
		}
		if v, exist := os.LookupEnv(key); exist {
			test := &testing.T{}
			_ = SetEnv(test, key, v)
			return v, exist
		}
		return "", false
	}

	return os.LookupEnv(key)
}

// SetEnv adds key values into conf. This function should only be used either
// in this package itself or testing. The protect parameter ensures developers
// knowingly use it in an appropriate scope.
func SetEnv(protect *testing.T, key string, value string) error {
	var err error
	if state == configgood {
		envVars.Set(key, value)
	} else {
		err = os.Setenv(key, value)
	}
	return err
}

// UnsetEnv "unsets" a variable. Like SetEnv, this should only be used either
// in this package itself or testing.
func UnsetEnv(protect *testing.T, key string) error {
	if state == configgood {
		envVars.Set(key, "")
	}
	// GetEnv copies process env vars into conf on read, so the process env
	// var has to be cleared too.
	return os.Unsetenv(key)
}

// Checkout populates the supplied struct pointer from configuration values.
// Fields are matched by their `conf` tag; a `conf_default` tag supplies the
// value used when the variable is unset. Nested structs may be inlined with
// `conf:",squash"`.
func Checkout(target interface{}) error {
	values := make(map[string]interface{})
	for key, def := range taggedFields(target) {
		if v := GetEnv(key); v != "" {
			values[key] = v
		} else if def != "" {
			values[key] = def
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "conf",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(values)
}

// taggedFields returns conf tag -> conf_default for every reachable field,
// descending into squashed nested structs.
func taggedFields(target interface{}) map[string]string {
	out := make(map[string]string)
	var walk func(t reflect.Type)
	walk = func(t reflect.Type) {
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			return
		}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			tag := f.Tag.Get("conf")
			if strings.Contains(tag, ",squash") {
				walk(f.Type)
				continue
			}
			if tag == "" || tag == "-" {
				continue
			}
			out[tag] = f.Tag.Get("conf_default")
		}
	}
	walk(reflect.TypeOf(target))
	return out
}
