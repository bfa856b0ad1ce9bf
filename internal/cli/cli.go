// Package cli wires cobra flags and environment variables into viper for the
// auctionctl binaries.
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flag describes one command-line option and its default.
type Flag struct {
	Name        string
	DefValue    interface{}
	Description string
	Repeatable  bool
}

// ConfigureCLI registers flags on fs and binds each one to v. Every flag can
// also be set through an environment variable named PREFIX_FLAG_NAME.
func ConfigureCLI(v *viper.Viper, envPrefix string, flags []Flag, fs *pflag.FlagSet) error {
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	for _, flag := range flags {
		switch defval := flag.DefValue.(type) {
		case string:
			if flag.Repeatable {
				var def []string
				if defval != "" {
					def = []string{defval}
				}
				fs.StringSlice(flag.Name, def, flag.Description)
			} else {
				fs.String(flag.Name, defval, flag.Description)
			}
		case bool:
			fs.Bool(flag.Name, defval, flag.Description)
		case int:
			fs.Int(flag.Name, defval, flag.Description)
		case time.Duration:
			fs.Duration(flag.Name, defval, flag.Description)
		default:
			return fmt.Errorf("flag %s: unsupported default type %T", flag.Name, flag.DefValue)
		}
		v.SetDefault(flag.Name, flag.DefValue)
		if err := v.BindPFlag(flag.Name, fs.Lookup(flag.Name)); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag.Name, err)
		}
	}
	return nil
}

// ExpandEnvVars expands $VARS inside string settings.
func ExpandEnvVars(v *viper.Viper) {
	for name, val := range v.AllSettings() {
		if str, ok := val.(string); ok {
			v.Set(name, os.ExpandEnv(str))
		}
	}
}

// String returns the trimmed value of key and whether it is non-empty.
func String(v *viper.Viper, key string) (string, bool) {
	s := strings.TrimSpace(v.GetString(key))
	return s, s != ""
}

// Strings returns the non-empty entries of a repeatable or comma separated key.
func Strings(v *viper.Viper, key string) []string {
	var out []string
	for _, raw := range v.GetStringSlice(key) {
		for _, part := range strings.Split(raw, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
