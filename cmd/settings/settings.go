// Package settings reads and updates the per-user settings stored by the backend.
package settings

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/radiorec/radiorec/cmd/output"
	"github.com/radiorec/radiorec/internal/app"
	"github.com/radiorec/radiorec/internal/backend"
	"github.com/radiorec/radiorec/internal/errors"
)

// readOnly keys are managed by the backend.
var readOnly = []string{"id", "updated_at"}

// Command groups get and set.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the backend recording settings",
	}
	cmd.AddCommand(getCommand(ctx), setCommand(ctx))
	return cmd
}

func getCommand(ctx *app.Context) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Print the settings, or a single key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(ctx.Settings, ctx.Build)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.Backend.GetSettings(cmd.Context())
			if err != nil {
				return err
			}
			values, err := toMap(s)
			if err != nil {
				return err
			}

			f := output.NewFormatter(cmd.OutOrStdout(), asJSON)
			if len(args) == 1 {
				v, ok := values[args[0]]
				if !ok {
					return unknownKey(args[0])
				}
				if f.JSON() {
					return f.Encode(v)
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			}
			if f.JSON() {
				return f.Encode(values)
			}
			out, err := yaml.Marshal(values)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func setCommand(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key=value>...",
		Short: "Change one or more settings",
		Long: `Change one or more settings, for example:

  radiorec settings set default_format=mp3 retention_days=14

Values are validated before they are sent.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(ctx.Settings, ctx.Build)
			if err != nil {
				return err
			}
			defer a.Close()

			current, err := a.Backend.GetSettings(cmd.Context())
			if err != nil {
				return err
			}
			next, err := Apply(current, args)
			if err != nil {
				return err
			}
			saved, err := a.Backend.UpdateSettings(cmd.Context(), next)
			if err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout(), false).Success(fmt.Sprintf("Settings %d updated", saved.ID))
			return nil
		},
	}
}

// Apply returns a copy of s with key=value assignments applied. Values are
// parsed as YAML scalars, so numbers and booleans need no quoting.
func Apply(s *backend.Settings, assignments []string) (*backend.Settings, error) {
	values, err := toMap(s)
	if err != nil {
		return nil, err
	}
	known := knownKeys()

	for _, a := range assignments {
		key, raw, ok := strings.Cut(a, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Newf("expected key=value, got %q", a).
				Component("cli").
				Category(errors.CategoryValidation).
				Build()
		}
		if slices.Contains(readOnly, key) {
			return nil, errors.Newf("%s is read-only", key).
				Component("cli").
				Category(errors.CategoryValidation).
				Build()
		}
		kind, ok := known[key]
		if !ok {
			return nil, unknownKey(key)
		}
		v, err := parseValue(key, raw, kind)
		if err != nil {
			return nil, err
		}
		values[key] = v
	}

	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	var out backend.Settings
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.New(err).
			Component("cli").
			Category(errors.CategoryValidation).
			Build()
	}
	return &out, nil
}

func parseValue(key, raw string, kind any) (any, error) {
	if _, isString := kind.(string); isString {
		return raw, nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, errors.Newf("invalid value for %s: %q", key, raw).
			Component("cli").
			Category(errors.CategoryValidation).
			Build()
	}
	switch kind.(type) {
	case bool:
		if _, ok := v.(bool); !ok {
			return nil, errors.Newf("%s expects true or false, got %q", key, raw).
				Component("cli").
				Category(errors.CategoryValidation).
				Build()
		}
	case float64:
		switch v.(type) {
		case int, float64:
		default:
			return nil, errors.Newf("%s expects a number, got %q", key, raw).
				Component("cli").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	return v, nil
}

func toMap(s *backend.Settings) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// knownKeys maps every settable key to a zero value of its JSON kind.
func knownKeys() map[string]any {
	full := backend.DefaultSettings()
	full.EmailPassword = "set"
	full.UpdatedAt = time.Unix(1, 0)
	m, _ := toMap(&full)
	return m
}

func unknownKey(key string) error {
	keys := make([]string, 0)
	for k := range knownKeys() {
		if !slices.Contains(readOnly, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return errors.Newf("unknown setting %q, known: %s", key, strings.Join(keys, ", ")).
		Component("cli").
		Category(errors.CategoryValidation).
		Build()
}
