// Package cliflags exposes the flags set on a urfave/cli context as a
// koanf provider, so flags can be layered over defaults, files and env.
package cliflags

import (
	"errors"
	"fmt"

	"github.com/knadh/koanf/maps"
	"github.com/urfave/cli/v2"
)

var ErrReadBytes = errors.New("cliflags: reading bytes is not supported")

// Flags holds the values of all flags set explicitly, keyed by config key.
type Flags struct {
	values map[string]any
}

// Provider collects the flags of the app and the current command that
// were set on the command line or through their env vars. Unset flags
// are left out so they do not shadow lower layers. rename maps a flag
// name to its config key. If delim is not empty, keys are unflattened
// by delim, e.g. "supervisor.grace_period".
func Provider(ctx *cli.Context, delim string, rename func(string) string) *Flags {
	known := make(map[string]cli.Flag)
	for _, flag := range append(ctx.App.VisibleFlags(), ctx.Command.VisibleFlags()...) {
		known[flag.Names()[0]] = flag
	}

	values := make(map[string]any)

	for _, name := range ctx.FlagNames() {
		flag, ok := known[name]
		if !ok {
			continue
		}

		value, err := flagValue(ctx, flag)
		if err != nil {
			continue
		}

		key := name
		if rename != nil {
			key = rename(name)
		}
		values[key] = value
	}

	if delim != "" {
		values = maps.Unflatten(values, delim)
	}

	return &Flags{values: values}
}

func (f *Flags) ReadBytes() ([]byte, error) {
	return nil, ErrReadBytes
}

func (f *Flags) Read() (map[string]any, error) {
	return f.values, nil
}

func flagValue(ctx *cli.Context, flag cli.Flag) (any, error) {
	name := flag.Names()[0]

	switch flag.(type) {
	case *cli.StringFlag:
		return ctx.String(name), nil
	case *cli.PathFlag:
		return ctx.Path(name), nil
	case *cli.StringSliceFlag:
		return ctx.StringSlice(name), nil
	case *cli.BoolFlag:
		return ctx.Bool(name), nil
	case *cli.IntFlag:
		return ctx.Int(name), nil
	case *cli.IntSliceFlag:
		return ctx.IntSlice(name), nil
	case *cli.Int64Flag:
		return ctx.Int64(name), nil
	case *cli.Int64SliceFlag:
		return ctx.Int64Slice(name), nil
	case *cli.Float64Flag:
		return ctx.Float64(name), nil
	case *cli.Float64SliceFlag:
		return ctx.Float64Slice(name), nil
	case *cli.DurationFlag:
		return ctx.Duration(name), nil
	}

	return nil, fmt.Errorf("cliflags: unsupported flag %T", flag)
}
