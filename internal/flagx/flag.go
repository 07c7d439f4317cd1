// Package flagx lets independent components parse only the command-line
// flags they own.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// Keep returns the arguments that belong to the named flags, in their
// original order. Names are given without dashes. As with the flag package,
// "-n", "--n", "-n=v" and "--n=v" all refer to flag n. A value passed as a
// separate argument is kept when it does not itself start with a dash.
// Everything after a "--" terminator is dropped.
func Keep(args []string, names ...string) []string {
	owned := make(map[string]bool, len(names))
	for _, n := range names {
		owned[strings.TrimLeft(n, "-")] = true
	}

	kept := []string{}
	for i := 0; i < len(args); i++ {
		name, hasValue, ok := flagName(args[i])
		if !ok {
			if args[i] == "--" {
				break
			}
			continue
		}
		if !owned[name] {
			continue
		}
		kept = append(kept, args[i])
		if !hasValue && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
			kept = append(kept, args[i])
		}
	}
	return kept
}

// flagName splits a "-name" or "--name=value" argument. ok is false for
// positional arguments and for the bare "-" and "--" tokens.
func flagName(arg string) (name string, hasValue, ok bool) {
	if len(arg) < 2 || arg[0] != '-' {
		return "", false, false
	}
	name = strings.TrimPrefix(arg[1:], "-")
	if name == "" {
		return "", false, false
	}
	name, _, hasValue = strings.Cut(name, "=")
	return name, hasValue, name != ""
}

// ConfigFile returns the value of -c or -config in args, or "" when neither
// is present. The last occurrence wins.
func ConfigFile(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(Keep(args, "c", "config"))

	return path
}
