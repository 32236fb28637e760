// Package flagx pre-scans command-line arguments before the main flag set
// is parsed, so the JSON config file can be loaded underneath the flags.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// ConfigFlags are the spellings accepted for the config file path.
var ConfigFlags = []string{"-c", "-config", "--config"}

// FilterArgs keeps only the arguments named in allowedFlags, together with
// their values. Both "-c conf.json" and "-c=conf.json" forms are kept. A
// token starting with '-' is never consumed as a value.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// ConfigPath returns the value of -c / -config found in args (usually
// os.Args[1:]), or "" when absent. The last occurrence wins. All other
// arguments are ignored.
func ConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to JSON config file")
	fs.StringVar(&path, "c", "", "path to JSON config file (short)")
	_ = fs.Parse(FilterArgs(args, ConfigFlags))

	return path
}
