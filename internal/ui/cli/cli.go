package cli

import "flag"

const versionString = "1.0.0"

type cliOptions struct {
	configPath string
	once       bool
	watch      bool
	ui         bool
	query      string
	keys       string
	keysLimit  int
	summary    string
	dump       string
	history    int
	verbose    bool
	version    bool
	args       []string
}

func parseOptions(args []string) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("stubindex", flag.ContinueOnError)

	fs.StringVar(&opts.configPath, "config", "", "Path to config file (default: discovered data/config/stubindex.toml or ./stubindex.toml)")
	fs.BoolVar(&opts.once, "once", false, "Index once and exit")
	fs.BoolVar(&opts.watch, "watch", false, "Keep indexing changed files after the initial run")
	fs.BoolVar(&opts.ui, "ui", false, "Watch with an interactive terminal UI")
	fs.StringVar(&opts.query, "query", "", "Print files holding a key (<INDEX>:<KEY>)")
	fs.StringVar(&opts.keys, "keys", "", "List keys of an index (<INDEX>[:<PREFIX>])")
	fs.IntVar(&opts.keysLimit, "keys-limit", 0, "Maximum number of keys printed by -keys (0 = all)")
	fs.StringVar(&opts.summary, "summary", "", "Print the stored file summary of a file")
	fs.StringVar(&opts.dump, "dump", "", "Print the occurrences of a file without touching the index")
	fs.IntVar(&opts.history, "history", 0, "Print the N most recent index runs")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	opts.args = fs.Args()
	return opts, nil
}

// queryMode reports whether opts ask for a single read and no index run.
func (o cliOptions) queryMode() bool {
	return o.query != "" || o.keys != "" || o.summary != "" || o.dump != "" || o.history > 0
}
