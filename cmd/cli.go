package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	client "github.com/jsp-lqk/metapipe-arith"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: arith [flags] incr|decr KEY DELTA")
	flag.PrintDefaults()
}

// parseExpiration narrows the expiration flag to the 32-bit wire field.
func parseExpiration(v uint64) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("invalid expiration %d: exceeds %d", v, uint64(math.MaxUint32))
	}
	return uint32(v), nil
}

func main() {
	var (
		servers    = flag.String("servers", "127.0.0.1:11211", "comma separated host:port list")
		configPath = flag.String("config", "", "YAML config file, overrides -servers")
		binary     = flag.Bool("binary", false, "use the binary protocol")
		noReply    = flag.Bool("noreply", false, "do not wait for a reply")
		prefix     = flag.String("prefix", "", "namespace prefix for the key")
		initial    = flag.Uint64("initial", 0, "create a missing counter with this value (binary only)")
		expiration = flag.Uint64("expiration", 0, "expiration in seconds for a created counter")
		master     = flag.String("master", "", "route on this key instead of KEY")
		verbose    = flag.Bool("v", false, "log connection events")
	)
	flag.Usage = usage
	flag.Parse()

	withInitial := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "initial" || f.Name == "expiration" {
			withInitial = true
		}
	})

	args := flag.Args()
	if len(args) != 3 {
		usage()
		os.Exit(2)
	}
	verb, key := args[0], args[1]
	delta, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid delta %q: %v\n", args[2], err)
		os.Exit(2)
	}
	if verb != "incr" && verb != "decr" {
		usage()
		os.Exit(2)
	}
	exp, err := parseExpiration(*expiration)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := client.DefaultConfig()
	if *configPath != "" {
		if cfg, err = client.LoadConfig(*configPath); err != nil {
			logger.Error("load config", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		for _, addr := range strings.Split(*servers, ",") {
			target, err := client.ParseTarget(strings.TrimSpace(addr))
			if err != nil {
				logger.Error("parse server", slog.Any("error", err))
				os.Exit(2)
			}
			cfg.Servers = append(cfg.Servers, target)
		}
	}
	if *binary {
		cfg.Protocol = client.ProtocolBinary
	}
	if *noReply {
		cfg.NoReply = true
	}
	if *prefix != "" {
		cfg.Prefix = *prefix
	}

	c, err := client.NewClient(cfg, client.WithLogger(logger))
	if err != nil {
		logger.Error("create client", slog.Any("error", err))
		os.Exit(1)
	}

	masterKey := key
	if *master != "" {
		masterKey = *master
	}

	var r client.Result
	switch {
	case verb == "incr" && withInitial:
		r, err = c.IncrementWithInitialByKey(masterKey, key, delta, *initial, exp)
	case verb == "incr":
		r, err = c.IncrementByKey(masterKey, key, delta)
	case withInitial:
		r, err = c.DecrementWithInitialByKey(masterKey, key, delta, *initial, exp)
	default:
		r, err = c.DecrementByKey(masterKey, key, delta)
	}
	c.Shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", r.Status, err)
		os.Exit(1)
	}
	if cfg.NoReply {
		fmt.Println(r.Status)
		return
	}
	fmt.Println(r.Value)
}
