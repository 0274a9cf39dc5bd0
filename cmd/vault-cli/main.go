package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nStangl/minivault-go/client"
	"github.com/nStangl/minivault-go/util"
)

const version = "0.1.0"

var (
	address  string
	baseURL  string
	apiKey   string
	timeout  time.Duration
	loglevel string

	vault client.Client

	help = [10][2]string{
		{"get", "print the value stored for a key (key)"},
		{"set", "store a value under a key (key value)"},
		{"delete", "remove a key (key)"},
		{"exists", "check whether a key is stored (key)"},
		{"mget", "fetch several keys in parallel (key key ...)"},
		{"mset", "store several pairs in parallel (key=value ...)"},
		{"health", "print the server health report"},
		{"logLevel", "set log level"},
		{"help", "print this help"},
		{"quit", "exit the program"},
	}
)

var echo = "MiniVault>"

var rootCmd = &cobra.Command{
	Use:     "vault-cli",
	Short:   "interactive MiniVault client console",
	Long:    "interactive MiniVault client console over the binary or HTTP transport",
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		if unparsed := util.ExtractUnknownArgs(cmd.Flags(), args); len(unparsed) == 1 {
			loglevel = unparsed[0]
		}

		setLogLevel(loglevel)

		opts := []client.Option{client.WithTimeout(timeout)}
		if apiKey != "" {
			opts = append(opts, client.WithAPIKey(apiKey))
		}

		if baseURL != "" {
			vault = client.NewHTTP(baseURL, opts...)
			log.Infof("using HTTP transport via %s", baseURL)
		} else {
			vault = client.NewBinary(address, opts...)
			log.Infof("using binary transport via %s", address)
		}

		prompt()

		return nil
	},
}

func init() {
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	f := rootCmd.Flags()
	f.StringVarP(&address, "address", "a", "localhost:3000", "binary listener address (host:port)")
	f.StringVar(&baseURL, "http", "", "use the HTTP transport via this base URL instead")
	f.StringVarP(&apiKey, "api-key", "k", "", "API key sent with every call")
	f.DurationVarP(&timeout, "timeout", "t", client.DefaultTimeout, "per-call timeout")
	f.StringVar(&loglevel, "loglevel", "info", "log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func prompt() {
	var (
		in   = bufio.NewReader(os.Stdin)
		quit = make(chan os.Signal, 1)
	)

	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println()
		os.Exit(0)
	}()

	for {
		fmt.Printf("%s ", echo)

		s, err := in.ReadString('\n')
		if err != nil {
			return
		}

		p := strings.Fields(strings.TrimSuffix(s, "\n"))
		if len(p) == 0 {
			continue
		}

		switch p[0] {
		case "get":
			promptGet(p)
		case "set":
			promptSet(p)
		case "delete":
			promptDelete(p)
		case "exists":
			promptExists(p)
		case "mget":
			promptMGet(p)
		case "mset":
			promptMSet(p)
		case "health":
			promptHealth()
		case "logLevel":
			promptLogLevel(p)
		case "help":
			promptHelp()
		case "quit":
			fmt.Println(echo, "bye")
			return
		default:
			log.Warnf("unknown command %q", strings.Join(p, " "))
			promptHelp()
		}
	}
}

func validateInput(in []string, n int) bool {
	if len(in) < n {
		log.Warn("invalid format")
		return false
	}

	return true
}

func promptGet(p []string) {
	if !validateInput(p, 2) {
		return
	}

	if data := vault.Get(p[1]); data != nil {
		fmt.Printf("%s %s\n", echo, data)
	} else {
		fmt.Println(echo, "(absent)")
	}
}

func promptSet(p []string) {
	if !validateInput(p, 3) {
		return
	}

	if vault.Set(p[1], []byte(strings.Join(p[2:], " "))) {
		fmt.Println(echo, "stored", p[1])
	} else {
		fmt.Println(echo, "set failed for", p[1])
	}
}

func promptDelete(p []string) {
	if !validateInput(p, 2) {
		return
	}

	if vault.Delete(p[1]) {
		fmt.Println(echo, "deleted", p[1])
	} else {
		fmt.Println(echo, "delete failed for", p[1])
	}
}

func promptExists(p []string) {
	if !validateInput(p, 2) {
		return
	}

	fmt.Println(echo, p[1], "exists:", vault.Exists(p[1]))
}

func promptMGet(p []string) {
	if !validateInput(p, 2) {
		return
	}

	results := client.MGet(vault, p[1:])

	for k, v := range results {
		fmt.Printf("%s %s = %s\n", echo, k, v)
	}

	fmt.Printf("%s %d of %d keys present\n", echo, len(results), len(p)-1)
}

func promptMSet(p []string) {
	if !validateInput(p, 2) {
		return
	}

	entries := make(map[string][]byte, len(p)-1)

	for _, pair := range p[1:] {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			log.Warnf("skipping %q, expected key=value", pair)
			continue
		}

		entries[k] = []byte(v)
	}

	if client.MSet(vault, entries) {
		fmt.Printf("%s stored %d pairs\n", echo, len(entries))
	} else {
		fmt.Println(echo, "mset failed for at least one pair")
	}
}

func promptHealth() {
	h := vault.Health()
	if h == nil {
		fmt.Println(echo, "health check failed")
		return
	}

	fmt.Printf("%s status=%s uptime=%ds items=%d cache=%dMB storage=%dMB goroutines=%d mem=%dMB\n",
		echo, h.Status, h.UptimeSeconds, h.CacheItems, h.CacheSizeMB, h.StorageSizeMB, h.Goroutines, h.MemoryMB)
}

func promptLogLevel(p []string) {
	if !validateInput(p, 2) {
		return
	}

	prev := log.GetLevel().String()

	setLogLevel(p[1])

	fmt.Println(echo, "loglevel set from", prev, "to", log.GetLevel().String())
}

func setLogLevel(lvl string) {
	switch lvl {
	case "off":
		log.SetLevel(log.PanicLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "severe":
		log.SetLevel(log.ErrorLevel)
	case "all", "debug", "fine", "finest":
		log.SetLevel(log.DebugLevel)
	default:
		log.Warnf("log level %q is unrecognized", lvl)
	}
}

func promptHelp() {
	for _, h := range help {
		fmt.Printf("%s %-10s %s\n", echo, h[0], h[1])
	}
}
