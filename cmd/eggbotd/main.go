// Command eggbotd runs the pit controller's control engine behind an HTTP
// server. Wiring follows cmd/andorhttp3/main.go: koanf loads compiled-in
// defaults, then an optional YAML file, then environment variables, and a
// small command switch (run/mkconf/conf/version/help) drives the binary.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	yml "gopkg.in/yaml.v2"

	"github.com/eggbot-project/pitctl/eggbot"
	"github.com/eggbot-project/pitctl/presets"
	httptransport "github.com/eggbot-project/pitctl/transport/http"
)

// Version is injected via -ldflags at build time.
var Version = "1"

// ConfigFileName is the default on-disk configuration file name.
var ConfigFileName = "eggbotd.yml"

var k = koanf.New(".")

// config is the flattened, YAML/env-serializable subset of eggbot.Config
// that an operator is expected to tune; the rest of eggbot.Config keeps
// its compiled-in defaults.
type config struct {
	Addr             string  `yaml:"Addr"`
	Simulate         bool    `yaml:"Simulate"`
	LogLevel         string  `yaml:"LogLevel"`
	CORSOrigins      string  `yaml:"CorsOrigins"`
	PresetsDir       string  `yaml:"PresetsDir"`
	LogsDir          string  `yaml:"LogsDir"`
	ServoDaemonAddr  string  `yaml:"ServoDaemonAddr"`
	InitialSetpointC float64 `yaml:"InitialSetpointC"`
}

func defaultConfig() config {
	return config{
		Addr:             ":8000",
		Simulate:         false,
		LogLevel:         "info",
		CORSOrigins:      "",
		PresetsDir:       "./presets",
		LogsDir:          "./logs",
		ServoDaemonAddr:  "localhost:8888",
		InitialSetpointC: 110,
	}
}

func setupConfig() {
	k.Load(structs.Provider(defaultConfig(), "yaml"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") {
			log.Fatalf("error loading config file: %v", err)
		}
	}
	k.Load(env.Provider("EGGBOT_", ".", func(s string) string {
		return strings.Replace(strings.TrimPrefix(s, "EGGBOT_"), "_", "", -1)
	}), nil)
}

func root() {
	fmt.Println(`eggbotd runs the closed-loop pit temperature controller.

Usage:
	eggbotd <command>

Commands:
	run
	help
	mkconf
	conf
	version`)
}

func help() {
	fmt.Println(`eggbotd is configured via eggbotd.yml, or by environment variables
prefixed EGGBOT_ (e.g. EGGBOT_SIMULATE=true, EGGBOT_ADDR=:9000).

mkconf writes the resolved configuration (compiled-in defaults, overlaid
by any existing eggbotd.yml and EGGBOT_ variables) to eggbotd.yml.
run starts the HTTP server and control engine.`)
}

func mkconf() {
	c := config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := yml.NewEncoder(f).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func printConf() {
	c := config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	if err := yml.NewEncoder(os.Stdout).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func printVersion() {
	fmt.Printf("eggbotd version %s\n", Version)
}

func run() {
	c := config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	if c.CORSOrigins != "" {
		os.Setenv("CORS_ORIGINS", c.CORSOrigins)
	}

	cfg := eggbot.DefaultConfig()
	cfg.ADC.Simulate = c.Simulate
	cfg.Servo.Simulate = c.Simulate
	cfg.Servo.DaemonAddr = c.ServoDaemonAddr
	cfg.LogsDir = c.LogsDir
	cfg.InitialSetpointC = c.InitialSetpointC

	if err := os.MkdirAll(c.LogsDir, 0755); err != nil {
		log.Fatalf("failed to create logs directory: %v", err)
	}
	if err := os.MkdirAll(c.PresetsDir, 0755); err != nil {
		log.Fatalf("failed to create presets directory: %v", err)
	}

	logger := log.New(os.Stdout, "eggbotd: ", log.LstdFlags)

	store, err := presets.Open(c.PresetsDir, logger)
	if err != nil {
		log.Fatalf("failed to open preset store: %v", err)
	}
	defer store.Close()

	engine, err := eggbot.New(cfg, store, logger)
	if err != nil {
		log.Fatalf("failed to construct engine: %v", err)
	}
	engine.Start()
	defer engine.Stop()

	router := httptransport.NewRouter(engine)
	logger.Printf("listening on %s", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, router))
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupConfig()
	switch strings.ToLower(args[1]) {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printConf()
	case "run":
		run()
	case "version":
		printVersion()
	default:
		log.Fatal("unknown command")
	}
}
