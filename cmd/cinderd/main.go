// Command cinderd is an IRCv3-capable IRC server daemon. Grounded on
// horgh-catbox's cmd structure (ircd.go main/getArgs), generalized to
// load a nested YAML config (internal/config) and hand dispatch off to
// internal/state.Network instead of holding client/channel state in
// main itself.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/horgh/cinder/internal/config"
	"github.com/horgh/cinder/internal/state"
)

// args are the command line arguments, grounded on horgh-catbox's
// Args/getArgs (args.go).
type args struct {
	ConfigFile string
	Verbose    bool
}

func getArgs() (*args, error) {
	configFile := flag.String("conf", "", "Configuration file.")
	verbose := flag.Bool("verbose", false, "Enable debug logging.")
	flag.Parse()

	if *configFile == "" {
		flag.PrintDefaults()
		return nil, fmt.Errorf("you must provide a configuration file")
	}

	path, err := filepath.Abs(*configFile)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve configuration file path: %w", err)
	}

	return &args{ConfigFile: path, Verbose: *verbose}, nil
}

func main() {
	a, err := getArgs()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logrus.New()
	if a.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, network, err := loadNetwork(a.ConfigFile, nil)
	if err != nil {
		log.WithError(err).Fatal("unable to load configuration")
	}

	srv := newServer(network, log)
	if err := srv.listen(cfg.Listen); err != nil {
		log.WithError(err).Fatal("unable to start listeners")
	}
	go srv.alarm()
	go loginTimeoutSweeper(network)

	log.WithField("domain", cfg.Domain).Info("cinderd started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for s := range sig {
		switch s {
		case syscall.SIGHUP:
			log.Info("rehashing")
			newCfg, _, err := loadNetwork(a.ConfigFile, network)
			if err != nil {
				log.WithError(err).Error("rehash failed, keeping previous configuration")
				continue
			}
			cfg = newCfg
			log.Info("rehash complete")
		case syscall.SIGINT, syscall.SIGTERM:
			log.Info("shutting down")
			close(srv.shutdown)
			return
		}
	}
}

// loadNetwork reads filename and, if network is nil, constructs a new
// internal/state.Network; otherwise it rehashes the existing one in
// place and returns it unchanged. Splitting it this way keeps SIGHUP
// from needing to tear down and re-register every connected client.
func loadNetwork(filename string, network *state.Network) (*config.Config, *state.Network, error) {
	cfg, err := config.Load(filename)
	if err != nil {
		return nil, nil, err
	}

	if _, err := cfg.ListenAddresses(); err != nil {
		return nil, nil, err
	}

	provider, err := buildAuthProvider(cfg.SASL.Backend, cfg.SASL.CredentialsFile)
	if err != nil {
		return nil, nil, err
	}

	if network != nil {
		network.Rehash(cfg.StateConfig(), provider)
		return cfg, network, nil
	}

	return cfg, state.NewNetwork(cfg.StateConfig(), provider), nil
}
