package main

import (
	"context"
	"encoding/base64"
	"os"
	"os/signal"
	"syscall"

	E "github.com/sagernet/sing-cio/common/exceptions"
	"github.com/sagernet/sing-cio/common/log"
	"github.com/sagernet/sing-cio/conf"
	"github.com/sagernet/sing-cio/transport/secure"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	ConfigFile string
	Verbose    bool
}

var global globalFlags

func main() {
	command := &cobra.Command{
		Use:           "cio",
		Short:         "selector-driven socket tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	command.PersistentFlags().StringVarP(&global.ConfigFile, "config", "c", "", "Use a configuration file.")
	command.PersistentFlags().BoolVarP(&global.Verbose, "verbose", "v", false, "Enable verbose mode.")
	command.AddCommand(newEchoCommand(), newConnectCommand(), newForwardCommand(), newGenPSKCommand())
	err := command.Execute()
	if err != nil {
		logrus.Fatal(err)
	}
}

func loadConfig() (*conf.Config, error) {
	config := conf.Default()
	if global.ConfigFile != "" {
		var err error
		config, err = conf.Load(global.ConfigFile)
		if err != nil {
			return nil, err
		}
	}
	err := log.SetLevel(config.Log.Level)
	if err != nil {
		return nil, err
	}
	log.SetVerbose(global.Verbose)
	return config, nil
}

type secureFlags struct {
	Enabled bool
	PSK     string
}

func (f *secureFlags) bind(command *cobra.Command) {
	command.Flags().BoolVar(&f.Enabled, "secure", false, "Wrap the connection in a secure session.")
	command.Flags().StringVar(&f.PSK, "psk", "", "Set the pre-shared key, encoded with standard Base64. Overrides secure.psk.")
}

// build returns nil when the secure session is disabled.
func (f *secureFlags) build(config *conf.Config, server bool) (*secure.Config, error) {
	if !f.Enabled {
		return nil, nil
	}
	secureOptions := config.Secure
	if f.PSK != "" {
		secureOptions.PSK = f.PSK
	}
	if secureOptions.PSK == "" {
		return nil, E.New("missing psk")
	}
	key, err := secureOptions.Key()
	if err != nil {
		return nil, err
	}
	secureConfig := &secure.Config{
		PSK:           key,
		HighWaterMark: config.Channel.HighWaterMark,
		Logger:        log.NewLogger("secure"),
	}
	if server {
		secureConfig.ReplayFilter, err = secureOptions.NewReplayFilter()
		if err != nil {
			return nil, err
		}
	}
	return secureConfig, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func encodePSK(psk []byte) string {
	return base64.StdEncoding.EncodeToString(psk)
}
