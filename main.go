// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"os"

	"github.com/mstarongithub/simplegbm/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	debug       bool
	startRepl   bool
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "simplegbm",
	Short: "show a gbm allocated buffer through wl_drm",
	Long: `simplegbm authenticates against the compositor's DRM device, allocates
one buffer on it, paints it a solid colour and shows it in a wl_shell window
until the compositor goes away.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}
		os.Exit(wlMain(cmd.Context(), conf))
		return nil
	},
}

func init() {
	cobra.EnablePrefixMatching = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file. Default is $XDG_CONFIG_HOME/"+config.DefaultFile)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log at debug level and print error stacks")
	rootCmd.Flags().BoolVar(&startRepl, "repl", false, "Start an inspector repl on stdin")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Errorln("simplegbm failed")
		os.Exit(1)
	}
}

// loadConfig applies the flags over the config and sets up logging.
func loadConfig() (*config.Config, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if startRepl {
		conf.StartType = config.START_REPL
	}
	if metricsAddr != "" {
		conf.MetricsAddr = metricsAddr
	}
	logrus.SetLevel(conf.Level())
	if debug && conf.Level() < logrus.DebugLevel {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.WithField("config", conf).Debugln("Config loaded")
	return conf, nil
}
