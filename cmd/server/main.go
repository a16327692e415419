// The server command is the main entrypoint for running the pong server. It
// takes care of loading the config and running the socket, game and HTTP
// servers until it is interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dcrodman/pongserver/internal"
	"github.com/dcrodman/pongserver/internal/core"
)

func main() {
	pflag.StringP("config", "c", "./", "Path to the directory containing the server config file")
	pflag.Parse()
	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		fmt.Println("error binding flags:", err)
		os.Exit(1)
	}
	configPath := viper.GetString("config")

	config, err := core.LoadConfig(configPath)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println("using configuration directory:", configPath)

	// Change to the config directory so that any relative paths in the config
	// file (static_dir, the sqlite file) will resolve.
	if err := os.Chdir(filepath.Clean(configPath)); err != nil {
		fmt.Println("error changing to config directory:", err)
		os.Exit(1)
	}

	// Bind the Controller to one top-level server context so that we can shut down cleanly.
	ctx, cancel := context.WithCancel(context.Background())

	// Register a SIGTERM handler so that Ctrl-C will shut the servers down gracefully.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go exitHandler(cancel, c)

	controller := &internal.Controller{Config: config}
	if err := controller.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println("shut down")
}

// exitHandler cancels the server context on the first signal and exits
// immediately on the second.
func exitHandler(cancelFn func(), c chan os.Signal) {
	<-c
	fmt.Println("waiting to shut down gracefully...")
	cancelFn()

	<-c
	fmt.Println("hard exiting (killed)")
	os.Exit(1)
}
