// Command svcmanager becomes the context manager for a binder driver and
// runs the in-process service-manager broker, the well-known name-lookup
// object every other process on the machine resolves through handle 0.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vela-os/binder"
	"github.com/vela-os/binder/internal/constants"
	"github.com/vela-os/binder/internal/logging"
	"github.com/vela-os/binder/internal/threadstate"
	"github.com/vela-os/binder/servicemanager"
)

func main() {
	var (
		driverPath = flag.String("driver", "", "binder device node to open (defaults to "+constants.DefaultDriverPath+")")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	if *driverPath != "" {
		os.Setenv(constants.EnvDriverPath, *driverPath)
	}

	proc, err := binder.Self()
	if err != nil {
		logger.Error("failed to open binder driver", "error", err)
		os.Exit(1)
	}

	if st := proc.BecomeContextManager(constants.ServiceManagerDescriptor); st != binder.OK {
		logger.Error("failed to become context manager", "status", st)
		os.Exit(1)
	}
	logger.Info("became context manager")

	server := servicemanager.NewServer()
	self := servicemanager.New(server)
	if st := self.AddService("manager", server, false, 0); st != binder.OK {
		logger.Error("failed to self-register", "status", st)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		close(done)
	}()

	ts := threadstate.Current(proc.Inner())
	if st := ts.SetupPolling(); st != binder.OK {
		logger.Error("failed to enter looper", "status", st)
		os.Exit(1)
	}

	fmt.Println("service manager ready")
	for {
		select {
		case <-done:
			if err := proc.Shutdown(); err != nil {
				logger.Error("error during shutdown", "error", err)
			}
			os.Exit(0)
		default:
		}
		if st := ts.HandlePolledCommands(); st != binder.OK {
			logger.Error("driver loop exited", "status", st)
			proc.Shutdown()
			os.Exit(1)
		}
	}
}
