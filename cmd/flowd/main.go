package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blockflow/flowd/config"
	"github.com/blockflow/flowd/logger"
	"github.com/blockflow/flowd/util/panics"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return 1
	}

	if err := logger.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return 1
	}
	defer panics.HandlePanic(log, nil)

	node, err := newFlowd(cfg)
	if err != nil {
		log.Errorf("initializing flowd: %s", err)
		return 1
	}
	node.start()
	defer func() {
		if err := node.stop(); err != nil {
			log.Errorf("shutting down flowd: %s", err)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	log.Infof("received interrupt, shutting down")
	return 0
}
