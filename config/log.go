package config

import "github.com/blockflow/flowd/logger"

func initLogRotators(logFile, errLogFile string) {
	logger.InitLogRotators(logFile, errLogFile)
}
