package log

import (
	"os"
	"path/filepath"

	"github.com/prior-auth/paw-app/conf"
	"github.com/sirupsen/logrus"
)

var (
	API     logrus.FieldLogger
	Gateway logrus.FieldLogger
	Planner logrus.FieldLogger
	Request logrus.FieldLogger

	Worker logrus.FieldLogger
)

func init() {
	API = Logger(logrus.New(), conf.GetEnv("PAW_ERROR_LOG"),
		"api", conf.GetEnv("ENVIRONMENT"))
	Gateway = Logger(logrus.New(), conf.GetEnv("PAW_GATEWAY_LOG"),
		"api", conf.GetEnv("ENVIRONMENT"))
	Planner = Logger(logrus.New(), conf.GetEnv("PAW_PLANNER_LOG"),
		"api", conf.GetEnv("ENVIRONMENT"))
	Request = Logger(logrus.New(), conf.GetEnv("PAW_REQUEST_LOG"),
		"api", conf.GetEnv("ENVIRONMENT"))

	Worker = Logger(logrus.New(), conf.GetEnv("PAW_WORKER_ERROR_LOG"),
		"worker", conf.GetEnv("ENVIRONMENT"))
}

func Logger(logger *logrus.Logger, outputFile string,
	application, environment string) logrus.FieldLogger {

	logger.SetFormatter(&logrus.JSONFormatter{})

	if outputFile != "" {
		if file, err := os.OpenFile(filepath.Clean(outputFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640); err == nil {
			logger.SetOutput(file)
		} else {
			logger.Infof("Failed to open output file %s. Will use stderr. %s",
				outputFile, err.Error())
		}
	}

	return logger.WithFields(logrus.Fields{
		"application": application,
		"environment": environment})
}
