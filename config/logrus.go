package config

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	logg *logrus.Logger
)

func GetLogger() *logrus.Logger {
	return logg
}

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetLevel(logLevelFromEnv("LOG_LEVEL", logrus.ErrorLevel))
	logg.SetOutput(os.Stdout)
}

func logLevelFromEnv(key string, def logrus.Level) logrus.Level {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	level, err := logrus.ParseLevel(v)
	if err != nil {
		return def
	}
	return level
}

func LogError(logger *logrus.Logger, moduleName string, funcName string, context string, data any, err error) {
	if logger == nil || err == nil {
		return
	}
	if data != nil {
		logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"funcName": funcName,
			"context":  context,
			"data":     data,
		}).Error(err.Error())
	} else {
		logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"funcName": funcName,
			"context":  context,
		}).Error(err.Error())
	}
}

// LogInfo is the success-path counterpart of LogError; it only emits when the logger runs at info level.
func LogInfo(logger *logrus.Logger, moduleName string, funcName string, message string, fields logrus.Fields) {
	if logger == nil {
		return
	}
	entry := logger.WithFields(logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
	})
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Info(message)
}
