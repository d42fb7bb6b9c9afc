package utils

import (
	"os"

	"go.uber.org/zap"
)

var Logger *zap.Logger

func InitLogger() {
	var err error
	if os.Getenv("LOG_DEV") != "" {
		Logger, err = zap.NewDevelopment()
	} else {
		Logger, err = zap.NewProduction()
	}
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
}

func GetLogger() *zap.Logger {
	if Logger == nil {
		InitLogger()
	}
	return Logger
}
