package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/aqgenproject/aqgen/internal/aqgen"
	"github.com/aqgenproject/aqgen/internal/aqgen/configuration"
	"github.com/aqgenproject/aqgen/internal/common"
)

const CustomConfigLocation = "config"

func init() {
	pflag.StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)",
	)
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.AqGenConfiguration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)
	common.LoadConfig(&config, "./config/aqgen", userSpecifiedConfigs)

	if err := aqgen.Run(&config); err != nil {
		log.Errorf("AqGen failed: %+v", err)
		os.Exit(1)
	}
}
