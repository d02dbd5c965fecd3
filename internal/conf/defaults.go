package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets viper defaults for every configuration parameter.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "ClassCount-Go")

	viper.SetDefault("detector.modelpath", "model/head_count_model.tflite")
	viper.SetDefault("detector.labelpath", "model/labelmap.txt")
	viper.SetDefault("detector.targetlabel", "person")
	viper.SetDefault("detector.minconfidence", 0.5)
	viper.SetDefault("detector.threads", 0)
	viper.SetDefault("detector.usexnnpack", true)
	viper.SetDefault("detector.inferencetimeout", 30*time.Second)

	viper.SetDefault("storage.imagepath", "data/images")
	viper.SetDefault("storage.reportpath", "data/reports")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.ratelimit", 20.0)
	viper.SetDefault("webserver.rateburst", 40)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "data/classcount.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "classcount")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
	viper.SetDefault("output.mysql.database", "classcount")
}
