// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "photocache.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "photocache")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "photocache")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("proxy.endpoint", "https://api.placewise.app/functions/v1/proxy-google-image")

	viper.SetDefault("devicecache.path", "devicecache.db")

	viper.SetDefault("storage.uploadurl", "https://api.placewise.app/storage/v1/object/place-images")
	viper.SetDefault("storage.publicurl", "https://api.placewise.app/storage/v1/object/public/place-images")
}
