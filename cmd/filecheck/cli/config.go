package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	envFiles    = []string{".env", ".env.local"}
	configPaths = []string{".", "./config", "/etc/filecheck", "$HOME/.filecheck"}
)

// initConfig loads .env files and the YAML config into viper. Every key can
// be overridden by FILECHECK_<SECTION>_<KEY>, e.g. FILECHECK_BUS_TYPE.
func initConfig(path string) error {
	loadEnvFiles(".")

	if path != "" {
		viper.SetConfigFile(path)
		loadEnvFiles(filepath.Dir(path))
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		for _, dir := range configPaths {
			viper.AddConfigPath(dir)
			loadEnvFiles(dir)
		}
	}

	viper.SetEnvPrefix("FILECHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// loadEnvFiles loads the .env files found in dir. Environment references in
// dir such as $HOME are expanded. Missing files are ignored and variables
// already set in the environment win.
func loadEnvFiles(dir string) {
	dir = os.ExpandEnv(dir)
	for _, name := range envFiles {
		godotenv.Load(filepath.Join(dir, name))
	}
}
