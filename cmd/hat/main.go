package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/moubarak/mlkit-hat/utils"
	"github.com/spf13/cobra"
)

const helpBanner = `
┬ ┬┌─┐┌┬┐
├─┤├─┤ │
┴ ┴┴ ┴ ┴

Align the circles, get a hat.
    Version: %s
`

// pipeName is the file name that indicates stdin is being used.
const pipeName = "-"

// Version indicates the current build version.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "hat",
	Short:         "Face alignment lock-on overlay",
	Long:          fmt.Sprintf(helpBanner, Version),
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	log.SetFlags(0)

	// A missing .env file is not an error, the flags and the environment are used instead.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf(utils.DecorateText("could not load the .env file: %v", utils.ErrorMessage), err)
	}

	rootCmd.AddCommand(newRunCmd(), newDetectCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf(
			utils.DecorateText("\nError: %s\n", utils.ErrorMessage),
			utils.DecorateText(err.Error(), utils.DefaultMessage),
		)
	}
}

// envOr returns the environment variable value, or def when it is not set.
func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// envIntOr returns the environment variable as an int, or def when it is not set or invalid.
func envIntOr(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
