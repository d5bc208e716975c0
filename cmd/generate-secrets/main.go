package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/utils"
)

func main() {
	envFile := flag.String("env-file", "", "merge the secrets into this .env file instead of printing them")
	rotate := flag.Bool("rotate", false, "replace secrets that are already set")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	env := map[string]string{}
	if *envFile != "" {
		existing, err := godotenv.Read(*envFile)
		if err != nil && !os.IsNotExist(err) {
			logger.Fatalf("Failed to read %s: %v", *envFile, err)
		}
		if existing != nil {
			env = existing
		}
	}

	written, err := utils.FillSecrets(env, *rotate)
	if err != nil {
		logger.Fatalf("Failed to generate secrets: %v", err)
	}

	if *envFile == "" {
		fmt.Println("# Add these to your .env file or secret store. Never commit them.")
		for _, key := range utils.SecretEnvKeys {
			fmt.Printf("%s=%s\n", key, env[key])
		}
		return
	}

	if len(written) == 0 {
		logger.WithField("env_file", *envFile).Info("Secrets already set, nothing written (use -rotate to replace)")
		return
	}
	if err := godotenv.Write(env, *envFile); err != nil {
		logger.Fatalf("Failed to write %s: %v", *envFile, err)
	}
	logger.WithFields(logrus.Fields{
		"env_file": *envFile,
		"keys":     strings.Join(written, ","),
	}).Info("Secrets written")

	if *rotate {
		logger.Warn("Rotated secrets invalidate every issued token")
	}
}
