package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the daemon's JSON configuration file.
type Config struct {
	Listen  string `json:"listen"`
	TempDir string `json:"temp_dir"`

	Printer struct {
		Host       string `json:"host"`
		Serial     string `json:"serial"`
		AccessCode string `json:"access_code"`
	} `json:"printer"`

	Slicer struct {
		Path           string `json:"path"`
		Profile        string `json:"profile"`
		Simulated      bool   `json:"simulated"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	} `json:"slicer"`

	Store struct {
		DSN string `json:"dsn"`
	} `json:"store"`

	Storage struct {
		Endpoint   string `json:"endpoint"`
		AccessKey  string `json:"access_key"`
		SecretKey  string `json:"secret_key"`
		Bucket     string `json:"bucket"`
		PublicBase string `json:"public_base"`
		Secure     bool   `json:"secure"`
	} `json:"storage"`

	Auth struct {
		Secret     string `json:"secret"`
		AdminEmail string `json:"admin_email"`
	} `json:"auth"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	config := &Config{}
	if err := json.NewDecoder(f).Decode(config); err != nil {
		return nil, fmt.Errorf("decode %s: %v", path, err)
	}
	if config.Listen == "" {
		config.Listen = ":8888"
	}
	return config, nil
}
