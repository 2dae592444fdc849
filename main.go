package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/web3dp/web3dpd/auth"
	"github.com/web3dp/web3dpd/bambu"
	"github.com/web3dp/web3dpd/estimate"
	"github.com/web3dp/web3dpd/jobstore"
	"github.com/web3dp/web3dpd/pipeline"
	"github.com/web3dp/web3dpd/slicer"
	"github.com/web3dp/web3dpd/storage"
)

func main() {
	var configFile, logFile string
	var verbose bool

	flag.StringVar(&configFile, "config", "web3dpd.json", "Main config")
	flag.StringVar(&logFile, "log", "", "Where to log (stdout if empty)")
	flag.BoolVar(&verbose, "verbose", false, "Use verbose log output")
	flag.Parse()

	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	log.SetOutput(os.Stdout)

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
		if err != nil {
			log.Fatal("Failed to log to file")
		}
		defer file.Close()
		log.SetOutput(file)
	}

	config, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("Can't open main config: %v", err)
	}

	var store pipeline.Store
	if config.Store.DSN != "" {
		store, err = jobstore.NewGorm(config.Store.DSN)
		if err != nil {
			log.Fatalf("Can't open job store: %v", err)
		}
	} else {
		log.Warning("No store DSN configured, job records are in-memory only")
		store = jobstore.NewMemory()
	}

	var objects storage.ObjectStore
	if config.Storage.Endpoint != "" {
		objects, err = storage.NewMinio(
			config.Storage.Endpoint,
			config.Storage.AccessKey,
			config.Storage.SecretKey,
			config.Storage.Bucket,
			config.Storage.PublicBase,
			config.Storage.Secure,
		)
		if err != nil {
			log.Fatalf("Can't open object storage: %v", err)
		}
	} else {
		log.Warning("No storage endpoint configured, objects are in-memory only")
		objects = storage.NewMemory()
	}

	var sl slicer.Slicer
	if config.Slicer.Simulated || config.Slicer.Path == "" {
		log.Warning("Using simulated slicer")
		sl = &slicer.Simulated{Delay: 2 * time.Second}
	} else {
		sl = &slicer.BambuStudio{
			Path:    config.Slicer.Path,
			Profile: config.Slicer.Profile,
			Timeout: time.Duration(config.Slicer.TimeoutSeconds) * time.Second,
		}
	}

	device := &bambu.Printer{
		Host:       config.Printer.Host,
		Serial:     config.Printer.Serial,
		AccessCode: config.Printer.AccessCode,
	}

	daemon := &Daemon{
		orchestrator: pipeline.NewOrchestrator(store, objects, estimate.Estimator{}, sl, device, config.TempDir),
		auth: &auth.Resolver{
			Secret:     []byte(config.Auth.Secret),
			AdminEmail: config.Auth.AdminEmail,
		},
	}
	if config.Auth.Secret == "" {
		log.Warning("No auth secret configured, all callers are trusted")
	}

	mux := http.NewServeMux()
	daemon.Register(mux)

	log.Infof("Listening on %s", config.Listen)
	log.Fatal(http.ListenAndServe(config.Listen, mux))
}
