// Package bambu talks to a Bambu Lab printer over its two network channels:
// an implicit-TLS FTPS server for file upload and a TLS MQTT broker for
// commands. Both calls report faults as returned errors; nothing panics
// across the package boundary.
package bambu

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
	log "github.com/sirupsen/logrus"
)

const (
	// The printer speaks FTPS on 990 and MQTT over TLS on 8883.
	ftpsPort = 990
	mqttPort = 8883

	// Fixed local account on every Bambu printer; the access code is the
	// password for both channels.
	username = "bblp"

	defaultDialTimeout = 10 * time.Second
)

// Printer identifies one physical device.
type Printer struct {
	Host       string
	Serial     string
	AccessCode string
	// DialTimeout bounds connection setup on both channels,
	// defaultDialTimeout when zero.
	DialTimeout time.Duration
}

func (p *Printer) dialTimeout() time.Duration {
	if p.DialTimeout > 0 {
		return p.DialTimeout
	}
	return defaultDialTimeout
}

// tlsConfig suits the printer's self-signed certificate.
func (p *Printer) tlsConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true}
}

// UploadFile pushes a local file to the printer's storage under remoteName.
//
// The printer requires implicit TLS: the socket is wrapped in TLS before the
// FTP greeting, not upgraded via AUTH TLS afterwards. DialWithTLS selects
// exactly that mode; the data channel is switched to protected mode (PROT P)
// during login.
func (p *Printer) UploadFile(localPath, remoteName string) error {
	addr := net.JoinHostPort(p.Host, fmt.Sprintf("%d", ftpsPort))
	log.Infof("Uploading %s to printer %s as %s", localPath, addr, remoteName)

	conn, err := ftp.Dial(addr,
		ftp.DialWithTimeout(p.dialTimeout()),
		ftp.DialWithTLS(p.tlsConfig()),
	)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Quit()

	if err := conn.Login(username, p.AccessCode); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	if err := conn.Stor(remoteName, f); err != nil {
		return fmt.Errorf("transfer %s: %w", remoteName, err)
	}

	log.Infof("Upload of %s successful", remoteName)
	return nil
}
