package tls

import (
	"crypto/tls"
	"fmt"

	"catalog-api/internal/util"
)

// Manager resolves the server certificate. File-based certificates are
// preferred; in development it falls back to a generated self-signed pair
// cached on disk.
type Manager struct {
	config *Config
}

type Config struct {
	EnableTLS   bool
	CertFile    string
	KeyFile     string
	DevCertDir  string
	Environment string
}

func NewManager(config *Config) *Manager {
	return &Manager{config: config}
}

func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.config.CertFile != "" && m.config.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(m.config.CertFile, m.config.KeyFile)
		if err == nil {
			return &cert, nil
		}
		util.Warn("Failed to load configured certificate pair, falling back",
			util.ErrorField(err))
	}

	if m.config.Environment == "production" {
		return nil, fmt.Errorf("no certificate configured for production")
	}

	return m.generateSelfSignedCert()
}

func (m *Manager) generateSelfSignedCert() (*tls.Certificate, error) {
	generator := NewDevCertGenerator(m.config.DevCertDir)
	hosts := []string{
		"localhost",
		"127.0.0.1",
		"::1",
	}

	cert, err := generator.GenerateCert(hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %v", err)
	}

	util.Info("Generated self-signed certificate", util.Any("hosts", hosts))
	return &cert, nil
}

func (m *Manager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
}
