package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_NormalizesLogLevel(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "debug"
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized log level 'DEBUG', got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_API(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.API.ReadTimeout != 10*time.Second {
		t.Errorf("Expected default read timeout 10s, got %v", cfg.API.ReadTimeout)
	}
	if cfg.API.WriteTimeout != 10*time.Second {
		t.Errorf("Expected default write timeout 10s, got %v", cfg.API.WriteTimeout)
	}
	if cfg.API.IdleTimeout != 60*time.Second {
		t.Errorf("Expected default idle timeout 60s, got %v", cfg.API.IdleTimeout)
	}
	if cfg.API.JobRetention != time.Hour {
		t.Errorf("Expected default job retention 1h, got %v", cfg.API.JobRetention)
	}
}

func TestApplyDefaults_Database(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Database.Path != "/var/lib/truenas-middleware/directoryservices.db" {
		t.Errorf("Expected default database path, got %q", cfg.Database.Path)
	}
}

func TestApplyDefaults_DirectoryServices(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.DirectoryServices.NetPath != "/usr/bin/net" {
		t.Errorf("Expected default net path '/usr/bin/net', got %q", cfg.DirectoryServices.NetPath)
	}
	if cfg.DirectoryServices.SystemKeytab != "/etc/krb5.keytab" {
		t.Errorf("Expected default system keytab '/etc/krb5.keytab', got %q", cfg.DirectoryServices.SystemKeytab)
	}
	if cfg.DirectoryServices.CredentialCache != "/var/run/middleware/krb5cc_0" {
		t.Errorf("Expected default credential cache, got %q", cfg.DirectoryServices.CredentialCache)
	}
	if cfg.DirectoryServices.SPNTimeout != 5*time.Minute {
		t.Errorf("Expected default SPN timeout 5m, got %v", cfg.DirectoryServices.SPNTimeout)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "WARN"
	cfg.API.Port = 9090
	cfg.Database.Path = "/tmp/test.db"
	cfg.DirectoryServices.SPNTimeout = time.Minute
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected explicit log level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("Expected explicit API port 9090, got %d", cfg.API.Port)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Expected explicit database path, got %q", cfg.Database.Path)
	}
	if cfg.DirectoryServices.SPNTimeout != time.Minute {
		t.Errorf("Expected explicit SPN timeout 1m, got %v", cfg.DirectoryServices.SPNTimeout)
	}
}
