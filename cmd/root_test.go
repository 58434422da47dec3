package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"imgurfetch/internal"
)

func TestLoadConfiguration_Layering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "client_id: from-file\nconcurrency: 2\nrequest_timeout: 10s\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("IMGURFETCH_CONCURRENCY", "6")
	t.Setenv("IMGURFETCH_CREDENTIALS", filepath.Join(dir, "creds.yaml"))

	cmd := countCmd
	if err := rootCmd.PersistentFlags().Parse([]string{
		"--config", path,
		"--limit-rate", "512K",
		"--timeout", "3s",
	}); err != nil {
		t.Fatal(err)
	}
	cmd.Flags().AddFlagSet(rootCmd.PersistentFlags())
	t.Cleanup(func() {
		configPath, rateLimit, timeout = "", "", 0
	})

	if err := loadConfiguration(cmd); err != nil {
		t.Fatalf("loadConfiguration() error = %v", err)
	}

	if config.ClientID != "from-file" {
		t.Errorf("ClientID = %q, want value from file", config.ClientID)
	}
	if config.Concurrency != 6 {
		t.Errorf("Concurrency = %d, want environment to override file", config.Concurrency)
	}
	if config.RequestTimeout != 3*time.Second {
		t.Errorf("RequestTimeout = %v, want flag to override file", config.RequestTimeout)
	}
	if config.RateLimit != 512*1024 {
		t.Errorf("RateLimit = %d", config.RateLimit)
	}
	if config.CredentialsFile != filepath.Join(dir, "creds.yaml") {
		t.Errorf("CredentialsFile = %q", config.CredentialsFile)
	}
}

func TestRecordFromArg(t *testing.T) {
	tests := []struct {
		arg      string
		wantID   string
		wantLink string
		wantErr  bool
	}{
		{"AbCdEf1", "AbCdEf1", "https://i.imgur.com/AbCdEf1.png", false},
		{"https://imgur.com/AbCdEf1", "AbCdEf1", "https://i.imgur.com/AbCdEf1.png", false},
		{"https://i.imgur.com/AbCdEf1.jpg", "AbCdEf1", "https://i.imgur.com/AbCdEf1.jpg", false},
		{"https://example.com/AbCdEf1", "", "", true},
		{"x", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			rec, err := recordFromArg(tt.arg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("recordFromArg() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if rec.ID != tt.wantID || rec.Link != tt.wantLink {
				t.Errorf("recordFromArg() = %s %s, want %s %s", rec.ID, rec.Link, tt.wantID, tt.wantLink)
			}
		})
	}
}

func TestAccountLabel(t *testing.T) {
	if got := accountLabel(internal.Credentials{Username: "tester"}); got != "tester" {
		t.Errorf("accountLabel() = %q", got)
	}
	if got := accountLabel(internal.Credentials{AccountID: "42"}); got != "account 42" {
		t.Errorf("accountLabel() = %q", got)
	}
}
