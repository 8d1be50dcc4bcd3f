package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "mediascribe_db", cfg.Database.Database)
				assert.Equal(t, "transcription_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "transcription_jobs", cfg.RabbitMQ.Queue.Name)
				assert.Equal(t, 2, cfg.RabbitMQ.Queue.DeliveryLimit)
				assert.Equal(t, "transcription_jobs_dlq", cfg.RabbitMQ.DeadLetter.Queue)
				assert.Equal(t, "mediascribe-uploads", cfg.Storage.Bucket)
				assert.Equal(t, time.Hour, cfg.Storage.PresignExpiry)
				assert.Equal(t, "whisper-1", cfg.Engines.Transcriber.Model)
				assert.Equal(t, "mediascribe-api", cfg.App.Name)
				assert.Equal(t, time.Minute, cfg.Monitor.SweepInterval)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "mediascribe_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "transcription_exchange",
			},
			Queue: QueueConfig{
				Name:          "transcription_jobs",
				DeliveryLimit: 2,
			},
			DeadLetter: DeadLetterConfig{
				Exchange: "transcription_dlx",
				Queue:    "transcription_jobs_dlq",
			},
		},
		Storage: StorageConfig{
			Region: "ap-southeast-2",
			Bucket: "mediascribe-uploads",
		},
		Engines: EnginesConfig{
			Transcriber: EngineConfig{APIURL: "https://api.openai.com/v1"},
			Summarizer:  EngineConfig{APIURL: "https://api.openai.com/v1"},
		},
		Worker: WorkerConfig{
			Concurrency:     4,
			JobTimeout:      10 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Monitor: MonitorConfig{
			SweepInterval:     time.Minute,
			SweepBatch:        10,
			StuckScanInterval: 5 * time.Minute,
			StuckThreshold:    15 * time.Minute,
			StuckBatch:        20,
		},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "missing database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "missing rabbitmq exchange",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "missing dead-letter queue",
			mutate:    func(c *Config) { c.RabbitMQ.DeadLetter.Queue = "" },
			wantErr:   true,
			errString: "dead-letter queue name is required",
		},
		{
			name:      "missing storage bucket",
			mutate:    func(c *Config) { c.Storage.Bucket = "" },
			wantErr:   true,
			errString: "storage bucket is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:      "zero job timeout",
			mutate:    func(c *Config) { c.Worker.JobTimeout = 0 },
			wantErr:   true,
			errString: "worker job_timeout must be greater than 0",
		},
		{
			name:      "missing transcriber url",
			mutate:    func(c *Config) { c.Engines.Transcriber.APIURL = "" },
			wantErr:   true,
			errString: "transcriber api_url is required",
		},
		{
			name:      "missing summarizer url",
			mutate:    func(c *Config) { c.Engines.Summarizer.APIURL = "" },
			wantErr:   true,
			errString: "summarizer api_url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateMonitorConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "zero sweep interval",
			mutate:    func(c *Config) { c.Monitor.SweepInterval = 0 },
			wantErr:   true,
			errString: "monitor sweep_interval must be greater than 0",
		},
		{
			name:      "zero sweep batch",
			mutate:    func(c *Config) { c.Monitor.SweepBatch = 0 },
			wantErr:   true,
			errString: "monitor sweep_batch must be greater than 0",
		},
		{
			name:      "zero stuck threshold",
			mutate:    func(c *Config) { c.Monitor.StuckThreshold = 0 },
			wantErr:   true,
			errString: "monitor stuck_threshold must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateMonitorConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
