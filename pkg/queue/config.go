package queue

import "time"

// Config holds the tunables of the queue core. A process builds one Config
// and passes it into NewManager/NewWorker explicitly; there are no hidden
// process-wide defaults.
type Config struct {
	// Worker loops.
	Concurrency     int           `env:"QUEUE_CONCURRENCY" envDefault:"4"`
	PollInterval    time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	WorkTimeout     time.Duration `env:"QUEUE_WORK_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Executor pool for blocking processors. AdmissionTimeout exists only
	// to detect saturation; it is never the job's execution timeout.
	PoolSize           int           `env:"QUEUE_POOL_SIZE" envDefault:"8"`
	AdmissionTimeout   time.Duration `env:"QUEUE_ADMISSION_TIMEOUT" envDefault:"500ms"`
	MaxRequeueAttempts int           `env:"QUEUE_MAX_REQUEUE_ATTEMPTS" envDefault:"10"`

	// Store behavior.
	BackupTTL   time.Duration `env:"QUEUE_BACKUP_TTL" envDefault:"1h"`
	DedupWindow time.Duration `env:"QUEUE_DEDUP_WINDOW" envDefault:"1m"`

	// Circuit breaker guarding every store call. Sized per process.
	BreakerFailureThreshold int           `env:"QUEUE_BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	BreakerProbes           int           `env:"QUEUE_BREAKER_PROBES" envDefault:"1"`
	BreakerRecoveryTimeout  time.Duration `env:"QUEUE_BREAKER_RECOVERY_TIMEOUT" envDefault:"30s"`
}
