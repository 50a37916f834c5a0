package migration

// MigrationConfig holds migration-specific configuration
type MigrationConfig struct {
	// Enabled controls whether migrations should run
	Enabled bool

	// VerifyChecksum turns checksum drift of applied scripts into a fatal error
	// instead of a logged warning
	VerifyChecksum bool
}

// DefaultMigrationConfig returns a migration configuration with sensible defaults
func DefaultMigrationConfig() MigrationConfig {
	return MigrationConfig{
		Enabled:        true,
		VerifyChecksum: false,
	}
}
