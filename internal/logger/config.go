package logger

import "io"

// Options holds the full logger configuration, including file rotation.
type Options struct {
	Level       string    // debug, info, warn, error
	Format      string    // json, text
	Output      io.Writer // explicit destination, wins over everything below
	ServiceName string
	Environment string // local, dev, prod

	// File output is only used outside the local environment.
	File     string
	FileOnly bool

	// Rotation (lumberjack)
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// usesFile reports whether a rotated log file should be written.
func (o *Options) usesFile() bool {
	return o.Environment != "local" && o.File != ""
}
