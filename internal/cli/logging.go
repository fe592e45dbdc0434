package cli

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/datahub-project/datahub-upgrade/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// setupLogger installs the zap logger behind controller-runtime's logr. With a
// log file configured, output is duplicated into a size-rotated file.
func setupLogger(cfg config.LogConfig, opts *zap.Options, stderr io.Writer) io.Closer {
	var out io.Writer = stderr
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		out = io.MultiWriter(stderr, rotating)
		closer = rotating
	}

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(opts), zap.WriteTo(out)))
	return closer
}
