package kb

import (
	"io"
	"log/slog"
	"os"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
