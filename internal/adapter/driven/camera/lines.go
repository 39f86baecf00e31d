package camera

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/qrsignin/internal/domain/model"
	"github.com/ericfisherdev/qrsignin/internal/domain/port/driven"
)

// zbarPrefix is printed by zbarcam before each symbol unless --raw is given.
const zbarPrefix = "QR-Code:"

// Compile-time interface satisfaction check.
var _ driven.ScanSource = (*LineSource)(nil)

// LineSource turns newline-delimited decoder output (for example
// `zbarcam --raw`) into scan events, one per non-empty line.
type LineSource struct {
	r   io.Reader
	now func() time.Time
}

// NewLineSource creates a LineSource reading from r.
func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{r: r, now: time.Now}
}

// Scans starts reading in the background. The returned channel is closed at
// EOF, on a read error, or when ctx is done.
func (s *LineSource) Scans(ctx context.Context) <-chan model.ScanEvent {
	out := make(chan model.ScanEvent)

	go func() {
		defer close(out)

		scanner := bufio.NewScanner(s.r)
		for scanner.Scan() {
			payload := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(scanner.Text()), zbarPrefix))
			if payload == "" {
				continue
			}

			select {
			case out <- model.ScanEvent{Payload: payload, ObservedAt: s.now()}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			slog.Error("scan source read failed", "error", err)
		}
	}()

	return out
}
