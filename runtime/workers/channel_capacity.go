package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Buffer is anything whose fill level can be sampled without blocking.
type Buffer interface {
	Len() int
	Cap() int
}

type NamedBuffer struct {
	Name   string
	Buffer Buffer
}

// ChannelCapacityWorker periodically samples buffers and warns when one is
// close to full. A full event buffer means publishers are blocked behind a
// slow sink.
type ChannelCapacityWorker struct {
	log                  *slog.Logger
	buffers              []NamedBuffer
	interval             time.Duration
	lowCapacityThreshold int
}

func NewChannelCapacityWorker(log *slog.Logger, buffers []NamedBuffer,
	interval time.Duration, lowCapacityThreshold int) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:                  log,
		buffers:              buffers,
		interval:             interval,
		lowCapacityThreshold: lowCapacityThreshold,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity sampling")
			return nil
		case <-ticker.C:
			for _, buffer := range w.buffers {
				w.Sample(buffer)
			}
		}
	}
}

// Sample logs the fill level of one buffer and reports whether it is
// running low.
func (w *ChannelCapacityWorker) Sample(nb NamedBuffer) bool {
	capacity, length := nb.Buffer.Cap(), nb.Buffer.Len()
	w.log.Debug(fmt.Sprintf("Channel %s usage: %d / %d", nb.Name, length, capacity))
	if capacity <= 0 {
		// Unbuffered
		return false
	}
	capacityLeft := capacity - length
	if capacityLeft <= w.lowCapacityThreshold {
		w.log.Warn("Channel capacity running low", "name", nb.Name, "left", capacityLeft)
		return true
	}
	return false
}
