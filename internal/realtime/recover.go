package realtime

import (
	"log/slog"
	"runtime/debug"

	"github.com/sodular/sodular-go/internal/model"
)

// deliver calls h and recovers a panic so the reader keeps running.
func (r *Relay) deliver(h Handler, ev model.Event) {
	r.delivering.Store(true)
	defer r.delivering.Store(false)
	defer func() {
		if rvr := recover(); rvr != nil {
			r.logger.Error("listener panic recovered",
				slog.String("event", ev.Name),
				slog.String("table_id", ev.TableID),
				slog.Any("panic", rvr),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	h(ev)
}
