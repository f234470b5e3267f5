package audit

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Logger appends one structured JSON line per event to a log file:
//
//	[2006-01-02 15:04:05] [Webpay][IngresarPago] {...}
//
// Logging is best effort: when the file cannot be written the entry goes to
// the process log instead of failing the request.
type Logger struct {
	path string

	mu  sync.Mutex
	now func() time.Time
}

func New(path string) *Logger {
	return &Logger{path: path, now: time.Now}
}

// Append writes entry tagged with tag. A unique entry_id is added so lines
// can be referenced from support tickets.
func (l *Logger) Append(tag string, entry map[string]any) {
	if entry == nil {
		entry = map[string]any{}
	}
	if _, ok := entry["entry_id"]; !ok {
		entry["entry_id"] = uuid.NewString()
	}

	encoded, err := sonic.Marshal(entry)
	if err != nil {
		encoded, _ = sonic.Marshal(map[string]any{
			"entry_id": entry["entry_id"],
			"error":    "could not encode the audit entry",
		})
	}

	line := fmt.Sprintf("[%s] %s %s\n", l.now().Format("2006-01-02 15:04:05"), tag, encoded)

	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[WARN] audit log %s unavailable: %v; entry: %s", l.path, err, line)
		return
	}
	defer file.Close()

	if _, err := file.WriteString(line); err != nil {
		log.Printf("[WARN] could not append to audit log %s: %v", l.path, err)
	}
}
