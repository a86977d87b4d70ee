package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/store"
	"github.com/roach88/gridsync/internal/testutil"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

const (
	schemaFrame = `{"action":"getTable","data":{"schema":{"columns":[{"name":"id","dataType":"integer"},{"name":"name","dataType":"string"}],"constraint":[{"key":"id"}]}}}`
	dataFrame   = `{"action":"getTableData","data":{"columns":["id","name"],"data":[[1,"ann"],[2,"bob"],[3,"cy"]]}}`
	ackFrame    = `{"action":"update","key":2,"data":{"name":"robert"}}`
	badSchema   = `{"action":"getTable","data":{"schema":{"columns":[{"name":"id"}],"constraint":[]}}}`
)

// writeJournal creates a journal with two sessions: "s1" loads users and
// edits a row, "s2" receives a schema without a key.
func writeJournal(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.BeginSession(ctx, "s1", "table/users"))
	seq := int64(0)
	out := func(session string, cmd ir.Command) {
		seq++
		rec, err := store.OutboundRecord(session, seq, cmd)
		require.NoError(t, err)
		require.NoError(t, st.WriteFrame(ctx, rec))
	}
	in := func(session, raw string) {
		seq++
		f, err := ir.DecodeFrame([]byte(raw))
		require.NoError(t, err)
		rec, err := store.InboundRecord(session, seq, f)
		require.NoError(t, err)
		require.NoError(t, st.WriteFrame(ctx, rec))
	}

	out("s1", ir.GetTable())
	out("s1", ir.GetTableData(0, 500))
	in("s1", schemaFrame)
	in("s1", dataFrame)
	out("s1", ir.Update(ir.Int(2), map[string]ir.Value{"name": ir.String("robert")}))
	in("s1", ackFrame)

	require.NoError(t, st.BeginSession(ctx, "s2", "table/broken"))
	out("s2", ir.GetTable())
	in("s2", badSchema)

	return path
}

// serveTable answers the first session the dialer opens with frames.
func serveTable(dialer *testutil.MemoryDialer, frames ...string) {
	deadline := time.Now().Add(5 * time.Second)
	for dialer.Socket() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	sock := dialer.Socket()
	if sock == nil {
		return
	}
	for _, f := range frames {
		if err := sock.PushJSON(f); err != nil {
			return
		}
	}
}
