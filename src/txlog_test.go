package rfcompanion

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	var f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records, readErr = csv.NewReader(f).ReadAll()
	require.NoError(t, readErr)

	return records
}

func Test_TxLogSingleFile(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "tx.csv")

	var l, err = NewTxLog(TxLogConfig{Path: path, Daily: false, Pattern: ""}, testLogger())
	require.NoError(t, err)

	l.now = func() time.Time { return time.Date(2024, 3, 9, 17, 4, 5, 0, time.UTC) }

	require.NoError(t, l.Write(Notification{ //nolint:exhaustruct
		Seq:     4,
		Kind:    EVENT_COMPLETED,
		Origin:  "tcp 10.0.0.7:51234",
		Signal:  "gate",
		Elapsed: 1500 * time.Millisecond,
	}))
	require.NoError(t, l.Write(Notification{ //nolint:exhaustruct
		Seq:    9,
		Kind:   EVENT_FAILED,
		Origin: "pty /dev/pts/3",
		Signal: "a0",
		Err:    errors.New("line gone"),
	}))
	l.Close()

	var records = readCSV(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, txLogHeader, records[0])
	assert.Equal(t, []string{"4", "1710003845", "2024-03-09T17:04:05Z", "tcp 10.0.0.7:51234", "gate", "completed", "1500", ""}, records[1])
	assert.Equal(t, "failed", records[2][5])
	assert.Equal(t, "line gone", records[2][7])

	// Appending to an existing file doesn't repeat the header.
	l, err = NewTxLog(TxLogConfig{Path: path, Daily: false, Pattern: ""}, testLogger())
	require.NoError(t, err)
	require.NoError(t, l.Write(Notification{Seq: 10, Kind: EVENT_CANCELLED})) //nolint:exhaustruct
	l.Close()

	assert.Len(t, readCSV(t, path), 4)
}

func Test_TxLogDaily(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "logs")

	var l, err = NewTxLog(TxLogConfig{Path: dir, Daily: true, Pattern: ""}, testLogger())
	require.NoError(t, err)

	var day = time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)
	l.now = func() time.Time { return day }

	require.NoError(t, l.Write(Notification{Seq: 1, Kind: EVENT_COMPLETED})) //nolint:exhaustruct

	day = day.Add(2 * time.Minute)
	require.NoError(t, l.Write(Notification{Seq: 2, Kind: EVENT_COMPLETED})) //nolint:exhaustruct
	l.Close()

	assert.Len(t, readCSV(t, filepath.Join(dir, "2024-03-09.csv")), 2)
	assert.Len(t, readCSV(t, filepath.Join(dir, "2024-03-10.csv")), 2)
}

func Test_TxLogBadPattern(t *testing.T) {
	var _, err = NewTxLog(TxLogConfig{Path: t.TempDir(), Daily: true, Pattern: "%Q"}, testLogger())
	assert.Error(t, err)
}

func Test_TxLogRun(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "tx.csv")
	var hub = NewHub(testLogger())

	var l, err = NewTxLog(TxLogConfig{Path: path, Daily: false, Pattern: ""}, testLogger())
	require.NoError(t, err)

	var ctx, cancel = context.WithCancel(context.Background())
	var done = make(chan error, 1)
	go func() { done <- l.Run(ctx, hub) }()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, time.Millisecond)

	hub.Publish(Notification{Kind: EVENT_PROCESSING, Signal: "a0"})                //nolint:exhaustruct
	hub.Publish(Notification{Kind: EVENT_ANTENNA_STATE, Signal: "a0", Busy: true}) //nolint:exhaustruct
	hub.Publish(Notification{Kind: EVENT_COMPLETED, Signal: "a0"})                 //nolint:exhaustruct

	require.Eventually(t, func() bool {
		var data, _ = os.ReadFile(path)
		return strings.Count(string(data), "\n") == 2
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	var records = readCSV(t, path)
	assert.Equal(t, "completed", records[1][5])
	assert.Equal(t, 0, hub.Subscribers())
}
