package internal

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryDatabase struct {
	records []Data
}

func (m *memoryDatabase) WriteLogMessage(data Data) error {
	m.records = append(m.records, data)
	return nil
}

func TestLogger_WritesThroughLogrus(t *testing.T) {
	logger := NewLogger(time.UTC)
	hook := test.NewLocal(logger.log)
	db := &memoryDatabase{}
	logger.SetDatabase(db)
	logger.SetStation("CP-1", "s-1")

	logger.FeatureEvent("BootNotification", "", "accepted")
	logger.Warn("slow response")
	logger.Error("send failed", errors.New("closed"))
	logger.Debug("hidden at info level")
	logger.Close()

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, "CP-1", entries[0].Data["client"])
	assert.Equal(t, "BootNotification", entries[0].Data["feature"])
	assert.Equal(t, logrus.WarnLevel, entries[1].Level)
	assert.Equal(t, "send failed: closed", entries[2].Message)

	require.Len(t, db.records, 3)
	first := db.records[0].(*FeatureLogMessage)
	assert.Equal(t, "s-1", first.Session)
	assert.Equal(t, string(Info), first.Importance)
}

func TestLogger_RawDataOnlyInDebugMode(t *testing.T) {
	logger := NewLogger(nil)
	hook := test.NewLocal(logger.log)

	logger.RawDataEvent(DirectionIn, "[3,\"1\",{}]")
	logger.SetDebugMode(true)
	logger.RawDataEvent(DirectionOut, "[2,\"2\",\"Heartbeat\",{}]")
	logger.Close()

	entries := hook.AllEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, logrus.DebugLevel, entries[0].Level)
	assert.Contains(t, entries[0].Message, "OUT")
}

func TestLogger_SetLevel(t *testing.T) {
	logger := NewLogger(nil)
	defer logger.Close()
	assert.NoError(t, logger.SetLevel("warn"))
	assert.Error(t, logger.SetLevel("loud"))
}
