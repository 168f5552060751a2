package internal

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memoryDatabase struct {
	mutex    sync.Mutex
	messages []*FeatureLogMessage
}

func (db *memoryDatabase) WriteLogMessage(data Data) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.messages = append(db.messages, data.(*FeatureLogMessage))
	return nil
}

func TestLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := newLogger(zap.New(core), false)
	db := &memoryDatabase{}
	logger.SetDatabase(db)

	logger.FeatureEvent("StartTransaction", "CP1", "transaction started")
	logger.Warn("slow response")
	logger.Error("send failed", errors.New("broken pipe"))
	logger.RawDataEvent("IN", "[2]")
	logger.Close()

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "transaction started", entries[0].Message)
	assert.Equal(t, "CP1", entries[0].ContextMap()["id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "send failed: broken pipe", entries[2].Message)

	require.Len(t, db.messages, 3)
	assert.Equal(t, "*", db.messages[1].ChargePointId)
	assert.Equal(t, string(Error), db.messages[2].Importance)
}

func TestLogger_RawDataInDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := newLogger(zap.New(core), true)
	logger.RawDataEvent("OUT", `[2,"1","Heartbeat",{}]`)
	logger.Close()
	logger.Close()

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, `OUT: [2,"1","Heartbeat",{}]`, entries[0].Message)
}
