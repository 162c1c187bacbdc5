package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/rootiq-ai/alert-rca-system/pkg/utils/logging"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New("info", true, &buf)

	logger.Info("alert assigned", "group_id", "g-1")

	var record map[string]any
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	gt.V(t, record["msg"]).Equal("alert assigned")
	gt.V(t, record["group_id"]).Equal("g-1")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New("error", true, &buf)

	logger.Info("should be dropped")
	gt.V(t, buf.Len()).Equal(0)

	logger.Error("should be written")
	gt.True(t, buf.Len() > 0)
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New("debug", true, &buf)

	ctx := logging.With(context.Background(), logger)
	gt.V(t, logging.From(ctx)).Equal(logger)

	// Without an attached logger, the default is returned
	gt.V(t, logging.From(context.Background())).Equal(logging.Default())
}
