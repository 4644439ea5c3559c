package logsink

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localnotify/pkg/localnotify"
	logx "localnotify/pkg/logx"
)

func TestPresentWritesLogLine(t *testing.T) {
	var buf bytes.Buffer
	p := New(logx.NewWriter(&buf, "debug"))

	n := localnotify.Delivered{Request: localnotify.Request{Identifier: "abc", Title: "T", Body: "B", Category: "3"}}
	h, err := p.Present(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, "abc", h)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.Split(buf.Bytes(), []byte("\n"))[0], &line))
	assert.Equal(t, "notification", line["message"])
	assert.Equal(t, "log", line["presenter"])
	assert.Equal(t, "T", line["title"])
	assert.Equal(t, "3", line["category"])

	require.NoError(t, p.Withdraw(context.Background(), "abc"))
	assert.Contains(t, buf.String(), "notification withdrawn")
}
