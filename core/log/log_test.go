// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"
)

func TestLogToFile(t *testing.T) {
	require := require.New(t)

	f := filepath.Join(t.TempDir(), "cover.log")
	b, err := New(f, "DEBUG", false)
	require.NoError(err)

	l := b.GetLogger("cover")
	l.Debug("hello %d", 42)
	l.Info("world")

	raw, err := os.ReadFile(f)
	require.NoError(err)
	require.Contains(string(raw), "DEBU cover: hello 42")
	require.Contains(string(raw), "INFO cover: world")

	require.NoError(b.Rotate())
	l.Warning("after rotate")
	raw, err = os.ReadFile(f)
	require.NoError(err)
	require.Contains(string(raw), "WARN cover: after rotate")
}

func TestLogLevels(t *testing.T) {
	require := require.New(t)

	b, err := New("", "notice", true)
	require.NoError(err)
	require.True(b.IsEnabledFor(logging.ERROR, "cover"))
	require.False(b.IsEnabledFor(logging.DEBUG, "cover"))

	_, err = New("", "LOUD", false)
	require.Error(err)
	require.Error(ValidateLevel("LOUD"))
	require.NoError(ValidateLevel("warning"))
}

func TestGoLogger(t *testing.T) {
	require := require.New(t)

	f := filepath.Join(t.TempDir(), "http.log")
	b, err := New(f, "INFO", false)
	require.NoError(err)

	g := b.GetGoLogger("http", "WARNING")
	g.Println("listener closed")

	raw, err := os.ReadFile(f)
	require.NoError(err)
	require.Contains(string(raw), "WARN http: listener closed")
}

func TestDiscardLogger(t *testing.T) {
	l := NewDiscardLogger("quiet")
	require.NotNil(t, l)
	require.NotPanics(t, func() { l.Errorf("dropped %d", 1) })
	require.Equal(t, "quiet", l.Module)
}
