// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsUsageError(t *testing.T) {
	require := require.New(t)

	require.True(IsUsageError(errors.New(`unknown flag: --nope`)))
	require.True(IsUsageError(errors.New(`failed to load config file 'x': open x: no such file`)))
	require.True(IsUsageError(errors.New(`accepts 1 arg(s), received 2`)))
	require.False(IsUsageError(errors.New("cover: invalid topology")))
}

func TestReport(t *testing.T) {
	require := require.New(t)

	buf := new(bytes.Buffer)
	require.NoError(Report(buf, "drop cover", Field{"first hop", "127.0.0.1:30001"}, Field{"bytes", 2394}))
	out := buf.String()
	require.Contains(out, "drop cover")
	require.Contains(out, "first hop:")
	require.Contains(out, "127.0.0.1:30001")
	require.Contains(out, "2394")
}
