package csvio

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xautodm/internal/types"
)

func TestRosterRoundTrip(t *testing.T) {
	entries := []types.RosterEntry{
		{ID: "1", Handle: "taro", Name: "山田太郎（営業部）", Nickname: "山田太郎",
			Bio: "営業, ゴルフ好き", Status: types.StatusSuccess, Selected: true},
		{ID: "2", Handle: "hanako", Name: "花子", Nickname: "花子",
			Bio: "引用符 \"あり\"", Status: types.StatusPending, Selected: false},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRoster(&buf, entries))

	got, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "taro", got[0].Handle)
	assert.Equal(t, "営業, ゴルフ好き", got[0].Bio, "embedded commas survive quoting")
	assert.Equal(t, types.StatusSuccess, got[0].Status)
	assert.True(t, got[0].Selected)

	assert.Equal(t, "引用符 \"あり\"", got[1].Bio)
	assert.False(t, got[1].Selected)
	assert.Empty(t, got[1].ID, "import never reuses exported ids")
}

func TestReadColumnSubset(t *testing.T) {
	in := "userId,name\n" +
		"taro,山田太郎（営業部）\n" +
		"hanako,花子\n"

	got, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, types.StatusPending, got[0].Status, "missing status defaults to pending")
	assert.True(t, got[0].Selected, "missing isSend defaults to true")
	assert.Equal(t, "山田太郎", got[0].Nickname, "missing nickname is derived from the name")
}

func TestReadColumnSuperset(t *testing.T) {
	in := "userId,name,nickname,profile,status,isSend,extra\n" +
		"taro,山田太郎,山田太郎,自己紹介,success,false,ignored\n"

	got, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.StatusSuccess, got[0].Status)
	assert.False(t, got[0].Selected)
}

func TestReadTolerance(t *testing.T) {
	t.Run("unknown status defaults to pending", func(t *testing.T) {
		in := "userId,name,status\ntaro,山田,done\n"
		got, err := Read(strings.NewReader(in))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, types.StatusPending, got[0].Status)
	})

	t.Run("rows without handle or name are dropped", func(t *testing.T) {
		in := "userId,name\n,名前だけ\nhandle_only,\ntaro,山田\n"
		got, err := Read(strings.NewReader(in))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "taro", got[0].Handle)
	})

	t.Run("missing userId column is an error", func(t *testing.T) {
		in := "name,profile\n山田,自己紹介\n"
		_, err := Read(strings.NewReader(in))
		assert.Error(t, err)
	})
}

func TestWriteUsersHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteUsers(&buf, []types.User{
		{Handle: "taro", Name: "山田", Nickname: "山田", Bio: "bio"},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "userId,name,nickname,profile", lines[0])
}

func TestFilenames(t *testing.T) {
	at := time.Date(2026, 8, 29, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, "2026-08-29_14-05-09_taro.csv", DiscoveryFilename("taro", at))
	assert.Equal(t, "dm_users_2026-08-29.csv", SnapshotFilename(at))
}
