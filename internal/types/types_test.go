package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractNickname(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"fullwidth paren", "山田太郎（営業部）", "山田太郎"},
		{"at sign", "佐藤一郎@エンジニア", "佐藤一郎"},
		{"ascii paren", "Jane Doe (recruiter)", "Jane Doe"},
		{"fullwidth bar", "鈴木｜マーケ", "鈴木"},
		{"no separator", "田中花子", "田中花子"},
		{"earliest separator wins", "中村(本部)@広報", "中村"},
		{"leading space trimmed", " 高橋 ｜営業", "高橋"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractNickname(tc.in))
		})
	}
}

func TestExtractNicknameDeterministic(t *testing.T) {
	// Nickname derivation feeds message templates; the same name must
	// always produce the same nickname.
	for i := 0; i < 100; i++ {
		assert.Equal(t, "山田太郎", ExtractNickname("山田太郎（営業部）"))
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusFollowed, StatusSuccess, StatusError} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, Status("").Valid())
	assert.False(t, Status("done").Valid())
}
