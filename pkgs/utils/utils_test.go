package utils_test

import (
	"fmt"
	"testing"

	"github.com/ChiaYuChang/lorekeeper/pkgs/utils"
	"github.com/stretchr/testify/require"
)

func TestStringHelpers(t *testing.T) {
	tcs := []struct {
		Name   string
		Fn     func(string) string
		Input  string
		Expect string
	}{
		{"collapse spaces", utils.CollapseSpaces, "a   b c  d", "a b c d"},
		{"collapse newlines", utils.CollapseNewlines, "a\n\n\nb\nc", "a\nb\nc"},
		{"replace nbsp", utils.ReplaceNonBreakingSpaces, "a\u00a0b", "a b"},
		{"remove nbsp", utils.RemoveNonBreakingSpaces, "a\u00a0b", "ab"},
		{"remove space", utils.RemoveSpace, "a \t\n b", "a b"},
		{"normalize", utils.NormalizeString, " 新聞 稿 ", "新聞稿"},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			require.Equal(t, tc.Expect, tc.Fn(tc.Input))
		})
	}
}

func TestPreview(t *testing.T) {
	require.Equal(t, "原神", utils.Preview("原神", 5))
	require.Equal(t, "原神...", utils.Preview("原神星穹", 2))
}

func TestNonEmptyLines(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, utils.NonEmptyLines("\n a \n\n b\n"))
}

func TestMask(t *testing.T) {
	require.Equal(t, "●●●", utils.Mask("abc"))
	require.Equal(t, "abcde●●●●●●●●●●vwxyz", utils.Mask("abcdefghijklmnopqrstuvwxyz"))
}

func TestChunk(t *testing.T) {
	tcs := []struct {
		Size   int
		Input  []int
		Expect [][]int
	}{
		{2, []int{1, 2, 3, 4, 5}, [][]int{{1, 2}, {3, 4}, {5}}},
		{48, []int{1, 2}, [][]int{{1, 2}}},
		{3, nil, nil},
		{0, []int{1}, nil},
	}

	for i, tc := range tcs {
		t.Run(fmt.Sprintf("Case %d", i+1), func(t *testing.T) {
			require.Equal(t, tc.Expect, utils.Chunk(tc.Input, tc.Size))
		})
	}
}

func TestRemoveDuplicates(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, utils.RemoveDuplicates([]string{"a", "b", "a"}))
}

func TestIfElseDefault(t *testing.T) {
	require.Equal(t, 1, utils.IfElse(true, 1, 2))
	require.Equal(t, "dev", utils.DefaultIfZero("", "dev"))
}
