// Package sanitize 把任意元数据文本转换为可在常见文件系统上安全使用的名字。
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// BudgetDefault 是单个路径分量的常见上限（ext4/NTFS 均为 255 字节）。
	BudgetDefault = 255
	// BudgetShort 留出余量给外层拼接（例如 "[number][label]" 前缀）。
	BudgetShort = 220
)

var invalidRE = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// Name 生成文件系统安全的名字。
//
// 规则（按顺序）：
// - 非法 UTF-8 字节直接丢弃；其余文本先做 NFC 组合，使字节预算按组合形态计算
// - < > : " / \ | ? * 与控制字符 0x00-0x1F 替换为 '_'
// - 去掉结尾的空格与 '.'（Windows 限制），去掉开头的 '.'（避免隐藏文件）
// - 按 UTF-8 字节截断到 budget；不切断多字节字符（不完整的尾部字节直接丢弃）
//
// 永不失败：任何输入都映射为一个合法（可能为空）的名字。budget<=0 时使用 BudgetDefault。
func Name(s string, budget int) string {
	if budget <= 0 {
		budget = BudgetDefault
	}

	s = strings.ToValidUTF8(s, "")
	s = norm.NFC.String(s)
	s = invalidRE.ReplaceAllString(s, "_")
	// 路径分隔符再兜底一次：上面的字符类已覆盖，这里保证即使规则被改动也不会产生子路径。
	s = strings.ReplaceAll(s, "/", "_")
	s = trim(s)

	s = truncateUTF8(s, budget)
	// 截断可能重新露出结尾的 '.' 或空格。
	return trim(s)
}

func trim(s string) string {
	s = strings.TrimRight(s, " .")
	return strings.TrimLeft(s, ".")
}

func truncateUTF8(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	cut := budget
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
